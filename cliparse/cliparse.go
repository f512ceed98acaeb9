// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Port         int    `yaml:"port" env:"PORT" env-default:"3318"`
	DatabaseURL  string `yaml:"database_url" env:"DATABASE_URL"`
	DatabaseType string `yaml:"database_type" env:"DATABASE_TYPE" env-default:"sqlite"`
	BaseURL      string `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:3318"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFile  string `yaml:"log_file" env:"LOG_FILE"`

	CookieSecure bool          `yaml:"cookie_secure" env:"COOKIE_SECURE" env-default:"true"`
	SessionTTL   time.Duration `yaml:"session_ttl" env:"SESSION_TTL" env-default:"336h"`
	IPHashSalt   string        `yaml:"ip_hash_salt" env:"IP_HASH_SALT" env-default:"polly"`

	RedisURL           string `yaml:"redis_url" env:"REDIS_URL"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE" env-default:"30"`

	SMTP       SMTPConfig       `yaml:"smtp"`
	Matrix     MatrixConfig     `yaml:"matrix"`
	Mattermost MattermostConfig `yaml:"mattermost"`
	Kafka      KafkaConfig      `yaml:"kafka"`

	ClamAVAddr string `yaml:"clamav_addr" env:"CLAMAV_ADDR"`

	AdminEmail    string `yaml:"admin_email" env:"ADMIN_EMAIL"`
	AdminPassword string `yaml:"admin_password" env:"ADMIN_PASSWORD"`
}

type SMTPConfig struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM" env-default:"polly@localhost"`
}

type MatrixConfig struct {
	Homeserver  string `yaml:"homeserver" env:"MATRIX_HOMESERVER"`
	AccessToken string `yaml:"access_token" env:"MATRIX_ACCESS_TOKEN"`
	RoomID      string `yaml:"room_id" env:"MATRIX_ROOM_ID"`
}

type MattermostConfig struct {
	URL       string `yaml:"url" env:"MATTERMOST_URL"`
	Token     string `yaml:"token" env:"MATTERMOST_TOKEN"`
	ChannelID string `yaml:"channel_id" env:"MATTERMOST_CHANNEL_ID"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"polly.events"`
}

const (
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
)

// ParseFlags loads configuration and applies CLI overrides.
// Precedence: flags > environment (.env included) > config file > defaults.
func ParseFlags(args []string) (Config, error) {
	var cfg Config

	fs := flag.NewFlagSet("polly", flag.ContinueOnError)

	var (
		configFile   string
		port         int
		databaseURL  string
		databaseType string
		baseURL      string
		logLevel     string
	)
	fs.StringVar(&configFile, "c", "", "Path to YAML config file")
	fs.IntVar(&port, "p", 0, "Server port")
	fs.StringVar(&databaseURL, "d", "", "Database URL")
	fs.StringVar(&databaseType, "t", "", "Database type (sqlite or postgres)")
	fs.StringVar(&baseURL, "base-url", "", "Public base URL used in links")
	fs.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// A missing .env file is normal outside development
	_ = godotenv.Load()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}

	var err error
	if configFile != "" {
		err = cleanenv.ReadConfig(configFile, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read configuration: %w", err)
	}

	// CLI overrides
	if port != 0 {
		cfg.Port = port
	}
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}
	if databaseType != "" {
		cfg.DatabaseType = databaseType
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return errors.New("invalid port")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("database URL required (use -d or DATABASE_URL env)")
	}
	switch cfg.DatabaseType {
	case DatabasePostgres, DatabaseSQLite:
	default:
		return fmt.Errorf("unknown database type %q (use sqlite or postgres)", cfg.DatabaseType)
	}
	if cfg.RateLimitPerMinute < 1 {
		return errors.New("RATE_LIMIT_PER_MINUTE must be at least 1")
	}
	if cfg.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	return nil
}
