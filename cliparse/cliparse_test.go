// cliparse/cliparse_test.go
package cliparse

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseFlags_EnvVars(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_URL", "postgres://test")
	t.Setenv("DATABASE_TYPE", "postgres")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SESSION_TTL", "2h")

	cfg, err := ParseFlags([]string{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.DatabaseType != DatabasePostgres {
		t.Errorf("expected postgres, got %s", cfg.DatabaseType)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("unexpected kafka brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.SessionTTL != 2*time.Hour {
		t.Errorf("expected session ttl 2h, got %s", cfg.SessionTTL)
	}
}

func TestParseFlags_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "file:polly.db")

	cfg, err := ParseFlags([]string{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 3318 {
		t.Errorf("expected default port 3318, got %d", cfg.Port)
	}
	if cfg.DatabaseType != DatabaseSQLite {
		t.Errorf("expected default sqlite, got %s", cfg.DatabaseType)
	}
	if cfg.RateLimitPerMinute != 30 {
		t.Errorf("expected default rate limit 30, got %d", cfg.RateLimitPerMinute)
	}
	if !cfg.CookieSecure {
		t.Error("expected secure cookies by default")
	}
	if cfg.SMTP.Port != 587 {
		t.Errorf("expected default smtp port 587, got %d", cfg.SMTP.Port)
	}
}

func TestParseFlags_CLIOverridesEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_URL", "postgres://env")

	cfg, err := ParseFlags([]string{"-p", "8080", "-d", "file:test.db", "-t", "sqlite", "-base-url", "https://polly.example/"})
	if err != nil {
		t.Fatal(err)
	}

	// CLI should override env
	if cfg.Port != 8080 {
		t.Errorf("CLI should override env: expected 8080, got %d", cfg.Port)
	}
	if cfg.DatabaseURL != "file:test.db" {
		t.Errorf("CLI should override env: got %s", cfg.DatabaseURL)
	}
	if cfg.BaseURL != "https://polly.example" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.BaseURL)
	}
}

func TestParseFlags_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "polly.yaml")
	content := []byte("port: 4000\ndatabase_url: file:from-file.db\nsmtp:\n  host: mail.example\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := ParseFlags([]string{"-c", path})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 4000 {
		t.Errorf("expected port from file 4000, got %d", cfg.Port)
	}
	if cfg.SMTP.Host != "mail.example" {
		t.Errorf("expected smtp host from file, got %q", cfg.SMTP.Host)
	}
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"missing database url", map[string]string{}, nil},
		{"unknown database type", map[string]string{"DATABASE_URL": "x", "DATABASE_TYPE": "mysql"}, nil},
		{"invalid port", map[string]string{"DATABASE_URL": "x"}, []string{"-p", "70000"}},
		{"unknown flag", map[string]string{"DATABASE_URL": "x"}, []string{"-nope"}},
		{"zero rate limit", map[string]string{"DATABASE_URL": "x", "RATE_LIMIT_PER_MINUTE": "0"}, nil},
		{"negative rate limit", map[string]string{"DATABASE_URL": "x", "RATE_LIMIT_PER_MINUTE": "-5"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := ParseFlags(tt.args); err == nil {
				t.Error("expected error")
			}
		})
	}
}
