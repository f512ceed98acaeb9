// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/danielhkuo/polly/auth"
	"github.com/danielhkuo/polly/clamav"
	"github.com/danielhkuo/polly/cliparse"
	"github.com/danielhkuo/polly/db"
	"github.com/danielhkuo/polly/events"
	"github.com/danielhkuo/polly/handlers"
	"github.com/danielhkuo/polly/logger"
	"github.com/danielhkuo/polly/mailer"
	"github.com/danielhkuo/polly/metrics"
	"github.com/danielhkuo/polly/models"
	"github.com/danielhkuo/polly/notify"
	"github.com/danielhkuo/polly/ratelimit"
	"github.com/danielhkuo/polly/router"
	"github.com/danielhkuo/polly/store"
	"github.com/danielhkuo/polly/testrunner"
)

const sessionPurgeInterval = time.Hour

func main() {
	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	flush := logger.Install(logger.New(cfg.LogLevel, cfg.LogFile))
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server stopped", "error", err)
		flush()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg cliparse.Config) error {
	conn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Create schema (tables)
	if err := db.CreateSchema(conn); err != nil {
		return err
	}
	slog.Info("Database schema ready", "type", cfg.DatabaseType)

	st := store.New(conn)
	if err := bootstrapAdmin(ctx, st, cfg); err != nil {
		return err
	}

	svc := testrunner.Services{SMTPHost: cfg.SMTP.Host, SMTPPort: cfg.SMTP.Port}

	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		rl, err := ratelimit.NewRedisLimiter(ctx, cfg.RedisURL, cfg.RateLimitPerMinute, time.Minute)
		if err != nil {
			slog.Warn("redis unavailable, using in-memory rate limiter", "error", err)
		} else {
			defer rl.Close()
			limiter = rl
			svc.Redis = rl
		}
	}
	if limiter == nil {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitPerMinute, time.Minute)
	}

	hub := events.NewHub()
	go hub.Run(ctx)
	publishers := events.Multi{hub}
	if len(cfg.Kafka.Brokers) > 0 {
		publishers = append(publishers, events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		slog.Info("publishing events to kafka", "topic", cfg.Kafka.Topic)
	}
	defer publishers.Close()

	var notifiers notify.Multi
	if cfg.Matrix.Homeserver != "" && cfg.Matrix.RoomID != "" {
		mx, err := notify.NewMatrix(cfg.Matrix.Homeserver, cfg.Matrix.AccessToken, cfg.Matrix.RoomID)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, mx)
		svc.Chat = append(svc.Chat, "matrix")
	}
	if cfg.Mattermost.URL != "" && cfg.Mattermost.ChannelID != "" {
		notifiers = append(notifiers, notify.NewMattermost(cfg.Mattermost.URL, cfg.Mattermost.Token, cfg.Mattermost.ChannelID))
		svc.Chat = append(svc.Chat, "mattermost")
	}

	var mail mailer.Mailer = mailer.Log{}
	if cfg.SMTP.Host != "" {
		mail = mailer.NewSMTP(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	}

	var scanner *clamav.Client
	if cfg.ClamAVAddr != "" {
		scanner = clamav.New(cfg.ClamAVAddr)
		svc.ClamAV = scanner
	}

	deps := handlers.Deps{
		Store:    st,
		Config:   cfg,
		Metrics:  metrics.New(),
		Events:   publishers,
		Hub:      hub,
		Notifier: notifiers,
		Mailer:   mail,
		ClamAV:   scanner,
		Runner:   testrunner.New(testrunner.StandardChecks(st, svc)...),
	}

	go purgeSessions(ctx, st)

	server := &http.Server{
		Handler:           router.NewRouter(deps, limiter),
		Addr:              ":" + strconv.Itoa(cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("Listening", "port", cfg.Port)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("Server closed")
	return nil
}

// bootstrapAdmin creates the configured admin account once.
func bootstrapAdmin(ctx context.Context, st *store.Store, cfg cliparse.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}
	if _, err := st.GetUserByEmail(ctx, cfg.AdminEmail); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	u := &models.User{Email: cfg.AdminEmail, Name: "Administrator", PasswordHash: hash, Role: models.RoleAdmin}
	if err := st.CreateUser(ctx, u); err != nil {
		return err
	}
	slog.Info("bootstrap admin created", "user_id", u.ID)
	return nil
}

func purgeSessions(ctx context.Context, st *store.Store) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.PurgeExpiredSessions(ctx)
			if err != nil {
				slog.Error("failed to purge sessions", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("purged expired sessions", "count", n)
			}
		}
	}
}
