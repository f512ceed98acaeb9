// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/danielhkuo/polly/handlers"
	"github.com/danielhkuo/polly/metrics"
	"github.com/danielhkuo/polly/middleware"
	"github.com/danielhkuo/polly/models"
	"github.com/danielhkuo/polly/ratelimit"
)

// NewRouter mounts the API under /api/v1. A nil limiter falls back to an
// in-memory limiter with the configured rate.
func NewRouter(d handlers.Deps, limiter ratelimit.Limiter) http.Handler {
	cfg := d.Config
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if limiter == nil {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitPerMinute, time.Minute)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(d)
	userHandler := handlers.NewUserHandler(d)
	pollHandler := handlers.NewPollHandler(d)
	voteHandler := handlers.NewVoteHandler(d)
	adminHandler := handlers.NewAdminHandler(d)

	limit := func(scope string) func(http.Handler) http.Handler {
		return middleware.RateLimit(limiter, scope, cfg.IPHashSalt)
	}
	staff := middleware.RequireRole(models.RoleAdmin, models.RoleManager)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	r := chi.NewRouter()
	r.Use(middleware.CORS)
	r.Use(middleware.WithLogging)
	r.Use(middleware.Metrics(d.Metrics))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := d.Store.Ping(r.Context()); err != nil {
			slog.Error("health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Sessions(d.Store))

		r.Route("/auth", func(r chi.Router) {
			r.With(limit("register")).Post("/register", authHandler.Register)
			r.With(limit("login")).Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.With(middleware.RequireUser).Get("/me", authHandler.Me)
		})

		r.Route("/users/me", func(r chi.Router) {
			r.Use(middleware.RequireUser)
			r.Patch("/", userHandler.UpdateMe)
			r.Put("/password", userHandler.ChangePassword)
			r.Post("/deletion-request", userHandler.RequestDeletion)
			r.Delete("/deletion-request", userHandler.CancelDeletion)
			r.Get("/polls", userHandler.MyPolls)
		})

		r.Route("/polls", func(r chi.Router) {
			r.With(limit("polls")).Post("/", pollHandler.CreatePoll)

			// Voter-facing, by public token
			r.Route("/public/{publicToken}", func(r chi.Router) {
				r.Get("/", pollHandler.GetPublicPoll)
				r.Get("/results", pollHandler.GetResults)
				r.Get("/qr.png", pollHandler.QRCode)
				r.Get("/live", pollHandler.Live)
				r.With(limit("votes")).Post("/votes", voteHandler.SubmitVotes)
			})

			// Creator-facing, by admin token
			r.Route("/admin/{adminToken}", func(r chi.Router) {
				r.Get("/", pollHandler.GetAdminPoll)
				r.Patch("/", pollHandler.UpdatePoll)
				r.Delete("/", pollHandler.DeletePoll)
				r.Post("/options", pollHandler.AddOption)
				r.Delete("/options/{optionId}", pollHandler.DeleteOption)
				r.Post("/finalize", pollHandler.Finalize)
				r.Get("/export.csv", pollHandler.ExportCSV)
				r.Get("/export.pdf", pollHandler.ExportPDF)
			})
		})

		r.Route("/votes/{editToken}", func(r chi.Router) {
			r.Get("/", voteHandler.GetVotes)
			r.Put("/", voteHandler.ReplaceVotes)
			r.Delete("/", voteHandler.WithdrawVotes)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(staff)
				r.Get("/polls", adminHandler.ListPolls)
				r.Delete("/polls/{id}", adminHandler.DeletePoll)
				r.Get("/stats", adminHandler.Stats)
			})

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Get("/users", adminHandler.ListUsers)
				r.Patch("/users/{id}", adminHandler.UpdateUserRole)
				r.Delete("/users/{id}", adminHandler.DeleteUser)

				r.Get("/settings", adminHandler.GetSettings)
				r.Get("/settings/export", adminHandler.ExportSettings)
				r.Post("/settings/import", adminHandler.ImportSettings)
				r.Put("/settings/{key}", adminHandler.UpdateSetting)

				r.Get("/email-templates", adminHandler.ListEmailTemplates)
				r.Put("/email-templates/{key}", adminHandler.UpdateEmailTemplate)

				r.Post("/tests/runs", adminHandler.StartTestRun)
				r.Get("/tests/runs/latest", adminHandler.LatestTestRun)
				r.Get("/tests/runs/{id}", adminHandler.GetTestRun)

				r.Post("/clamav/scan", adminHandler.ScanFile)
			})
		})
	})

	// Root endpoint
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("polly API v1"))
	})

	return r
}
