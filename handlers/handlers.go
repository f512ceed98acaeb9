// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/polly/clamav"
	"github.com/danielhkuo/polly/cliparse"
	"github.com/danielhkuo/polly/events"
	"github.com/danielhkuo/polly/mailer"
	"github.com/danielhkuo/polly/metrics"
	"github.com/danielhkuo/polly/middleware"
	"github.com/danielhkuo/polly/models"
	"github.com/danielhkuo/polly/notify"
	"github.com/danielhkuo/polly/store"
	"github.com/danielhkuo/polly/testrunner"
	"github.com/danielhkuo/polly/validation"
)

// Deps are the collaborators shared by all handlers.
// Nil optional collaborators fall back to no-op implementations.
type Deps struct {
	Store    *store.Store
	Config   cliparse.Config
	Metrics  *metrics.Metrics
	Events   events.Publisher
	Hub      *events.Hub
	Notifier notify.Notifier
	Mailer   mailer.Mailer
	ClamAV   *clamav.Client
	Runner   *testrunner.Runner
}

func (d Deps) withDefaults() Deps {
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Mailer == nil {
		d.Mailer = mailer.Log{}
	}
	if d.Runner == nil {
		d.Runner = testrunner.New()
	}
	return d
}

// decode parses and validates a JSON body, writing the error response on failure.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := middleware.ParseJSONBody(r, v); err != nil {
		middleware.BodyError(w, err)
		return false
	}
	if err := validation.Struct(v); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			middleware.ErrorResponse(w, http.StatusBadRequest, verr.Error())
			return false
		}
		slog.Error("failed to validate request", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Validation failed")
		return false
	}
	return true
}

// storeError maps store sentinels to status codes. Anything unknown is
// logged and reported as 500.
func storeError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		middleware.ErrorResponse(w, http.StatusNotFound, "Not found")
	case errors.Is(err, store.ErrInvalidVote), errors.Is(err, store.ErrInvalidSetting):
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrCapacityExceeded),
		errors.Is(err, store.ErrNotAcceptingVotes),
		errors.Is(err, store.ErrAlreadyVoted),
		errors.Is(err, store.ErrConflict):
		middleware.ErrorResponse(w, http.StatusConflict, err.Error())
	default:
		slog.Error("failed to "+action, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to "+action)
	}
}

func publicURL(cfg cliparse.Config, p *models.Poll) string {
	return cfg.BaseURL + "/p/" + p.PublicToken
}

func adminURL(cfg cliparse.Config, p *models.Poll) string {
	return cfg.BaseURL + "/admin/" + p.AdminToken
}

func editURL(cfg cliparse.Config, editToken string) string {
	return cfg.BaseURL + "/votes/" + editToken
}

// sendMail renders a stored template and sends it. Mail is best effort:
// failures are logged, never returned.
func sendMail(ctx context.Context, d Deps, key string, data mailer.Data, to ...string) {
	if len(to) == 0 || !d.Store.BoolSetting(ctx, store.SettingEmailNotifications) {
		return
	}
	tpl, err := d.Store.EmailTemplate(ctx, key)
	if err != nil {
		slog.Error("failed to load email template", "template", key, "error", err)
		return
	}
	msg, err := mailer.Render(tpl, data, to...)
	if err != nil {
		slog.Error("failed to render email", "template", key, "error", err)
		return
	}
	if err := d.Mailer.Send(ctx, msg); err != nil {
		slog.Warn("failed to send email", "template", key, "recipients", len(to), "error", err)
	}
}

// chat posts to the configured chat rooms when chat notifications are on.
func chat(ctx context.Context, d Deps, msg string) {
	if !d.Store.BoolSetting(ctx, store.SettingChatNotifications) {
		return
	}
	if err := d.Notifier.Notify(ctx, msg); err != nil {
		slog.Warn("failed to send chat notification", "error", err)
	}
}

// liveUpdate is the event payload pushed to poll watchers.
type liveUpdate struct {
	Options []models.PublicOption `json:"options"`
	Results *models.PollResults   `json:"results,omitempty"`
}

// emitPollEvent publishes a poll change with the current counters.
// Results are only attached when they are public.
func emitPollEvent(ctx context.Context, d Deps, eventType string, p *models.Poll) {
	update := liveUpdate{}
	options, err := d.Store.Options(ctx, p.ID)
	if err != nil {
		slog.Warn("failed to load options for event", "poll_id", p.ID, "error", err)
	}
	update.Options = models.PublicOptions(options)
	if p.ResultsPublic {
		if res, err := d.Store.Results(ctx, p.ID); err == nil {
			update.Results = res
		}
	}
	events.Emit(ctx, d.Events, events.New(eventType, p.ID, update))
}
