// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/danielhkuo/polly/clamav"
	"github.com/danielhkuo/polly/events"
	"github.com/danielhkuo/polly/mailer"
	"github.com/danielhkuo/polly/middleware"
	"github.com/danielhkuo/polly/models"
	"github.com/danielhkuo/polly/store"
	"github.com/danielhkuo/polly/testrunner"
)

// MaxUploadBytes bounds files sent to the virus scanner.
const MaxUploadBytes = 25 << 20

// AdminHandler serves /admin. Role checks happen in the router.
type AdminHandler struct {
	d Deps
}

func NewAdminHandler(d Deps) *AdminHandler {
	return &AdminHandler{d: d.withDefaults()}
}

// ListUsers handles GET /admin/users[?pending_deletion=true]
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	pending, _ := strconv.ParseBool(r.URL.Query().Get("pending_deletion"))
	users, err := h.d.Store.ListUsers(r.Context(), pending)
	if err != nil {
		storeError(w, err, "list users")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, users)
}

// lastAdmin reports whether target is the only remaining admin.
func (h *AdminHandler) lastAdmin(r *http.Request, target *models.User) (bool, error) {
	if target.Role != models.RoleAdmin {
		return false, nil
	}
	n, err := h.d.Store.CountAdmins(r.Context())
	return n <= 1, err
}

// UpdateUserRole handles PATCH /admin/users/{id}
func (h *AdminHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.UpdateRoleRequest
	if !decode(w, r, &req) {
		return
	}

	target, err := h.d.Store.GetUser(ctx, chi.URLParam(r, "id"))
	if err != nil {
		storeError(w, err, "load user")
		return
	}
	if req.Role != models.RoleAdmin {
		last, err := h.lastAdmin(r, target)
		if err != nil {
			storeError(w, err, "update role")
			return
		}
		if last {
			middleware.ErrorResponse(w, http.StatusConflict, "Cannot demote the last admin")
			return
		}
	}

	if err := h.d.Store.SetRole(ctx, target.ID, req.Role); err != nil {
		storeError(w, err, "update role")
		return
	}
	target.Role = req.Role

	slog.Info("user role changed", "user_id", target.ID, "role", req.Role,
		"by", middleware.UserFromContext(ctx).ID)
	middleware.JSONResponse(w, http.StatusOK, target)
}

// DeleteUser handles DELETE /admin/users/{id}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := middleware.UserFromContext(ctx)

	target, err := h.d.Store.GetUser(ctx, chi.URLParam(r, "id"))
	if err != nil {
		storeError(w, err, "load user")
		return
	}
	if target.ID == me.ID {
		middleware.ErrorResponse(w, http.StatusConflict, "Cannot delete your own account")
		return
	}
	last, err := h.lastAdmin(r, target)
	if err != nil {
		storeError(w, err, "delete user")
		return
	}
	if last {
		middleware.ErrorResponse(w, http.StatusConflict, "Cannot delete the last admin")
		return
	}

	if err := h.d.Store.DeleteUser(ctx, target.ID); err != nil {
		storeError(w, err, "delete user")
		return
	}
	slog.Info("user deleted", "user_id", target.ID, "by", me.ID)
	w.WriteHeader(http.StatusNoContent)
}

// ListPolls handles GET /admin/polls
func (h *AdminHandler) ListPolls(w http.ResponseWriter, r *http.Request) {
	polls, err := h.d.Store.ListPolls(r.Context())
	if err != nil {
		storeError(w, err, "list polls")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, polls)
}

// DeletePoll handles DELETE /admin/polls/{id}
func (h *AdminHandler) DeletePoll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.d.Store.DeletePoll(r.Context(), id); err != nil {
		storeError(w, err, "delete poll")
		return
	}
	events.Emit(r.Context(), h.d.Events, events.New(events.PollDeleted, id, nil))
	slog.Info("poll deleted by staff", "poll_id", id, "by", middleware.UserFromContext(r.Context()).ID)
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		resp models.StatsResponse
		err  error
	)

	if resp.Users, err = h.d.Store.CountUsers(ctx); err != nil {
		storeError(w, err, "load stats")
		return
	}
	if resp.PollsByType, err = h.d.Store.CountPollsByType(ctx); err != nil {
		storeError(w, err, "load stats")
		return
	}
	for _, n := range resp.PollsByType {
		resp.Polls += n
	}
	if resp.ActivePolls, err = h.d.Store.CountActivePolls(ctx); err != nil {
		storeError(w, err, "load stats")
		return
	}
	if resp.Votes, err = h.d.Store.CountVotes(ctx); err != nil {
		storeError(w, err, "load stats")
		return
	}
	if resp.PendingUsers, err = h.d.Store.CountPendingDeletions(ctx); err != nil {
		storeError(w, err, "load stats")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, resp)
}

// GetSettings handles GET /admin/settings
func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.d.Store.Settings(r.Context())
	if err != nil {
		storeError(w, err, "load settings")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, settings)
}

// UpdateSetting handles PUT /admin/settings/{key}
func (h *AdminHandler) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req models.UpdateSettingRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.d.Store.SetSetting(r.Context(), key, req.Value); err != nil {
		storeError(w, err, "update setting")
		return
	}

	slog.Info("setting changed", "key", key, "by", middleware.UserFromContext(r.Context()).ID)
	middleware.JSONResponse(w, http.StatusOK, models.Setting{Key: key, Value: req.Value})
}

// settingsFile is the YAML document for settings export and import.
type settingsFile struct {
	Settings map[string]string `yaml:"settings"`
}

// ExportSettings handles GET /admin/settings/export
func (h *AdminHandler) ExportSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.d.Store.Settings(r.Context())
	if err != nil {
		storeError(w, err, "export settings")
		return
	}

	doc := settingsFile{Settings: make(map[string]string, len(settings))}
	for _, s := range settings {
		doc.Settings[s.Key] = s.Value
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		slog.Error("failed to encode settings", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to export settings")
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Content-Disposition", `attachment; filename="polly-settings.yaml"`)
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// ImportSettings handles POST /admin/settings/import.
// Every entry is validated before any is written.
func (h *AdminHandler) ImportSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, middleware.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.ErrorResponse(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		middleware.ErrorResponse(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	var doc settingsFile
	if err := yaml.Unmarshal(body, &doc); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid YAML")
		return
	}
	if len(doc.Settings) == 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "No settings to import")
		return
	}
	for key, value := range doc.Settings {
		if err := store.ValidateSetting(key, value); err != nil {
			middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	for key, value := range doc.Settings {
		if err := h.d.Store.SetSetting(ctx, key, value); err != nil {
			storeError(w, err, "import settings")
			return
		}
	}

	slog.Info("settings imported", "count", len(doc.Settings), "by", middleware.UserFromContext(ctx).ID)
	h.GetSettings(w, r)
}

// ListEmailTemplates handles GET /admin/email-templates
func (h *AdminHandler) ListEmailTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.d.Store.EmailTemplates(r.Context())
	if err != nil {
		storeError(w, err, "load email templates")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, templates)
}

// sampleData fills every template field so a broken template fails on save.
var sampleData = mailer.Data{
	Name:       "Alice",
	PollTitle:  "Team lunch",
	PublicURL:  "https://polly.example/p/public",
	AdminURL:   "https://polly.example/admin/admin",
	EditURL:    "https://polly.example/votes/edit",
	OptionText: "Friday",
	Expires:    "in 3 days",
}

// UpdateEmailTemplate handles PUT /admin/email-templates/{key}
func (h *AdminHandler) UpdateEmailTemplate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req models.UpdateEmailTemplateRequest
	if !decode(w, r, &req) {
		return
	}

	candidate := &models.EmailTemplate{Key: key, Subject: req.Subject, Body: req.Body}
	if _, err := mailer.Render(candidate, sampleData, "check@polly.example"); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	tpl, err := h.d.Store.SetEmailTemplate(r.Context(), key, req.Subject, req.Body)
	if err != nil {
		storeError(w, err, "update email template")
		return
	}
	slog.Info("email template changed", "key", key)
	middleware.JSONResponse(w, http.StatusOK, tpl)
}

// StartTestRun handles POST /admin/tests/runs
func (h *AdminHandler) StartTestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.d.Runner.Start(r.Context())
	if errors.Is(err, testrunner.ErrRunInProgress) {
		middleware.ErrorResponse(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to start test run", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to start test run")
		return
	}
	middleware.JSONResponse(w, http.StatusAccepted, run)
}

// LatestTestRun handles GET /admin/tests/runs/latest
func (h *AdminHandler) LatestTestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.d.Runner.Latest()
	if err != nil {
		middleware.ErrorResponse(w, http.StatusNotFound, "No test run yet")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, run)
}

// GetTestRun handles GET /admin/tests/runs/{id}
func (h *AdminHandler) GetTestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.d.Runner.Get(chi.URLParam(r, "id"))
	if err != nil {
		middleware.ErrorResponse(w, http.StatusNotFound, "Test run not found")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, run)
}

// ScanFile handles POST /admin/clamav/scan (multipart field "file")
func (h *AdminHandler) ScanFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.d.Store.BoolSetting(ctx, store.SettingClamAVEnabled) {
		middleware.ErrorResponse(w, http.StatusConflict, "Virus scanning is disabled")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.ErrorResponse(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		middleware.ErrorResponse(w, http.StatusBadRequest, "Multipart field \"file\" is required")
		return
	}
	defer file.Close()

	res, err := h.d.ClamAV.Scan(ctx, file)
	if errors.Is(err, clamav.ErrUnavailable) {
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Virus scanner is not configured")
		return
	}
	if err != nil {
		slog.Error("failed to scan file", "file", header.Filename, "error", err)
		middleware.ErrorResponse(w, http.StatusBadGateway, "Virus scan failed")
		return
	}

	slog.Info("file scanned", "file", header.Filename, "size", header.Size, "clean", res.Clean)
	middleware.JSONResponse(w, http.StatusOK, models.ScanResponse{Clean: res.Clean, Signature: res.Signature})
}
