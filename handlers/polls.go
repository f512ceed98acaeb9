// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/danielhkuo/polly/auth"
	"github.com/danielhkuo/polly/events"
	"github.com/danielhkuo/polly/export"
	"github.com/danielhkuo/polly/mailer"
	"github.com/danielhkuo/polly/middleware"
	"github.com/danielhkuo/polly/models"
	"github.com/danielhkuo/polly/store"
)

const qrSize = 256

type PollHandler struct {
	d Deps
}

func NewPollHandler(d Deps) *PollHandler {
	return &PollHandler{d: d.withDefaults()}
}

// buildOption checks an option against the rules of its poll type.
func buildOption(pollType string, in models.OptionInput) (models.PollOption, error) {
	o := models.PollOption{Text: strings.TrimSpace(in.Text), MaxCapacity: in.MaxCapacity}

	if pollType == models.PollTypeSchedule {
		if in.StartTime == nil || in.EndTime == nil {
			return o, errors.New("schedule options need start_time and end_time")
		}
		if !in.StartTime.Before(*in.EndTime) {
			return o, errors.New("start_time must be before end_time")
		}
		o.StartTime, o.EndTime = in.StartTime, in.EndTime
	} else if o.Text == "" {
		return o, errors.New("option text is required")
	}

	if in.MaxCapacity != nil && pollType != models.PollTypeOrganization {
		return o, errors.New("max_capacity is only allowed on organization polls")
	}
	return o, nil
}

// CreatePoll handles POST /polls
func (h *PollHandler) CreatePoll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.UserFromContext(ctx)
	if user == nil && !h.d.Store.BoolSetting(ctx, store.SettingAnonymousPollCreation) {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Login required to create polls")
		return
	}

	var req models.CreatePollRequest
	if !decode(w, r, &req) {
		return
	}

	if limit := h.d.Store.IntSetting(ctx, store.SettingMaxOptionsPerPoll); len(req.Options) > limit {
		middleware.ErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("A poll may have at most %d options", limit))
		return
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "expires_at must be in the future")
		return
	}

	options := make([]models.PollOption, 0, len(req.Options))
	for i, in := range req.Options {
		o, err := buildOption(req.Type, in)
		if err != nil {
			middleware.ErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("option %d: %v", i+1, err))
			return
		}
		options = append(options, o)
	}

	p := &models.Poll{
		Type:          req.Type,
		Title:         strings.TrimSpace(req.Title),
		Description:   req.Description,
		CreatorName:   strings.TrimSpace(req.CreatorName),
		ResultsPublic: req.ResultsPublic,
		AllowMaybe:    req.AllowMaybe,
		AllowMultiple: req.AllowMultiple,
		ExpiresAt:     req.ExpiresAt,
	}
	email := strings.ToLower(strings.TrimSpace(req.CreatorEmail))
	if user != nil {
		p.OwnerID = &user.ID
		if email == "" {
			email = user.Email
		}
	}
	if email != "" {
		p.CreatorEmail = &email
	}

	if err := h.d.Store.CreatePoll(ctx, p, options); err != nil {
		storeError(w, err, "create poll")
		return
	}

	h.d.Metrics.PollsCreated.WithLabelValues(p.Type).Inc()
	events.Emit(ctx, h.d.Events, events.New(events.PollCreated, p.ID, nil))
	slog.Info("poll created", "poll_id", p.ID, "type", p.Type, "options", len(options))

	resp := models.CreatePollResponse{
		Poll:        *p,
		Options:     options,
		AdminToken:  p.AdminToken,
		PublicToken: p.PublicToken,
		AdminURL:    adminURL(h.d.Config, p),
		PublicURL:   publicURL(h.d.Config, p),
	}
	if email != "" {
		sendMail(ctx, h.d, store.TemplatePollCreated, mailer.Data{
			Name:      p.CreatorName,
			PollTitle: p.Title,
			PublicURL: resp.PublicURL,
			AdminURL:  resp.AdminURL,
			Expires:   mailer.Expiry(p.ExpiresAt),
		}, email)
	}

	middleware.JSONResponse(w, http.StatusCreated, resp)
}

// publicPoll resolves the {publicToken} URL parameter.
func (h *PollHandler) publicPoll(w http.ResponseWriter, r *http.Request) (*models.Poll, bool) {
	return lookupPoll(w, r, chi.URLParam(r, "publicToken"), h.d.Store.GetPollByPublicToken)
}

// adminPoll resolves the {adminToken} URL parameter.
func (h *PollHandler) adminPoll(w http.ResponseWriter, r *http.Request) (*models.Poll, bool) {
	return lookupPoll(w, r, chi.URLParam(r, "adminToken"), h.d.Store.GetPollByAdminToken)
}

type pollLookup func(ctx context.Context, token string) (*models.Poll, error)

func lookupPoll(w http.ResponseWriter, r *http.Request, token string, find pollLookup) (*models.Poll, bool) {
	if err := auth.ValidateToken(token); err != nil {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return nil, false
	}
	p, err := find(r.Context(), token)
	if errors.Is(err, store.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return nil, false
	}
	if err != nil {
		storeError(w, err, "load poll")
		return nil, false
	}
	return p, true
}

// GetPublicPoll handles GET /polls/public/{publicToken}
func (h *PollHandler) GetPublicPoll(w http.ResponseWriter, r *http.Request) {
	p, ok := h.publicPoll(w, r)
	if !ok {
		return
	}

	options, err := h.d.Store.Options(r.Context(), p.ID)
	if err != nil {
		storeError(w, err, "load options")
		return
	}

	resp := models.PublicPollResponse{Poll: *p, Options: models.PublicOptions(options)}
	if p.ResultsPublic {
		res, err := h.d.Store.Results(r.Context(), p.ID)
		if err != nil {
			storeError(w, err, "load results")
			return
		}
		resp.Results = res
	}
	middleware.JSONResponse(w, http.StatusOK, resp)
}

// GetResults handles GET /polls/public/{publicToken}/results
func (h *PollHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	p, ok := h.publicPoll(w, r)
	if !ok {
		return
	}
	if !p.ResultsPublic {
		middleware.ErrorResponse(w, http.StatusForbidden, "Results are private")
		return
	}

	res, err := h.d.Store.Results(r.Context(), p.ID)
	if err != nil {
		storeError(w, err, "load results")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, res)
}

// QRCode handles GET /polls/public/{publicToken}/qr.png
func (h *PollHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	p, ok := h.publicPoll(w, r)
	if !ok {
		return
	}

	png, err := export.QRCode(publicURL(h.d.Config, p), qrSize)
	if err != nil {
		slog.Error("failed to render qr code", "poll_id", p.ID, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to render QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// Live handles GET /polls/public/{publicToken}/live (websocket)
func (h *PollHandler) Live(w http.ResponseWriter, r *http.Request) {
	p, ok := h.publicPoll(w, r)
	if !ok {
		return
	}
	if h.d.Hub == nil {
		middleware.ErrorResponse(w, http.StatusNotFound, "Live updates are not enabled")
		return
	}
	if err := h.d.Hub.Serve(w, r, p.ID); err != nil {
		slog.Warn("live connection failed", "poll_id", p.ID, "error", err)
	}
}

// GetAdminPoll handles GET /polls/admin/{adminToken}
func (h *PollHandler) GetAdminPoll(w http.ResponseWriter, r *http.Request) {
	p, ok := h.adminPoll(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	options, err := h.d.Store.Options(ctx, p.ID)
	if err != nil {
		storeError(w, err, "load options")
		return
	}
	res, err := h.d.Store.Results(ctx, p.ID)
	if err != nil {
		storeError(w, err, "load results")
		return
	}
	votes, err := h.d.Store.VotesForPoll(ctx, p.ID)
	if err != nil {
		storeError(w, err, "load votes")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.AdminPollResponse{
		Poll:       *p,
		Options:    options,
		Results:    *res,
		Votes:      votes,
		PublicURL:  publicURL(h.d.Config, p),
		AdminToken: p.AdminToken,
	})
}

// UpdatePoll handles PATCH /polls/admin/{adminToken}
func (h *PollHandler) UpdatePoll(w http.ResponseWriter, r *http.Request) {
	p, ok := h.adminPoll(w, r)
	if !ok {
		return
	}

	var req models.UpdatePollRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ClearExpiry && req.ExpiresAt != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "expires_at and clear_expiry are mutually exclusive")
		return
	}
	if req.IsActive != nil && *req.IsActive && p.FinalizedOptionID != nil {
		middleware.ErrorResponse(w, http.StatusConflict, "Poll is finalized")
		return
	}

	if req.Title != nil {
		p.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.ResultsPublic != nil {
		p.ResultsPublic = *req.ResultsPublic
	}
	if req.AllowMaybe != nil {
		p.AllowMaybe = *req.AllowMaybe
	}
	if req.AllowMultiple != nil {
		p.AllowMultiple = *req.AllowMultiple
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if req.ExpiresAt != nil {
		p.ExpiresAt = req.ExpiresAt
	}
	if req.ClearExpiry {
		p.ExpiresAt = nil
	}

	if err := h.d.Store.UpdatePoll(r.Context(), p); err != nil {
		storeError(w, err, "update poll")
		return
	}

	emitPollEvent(r.Context(), h.d, events.PollUpdated, p)
	slog.Info("poll updated", "poll_id", p.ID)
	middleware.JSONResponse(w, http.StatusOK, p)
}

// DeletePoll handles DELETE /polls/admin/{adminToken}
func (h *PollHandler) DeletePoll(w http.ResponseWriter, r *http.Request) {
	p, ok := h.adminPoll(w, r)
	if !ok {
		return
	}
	if err := h.d.Store.DeletePoll(r.Context(), p.ID); err != nil {
		storeError(w, err, "delete poll")
		return
	}

	events.Emit(r.Context(), h.d.Events, events.New(events.PollDeleted, p.ID, nil))
	slog.Info("poll deleted", "poll_id", p.ID)
	w.WriteHeader(http.StatusNoContent)
}

// AddOption handles POST /polls/admin/{adminToken}/options
func (h *PollHandler) AddOption(w http.ResponseWriter, r *http.Request) {
	p, ok := h.adminPoll(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var req models.OptionInput
	if !decode(w, r, &req) {
		return
	}
	if p.FinalizedOptionID != nil {
		middleware.ErrorResponse(w, http.StatusConflict, "Poll is finalized")
		return
	}

	o, err := buildOption(p.Type, req)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := h.d.Store.Options(ctx, p.ID)
	if err != nil {
		storeError(w, err, "add option")
		return
	}
	if limit := h.d.Store.IntSetting(ctx, store.SettingMaxOptionsPerPoll); len(existing) >= limit {
		middleware.ErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("A poll may have at most %d options", limit))
		return
	}

	if err := h.d.Store.AddOption(ctx, p.ID, &o); err != nil {
		storeError(w, err, "add option")
		return
	}

	emitPollEvent(ctx, h.d, events.PollUpdated, p)
	slog.Info("option added", "poll_id", p.ID, "option_id", o.ID)
	middleware.JSONResponse(w, http.StatusCreated, o)
}

// DeleteOption handles DELETE /polls/admin/{adminToken}/options/{optionId}
func (h *PollHandler) DeleteOption(w http.ResponseWriter, r *http.Request) {
	p, ok := h.adminPoll(w, r)
	if !ok {
		return
	}
	optionID := chi.URLParam(r, "optionId")

	if err := h.d.Store.DeleteOption(r.Context(), p.ID, optionID); err != nil {
		storeError(w, err, "delete option")
		return
	}

	emitPollEvent(r.Context(), h.d, events.PollUpdated, p)
	slog.Info("option deleted", "poll_id", p.ID, "option_id", optionID)
	w.WriteHeader(http.StatusNoContent)
}

// Finalize handles POST /polls/admin/{adminToken}/finalize
func (h *PollHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	p, ok := h.adminPoll(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var req models.FinalizePollRequest
	if !decode(w, r, &req) {
		return
	}

	finalized, err := h.d.Store.FinalizePoll(ctx, p.ID, req.OptionID)
	if err != nil {
		storeError(w, err, "finalize poll")
		return
	}

	options, err := h.d.Store.Options(ctx, p.ID)
	if err != nil {
		storeError(w, err, "load options")
		return
	}
	label := req.OptionID
	for _, o := range options {
		if o.ID == req.OptionID {
			label = export.OptionLabel(o)
		}
	}

	link := publicURL(h.d.Config, finalized)
	chat(ctx, h.d, fmt.Sprintf("Poll %q has been finalized: %s\n%s", finalized.Title, label, link))

	emails, err := h.d.Store.VoterEmails(ctx, p.ID)
	if err != nil {
		slog.Warn("failed to load voter emails", "poll_id", p.ID, "error", err)
	}
	data := mailer.Data{PollTitle: finalized.Title, PublicURL: link, OptionText: label}
	// One message per voter so addresses stay private
	for _, email := range emails {
		sendMail(ctx, h.d, store.TemplatePollFinalized, data, email)
	}

	emitPollEvent(ctx, h.d, events.PollFinalized, finalized)
	slog.Info("poll finalized", "poll_id", p.ID, "option_id", req.OptionID)
	middleware.JSONResponse(w, http.StatusOK, finalized)
}

// ExportCSV handles GET /polls/admin/{adminToken}/export.csv
func (h *PollHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	p, ok := h.adminPoll(w, r)
	if !ok {
		return
	}
	options, res, ok := h.exportData(w, r, p)
	if !ok {
		return
	}
	votes, err := h.d.Store.VotesForPoll(r.Context(), p.ID)
	if err != nil {
		storeError(w, err, "load votes")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="poll-`+p.ID+`.csv"`)
	if err := export.WriteCSV(w, options, res, votes); err != nil {
		slog.Error("failed to write csv export", "poll_id", p.ID, "error", err)
	}
}

// ExportPDF handles GET /polls/admin/{adminToken}/export.pdf
func (h *PollHandler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	p, ok := h.adminPoll(w, r)
	if !ok {
		return
	}
	options, res, ok := h.exportData(w, r, p)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="poll-`+p.ID+`.pdf"`)
	if err := export.WritePDF(w, p, options, res); err != nil {
		slog.Error("failed to write pdf export", "poll_id", p.ID, "error", err)
	}
}

func (h *PollHandler) exportData(w http.ResponseWriter, r *http.Request, p *models.Poll) ([]models.PollOption, *models.PollResults, bool) {
	options, err := h.d.Store.Options(r.Context(), p.ID)
	if err != nil {
		storeError(w, err, "load options")
		return nil, nil, false
	}
	res, err := h.d.Store.Results(r.Context(), p.ID)
	if err != nil {
		storeError(w, err, "load results")
		return nil, nil, false
	}
	return options, res, true
}
