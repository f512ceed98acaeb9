// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/polly/auth"
	"github.com/danielhkuo/polly/mailer"
	"github.com/danielhkuo/polly/middleware"
	"github.com/danielhkuo/polly/models"
	"github.com/danielhkuo/polly/store"
)

// UserHandler serves the logged-in user's own profile. Every route sits
// behind middleware.RequireUser.
type UserHandler struct {
	d Deps
}

func NewUserHandler(d Deps) *UserHandler {
	return &UserHandler{d: d.withDefaults()}
}

// UpdateMe handles PATCH /users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	var req models.UpdateProfileRequest
	if !decode(w, r, &req) {
		return
	}

	updated, err := h.d.Store.UpdateProfile(r.Context(), user.ID, req.Name, req.Theme, req.Language)
	if err != nil {
		storeError(w, err, "update profile")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, updated)
}

// ChangePassword handles PUT /users/me/password.
// Other sessions of the user are ended; the current one stays.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.UserFromContext(ctx)

	var req models.ChangePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.CurrentPassword); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Current password is incorrect")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to change password")
		return
	}
	if err := h.d.Store.UpdatePassword(ctx, user.ID, hash); err != nil {
		storeError(w, err, "change password")
		return
	}

	keep := ""
	if sess := middleware.SessionFromContext(ctx); sess != nil {
		keep = sess.ID
	}
	if err := h.d.Store.DeleteUserSessions(ctx, user.ID, keep); err != nil {
		storeError(w, err, "change password")
		return
	}

	slog.Info("password changed", "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}

// RequestDeletion handles POST /users/me/deletion-request
func (h *UserHandler) RequestDeletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.UserFromContext(ctx)

	now := time.Now().UTC()
	if err := h.d.Store.SetDeletionRequested(ctx, user.ID, &now); err != nil {
		storeError(w, err, "request deletion")
		return
	}
	user.DeletionRequestedAt = &now

	sendMail(ctx, h.d, store.TemplateDeletionRequested, mailer.Data{Name: user.Name}, user.Email)
	chat(ctx, h.d, "Account deletion requested by "+user.Email)

	slog.Info("account deletion requested", "user_id", user.ID)
	middleware.JSONResponse(w, http.StatusAccepted, user)
}

// CancelDeletion handles DELETE /users/me/deletion-request
func (h *UserHandler) CancelDeletion(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if err := h.d.Store.SetDeletionRequested(r.Context(), user.ID, nil); err != nil {
		storeError(w, err, "cancel deletion")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedPoll carries the links only the poll's owner may see.
type ownedPoll struct {
	models.Poll
	AdminToken string `json:"admin_token"`
	AdminURL   string `json:"admin_url"`
	PublicURL  string `json:"public_url"`
}

// MyPolls handles GET /users/me/polls
func (h *UserHandler) MyPolls(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	polls, err := h.d.Store.ListPollsByOwner(r.Context(), user.ID)
	if err != nil {
		storeError(w, err, "list polls")
		return
	}

	owned := make([]ownedPoll, 0, len(polls))
	for i := range polls {
		p := &polls[i]
		owned = append(owned, ownedPoll{
			Poll:       *p,
			AdminToken: p.AdminToken,
			AdminURL:   adminURL(h.d.Config, p),
			PublicURL:  publicURL(h.d.Config, p),
		})
	}
	middleware.JSONResponse(w, http.StatusOK, owned)
}
