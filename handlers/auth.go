// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/polly/auth"
	"github.com/danielhkuo/polly/middleware"
	"github.com/danielhkuo/polly/models"
	"github.com/danielhkuo/polly/store"
)

type AuthHandler struct {
	d Deps
}

func NewAuthHandler(d Deps) *AuthHandler {
	return &AuthHandler{d: d.withDefaults()}
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.d.Store.BoolSetting(ctx, store.SettingRegistrationEnabled) {
		middleware.ErrorResponse(w, http.StatusForbidden, "Registration is disabled")
		return
	}

	var req models.RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	// Without any admin the first account to register becomes one
	user := &models.User{Email: req.Email, Name: req.Name, PasswordHash: hash}
	if err := h.d.Store.RegisterUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			middleware.ErrorResponse(w, http.StatusConflict, "Email already registered")
			return
		}
		storeError(w, err, "register")
		return
	}

	if !h.startSession(w, r, user) {
		return
	}
	slog.Info("user registered", "user_id", user.ID, "role", user.Role)
	middleware.JSONResponse(w, http.StatusCreated, user)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.d.Store.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err != nil {
		storeError(w, err, "log in")
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	if !h.startSession(w, r, user) {
		return
	}
	slog.Info("user logged in", "user_id", user.ID)
	middleware.JSONResponse(w, http.StatusOK, user)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, user *models.User) bool {
	sess, err := h.d.Store.CreateSession(r.Context(), user.ID, r.UserAgent(), h.d.Config.SessionTTL)
	if err != nil {
		storeError(w, err, "create session")
		return false
	}
	middleware.SetSessionCookie(w, sess, h.d.Config.CookieSecure)
	return true
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sess := middleware.SessionFromContext(r.Context()); sess != nil {
		if err := h.d.Store.DeleteSession(r.Context(), sess.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			storeError(w, err, "log out")
			return
		}
	}
	middleware.ClearSessionCookie(w, h.d.Config.CookieSecure)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	middleware.JSONResponse(w, http.StatusOK, middleware.UserFromContext(r.Context()))
}
