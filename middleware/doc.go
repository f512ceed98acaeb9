// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging and Metrics

	r.Use(middleware.WithLogging)
	r.Use(middleware.Metrics(m))

WithLogging logs method, path, status and duration_ms for every request.
Metrics records request counts and latency by chi route pattern.

# Sessions and Roles

Sessions resolves the polly_session cookie into a user on the request
context; anonymous requests pass through. RequireUser answers 401 without a
user, RequireRole additionally answers 403 when the user has none of the
listed roles:

	r.With(middleware.RequireRole(models.RoleAdmin)).Get("/admin/users", h.ListUsers)
	user := middleware.UserFromContext(r.Context())

# Rate Limiting

	r.With(middleware.RateLimit(limiter, "login", cfg.IPHashSalt)).Post("/auth/login", h.Login)

Keys are the scope plus a salted hash of the client IP. Exceeding the limit
answers 429 with Retry-After; limiter errors let the request through.

# JSON Helpers

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")

ParseJSONBody rejects unknown fields and bodies over 1 MiB; BodyError maps
its error to 400 or 413.

# Client IP Extraction

GetClientIP honours X-Forwarded-For and X-Real-IP before RemoteAddr.
*/
package middleware
