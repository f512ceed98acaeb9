// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the Polly API.

# Route Registration

NewRouter builds a chi router with every endpoint:

	r := router.NewRouter(deps, limiter)

Every request passes CORS, request logging and Prometheus metrics. Routes
under /api/v1 also resolve the session cookie into a user.

# Endpoints

Operational:

	GET /health  - Database ping
	GET /metrics - Prometheus metrics
	GET /        - Banner

Accounts (/api/v1/auth, /api/v1/users/me):

	POST /auth/register, /auth/login (rate limited), /auth/logout
	GET  /auth/me
	PATCH /users/me, PUT /users/me/password
	POST|DELETE /users/me/deletion-request, GET /users/me/polls

Polls (/api/v1/polls):

	POST /polls (rate limited)
	/polls/public/{publicToken}: GET, /results, /qr.png, /live, POST /votes
	/polls/admin/{adminToken}: GET, PATCH, DELETE, /options, /finalize, /export.*
	/votes/{editToken}: GET, PUT, DELETE

Staff (/api/v1/admin):

	manager or admin: /polls, /stats
	admin only: /users, /settings, /email-templates, /tests/runs, /clamav/scan
*/
package router
