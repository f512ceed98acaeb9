// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the Polly API server.

Polly is a self-hosted polling service. Creators build schedule, survey or
organization polls and share a public link; participants answer each option
with yes, no or maybe. Organization polls cap how many people can sign up
for an option.

# Starting the Server

With no configuration the server uses a local SQLite file:

	DATABASE_URL=polly.db go run .

Or against PostgreSQL with flags:

	go run . -p 3318 -d "postgres://..." -t postgres

A YAML file can be given with -c or CONFIG_FILE. A .env file in the working
directory is loaded automatically.

# Configuration

Common settings:

  - DATABASE_URL (-d): database connection string (required)
  - DATABASE_TYPE (-t): postgres or sqlite (default: sqlite)
  - PORT (-p): server port (default: 3318)
  - BASE_URL: used to build share and admin links
  - ADMIN_EMAIL, ADMIN_PASSWORD: create an admin account on first start

Optional integrations are enabled by setting their address: REDIS_URL for
shared rate limiting, SMTP_HOST for mail, MATRIX_* and MATTERMOST_* for chat
notifications, KAFKA_BROKERS for the event stream and CLAMAV_ADDR for file
scanning.

# Architecture

  - handlers: HTTP request handlers (auth, users, polls, votes, admin)
  - router: chi route definitions
  - middleware: CORS, logging, sessions, rate limits, metrics, JSON helpers
  - store: SQL storage over sqlx
  - events: live updates over websockets and Kafka
  - mailer, notify: email and chat side effects
  - export: CSV, PDF and QR code output
  - testrunner: admin-triggered self checks
  - models, auth, validation, db, cliparse, logger, metrics, ratelimit, clamav

See package documentation for each component.
*/
package main
