// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens the database and creates the schema.

# Drivers

Open accepts "postgres" (github.com/lib/pq) or "sqlite" (modernc.org/sqlite):

	conn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)

SQLite connections run with foreign keys enabled and a single open
connection, so ":memory:" databases survive for the life of the pool.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.
The SQL is portable between both drivers: timestamps are written by the
application, never defaulted by the database.

# Tables

  - app_user: accounts, roles, preferences, deletion requests
  - session: login sessions
  - poll: poll metadata, tokens, visibility flags, expiry
  - poll_option: options with optional time range and capacity
  - vote: one row per (option, voter edit token)
  - setting: key/value system settings
  - email_template: editable mail templates

# Relationships

	app_user 1──* session   (CASCADE)
	app_user 1──* poll      (SET NULL)
	poll     1──* poll_option (CASCADE)
	poll_option 1──* vote   (CASCADE)

# Constraint Errors

IsUniqueViolation recognises duplicate-key errors from both drivers, so
callers can map them to 409 Conflict.
*/
package db
