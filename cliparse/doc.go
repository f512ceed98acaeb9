// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

Values are layered, highest precedence first:

 1. CLI flags
 2. Environment variables (a .env file is loaded when present)
 3. YAML config file given by -c or CONFIG_FILE
 4. Defaults from env-default tags

# CLI Flags

	-c          YAML config file
	-p          Server port
	-d          Database URL
	-t          Database type (sqlite or postgres)
	-base-url   Public base URL used in links
	-log-level  debug, info, warn, error

# Environment Variables

	PORT, DATABASE_URL, DATABASE_TYPE, BASE_URL
	LOG_LEVEL, LOG_FILE
	COOKIE_SECURE, SESSION_TTL, IP_HASH_SALT
	REDIS_URL, RATE_LIMIT_PER_MINUTE
	SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD, SMTP_FROM
	MATRIX_HOMESERVER, MATRIX_ACCESS_TOKEN, MATRIX_ROOM_ID
	MATTERMOST_URL, MATTERMOST_TOKEN, MATTERMOST_CHANNEL_ID
	KAFKA_BROKERS (comma separated), KAFKA_TOPIC
	CLAMAV_ADDR
	ADMIN_EMAIL, ADMIN_PASSWORD

Optional integrations stay disabled while their address is empty.

# Validation

ParseFlags returns an error if:

  - DATABASE_URL is missing
  - DATABASE_TYPE is not sqlite or postgres
  - the port is outside 1-65535
*/
package cliparse
