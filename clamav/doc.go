// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package clamav wraps github.com/dutchcoders/go-clamd with context
// deadlines: PING for health checks and INSTREAM for scanning uploads.
package clamav
