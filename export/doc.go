// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package export renders poll results for download (CSV and PDF) and the
// public link as a QR code PNG.
package export
