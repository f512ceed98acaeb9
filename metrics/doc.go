// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package metrics defines the Prometheus collectors for HTTP traffic, votes
// and poll creation, and serves them on /metrics.
package metrics
