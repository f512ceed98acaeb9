// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package ratelimit throttles login, registration, poll creation and vote
// submission per client. A Redis fixed window is used when REDIS_URL is set,
// otherwise an in-memory token bucket per key.
package ratelimit
