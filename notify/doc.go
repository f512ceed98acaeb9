// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package notify posts short messages to team chat when a poll is finalized
// or an organization slot fills up. Matrix and Mattermost are supported;
// Multi sends to both and Nop is used when neither is configured.
package notify
