// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package events publishes domain events such as poll.created and
vote.submitted.

KafkaPublisher writes them to a topic keyed by poll ID. Hub pushes them to
browsers watching a poll over a websocket. Multi combines publishers and Nop
discards everything. Publishing is best effort: handlers call Emit, which
logs failures instead of returning them.
*/
package events
