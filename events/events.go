// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Event types
const (
	PollCreated   = "poll.created"
	PollUpdated   = "poll.updated"
	PollFinalized = "poll.finalized"
	PollDeleted   = "poll.deleted"
	VoteSubmitted = "vote.submitted"
	VoteUpdated   = "vote.updated"
	VoteWithdrawn = "vote.withdrawn"
)

// Event is a domain change worth telling other systems and live viewers about.
type Event struct {
	Type     string      `json:"type"`
	PollID   string      `json:"poll_id"`
	OptionID string      `json:"option_id,omitempty"`
	At       time.Time   `json:"at"`
	Payload  interface{} `json:"payload,omitempty"`
}

// New stamps an event with the current time.
func New(eventType, pollID string, payload interface{}) Event {
	return Event{Type: eventType, PollID: pollID, At: time.Now().UTC(), Payload: payload}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Emit publishes e and logs failures. Events are best effort and never
// fail the request that caused them.
func Emit(ctx context.Context, p Publisher, e Event) {
	if err := p.Publish(ctx, e); err != nil {
		slog.Warn("failed to publish event", "type", e.Type, "poll_id", e.PollID, "error", err)
	}
}

// Multi fans an event out to several publishers.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
