// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package notify

import (
	"context"
	"errors"
)

// Notifier posts a plain-text message to a chat room.
type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// Multi sends every message to all notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops messages.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }
