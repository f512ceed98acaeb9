// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

// Matrix sends m.text messages to a room as the access token's user.
type Matrix struct {
	client *mautrix.Client
	roomID id.RoomID
}

func NewMatrix(homeserver, token, roomID string) (*Matrix, error) {
	client, err := mautrix.NewClient(strings.TrimRight(homeserver, "/"), "", token)
	if err != nil {
		return nil, fmt.Errorf("failed to create matrix client: %w", err)
	}
	client.Client = &http.Client{Timeout: 10 * time.Second}
	return &Matrix{client: client, roomID: id.RoomID(roomID)}, nil
}

func (m *Matrix) Notify(ctx context.Context, msg string) error {
	if _, err := m.client.SendText(ctx, m.roomID, msg); err != nil {
		return fmt.Errorf("failed to send matrix message: %w", err)
	}
	return nil
}
