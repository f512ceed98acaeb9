// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mattermost/mattermost-server/v6/model"
)

// Mattermost posts to one channel as a bot user.
type Mattermost struct {
	client    *model.Client4
	channelID string
}

func NewMattermost(url, token, channelID string) *Mattermost {
	client := model.NewAPIv4Client(url)
	client.SetToken(token)
	return &Mattermost{client: client, channelID: channelID}
}

func (m *Mattermost) Notify(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	post := &model.Post{
		ChannelId: m.channelID,
		Message:   msg,
	}
	_, resp, err := m.client.CreatePost(post)
	if err != nil {
		return fmt.Errorf("failed to post to mattermost: %w", err)
	}
	slog.Debug("mattermost message sent", "channel_id", m.channelID, "status_code", resp.StatusCode)
	return nil
}
