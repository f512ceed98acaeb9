// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/danielhkuo/polly/auth"
	"github.com/danielhkuo/polly/models"
)

func (s *Store) CreateSession(ctx context.Context, userID, userAgent string, ttl time.Duration) (*models.Session, error) {
	id, err := auth.GenerateToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &models.Session{
		ID:        id,
		UserID:    userID,
		UserAgent: userAgent,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	_, err = s.exec(ctx, s.db, `
		INSERT INTO session (id, user_id, user_agent, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sess.ID, sess.UserID, sess.UserAgent, sess.ExpiresAt, sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return sess, nil
}

// GetSession returns a live session. Expired sessions are deleted and
// reported as ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	err := s.get(ctx, s.db, &sess, `
		SELECT id, user_id, user_agent, expires_at, created_at FROM session WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}

	if !s.now().Before(sess.ExpiresAt) {
		_ = s.DeleteSession(ctx, id)
		return nil, ErrNotFound
	}
	return &sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.exec(ctx, s.db, `DELETE FROM session WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteUserSessions logs a user out everywhere, optionally keeping one session.
func (s *Store) DeleteUserSessions(ctx context.Context, userID, keepID string) error {
	_, err := s.exec(ctx, s.db, `DELETE FROM session WHERE user_id = ? AND id <> ?`, userID, keepID)
	if err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}

// PurgeExpiredSessions deletes expired sessions and returns how many went.
// Expiry is compared in Go; SQLite stores timestamps as text.
func (s *Store) PurgeExpiredSessions(ctx context.Context) (int, error) {
	var rows []struct {
		ID        string    `db:"id"`
		ExpiresAt time.Time `db:"expires_at"`
	}
	if err := s.sel(ctx, s.db, &rows, `SELECT id, expires_at FROM session`); err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	now := s.now()
	purged := 0
	for _, r := range rows {
		if now.Before(r.ExpiresAt) {
			continue
		}
		if err := s.DeleteSession(ctx, r.ID); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}
