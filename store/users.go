// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/danielhkuo/polly/auth"
	"github.com/danielhkuo/polly/models"
)

const userColumns = `id, email, name, password_hash, role, theme, language,
	deletion_requested_at, created_at, updated_at`

// CreateUser inserts u, filling ID, defaults and timestamps.
// Emails are stored lower-case; a taken email returns ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	return s.insertUser(ctx, s.db, u)
}

// RegisterUser creates a self-registered account. While no admin exists the
// account becomes one; the check and the insert share a transaction that
// holds the user table lock on PostgreSQL, so only one racer wins.
func (s *Store) RegisterUser(ctx context.Context, u *models.User) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if s.db.DriverName() == "postgres" {
			if _, err := tx.ExecContext(ctx, `LOCK TABLE app_user IN SHARE ROW EXCLUSIVE MODE`); err != nil {
				return fmt.Errorf("failed to lock users: %w", err)
			}
		}
		var admins int
		if err := s.get(ctx, tx, &admins, `SELECT COUNT(*) FROM app_user WHERE role = ?`, models.RoleAdmin); err != nil {
			return fmt.Errorf("failed to count admins: %w", err)
		}
		u.Role = models.RoleUser
		if admins == 0 {
			u.Role = models.RoleAdmin
		}
		return s.insertUser(ctx, tx, u)
	})
}

func (s *Store) insertUser(ctx context.Context, e sqlx.ExecerContext, u *models.User) error {
	now := s.now()
	u.ID = auth.GenerateID()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	if u.Theme == "" {
		u.Theme = models.ThemeSystem
	}
	if u.Language == "" {
		u.Language = models.LanguageEN
	}
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.exec(ctx, e, `
		INSERT INTO app_user (id, email, name, password_hash, role, theme, language, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.Theme, u.Language, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.get(ctx, s.db, &u, `SELECT `+userColumns+` FROM app_user WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.get(ctx, s.db, &u, `SELECT `+userColumns+` FROM app_user WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns all users ordered by creation, or only those with a
// pending deletion request.
func (s *Store) ListUsers(ctx context.Context, pendingDeletion bool) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM app_user`
	if pendingDeletion {
		query += ` WHERE deletion_requested_at IS NOT NULL`
	}

	users := []models.User{}
	if err := s.sel(ctx, s.db, &users, query); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// UpdateProfile applies the non-nil fields and returns the updated user.
func (s *Store) UpdateProfile(ctx context.Context, id string, name, theme, language *string) (*models.User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		u.Name = *name
	}
	if theme != nil {
		u.Theme = *theme
	}
	if language != nil {
		u.Language = *language
	}
	u.UpdatedAt = s.now()

	_, err = s.exec(ctx, s.db, `
		UPDATE app_user SET name = ?, theme = ?, language = ?, updated_at = ? WHERE id = ?
	`, u.Name, u.Theme, u.Language, u.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return u, nil
}

func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.updateUser(ctx, id, `password_hash = ?`, passwordHash)
}

func (s *Store) SetRole(ctx context.Context, id, role string) error {
	return s.updateUser(ctx, id, `role = ?`, role)
}

// SetDeletionRequested records (at != nil) or cancels (at == nil) a
// deletion request.
func (s *Store) SetDeletionRequested(ctx context.Context, id string, at *time.Time) error {
	return s.updateUser(ctx, id, `deletion_requested_at = ?`, utc(at))
}

func (s *Store) updateUser(ctx context.Context, id, set string, value interface{}) error {
	n, err := s.exec(ctx, s.db, `UPDATE app_user SET `+set+`, updated_at = ? WHERE id = ?`, value, s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes the user; sessions cascade, owned polls and votes
// keep existing without an owner.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	n, err := s.exec(ctx, s.db, `DELETE FROM app_user WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.get(ctx, s.db, &n, `SELECT COUNT(*) FROM app_user`)
	return n, err
}

func (s *Store) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := s.get(ctx, s.db, &n, `SELECT COUNT(*) FROM app_user WHERE role = ?`, models.RoleAdmin)
	return n, err
}

func (s *Store) CountPendingDeletions(ctx context.Context) (int, error) {
	var n int
	err := s.get(ctx, s.db, &n, `SELECT COUNT(*) FROM app_user WHERE deletion_requested_at IS NOT NULL`)
	return n, err
}
