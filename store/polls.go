// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/danielhkuo/polly/auth"
	"github.com/danielhkuo/polly/models"
)

const pollColumns = `id, type, title, description, creator_name, creator_email, owner_id,
	admin_token, public_token, is_active, results_public, allow_maybe, allow_multiple,
	expires_at, finalized_option_id, created_at, updated_at`

const optionColumns = `id, poll_id, text, start_time, end_time, max_capacity, booked_count, position`

// CreatePoll inserts the poll and its options in one transaction.
// IDs, both tokens, positions and timestamps are assigned here.
func (s *Store) CreatePoll(ctx context.Context, p *models.Poll, options []models.PollOption) error {
	adminToken, err := auth.GenerateToken()
	if err != nil {
		return err
	}
	publicToken, err := auth.GenerateToken()
	if err != nil {
		return err
	}

	now := s.now()
	p.ID = auth.GenerateID()
	p.AdminToken = adminToken
	p.PublicToken = publicToken
	p.IsActive = true
	p.ExpiresAt = utc(p.ExpiresAt)
	p.FinalizedOptionID = nil
	p.CreatedAt = now
	p.UpdatedAt = now

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := s.exec(ctx, tx, `
			INSERT INTO poll (id, type, title, description, creator_name, creator_email, owner_id,
				admin_token, public_token, is_active, results_public, allow_maybe, allow_multiple,
				expires_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.Type, p.Title, p.Description, p.CreatorName, p.CreatorEmail, p.OwnerID,
			p.AdminToken, p.PublicToken, p.IsActive, p.ResultsPublic, p.AllowMaybe, p.AllowMultiple,
			p.ExpiresAt, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert poll: %w", err)
		}

		for i := range options {
			options[i].PollID = p.ID
			options[i].Position = i
			if err := s.insertOption(ctx, tx, &options[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) insertOption(ctx context.Context, e sqlx.ExecerContext, o *models.PollOption) error {
	o.ID = auth.GenerateID()
	o.BookedCount = 0
	o.StartTime = utc(o.StartTime)
	o.EndTime = utc(o.EndTime)

	_, err := s.exec(ctx, e, `
		INSERT INTO poll_option (id, poll_id, text, start_time, end_time, max_capacity, booked_count, position)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`, o.ID, o.PollID, o.Text, o.StartTime, o.EndTime, o.MaxCapacity, o.Position)
	if err != nil {
		return fmt.Errorf("failed to insert option: %w", err)
	}
	return nil
}

func (s *Store) GetPoll(ctx context.Context, id string) (*models.Poll, error) {
	return s.pollWhere(ctx, s.db, `id = ?`, id)
}

func (s *Store) GetPollByAdminToken(ctx context.Context, token string) (*models.Poll, error) {
	return s.pollWhere(ctx, s.db, `admin_token = ?`, token)
}

func (s *Store) GetPollByPublicToken(ctx context.Context, token string) (*models.Poll, error) {
	return s.pollWhere(ctx, s.db, `public_token = ?`, token)
}

func (s *Store) pollWhere(ctx context.Context, q sqlx.QueryerContext, cond string, arg interface{}) (*models.Poll, error) {
	var p models.Poll
	if err := s.get(ctx, q, &p, `SELECT `+pollColumns+` FROM poll WHERE `+cond, arg); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPolls returns every poll, newest first.
func (s *Store) ListPolls(ctx context.Context) ([]models.Poll, error) {
	polls := []models.Poll{}
	if err := s.sel(ctx, s.db, &polls, `SELECT `+pollColumns+` FROM poll ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("failed to list polls: %w", err)
	}
	return polls, nil
}

// ListPollsByOwner returns the polls created by a logged-in user, newest first.
func (s *Store) ListPollsByOwner(ctx context.Context, ownerID string) ([]models.Poll, error) {
	polls := []models.Poll{}
	err := s.sel(ctx, s.db, &polls, `SELECT `+pollColumns+` FROM poll WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list polls: %w", err)
	}
	return polls, nil
}

// UpdatePoll writes the mutable fields of p.
func (s *Store) UpdatePoll(ctx context.Context, p *models.Poll) error {
	p.UpdatedAt = s.now()
	p.ExpiresAt = utc(p.ExpiresAt)

	n, err := s.exec(ctx, s.db, `
		UPDATE poll
		SET title = ?, description = ?, is_active = ?, results_public = ?, allow_maybe = ?,
			allow_multiple = ?, expires_at = ?, updated_at = ?
		WHERE id = ?
	`, p.Title, p.Description, p.IsActive, p.ResultsPublic, p.AllowMaybe,
		p.AllowMultiple, p.ExpiresAt, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update poll: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePoll removes the poll; options and votes cascade.
func (s *Store) DeletePoll(ctx context.Context, id string) error {
	n, err := s.exec(ctx, s.db, `DELETE FROM poll WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete poll: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Options returns a poll's options in display order.
func (s *Store) Options(ctx context.Context, pollID string) ([]models.PollOption, error) {
	return s.options(ctx, s.db, pollID)
}

func (s *Store) options(ctx context.Context, q sqlx.QueryerContext, pollID string) ([]models.PollOption, error) {
	options := []models.PollOption{}
	err := s.sel(ctx, q, &options, `SELECT `+optionColumns+` FROM poll_option WHERE poll_id = ? ORDER BY position, id`, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to query options: %w", err)
	}
	return options, nil
}

// AddOption appends an option to the end of the poll.
func (s *Store) AddOption(ctx context.Context, pollID string, o *models.PollOption) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var next int
		err := s.get(ctx, tx, &next, `SELECT COALESCE(MAX(position), -1) + 1 FROM poll_option WHERE poll_id = ?`, pollID)
		if err != nil {
			return fmt.Errorf("failed to query option position: %w", err)
		}
		o.PollID = pollID
		o.Position = next
		return s.insertOption(ctx, tx, o)
	})
}

// DeleteOption removes an option that is neither finalized nor voted on.
func (s *Store) DeleteOption(ctx context.Context, pollID, optionID string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		p, err := s.pollWhere(ctx, tx, `id = ?`, pollID)
		if err != nil {
			return err
		}
		if p.FinalizedOptionID != nil && *p.FinalizedOptionID == optionID {
			return fmt.Errorf("%w: option is the finalized choice", ErrConflict)
		}

		var votes int
		if err := s.get(ctx, tx, &votes, `SELECT COUNT(*) FROM vote WHERE option_id = ?`, optionID); err != nil {
			return fmt.Errorf("failed to count votes: %w", err)
		}
		if votes > 0 {
			return fmt.Errorf("%w: option already has votes", ErrConflict)
		}

		options, err := s.options(ctx, tx, pollID)
		if err != nil {
			return err
		}
		found := false
		for _, o := range options {
			if o.ID == optionID {
				found = true
			}
		}
		if !found {
			return ErrNotFound
		}
		if len(options) == 1 {
			return fmt.Errorf("%w: a poll needs at least one option", ErrConflict)
		}

		if _, err := s.exec(ctx, tx, `DELETE FROM poll_option WHERE id = ? AND poll_id = ?`, optionID, pollID); err != nil {
			return fmt.Errorf("failed to delete option: %w", err)
		}
		return nil
	})
}

// FinalizePoll fixes the chosen option and closes the poll for voting.
func (s *Store) FinalizePoll(ctx context.Context, pollID, optionID string) (*models.Poll, error) {
	var p *models.Poll
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		p, err = s.pollWhere(ctx, tx, `id = ?`, pollID)
		if err != nil {
			return err
		}

		var belongs int
		err = s.get(ctx, tx, &belongs, `SELECT COUNT(*) FROM poll_option WHERE id = ? AND poll_id = ?`, optionID, pollID)
		if err != nil {
			return fmt.Errorf("failed to query option: %w", err)
		}
		if belongs == 0 {
			return ErrNotFound
		}

		p.FinalizedOptionID = &optionID
		p.IsActive = false
		p.UpdatedAt = s.now()
		_, err = s.exec(ctx, tx, `
			UPDATE poll SET finalized_option_id = ?, is_active = ?, updated_at = ? WHERE id = ?
		`, optionID, false, p.UpdatedAt, pollID)
		if err != nil {
			return fmt.Errorf("failed to finalize poll: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CountPollsByType returns poll counts keyed by poll type.
func (s *Store) CountPollsByType(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Type  string `db:"type"`
		Count int    `db:"n"`
	}
	if err := s.sel(ctx, s.db, &rows, `SELECT type, COUNT(*) AS n FROM poll GROUP BY type`); err != nil {
		return nil, fmt.Errorf("failed to count polls: %w", err)
	}

	counts := map[string]int{
		models.PollTypeSchedule:     0,
		models.PollTypeSurvey:       0,
		models.PollTypeOrganization: 0,
	}
	for _, r := range rows {
		counts[r.Type] = r.Count
	}
	return counts, nil
}

func (s *Store) CountActivePolls(ctx context.Context) (int, error) {
	var n int
	err := s.get(ctx, s.db, &n, `SELECT COUNT(*) FROM poll WHERE is_active = ? AND finalized_option_id IS NULL`, true)
	return n, err
}
