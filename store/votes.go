// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/danielhkuo/polly/auth"
	"github.com/danielhkuo/polly/models"
)

const voteColumns = `v.id, v.poll_id, v.option_id, v.voter_name, v.voter_email, v.user_id,
	v.response, v.edit_token, v.created_at, v.updated_at`

// VoteSubmission is one participant's answers to a poll.
type VoteSubmission struct {
	VoterName  string
	VoterEmail string
	UserID     *string
	Votes      []models.VoteInput
}

// VoteResult describes the stored votes after a submit or replace.
// FilledOptions lists capacity-limited options that are now full.
type VoteResult struct {
	EditToken     string
	PollID        string
	Votes         []models.Vote
	FilledOptions []models.PollOption
}

// CheckVotes validates a set of answers against the poll's rules.
// Violations wrap ErrInvalidVote.
func CheckVotes(p *models.Poll, options []models.PollOption, votes []models.VoteInput) error {
	if len(votes) == 0 {
		return fmt.Errorf("%w: at least one vote is required", ErrInvalidVote)
	}

	known := make(map[string]bool, len(options))
	for _, o := range options {
		known[o.ID] = true
	}

	seen := make(map[string]bool, len(votes))
	yes := 0
	for _, v := range votes {
		if !known[v.OptionID] {
			return fmt.Errorf("%w: option %s does not belong to this poll", ErrInvalidVote, v.OptionID)
		}
		if seen[v.OptionID] {
			return fmt.Errorf("%w: option %s appears more than once", ErrInvalidVote, v.OptionID)
		}
		seen[v.OptionID] = true

		switch v.Response {
		case models.ResponseYes:
			yes++
		case models.ResponseNo:
		case models.ResponseMaybe:
			if !p.AllowMaybe {
				return fmt.Errorf("%w: this poll does not allow maybe", ErrInvalidVote)
			}
		default:
			return fmt.Errorf("%w: unknown response %q", ErrInvalidVote, v.Response)
		}
	}

	if p.Type != models.PollTypeSchedule && !p.AllowMultiple && yes > 1 {
		return fmt.Errorf("%w: only one option may be chosen", ErrInvalidVote)
	}
	return nil
}

// SubmitVotes stores a new participant's votes. Every yes takes a slot
// through a guarded update; one full option rolls back the whole submission.
func (s *Store) SubmitVotes(ctx context.Context, pollID string, sub VoteSubmission) (*VoteResult, error) {
	token, err := auth.GenerateToken()
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(sub.VoterEmail))

	var result *VoteResult
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		p, options, err := s.openPoll(ctx, tx, pollID)
		if err != nil {
			return err
		}
		if err := CheckVotes(p, options, sub.Votes); err != nil {
			return err
		}

		now := s.now()
		if email != "" {
			if err := s.claimBallot(ctx, tx, pollID, "email:"+email, token, now); err != nil {
				return err
			}
		}
		if sub.UserID != nil {
			if err := s.claimBallot(ctx, tx, pollID, "user:"+*sub.UserID, token, now); err != nil {
				return err
			}
		}

		votes := make([]models.Vote, 0, len(sub.Votes))
		for _, in := range sub.Votes {
			v := models.Vote{
				ID:         auth.GenerateID(),
				PollID:     pollID,
				OptionID:   in.OptionID,
				VoterName:  strings.TrimSpace(sub.VoterName),
				VoterEmail: nullString(email),
				UserID:     sub.UserID,
				Response:   in.Response,
				EditToken:  token,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := s.insertVote(ctx, tx, &v); err != nil {
				return err
			}
			votes = append(votes, v)
		}

		filled, err := s.filledOptions(ctx, tx, pollID, options, votes)
		if err != nil {
			return err
		}
		result = &VoteResult{EditToken: token, PollID: pollID, Votes: votes, FilledOptions: filled}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReplaceVotes swaps the votes behind an edit token for a new set. Old yes
// slots are released before new ones are taken.
func (s *Store) ReplaceVotes(ctx context.Context, editToken string, in []models.VoteInput) (*VoteResult, error) {
	var result *VoteResult
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.votesByToken(ctx, tx, editToken)
		if err != nil {
			return err
		}
		first := existing[0]

		p, options, err := s.openPoll(ctx, tx, first.PollID)
		if err != nil {
			return err
		}
		if err := CheckVotes(p, options, in); err != nil {
			return err
		}

		if err := s.releaseVotes(ctx, tx, existing); err != nil {
			return err
		}

		now := s.now()
		votes := make([]models.Vote, 0, len(in))
		for _, vi := range in {
			v := models.Vote{
				ID:         auth.GenerateID(),
				PollID:     first.PollID,
				OptionID:   vi.OptionID,
				VoterName:  first.VoterName,
				VoterEmail: first.VoterEmail,
				UserID:     first.UserID,
				Response:   vi.Response,
				EditToken:  editToken,
				CreatedAt:  first.CreatedAt,
				UpdatedAt:  now,
			}
			if err := s.insertVote(ctx, tx, &v); err != nil {
				return err
			}
			votes = append(votes, v)
		}

		filled, err := s.filledOptions(ctx, tx, first.PollID, options, votes)
		if err != nil {
			return err
		}
		result = &VoteResult{EditToken: editToken, PollID: first.PollID, Votes: votes, FilledOptions: filled}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// WithdrawVotes deletes every vote behind an edit token and frees their slots.
// It returns the poll the votes belonged to.
func (s *Store) WithdrawVotes(ctx context.Context, editToken string) (string, error) {
	var pollID string
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.votesByToken(ctx, tx, editToken)
		if err != nil {
			return err
		}
		pollID = existing[0].PollID

		if _, _, err := s.openPoll(ctx, tx, pollID); err != nil {
			return err
		}
		if err := s.releaseVotes(ctx, tx, existing); err != nil {
			return err
		}
		return s.releaseBallots(ctx, tx, editToken)
	})
	if err != nil {
		return "", err
	}
	return pollID, nil
}

// VotesByEditToken returns the votes behind an edit token, or ErrNotFound.
func (s *Store) VotesByEditToken(ctx context.Context, editToken string) ([]models.Vote, error) {
	return s.votesByToken(ctx, s.db, editToken)
}

// VotesForPoll returns all votes of a poll grouped by participant.
func (s *Store) VotesForPoll(ctx context.Context, pollID string) ([]models.Vote, error) {
	votes := []models.Vote{}
	err := s.sel(ctx, s.db, &votes, `
		SELECT `+voteColumns+`
		FROM vote v JOIN poll_option o ON o.id = v.option_id
		WHERE v.poll_id = ?
		ORDER BY v.created_at, v.edit_token, o.position
	`, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
	}
	return votes, nil
}

// Results aggregates responses per option in display order.
func (s *Store) Results(ctx context.Context, pollID string) (*models.PollResults, error) {
	options, err := s.Options(ctx, pollID)
	if err != nil {
		return nil, err
	}

	var counts []struct {
		OptionID string `db:"option_id"`
		Response string `db:"response"`
		Count    int    `db:"n"`
	}
	err = s.sel(ctx, s.db, &counts, `
		SELECT option_id, response, COUNT(*) AS n FROM vote WHERE poll_id = ? GROUP BY option_id, response
	`, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to count votes: %w", err)
	}

	byOption := make(map[string]*models.OptionResult, len(options))
	results := &models.PollResults{Options: make([]models.OptionResult, len(options))}
	for i := range options {
		results.Options[i] = models.OptionResult{
			OptionID:  options[i].ID,
			Text:      options[i].Text,
			Remaining: options[i].Remaining(),
		}
		byOption[options[i].ID] = &results.Options[i]
	}
	for _, c := range counts {
		r, ok := byOption[c.OptionID]
		if !ok {
			continue
		}
		switch c.Response {
		case models.ResponseYes:
			r.Yes = c.Count
		case models.ResponseNo:
			r.No = c.Count
		case models.ResponseMaybe:
			r.Maybe = c.Count
		}
	}

	err = s.get(ctx, s.db, &results.Participants, `SELECT COUNT(DISTINCT edit_token) FROM vote WHERE poll_id = ?`, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to count participants: %w", err)
	}
	return results, nil
}

// VoterEmails returns the distinct email addresses voters left on a poll.
func (s *Store) VoterEmails(ctx context.Context, pollID string) ([]string, error) {
	emails := []string{}
	err := s.sel(ctx, s.db, &emails, `
		SELECT DISTINCT voter_email FROM vote WHERE poll_id = ? AND voter_email IS NOT NULL ORDER BY voter_email
	`, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to query voter emails: %w", err)
	}
	return emails, nil
}

func (s *Store) CountVotes(ctx context.Context) (int, error) {
	var n int
	err := s.get(ctx, s.db, &n, `SELECT COUNT(*) FROM vote`)
	return n, err
}

// openPoll loads a poll and its options, failing unless it accepts votes.
func (s *Store) openPoll(ctx context.Context, tx *sqlx.Tx, pollID string) (*models.Poll, []models.PollOption, error) {
	p, err := s.pollWhere(ctx, tx, `id = ?`, pollID)
	if err != nil {
		return nil, nil, err
	}
	if !p.AcceptsVotes(s.now()) {
		return nil, nil, ErrNotAcceptingVotes
	}
	options, err := s.options(ctx, tx, pollID)
	if err != nil {
		return nil, nil, err
	}
	return p, options, nil
}

// claimBallot records that voterKey has voted on a poll. The primary key
// on (poll_id, voter_key) rejects a second submission even when two race.
func (s *Store) claimBallot(ctx context.Context, tx *sqlx.Tx, pollID, voterKey, editToken string, now time.Time) error {
	_, err := s.exec(ctx, tx, `
		INSERT INTO ballot (poll_id, voter_key, edit_token, created_at) VALUES (?, ?, ?, ?)
	`, pollID, voterKey, editToken, now)
	if errors.Is(err, ErrConflict) {
		return ErrAlreadyVoted
	}
	if err != nil {
		return fmt.Errorf("failed to record ballot: %w", err)
	}
	return nil
}

func (s *Store) insertVote(ctx context.Context, tx *sqlx.Tx, v *models.Vote) error {
	if v.Response == models.ResponseYes {
		if err := s.reserve(ctx, tx, v.PollID, v.OptionID); err != nil {
			return err
		}
	}
	_, err := s.exec(ctx, tx, `
		INSERT INTO vote (id, poll_id, option_id, voter_name, voter_email, user_id, response, edit_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.PollID, v.OptionID, v.VoterName, v.VoterEmail, v.UserID, v.Response, v.EditToken, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert vote: %w", err)
	}
	return nil
}

// reserve takes one slot on an option. Zero affected rows means the option is full.
func (s *Store) reserve(ctx context.Context, tx *sqlx.Tx, pollID, optionID string) error {
	n, err := s.exec(ctx, tx, `
		UPDATE poll_option SET booked_count = booked_count + 1
		WHERE id = ? AND poll_id = ? AND (max_capacity IS NULL OR booked_count < max_capacity)
	`, optionID, pollID)
	if err != nil {
		return fmt.Errorf("failed to reserve slot: %w", err)
	}
	if n == 0 {
		return ErrCapacityExceeded
	}
	return nil
}

// releaseVotes frees the slots held by votes and deletes them.
func (s *Store) releaseVotes(ctx context.Context, tx *sqlx.Tx, votes []models.Vote) error {
	for _, v := range votes {
		if v.Response != models.ResponseYes {
			continue
		}
		_, err := s.exec(ctx, tx, `
			UPDATE poll_option SET booked_count = booked_count - 1 WHERE id = ? AND booked_count > 0
		`, v.OptionID)
		if err != nil {
			return fmt.Errorf("failed to release slot: %w", err)
		}
	}
	if _, err := s.exec(ctx, tx, `DELETE FROM vote WHERE edit_token = ?`, votes[0].EditToken); err != nil {
		return fmt.Errorf("failed to delete votes: %w", err)
	}
	return nil
}

// releaseBallots lets the voter behind editToken submit again.
func (s *Store) releaseBallots(ctx context.Context, tx *sqlx.Tx, editToken string) error {
	if _, err := s.exec(ctx, tx, `DELETE FROM ballot WHERE edit_token = ?`, editToken); err != nil {
		return fmt.Errorf("failed to delete ballots: %w", err)
	}
	return nil
}

func (s *Store) votesByToken(ctx context.Context, q sqlx.QueryerContext, editToken string) ([]models.Vote, error) {
	votes := []models.Vote{}
	err := s.sel(ctx, q, &votes, `
		SELECT `+voteColumns+`
		FROM vote v JOIN poll_option o ON o.id = v.option_id
		WHERE v.edit_token = ?
		ORDER BY o.position
	`, editToken)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
	}
	if len(votes) == 0 {
		return nil, ErrNotFound
	}
	return votes, nil
}

// filledOptions reports the capacity-limited options voted yes in votes
// that have no slot left.
func (s *Store) filledOptions(ctx context.Context, tx *sqlx.Tx, pollID string, before []models.PollOption, votes []models.Vote) ([]models.PollOption, error) {
	limited := false
	for _, o := range before {
		if o.MaxCapacity != nil {
			limited = true
		}
	}
	if !limited {
		return nil, nil
	}

	yes := make(map[string]bool)
	for _, v := range votes {
		if v.Response == models.ResponseYes {
			yes[v.OptionID] = true
		}
	}

	after, err := s.options(ctx, tx, pollID)
	if err != nil {
		return nil, err
	}
	var filled []models.PollOption
	for _, o := range after {
		if yes[o.ID] && o.MaxCapacity != nil && o.BookedCount >= *o.MaxCapacity {
			filled = append(filled, o)
		}
	}
	return filled, nil
}
