// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testrunner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/danielhkuo/polly/models"
	"github.com/danielhkuo/polly/store"
)

// Pinger is any dependency that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the optional dependencies the suite checks.
// Nil or empty fields are reported as skipped.
type Services struct {
	Redis    Pinger
	ClamAV   Pinger
	SMTPHost string
	SMTPPort int
	Chat     []string
}

// StandardChecks is the built-in self-test suite.
func StandardChecks(st *store.Store, svc Services) []Definition {
	return []Definition{
		{"database", st.Ping},
		{"schema", func(ctx context.Context) error {
			_, err := st.TableCounts(ctx)
			return err
		}},
		{"vote_capacity", func(ctx context.Context) error { return voteRoundTrip(ctx, st) }},
		{"settings", func(ctx context.Context) error {
			settings, err := st.Settings(ctx)
			if err != nil {
				return err
			}
			for _, s := range settings {
				if err := store.ValidateSetting(s.Key, s.Value); err != nil {
					return err
				}
			}
			return nil
		}},
		{"redis", pingOrSkip(svc.Redis, "redis not configured")},
		{"clamav", pingOrSkip(svc.ClamAV, "clamav not configured")},
		{"smtp", func(ctx context.Context) error {
			if svc.SMTPHost == "" {
				return Skip("smtp not configured")
			}
			var d net.Dialer
			conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(svc.SMTPHost, strconv.Itoa(svc.SMTPPort)))
			if err != nil {
				return fmt.Errorf("smtp unreachable: %w", err)
			}
			return conn.Close()
		}},
		{"chat", func(context.Context) error {
			if len(svc.Chat) == 0 {
				return Skip("no chat integration configured")
			}
			return nil
		}},
	}
}

func pingOrSkip(p Pinger, reason string) func(context.Context) error {
	return func(ctx context.Context) error {
		if p == nil {
			return Skip(reason)
		}
		return p.Ping(ctx)
	}
}

// voteRoundTrip creates a scratch poll with a one-seat option and checks
// that a second booking is refused.
func voteRoundTrip(ctx context.Context, st *store.Store) (err error) {
	seats := 1
	p := &models.Poll{Type: models.PollTypeOrganization, Title: "self-test", CreatorName: "polly"}
	options := []models.PollOption{{Text: "seat", MaxCapacity: &seats}}
	if err := st.CreatePoll(ctx, p, options); err != nil {
		return fmt.Errorf("create poll: %w", err)
	}
	defer func() {
		if derr := st.DeletePoll(context.WithoutCancel(ctx), p.ID); derr != nil && err == nil {
			err = fmt.Errorf("delete poll: %w", derr)
		}
	}()

	vote := []models.VoteInput{{OptionID: options[0].ID, Response: models.ResponseYes}}
	if _, err := st.SubmitVotes(ctx, p.ID, store.VoteSubmission{VoterName: "first", Votes: vote}); err != nil {
		return fmt.Errorf("first vote: %w", err)
	}
	_, err = st.SubmitVotes(ctx, p.ID, store.VoteSubmission{VoterName: "second", Votes: vote})
	if !errors.Is(err, store.ErrCapacityExceeded) {
		return fmt.Errorf("second vote on a full option: expected capacity error, got %v", err)
	}

	res, err := st.Results(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("results: %w", err)
	}
	if len(res.Options) != 1 || res.Options[0].Yes != 1 || res.Participants != 1 {
		return fmt.Errorf("unexpected results %+v", res)
	}
	return nil
}
