// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/danielhkuo/polly/db"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrCapacityExceeded  = errors.New("option is full")
	ErrNotAcceptingVotes = errors.New("poll is not accepting votes")
	ErrAlreadyVoted      = errors.New("already voted on this poll")
	ErrInvalidVote       = errors.New("invalid vote")
	ErrInvalidSetting    = errors.New("invalid setting")
)

// Store is the storage layer over PostgreSQL or SQLite.
// Queries are written with ? placeholders and rebound for the driver.
type Store struct {
	db   *sqlx.DB
	bind int
	now  func() time.Time
}

func New(conn *sqlx.DB) *Store {
	return &Store{
		db:   conn,
		bind: sqlx.BindType(conn.DriverName()),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// DB exposes the underlying connection for health checks.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) rebind(query string) string {
	return sqlx.Rebind(s.bind, query)
}

func (s *Store) get(ctx context.Context, q sqlx.QueryerContext, dst interface{}, query string, args ...interface{}) error {
	err := sqlx.GetContext(ctx, q, dst, s.rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *Store) sel(ctx context.Context, q sqlx.QueryerContext, dst interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, q, dst, s.rebind(query), args...)
}

func (s *Store) exec(ctx context.Context, e sqlx.ExecerContext, query string, args ...interface{}) (int64, error) {
	res, err := e.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

// withTx runs fn in a transaction. Everything inside fn must go through tx:
// SQLite runs with a single connection.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// TableCounts returns the row count of every schema table.
func (s *Store) TableCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(db.Tables))
	for _, table := range db.Tables {
		var n int
		if err := s.get(ctx, s.db, &n, "SELECT COUNT(*) FROM "+table); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
