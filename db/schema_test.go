// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
)

func TestCreateSchemaIdempotent(t *testing.T) {
	conn, err := Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	if err := CreateSchema(conn); err != nil {
		t.Fatalf("CreateSchema() error = %v", err)
	}
	if err := CreateSchema(conn); err != nil {
		t.Fatalf("second CreateSchema() error = %v", err)
	}

	for _, table := range Tables {
		var count int
		err := conn.Get(&count, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
		if err != nil {
			t.Fatalf("failed to query sqlite_master: %v", err)
		}
		if count != 1 {
			t.Errorf("table %s missing", table)
		}
	}
}

func TestForeignKeysOnEveryConnection(t *testing.T) {
	conn, err := Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	// No idle connections: each query runs on a freshly opened one
	conn.SetMaxIdleConns(0)

	for i := 0; i < 3; i++ {
		var enabled int
		if err := conn.Get(&enabled, `PRAGMA foreign_keys`); err != nil {
			t.Fatalf("PRAGMA query failed: %v", err)
		}
		if enabled != 1 {
			t.Errorf("connection %d: foreign_keys = %d, want 1", i, enabled)
		}
	}
}

func TestSqliteDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{":memory:", ":memory:?_pragma=foreign_keys(1)"},
		{"polly.db", "polly.db?_pragma=foreign_keys(1)"},
		{"file:polly.db?cache=shared", "file:polly.db?cache=shared&_pragma=foreign_keys(1)"},
	}
	for _, tt := range tests {
		if got := sqliteDSN(tt.in); got != tt.want {
			t.Errorf("sqliteDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	conn, err := Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()
	if err := CreateSchema(conn); err != nil {
		t.Fatalf("CreateSchema() error = %v", err)
	}

	insert := `INSERT INTO setting (key, value, updated_at) VALUES (?, ?, ?)`
	if _, err := conn.Exec(insert, "k", "v", time.Now()); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	_, err = conn.Exec(insert, "k", "v2", time.Now())
	if err == nil {
		t.Fatal("expected duplicate key error")
	}
	if !IsUniqueViolation(err) {
		t.Errorf("IsUniqueViolation(%v) = false, want true", err)
	}

	if !IsUniqueViolation(&pq.Error{Code: "23505"}) {
		t.Error("expected pq unique violation to be recognised")
	}
	if IsUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Error("foreign key violation reported as unique violation")
	}
	if IsUniqueViolation(errors.New("boom")) {
		t.Error("plain error reported as unique violation")
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	conn, err := Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()
	if err := CreateSchema(conn); err != nil {
		t.Fatalf("CreateSchema() error = %v", err)
	}

	_, err = conn.Exec(`INSERT INTO poll_option (id, poll_id, text) VALUES ('o1', 'missing', 'x')`)
	if err == nil {
		t.Error("expected foreign key violation for unknown poll")
	}
}

func TestOpenUnsupported(t *testing.T) {
	if _, err := Open("mysql", "x"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
