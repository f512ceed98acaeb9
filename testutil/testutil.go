// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/danielhkuo/polly/auth"
	"github.com/danielhkuo/polly/cliparse"
	"github.com/danielhkuo/polly/db"
	"github.com/danielhkuo/polly/models"
	"github.com/danielhkuo/polly/store"
)

// TestPassword satisfies the password policy and is used for every test user
const TestPassword = "Secret-pass1"

// SetupTestDB opens a fresh in-memory SQLite database with the full schema
func SetupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conn, err := db.Open(cliparse.DatabaseSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return conn
}

// SetupTestStore returns a store over a fresh test database
func SetupTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(SetupTestDB(t))
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:               3318,
		DatabaseURL:        ":memory:",
		DatabaseType:       cliparse.DatabaseSQLite,
		BaseURL:            "http://polly.test",
		LogLevel:           "error",
		SessionTTL:         time.Hour,
		IPHashSalt:         "test-ip-salt",
		RateLimitPerMinute: 1000,
	}
}

// CreateTestUser inserts a user with TestPassword and the given role
func CreateTestUser(t *testing.T, st *store.Store, email, role string) *models.User {
	t.Helper()

	hash, err := auth.HashPassword(TestPassword)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	u := &models.User{Email: email, Name: "Test User", PasswordHash: hash, Role: role}
	if err := st.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return u
}

// CreateTestSession logs a user in and returns the session cookie
func CreateTestSession(t *testing.T, st *store.Store, userID string) *http.Cookie {
	t.Helper()

	sess, err := st.CreateSession(context.Background(), userID, "test", time.Hour)
	if err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}
	return &http.Cookie{Name: "polly_session", Value: sess.ID}
}

// CreateTestPoll creates an active poll with one option per capacity entry.
// A nil capacity means the option is unlimited.
func CreateTestPoll(t *testing.T, st *store.Store, pollType string, capacities ...*int) (*models.Poll, []models.PollOption) {
	t.Helper()

	if len(capacities) == 0 {
		capacities = []*int{nil, nil}
	}

	start := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)
	options := make([]models.PollOption, len(capacities))
	for i, c := range capacities {
		options[i] = models.PollOption{Text: "Option " + string(rune('A'+i)), MaxCapacity: c}
		if pollType == models.PollTypeSchedule {
			s := start.Add(time.Duration(i) * 24 * time.Hour)
			e := s.Add(time.Hour)
			options[i].StartTime = &s
			options[i].EndTime = &e
		}
	}

	p := &models.Poll{Type: pollType, Title: "Test Poll", CreatorName: "TestUser", ResultsPublic: true}
	if err := st.CreatePoll(context.Background(), p, options); err != nil {
		t.Fatalf("Failed to create test poll: %v", err)
	}
	return p, options
}

// SubmitTestVotes stores votes for one voter and returns the edit token
func SubmitTestVotes(t *testing.T, st *store.Store, pollID, voterName string, votes ...models.VoteInput) string {
	t.Helper()

	res, err := st.SubmitVotes(context.Background(), pollID, store.VoteSubmission{VoterName: voterName, Votes: votes})
	if err != nil {
		t.Fatalf("Failed to submit test votes: %v", err)
	}
	return res.EditToken
}

// IntPtr returns a pointer to n
func IntPtr(n int) *int {
	return &n
}

// WithURLParams attaches chi route parameters to a request for handler unit tests
func WithURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
