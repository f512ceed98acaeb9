// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/danielhkuo/polly/events"
	"github.com/danielhkuo/polly/models"
	"github.com/danielhkuo/polly/store"
	"github.com/danielhkuo/polly/testutil"
)

func scheduleOption(day int, hours int) models.OptionInput {
	start := time.Date(2030, 3, day, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Duration(hours) * time.Hour)
	return models.OptionInput{StartTime: &start, EndTime: &end}
}

func TestCreatePoll(t *testing.T) {
	env := newTestEnv(t)
	handler := NewPollHandler(env.deps)
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name           string
		body           interface{}
		expectedStatus int
	}{
		{
			name: "schedule poll",
			body: models.CreatePollRequest{
				Type: models.PollTypeSchedule, Title: "Standup", CreatorName: "Alice", CreatorEmail: "alice@example.com",
				Options: []models.OptionInput{scheduleOption(1, 1), scheduleOption(2, 1)},
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "organization poll with capacity",
			body: models.CreatePollRequest{
				Type: models.PollTypeOrganization, Title: "Shifts", CreatorName: "Alice",
				Options: []models.OptionInput{{Text: "Morning", MaxCapacity: testutil.IntPtr(2)}, {Text: "Evening"}},
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "schedule option ends before it starts",
			body: models.CreatePollRequest{
				Type: models.PollTypeSchedule, Title: "Standup", CreatorName: "Alice",
				Options: []models.OptionInput{scheduleOption(1, -1)},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "schedule option without times",
			body: models.CreatePollRequest{
				Type: models.PollTypeSchedule, Title: "Standup", CreatorName: "Alice",
				Options: []models.OptionInput{{Text: "Monday"}},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "capacity on a survey",
			body: models.CreatePollRequest{
				Type: models.PollTypeSurvey, Title: "Lunch", CreatorName: "Alice",
				Options: []models.OptionInput{{Text: "Pizza", MaxCapacity: testutil.IntPtr(3)}},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "zero capacity",
			body: models.CreatePollRequest{
				Type: models.PollTypeOrganization, Title: "Shifts", CreatorName: "Alice",
				Options: []models.OptionInput{{Text: "Morning", MaxCapacity: testutil.IntPtr(0)}},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "empty survey option",
			body: models.CreatePollRequest{
				Type: models.PollTypeSurvey, Title: "Lunch", CreatorName: "Alice",
				Options: []models.OptionInput{{Text: "  "}},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "no options",
			body:           models.CreatePollRequest{Type: models.PollTypeSurvey, Title: "Lunch", CreatorName: "Alice"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown type",
			body: models.CreatePollRequest{
				Type: "ranking", Title: "Lunch", CreatorName: "Alice",
				Options: []models.OptionInput{{Text: "Pizza"}},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "expiry in the past",
			body: models.CreatePollRequest{
				Type: models.PollTypeSurvey, Title: "Lunch", CreatorName: "Alice", ExpiresAt: &past,
				Options: []models.OptionInput{{Text: "Pizza"}},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			body:           "invalid json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(handler.CreatePoll, testutil.MakeRequest("POST", "/api/v1/polls", tt.body, nil))
			testutil.AssertStatus(t, w, tt.expectedStatus)
			if tt.expectedStatus != http.StatusCreated {
				return
			}

			var resp models.CreatePollResponse
			testutil.AssertJSON(t, w, &resp)
			if resp.AdminToken == "" || resp.PublicToken == "" || resp.AdminToken == resp.PublicToken {
				t.Errorf("Expected two distinct tokens, got %q and %q", resp.AdminToken, resp.PublicToken)
			}
			if resp.PublicURL != "http://polly.test/p/"+resp.PublicToken {
				t.Errorf("Unexpected public URL %s", resp.PublicURL)
			}
			if !resp.Poll.IsActive {
				t.Error("New polls should be active")
			}
			if len(resp.Options) != 2 {
				t.Errorf("Expected 2 options, got %d", len(resp.Options))
			}
		})
	}

	if n := promtest.ToFloat64(env.deps.Metrics.PollsCreated.WithLabelValues(models.PollTypeSchedule)); n != 1 {
		t.Errorf("Expected 1 schedule poll counted, got %v", n)
	}
	if types := env.pub.types(); len(types) != 2 || types[0] != events.PollCreated {
		t.Errorf("Expected 2 poll.created events, got %v", types)
	}
	// Only the schedule poll had a creator email
	sent := env.mail.messages()
	if len(sent) != 1 || !strings.Contains(sent[0].Body, "http://polly.test/admin/") {
		t.Errorf("Expected creation mail with admin link, got %+v", sent)
	}
}

func TestCreatePollSettings(t *testing.T) {
	env := newTestEnv(t)
	handler := NewPollHandler(env.deps)
	ctx := context.Background()
	user := testutil.CreateTestUser(t, env.st, "alice@example.com", models.RoleUser)

	body := models.CreatePollRequest{
		Type: models.PollTypeSurvey, Title: "Lunch", CreatorName: "Alice",
		Options: []models.OptionInput{{Text: "Pizza"}, {Text: "Sushi"}, {Text: "Tacos"}},
	}

	if err := env.st.SetSetting(ctx, store.SettingAnonymousPollCreation, "false"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	w := serve(handler.CreatePoll, testutil.MakeRequest("POST", "/api/v1/polls", body, nil))
	testutil.AssertStatus(t, w, http.StatusUnauthorized)

	w = serve(handler.CreatePoll, as(testutil.MakeRequest("POST", "/api/v1/polls", body, nil), user))
	testutil.AssertStatus(t, w, http.StatusCreated)

	if err := env.st.SetSetting(ctx, store.SettingMaxOptionsPerPoll, "2"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	w = serve(handler.CreatePoll, as(testutil.MakeRequest("POST", "/api/v1/polls", body, nil), user))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestGetPublicPoll(t *testing.T) {
	env := newTestEnv(t)
	handler := NewPollHandler(env.deps)
	ctx := context.Background()

	p, options := testutil.CreateTestPoll(t, env.st, models.PollTypeOrganization, testutil.IntPtr(2), nil)
	testutil.SubmitTestVotes(t, env.st, p.ID, "Bob", models.VoteInput{OptionID: options[0].ID, Response: models.ResponseYes})

	get := func(path string) *http.Request {
		return testutil.WithURLParams(testutil.MakeRequest("GET", path, nil, nil), map[string]string{"publicToken": p.PublicToken})
	}

	w := serve(handler.GetPublicPoll, get("/api/v1/polls/public/"+p.PublicToken))
	testutil.AssertStatus(t, w, http.StatusOK)
	var resp models.PublicPollResponse
	testutil.AssertJSON(t, w, &resp)
	if resp.Results == nil || resp.Results.Participants != 1 {
		t.Fatalf("Expected public results with 1 participant, got %+v", resp.Results)
	}
	if r := resp.Options[0].Remaining; r == nil || *r != 1 {
		t.Errorf("Expected 1 seat left, got %v", r)
	}
	if strings.Contains(w.Body.String(), p.AdminToken) {
		t.Error("Public view must not leak the admin token")
	}

	// Private results
	p.ResultsPublic = false
	if err := env.st.UpdatePoll(ctx, p); err != nil {
		t.Fatalf("UpdatePoll failed: %v", err)
	}
	w = serve(handler.GetPublicPoll, get("/api/v1/polls/public/"+p.PublicToken))
	testutil.AssertStatus(t, w, http.StatusOK)
	resp = models.PublicPollResponse{}
	testutil.AssertJSON(t, w, &resp)
	if resp.Results != nil {
		t.Error("Private results must not be included")
	}
	if r := resp.Options[0].Remaining; r == nil || *r != 1 {
		t.Errorf("Free seats stay visible on private polls, got %v", r)
	}

	w = serve(handler.GetResults, get("/api/v1/polls/public/"+p.PublicToken+"/results"))
	testutil.AssertStatus(t, w, http.StatusForbidden)
}

func TestPrivateResultsHidden(t *testing.T) {
	tests := []struct {
		name     string
		pollType string
	}{
		{"survey", models.PollTypeSurvey},
		{"schedule", models.PollTypeSchedule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			polls := NewPollHandler(env.deps)
			votes := NewVoteHandler(env.deps)
			ctx := context.Background()

			p, options := testutil.CreateTestPoll(t, env.st, tt.pollType)
			p.ResultsPublic = false
			if err := env.st.UpdatePoll(ctx, p); err != nil {
				t.Fatalf("UpdatePoll failed: %v", err)
			}
			testutil.SubmitTestVotes(t, env.st, p.ID, "Bob", models.VoteInput{OptionID: options[0].ID, Response: models.ResponseYes})

			// A vote through the handler publishes a live update
			body := models.SubmitVotesRequest{
				VoterName: "Carol",
				Votes:     []models.VoteInput{{OptionID: options[0].ID, Response: models.ResponseYes}},
			}
			req := testutil.WithURLParams(testutil.MakeRequest("POST", "/", body, nil), map[string]string{"publicToken": p.PublicToken})
			w := serve(votes.SubmitVotes, req)
			testutil.AssertStatus(t, w, http.StatusCreated)

			req = testutil.WithURLParams(testutil.MakeRequest("GET", "/", nil, nil), map[string]string{"publicToken": p.PublicToken})
			w = serve(polls.GetPublicPoll, req)
			testutil.AssertStatus(t, w, http.StatusOK)
			if strings.Contains(w.Body.String(), "booked_count") {
				t.Errorf("Public view exposes yes tallies: %s", w.Body.String())
			}
			var resp models.PublicPollResponse
			testutil.AssertJSON(t, w, &resp)
			if resp.Results != nil {
				t.Error("Private results must not be included")
			}
			if resp.Options[0].Remaining != nil {
				t.Errorf("Unlimited options have no remaining count, got %d", *resp.Options[0].Remaining)
			}

			env.pub.mu.Lock()
			defer env.pub.mu.Unlock()
			if len(env.pub.events) == 0 {
				t.Fatal("Expected a live update event")
			}
			payload, err := json.Marshal(env.pub.events[len(env.pub.events)-1].Payload)
			if err != nil {
				t.Fatalf("Failed to encode payload: %v", err)
			}
			if strings.Contains(string(payload), "booked_count") || strings.Contains(string(payload), "results") {
				t.Errorf("Live update exposes private tallies: %s", payload)
			}
		})
	}
}

func TestLookupRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)
	handler := NewPollHandler(env.deps)
	p, _ := testutil.CreateTestPoll(t, env.st, models.PollTypeSurvey)

	tests := []struct {
		name   string
		param  string
		token  string
		handle http.HandlerFunc
	}{
		{"malformed public token", "publicToken", "nope", handler.GetPublicPoll},
		{"admin token used as public token", "publicToken", p.AdminToken, handler.GetPublicPoll},
		{"public token used as admin token", "adminToken", p.PublicToken, handler.GetAdminPoll},
		{"malformed admin token", "adminToken", "../../etc", handler.GetAdminPoll},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.WithURLParams(testutil.MakeRequest("GET", "/", nil, nil), map[string]string{tt.param: tt.token})
			testutil.AssertStatus(t, serve(tt.handle, req), http.StatusNotFound)
		})
	}
}

func TestQRCode(t *testing.T) {
	env := newTestEnv(t)
	handler := NewPollHandler(env.deps)
	p, _ := testutil.CreateTestPoll(t, env.st, models.PollTypeSurvey)

	req := testutil.WithURLParams(testutil.MakeRequest("GET", "/", nil, nil), map[string]string{"publicToken": p.PublicToken})
	w := serve(handler.QRCode, req)
	testutil.AssertStatus(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("Body is not a PNG")
	}
}

func TestAdminPollManagement(t *testing.T) {
	env := newTestEnv(t)
	handler := NewPollHandler(env.deps)
	ctx := context.Background()

	p, options := testutil.CreateTestPoll(t, env.st, models.PollTypeSurvey)
	testutil.SubmitTestVotes(t, env.st, p.ID, "Bob", models.VoteInput{OptionID: options[0].ID, Response: models.ResponseYes})

	admin := func(method string, body interface{}, params map[string]string) *http.Request {
		if params == nil {
			params = map[string]string{}
		}
		params["adminToken"] = p.AdminToken
		return testutil.WithURLParams(testutil.MakeRequest(method, "/", body, nil), params)
	}

	t.Run("get", func(t *testing.T) {
		w := serve(handler.GetAdminPoll, admin("GET", nil, nil))
		testutil.AssertStatus(t, w, http.StatusOK)
		var resp models.AdminPollResponse
		testutil.AssertJSON(t, w, &resp)
		if len(resp.Votes) != 1 || resp.Votes[0].VoterName != "Bob" {
			t.Errorf("Expected Bob's vote, got %+v", resp.Votes)
		}
		if resp.AdminToken != p.AdminToken {
			t.Error("Admin view should echo the admin token")
		}
	})

	t.Run("patch", func(t *testing.T) {
		body := map[string]interface{}{"title": "Renamed", "allow_maybe": true}
		w := serve(handler.UpdatePoll, admin("PATCH", body, nil))
		testutil.AssertStatus(t, w, http.StatusOK)

		got, err := env.st.GetPoll(ctx, p.ID)
		if err != nil {
			t.Fatalf("GetPoll failed: %v", err)
		}
		if got.Title != "Renamed" || !got.AllowMaybe {
			t.Errorf("Poll not updated: %+v", got)
		}
	})

	t.Run("add option", func(t *testing.T) {
		w := serve(handler.AddOption, admin("POST", models.OptionInput{Text: "Option C"}, nil))
		testutil.AssertStatus(t, w, http.StatusCreated)
		var o models.PollOption
		testutil.AssertJSON(t, w, &o)
		if o.Position != 2 {
			t.Errorf("Expected position 2, got %d", o.Position)
		}
	})

	t.Run("delete option with votes", func(t *testing.T) {
		w := serve(handler.DeleteOption, admin("DELETE", nil, map[string]string{"optionId": options[0].ID}))
		testutil.AssertStatus(t, w, http.StatusConflict)
	})

	t.Run("delete unknown option", func(t *testing.T) {
		w := serve(handler.DeleteOption, admin("DELETE", nil, map[string]string{"optionId": "missing"}))
		testutil.AssertStatus(t, w, http.StatusNotFound)
	})

	t.Run("delete option", func(t *testing.T) {
		w := serve(handler.DeleteOption, admin("DELETE", nil, map[string]string{"optionId": options[1].ID}))
		testutil.AssertStatus(t, w, http.StatusNoContent)
	})

	t.Run("delete poll", func(t *testing.T) {
		w := serve(handler.DeletePoll, admin("DELETE", nil, nil))
		testutil.AssertStatus(t, w, http.StatusNoContent)
		if _, err := env.st.GetPoll(ctx, p.ID); err == nil {
			t.Error("Poll should be gone")
		}
	})

	types := env.pub.types()
	if !containsString(types, events.PollUpdated) || !containsString(types, events.PollDeleted) {
		t.Errorf("Expected update and delete events, got %v", types)
	}
}

func TestFinalizePoll(t *testing.T) {
	env := newTestEnv(t)
	handler := NewPollHandler(env.deps)
	votes := NewVoteHandler(env.deps)

	p, options := testutil.CreateTestPoll(t, env.st, models.PollTypeSchedule)
	for _, voter := range []struct{ name, email string }{{"Bob", "bob@example.com"}, {"Carol", "carol@example.com"}} {
		body := models.SubmitVotesRequest{
			VoterName: voter.name, VoterEmail: voter.email,
			Votes: []models.VoteInput{{OptionID: options[1].ID, Response: models.ResponseYes}},
		}
		req := testutil.WithURLParams(testutil.MakeRequest("POST", "/", body, nil), map[string]string{"publicToken": p.PublicToken})
		testutil.AssertStatus(t, serve(votes.SubmitVotes, req), http.StatusCreated)
	}
	confirmations := len(env.mail.messages())

	finalize := func(optionID string) *http.Request {
		return testutil.WithURLParams(testutil.MakeRequest("POST", "/", models.FinalizePollRequest{OptionID: optionID}, nil),
			map[string]string{"adminToken": p.AdminToken})
	}

	testutil.AssertStatus(t, serve(handler.Finalize, finalize("foreign")), http.StatusNotFound)

	w := serve(handler.Finalize, finalize(options[1].ID))
	testutil.AssertStatus(t, w, http.StatusOK)
	var got models.Poll
	testutil.AssertJSON(t, w, &got)
	if got.IsActive || got.FinalizedOptionID == nil || *got.FinalizedOptionID != options[1].ID {
		t.Errorf("Unexpected finalized poll %+v", got)
	}

	sent := env.mail.messages()[confirmations:]
	if len(sent) != 2 {
		t.Fatalf("Expected one mail per voter, got %d", len(sent))
	}
	for _, m := range sent {
		if len(m.To) != 1 {
			t.Errorf("Finalize mail must go to a single voter, got %v", m.To)
		}
	}
	if msgs := env.chat.messages(); len(msgs) != 1 || !strings.Contains(msgs[0], "finalized") {
		t.Errorf("Expected a finalize chat message, got %v", msgs)
	}
	if !containsString(env.pub.types(), events.PollFinalized) {
		t.Error("Expected poll.finalized event")
	}

	// Finalized polls take no new options and cannot be reopened
	req := testutil.WithURLParams(testutil.MakeRequest("POST", "/", scheduleOption(5, 1), nil), map[string]string{"adminToken": p.AdminToken})
	testutil.AssertStatus(t, serve(handler.AddOption, req), http.StatusConflict)
	req = testutil.WithURLParams(testutil.MakeRequest("PATCH", "/", map[string]bool{"is_active": true}, nil), map[string]string{"adminToken": p.AdminToken})
	testutil.AssertStatus(t, serve(handler.UpdatePoll, req), http.StatusConflict)
}

func TestExports(t *testing.T) {
	env := newTestEnv(t)
	handler := NewPollHandler(env.deps)

	p, options := testutil.CreateTestPoll(t, env.st, models.PollTypeSurvey)
	testutil.SubmitTestVotes(t, env.st, p.ID, "Bob", models.VoteInput{OptionID: options[0].ID, Response: models.ResponseYes})
	testutil.SubmitTestVotes(t, env.st, p.ID, "Carol", models.VoteInput{OptionID: options[1].ID, Response: models.ResponseYes})

	req := testutil.WithURLParams(testutil.MakeRequest("GET", "/", nil, nil), map[string]string{"adminToken": p.AdminToken})
	w := serve(handler.ExportCSV, req)
	testutil.AssertStatus(t, w, http.StatusOK)
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv") {
		t.Errorf("Unexpected content type %s", w.Header().Get("Content-Type"))
	}
	rows, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("Invalid CSV: %v", err)
	}
	// header, two voters, three totals
	if len(rows) != 6 {
		t.Errorf("Expected 6 rows, got %d", len(rows))
	}

	req = testutil.WithURLParams(testutil.MakeRequest("GET", "/", nil, nil), map[string]string{"adminToken": p.AdminToken})
	w = serve(handler.ExportPDF, req)
	testutil.AssertStatus(t, w, http.StatusOK)
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")) {
		t.Error("Body is not a PDF")
	}
}
