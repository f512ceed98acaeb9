// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recorder) Close() error {
	r.closed = true
	return nil
}

func TestMulti(t *testing.T) {
	a := &recorder{}
	b := &recorder{err: errors.New("broker down")}
	m := Multi{a, b}

	err := m.Publish(context.Background(), New(PollCreated, "p1", nil))
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Errorf("Expected joined error, got %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Error("Every publisher should receive the event")
	}

	if err := m.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("Every publisher should be closed")
	}
}

func TestEmitSwallowsErrors(t *testing.T) {
	r := &recorder{err: errors.New("boom")}
	Emit(context.Background(), r, New(VoteSubmitted, "p1", nil))
	if len(r.events) != 1 {
		t.Error("Expected event to be published")
	}
}

func TestEncodeMessage(t *testing.T) {
	e := New(VoteSubmitted, "poll-42", map[string]int{"yes": 1})
	e.OptionID = "opt-1"

	msg, err := encodeMessage(e)
	if err != nil {
		t.Fatalf("encodeMessage failed: %v", err)
	}
	if string(msg.Key) != "poll-42" {
		t.Errorf("Expected poll ID as key, got %q", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != VoteSubmitted {
		t.Errorf("Unexpected headers %+v", msg.Headers)
	}

	var decoded Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("Value is not JSON: %v", err)
	}
	if decoded.Type != VoteSubmitted || decoded.OptionID != "opt-1" {
		t.Errorf("Unexpected decoded event %+v", decoded)
	}
}

func TestHubDeliversToPollWatchers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, r.URL.Query().Get("poll"))
	}))
	defer srv.Close()

	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	defer dialCancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	watcher, _, err := websocket.Dial(dialCtx, url+"?poll=p1", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer watcher.CloseNow()

	// Registration is asynchronous; publish until the watcher sees an event
	received := make(chan Event, 1)
	go func() {
		_, data, err := watcher.Read(dialCtx)
		if err != nil {
			return
		}
		var e Event
		if json.Unmarshal(data, &e) == nil {
			received <- e
		}
	}()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case e := <-received:
			if e.PollID != "p1" || e.Type != VoteSubmitted {
				t.Errorf("Unexpected event %+v", e)
			}
			return
		case <-ticker.C:
			hub.Publish(ctx, New(VoteSubmitted, "p2", nil))
			hub.Publish(ctx, New(VoteSubmitted, "p1", nil))
		case <-dialCtx.Done():
			t.Fatal("Timed out waiting for event")
		}
	}
}

func TestHubPublishAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)
	cancel()
	<-hub.done

	// Fill the buffer so only the done channel can unblock Publish
	for i := 0; i < cap(hub.broadcast)+1; i++ {
		if err := hub.Publish(context.Background(), New(PollDeleted, "p1", nil)); err != nil {
			t.Fatalf("Publish after shutdown should be a no-op, got %v", err)
		}
	}
}
