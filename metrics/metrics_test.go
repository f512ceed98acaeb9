// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIndependentRegistries(t *testing.T) {
	// Two instances must not panic with duplicate registration
	a := New()
	b := New()

	a.PollsCreated.WithLabelValues("survey").Inc()
	a.PollsCreated.WithLabelValues("survey").Inc()
	b.PollsCreated.WithLabelValues("survey").Inc()

	if got := testutil.ToFloat64(a.PollsCreated.WithLabelValues("survey")); got != 2 {
		t.Errorf("Expected 2, got %v", got)
	}
	if got := testutil.ToFloat64(b.PollsCreated.WithLabelValues("survey")); got != 1 {
		t.Errorf("Expected 1, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.VotesRejected.WithLabelValues(ReasonFull).Inc()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `votes_rejected_total{reason="full"} 1`) {
		t.Errorf("Expected rejection counter in output")
	}
}
