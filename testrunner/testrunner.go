// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/danielhkuo/polly/auth"
)

// Check outcomes
const (
	StatusRunning = "running"
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// keep is how many finished runs stay in memory.
const keep = 20

var (
	ErrRunInProgress = errors.New("a test run is already in progress")
	ErrSkipped       = errors.New("skipped")
	ErrNotFound      = errors.New("test run not found")
)

// Skip marks a check as not applicable, e.g. an unconfigured service.
func Skip(reason string) error {
	return fmt.Errorf("%w: %s", ErrSkipped, reason)
}

// Definition is a named self-test.
type Definition struct {
	Name string
	Fn   func(ctx context.Context) error
}

type CheckResult struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

type Run struct {
	ID         string        `json:"id"`
	Status     string        `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Total      int           `json:"total"`
	Completed  int           `json:"completed"`
	Checks     []CheckResult `json:"checks"`
}

func (r *Run) clone() Run {
	c := *r
	c.Checks = append([]CheckResult(nil), r.Checks...)
	if r.FinishedAt != nil {
		at := *r.FinishedAt
		c.FinishedAt = &at
	}
	return c
}

// Runner executes the self-test suite in the background, one run at a time.
type Runner struct {
	defs    []Definition
	timeout time.Duration

	mu      sync.Mutex
	runs    []*Run
	running bool
	done    chan struct{}
}

func New(defs ...Definition) *Runner {
	return &Runner{defs: defs, timeout: 30 * time.Second}
}

// Start launches a run and returns its initial state.
func (r *Runner) Start(ctx context.Context) (Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return Run{}, ErrRunInProgress
	}

	run := &Run{ID: auth.GenerateID(), Status: StatusRunning, StartedAt: time.Now().UTC()}
	for _, d := range r.defs {
		run.Checks = append(run.Checks, CheckResult{Name: d.Name, Status: StatusRunning})
	}
	run.Total = len(run.Checks)
	r.runs = append(r.runs, run)
	if len(r.runs) > keep {
		r.runs = r.runs[len(r.runs)-keep:]
	}
	r.running = true
	r.done = make(chan struct{})

	// The run outlives the request that started it
	go r.execute(context.WithoutCancel(ctx), run, r.done)

	return run.clone(), nil
}

func (r *Runner) execute(ctx context.Context, run *Run, done chan struct{}) {
	defer close(done)

	failed := false
	for i, d := range r.defs {
		res := r.check(ctx, d)
		if res.Status == StatusFailed {
			failed = true
			slog.Warn("self-test failed", "run", run.ID, "check", d.Name, "error", res.Message)
		}
		r.mu.Lock()
		run.Checks[i] = res
		run.Completed = i + 1
		r.mu.Unlock()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Status = StatusPassed
	if failed {
		run.Status = StatusFailed
	}
	r.running = false
	slog.Info("self-test finished", "run", run.ID, "status", run.Status)
}

func (r *Runner) check(ctx context.Context, d Definition) (res CheckResult) {
	res.Name = d.Name
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res.Status = StatusFailed
			res.Message = fmt.Sprintf("panic: %v", p)
		}
		res.DurationMS = time.Since(start).Milliseconds()
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := d.Fn(ctx)
	switch {
	case err == nil:
		res.Status = StatusPassed
	case errors.Is(err, ErrSkipped):
		res.Status = StatusSkipped
		res.Message = err.Error()
	default:
		res.Status = StatusFailed
		res.Message = err.Error()
	}
	return res
}

// Get returns a run by ID.
func (r *Runner) Get(id string) (Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		if run.ID == id {
			return run.clone(), nil
		}
	}
	return Run{}, ErrNotFound
}

// Latest returns the most recent run.
func (r *Runner) Latest() (Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.runs) == 0 {
		return Run{}, ErrNotFound
	}
	return r.runs[len(r.runs)-1].clone(), nil
}

// Runs returns the retained runs, newest first.
func (r *Runner) Runs() []Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Run, 0, len(r.runs))
	for i := len(r.runs) - 1; i >= 0; i-- {
		out = append(out, r.runs[i].clone())
	}
	return out
}

// Wait blocks until the current run, if any, has finished.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
