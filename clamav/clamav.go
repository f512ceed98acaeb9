// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package clamav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dutchcoders/go-clamd"
)

var ErrUnavailable = errors.New("clamav is not configured")

// Result is the verdict for one scanned stream.
type Result struct {
	Clean     bool
	Signature string
}

// Client wraps a clamd connection with context deadlines.
type Client struct {
	clamd   *clamd.Clamd
	timeout time.Duration
}

// New accepts host:port, tcp://host:port or unix:/path/to/clamd.sock.
func New(addr string) *Client {
	c := &Client{timeout: 30 * time.Second}
	if addr != "" {
		c.clamd = clamd.NewClamd(clamdAddress(addr))
	}
	return c
}

func clamdAddress(addr string) string {
	if strings.Contains(addr, "://") || strings.HasPrefix(addr, "unix:") {
		return addr
	}
	return "tcp://" + addr
}

func (c *Client) configured() bool {
	return c != nil && c.clamd != nil
}

// Ping checks that clamd answers PONG.
func (c *Client) Ping(ctx context.Context) error {
	if !c.configured() {
		return ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		// go-clamd dereferences an empty reply
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("clamd closed the connection: %v", r)
			}
		}()
		done <- c.clamd.Ping()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("clamd ping failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("clamd ping failed: %w", ctx.Err())
	}
}

type outcome struct {
	res *Result
	err error
}

// Scan streams r to clamd with INSTREAM and reports the verdict.
func (c *Client) Scan(ctx context.Context, r io.Reader) (*Result, error) {
	if !c.configured() {
		return nil, ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Closing abort makes go-clamd drop the connection
	abort := make(chan bool)
	defer close(abort)

	done := make(chan outcome, 1)
	go func() {
		res, err := c.scan(r, abort)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("clamd scan failed: %w", ctx.Err())
	}
}

func (c *Client) scan(r io.Reader, abort chan bool) (*Result, error) {
	replies, err := c.clamd.ScanStream(r, abort)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clamd: %w", err)
	}

	var (
		res  *Result
		verr error
		seen bool
	)
	// Drain every line so go-clamd can close the connection
	for reply := range replies {
		if seen {
			continue
		}
		seen = true
		res, verr = verdict(reply)
	}
	if !seen {
		return nil, errors.New("clamd closed the connection without a verdict")
	}
	return res, verr
}

// verdict maps "stream: OK", "stream: <name> FOUND" and anything else.
func verdict(reply *clamd.ScanResult) (*Result, error) {
	switch reply.Status {
	case clamd.RES_OK:
		return &Result{Clean: true}, nil
	case clamd.RES_FOUND:
		return &Result{Clean: false, Signature: reply.Description}, nil
	default:
		return nil, fmt.Errorf("clamd error: %s", reply.Raw)
	}
}
