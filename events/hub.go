// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

type message struct {
	pollID string
	data   []byte
}

// client is one websocket watching a poll
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	pollID string
}

// Hub fans events out to the websocket clients watching each poll.
// All bookkeeping happens on the Run goroutine.
type Hub struct {
	clients    map[string]map[*client]bool
	broadcast  chan message
	register   chan *client
	unregister chan *client
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*client]bool),
		broadcast:  make(chan message, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, conns := range h.clients {
				for c := range conns {
					close(c.send)
				}
			}
			h.clients = map[string]map[*client]bool{}
			return

		case c := <-h.register:
			conns := h.clients[c.pollID]
			if conns == nil {
				conns = make(map[*client]bool)
				h.clients[c.pollID] = conns
			}
			conns[c] = true

		case c := <-h.unregister:
			h.remove(c)

		case m := <-h.broadcast:
			for c := range h.clients[m.pollID] {
				select {
				case c.send <- m.data:
				default:
					// Slow client: drop it rather than block everyone
					h.remove(c)
				}
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	conns := h.clients[c.pollID]
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	close(c.send)
	if len(conns) == 0 {
		delete(h.clients, c.pollID)
	}
}

// Publish queues e for the poll's watchers.
func (h *Hub) Publish(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	select {
	case h.broadcast <- message{pollID: e.PollID, data: b}:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Close() error { return nil }

// Serve upgrades the request to a websocket that receives every event of
// pollID until either side closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, pollID string) error {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to accept websocket: %w", err)
	}

	c := &client{conn: conn, send: make(chan []byte, 16), pollID: pollID}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return nil
	case <-r.Context().Done():
		conn.CloseNow()
		return nil
	}

	// Clients only listen; CloseRead handles pings and close frames
	ctx := conn.CloseRead(r.Context())
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "")
				return nil
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				slog.Debug("websocket write failed", "poll_id", pollID, "error", err)
				return nil
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return nil
		}
	}
}
