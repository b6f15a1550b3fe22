package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned when broadcasting on or attaching to a hub whose
// loop has exited.
var ErrClosed = errors.New("hub: closed")

// Hub maintains the set of active clients and fans the latest message out
// to them.
type Hub struct {
	name   string
	logger *slog.Logger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	// wake carries at most one pending "latest changed" signal.
	wake chan struct{}
	// done is closed once Run has returned.
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.RWMutex
	latest  *Message
	seq     uint64 // bumped per Broadcast
	running bool
	closed  bool
	dropped uint64
}

// New creates a new Hub
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and blocks until ctx is cancelled.
// Every client still connected has its send channel closed on exit.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.running = false
		h.closed = true
		for client := range h.clients {
			delete(h.clients, client)
			close(client.send)
		}
		h.mu.Unlock()
		h.closeOnce.Do(func() { close(h.done) })
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			latest, seq := h.latest, h.seq
			h.mu.Unlock()
			// New consumers start from the current command, not from nothing.
			if latest != nil {
				client.deliver(*latest, seq)
			}
			h.logger.Info("client connected", "client", client.ID, "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "client", client.ID, "clients", count)

		case <-h.wake:
			h.mu.RLock()
			if h.latest == nil {
				h.mu.RUnlock()
				continue
			}
			msg, seq := *h.latest, h.seq
			var overwritten uint64
			for client := range h.clients {
				if client.deliver(msg, seq) {
					overwritten++
				}
			}
			h.mu.RUnlock()
			if overwritten > 0 {
				h.mu.Lock()
				h.dropped += overwritten
				h.mu.Unlock()
				h.logger.Debug("replaced undelivered message", "clients", overwritten)
			}
		}
	}
}

// Done is closed once the hub loop has exited.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Broadcast records msg as the latest message and schedules fan-out.
// Messages broadcast faster than the loop drains them collapse to the
// most recent one.
func (h *Hub) Broadcast(msg Message) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.latest = &msg
	h.seq++
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
	return nil
}

// BroadcastJSON encodes and broadcasts a JSON message
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.Broadcast(NewJSONMessage(data))
}

// BroadcastBinary broadcasts binary data
func (h *Hub) BroadcastBinary(data []byte) error {
	return h.Broadcast(NewBinaryMessage(data))
}

// Latest returns the most recently broadcast message.
func (h *Hub) Latest() (Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return Message{}, false
	}
	return *h.latest, true
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many pending messages were replaced before a client
// read them.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Name returns the hub name.
func (h *Hub) Name() string {
	return h.name
}
