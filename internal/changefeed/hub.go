// Package changefeed fans order change events out to subscribers. Events are
// a nudge to re-fetch, not a replicated log: slow subscribers miss events and
// recover on their next poll.
package changefeed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"ms-delivery/internal/models"
)

const defaultBuffer = 16

// Publisher accepts change events after a successful write.
type Publisher interface {
	Publish(ctx context.Context, ev models.ChangeEvent) error
}

// Subscriber hands out a channel of change events. An empty orderID receives
// every event; otherwise only events for that order. The channel closes when
// ctx is done or the feed shuts down.
type Subscriber interface {
	Subscribe(ctx context.Context, orderID string) (<-chan models.ChangeEvent, error)
}

var ErrClosed = errors.New("change feed closed")

// Hub is the in-process fanout.
type Hub struct {
	mu      sync.RWMutex
	clients map[string][]chan models.ChangeEvent
	closed  bool
	buffer  int
	dropped atomic.Int64
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string][]chan models.ChangeEvent),
		buffer:  defaultBuffer,
	}
}

// Subscribe registers a client and removes it once ctx is done.
func (h *Hub) Subscribe(ctx context.Context, orderID string) (<-chan models.ChangeEvent, error) {
	clientChan := make(chan models.ChangeEvent, h.buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.clients[orderID] = append(h.clients[orderID], clientChan)
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.remove(orderID, clientChan)
	}()

	return clientChan, nil
}

// Publish delivers ev to catch-all subscribers and to subscribers of its
// order. It never blocks on a slow client.
func (h *Hub) Publish(_ context.Context, ev models.ChangeEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}

	h.fanout(h.clients[""], ev)
	if id := ev.OrderID(); id != "" {
		h.fanout(h.clients[id], ev)
	}
	return nil
}

func (h *Hub) fanout(clients []chan models.ChangeEvent, ev models.ChangeEvent) {
	for _, clientChan := range clients {
		select {
		case clientChan <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) remove(orderID string, clientChan chan models.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[orderID]
	for i, ch := range clients {
		if ch == clientChan {
			h.clients[orderID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(h.clients[orderID]) == 0 {
		delete(h.clients, orderID)
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, clients := range h.clients {
		for _, ch := range clients {
			close(ch)
		}
		delete(h.clients, id)
	}
}

// ClientCount returns the number of subscribers for orderID ("" for catch-all).
func (h *Hub) ClientCount(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[orderID])
}

// Dropped is the number of events skipped because a client buffer was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Multi publishes to several sinks and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev models.ChangeEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
