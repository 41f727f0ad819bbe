// Package source delivers raw message-arrival events to the watcher.
package source

import (
	"errors"
	"sync"
	"time"
)

var ErrClosed = errors.New("source: closed")

// Event is one platform arrival broadcast. Fragments are raw encoded message
// segments in the given Format.
type Event struct {
	Format     string
	Fragments  [][]byte
	ReceivedAt time.Time
}

// Handler receives events. It must not block for long: sources call it from
// their delivery goroutine.
type Handler func(Event)

// EventSource is the platform's arrival broadcast. Subscribe registers a
// handler and returns a function that unregisters it.
type EventSource interface {
	Subscribe(handler Handler) (func(), error)
}

// Hub is an in-process EventSource. Bridges and tests call Publish.
type Hub struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
	closed   bool
}

func NewHub() *Hub {
	return &Hub{handlers: make(map[int]Handler)}
}

func (h *Hub) Subscribe(handler Handler) (func(), error) {
	if handler == nil {
		return nil, errors.New("source: nil handler")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	id := h.next
	h.next++
	h.handlers[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.handlers, id)
			h.mu.Unlock()
		})
	}, nil
}

// Publish delivers e to every current subscriber and returns how many
// received it.
func (h *Hub) Publish(e Event) int {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}

	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		handlers = append(handlers, handler)
	}
	h.mu.RUnlock()

	for _, handler := range handlers {
		handler(e)
	}
	return len(handlers)
}

// Subscribers reports the number of registered handlers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers)
}

// Close drops every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.handlers = make(map[int]Handler)
}
