package authclient

import (
	"slices"
	"sync"
	"time"
)

// EventType enumerates the session changes reported by the remote service.
type EventType uint8

const (
	EventSignedIn EventType = iota + 1
	EventSignedOut
	EventTokenRefreshed
	EventUserUpdated
	EventPasswordRecovery
)

func (e EventType) String() string {
	switch e {
	case EventSignedIn:
		return "SIGNED_IN"
	case EventSignedOut:
		return "SIGNED_OUT"
	case EventTokenRefreshed:
		return "TOKEN_REFRESHED"
	case EventUserUpdated:
		return "USER_UPDATED"
	case EventPasswordRecovery:
		return "PASSWORD_RECOVERY"
	default:
		return "UNKNOWN"
	}
}

// Event is a typed session change.
type Event struct {
	Type       EventType
	Session    *Session
	User       *User
	Reason     string
	OccurredAt time.Time
}

// EventHandler receives events after the store has been updated.
type EventHandler func(Event)

// EventBus fans events out to listeners. Handlers run synchronously in the
// order they subscribed and must not block.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[uint64]EventHandler
	next     uint64
}

// NewEventBus returns an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{handlers: map[uint64]EventHandler{}}
}

// Subscribe registers h and returns a function that removes it.
func (b *EventBus) Subscribe(h EventHandler) func() {
	if h == nil {
		return func() {}
	}
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish delivers evt to every handler.
func (b *EventBus) Publish(evt Event) {
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	handlers := make([]EventHandler, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(evt)
	}
}
