// Package events is the in-process broadcast of reconciliation activity,
// consumed by the websocket feed.
package events

import (
	"sync"
	"time"
)

const (
	TypeRoleGranted   = "role_granted"
	TypeRoleRevoked   = "role_revoked"
	TypeMemberError   = "member_error"
	TypePassCompleted = "pass_completed"
)

type Event struct {
	Type     string    `json:"type"`
	ServerID string    `json:"server_id,omitempty"`
	UserID   string    `json:"user_id,omitempty"`
	Role     string    `json:"role,omitempty"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"time"`
}

type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a buffered channel receiving future events. Callers must
// Unsubscribe when done.
func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish fans the event out to all subscribers. Slow subscribers drop
// events rather than block the reconciliation pass.
func (h *Hub) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
	h.mu.Unlock()
}
