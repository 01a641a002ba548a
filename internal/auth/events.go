package auth

import (
	"sync"
	"time"
)

// Event names the kind of auth state change.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventSignedOut      Event = "SIGNED_OUT"
)

// StateChange is pushed to subscribers whenever a session is created,
// rotated or destroyed.
type StateChange struct {
	Event  Event
	UserID string
	At     time.Time
}

type notifier struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]func(StateChange)
}

func (n *notifier) subscribe(fn func(StateChange)) func() {
	n.mu.Lock()
	if n.listeners == nil {
		n.listeners = make(map[int]func(StateChange))
	}
	id := n.next
	n.next++
	n.listeners[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		})
	}
}

func (n *notifier) publish(change StateChange) {
	n.mu.RLock()
	listeners := make([]func(StateChange), 0, len(n.listeners))
	for _, fn := range n.listeners {
		listeners = append(listeners, fn)
	}
	n.mu.RUnlock()

	for _, fn := range listeners {
		fn(change)
	}
}
