// Package events provides the in-process notification bus linking the
// security model to the HTTP authenticator. The model publishes a password
// change while it still holds the plaintext; the authenticator subscribes to
// keep its precomputed digest material current.
package events

import (
	"sync"

	"github.com/palisadehq/palisade/pkg/secmodel"
)

// PasswordChange is published exactly once per successful password update,
// before the plaintext is discarded by the caller.
type PasswordChange struct {
	User     *secmodel.User
	Password string
}

type subscriber struct {
	id      int
	handler func(PasswordChange)
}

// Bus fans out events to subscribers synchronously, in subscription order.
// Handlers must not block; they run on the publisher's goroutine.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// SubscribePasswordChange registers a handler and returns its unsubscribe
// function. Unsubscribing more than once is harmless.
func (b *Bus) SubscribePasswordChange(handler func(PasswordChange)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscriber{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		for i, sub := range b.subs {
			if sub.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
	}
}

// PublishPasswordChange delivers the event to all current subscribers.
func (b *Bus) PublishPasswordChange(ev PasswordChange) {
	b.mu.RLock()
	handlers := make([]func(PasswordChange), 0, len(b.subs))
	for _, sub := range b.subs {
		handlers = append(handlers, sub.handler)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
