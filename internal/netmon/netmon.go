// Package netmon reports connectivity and its transitions.
package netmon

import "sync"

// Monitor exposes the current online state and transition notifications.
type Monitor interface {
	IsOnline() bool
	// Subscribe registers fn for online/offline transitions and returns a
	// function that cancels the subscription. fn is only called when the
	// state actually changes.
	Subscribe(fn func(online bool)) (cancel func())
}

// broadcaster holds the state and subscribers shared by monitors.
type broadcaster struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int
}

func (b *broadcaster) IsOnline() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online
}

func (b *broadcaster) Subscribe(fn func(online bool)) func() {
	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[int]func(bool))
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// set updates the state and notifies subscribers outside the lock if it changed.
func (b *broadcaster) set(online bool) bool {
	b.mu.Lock()
	if b.online == online {
		b.mu.Unlock()
		return false
	}
	b.online = online
	fns := make([]func(bool), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
	return true
}

// Manual is a Monitor whose state is set explicitly.
type Manual struct {
	broadcaster
}

// NewManual returns a Manual monitor starting in the given state.
func NewManual(online bool) *Manual {
	m := &Manual{}
	m.online = online
	return m
}

// SetOnline changes the state, notifying subscribers on a transition.
func (m *Manual) SetOnline(online bool) {
	m.set(online)
}
