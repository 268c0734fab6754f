// Package events delivers sync lifecycle events to per-tenant listeners.
package events

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marcus/offsync/internal/models"
)

// Name identifies a lifecycle event.
type Name string

const (
	Online        Name = "online"
	Offline       Name = "offline"
	SyncCompleted Name = "sync_completed"
	SyncFailed    Name = "sync_failed"
)

// AllTenants subscribes a callback to every tenant's events.
const AllTenants = "*"

// AllNames returns every event name.
func AllNames() []Name {
	return []Name{Online, Offline, SyncCompleted, SyncFailed}
}

// IsValid reports whether n is a known event name
func (n Name) IsValid() bool {
	switch n {
	case Online, Offline, SyncCompleted, SyncFailed:
		return true
	}
	return false
}

// ParseName validates an event name from user input.
func ParseName(s string) (Name, error) {
	n := Name(s)
	if !n.IsValid() {
		return "", fmt.Errorf("unknown event %q", s)
	}
	return n, nil
}

// Event is passed to callbacks. Successful and Failed are set for
// sync_completed; Item and Err for sync_failed.
type Event struct {
	Name       Name
	Tenant     string
	Time       time.Time
	Successful int
	Failed     int
	Item       *models.MutationRecord
	Err        error
}

// Callback receives emitted events. It runs on the emitting goroutine.
type Callback func(Event)

type key struct {
	tenant string
	name   Name
}

type subscription struct {
	id int
	cb Callback
}

// Notifier maps (tenant, event) pairs to callbacks.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[key][]subscription
	nextID int
	logger *slog.Logger
}

// NewNotifier returns an empty notifier. A nil logger uses slog.Default().
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{subs: make(map[key][]subscription), logger: logger}
}

// On registers cb for name events of tenant (or AllTenants) and returns a
// function that removes the registration.
func (n *Notifier) On(tenant string, name Name, cb Callback) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	k := key{tenant, name}
	n.subs[k] = append(n.subs[k], subscription{id: id, cb: cb})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			list := n.subs[k]
			for i, s := range list {
				if s.id == id {
					n.subs[k] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(n.subs[k]) == 0 {
				delete(n.subs, k)
			}
		})
	}
}

// Emit calls every callback registered for ev.Tenant and AllTenants in
// registration order. A panicking callback is logged and skipped.
func (n *Notifier) Emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	n.mu.RLock()
	var cbs []Callback
	for _, s := range n.subs[key{ev.Tenant, ev.Name}] {
		cbs = append(cbs, s.cb)
	}
	if ev.Tenant != AllTenants {
		for _, s := range n.subs[key{AllTenants, ev.Name}] {
			cbs = append(cbs, s.cb)
		}
	}
	n.mu.RUnlock()

	for _, cb := range cbs {
		n.call(cb, ev)
	}
}

func (n *Notifier) call(cb Callback, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Warn("event callback panicked", "event", ev.Name, "tenant", ev.Tenant, "panic", r)
		}
	}()
	cb(ev)
}
