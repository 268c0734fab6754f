// Package queue holds the in-memory, ordered mirror of pending mutations.
// Every change is written to the backing Store before memory is touched, so
// the Store stays the source of truth and Load can rebuild the queue after a
// restart.
package queue

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/offsync/internal/models"
)

// Store is the durable backing for a Queue. *db.DB satisfies it.
type Store interface {
	InsertMutation(m *models.MutationRecord) error
	UpdateMutation(m *models.MutationRecord) error
	DeleteMutation(id string) error
	ListMutations() ([]*models.MutationRecord, error)
}

// Queue is safe for concurrent use.
type Queue struct {
	mu    sync.RWMutex
	store Store
	items []*models.MutationRecord
}

// New returns an empty queue over store. Call Load to populate it.
func New(store Store) *Queue {
	return &Queue{store: store}
}

// NewMutationID builds an id of the form <type>_<action>_<unixMillis>_<random>.
func NewMutationID(rt models.ResourceType, action models.Action, at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%d_%s", rt, action, at.UnixMilli(), suffix)
}

// Load replaces the in-memory contents with every record in the store,
// sorted into drain order.
func (q *Queue) Load() error {
	recs, err := q.store.ListMutations()
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}
	sortRecords(recs)

	q.mu.Lock()
	q.items = recs
	q.mu.Unlock()
	return nil
}

// Enqueue persists rec and then inserts it in order. On a store error the
// in-memory queue is unchanged.
func (q *Queue) Enqueue(rec *models.MutationRecord) error {
	if err := q.store.InsertMutation(rec); err != nil {
		return fmt.Errorf("persist mutation: %w", err)
	}

	cp := *rec
	q.mu.Lock()
	defer q.mu.Unlock()
	// A concurrent Load may already have picked the record up from the store.
	for _, it := range q.items {
		if it.ID == cp.ID {
			return nil
		}
	}
	i := sort.Search(len(q.items), func(i int) bool { return cp.Before(q.items[i]) })
	q.items = append(q.items, nil)
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = &cp
	return nil
}

// Update persists the retry count and last error of rec and mirrors them in memory.
func (q *Queue) Update(rec *models.MutationRecord) error {
	if err := q.store.UpdateMutation(rec); err != nil {
		return fmt.Errorf("persist mutation %s: %w", rec.ID, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if i := q.indexLocked(rec.ID); i >= 0 {
		cp := *rec
		q.items[i] = &cp
	}
	return nil
}

// Remove deletes id from the store and memory. Removing an absent id is a no-op.
func (q *Queue) Remove(id string) error {
	if err := q.store.DeleteMutation(id); err != nil {
		return fmt.Errorf("remove mutation %s: %w", id, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if i := q.indexLocked(id); i >= 0 {
		q.items = append(q.items[:i], q.items[i+1:]...)
	}
	return nil
}

// Get returns a copy of the record with id, or nil.
func (q *Queue) Get(id string) *models.MutationRecord {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if i := q.indexLocked(id); i >= 0 {
		cp := *q.items[i]
		return &cp
	}
	return nil
}

// Snapshot returns copies of the queued records in drain order.
func (q *Queue) Snapshot() []*models.MutationRecord {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*models.MutationRecord, len(q.items))
	for i, rec := range q.items {
		cp := *rec
		out[i] = &cp
	}
	return out
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// FailingCount returns how many queued records have failed at least once.
func (q *Queue) FailingCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	n := 0
	for _, rec := range q.items {
		if rec.RetryCount > 0 {
			n++
		}
	}
	return n
}

func (q *Queue) indexLocked(id string) int {
	for i, rec := range q.items {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

func sortRecords(recs []*models.MutationRecord) {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Before(recs[j]) })
}
