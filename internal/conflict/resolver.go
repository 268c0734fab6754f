// Package conflict settles server-reported conflicts according to a
// per-resource-type strategy table.
package conflict

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/marcus/offsync/internal/models"
)

// MergeFunc combines server and client state into the state to submit.
// It must not have side effects.
type MergeFunc func(serverData, clientData json.RawMessage) (json.RawMessage, error)

// Submitter re-issues a mutation to the force or merge variant of its endpoint.
type Submitter interface {
	Force(ctx context.Context, rec *models.MutationRecord) error
	SubmitMerged(ctx context.Context, rec *models.MutationRecord, merged json.RawMessage) error
}

// Recorder persists conflicts parked by the manual strategy.
type Recorder interface {
	InsertConflict(c *models.ConflictRecord) error
}

// Outcome describes what happened to a conflicted mutation.
type Outcome struct {
	// Strategy actually applied (merge without a function reports ServerWins).
	Strategy Strategy
	// Handled means the mutation is finished and leaves the queue.
	Handled bool
	// Err is a delivery failure from a force or merge call; the caller
	// applies normal retry rules to it.
	Err error
	// Conflict is the record stored by the manual strategy.
	Conflict *models.ConflictRecord
}

type entry struct {
	strategy Strategy
	merge    MergeFunc
}

// Resolver holds the strategy table. Safe for concurrent use.
type Resolver struct {
	mu       sync.RWMutex
	table    map[models.ResourceType]entry
	submit   Submitter
	recorder Recorder
	now      func() time.Time
}

// NewResolver returns a resolver with every resource type on ServerWins.
func NewResolver(submit Submitter, recorder Recorder, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		table:    make(map[models.ResourceType]entry),
		submit:   submit,
		recorder: recorder,
		now:      now,
	}
}

// Set configures the strategy for rt. merge is only used by the Merge strategy.
func (r *Resolver) Set(rt models.ResourceType, s Strategy, merge MergeFunc) error {
	if !rt.IsValid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidResourceType, rt)
	}
	if !s.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
	r.mu.Lock()
	r.table[rt] = entry{strategy: s, merge: merge}
	r.mu.Unlock()
	return nil
}

// StrategyFor returns the configured strategy for rt, defaulting to ServerWins.
func (r *Resolver) StrategyFor(rt models.ResourceType) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.table[rt]; ok {
		return e.strategy
	}
	return ServerWins
}

// Strategies returns the effective strategy of every resource type.
func (r *Resolver) Strategies() map[models.ResourceType]Strategy {
	out := make(map[models.ResourceType]Strategy)
	for _, rt := range models.AllResourceTypes() {
		out[rt] = r.StrategyFor(rt)
	}
	return out
}

// Resolve applies rt's strategy to rec given the server's state. The returned
// error is a persistence failure (manual strategy only); delivery failures are
// reported in Outcome.Err.
func (r *Resolver) Resolve(ctx context.Context, rec *models.MutationRecord, serverData json.RawMessage) (Outcome, error) {
	r.mu.RLock()
	e, ok := r.table[rec.ResourceType]
	r.mu.RUnlock()
	if !ok {
		e = entry{strategy: ServerWins}
	}

	switch e.strategy {
	case ClientWins:
		if err := r.submit.Force(ctx, rec); err != nil {
			return Outcome{Strategy: ClientWins, Err: err}, nil
		}
		return Outcome{Strategy: ClientWins, Handled: true}, nil

	case Merge:
		if e.merge == nil {
			return Outcome{Strategy: ServerWins, Handled: true}, nil
		}
		merged, err := e.merge(serverData, rec.Payload)
		if err != nil {
			return Outcome{Strategy: Merge, Err: fmt.Errorf("merge %s: %w", rec.ID, err)}, nil
		}
		if err := r.submit.SubmitMerged(ctx, rec, merged); err != nil {
			return Outcome{Strategy: Merge, Err: err}, nil
		}
		return Outcome{Strategy: Merge, Handled: true}, nil

	case Manual:
		c := &models.ConflictRecord{
			MutationID:   rec.ID,
			ResourceType: rec.ResourceType,
			Action:       rec.Action,
			Tenant:       rec.Tenant,
			ClientData:   rec.Payload,
			ServerData:   serverData,
			CreatedAt:    r.now(),
		}
		if err := r.recorder.InsertConflict(c); err != nil {
			return Outcome{Strategy: Manual}, fmt.Errorf("record conflict for %s: %w", rec.ID, err)
		}
		return Outcome{Strategy: Manual, Handled: true, Conflict: c}, nil

	default:
		return Outcome{Strategy: ServerWins, Handled: true}, nil
	}
}

// ShallowMerge overlays the client's top-level fields on the server's object.
// If either side is not a JSON object the client data wins.
func ShallowMerge(serverData, clientData json.RawMessage) (json.RawMessage, error) {
	var server, client map[string]json.RawMessage
	if json.Unmarshal(serverData, &server) != nil || server == nil {
		return clientData, nil
	}
	if json.Unmarshal(clientData, &client) != nil || client == nil {
		return clientData, nil
	}
	for k, v := range client {
		server[k] = v
	}
	return json.Marshal(server)
}
