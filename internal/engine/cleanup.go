package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/marcus/offsync/internal/events"
	"github.com/marcus/offsync/internal/models"
)

// CleanupResult counts what Cleanup removed.
type CleanupResult struct {
	Cutoff           time.Time `json:"cutoff"`
	ExpiredMutations int       `json:"expired_mutations"`
	Conflicts        int64     `json:"conflicts"`
	History          int64     `json:"history"`
	Metadata         int64     `json:"metadata"`
}

// Cleanup purges data older than olderThanDays: queued mutations created
// before the cutoff, resolved conflicts, sync history and stale metadata of
// other tenants. Unresolved conflicts are kept. Each purged mutation emits
// sync_failed carrying ErrMutationExpired. It waits for any running drain,
// including one in another process sharing the store.
func (e *Engine) Cleanup(olderThanDays int) (CleanupResult, error) {
	if olderThanDays < 0 {
		return CleanupResult{}, fmt.Errorf("cleanup: negative retention %d", olderThanDays)
	}
	cutoff := e.now().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
	res := CleanupResult{Cutoff: cutoff}

	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	release, err := e.lockDrain(drainLockWait)
	if err != nil {
		return res, fmt.Errorf("cleanup: %w", err)
	}
	defer release()

	if err := e.queue.Load(); err != nil {
		return res, fmt.Errorf("cleanup: %w", err)
	}

	var errs []error
	if n, err := e.store.DeleteSyncHistoryBefore(cutoff); err != nil {
		errs = append(errs, err)
	} else {
		res.History = n
	}

	for _, rec := range e.queue.Snapshot() {
		if !rec.CreatedAt.Before(cutoff) {
			continue
		}
		if err := e.queue.Remove(rec.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		res.ExpiredMutations++
		cause := fmt.Errorf("%w: created %s", ErrMutationExpired, rec.CreatedAt.Format(time.RFC3339))
		e.logger.Warn("queued mutation expired", "id", rec.ID, "type", rec.ResourceType, "created", rec.CreatedAt)
		e.history(rec, models.OutcomeExpired, "", cause)
		e.notifier.Emit(events.Event{
			Name:   events.SyncFailed,
			Tenant: rec.Tenant,
			Time:   e.now(),
			Item:   rec,
			Err:    cause,
		})
	}

	if n, err := e.store.DeleteResolvedConflictsBefore(cutoff); err != nil {
		errs = append(errs, err)
	} else {
		res.Conflicts = n
	}
	if n, err := e.store.DeleteSyncMetadataBefore(cutoff, e.tenant); err != nil {
		errs = append(errs, err)
	} else {
		res.Metadata = n
	}

	e.logger.Info("cleanup finished", "cutoff", cutoff, "mutations", res.ExpiredMutations,
		"conflicts", res.Conflicts, "history", res.History)
	return res, errors.Join(errs...)
}
