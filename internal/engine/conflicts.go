package engine

import (
	"errors"
	"fmt"

	"github.com/marcus/offsync/internal/db"
	"github.com/marcus/offsync/internal/models"
)

// ListConflicts returns stored conflicts matching f, newest first.
func (e *Engine) ListConflicts(f db.ConflictFilter) ([]*models.ConflictRecord, error) {
	return e.store.ListConflicts(f)
}

// GetConflict returns one conflict by id.
func (e *Engine) GetConflict(id string) (*models.ConflictRecord, error) {
	return e.store.GetConflict(id)
}

// ResolveConflict settles a manual conflict. The conflict is marked resolved
// first, so concurrent callers cannot both act on it. Keeping the server state
// stops there. Keeping the client state then re-enqueues the client data at
// high priority (a create is replayed as an update, since the server already
// holds the resource) and returns the new mutation id. If that enqueue fails
// the conflict is reopened.
func (e *Engine) ResolveConflict(id string, keep models.ConflictResolution) (string, error) {
	switch keep {
	case models.ResolutionServer, models.ResolutionClient:
	default:
		return "", fmt.Errorf("unknown resolution %q", keep)
	}

	c, err := e.store.GetConflict(id)
	if err != nil {
		return "", err
	}
	if c.Resolved {
		return "", fmt.Errorf("%w: %s", ErrConflictResolved, c.ID)
	}
	if err := e.store.ResolveConflict(c.ID, keep, e.now()); err != nil {
		if errors.Is(err, db.ErrAlreadyResolved) {
			return "", fmt.Errorf("%w: %s", ErrConflictResolved, c.ID)
		}
		return "", err
	}

	var mutationID string
	if keep == models.ResolutionClient {
		action := c.Action
		if action == models.ActionCreate {
			action = models.ActionUpdate
		}
		mutationID, err = e.AddToQueue(c.ResourceType, action, []byte(c.ClientData), Options{
			Priority: models.PriorityHigh,
			Tenant:   c.Tenant,
		})
		if err != nil {
			if rerr := e.store.ReopenConflict(c.ID); rerr != nil {
				e.logger.Error("reopen conflict after failed requeue", "conflict", c.ID, "err", rerr)
			}
			return "", fmt.Errorf("requeue client data for %s: %w", c.ID, err)
		}
	}

	e.logger.Info("conflict resolved", "conflict", c.ID, "keep", keep, "requeued", mutationID)
	return mutationID, nil
}
