package monitor

import (
	"strings"
	"time"

	"github.com/marcus/offsync/internal/db"
	"github.com/marcus/offsync/internal/engine"
	"github.com/marcus/offsync/internal/models"
)

// Source is the engine surface the monitor reads from
type Source interface {
	Status() engine.Status
	Pending() []*models.MutationRecord
	ListConflicts(f db.ConflictFilter) ([]*models.ConflictRecord, error)
	History(limit int) ([]models.SyncHistoryEntry, error)
}

const (
	historyLimit  = 100
	conflictLimit = 50
)

// FetchData retrieves all data needed for the monitor display
func FetchData(src Source) RefreshDataMsg {
	msg := RefreshDataMsg{
		Timestamp: time.Now(),
		Status:    src.Status(),
		Pending:   src.Pending(),
	}

	conflicts, err := src.ListConflicts(db.ConflictFilter{UnresolvedOnly: true, Limit: conflictLimit})
	if err != nil {
		msg.Err = err
		return msg
	}
	msg.Conflicts = conflicts

	history, err := src.History(historyLimit)
	if err != nil {
		msg.Err = err
		return msg
	}
	// newest first for display
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	msg.History = history

	return msg
}

// filterPending keeps records whose id, resource type or action contain q
func filterPending(recs []*models.MutationRecord, q string) []*models.MutationRecord {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return recs
	}
	var out []*models.MutationRecord
	for _, r := range recs {
		if strings.Contains(strings.ToLower(r.ID), q) ||
			strings.Contains(string(r.ResourceType), q) ||
			strings.Contains(string(r.Action), q) {
			out = append(out, r)
		}
	}
	return out
}
