package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/marcus/offsync/internal/models"
)

const historyColumns = `id, mutation_id, resource_type, action, tenant, outcome, strategy, error, timestamp`

// RecordSyncHistory batch-inserts sync history entries in one transaction.
// Returns nil if entries is empty.
func (db *DB) RecordSyncHistory(entries ...models.SyncHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return db.withWriteLock(func() error {
		tx, err := db.conn.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT INTO sync_history (mutation_id, resource_type, action, tenant, outcome, strategy, error, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entries {
			ts := e.Timestamp
			if ts.IsZero() {
				ts = time.Now()
			}
			if _, err := stmt.Exec(e.MutationID, e.ResourceType, e.Action, e.Tenant,
				e.Outcome, e.Strategy, e.Error, formatTime(ts)); err != nil {
				return fmt.Errorf("record sync history: %w", err)
			}
		}
		return tx.Commit()
	})
}

// GetSyncHistoryTail returns the last N entries in chronological order (oldest first).
func (db *DB) GetSyncHistoryTail(limit int) ([]models.SyncHistoryEntry, error) {
	rows, err := db.conn.Query(`
		SELECT `+historyColumns+`
		FROM sync_history
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	entries, err := scanHistory(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// GetSyncHistory returns entries with id > afterID, ordered by id ASC, limited to limit.
// Used for follow-mode polling.
func (db *DB) GetSyncHistory(afterID int64, limit int) ([]models.SyncHistoryEntry, error) {
	rows, err := db.conn.Query(`
		SELECT `+historyColumns+`
		FROM sync_history
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?
	`, afterID, limit)
	if err != nil {
		return nil, err
	}
	return scanHistory(rows)
}

// DeleteSyncHistoryBefore removes history rows recorded before cutoff.
func (db *DB) DeleteSyncHistoryBefore(cutoff time.Time) (int64, error) {
	var affected int64
	err := db.withWriteLock(func() error {
		res, err := db.conn.Exec(`DELETE FROM sync_history WHERE timestamp < ?`, formatTime(cutoff))
		if err != nil {
			return fmt.Errorf("delete sync history: %w", err)
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	return affected, err
}

func scanHistory(rows *sql.Rows) ([]models.SyncHistoryEntry, error) {
	defer rows.Close()

	var entries []models.SyncHistoryEntry
	for rows.Next() {
		var e models.SyncHistoryEntry
		var ts string
		if err := rows.Scan(&e.ID, &e.MutationID, &e.ResourceType, &e.Action, &e.Tenant,
			&e.Outcome, &e.Strategy, &e.Error, &ts); err != nil {
			return nil, err
		}
		parsed, parseErr := parseTimestamp(ts)
		if parseErr != nil {
			return nil, parseErr
		}
		e.Timestamp = parsed
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
