package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/marcus/offsync/internal/models"
)

// GetSyncMetadata returns the drain summary for tenant, or nil if none was recorded.
func (db *DB) GetSyncMetadata(tenant string) (*models.SyncMetadata, error) {
	var (
		m        models.SyncMetadata
		lastSync sql.NullString
	)
	err := db.conn.QueryRow(`
		SELECT tenant, last_sync_time, successful, failed
		FROM sync_metadata WHERE tenant = ?
	`, tenant).Scan(&m.Tenant, &lastSync, &m.Successful, &m.Failed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync metadata: %w", err)
	}
	if m.LastSyncTime, err = parseNullTime(lastSync); err != nil {
		return nil, err
	}
	return &m, nil
}

// PutSyncMetadata creates or replaces the drain summary for m.Tenant.
func (db *DB) PutSyncMetadata(m *models.SyncMetadata) error {
	var lastSync any
	if m.LastSyncTime != nil {
		lastSync = formatTime(*m.LastSyncTime)
	}
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`
			INSERT OR REPLACE INTO sync_metadata (tenant, last_sync_time, successful, failed)
			VALUES (?, ?, ?, ?)
		`, m.Tenant, lastSync, m.Successful, m.Failed)
		if err != nil {
			return fmt.Errorf("put sync metadata: %w", err)
		}
		return nil
	})
}

// DeleteSyncMetadataBefore removes summaries whose last sync predates cutoff,
// except the one for keepTenant.
func (db *DB) DeleteSyncMetadataBefore(cutoff time.Time, keepTenant string) (int64, error) {
	var affected int64
	err := db.withWriteLock(func() error {
		res, err := db.conn.Exec(`
			DELETE FROM sync_metadata
			WHERE tenant != ? AND last_sync_time IS NOT NULL AND last_sync_time < ?
		`, keepTenant, formatTime(cutoff))
		if err != nil {
			return fmt.Errorf("delete sync metadata: %w", err)
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	return affected, err
}
