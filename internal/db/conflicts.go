package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/marcus/offsync/internal/models"
)

// ConflictFilter narrows ListConflicts. Zero values match everything.
type ConflictFilter struct {
	Tenant         string
	ResourceType   models.ResourceType
	UnresolvedOnly bool
	Limit          int
}

const conflictColumns = `id, mutation_id, resource_type, action, tenant, client_data, server_data,
	resolved, resolution, created_at, resolved_at`

// InsertConflict persists a conflict record, generating an ID when c.ID is empty.
func (db *DB) InsertConflict(c *models.ConflictRecord) error {
	if c.ID == "" {
		id, err := generateConflictID()
		if err != nil {
			return fmt.Errorf("generate conflict id: %w", err)
		}
		c.ID = id
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	var resolvedAt any
	if c.ResolvedAt != nil {
		resolvedAt = formatTime(*c.ResolvedAt)
	}
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`
			INSERT INTO conflicts (`+conflictColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, c.MutationID, c.ResourceType, c.Action, c.Tenant,
			jsonText(c.ClientData), jsonText(c.ServerData), boolInt(c.Resolved), c.Resolution,
			formatTime(c.CreatedAt), resolvedAt)
		if err != nil {
			return fmt.Errorf("insert conflict %s: %w", c.ID, err)
		}
		return nil
	})
}

// GetConflict returns a conflict by ID (bare hex IDs are accepted)
func (db *DB) GetConflict(id string) (*models.ConflictRecord, error) {
	id = NormalizeConflictID(id)
	row := db.conn.QueryRow(`SELECT `+conflictColumns+` FROM conflicts WHERE id = ?`, id)
	c, err := scanConflict(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conflict %s: %w", id, ErrNotFound)
	}
	return c, err
}

// ListConflicts returns conflicts newest first
func (db *DB) ListConflicts(f ConflictFilter) ([]*models.ConflictRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.Tenant != "" {
		where = append(where, "tenant = ?")
		args = append(args, f.Tenant)
	}
	if f.ResourceType != "" {
		where = append(where, "resource_type = ?")
		args = append(args, f.ResourceType)
	}
	if f.UnresolvedOnly {
		where = append(where, "resolved = 0")
	}

	query := `SELECT ` + conflictColumns + ` FROM conflicts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	var out []*models.ConflictRecord
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ResolveConflict marks an open conflict resolved. It fails with
// ErrAlreadyResolved if the conflict was settled first, so of two concurrent
// resolves exactly one succeeds.
func (db *DB) ResolveConflict(id string, resolution models.ConflictResolution, at time.Time) error {
	id = NormalizeConflictID(id)
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`
			UPDATE conflicts SET resolved = 1, resolution = ?, resolved_at = ? WHERE id = ? AND resolved = 0
		`, resolution, formatTime(at), id)
		if err != nil {
			return fmt.Errorf("resolve conflict %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		var resolved bool
		err = db.conn.QueryRow(`SELECT resolved FROM conflicts WHERE id = ?`, id).Scan(&resolved)
		switch {
		case err == sql.ErrNoRows:
			return fmt.Errorf("conflict %s: %w", id, ErrNotFound)
		case err != nil:
			return fmt.Errorf("resolve conflict %s: %w", id, err)
		}
		return fmt.Errorf("conflict %s: %w", id, ErrAlreadyResolved)
	})
}

// ReopenConflict clears the resolution of id.
func (db *DB) ReopenConflict(id string) error {
	id = NormalizeConflictID(id)
	return db.withWriteLock(func() error {
		if _, err := db.conn.Exec(`
			UPDATE conflicts SET resolved = 0, resolution = '', resolved_at = NULL WHERE id = ?
		`, id); err != nil {
			return fmt.Errorf("reopen conflict %s: %w", id, err)
		}
		return nil
	})
}

// DeleteResolvedConflictsBefore removes resolved conflicts created before cutoff.
// Unresolved conflicts are kept regardless of age.
func (db *DB) DeleteResolvedConflictsBefore(cutoff time.Time) (int64, error) {
	var affected int64
	err := db.withWriteLock(func() error {
		res, err := db.conn.Exec(`DELETE FROM conflicts WHERE resolved = 1 AND created_at < ?`, formatTime(cutoff))
		if err != nil {
			return fmt.Errorf("delete resolved conflicts: %w", err)
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	return affected, err
}

// CountConflicts returns the number of conflicts, optionally only unresolved ones
func (db *DB) CountConflicts(unresolvedOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM conflicts`
	if unresolvedOnly {
		query += ` WHERE resolved = 0`
	}
	var n int
	err := db.conn.QueryRow(query).Scan(&n)
	return n, err
}

func scanConflict(r rowScanner) (*models.ConflictRecord, error) {
	var (
		c                  models.ConflictRecord
		clientData, server string
		resolved           int
		created            string
		resolvedAt         sql.NullString
	)
	if err := r.Scan(&c.ID, &c.MutationID, &c.ResourceType, &c.Action, &c.Tenant, &clientData, &server,
		&resolved, &c.Resolution, &created, &resolvedAt); err != nil {
		return nil, err
	}
	c.ClientData = []byte(clientData)
	c.ServerData = []byte(server)
	c.Resolved = resolved != 0

	t, err := parseTimestamp(created)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = t
	if c.ResolvedAt, err = parseNullTime(resolvedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func jsonText(b []byte) string {
	if len(b) == 0 {
		return "null"
	}
	return string(b)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
