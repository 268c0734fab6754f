package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/marcus/offsync/internal/models"
)

const mutationColumns = `seq, id, resource_type, action, payload, created_at, tenant,
	retry_count, max_retries, priority, last_error`

// InsertMutation persists a new mutation and sets m.Seq to its insertion order.
func (db *DB) InsertMutation(m *models.MutationRecord) error {
	payload := string(m.Payload)
	if payload == "" {
		payload = "null"
	}
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`
			INSERT INTO mutations (id, resource_type, action, payload, created_at, tenant,
				retry_count, max_retries, priority, priority_rank, last_error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, m.ID, m.ResourceType, m.Action, payload, m.CreatedAt.UnixNano(), m.Tenant,
			m.RetryCount, m.MaxRetries, m.Priority, m.Priority.Rank(), m.LastError)
		if err != nil {
			return fmt.Errorf("insert mutation %s: %w", m.ID, err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert mutation %s: %w", m.ID, err)
		}
		m.Seq = seq
		return nil
	})
}

// UpdateMutation writes back the mutable fields (retry count, last error).
// Returns ErrNotFound if the mutation no longer exists.
func (db *DB) UpdateMutation(m *models.MutationRecord) error {
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`
			UPDATE mutations SET retry_count = ?, last_error = ? WHERE id = ?
		`, m.RetryCount, m.LastError, m.ID)
		if err != nil {
			return fmt.Errorf("update mutation %s: %w", m.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("update mutation %s: %w", m.ID, ErrNotFound)
		}
		return nil
	})
}

// DeleteMutation removes a mutation. Deleting an absent id is not an error.
func (db *DB) DeleteMutation(id string) error {
	return db.withWriteLock(func() error {
		if _, err := db.conn.Exec(`DELETE FROM mutations WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete mutation %s: %w", id, err)
		}
		return nil
	})
}

// GetMutation returns a single mutation by id
func (db *DB) GetMutation(id string) (*models.MutationRecord, error) {
	row := db.conn.QueryRow(`SELECT `+mutationColumns+` FROM mutations WHERE id = ?`, id)
	m, err := scanMutation(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("mutation %s: %w", id, ErrNotFound)
	}
	return m, err
}

// ListMutations returns every stored mutation in drain order:
// priority descending, then creation time, then insertion order.
func (db *DB) ListMutations() ([]*models.MutationRecord, error) {
	rows, err := db.conn.Query(`SELECT ` + mutationColumns + ` FROM mutations
		ORDER BY priority_rank DESC, created_at ASC, seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list mutations: %w", err)
	}
	defer rows.Close()

	var out []*models.MutationRecord
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMutations returns the number of stored mutations
func (db *DB) CountMutations() (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM mutations`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMutation(r rowScanner) (*models.MutationRecord, error) {
	var (
		m       models.MutationRecord
		payload string
		created int64
	)
	if err := r.Scan(&m.Seq, &m.ID, &m.ResourceType, &m.Action, &payload, &created, &m.Tenant,
		&m.RetryCount, &m.MaxRetries, &m.Priority, &m.LastError); err != nil {
		return nil, err
	}
	m.Payload = []byte(payload)
	m.CreatedAt = time.Unix(0, created).UTC()
	return &m, nil
}
