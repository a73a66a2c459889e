// Package db provides the persistent queue store.
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/kimhsiao/offsync/internal/errors"
	"github.com/kimhsiao/offsync/internal/logging"
	"github.com/kimhsiao/offsync/internal/models"
)

// QueueStore persists the action queue in SQLite.
// Save replaces the whole queue in one transaction, so a partial write is
// never observable as a partially-valid queue on the next Load.
type QueueStore struct {
	db *sql.DB
}

// NewQueueStore creates a QueueStore on an opened database.
func NewQueueStore(db *sql.DB) *QueueStore {
	return &QueueStore{db: db}
}

// Load reads the full queue in insertion order.
// Timestamps are stored as Unix nanoseconds so created_at round-trips as a
// time.Time, not a string.
func (s *QueueStore) Load() []models.QueuedAction {
	rows, err := s.db.Query(`
		SELECT id, entity_type, operation, payload, status, retry_count, last_error, created_at, updated_at
		FROM action_queue ORDER BY position`)
	if err != nil {
		logging.ErrorWithCode("Queue load failed, starting with empty queue",
			string(errors.ErrStoreCorrupted), err)
		return nil
	}
	defer rows.Close()

	var entries []models.QueuedAction
	for rows.Next() {
		var a models.QueuedAction
		var payload []byte
		var createdAt, updatedAt int64
		if err := rows.Scan(&a.ID, &a.EntityType, &a.Operation, &payload,
			&a.Status, &a.RetryCount, &a.LastError, &createdAt, &updatedAt); err != nil {
			logging.ErrorWithCode("Queue row scan failed, starting with empty queue",
				string(errors.ErrStoreCorrupted), err)
			return nil
		}
		if len(payload) > 0 {
			a.Payload = payload
		}
		a.CreatedAt = time.Unix(0, createdAt)
		a.UpdatedAt = time.Unix(0, updatedAt)
		entries = append(entries, a)
	}

	if err := rows.Err(); err != nil {
		logging.ErrorWithCode("Queue load aborted, starting with empty queue",
			string(errors.ErrStoreCorrupted), err)
		return nil
	}

	return entries
}

// Save replaces the persisted queue with the given entries atomically.
func (s *QueueStore) Save(entries []models.QueuedAction) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrStoreWrite, "failed to begin save transaction", err)
	}

	if _, err := tx.Exec("DELETE FROM action_queue"); err != nil {
		tx.Rollback()
		return errors.Wrap(errors.ErrStoreWrite, "failed to clear persisted queue", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO action_queue (id, entity_type, operation, payload, status, retry_count, last_error, created_at, updated_at, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(errors.ErrStoreWrite, "failed to prepare insert", err)
	}
	defer stmt.Close()

	for i, a := range entries {
		if _, err := stmt.Exec(a.ID, string(a.EntityType), string(a.Operation), []byte(a.Payload),
			string(a.Status), a.RetryCount, a.LastError,
			a.CreatedAt.UnixNano(), a.UpdatedAt.UnixNano(), i); err != nil {
			tx.Rollback()
			return errors.Wrap(errors.ErrStoreWrite,
				fmt.Sprintf("failed to persist entry %s", a.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrStoreWrite, "failed to commit save transaction", err)
	}

	return nil
}
