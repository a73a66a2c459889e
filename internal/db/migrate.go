// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// Migration represents a database schema migration step.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// AppliedMigration records a migration that has been applied.
type AppliedMigration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// migrations is the ordered list of schema steps. Steps are append-only;
// an applied step must never be edited, only superseded by a new version.
var migrations = []Migration{
	{
		Version:     1,
		Description: "action queue table",
		SQL: `
		CREATE TABLE IF NOT EXISTS action_queue (
			id TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL CHECK(length(entity_type) > 0),
			operation TEXT NOT NULL CHECK(operation IN ('create', 'update', 'delete')),
			payload BLOB,
			status TEXT NOT NULL CHECK(status IN ('pending', 'syncing', 'synced', 'error')),
			retry_count INTEGER NOT NULL DEFAULT 0 CHECK(retry_count >= 0),
			last_error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			position INTEGER NOT NULL
		);`,
	},
	{
		Version:     2,
		Description: "insertion order index",
		SQL: `
		CREATE INDEX IF NOT EXISTS idx_action_queue_position ON action_queue(position);
		CREATE INDEX IF NOT EXISTS idx_action_queue_status ON action_queue(status);`,
	},
}

// Migrator handles database schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations() ([]AppliedMigration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var a AppliedMigration
		var appliedAt int64
		if err := rows.Scan(&a.Version, &appliedAt, &a.Description, &a.Checksum); err != nil {
			return nil, err
		}
		a.AppliedAt = time.Unix(appliedAt, 0)
		applied = append(applied, a)
	}
	return applied, rows.Err()
}

// Up applies all pending migrations and verifies checksums of applied ones.
func (m *Migrator) Up() error {
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	appliedByVersion := make(map[int]AppliedMigration, len(applied))
	for _, a := range applied {
		appliedByVersion[a.Version] = a
	}

	for _, mig := range migrations {
		sum := checksum(mig.SQL)

		if prev, ok := appliedByVersion[mig.Version]; ok {
			if prev.Checksum != sum {
				return fmt.Errorf("migration V%d checksum mismatch: applied %s, current %s",
					mig.Version, prev.Checksum, sum)
			}
			continue
		}

		tx, err := m.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration V%d: %w", mig.Version, err)
		}

		if _, err := tx.Exec(mig.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration V%d (%s): %w", mig.Version, mig.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
			mig.Version, time.Now().Unix(), mig.Description, sum,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration V%d: %w", mig.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration V%d: %w", mig.Version, err)
		}
	}

	return nil
}

// checksum computes the hex SHA-256 of a migration's SQL text.
func checksum(sqlText string) string {
	sum := sha256.Sum256([]byte(sqlText))
	return hex.EncodeToString(sum[:])
}
