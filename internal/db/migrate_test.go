// Package db provides unit tests for schema migrations.
package db

import (
	"testing"
)

// setupDB opens a fresh database in a temp directory.
func setupDB(t *testing.T) *DB {
	t.Helper()

	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// TestMigratorInitialize verifies the migrations table is created.
func TestMigratorInitialize(t *testing.T) {
	database := setupDB(t)
	migrator := NewMigrator(database.DB)

	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Initialize should be idempotent.
	if err := migrator.Initialize(); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}

	version, err := migrator.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != 0 {
		t.Errorf("CurrentVersion = %d, want 0 before Up", version)
	}
}

// TestMigratorUp verifies all migrations apply and version advances.
func TestMigratorUp(t *testing.T) {
	database := setupDB(t)
	migrator := NewMigrator(database.DB)

	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	version, err := migrator.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != migrations[len(migrations)-1].Version {
		t.Errorf("CurrentVersion = %d, want %d", version, migrations[len(migrations)-1].Version)
	}

	// The queue table must exist after migration.
	var count int
	if err := database.QueryRow("SELECT COUNT(*) FROM action_queue").Scan(&count); err != nil {
		t.Fatalf("action_queue table missing after Up: %v", err)
	}
}

// TestMigratorUpIdempotent verifies reapplying migrations is a no-op.
func TestMigratorUpIdempotent(t *testing.T) {
	database := setupDB(t)
	migrator := NewMigrator(database.DB)

	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("first Up failed: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("second Up failed: %v", err)
	}

	applied, err := migrator.GetAppliedMigrations()
	if err != nil {
		t.Fatalf("GetAppliedMigrations failed: %v", err)
	}
	if len(applied) != len(migrations) {
		t.Errorf("applied %d migrations, want %d", len(applied), len(migrations))
	}
}

// TestMigratorChecksumMismatch verifies a drifted applied step is rejected.
func TestMigratorChecksumMismatch(t *testing.T) {
	database := setupDB(t)
	migrator := NewMigrator(database.DB)

	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	// Tamper with the recorded checksum of V1.
	if _, err := database.Exec(
		"UPDATE schema_migrations SET checksum = ? WHERE version = 1",
		checksum("something else"),
	); err != nil {
		t.Fatalf("checksum tamper failed: %v", err)
	}

	if err := migrator.Up(); err == nil {
		t.Error("Up should fail on checksum mismatch")
	}
}

// TestMigrationsOrdered verifies the embedded steps are strictly ordered.
func TestMigrationsOrdered(t *testing.T) {
	last := 0
	for _, m := range migrations {
		if m.Version <= last {
			t.Errorf("migration versions not strictly increasing at V%d", m.Version)
		}
		if m.Description == "" {
			t.Errorf("migration V%d has empty description", m.Version)
		}
		last = m.Version
	}
}
