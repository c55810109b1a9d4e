package db

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

// setupMigrationTestDB opens a database without any schema so each test
// controls which migrations run.
func setupMigrationTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "migrate_test.db")

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// setupTestMigrations writes a small two-step migration history into a
// temp directory and returns it as an fs.FS.
func setupTestMigrations(t *testing.T) fs.FS {
	t.Helper()
	dir := t.TempDir()

	migrations := map[string]string{
		"000001_create_widgets.up.sql": `
			CREATE TABLE IF NOT EXISTS widgets (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL
			);
		`,
		"000001_create_widgets.down.sql": `
			DROP TABLE IF EXISTS widgets;
		`,
		"000002_add_label.up.sql": `
			ALTER TABLE widgets ADD COLUMN label TEXT;
		`,
		"000002_add_label.down.sql": `
			CREATE TABLE widgets_new (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL
			);
			INSERT INTO widgets_new (id, name) SELECT id, name FROM widgets;
			DROP TABLE widgets;
			ALTER TABLE widgets_new RENAME TO widgets;
		`,
	}
	for name, content := range migrations {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write migration %s: %v", name, err)
		}
	}
	return os.DirFS(dir)
}

func TestMigrateUp(t *testing.T) {
	db := setupMigrationTestDB(t)
	fsys := setupTestMigrations(t)

	if err := db.MigrateUp(fsys); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(fsys)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}
	if dirty {
		t.Error("database should not be dirty after MigrateUp")
	}

	var hasLabel bool
	err = db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM pragma_table_info('widgets')
		WHERE name='label'
	`).Scan(&hasLabel)
	if err != nil {
		t.Fatalf("failed to check label column: %v", err)
	}
	if !hasLabel {
		t.Error("label column should exist after both migrations")
	}

	// Running up again is a no-op.
	if err := db.MigrateUp(fsys); err != nil {
		t.Fatalf("second MigrateUp failed: %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := setupMigrationTestDB(t)
	fsys := setupTestMigrations(t)

	if err := db.MigrateUp(fsys); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if err := db.MigrateDown(fsys); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(fsys)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("expected version 1 after rollback, got %d", version)
	}
	if dirty {
		t.Error("database should not be dirty after rollback")
	}

	var hasLabel bool
	err = db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM pragma_table_info('widgets')
		WHERE name='label'
	`).Scan(&hasLabel)
	if err != nil {
		t.Fatalf("failed to check label column: %v", err)
	}
	if hasLabel {
		t.Error("label column should be gone after rollback")
	}
}

func TestMigrateTo(t *testing.T) {
	db := setupMigrationTestDB(t)
	fsys := setupTestMigrations(t)

	if err := db.MigrateTo(fsys, 1); err != nil {
		t.Fatalf("MigrateTo(1) failed: %v", err)
	}
	version, _, err := db.MigrateVersion(fsys)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("expected version 1, got %d", version)
	}

	if err := db.MigrateTo(fsys, 2); err != nil {
		t.Fatalf("MigrateTo(2) failed: %v", err)
	}
	version, _, err = db.MigrateVersion(fsys)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}
}

func TestMigrateForce(t *testing.T) {
	db := setupMigrationTestDB(t)
	fsys := setupTestMigrations(t)

	if err := db.MigrateUp(fsys); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if err := db.MigrateForce(fsys, 1); err != nil {
		t.Fatalf("MigrateForce failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(fsys)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("expected forced version 1, got %d", version)
	}
	if dirty {
		t.Error("forced version should clear the dirty flag")
	}
}

func TestMigrateVersionFreshDB(t *testing.T) {
	db := setupMigrationTestDB(t)
	fsys := setupTestMigrations(t)

	version, dirty, err := db.MigrateVersion(fsys)
	if err != nil {
		t.Fatalf("MigrateVersion on fresh DB failed: %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("fresh DB should report version 0 clean, got %d dirty=%v", version, dirty)
	}
}

func TestGetLatestMigrationVersion(t *testing.T) {
	fsys := setupTestMigrations(t)

	latest, err := GetLatestMigrationVersion(fsys)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	if latest != 2 {
		t.Errorf("expected latest version 2, got %d", latest)
	}

	if _, err := GetLatestMigrationVersion(os.DirFS(t.TempDir())); err == nil {
		t.Error("expected error for directory without migrations")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	fsys, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	entries, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		t.Fatalf("failed to list embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no embedded migration files")
	}
	// Every up migration needs its down counterpart.
	ups, _ := fs.Glob(fsys, "*.up.sql")
	downs, _ := fs.Glob(fsys, "*.down.sql")
	if len(ups) == 0 || len(ups) != len(downs) {
		t.Errorf("unbalanced migrations: %d up, %d down", len(ups), len(downs))
	}

	latest, err := GetLatestMigrationVersion(fsys)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	if latest == 0 {
		t.Error("embedded migrations should have a latest version")
	}
}
