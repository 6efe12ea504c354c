package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

// setupMigrationTestDB creates a test database without running the inline
// schema, so migrations are the only schema writer.
func setupMigrationTestDB(t *testing.T) *DB {
	t.Helper()
	fname := t.Name() + ".db"
	_ = os.Remove(fname)

	sqlDB, err := sql.Open("sqlite", fname)
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}

	return &DB{sqlDB}
}

// setupTestMigrations creates a temporary directory with test migration files
func setupTestMigrations(t *testing.T) string {
	t.Helper()
	tmpDir := filepath.Join(t.TempDir(), "migrations")
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		t.Fatalf("failed to create temp migrations dir: %v", err)
	}

	migrations := map[string]string{
		"000001_create_test_table.up.sql": `
			CREATE TABLE IF NOT EXISTS test_table (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL
			);
		`,
		"000001_create_test_table.down.sql": `
			DROP TABLE IF EXISTS test_table;
		`,
		"000002_add_test_column.up.sql": `
			ALTER TABLE test_table ADD COLUMN description TEXT;
		`,
		"000002_add_test_column.down.sql": `
			-- SQLite doesn't support DROP COLUMN directly, so we need to recreate the table
			CREATE TABLE test_table_new (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL
			);
			INSERT INTO test_table_new (id, name) SELECT id, name FROM test_table;
			DROP TABLE test_table;
			ALTER TABLE test_table_new RENAME TO test_table;
		`,
	}

	for filename, content := range migrations {
		path := filepath.Join(tmpDir, filename)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write migration file %s: %v", filename, err)
		}
	}

	return tmpDir
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name=?
	`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("failed to check table %s: %v", name, err)
	}
	return exists
}

func TestMigrateUp(t *testing.T) {
	db := setupMigrationTestDB(t)
	defer cleanupTestDB(t, db)

	migrationsDir := setupTestMigrations(t)

	err := db.MigrateUp(migrationsDir)
	if err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(migrationsDir)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}

	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}

	if dirty {
		t.Error("database should not be dirty after successful migration")
	}

	if !tableExists(t, db, "test_table") {
		t.Error("test_table should exist after migration")
	}

	// description column comes from the second migration
	var hasDescription bool
	err = db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM pragma_table_info('test_table')
		WHERE name='description'
	`).Scan(&hasDescription)
	if err != nil {
		t.Fatalf("failed to check description column: %v", err)
	}

	if !hasDescription {
		t.Error("description column should exist after second migration")
	}
}

func TestMigrateUp_Idempotency(t *testing.T) {
	db := setupMigrationTestDB(t)
	defer cleanupTestDB(t, db)

	migrationsDir := setupTestMigrations(t)

	if err := db.MigrateUp(migrationsDir); err != nil {
		t.Fatalf("first MigrateUp failed: %v", err)
	}

	if err := db.MigrateUp(migrationsDir); err != nil {
		t.Fatalf("second MigrateUp failed: %v", err)
	}

	version, _, err := db.MigrateVersion(migrationsDir)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}

	if version != 2 {
		t.Errorf("expected version 2 after idempotent up, got %d", version)
	}
}

func TestMigrateDown(t *testing.T) {
	db := setupMigrationTestDB(t)
	defer cleanupTestDB(t, db)

	migrationsDir := setupTestMigrations(t)

	if err := db.MigrateUp(migrationsDir); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	if err := db.MigrateDown(migrationsDir); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(migrationsDir)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}

	if version != 1 {
		t.Errorf("expected version 1 after one down step, got %d", version)
	}
	if dirty {
		t.Error("database should not be dirty after rollback")
	}
}

func TestMigrateVersion_NoMigrations(t *testing.T) {
	db := setupMigrationTestDB(t)
	defer cleanupTestDB(t, db)

	migrationsDir := setupTestMigrations(t)

	version, dirty, err := db.MigrateVersion(migrationsDir)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}

	if version != 0 {
		t.Errorf("expected version 0 for fresh database, got %d", version)
	}
	if dirty {
		t.Error("fresh database should not be dirty")
	}
}

func TestMigrateTo(t *testing.T) {
	db := setupMigrationTestDB(t)
	defer cleanupTestDB(t, db)

	migrationsDir := setupTestMigrations(t)

	if err := db.MigrateTo(migrationsDir, 1); err != nil {
		t.Fatalf("MigrateTo(1) failed: %v", err)
	}

	version, _, err := db.MigrateVersion(migrationsDir)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("expected version 1, got %d", version)
	}

	if err := db.MigrateTo(migrationsDir, 2); err != nil {
		t.Fatalf("MigrateTo(2) failed: %v", err)
	}

	version, _, err = db.MigrateVersion(migrationsDir)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}
}

func TestMigrateForce(t *testing.T) {
	db := setupMigrationTestDB(t)
	defer cleanupTestDB(t, db)

	migrationsDir := setupTestMigrations(t)

	if err := db.MigrateUp(migrationsDir); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	if err := db.MigrateForce(migrationsDir, 1); err != nil {
		t.Fatalf("MigrateForce failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(migrationsDir)
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

func TestBaselineAtVersion(t *testing.T) {
	db := setupMigrationTestDB(t)
	defer cleanupTestDB(t, db)

	migrationsDir := setupTestMigrations(t)

	if err := db.BaselineAtVersion(1); err != nil {
		t.Fatalf("BaselineAtVersion failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(migrationsDir)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("expected baselined version 1, got %d", version)
	}
	if dirty {
		t.Error("baselined database should not be dirty")
	}

	// Baselining twice should fail
	if err := db.BaselineAtVersion(2); err == nil {
		t.Error("second baseline should fail on a database with migrations applied")
	}
}

func TestGetMigrationStatus(t *testing.T) {
	db := setupMigrationTestDB(t)
	defer cleanupTestDB(t, db)

	migrationsDir := setupTestMigrations(t)

	status, err := db.GetMigrationStatus(migrationsDir)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}

	if status["current_version"] != uint(0) {
		t.Errorf("expected current_version 0, got %v", status["current_version"])
	}

	if err := db.MigrateUp(migrationsDir); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	status, err = db.GetMigrationStatus(migrationsDir)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}

	if status["current_version"] != uint(2) {
		t.Errorf("expected current_version 2, got %v", status["current_version"])
	}
	if status["schema_migrations_exists"] != true {
		t.Error("schema_migrations table should exist after migration")
	}
}

func TestGetLatestMigrationVersion(t *testing.T) {
	migrationsDir := setupTestMigrations(t)

	latest, err := GetLatestMigrationVersion(migrationsDir)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	if latest != 2 {
		t.Errorf("expected latest version 2, got %d", latest)
	}

	if _, err := GetLatestMigrationVersion(t.TempDir()); err == nil {
		t.Error("empty directory should yield an error")
	}
}

func TestCheckAndPromptMigrations(t *testing.T) {
	db := setupMigrationTestDB(t)
	defer cleanupTestDB(t, db)

	migrationsDir := setupTestMigrations(t)

	// Fresh database is behind the latest migration
	shouldExit, err := db.CheckAndPromptMigrations(migrationsDir)
	if err == nil {
		t.Error("expected an error for an out-of-date database")
	}
	if !shouldExit {
		t.Error("out-of-date database should request exit")
	}

	if err := db.MigrateUp(migrationsDir); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	shouldExit, err = db.CheckAndPromptMigrations(migrationsDir)
	if err != nil {
		t.Errorf("up-to-date database should pass the check: %v", err)
	}
	if shouldExit {
		t.Error("up-to-date database should not request exit")
	}
}

// TestRealMigrations runs the checked-in migration files, not fixtures, so
// a malformed file fails here rather than on an operator's database.
func TestRealMigrations(t *testing.T) {
	db := setupMigrationTestDB(t)
	defer cleanupTestDB(t, db)

	if err := db.MigrateUp("migrations"); err != nil {
		t.Fatalf("MigrateUp on real migrations failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion("migrations")
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Error("database should not be dirty")
	}

	latest, err := GetLatestMigrationVersion("migrations")
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	if version != latest {
		t.Errorf("expected version %d after up, got %d", latest, version)
	}

	for _, table := range []string{"runs", "pose_samples", "station_events"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s should exist after real migrations", table)
		}
	}

	if err := db.MigrateDown("migrations"); err != nil {
		t.Fatalf("MigrateDown on real migrations failed: %v", err)
	}
	version, _, err = db.MigrateVersion("migrations")
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != latest-1 {
		t.Errorf("expected version %d after one down step, got %d", latest-1, version)
	}
}
