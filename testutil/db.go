// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"kinship/database"
)

// NewDB opens a migrated sqlite database in a temp dir that is closed when the test ends.
func NewDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "kinship.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.CreateTables(db, database.DriverSQLite); err != nil {
		t.Fatalf("create tables: %v", err)
	}
	return db
}
