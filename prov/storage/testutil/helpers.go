package testutil

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teranos/provenance/db"
)

// SetupTestDB creates an in-memory SQLite database for testing.
// Uses real migrations to ensure test schema matches production schema.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := db.OpenMemory()
	require.NoError(t, err, "Failed to open migrated in-memory database")

	t.Cleanup(func() {
		testDB.Close()
	})
	return testDB
}

// SetupEmptyDB creates an in-memory SQLite database with no schema.
// Used for testing error handling when tables are missing
func SetupEmptyDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	testDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		testDB.Close()
	})
	return testDB
}
