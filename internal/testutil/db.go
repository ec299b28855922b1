// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/solatis/segmentkeeper/internal/core/db"
)

// OpenQueries opens a migrated SQLite database in a per-test temp dir and
// returns its named queries. The connection closes with the test.
func OpenQueries(t testing.TB) *db.Queries {
	t.Helper()

	database, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "segmentkeeper.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := db.MigrateUp(context.Background(), database); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	q, err := db.LoadQueries(database)
	if err != nil {
		t.Fatalf("load queries: %v", err)
	}
	return q
}
