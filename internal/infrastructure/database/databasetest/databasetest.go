// Package databasetest opens throwaway, fully migrated databases for tests.
package databasetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/homewatch-core/internal/infrastructure/database"
	"github.com/nerrad567/homewatch-core/migrations"
)

// Open returns a migrated database in a temp directory. It is closed when
// the test finishes.
func Open(tb testing.TB) *database.DB {
	tb.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(tb.TempDir(), "homewatch-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		tb.Fatalf("opening test database: %v", err)
	}
	tb.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		tb.Fatalf("migrating test database: %v", err)
	}
	return db
}
