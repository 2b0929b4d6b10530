package testutil

import (
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/nhle/finance-dashboard/internal/store"
)

// NewTestMedium creates a SQLiteMedium backed by a file in a temporary
// directory, so that several mediums can open the same database the way
// separate processes would. It returns the database path alongside the
// medium and closes the medium when the test completes.
func NewTestMedium(t *testing.T) (*store.SQLiteMedium, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "notifications.db")
	return OpenTestMedium(t, path), path
}

// OpenTestMedium opens another SQLiteMedium on an existing path.
func OpenTestMedium(t *testing.T, path string) *store.SQLiteMedium {
	t.Helper()

	m, err := store.NewSQLiteMedium(path)
	if err != nil {
		t.Fatalf("creating test medium: %v", err)
	}

	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Errorf("closing test medium: %v", err)
		}
	})

	return m
}

// DiscardLogger returns a logger that drops everything, for tests that
// exercise logged failure paths.
func DiscardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
