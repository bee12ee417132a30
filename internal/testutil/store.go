// Package testutil holds shared test fixtures.
package testutil

import (
	"testing"

	"github.com/Nitesh802/customerintel-sub008/internal/repository"
)

// NewTestStore returns an in-memory store closed at test cleanup.
func NewTestStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()

	s, err := repository.NewSQLiteStore(repository.DriverCGO, ":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
