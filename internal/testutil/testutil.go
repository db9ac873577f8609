// Package testutil provides shared test helpers for setting up caches and
// fixture initiatives.
package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/starford/raido/internal/cache"
	"github.com/starford/raido/internal/domain"
)

// TestCache creates a temporary SQLite cache that is automatically cleaned up.
func TestCache(t *testing.T) *cache.DB {
	t.Helper()
	f, err := os.CreateTemp("", "raido-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := cache.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Initiative builds a minimal live initiative for tests.
func Initiative(id, owner string) *domain.Initiative {
	return &domain.Initiative{
		ID:        id,
		Title:     "Initiative " + id,
		Status:    domain.StatusInProgress,
		Priority:  domain.PriorityMedium,
		OwnerID:   owner,
		CreatedAt: time.Now(),
	}
}
