package cache

import (
	"os"
	"testing"

	"github.com/starford/raido/internal/domain"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "raido-cache-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertReplacesByID(t *testing.T) {
	db := testDB(t)

	if err := db.Upsert(&domain.Initiative{ID: "a", Title: "one", Status: domain.StatusInProgress}); err != nil {
		t.Fatal(err)
	}
	if err := db.Upsert(&domain.Initiative{ID: "a", Title: "two", Status: domain.StatusDone}); err != nil {
		t.Fatal(err)
	}

	items, err := db.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("len = %d, want 1", len(items))
	}
	if items[0].Title != "two" || items[0].Status != domain.StatusDone {
		t.Errorf("item = %+v", items[0])
	}
}

func TestReplaceAll(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(&domain.Initiative{ID: "stale"})

	err := db.ReplaceAll([]*domain.Initiative{
		{ID: "a", Status: domain.StatusNotStarted},
		{ID: "b", Status: domain.StatusInProgress},
	})
	if err != nil {
		t.Fatal(err)
	}

	n, err := db.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestDelete(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(&domain.Initiative{ID: "a"})
	if err := db.Delete("a"); err != nil {
		t.Fatal(err)
	}
	n, _ := db.Count()
	if n != 0 {
		t.Errorf("count = %d", n)
	}
	// Deleting a missing id is not an error.
	if err := db.Delete("missing"); err != nil {
		t.Errorf("delete missing: %v", err)
	}
}
