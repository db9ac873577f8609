package syncqueue

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/domain"
)

func TestFSBackendRoundTrip(t *testing.T) {
	b, err := NewFSBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := b.SaveInitiative(ctx, &domain.Initiative{ID: "a", Title: "one", Status: domain.StatusInProgress}); err != nil {
		t.Fatal(err)
	}
	if err := b.SaveInitiative(ctx, &domain.Initiative{ID: "b", Title: "two", Status: domain.StatusNotStarted}); err != nil {
		t.Fatal(err)
	}

	loaded, err := b.LoadInitiatives(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded = %d", len(loaded))
	}
}

func TestFSBackendDeleteRestore(t *testing.T) {
	b, err := NewFSBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := b.SaveInitiative(ctx, &domain.Initiative{ID: "a", Status: domain.StatusInProgress}); err != nil {
		t.Fatal(err)
	}

	deletedAt, err := b.DeleteInitiative(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if deletedAt.IsZero() {
		t.Error("deletedAt is zero")
	}

	ok, err := b.RestoreInitiative(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("restore = %v, %v", ok, err)
	}
	// Restoring again reports false: the record is no longer deleted.
	ok, err = b.RestoreInitiative(ctx, "a")
	if err != nil || ok {
		t.Fatalf("second restore = %v, %v", ok, err)
	}
}

func TestFSBackendUnknownID(t *testing.T) {
	b, err := NewFSBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.DeleteInitiative(context.Background(), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestFSBackendRejectsUnsafeIDs(t *testing.T) {
	b, err := NewFSBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		if err := b.SaveInitiative(context.Background(), &domain.Initiative{ID: id}); err == nil {
			t.Errorf("id %q accepted", id)
		}
	}
}
