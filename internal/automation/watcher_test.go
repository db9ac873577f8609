package automation

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "automations.yaml")
	if err := os.WriteFile(path, []byte("automations: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	applied := make(chan []Definition, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = Watch(ctx, path, slog.Default(), func(defs []Definition) {
			applied <- defs
		})
		close(done)
	}()

	// Give the watcher time to install.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case defs := <-applied:
		if len(defs) != 2 {
			t.Errorf("reloaded %d definitions, want 2", len(defs))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for reload")
	}

	cancel()
	<-done
}

func TestWatchKeepsDefinitionsOnBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "automations.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	applied := make(chan []Definition, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = Watch(ctx, path, slog.Default(), func(defs []Definition) {
			applied <- defs
		})
	}()
	time.Sleep(100 * time.Millisecond)

	// Invalid YAML must not call apply.
	if err := os.WriteFile(path, []byte("automations: [{id: }"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case defs := <-applied:
		t.Fatalf("apply called with %d definitions for a broken file", len(defs))
	case <-time.After(700 * time.Millisecond):
		// Expected: reload failed, previous definitions kept.
	}
}
