package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/domain"
)

// FSBackend implements Backend with one JSON document per initiative under
// root/initiatives, a JSON-lines change log, and per-parent task documents.
type FSBackend struct {
	root string
}

// NewFSBackend creates a backend rooted at dir, creating the layout if
// needed.
func NewFSBackend(root string) (*FSBackend, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("syncqueue: resolve root: %w", err)
	}
	for _, sub := range []string{"initiatives", "tasks"} {
		if err := os.MkdirAll(filepath.Join(abs, sub), 0o755); err != nil {
			return nil, fmt.Errorf("syncqueue: mkdir %s: %w", sub, err)
		}
	}
	return &FSBackend{root: abs}, nil
}

// docPath maps an id to its document path, rejecting ids that would escape
// the root.
func (b *FSBackend) docPath(sub, id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("syncqueue: unsafe id %q", id)
	}
	return filepath.Join(b.root, sub, id+".json"), nil
}

// writeAtomic writes data via tmp file, fsync, rename.
func (b *FSBackend) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".raido-tmp-*")
	if err != nil {
		return fmt.Errorf("syncqueue: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("syncqueue: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncqueue: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("syncqueue: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("syncqueue: rename: %w", err)
	}
	success = true
	return nil
}

// SaveInitiative persists the full document for ini.
func (b *FSBackend) SaveInitiative(_ context.Context, ini *domain.Initiative) error {
	path, err := b.docPath("initiatives", ini.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(ini, "", "  ")
	if err != nil {
		return fmt.Errorf("syncqueue: marshal initiative: %w", err)
	}
	return b.writeAtomic(path, data)
}

// AppendChangeLog appends rec to the change log as one JSON line.
func (b *FSBackend) AppendChangeLog(_ context.Context, rec domain.ChangeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("syncqueue: marshal record: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(b.root, "changelog.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("syncqueue: open changelog: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("syncqueue: append changelog: %w", err)
	}
	return nil
}

// SaveTasks persists the task list document for a parent initiative.
func (b *FSBackend) SaveTasks(_ context.Context, tasks []domain.Task, parent *domain.Initiative) error {
	path, err := b.docPath("tasks", parent.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("syncqueue: marshal tasks: %w", err)
	}
	return b.writeAtomic(path, data)
}

// LoadInitiatives reads every initiative document. Unreadable documents are
// skipped rather than failing the whole load.
func (b *FSBackend) LoadInitiatives(_ context.Context) ([]*domain.Initiative, error) {
	dir := filepath.Join(b.root, "initiatives")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("syncqueue: read dir: %w", err)
	}
	var out []*domain.Initiative
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var ini domain.Initiative
		if err := json.Unmarshal(data, &ini); err != nil {
			continue
		}
		out = append(out, &ini)
	}
	return out, nil
}

// DeleteInitiative marks the stored document deleted and returns the
// deletion time.
func (b *FSBackend) DeleteInitiative(ctx context.Context, id string) (time.Time, error) {
	ini, err := b.readInitiative(id)
	if err != nil {
		return time.Time{}, err
	}
	now := time.Now()
	ini.Status = domain.StatusDeleted
	ini.DeletedAt = &now
	if err := b.SaveInitiative(ctx, ini); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// RestoreInitiative reverses a soft delete. Returns false when the document
// is missing or was never deleted.
func (b *FSBackend) RestoreInitiative(ctx context.Context, id string) (bool, error) {
	ini, err := b.readInitiative(id)
	if err != nil {
		return false, err
	}
	if ini.Status != domain.StatusDeleted {
		return false, nil
	}
	ini.Status = domain.StatusInProgress
	ini.DeletedAt = nil
	if err := b.SaveInitiative(ctx, ini); err != nil {
		return false, err
	}
	return true, nil
}

func (b *FSBackend) readInitiative(id string) (*domain.Initiative, error) {
	path, err := b.docPath("initiatives", id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("syncqueue: read %s: %w", id, err)
	}
	var ini domain.Initiative
	if err := json.Unmarshal(data, &ini); err != nil {
		return nil, fmt.Errorf("syncqueue: unmarshal %s: %w", id, err)
	}
	return &ini, nil
}
