// Package store holds the in-memory initiative collection, the single
// source of truth for a running session.
//
// Concurrency model: a mutex owns the ordered collection; committed
// initiatives are treated as immutable, every mutation goes through a
// copy-on-write commit that also refreshes the snapshot ref. Long-lived
// asynchronous consumers read Snapshot() instead of closing over the
// collection, so a value read after a suspension point is always at least
// as fresh as the last committed mutation.
package store

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/domain"
)

// Store is the owned, dependency-injected entity store. All writers must go
// through Apply, Upsert, Merge, MergeIfUnchanged or Replace; whole-collection
// replacement outside Replace is not exposed.
type Store struct {
	mu     sync.Mutex
	items  []*domain.Initiative
	index  map[string]int
	snap   atomic.Pointer[[]*domain.Initiative]
	logger *slog.Logger
}

// New creates an empty store.
func New(logger *slog.Logger) *Store {
	s := &Store{
		index:  make(map[string]int),
		logger: logger,
	}
	s.refreshSnapshot()
	return s
}

// refreshSnapshot publishes a copy of the current ordering. Callers must
// hold mu. The element pointers are shared: committed initiatives are
// immutable, so sharing is safe.
func (s *Store) refreshSnapshot() {
	snap := make([]*domain.Initiative, len(s.items))
	copy(snap, s.items)
	s.snap.Store(&snap)
}

// Snapshot returns the latest committed contents without locking.
// The returned slice must not be modified.
func (s *Store) Snapshot() []*domain.Initiative {
	return *s.snap.Load()
}

// Get returns the committed initiative for id. The result must be treated
// as read-only; use Apply to mutate.
func (s *Store) Get(id string) (*domain.Initiative, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.items[i], true
}

// List returns the current ordering. The slice is a copy; elements are
// shared read-only values.
func (s *Store) List() []*domain.Initiative {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Initiative, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of records (live and soft-deleted).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Apply performs a functional update: it clones the latest committed value
// for id, passes the clone to fn, bumps the version, and commits. The next
// state is always computed from the state at mutation time, never from a
// snapshot a caller captured earlier.
func (s *Store) Apply(id string, fn func(*domain.Initiative)) (*domain.Initiative, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	next := s.items[i].Clone()
	fn(next)
	next.ID = id // identity is immutable regardless of what fn did
	next.Version = s.items[i].Version + 1
	s.items[i] = next
	s.refreshSnapshot()
	return next, nil
}

// Upsert inserts ini as a new record, or replaces the existing record with
// the same id (a "new" entity whose id already exists is an update, not a
// duplicate insert). Returns the committed value and whether it was created.
func (s *Store) Upsert(ini *domain.Initiative) (*domain.Initiative, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	committed, created := s.upsertLocked(ini)
	s.refreshSnapshot()
	return committed, created
}

func (s *Store) upsertLocked(ini *domain.Initiative) (*domain.Initiative, bool) {
	next := ini.Clone()
	if i, ok := s.index[next.ID]; ok {
		next.Version = s.items[i].Version + 1
		s.items[i] = next
		return next, false
	}
	if next.Version == 0 {
		next.Version = 1
	}
	s.index[next.ID] = len(s.items)
	s.items = append(s.items, next)
	return next, true
}

// Merge folds incoming entities into the current collection by id,
// replacing touched members and appending unknown ones. Untouched members
// are left exactly as they are. Duplicate ids within the batch are dropped
// first-occurrence-wins. Returns the ids that were committed.
func (s *Store) Merge(incoming []*domain.Initiative) []string {
	clean, _ := Admit(incoming, s.logger)

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(clean))
	for _, ini := range clean {
		committed, _ := s.upsertLocked(ini)
		ids = append(ids, committed.ID)
	}
	s.refreshSnapshot()
	return ids
}

// MergeIfUnchanged commits ini only when the live record for its id is still
// at baseVersion. It returns apperr.ErrConflict when another writer
// committed in between (the caller's value is stale and must be dropped),
// and apperr.ErrNotFound when the id vanished from the store.
func (s *Store) MergeIfUnchanged(ini *domain.Initiative, baseVersion int64) (*domain.Initiative, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[ini.ID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if s.items[i].Version != baseVersion {
		return nil, apperr.ErrConflict
	}
	next := ini.Clone()
	next.Version = baseVersion + 1
	s.items[i] = next
	s.refreshSnapshot()
	return next, nil
}

// Replace reloads the whole collection, running the identity guard over the
// candidates first. It is the only full-collection write path and is
// reserved for bulk loads from persistence.
func (s *Store) Replace(candidates []*domain.Initiative) []string {
	clean, duplicates := Admit(candidates, s.logger)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make([]*domain.Initiative, 0, len(clean))
	s.index = make(map[string]int, len(clean))
	for _, ini := range clean {
		next := ini.Clone()
		if next.Version == 0 {
			next.Version = 1
		}
		s.index[next.ID] = len(s.items)
		s.items = append(s.items, next)
	}
	s.refreshSnapshot()
	return duplicates
}
