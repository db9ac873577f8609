// Package optimistic tracks pending local edits awaiting persistence
// confirmation.
//
// Per-id state machine: Idle -> Pending -> {Confirmed, RolledBack, Expired}.
// A marker is guaranteed to disappear either on confirmation (after a short
// grace delay), on rollback (immediately), or when the timeout fires.
package optimistic

import (
	"sync"
	"time"

	"github.com/starford/raido/internal/domain"
)

// Marker records one pending optimistic edit.
type Marker struct {
	InitiativeID string
	Field        domain.Field
	Value        string // optimistic value currently displayed
	Previous     string // pre-edit value, restored on rollback
	Timestamp    time.Time
}

type entry struct {
	marker Marker
	timer  *time.Timer
	gen    uint64
}

// Tracker holds at most one marker per initiative id. A new local edit on a
// Pending id replaces the marker and re-arms the timer: last local intent
// wins for display purposes.
type Tracker struct {
	timeout time.Duration
	grace   time.Duration

	mu      sync.Mutex
	markers map[string]*entry
	gen     uint64
}

// NewTracker creates a tracker. timeout bounds how long a marker may live
// without confirmation; grace delays clearing after confirmation to absorb
// near-simultaneous pushes for the same id.
func NewTracker(timeout, grace time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if grace < 0 {
		grace = 0
	}
	return &Tracker{
		timeout: timeout,
		grace:   grace,
		markers: make(map[string]*entry),
	}
}

// Begin enters Pending for id, replacing any existing marker and re-arming
// the timeout. previous is the pre-edit value needed for rollback.
func (t *Tracker) Begin(id string, field domain.Field, value, previous string) Marker {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.markers[id]; ok {
		old.timer.Stop()
	}
	t.gen++
	gen := t.gen
	m := Marker{
		InitiativeID: id,
		Field:        field,
		Value:        value,
		Previous:     previous,
		Timestamp:    time.Now(),
	}
	t.markers[id] = &entry{
		marker: m,
		gen:    gen,
		timer:  time.AfterFunc(t.timeout, func() { t.expire(id, gen) }),
	}
	return m
}

// Confirm marks the pending edit as persisted. The marker is cleared after
// the grace delay rather than instantly; the optimistic value stays.
func (t *Tracker) Confirm(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.markers[id]
	if !ok {
		return
	}
	e.timer.Stop()
	gen := e.gen
	e.timer = time.AfterFunc(t.grace, func() { t.expire(id, gen) })
}

// Rollback clears the marker immediately and returns it so the caller can
// restore the pre-edit value.
func (t *Tracker) Rollback(id string) (Marker, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.markers[id]
	if !ok {
		return Marker{}, false
	}
	e.timer.Stop()
	delete(t.markers, id)
	return e.marker, true
}

// Pending returns the active marker for id, if any.
func (t *Tracker) Pending(id string) (Marker, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.markers[id]
	if !ok {
		return Marker{}, false
	}
	return e.marker, true
}

// Len returns the number of active markers.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.markers)
}

// Close stops all timers and drops all markers.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, e := range t.markers {
		e.timer.Stop()
		delete(t.markers, id)
	}
}

// expire removes the marker for id unless a newer edit replaced it. The
// optimistic value is left in place (assumed eventually consistent).
func (t *Tracker) expire(id string, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.markers[id]; ok && e.gen == gen {
		delete(t.markers, id)
	}
}
