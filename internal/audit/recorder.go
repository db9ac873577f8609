// Package audit builds immutable change records and keeps the global
// chronological log used for diagnostics.
package audit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/raido/internal/domain"
)

// RecordFunc matches the callback contract handed to the automation engine.
type RecordFunc func(initiativeID string, field domain.Field, oldValue, newValue, actor string) domain.ChangeRecord

// Recorder mints ChangeRecords and appends them to a global log. The log is
// diagnostics-only and served newest-first; entity history is appended by
// the caller inside the same store commit that changes the field.
type Recorder struct {
	mu     sync.Mutex
	log    []domain.ChangeRecord
	logger *slog.Logger
}

// NewRecorder creates an empty recorder.
func NewRecorder(logger *slog.Logger) *Recorder {
	return &Recorder{logger: logger}
}

// Record creates one change record for a single field transition. Callers
// invoke it only when oldValue differs from newValue for a tracked field;
// a save touching three fields yields three records.
func (r *Recorder) Record(initiativeID string, field domain.Field, oldValue, newValue, actor string) domain.ChangeRecord {
	rec := domain.ChangeRecord{
		ID:           uuid.NewString(),
		InitiativeID: initiativeID,
		Field:        field,
		OldValue:     oldValue,
		NewValue:     newValue,
		ChangedBy:    actor,
		Timestamp:    time.Now(),
	}

	r.mu.Lock()
	r.log = append(r.log, rec)
	r.mu.Unlock()

	r.logger.Debug("audit: recorded change",
		slog.String("initiative", initiativeID),
		slog.String("field", string(field)),
		slog.String("actor", actor))
	return rec
}

// Recent returns up to limit records, newest first.
func (r *Recorder) Recent(limit int) []domain.ChangeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.log)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.ChangeRecord, limit)
	for i := 0; i < limit; i++ {
		out[i] = r.log[n-1-i]
	}
	return out
}

// Len returns the total number of recorded changes.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.log)
}
