package automation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/audit"
	"github.com/starford/raido/internal/domain"
	"github.com/starford/raido/internal/store"
)

const maxRunLog = 10

// RunLogEntry is one retained execution log entry.
type RunLogEntry struct {
	Time     time.Time `json:"time"`
	Affected int       `json:"affected"`
	Merged   int       `json:"merged"`
	Error    string    `json:"error,omitempty"`
}

// Status is a definition plus its runtime execution state.
type Status struct {
	Definition Definition    `json:"definition"`
	LastRun    time.Time     `json:"last_run"`
	RunCount   int           `json:"run_count"`
	Log        []RunLogEntry `json:"log,omitempty"`
}

type runState struct {
	lastRun   time.Time
	runCount  int
	log       []RunLogEntry
	lastFired string // schedule minute key, guards double-firing within one minute
}

type fieldTrigger struct {
	id    string
	field domain.Field
}

// Scheduler invokes the engine on a fixed interval and on field-transition
// triggers. Every run dereferences the live store snapshot; nothing is
// closed over at scheduler creation, so a long-lived session never acts on
// the collection it saw at start-up.
type Scheduler struct {
	store    *store.Store
	engine   Engine
	record   audit.RecordFunc
	interval time.Duration
	logger   *slog.Logger
	onMerged func(*domain.Initiative)

	mu    sync.Mutex
	defs  []Definition
	state map[string]*runState

	triggerCh chan fieldTrigger
}

// NewScheduler creates a scheduler. onMerged, if non-nil, is called for
// every initiative an automation run successfully committed (used to fan
// the result out to cache, persistence and the push channel).
func NewScheduler(st *store.Store, engine Engine, record audit.RecordFunc, interval time.Duration, logger *slog.Logger, onMerged func(*domain.Initiative)) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		store:     st,
		engine:    engine,
		record:    record,
		interval:  interval,
		logger:    logger,
		onMerged:  onMerged,
		state:     make(map[string]*runState),
		triggerCh: make(chan fieldTrigger, 64),
	}
}

// SetDefinitions replaces the definition set (initial load and hot reload).
// Runtime state is kept for ids that survive the reload.
func (s *Scheduler) SetDefinitions(defs []Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = defs
	live := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		live[d.ID] = struct{}{}
		if _, ok := s.state[d.ID]; !ok {
			s.state[d.ID] = &runState{}
		}
	}
	for id := range s.state {
		if _, ok := live[id]; !ok {
			delete(s.state, id)
		}
	}
}

// Statuses returns every definition with its execution state.
func (s *Scheduler) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.defs))
	for _, d := range s.defs {
		st := s.state[d.ID]
		entry := Status{Definition: d}
		if st != nil {
			entry.LastRun = st.lastRun
			entry.RunCount = st.runCount
			entry.Log = append([]RunLogEntry(nil), st.log...)
		}
		out = append(out, entry)
	}
	return out
}

// FieldChanged reports a committed field transition. Non-blocking: when the
// trigger buffer is full the transition is dropped and the next scheduled
// tick picks the entity up instead.
func (s *Scheduler) FieldChanged(id string, field domain.Field) {
	if !field.TriggersAutomation() {
		return
	}
	select {
	case s.triggerCh <- fieldTrigger{id: id, field: field}:
	default:
		s.logger.Warn("automation: trigger buffer full, dropping",
			slog.String("initiative", id), slog.String("field", string(field)))
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("automation: scheduler stopped")
			return
		case now := <-ticker.C:
			s.RunDue(ctx, now)
		case tr := <-s.triggerCh:
			s.HandleFieldChange(ctx, tr.id, tr.field)
		}
	}
}

// RunDue executes every enabled definition whose schedule matches now,
// at most once per calendar minute. Returns the number of runs.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) int {
	minute := now.Format("15:04")
	key := now.Format("2006-01-02 15:04")

	runs := 0
	for _, def := range s.dueDefinitions(minute, key) {
		s.runDefinition(ctx, def, s.store.Snapshot())
		runs++
	}
	return runs
}

func (s *Scheduler) dueDefinitions(minute, key string) []Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Definition
	for _, d := range s.defs {
		if !d.Enabled || d.Trigger.Schedule != minute {
			continue
		}
		st := s.state[d.ID]
		if st.lastFired == key {
			continue
		}
		st.lastFired = key
		due = append(due, d)
	}
	return due
}

// HandleFieldChange executes every enabled definition whose trigger fields
// include field, against the single current entity.
func (s *Scheduler) HandleFieldChange(ctx context.Context, id string, field domain.Field) {
	ent, ok := s.store.Get(id)
	if !ok {
		return
	}
	for _, def := range s.fieldDefinitions(field) {
		s.runDefinition(ctx, def, []*domain.Initiative{ent})
	}
}

func (s *Scheduler) fieldDefinitions(field domain.Field) []Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Definition
	for _, d := range s.defs {
		if !d.Enabled {
			continue
		}
		for _, f := range d.Trigger.Fields {
			if f == field {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// runDefinition is the read-modify-merge core: copy the snapshot subset,
// let the engine rewrite the copy, then merge only the affected ids back
// against the versions the store holds *now*. A concurrent commit on an
// affected id wins and the automation's stale value for it is dropped.
func (s *Scheduler) runDefinition(ctx context.Context, def Definition, subset []*domain.Initiative) {
	baseVersions := make(map[string]int64, len(subset))
	for _, ent := range subset {
		baseVersions[ent.ID] = ent.Version
	}
	working := domain.CloneAll(subset)

	res, err := s.engine.ExecuteWorkflow(ctx, def, working, s.record)
	if err != nil {
		s.logger.Warn("automation: workflow failed",
			slog.String("automation", def.ID),
			slog.String("error", err.Error()))
		s.finishRun(def.ID, RunLogEntry{Time: time.Now(), Error: err.Error()})
		return
	}

	byID := make(map[string]*domain.Initiative, len(working))
	for _, ent := range working {
		byID[ent.ID] = ent
	}

	merged := 0
	for _, id := range res.InitiativesAffected {
		val, ok := byID[id]
		if !ok {
			continue
		}
		committed, mergeErr := s.store.MergeIfUnchanged(val, baseVersions[id])
		switch {
		case mergeErr == nil:
			merged++
			if s.onMerged != nil {
				s.onMerged(committed)
			}
		case errors.Is(mergeErr, apperr.ErrConflict):
			s.logger.Info("automation: result superseded by concurrent edit",
				slog.String("automation", def.ID), slog.String("initiative", id))
		case errors.Is(mergeErr, apperr.ErrNotFound):
			s.logger.Warn("automation: affected id vanished",
				slog.String("automation", def.ID), slog.String("initiative", id))
		}
	}

	s.finishRun(def.ID, RunLogEntry{
		Time:     time.Now(),
		Affected: len(res.InitiativesAffected),
		Merged:   merged,
	})
	s.logger.Debug("automation: run complete",
		slog.String("automation", def.ID),
		slog.Int("affected", len(res.InitiativesAffected)),
		slog.Int("merged", merged))
}

func (s *Scheduler) finishRun(defID string, entry RunLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state[defID]
	if !ok {
		return
	}
	st.lastRun = entry.Time
	st.runCount++
	st.log = append(st.log, entry)
	if len(st.log) > maxRunLog {
		st.log = st.log[len(st.log)-maxRunLog:]
	}
}
