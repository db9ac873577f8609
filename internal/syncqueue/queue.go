// Package syncqueue owns the persistence contract: what the core tells the
// external store to persist and when. Queue methods are fire-and-forget
// (failures are logged by the worker); only the synchronous enqueue step can
// fail, and that failure drives the optimistic rollback path.
package syncqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/domain"
)

// Backend is the external persistence service. Implementations may be slow;
// the queue serializes calls on a single worker.
type Backend interface {
	SaveInitiative(ctx context.Context, ini *domain.Initiative) error
	AppendChangeLog(ctx context.Context, rec domain.ChangeRecord) error
	SaveTasks(ctx context.Context, tasks []domain.Task, parent *domain.Initiative) error
	LoadInitiatives(ctx context.Context) ([]*domain.Initiative, error)
	DeleteInitiative(ctx context.Context, id string) (time.Time, error)
	RestoreInitiative(ctx context.Context, id string) (bool, error)
}

type job struct {
	name string
	run  func(ctx context.Context) error
	done chan struct{} // non-nil for flush barriers
}

// Queue serializes persistence writes on a background worker.
type Queue struct {
	backend Backend
	jobs    chan job
	logger  *slog.Logger

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// New creates a queue and starts its worker.
func New(backend Backend, depth int, logger *slog.Logger) *Queue {
	if depth <= 0 {
		depth = 256
	}
	q := &Queue{
		backend: backend,
		jobs:    make(chan job, depth),
		logger:  logger,
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.stopped)
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			// Drain what is already queued before exiting.
			for {
				select {
				case j := <-q.jobs:
					q.exec(ctx, j)
				default:
					return
				}
			}
		case j := <-q.jobs:
			q.exec(ctx, j)
		}
	}
}

func (q *Queue) exec(ctx context.Context, j job) {
	if j.run != nil {
		if err := j.run(ctx); err != nil {
			q.logger.Warn("syncqueue: job failed",
				slog.String("job", j.name),
				slog.String("error", err.Error()))
		}
	}
	if j.done != nil {
		close(j.done)
	}
}

// enqueue is the synchronous step: it fails immediately when the queue is
// closed or full instead of blocking a caller that holds UI state.
func (q *Queue) enqueue(j job) error {
	if q.closed.Load() {
		return fmt.Errorf("syncqueue: closed: %w", apperr.ErrSyncFailed)
	}
	select {
	case q.jobs <- j:
		return nil
	default:
		return fmt.Errorf("syncqueue: queue full: %w", apperr.ErrSyncFailed)
	}
}

// QueueInitiativeSync asks the backend to persist a deep copy of ini.
func (q *Queue) QueueInitiativeSync(ini *domain.Initiative) error {
	copied := ini.Clone()
	return q.enqueue(job{name: "initiative_sync", run: func(ctx context.Context) error {
		return q.backend.SaveInitiative(ctx, copied)
	}})
}

// QueueChangeLog persists one audit record.
func (q *Queue) QueueChangeLog(rec domain.ChangeRecord) error {
	return q.enqueue(job{name: "change_log", run: func(ctx context.Context) error {
		return q.backend.AppendChangeLog(ctx, rec)
	}})
}

// QueueTasksSync persists the task list for a parent initiative.
func (q *Queue) QueueTasksSync(tasks []domain.Task, parent *domain.Initiative) error {
	copied := parent.Clone()
	ts := make([]domain.Task, len(tasks))
	copy(ts, tasks)
	return q.enqueue(job{name: "tasks_sync", run: func(ctx context.Context) error {
		return q.backend.SaveTasks(ctx, ts, copied)
	}})
}

// ForceSyncNow blocks until every job queued before the call has been
// attempted.
func (q *Queue) ForceSyncNow() error {
	done := make(chan struct{})
	if err := q.enqueue(job{name: "flush", done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-q.stopped:
		return nil
	}
}

// LoadInitiatives fetches the full entity set from the backend. It is the
// only call that gates store population, so it bypasses the queue.
func (q *Queue) LoadInitiatives(ctx context.Context) ([]*domain.Initiative, error) {
	return q.backend.LoadInitiatives(ctx)
}

// DeleteInitiative soft-deletes on the backend and returns the deletion time.
func (q *Queue) DeleteInitiative(ctx context.Context, id string) (time.Time, error) {
	return q.backend.DeleteInitiative(ctx, id)
}

// RestoreInitiative reverses a soft delete on the backend.
func (q *Queue) RestoreInitiative(ctx context.Context, id string) (bool, error) {
	return q.backend.RestoreInitiative(ctx, id)
}

// Close stops the worker after draining queued jobs.
func (q *Queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.stopCh)
	}
	<-q.stopped
}
