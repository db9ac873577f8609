// Package tracker orchestrates the reconciliation core: every mutation
// path (local edit, remote push, automation merge, bulk load) funnels
// through here so the store, audit trail, optimistic markers, cache,
// persistence queue and push channel stay consistent with each other.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/audit"
	"github.com/starford/raido/internal/cache"
	"github.com/starford/raido/internal/domain"
	"github.com/starford/raido/internal/notify"
	"github.com/starford/raido/internal/optimistic"
	"github.com/starford/raido/internal/push"
	"github.com/starford/raido/internal/store"
	"github.com/starford/raido/internal/syncqueue"
	"github.com/starford/raido/internal/webhook"
)

// overlookedThreshold is the slippage count above which the repeated
// overlooked notice fires.
const overlookedThreshold = 2

// Deps wires the service. Cache, Broker, Webhook and OnFieldChanged are
// optional; everything else is required.
type Deps struct {
	Store          *store.Store
	Audit          *audit.Recorder
	Optimistic     *optimistic.Tracker
	Center         *notify.Center
	Queue          *syncqueue.Queue
	Cache          *cache.DB
	Broker         *push.Broker
	Webhook        *webhook.Notifier
	OnFieldChanged func(id string, field domain.Field)
	Logger         *slog.Logger
}

// Service is the single coordination point for initiative mutations.
type Service struct {
	store      *store.Store
	audit      *audit.Recorder
	optimistic *optimistic.Tracker
	center     *notify.Center
	queue      *syncqueue.Queue
	cache      *cache.DB
	broker     *push.Broker
	webhook    *webhook.Notifier
	onField    func(id string, field domain.Field)
	logger     *slog.Logger
}

// NewService creates the service and connects the notification center to
// the push channel.
func NewService(d Deps) *Service {
	s := &Service{
		store:      d.Store,
		audit:      d.Audit,
		optimistic: d.Optimistic,
		center:     d.Center,
		queue:      d.Queue,
		cache:      d.Cache,
		broker:     d.Broker,
		webhook:    d.Webhook,
		onField:    d.OnFieldChanged,
		logger:     d.Logger,
	}
	if s.broker != nil {
		s.center.SetPublisher(s.broker.BroadcastNotification)
	}
	return s
}

// Load populates the store from the persistence backend, falling back to
// the last-known-good cache mirror when the load fails. A fallback is a
// warning, not an error: the session starts either way.
func (s *Service) Load(ctx context.Context) error {
	items, err := s.queue.LoadInitiatives(ctx)
	if err != nil {
		s.logger.Warn("load: backend failed, falling back to cache",
			slog.String("error", err.Error()))
		if s.cache == nil {
			s.store.Replace(nil)
			return nil
		}
		cached, cacheErr := s.cache.LoadAll()
		if cacheErr != nil {
			s.logger.Warn("load: cache fallback failed",
				slog.String("error", cacheErr.Error()))
		}
		s.store.Replace(cached)
		return nil
	}

	dupes := s.store.Replace(items)
	if len(dupes) > 0 {
		s.logger.Warn("load: backend returned duplicate ids",
			slog.Int("count", len(dupes)))
	}
	if s.cache != nil {
		if err := s.cache.ReplaceAll(s.store.List()); err != nil {
			s.logger.Warn("load: cache mirror failed", slog.String("error", err.Error()))
		}
	}
	s.logger.Info("load: store populated", slog.Int("count", s.store.Len()))
	return nil
}

// Get returns the committed initiative for id.
func (s *Service) Get(id string) (*domain.Initiative, error) {
	ini, ok := s.store.Get(id)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return ini, nil
}

// List returns the current collection, skipping soft-deleted records unless
// includeDeleted is set.
func (s *Service) List(includeDeleted bool) []*domain.Initiative {
	all := s.store.List()
	if includeDeleted {
		return all
	}
	out := make([]*domain.Initiative, 0, len(all))
	for _, ini := range all {
		if ini.Live() {
			out = append(out, ini)
		}
	}
	return out
}

// Notifications returns stored notifications for userID, newest first.
func (s *Service) Notifications(userID string, unreadOnly bool) []domain.Notification {
	return s.center.List(userID, unreadOnly)
}

// MarkNotificationRead flips the read flag for a stored notification.
func (s *Service) MarkNotificationRead(id string) error {
	return s.center.MarkRead(id)
}

// GlobalAudit returns recent change records, newest first.
func (s *Service) GlobalAudit(limit int) []domain.ChangeRecord {
	return s.audit.Recent(limit)
}

// Create inserts a new initiative. A candidate whose id already exists is
// treated as an update of that record, never a duplicate insert.
func (s *Service) Create(_ context.Context, ini *domain.Initiative, actor string) (*domain.Initiative, error) {
	if ini.ID == "" {
		ini.ID = uuid.NewString()
	}
	if ini.Status == "" {
		ini.Status = domain.StatusNotStarted
	}
	if !ini.Status.Valid() {
		return nil, fmt.Errorf("tracker: invalid status %q", ini.Status)
	}
	if ini.CreatedAt.IsZero() {
		ini.CreatedAt = time.Now()
	}

	committed, created := s.store.Upsert(ini)
	if created {
		s.logger.Info("create: initiative created",
			slog.String("initiative", committed.ID),
			slog.String("actor", actor))
	} else {
		s.logger.Info("create: id already present, treated as update",
			slog.String("initiative", committed.ID),
			slog.String("actor", actor))
	}

	s.mirror(committed)
	if err := s.queue.QueueInitiativeSync(committed); err != nil {
		s.logger.Warn("create: enqueue failed",
			slog.String("initiative", committed.ID),
			slog.String("error", err.Error()))
	}
	if s.broker != nil {
		if created {
			s.broker.BroadcastCreate(committed)
		} else {
			s.broker.BroadcastUpdate(committed)
		}
	}
	return committed, nil
}

// UpdateField is the optimistic local edit path. The new value is committed
// to the store (and visible) immediately; the pending marker is cleared on
// confirmation, rolled back on a synchronous enqueue failure, or expires
// after the tracker timeout.
func (s *Service) UpdateField(ctx context.Context, id string, field domain.Field, value, actor string) (*domain.Initiative, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("tracker: unknown field %q", field)
	}
	prev, ok := s.store.Get(id)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	old := domain.Get(prev, field)
	if old == value && field != domain.FieldReason {
		return prev, nil // no-op; identical re-delivery leaves observable state alone
	}
	// Reject unparseable values before anything is committed or recorded.
	if err := domain.Set(prev.Clone(), field, value); err != nil {
		return nil, err
	}

	// Deadline pushed further out counts as slippage.
	slipped := field == domain.FieldETA && old != "" && value != "" && value > old

	committed, err := s.store.Apply(id, func(i *domain.Initiative) {
		_ = domain.Set(i, field, value)
		if slipped {
			i.OverlookedCount++
			i.LastDelayDate = time.Now().Format(domain.DateLayout)
		}
	})
	if err != nil {
		return nil, err
	}

	s.optimistic.Begin(id, field, value, old)

	if err := s.queue.QueueInitiativeSync(committed); err != nil {
		return nil, s.rollbackField(id, field, prev, err)
	}
	s.optimistic.Confirm(id)

	// Recorded only after the enqueue is accepted: a rolled-back edit
	// leaves no trace in the entity history or the global log.
	if field.Tracked() {
		rec := s.audit.Record(id, field, old, value, actor)
		withHistory, histErr := s.store.Apply(id, func(i *domain.Initiative) {
			i.History = append(i.History, rec)
		})
		if histErr != nil {
			s.logger.Warn("update: history append failed",
				slog.String("initiative", id), slog.String("error", histErr.Error()))
		} else {
			committed = withHistory
		}
		if qErr := s.queue.QueueChangeLog(rec); qErr != nil {
			s.logger.Warn("update: change log enqueue failed",
				slog.String("error", qErr.Error()))
		}
		s.center.AddAll(notify.FromFieldChange(rec, committed, actor))
		if field == domain.FieldETA && s.webhook != nil {
			go s.webhook.NotifyEtaChange(context.WithoutCancel(ctx), rec, committed)
		}
	}
	if slipped && committed.OverlookedCount > overlookedThreshold {
		s.center.Add(notify.Overlooked(committed, committed.OverlookedCount))
	}

	s.mirror(committed)
	if s.broker != nil {
		s.broker.BroadcastUpdate(committed)
	}
	if s.onField != nil {
		s.onField(id, field)
	}
	return committed, nil
}

// rollbackField restores the exact pre-edit state for the failed field and
// clears the marker. The returned error is retryable via RetrySync.
func (s *Service) rollbackField(id string, field domain.Field, prev *domain.Initiative, cause error) error {
	s.optimistic.Rollback(id)
	reverted, err := s.store.Apply(id, func(i *domain.Initiative) {
		_ = domain.Set(i, field, domain.Get(prev, field))
		i.OverlookedCount = prev.OverlookedCount
		i.LastDelayDate = prev.LastDelayDate
	})
	if err != nil {
		s.logger.Error("rollback: revert failed",
			slog.String("initiative", id), slog.String("error", err.Error()))
	} else {
		s.mirror(reverted)
	}
	s.logger.Warn("update: enqueue failed, rolled back",
		slog.String("initiative", id),
		slog.String("field", string(field)),
		slog.String("error", cause.Error()))
	return fmt.Errorf("tracker: persist %s of %s: %w", field, id, apperr.ErrSyncFailed)
}

// RetrySync re-enqueues persistence of the current committed state for id.
// It is the retry affordance paired with a failed UpdateField.
func (s *Service) RetrySync(_ context.Context, id string) error {
	ini, ok := s.store.Get(id)
	if !ok {
		return apperr.ErrNotFound
	}
	if err := s.queue.QueueInitiativeSync(ini); err != nil {
		return fmt.Errorf("tracker: retry %s: %w", id, apperr.ErrSyncFailed)
	}
	return nil
}

// AddComment appends a comment and fans out mention/new-comment notices.
func (s *Service) AddComment(_ context.Context, id, authorID, text string) (domain.Comment, error) {
	c := domain.Comment{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		Text:      text,
		CreatedAt: time.Now(),
	}
	committed, err := s.store.Apply(id, func(i *domain.Initiative) {
		i.Comments = append(i.Comments, c)
	})
	if err != nil {
		return domain.Comment{}, err
	}

	s.center.AddAll(notify.FromComment(c, committed))
	s.mirror(committed)
	if err := s.queue.QueueInitiativeSync(committed); err != nil {
		s.logger.Warn("comment: enqueue failed", slog.String("error", err.Error()))
	}
	if s.broker != nil {
		s.broker.BroadcastComment(id, c)
	}
	return c, nil
}

// SoftDelete marks the record deleted; it never removes it. The backend is
// told first so the deletion time is authoritative when it answers.
func (s *Service) SoftDelete(ctx context.Context, id, actor string) (*domain.Initiative, error) {
	prev, ok := s.store.Get(id)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if prev.Status == domain.StatusDeleted {
		return prev, nil
	}

	deletedAt, err := s.queue.DeleteInitiative(ctx, id)
	if err != nil {
		deletedAt = time.Now()
		s.logger.Warn("delete: backend call failed, using local time",
			slog.String("initiative", id), slog.String("error", err.Error()))
	}

	rec := s.audit.Record(id, domain.FieldStatus, string(prev.Status), string(domain.StatusDeleted), actor)
	committed, err := s.store.Apply(id, func(i *domain.Initiative) {
		i.Status = domain.StatusDeleted
		i.DeletedAt = &deletedAt
		i.History = append(i.History, rec)
	})
	if err != nil {
		return nil, err
	}

	s.mirror(committed)
	if s.broker != nil {
		s.broker.BroadcastUpdate(committed)
	}
	return committed, nil
}

// Restore reverses a soft delete.
func (s *Service) Restore(ctx context.Context, id, actor string) (*domain.Initiative, error) {
	prev, ok := s.store.Get(id)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if prev.Status != domain.StatusDeleted {
		return prev, nil
	}

	if _, err := s.queue.RestoreInitiative(ctx, id); err != nil {
		s.logger.Warn("restore: backend call failed",
			slog.String("initiative", id), slog.String("error", err.Error()))
	}

	rec := s.audit.Record(id, domain.FieldStatus, string(domain.StatusDeleted), string(domain.StatusInProgress), actor)
	committed, err := s.store.Apply(id, func(i *domain.Initiative) {
		i.Status = domain.StatusInProgress
		i.DeletedAt = nil
		i.History = append(i.History, rec)
	})
	if err != nil {
		return nil, err
	}

	s.mirror(committed)
	if s.broker != nil {
		s.broker.BroadcastUpdate(committed)
	}
	return committed, nil
}

// ApplyRemote folds a push-channel delivery into the store. Re-delivering
// an update for an id already at that value is a no-op on observable
// state. Remote-origin changes are not re-broadcast.
func (s *Service) ApplyRemote(_ context.Context, ini *domain.Initiative) (*domain.Initiative, bool) {
	if cur, ok := s.store.Get(ini.ID); ok && sameObservableState(cur, ini) {
		return cur, false
	}
	s.store.Merge([]*domain.Initiative{ini})
	committed, _ := s.store.Get(ini.ID)
	s.mirror(committed)
	return committed, true
}

// ApplyRemoteComment appends a remote comment unless its id is already
// present (idempotent re-delivery).
func (s *Service) ApplyRemoteComment(_ context.Context, id string, c domain.Comment) (bool, error) {
	applied := false
	_, err := s.store.Apply(id, func(i *domain.Initiative) {
		for _, existing := range i.Comments {
			if existing.ID == c.ID {
				return
			}
		}
		i.Comments = append(i.Comments, c)
		applied = true
	})
	if err != nil {
		return false, err
	}
	if applied {
		if committed, ok := s.store.Get(id); ok {
			s.mirror(committed)
		}
	}
	return applied, nil
}

// ReceiveNotification stores a remotely delivered notification; the center
// dedupes by id.
func (s *Service) ReceiveNotification(n domain.Notification) bool {
	return s.center.Add(n)
}

// MergedByAutomation is the post-commit hook for automation results: they
// are already in the store, so only the mirrors and broadcast remain.
func (s *Service) MergedByAutomation(ini *domain.Initiative) {
	s.mirror(ini)
	if err := s.queue.QueueInitiativeSync(ini); err != nil {
		s.logger.Warn("automation merge: enqueue failed",
			slog.String("initiative", ini.ID), slog.String("error", err.Error()))
	}
	if s.broker != nil {
		s.broker.BroadcastUpdate(ini)
	}
}

// Flush blocks until every queued persistence job has been attempted.
func (s *Service) Flush() error {
	return s.queue.ForceSyncNow()
}

// Close releases marker timers.
func (s *Service) Close() {
	s.optimistic.Close()
}

// mirror keeps the local cache in step with the store.
func (s *Service) mirror(ini *domain.Initiative) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Upsert(ini); err != nil {
		s.logger.Warn("cache: upsert failed",
			slog.String("initiative", ini.ID), slog.String("error", err.Error()))
	}
}

// sameObservableState compares the fields a re-delivered update could
// change. Version and history length are deliberately ignored: marker and
// audit churn do not count as observable divergence.
func sameObservableState(a, b *domain.Initiative) bool {
	return a.Title == b.Title &&
		a.Status == b.Status &&
		a.Priority == b.Priority &&
		a.ETA == b.ETA &&
		a.EstimatedEffort == b.EstimatedEffort &&
		a.ActualEffort == b.ActualEffort &&
		a.OwnerID == b.OwnerID &&
		len(a.Comments) == len(b.Comments)
}
