package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/raido/internal/domain"
)

// Scanner runs the time-based notification checks: deadline-passed and
// weekly effort overrun. It re-reads the live snapshot on every tick, so a
// long-lived scanner never acts on the collection it saw at start-up.
type Scanner struct {
	snapshot func() []*domain.Initiative
	center   *Center
	interval time.Duration
	logger   *slog.Logger
}

// NewScanner creates a scanner over the given snapshot source.
func NewScanner(snapshot func() []*domain.Initiative, center *Center, interval time.Duration, logger *slog.Logger) *Scanner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scanner{snapshot: snapshot, center: center, interval: interval, logger: logger}
}

// Run ticks until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("notify scanner: stopped")
			return
		case now := <-ticker.C:
			s.Scan(now)
		}
	}
}

// Scan runs one pass and returns how many notifications were accepted.
// The per-day dedupe in the center guarantees at most one delay notice per
// initiative per calendar day even though the check re-runs every minute.
func (s *Scanner) Scan(now time.Time) int {
	day := now.Format(domain.DateLayout)
	// Midnight in now's own zone; Truncate would cut on UTC-epoch
	// boundaries and misjudge today's deadlines in offset zones.
	dayStart, _ := time.ParseInLocation(domain.DateLayout, day, now.Location())
	accepted := 0

	for _, ini := range s.snapshot() {
		if !ini.Live() || ini.OwnerID == "" {
			continue
		}

		if ini.Status != domain.StatusDone && ini.ETA != "" {
			eta, err := time.ParseInLocation(domain.DateLayout, ini.ETA, now.Location())
			if err != nil {
				s.logger.Warn("notify scanner: bad eta",
					slog.String("initiative", ini.ID), slog.String("eta", ini.ETA))
			} else if eta.Before(dayStart) {
				n := newNotification(domain.NotifyDelay, ini.ID, ini.OwnerID, map[string]string{
					"eta": ini.ETA,
				})
				if s.center.AddOncePerDay(n, day) {
					accepted++
				}
			}
		}

		if ini.EstimatedEffort > 0 && ini.ActualEffort > ini.EstimatedEffort {
			year, week := now.ISOWeek()
			n := newNotification(domain.NotifyWeeklyEffortExceeded, ini.ID, ini.OwnerID, map[string]string{
				"estimated": fmt.Sprintf("%g", ini.EstimatedEffort),
				"actual":    fmt.Sprintf("%g", ini.ActualEffort),
			})
			if s.center.AddOncePerDay(n, fmt.Sprintf("%d-W%02d", year, week)) {
				accepted++
			}
		}
	}
	return accepted
}
