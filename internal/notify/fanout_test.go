package notify

import (
	"log/slog"
	"testing"
	"time"

	"github.com/starford/raido/internal/domain"
)

func ini(id, owner string) *domain.Initiative {
	return &domain.Initiative{ID: id, OwnerID: owner, Status: domain.StatusInProgress}
}

func TestMentions(t *testing.T) {
	got := Mentions("ping @alice and @bob.smith, also @alice again")
	want := []string{"alice", "bob.smith"}
	if len(got) != len(want) {
		t.Fatalf("mentions = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("mentions[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if got := Mentions("no mentions here"); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestFieldChangeNoSelfNotification(t *testing.T) {
	rec := domain.ChangeRecord{Field: domain.FieldETA, OldValue: "2025-01-10", NewValue: "2025-01-20"}
	ns := FromFieldChange(rec, ini("e1", "alice"), "alice")
	if ns != nil {
		t.Fatalf("self edit produced %v", ns)
	}
}

func TestFieldChangeNotifiesOwner(t *testing.T) {
	rec := domain.ChangeRecord{Field: domain.FieldETA, OldValue: "2025-01-10", NewValue: "2025-01-20"}
	ns := FromFieldChange(rec, ini("e1", "alice"), "bob")
	if len(ns) != 1 {
		t.Fatalf("got %d notifications", len(ns))
	}
	if ns[0].Type != domain.NotifyEtaChange || ns[0].UserID != "alice" {
		t.Errorf("notification = %+v", ns[0])
	}
}

func TestAtRiskAlwaysNotifiesOwner(t *testing.T) {
	rec := domain.ChangeRecord{Field: domain.FieldStatus, OldValue: "in_progress", NewValue: "at_risk"}
	// Even the owner's own edit fires the at-risk notice.
	ns := FromFieldChange(rec, ini("e1", "alice"), "alice")
	if len(ns) != 1 || ns[0].Type != domain.NotifyAtRisk {
		t.Fatalf("notifications = %+v", ns)
	}
}

func TestCommentFanout(t *testing.T) {
	c := domain.Comment{ID: "c1", AuthorID: "bob", Text: "cc @carol and @bob"}
	ns := FromComment(c, ini("e1", "alice"))

	types := map[domain.NotificationType]int{}
	users := map[string]int{}
	for _, n := range ns {
		types[n.Type]++
		users[n.UserID]++
	}
	if types[domain.NotifyMention] != 2 {
		t.Errorf("mentions = %d, want 2 (self-mention preserved)", types[domain.NotifyMention])
	}
	if types[domain.NotifyNewComment] != 1 || users["alice"] != 1 {
		t.Errorf("owner notice missing: %+v", ns)
	}
}

func TestCenterIdempotentAdd(t *testing.T) {
	c := NewCenter(slog.Default())
	n := newNotification(domain.NotifyDelay, "e1", "alice", nil)

	if !c.Add(n) {
		t.Fatal("first add rejected")
	}
	if c.Add(n) {
		t.Error("re-delivery of the same id must be a no-op")
	}
	if c.Len() != 1 {
		t.Errorf("len = %d", c.Len())
	}
}

func TestCenterMarkRead(t *testing.T) {
	c := NewCenter(slog.Default())
	n := newNotification(domain.NotifyMention, "e1", "alice", nil)
	c.Add(n)

	if err := c.MarkRead(n.ID); err != nil {
		t.Fatal(err)
	}
	if got := c.List("alice", true); len(got) != 0 {
		t.Errorf("unread list = %v", got)
	}
	if got := c.List("alice", false); len(got) != 1 || !got[0].Read {
		t.Errorf("list = %v", got)
	}
	if err := c.MarkRead("missing"); err == nil {
		t.Error("expected error for unknown id")
	}
}

func TestScannerOneDelayPerDay(t *testing.T) {
	c := NewCenter(slog.Default())
	overdue := ini("e1", "alice")
	overdue.ETA = "2020-01-01"
	snapshot := func() []*domain.Initiative { return []*domain.Initiative{overdue} }

	s := NewScanner(snapshot, c, time.Minute, slog.Default())
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	if got := s.Scan(now); got != 1 {
		t.Fatalf("first scan accepted %d", got)
	}
	// Re-running the check the same day must not duplicate the notice.
	if got := s.Scan(now.Add(time.Minute)); got != 0 {
		t.Fatalf("second scan accepted %d", got)
	}
	// A new calendar day emits again.
	if got := s.Scan(now.Add(24 * time.Hour)); got != 1 {
		t.Fatalf("next-day scan accepted %d", got)
	}
}

func TestScannerDayBoundaryIsLocalMidnight(t *testing.T) {
	c := NewCenter(slog.Default())
	dueToday := ini("e1", "alice")
	dueToday.ETA = "2025-01-10"
	pastDue := ini("e2", "alice")
	pastDue.ETA = "2025-01-09"
	snapshot := func() []*domain.Initiative { return []*domain.Initiative{dueToday, pastDue} }

	s := NewScanner(snapshot, c, time.Minute, slog.Default())
	// Late evening in a zone far behind UTC: a UTC-epoch truncation would
	// already count today's deadline as passed.
	loc := time.FixedZone("UTC-11", -11*60*60)
	now := time.Date(2025, 1, 10, 23, 30, 0, 0, loc)

	if got := s.Scan(now); got != 1 {
		t.Fatalf("scan accepted %d, want only the past-due notice", got)
	}
	ns := c.List("alice", false)
	if len(ns) != 1 || ns[0].InitiativeID != "e2" {
		t.Errorf("notifications = %+v, want delay for e2 only", ns)
	}
}

func TestScannerSkipsDoneAndDeleted(t *testing.T) {
	c := NewCenter(slog.Default())
	done := ini("e1", "alice")
	done.ETA = "2020-01-01"
	done.Status = domain.StatusDone
	deleted := ini("e2", "alice")
	deleted.ETA = "2020-01-01"
	deleted.Status = domain.StatusDeleted
	snapshot := func() []*domain.Initiative { return []*domain.Initiative{done, deleted} }

	s := NewScanner(snapshot, c, time.Minute, slog.Default())
	if got := s.Scan(time.Now()); got != 0 {
		t.Fatalf("scan accepted %d, want 0", got)
	}
}

func TestScannerWeeklyEffortExceeded(t *testing.T) {
	c := NewCenter(slog.Default())
	over := ini("e1", "alice")
	over.EstimatedEffort = 5
	over.ActualEffort = 9
	snapshot := func() []*domain.Initiative { return []*domain.Initiative{over} }

	s := NewScanner(snapshot, c, time.Minute, slog.Default())
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	if got := s.Scan(now); got != 1 {
		t.Fatalf("scan accepted %d", got)
	}
	// Same ISO week: deduped.
	if got := s.Scan(now.Add(48 * time.Hour)); got != 0 {
		t.Fatalf("same-week scan accepted %d", got)
	}
}
