package optimistic

import (
	"testing"
	"time"

	"github.com/starford/raido/internal/domain"
)

func TestBeginReplacesMarker(t *testing.T) {
	tr := NewTracker(time.Second, 0)
	defer tr.Close()

	tr.Begin("e1", domain.FieldETA, "2025-01-20", "2025-01-10")
	tr.Begin("e1", domain.FieldETA, "2025-01-25", "2025-01-10")

	if tr.Len() != 1 {
		t.Fatalf("markers = %d, want 1", tr.Len())
	}
	m, ok := tr.Pending("e1")
	if !ok || m.Value != "2025-01-25" {
		t.Errorf("marker = %+v, last local intent should win", m)
	}
}

func TestRollbackReturnsPreviousValue(t *testing.T) {
	tr := NewTracker(time.Second, 0)
	defer tr.Close()

	tr.Begin("e1", domain.FieldStatus, "at_risk", "in_progress")
	m, ok := tr.Rollback("e1")
	if !ok {
		t.Fatal("expected marker")
	}
	if m.Previous != "in_progress" {
		t.Errorf("previous = %q", m.Previous)
	}
	if tr.Len() != 0 {
		t.Error("marker not cleared on rollback")
	}
	if _, ok := tr.Rollback("e1"); ok {
		t.Error("second rollback should find nothing")
	}
}

func TestMarkerExpiresWithinTimeout(t *testing.T) {
	tr := NewTracker(50*time.Millisecond, 0)
	defer tr.Close()

	tr.Begin("e1", domain.FieldPriority, "high", "low")
	deadline := time.Now().Add(time.Second)
	for tr.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("marker never expired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConfirmClearsAfterGrace(t *testing.T) {
	tr := NewTracker(time.Second, 50*time.Millisecond)
	defer tr.Close()

	tr.Begin("e1", domain.FieldStatus, "done", "in_progress")
	tr.Confirm("e1")

	if tr.Len() != 1 {
		t.Fatal("marker should survive until the grace delay elapses")
	}
	deadline := time.Now().Add(time.Second)
	for tr.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("marker never cleared after confirm")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStaleTimerDoesNotClearNewerMarker(t *testing.T) {
	tr := NewTracker(40*time.Millisecond, 0)
	defer tr.Close()

	tr.Begin("e1", domain.FieldETA, "2025-02-01", "2025-01-01")
	time.Sleep(20 * time.Millisecond)
	// Re-arm before the first timer fires.
	tr.Begin("e1", domain.FieldETA, "2025-03-01", "2025-01-01")
	time.Sleep(25 * time.Millisecond)

	// First timer has fired by now; the replacement marker must survive.
	if m, ok := tr.Pending("e1"); !ok || m.Value != "2025-03-01" {
		t.Errorf("marker = %+v, ok = %v", m, ok)
	}
}
