package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/raido/internal/domain"
)

func TestNotifyEtaChangePostsPayload(t *testing.T) {
	var got etaPayload
	var contentType, method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, time.Second, slog.Default())
	ts := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	rec := domain.ChangeRecord{
		InitiativeID: "e1",
		Field:        domain.FieldETA,
		OldValue:     "2025-01-10",
		NewValue:     "2025-01-20",
		ChangedBy:    "bob",
		Timestamp:    ts,
	}
	ini := &domain.Initiative{ID: "e1", Title: "Migration", OwnerID: "alice"}

	n.NotifyEtaChange(context.Background(), rec, ini)

	if method != http.MethodPost {
		t.Errorf("method = %q, want POST", method)
	}
	if contentType != "application/json" {
		t.Errorf("content type = %q", contentType)
	}
	want := etaPayload{
		InitiativeID: "e1",
		Title:        "Migration",
		OwnerID:      "alice",
		OldETA:       "2025-01-10",
		NewETA:       "2025-01-20",
		ChangedBy:    "bob",
		Timestamp:    ts.Format(time.RFC3339),
	}
	if got != want {
		t.Errorf("payload = %+v, want %+v", got, want)
	}
}

func TestNotifyEtaChangeFailuresAreSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	n := NewNotifier(srv.URL, time.Second, slog.Default())
	rec := domain.ChangeRecord{InitiativeID: "e1", NewValue: "2025-01-20", Timestamp: time.Now()}
	ini := &domain.Initiative{ID: "e1"}

	// Rejected status: logged, not propagated.
	n.NotifyEtaChange(context.Background(), rec, ini)

	// Unreachable endpoint: same contract.
	srv.Close()
	n.NotifyEtaChange(context.Background(), rec, ini)
}

func TestEmptyURLDisablesDelivery(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	n := NewNotifier("", time.Second, slog.Default())
	n.NotifyEtaChange(context.Background(), domain.ChangeRecord{InitiativeID: "e1"}, &domain.Initiative{ID: "e1"})
	if called {
		t.Error("disabled notifier made a request")
	}
}
