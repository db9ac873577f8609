package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/raido/internal/domain"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestBroadcastUpdateDelivery(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.BroadcastUpdate(&domain.Initiative{ID: "e1", Status: domain.StatusAtRisk})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: initiative.updated") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"id":"e1"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestBroadcastNotificationCarriesStableID(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.BroadcastNotification(domain.Notification{ID: "n-42", Type: domain.NotifyDelay})

	select {
	case msg := <-ch:
		if !strings.Contains(string(msg), `"id":"n-42"`) {
			t.Errorf("notification id missing in %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.BroadcastComment("e1", domain.Comment{ID: "c1", AuthorID: "bob", Text: "hi"})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: comment.added") {
		t.Errorf("body = %q", body)
	}
}

func TestPublishAfterClose(t *testing.T) {
	b := NewBroker()
	b.Close()
	// Must not panic or block.
	b.BroadcastUpdate(&domain.Initiative{ID: "e1"})
	if b.ClientCount() != 0 {
		t.Error("count after close")
	}
	ch := b.Subscribe()
	if _, ok := <-ch; ok {
		t.Error("subscribe after close should return a closed channel")
	}
}
