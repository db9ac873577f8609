package mcpserver

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/raido/internal/audit"
	"github.com/starford/raido/internal/domain"
	"github.com/starford/raido/internal/notify"
	"github.com/starford/raido/internal/optimistic"
	"github.com/starford/raido/internal/store"
	"github.com/starford/raido/internal/syncqueue"
	"github.com/starford/raido/internal/tracker"
)

type nullBackend struct{}

func (nullBackend) SaveInitiative(context.Context, *domain.Initiative) error   { return nil }
func (nullBackend) AppendChangeLog(context.Context, domain.ChangeRecord) error { return nil }
func (nullBackend) SaveTasks(context.Context, []domain.Task, *domain.Initiative) error {
	return nil
}
func (nullBackend) LoadInitiatives(context.Context) ([]*domain.Initiative, error) {
	return nil, nil
}
func (nullBackend) DeleteInitiative(context.Context, string) (time.Time, error) {
	return time.Now(), nil
}
func (nullBackend) RestoreInitiative(context.Context, string) (bool, error) {
	return true, nil
}

func testServer(t *testing.T) (*Server, *tracker.Service) {
	t.Helper()
	logger := slog.Default()

	queue := syncqueue.New(nullBackend{}, 64, logger)
	t.Cleanup(queue.Close)

	svc := tracker.NewService(tracker.Deps{
		Store:      store.New(logger),
		Audit:      audit.NewRecorder(logger),
		Optimistic: optimistic.NewTracker(time.Second, 0),
		Center:     notify.NewCenter(logger),
		Queue:      queue,
		Logger:     logger,
	})
	t.Cleanup(svc.Close)

	return New(svc), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_initiatives":
		result, err = srv.listInitiatives(ctx, req)
	case "get_initiative":
		result, err = srv.getInitiative(ctx, req)
	case "get_history":
		result, err = srv.getHistory(ctx, req)
	case "list_notifications":
		result, err = srv.listNotifications(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListAndGetInitiative(t *testing.T) {
	srv, svc := testServer(t)
	ctx := context.Background()
	if _, err := svc.Create(ctx, &domain.Initiative{ID: "e1", Title: "Rollout", OwnerID: "alice"}, "alice"); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "list_initiatives", map[string]interface{}{})
	if text := resultText(r); !strings.Contains(text, `"Rollout"`) {
		t.Errorf("list result = %q", text)
	}

	r = callTool(t, srv, "get_initiative", map[string]interface{}{"id": "e1"})
	if text := resultText(r); !strings.Contains(text, `"e1"`) {
		t.Errorf("get result = %q", text)
	}
}

func TestGetInitiativeMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_initiative", map[string]interface{}{"id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing initiative")
	}
}

func TestListExcludesDeletedByDefault(t *testing.T) {
	srv, svc := testServer(t)
	ctx := context.Background()
	_, _ = svc.Create(ctx, &domain.Initiative{ID: "e1", Title: "Gone"}, "a")
	if _, err := svc.SoftDelete(ctx, "e1", "a"); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "list_initiatives", map[string]interface{}{})
	if text := resultText(r); strings.Contains(text, `"Gone"`) {
		t.Errorf("deleted initiative leaked into default listing: %q", text)
	}

	r = callTool(t, srv, "list_initiatives", map[string]interface{}{"include_deleted": true})
	if text := resultText(r); !strings.Contains(text, `"Gone"`) {
		t.Errorf("include_deleted listing missing record: %q", text)
	}
}

func TestGetHistory(t *testing.T) {
	srv, svc := testServer(t)
	ctx := context.Background()
	_, _ = svc.Create(ctx, &domain.Initiative{ID: "e1", Title: "x"}, "a")

	r := callTool(t, srv, "get_history", map[string]interface{}{"id": "e1"})
	if text := resultText(r); text != "no recorded changes" {
		t.Errorf("empty history = %q", text)
	}

	if _, err := svc.UpdateField(ctx, "e1", domain.FieldStatus, string(domain.StatusDone), "a"); err != nil {
		t.Fatal(err)
	}
	r = callTool(t, srv, "get_history", map[string]interface{}{"id": "e1"})
	if text := resultText(r); !strings.Contains(text, `"status"`) {
		t.Errorf("history = %q", text)
	}
}

func TestListNotifications(t *testing.T) {
	srv, svc := testServer(t)
	ctx := context.Background()
	_, _ = svc.Create(ctx, &domain.Initiative{ID: "e1", OwnerID: "alice", Title: "x"}, "a")
	if _, err := svc.AddComment(ctx, "e1", "bob", "ping @alice"); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "list_notifications", map[string]interface{}{"user": "alice"})
	if text := resultText(r); !strings.Contains(text, `"mention"`) {
		t.Errorf("notifications = %q", text)
	}

	r = callTool(t, srv, "list_notifications", map[string]interface{}{"user": "nobody"})
	if text := resultText(r); text != "no notifications" {
		t.Errorf("empty notifications = %q", text)
	}
}
