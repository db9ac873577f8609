package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/automation"
	"github.com/starford/raido/internal/tracker"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *tracker.Service, sched *automation.Scheduler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, sched)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Initiatives.
	r.Get("/initiatives", h.ListInitiatives)
	r.Post("/initiatives", h.CreateInitiative)
	r.Get("/initiatives/{id}", h.GetInitiative)
	r.Patch("/initiatives/{id}/field", h.UpdateField)
	r.Post("/initiatives/{id}/sync", h.RetrySync)
	r.Delete("/initiatives/{id}", h.DeleteInitiative)
	r.Post("/initiatives/{id}/restore", h.RestoreInitiative)
	r.Get("/initiatives/{id}/history", h.GetHistory)
	r.Post("/initiatives/{id}/comments", h.AddComment)

	// Notifications.
	r.Get("/notifications", h.ListNotifications)
	r.Post("/notifications/{id}/read", h.MarkNotificationRead)

	// Diagnostics.
	r.Get("/audit", h.GetAuditLog)
	r.Get("/automations", h.AutomationStatuses)
	r.Post("/sync/flush", h.Flush)

	// Inbound push deliveries (at-least-once; all idempotent).
	r.Post("/ingest/initiatives", h.IngestInitiative)
	r.Post("/ingest/comments", h.IngestComment)
	r.Post("/ingest/notifications", h.IngestNotification)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
