package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/automation"
	"github.com/starford/raido/internal/domain"
	"github.com/starford/raido/internal/tracker"
)

// Handler holds API route handlers.
type Handler struct {
	svc   *tracker.Service
	sched *automation.Scheduler
}

// NewHandler creates a new Handler. sched may be nil when automations are
// not configured.
func NewHandler(svc *tracker.Service, sched *automation.Scheduler) *Handler {
	return &Handler{svc: svc, sched: sched}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// ListInitiatives handles GET /initiatives. Soft-deleted records are
// skipped unless include_deleted=true.
func (h *Handler) ListInitiatives(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	items := h.svc.List(includeDeleted)
	writeJSON(w, http.StatusOK, InitiativeListResponse{
		Initiatives: items,
		Total:       len(items),
	})
}

// GetInitiative handles GET /initiatives/{id}.
func (h *Handler) GetInitiative(w http.ResponseWriter, r *http.Request) {
	ini, err := h.svc.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, ini)
}

// CreateInitiative handles POST /initiatives.
func (h *Handler) CreateInitiative(w http.ResponseWriter, r *http.Request) {
	var req CreateInitiativeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	ini, err := h.svc.Create(r.Context(), &domain.Initiative{
		ID:              req.ID,
		Title:           req.Title,
		Status:          domain.Status(req.Status),
		Priority:        req.Priority,
		ETA:             req.ETA,
		EstimatedEffort: req.EstimatedEffort,
		ActualEffort:    req.ActualEffort,
		OwnerID:         req.OwnerID,
	}, r.Header.Get("X-Actor"))
	if err != nil {
		slog.Error("create initiative failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, ini)
}

// UpdateField handles PATCH /initiatives/{id}/field: a single-field edit
// on the optimistic path. A failed persistence enqueue answers 503 so the
// client can retry; the edit has already been rolled back.
func (h *Handler) UpdateField(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdateFieldRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	ini, err := h.svc.UpdateField(r.Context(), id, domain.Field(req.Field), req.Value, req.Actor)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrSyncFailed):
			writeJSON(w, http.StatusServiceUnavailable, errorBody("persistence unavailable, change rolled back"))
		default:
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		}
		return
	}
	writeJSON(w, http.StatusOK, ini)
}

// RetrySync handles POST /initiatives/{id}/sync: the retry affordance for
// a previously failed persistence enqueue.
func (h *Handler) RetrySync(w http.ResponseWriter, r *http.Request) {
	err := h.svc.RetrySync(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	default:
		writeJSON(w, http.StatusServiceUnavailable, errorBody("persistence unavailable"))
	}
}

// DeleteInitiative handles DELETE /initiatives/{id} (soft delete).
func (h *Handler) DeleteInitiative(w http.ResponseWriter, r *http.Request) {
	ini, err := h.svc.SoftDelete(r.Context(), chi.URLParam(r, "id"), r.Header.Get("X-Actor"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, ini)
}

// RestoreInitiative handles POST /initiatives/{id}/restore.
func (h *Handler) RestoreInitiative(w http.ResponseWriter, r *http.Request) {
	ini, err := h.svc.Restore(r.Context(), chi.URLParam(r, "id"), r.Header.Get("X-Actor"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, ini)
}

// GetHistory handles GET /initiatives/{id}/history.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ini, err := h.svc.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": ini.History})
}

// AddComment handles POST /initiatives/{id}/comments.
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req AddCommentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	c, err := h.svc.AddComment(r.Context(), id, req.AuthorID, req.Text)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		slog.Error("add comment failed", slog.String("initiative", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListNotifications handles GET /notifications?user=<id>&unread=true.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'user' is required"))
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": h.svc.Notifications(user, unreadOnly),
	})
}

// MarkNotificationRead handles POST /notifications/{id}/read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MarkNotificationRead(chi.URLParam(r, "id")); err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAuditLog handles GET /audit?limit=<n>, newest first.
func (h *Handler) GetAuditLog(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, map[string]any{
		"changes": h.svc.GlobalAudit(limit),
	})
}

// AutomationStatuses handles GET /automations.
func (h *Handler) AutomationStatuses(w http.ResponseWriter, r *http.Request) {
	var statuses []automation.Status
	if h.sched != nil {
		statuses = h.sched.Statuses()
	}
	writeJSON(w, http.StatusOK, map[string]any{"automations": statuses})
}

// Flush handles POST /sync/flush: blocks until queued persistence work has
// been attempted.
func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Flush(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("persistence unavailable"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// IngestInitiative handles POST /ingest/initiatives: an inbound push
// delivery. Re-delivering an identical update is a no-op.
func (h *Handler) IngestInitiative(w http.ResponseWriter, r *http.Request) {
	var ini domain.Initiative
	if !decodeBody(w, r, &ini) {
		return
	}
	if ini.ID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id is required"))
		return
	}
	_, applied := h.svc.ApplyRemote(r.Context(), &ini)
	writeJSON(w, http.StatusOK, IngestResponse{Applied: applied})
}

// IngestComment handles POST /ingest/comments, deduplicated by comment id.
func (h *Handler) IngestComment(w http.ResponseWriter, r *http.Request) {
	var req IngestCommentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	applied, err := h.svc.ApplyRemoteComment(r.Context(), req.InitiativeID, req.Comment)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, IngestResponse{Applied: applied})
}

// IngestNotification handles POST /ingest/notifications, deduplicated by
// notification id.
func (h *Handler) IngestNotification(w http.ResponseWriter, r *http.Request) {
	var n domain.Notification
	if !decodeBody(w, r, &n) {
		return
	}
	if n.ID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id is required"))
		return
	}
	writeJSON(w, http.StatusOK, IngestResponse{Applied: h.svc.ReceiveNotification(n)})
}
