// Package webhook delivers ETA change notices to an external endpoint,
// best-effort.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/starford/raido/internal/domain"
)

// Notifier posts ETA changes to a configured URL. Failures are logged and
// never propagated: delivery is best-effort by contract.
type Notifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewNotifier creates a notifier. An empty url disables delivery.
func NewNotifier(url string, timeout time.Duration, logger *slog.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type etaPayload struct {
	InitiativeID string `json:"initiative_id"`
	Title        string `json:"title"`
	OwnerID      string `json:"owner_id"`
	OldETA       string `json:"old_eta"`
	NewETA       string `json:"new_eta"`
	ChangedBy    string `json:"changed_by"`
	Timestamp    string `json:"timestamp"`
}

// NotifyEtaChange posts the change. Called for every ETA change regardless
// of who made it or who owns the initiative.
func (n *Notifier) NotifyEtaChange(ctx context.Context, rec domain.ChangeRecord, ini *domain.Initiative) {
	if n.url == "" {
		return
	}
	body, err := json.Marshal(etaPayload{
		InitiativeID: ini.ID,
		Title:        ini.Title,
		OwnerID:      ini.OwnerID,
		OldETA:       rec.OldValue,
		NewETA:       rec.NewValue,
		ChangedBy:    rec.ChangedBy,
		Timestamp:    rec.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		n.logger.Warn("webhook: marshal failed", slog.String("error", err.Error()))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("webhook: build request failed", slog.String("error", err.Error()))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook: delivery failed",
			slog.String("initiative", ini.ID),
			slog.String("error", err.Error()))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("webhook: delivery rejected",
			slog.String("initiative", ini.ID),
			slog.String("status", fmt.Sprintf("%d", resp.StatusCode)))
	}
}
