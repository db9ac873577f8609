package domain

import "time"

// NotificationType classifies a derived notification event.
type NotificationType string

// NotificationType values.
const (
	NotifyDelay                NotificationType = "delay"
	NotifyStatusChange         NotificationType = "status_change"
	NotifyEtaChange            NotificationType = "eta_change"
	NotifyEffortChange         NotificationType = "effort_change"
	NotifyMention              NotificationType = "mention"
	NotifyAtRisk               NotificationType = "at_risk"
	NotifyFieldChange          NotificationType = "field_change"
	NotifyNewComment           NotificationType = "new_comment"
	NotifyOverlookedItem       NotificationType = "overlooked_item"
	NotifyWeeklyEffortExceeded NotificationType = "weekly_effort_exceeded"
)

// Notification is a single derived event addressed to one user.
// IDs are stable so at-least-once delivery can be deduplicated by the
// receiving store; after creation only the read flag may change.
type Notification struct {
	ID           string            `json:"id"`
	Type         NotificationType  `json:"type"`
	InitiativeID string            `json:"initiative_id"`
	UserID       string            `json:"user_id"`
	Timestamp    time.Time         `json:"timestamp"`
	Read         bool              `json:"read"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}
