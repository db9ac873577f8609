// Package domain defines the tracker's entity types.
package domain

import "time"

// Status is the lifecycle state of an initiative.
type Status string

// Status values. Deleted is a soft state: the record stays in the store.
const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusAtRisk     Status = "at_risk"
	StatusDone       Status = "done"
	StatusDeleted    Status = "deleted"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusAtRisk, StatusDone, StatusDeleted:
		return true
	}
	return false
}

// Priority values. Stored as plain strings so imports stay ordered.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// DateLayout is the wire format for eta and delay dates.
const DateLayout = "2006-01-02"

// Comment is a user comment attached to an initiative.
type Comment struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is a sub-item synced alongside its parent initiative.
type Task struct {
	ID           string `json:"id"`
	InitiativeID string `json:"initiative_id"`
	Title        string `json:"title"`
	Done         bool   `json:"done"`
}

// Initiative is the primary tracked work item.
//
// Version is incremented by the store on every committed mutation and is
// used to detect commits that land while an automation run is in flight.
type Initiative struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Status           Status         `json:"status"`
	Priority         string         `json:"priority"`
	ETA              string         `json:"eta,omitempty"`
	EstimatedEffort  float64        `json:"estimated_effort"`
	ActualEffort     float64        `json:"actual_effort"`
	OwnerID          string         `json:"owner_id"`
	History          []ChangeRecord `json:"history,omitempty"`
	Comments         []Comment      `json:"comments,omitempty"`
	OverlookedCount  int            `json:"overlooked_count"`
	LastDelayDate    string         `json:"last_delay_date,omitempty"`
	LastWeeklyUpdate string         `json:"last_weekly_update,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	DeletedAt        *time.Time     `json:"deleted_at,omitempty"`
	Version          int64          `json:"version"`
}

// Live reports whether the initiative has not been soft-deleted.
func (i *Initiative) Live() bool {
	return i.Status != StatusDeleted
}

// Clone returns a deep copy safe to hand across a suspension boundary.
func (i *Initiative) Clone() *Initiative {
	out := *i
	if i.History != nil {
		out.History = make([]ChangeRecord, len(i.History))
		copy(out.History, i.History)
	}
	if i.Comments != nil {
		out.Comments = make([]Comment, len(i.Comments))
		copy(out.Comments, i.Comments)
	}
	if i.DeletedAt != nil {
		t := *i.DeletedAt
		out.DeletedAt = &t
	}
	return &out
}

// CloneAll deep-copies a slice of initiatives preserving order.
func CloneAll(in []*Initiative) []*Initiative {
	out := make([]*Initiative, len(in))
	for n, i := range in {
		out[n] = i.Clone()
	}
	return out
}
