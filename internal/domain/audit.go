package domain

import "time"

// ChangeRecord is an immutable audit entry describing one field transition.
// Ordering is insertion order within an initiative's history; the global
// audit log serves records newest-first.
type ChangeRecord struct {
	ID           string    `json:"id"`
	InitiativeID string    `json:"initiative_id"`
	TaskID       string    `json:"task_id,omitempty"`
	Field        Field     `json:"field"`
	OldValue     string    `json:"old_value"`
	NewValue     string    `json:"new_value"`
	ChangedBy    string    `json:"changed_by"`
	Timestamp    time.Time `json:"timestamp"`
}
