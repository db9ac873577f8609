package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Field identifies an editable initiative field. It is a closed set:
// Get and Set dispatch over known members only, so a typo in a caller
// surfaces as an error instead of silently writing nowhere.
type Field string

// Field values.
const (
	FieldStatus          Field = "status"
	FieldPriority        Field = "priority"
	FieldETA             Field = "eta"
	FieldEstimatedEffort Field = "estimated_effort"
	FieldActualEffort    Field = "actual_effort"
	FieldOwner           Field = "owner"
	FieldTitle           Field = "title"
	FieldReason          Field = "reason"
)

// Valid reports whether f is a known field identifier.
func (f Field) Valid() bool {
	switch f {
	case FieldStatus, FieldPriority, FieldETA, FieldEstimatedEffort,
		FieldActualEffort, FieldOwner, FieldTitle, FieldReason:
		return true
	}
	return false
}

// Tracked reports whether changes to f produce audit records.
func (f Field) Tracked() bool {
	switch f {
	case FieldStatus, FieldPriority, FieldETA, FieldEstimatedEffort, FieldReason:
		return true
	}
	return false
}

// TriggersAutomation reports whether a transition of f fires
// field-membership automation triggers.
func (f Field) TriggersAutomation() bool {
	switch f {
	case FieldStatus, FieldETA, FieldEstimatedEffort, FieldActualEffort:
		return true
	}
	return false
}

// Get returns the current value of f on ini in its string form.
// Reason is write-only: it exists for audit records, not entity state.
func Get(ini *Initiative, f Field) string {
	switch f {
	case FieldStatus:
		return string(ini.Status)
	case FieldPriority:
		return ini.Priority
	case FieldETA:
		return ini.ETA
	case FieldEstimatedEffort:
		return formatEffort(ini.EstimatedEffort)
	case FieldActualEffort:
		return formatEffort(ini.ActualEffort)
	case FieldOwner:
		return ini.OwnerID
	case FieldTitle:
		return ini.Title
	default:
		return ""
	}
}

// Set writes value onto f of ini, parsing typed fields from string form.
func Set(ini *Initiative, f Field, value string) error {
	switch f {
	case FieldStatus:
		s := Status(value)
		if !s.Valid() {
			return fmt.Errorf("domain: invalid status %q", value)
		}
		ini.Status = s
	case FieldPriority:
		ini.Priority = value
	case FieldETA:
		// Empty clears the deadline; anything else must be a real date, or
		// later-than comparisons on the stored string are meaningless.
		if value != "" {
			if _, err := time.Parse(DateLayout, value); err != nil {
				return fmt.Errorf("domain: eta: %w", err)
			}
		}
		ini.ETA = value
	case FieldEstimatedEffort:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("domain: estimated effort: %w", err)
		}
		ini.EstimatedEffort = v
	case FieldActualEffort:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("domain: actual effort: %w", err)
		}
		ini.ActualEffort = v
	case FieldOwner:
		ini.OwnerID = value
	case FieldTitle:
		ini.Title = value
	case FieldReason:
		// Reason changes are audit-only; nothing is stored on the entity.
	default:
		return fmt.Errorf("domain: unknown field %q", f)
	}
	return nil
}

func formatEffort(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
