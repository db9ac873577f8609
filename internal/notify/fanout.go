// Package notify derives notification events from detected deltas and
// time-based conditions, and stores them for delivery.
package notify

import (
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/starford/raido/internal/domain"
)

var mentionRe = regexp.MustCompile(`@([A-Za-z0-9_][A-Za-z0-9._-]*)`)

// Mentions extracts unique @user ids from comment text, in order of first
// appearance.
func Mentions(text string) []string {
	matches := mentionRe.FindAllStringSubmatch(text, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		id := m[1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func newNotification(t domain.NotificationType, initiativeID, userID string, meta map[string]string) domain.Notification {
	return domain.Notification{
		ID:           uuid.NewString(),
		Type:         t,
		InitiativeID: initiativeID,
		UserID:       userID,
		Timestamp:    time.Now(),
		Metadata:     meta,
	}
}

// FromFieldChange derives notifications for a single recorded field delta.
// Field changes notify the owner only, and only if the actor is not the
// owner. A transition into at_risk always notifies the owner, even for the
// owner's own edit.
func FromFieldChange(rec domain.ChangeRecord, ini *domain.Initiative, actor string) []domain.Notification {
	if ini.OwnerID == "" {
		return nil
	}
	meta := map[string]string{
		"field": string(rec.Field),
		"old":   rec.OldValue,
		"new":   rec.NewValue,
		"actor": actor,
	}

	if rec.Field == domain.FieldStatus && domain.Status(rec.NewValue) == domain.StatusAtRisk {
		return []domain.Notification{newNotification(domain.NotifyAtRisk, ini.ID, ini.OwnerID, meta)}
	}
	if actor == ini.OwnerID {
		return nil
	}

	t := domain.NotifyFieldChange
	switch rec.Field {
	case domain.FieldStatus:
		t = domain.NotifyStatusChange
	case domain.FieldETA:
		t = domain.NotifyEtaChange
	case domain.FieldEstimatedEffort, domain.FieldActualEffort:
		t = domain.NotifyEffortChange
	}
	return []domain.Notification{newNotification(t, ini.ID, ini.OwnerID, meta)}
}

// FromComment derives notifications for a new comment: every mentioned user
// is notified (self-mentions included, intentionally), and the owner gets a
// new-comment notice when the commenter is someone else.
func FromComment(c domain.Comment, ini *domain.Initiative) []domain.Notification {
	var out []domain.Notification
	meta := map[string]string{"comment_id": c.ID, "author": c.AuthorID}

	for _, user := range Mentions(c.Text) {
		out = append(out, newNotification(domain.NotifyMention, ini.ID, user, meta))
	}
	if ini.OwnerID != "" && c.AuthorID != ini.OwnerID {
		out = append(out, newNotification(domain.NotifyNewComment, ini.ID, ini.OwnerID, meta))
	}
	return out
}

// Overlooked builds the repeated-slippage notice emitted when an
// initiative's deadline has been pushed out more than the threshold allows.
func Overlooked(ini *domain.Initiative, count int) domain.Notification {
	return newNotification(domain.NotifyOverlookedItem, ini.ID, ini.OwnerID, map[string]string{
		"count": strconv.Itoa(count),
	})
}
