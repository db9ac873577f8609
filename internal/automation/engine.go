package automation

import (
	"context"
	"time"

	"github.com/starford/raido/internal/audit"
	"github.com/starford/raido/internal/domain"
)

// Result reports what a workflow run touched.
type Result struct {
	InitiativesAffected []string
}

// Engine evaluates one workflow definition against a working copy of
// entities. Implementations receive copies and may take arbitrarily long;
// callers must not assume synchronous completion and must merge results
// against the store state current at merge time.
type Engine interface {
	ExecuteWorkflow(ctx context.Context, def Definition, entities []*domain.Initiative, record audit.RecordFunc) (Result, error)
}

// RuleEngine is the built-in engine: it applies a definition's declarative
// actions to every live entity the definition matches.
type RuleEngine struct{}

// ExecuteWorkflow applies def.Actions to entities in place and reports the
// ids whose fields actually changed. Each change is recorded through the
// audit callback and appended to the entity's own history.
func (RuleEngine) ExecuteWorkflow(_ context.Context, def Definition, entities []*domain.Initiative, record audit.RecordFunc) (Result, error) {
	var res Result
	today := time.Now().Truncate(24 * time.Hour)

	for _, ent := range entities {
		if !ent.Live() {
			continue
		}
		touched := false
		for _, act := range def.Actions {
			if act.WhenOverdue && !overdue(ent, today) {
				continue
			}
			old := domain.Get(ent, act.Set)
			if old == act.Value {
				continue
			}
			if err := domain.Set(ent, act.Set, act.Value); err != nil {
				return res, err
			}
			if record != nil && act.Set.Tracked() {
				rec := record(ent.ID, act.Set, old, act.Value, "automation:"+def.ID)
				ent.History = append(ent.History, rec)
			}
			touched = true
		}
		if touched {
			res.InitiativesAffected = append(res.InitiativesAffected, ent.ID)
		}
	}
	return res, nil
}

func overdue(ent *domain.Initiative, today time.Time) bool {
	if ent.ETA == "" || ent.Status == domain.StatusDone {
		return false
	}
	eta, err := time.ParseInLocation(domain.DateLayout, ent.ETA, today.Location())
	if err != nil {
		return false
	}
	return eta.Before(today)
}
