package automation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/raido/internal/domain"
)

const validYAML = `
automations:
  - id: escalate-overdue
    name: Escalate overdue initiatives
    enabled: true
    trigger:
      schedule: "09:00"
      fields: [eta, status]
    actions:
      - set: status
        value: at_risk
        when_overdue: true
  - id: weekly-priority
    name: Bump priority
    enabled: false
    trigger:
      fields: [estimated_effort]
    actions:
      - set: priority
        value: high
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "automations.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	defs, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(defs) != 2 {
		t.Fatalf("defs = %d", len(defs))
	}
	if defs[0].Trigger.Schedule != "09:00" {
		t.Errorf("schedule = %q", defs[0].Trigger.Schedule)
	}
	if defs[0].Actions[0].Set != domain.FieldStatus || !defs[0].Actions[0].WhenOverdue {
		t.Errorf("action = %+v", defs[0].Actions[0])
	}
	if defs[1].Enabled {
		t.Error("second definition should be disabled")
	}
}

func TestValidateRejectsBadSchedule(t *testing.T) {
	d := Definition{
		ID: "x", Name: "x", Enabled: true,
		Trigger: Trigger{Schedule: "25:99"},
	}
	if err := d.Validate(); err == nil {
		t.Error("expected schedule validation error")
	}
}

func TestValidateRejectsEmptyTrigger(t *testing.T) {
	d := Definition{ID: "x", Name: "x"}
	if err := d.Validate(); err == nil {
		t.Error("expected trigger validation error")
	}
}

func TestValidateRejectsUnknownField(t *testing.T) {
	d := Definition{
		ID: "x", Name: "x",
		Trigger: Trigger{Fields: []domain.Field{"bogus"}},
	}
	if err := d.Validate(); err == nil {
		t.Error("expected unknown-field error")
	}
}

func TestFileValidateRejectsDuplicateIDs(t *testing.T) {
	f := File{Automations: []Definition{
		{ID: "a", Name: "a", Trigger: Trigger{Fields: []domain.Field{domain.FieldStatus}}},
		{ID: "a", Name: "a again", Trigger: Trigger{Fields: []domain.Field{domain.FieldETA}}},
	}}
	if err := f.Validate(); err == nil {
		t.Error("expected duplicate-id error")
	}
}
