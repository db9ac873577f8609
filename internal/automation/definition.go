// Package automation schedules workflow runs against snapshot copies of the
// entity store and merges their results back without clobbering concurrent
// edits.
package automation

import (
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/raido/internal/domain"
	pkgconfig "github.com/starford/raido/pkg/config"
)

var scheduleRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Trigger describes when a definition fires: a daily schedule match on
// hour:minute, a field-membership match, or both.
type Trigger struct {
	Schedule string         `yaml:"schedule"`
	Fields   []domain.Field `yaml:"fields"`
}

// Validate validates the trigger.
func (t Trigger) Validate() error {
	if t.Schedule == "" && len(t.Fields) == 0 {
		return fmt.Errorf("automation: trigger needs a schedule or fields")
	}
	if t.Schedule != "" && !scheduleRe.MatchString(t.Schedule) {
		return fmt.Errorf("automation: schedule %q is not HH:MM", t.Schedule)
	}
	for _, f := range t.Fields {
		if !f.Valid() {
			return fmt.Errorf("automation: unknown trigger field %q", f)
		}
	}
	return nil
}

// Action is one declarative mutation applied by the built-in engine.
type Action struct {
	Set         domain.Field `yaml:"set"`
	Value       string       `yaml:"value"`
	WhenOverdue bool         `yaml:"when_overdue"`
}

// Validate validates the action.
func (a Action) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Set, validation.Required, validation.By(func(v interface{}) error {
			if f, ok := v.(domain.Field); !ok || !f.Valid() {
				return fmt.Errorf("unknown field")
			}
			return nil
		})),
		validation.Field(&a.Value, validation.Required),
	)
}

// Definition is one automation workflow definition.
type Definition struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Enabled bool     `yaml:"enabled"`
	Trigger Trigger  `yaml:"trigger"`
	Actions []Action `yaml:"actions"`
}

// Validate validates the definition.
func (d Definition) Validate() error {
	if err := validation.ValidateStruct(&d,
		validation.Field(&d.ID, validation.Required),
		validation.Field(&d.Name, validation.Required),
	); err != nil {
		return err
	}
	if err := d.Trigger.Validate(); err != nil {
		return fmt.Errorf("automation %s: %w", d.ID, err)
	}
	for _, a := range d.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("automation %s: action: %w", d.ID, err)
		}
	}
	return nil
}

// File is the on-disk automations document.
type File struct {
	Automations []Definition `yaml:"automations"`
}

// Validate validates every definition and rejects duplicate ids.
func (f *File) Validate() error {
	seen := make(map[string]struct{}, len(f.Automations))
	for _, d := range f.Automations {
		if err := d.Validate(); err != nil {
			return err
		}
		if _, ok := seen[d.ID]; ok {
			return fmt.Errorf("automation: duplicate id %q", d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}

// LoadFile reads and validates the automations YAML file.
func LoadFile(path string) ([]Definition, error) {
	var f File
	if err := pkgconfig.Load(path, &f); err != nil {
		return nil, err
	}
	return f.Automations, nil
}
