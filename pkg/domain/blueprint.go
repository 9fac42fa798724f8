package domain

import (
	"fmt"
	"sort"
)

// StepType classifies a step by granularity. It carries no execution semantics.
type StepType string

const (
	StepAtom     StepType = "atom"
	StepMolecule StepType = "molecule"
	StepOrganism StepType = "organism"
)

// Step is a single node of a Blueprint.
// Empty successor ids mark a terminal edge.
type Step struct {
	ID     string         `json:"id" yaml:"id" mapstructure:"id"`
	Type   StepType       `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type"`
	Action string         `json:"action" yaml:"action" mapstructure:"action"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty" mapstructure:"params"`

	NextStep  string `json:"next_step,omitempty" yaml:"next_step,omitempty" mapstructure:"next_step"`
	TrueStep  string `json:"true_step,omitempty" yaml:"true_step,omitempty" mapstructure:"true_step"`
	FalseStep string `json:"false_step,omitempty" yaml:"false_step,omitempty" mapstructure:"false_step"`
}

// Blueprint is a versioned conversation flow keyed by its trigger phrase.
type Blueprint struct {
	ID        string          `json:"id" yaml:"id"`
	TenantID  string          `json:"tenant_id" yaml:"tenant_id"`
	Name      string          `json:"name,omitempty" yaml:"name,omitempty"`
	Trigger   string          `json:"trigger" yaml:"trigger"`
	Version   int             `json:"version" yaml:"version"`
	EntryStep string          `json:"entry_step" yaml:"entry_step"`
	Steps     map[string]Step `json:"steps" yaml:"steps"`
}

// Step returns the step with the given id. The returned copy always carries its id.
func (b *Blueprint) Step(id string) (Step, bool) {
	if b == nil || b.Steps == nil {
		return Step{}, false
	}
	step, ok := b.Steps[id]
	if !ok {
		return Step{}, false
	}
	if step.ID == "" {
		step.ID = id
	}
	return step, true
}

// StepIDs returns the step ids in deterministic order.
func (b *Blueprint) StepIDs() []string {
	ids := make([]string, 0, len(b.Steps))
	for id := range b.Steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks structural integrity: identity fields, entry step and
// that every successor reference resolves to an existing step.
func (b *Blueprint) Validate() error {
	if b == nil {
		return NewError(ErrInvalidBlueprint, "blueprint is nil", nil, nil)
	}

	var problems []string
	if b.ID == "" {
		problems = append(problems, "id is required")
	}
	if b.TenantID == "" {
		problems = append(problems, "tenant_id is required")
	}
	if b.Trigger == "" {
		problems = append(problems, "trigger is required")
	}
	if len(b.Steps) == 0 {
		problems = append(problems, "at least one step is required")
	}
	if _, ok := b.Steps[b.EntryStep]; !ok {
		problems = append(problems, fmt.Sprintf("entry_step %q does not exist", b.EntryStep))
	}

	for _, id := range b.StepIDs() {
		step := b.Steps[id]
		if step.ID != "" && step.ID != id {
			problems = append(problems, fmt.Sprintf("step %q declares mismatched id %q", id, step.ID))
		}
		if step.Action == "" {
			problems = append(problems, fmt.Sprintf("step %q has no action", id))
		}
		for field, ref := range map[string]string{
			"next_step":  step.NextStep,
			"true_step":  step.TrueStep,
			"false_step": step.FalseStep,
		} {
			if ref == "" {
				continue
			}
			if _, ok := b.Steps[ref]; !ok {
				problems = append(problems, fmt.Sprintf("step %q %s references unknown step %q", id, field, ref))
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return NewError(ErrInvalidBlueprint,
		fmt.Sprintf("blueprint %q is invalid: %d problem(s)", b.ID, len(problems)),
		nil,
		map[string]any{"problems": problems, "blueprint_id": b.ID},
	)
}

// Clone returns a deep copy, so an execution can never observe a concurrent reload.
func (b *Blueprint) Clone() *Blueprint {
	if b == nil {
		return nil
	}
	next := *b
	next.Steps = make(map[string]Step, len(b.Steps))
	for id, step := range b.Steps {
		step.Params = CloneMap(step.Params)
		next.Steps[id] = step
	}
	return &next
}
