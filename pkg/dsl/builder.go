package dsl

import (
	"fmt"

	"github.com/aretw0/botflow/pkg/adapters/memory"
	"github.com/aretw0/botflow/pkg/domain"
)

// Builder manages the blueprint construction.
type Builder struct {
	id      string
	name    string
	trigger string
	version int
	entry   string
	order   []string
	steps   map[string]*StepBuilder
}

// New creates a builder for the blueprint id fired by trigger.
func New(id, trigger string) *Builder {
	return &Builder{
		id:      id,
		trigger: trigger,
		version: 1,
		steps:   make(map[string]*StepBuilder),
	}
}

// Name sets the display name.
func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

// Version sets the blueprint version.
func (b *Builder) Version(v int) *Builder {
	b.version = v
	return b
}

// Entry overrides the entry step.
func (b *Builder) Entry(stepID string) *Builder {
	b.entry = stepID
	return b
}

// Add creates a new step in the blueprint.
// If the step already exists, it returns the existing builder.
func (b *Builder) Add(id string) *StepBuilder {
	if sb, ok := b.steps[id]; ok {
		return sb
	}
	sb := &StepBuilder{step: domain.Step{ID: id}}
	b.steps[id] = sb
	b.order = append(b.order, id)
	return sb
}

// Build assembles and validates the blueprint for tenantID.
func (b *Builder) Build(tenantID string) (*domain.Blueprint, error) {
	entry := b.entry
	if entry == "" && len(b.order) > 0 {
		entry = b.order[0]
	}
	bp := &domain.Blueprint{
		ID:        b.id,
		TenantID:  tenantID,
		Name:      b.name,
		Trigger:   b.trigger,
		Version:   b.version,
		EntryStep: entry,
		Steps:     make(map[string]domain.Step, len(b.steps)),
	}
	for id, sb := range b.steps {
		bp.Steps[id] = sb.Build()
	}
	if err := bp.Validate(); err != nil {
		return nil, err
	}
	return bp, nil
}

// Store builds the blueprint into a fresh in-memory blueprint store.
func (b *Builder) Store(tenantID string) (*memory.BlueprintStore, error) {
	bp, err := b.Build(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to build blueprint %q: %w", b.id, err)
	}
	return memory.NewBlueprintStore(bp), nil
}
