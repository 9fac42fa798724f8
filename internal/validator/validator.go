package validator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aretw0/botflow/pkg/domain"
	goerrors "github.com/goliatone/go-errors"
)

// ActionSet reports whether an action name is registered. *registry.Registry implements it.
type ActionSet interface {
	Has(name string) bool
}

// Result collects the problems found in one blueprint.
// Errors make the blueprint unusable; warnings do not.
type Result struct {
	BlueprintID string
	Errors      []string
	Warnings    []string
}

// OK reports whether the blueprint has no errors.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Err converts the errors of the result into an INVALID_BLUEPRINT error, or nil.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return domain.NewError(domain.ErrInvalidBlueprint,
		fmt.Sprintf("blueprint %q has %d error(s)", r.BlueprintID, len(r.Errors)), nil,
		map[string]any{"problems": r.Errors, "blueprint_id": r.BlueprintID})
}

// ValidateBlueprint checks structure, crawls the graph from the entry step to find
// unreachable steps, and, when actions is non-nil, rejects unknown action names.
func ValidateBlueprint(bp *domain.Blueprint, actions ActionSet) Result {
	res := Result{}
	if bp == nil {
		res.Errors = append(res.Errors, "blueprint is nil")
		return res
	}
	res.BlueprintID = bp.ID

	if err := bp.Validate(); err != nil {
		res.Errors = append(res.Errors, problemsOf(err)...)
	}

	if actions != nil {
		for _, id := range bp.StepIDs() {
			step := bp.Steps[id]
			if step.Action != "" && !actions.Has(step.Action) {
				res.Errors = append(res.Errors, fmt.Sprintf("step %q uses unknown action %q", id, step.Action))
			}
		}
	}

	// Crawler
	visited := make(map[string]bool)
	queue := []string{bp.EntryStep}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		step, ok := bp.Steps[current]
		if !ok {
			continue // Reported by Validate.
		}
		visited[current] = true
		for _, next := range []string{step.NextStep, step.TrueStep, step.FalseStep} {
			if next != "" && !visited[next] {
				queue = append(queue, next)
			}
		}
	}
	for _, id := range bp.StepIDs() {
		if !visited[id] {
			res.Warnings = append(res.Warnings, fmt.Sprintf("step %q is unreachable from entry step %q", id, bp.EntryStep))
		}
	}

	sort.Strings(res.Errors)
	return res
}

func problemsOf(err error) []string {
	var ge *goerrors.Error
	if errors.As(err, &ge) {
		if problems, ok := ge.Metadata["problems"].([]string); ok && len(problems) > 0 {
			return problems
		}
	}
	return []string{domain.ErrorMessage(err)}
}
