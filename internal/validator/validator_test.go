package validator

import (
	"testing"

	"github.com/aretw0/botflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type names map[string]bool

func (n names) Has(name string) bool { return n[name] }

func blueprint() *domain.Blueprint {
	return &domain.Blueprint{
		ID: "onboarding", TenantID: "acme", Trigger: "/start", Version: 1, EntryStep: "ask",
		Steps: map[string]domain.Step{
			"ask":   {Action: "collect_input", Params: map[string]any{"variable": "email"}, NextStep: "check"},
			"check": {Action: "condition", TrueStep: "vip", FalseStep: "bye"},
			"vip":   {Action: "send_message"},
			"bye":   {Action: "send_message"},
		},
	}
}

var builtins = names{"collect_input": true, "condition": true, "send_message": true}

func TestValidateBlueprint_Valid(t *testing.T) {
	res := ValidateBlueprint(blueprint(), builtins)
	assert.True(t, res.OK(), res.Errors)
	assert.Empty(t, res.Warnings)
	assert.NoError(t, res.Err())
}

func TestValidateBlueprint_BrokenLinkAndUnknownAction(t *testing.T) {
	bp := blueprint()
	bp.Steps["vip"] = domain.Step{Action: "send_sms", NextStep: "ghost_step"}

	res := ValidateBlueprint(bp, builtins)
	require.False(t, res.OK())
	assert.Contains(t, res.Errors, `step "vip" uses unknown action "send_sms"`)
	assert.Contains(t, res.Errors, `step "vip" next_step references unknown step "ghost_step"`)

	err := res.Err()
	assert.True(t, domain.HasCode(err, domain.CodeInvalidBlueprint))
}

func TestValidateBlueprint_UnreachableIsWarning(t *testing.T) {
	bp := blueprint()
	bp.Steps["orphan"] = domain.Step{Action: "send_message"}

	res := ValidateBlueprint(bp, nil)
	assert.True(t, res.OK())
	assert.Equal(t, []string{`step "orphan" is unreachable from entry step "ask"`}, res.Warnings)
}

func TestValidateBlueprint_MissingEntry(t *testing.T) {
	bp := blueprint()
	bp.EntryStep = "nowhere"

	res := ValidateBlueprint(bp, builtins)
	assert.False(t, res.OK())
	assert.Contains(t, res.Errors, `entry_step "nowhere" does not exist`)
	assert.Len(t, res.Warnings, 4, "nothing is reachable without an entry step")
}
