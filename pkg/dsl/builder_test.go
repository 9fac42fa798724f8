package dsl_test

import (
	"context"
	"testing"

	"github.com/aretw0/botflow/pkg/actions"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Build(t *testing.T) {
	b := dsl.New("onboarding", "/start").Name("Onboarding").Version(3)

	b.Add("ask_email").
		Ask("Your email?", "email").
		Validator("email").
		Go("vip")
	b.Add("vip").
		Branch("{{plan}} == vip", "staff", "thanks")
	b.Add("staff").
		Set("segment", "staff").
		Go("thanks")
	b.Add("thanks").
		Send("Saved {{email}}").
		Type(domain.StepAtom)

	bp, err := b.Build("acme")
	require.NoError(t, err)

	assert.Equal(t, "acme", bp.TenantID)
	assert.Equal(t, 3, bp.Version)
	assert.Equal(t, "ask_email", bp.EntryStep, "first step added is the entry")
	assert.Len(t, bp.Steps, 4)

	ask := bp.Steps["ask_email"]
	assert.Equal(t, actions.CollectInput, ask.Action)
	assert.Equal(t, "email", ask.Params["validator"])
	assert.Equal(t, "vip", ask.NextStep)

	vip := bp.Steps["vip"]
	assert.Equal(t, actions.Condition, vip.Action)
	assert.Equal(t, "staff", vip.TrueStep)
	assert.Equal(t, "thanks", vip.FalseStep)

	assert.Equal(t, domain.StepAtom, bp.Steps["thanks"].Type)
}

func TestBuilder_AddReturnsExistingStep(t *testing.T) {
	b := dsl.New("f", "/f")
	b.Add("a").Send("one")
	b.Add("a").Param("parse_mode", "HTML")

	bp, err := b.Build("acme")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "one", "parse_mode": "HTML"}, bp.Steps["a"].Params)
}

func TestBuilder_BuildValidates(t *testing.T) {
	b := dsl.New("broken", "/broken")
	b.Add("a").Send("hi").Go("missing")

	_, err := b.Build("acme")
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeInvalidBlueprint))

	_, err = dsl.New("empty", "/empty").Store("acme")
	assert.Error(t, err)
}

func TestBuilder_Store(t *testing.T) {
	b := dsl.New("welcome", "/start").Entry("hello")
	b.Add("bye").Send("bye").Terminal()
	b.Add("hello").Send("hi").Go("bye")

	store, err := b.Store("acme")
	require.NoError(t, err)

	bp, err := store.Get(context.Background(), "acme", "welcome")
	require.NoError(t, err)
	assert.Equal(t, "hello", bp.EntryStep)
	assert.Empty(t, bp.Steps["bye"].NextStep)
}
