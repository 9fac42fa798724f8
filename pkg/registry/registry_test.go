package registry_test

import (
	"context"
	"testing"

	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Execute(t *testing.T) {
	reg := registry.NewRegistry()
	reg.Register("echo", func(_ context.Context, uctx *domain.UniversalContext, params map[string]any) domain.ActionResult {
		return domain.Ok(map[string]any{"echo": params["text"], "user": uctx.UserID})
	})

	res := reg.Execute(context.Background(), "echo", &domain.UniversalContext{UserID: "7"}, map[string]any{"text": "hi"})
	require.True(t, res.Success)
	assert.Equal(t, "hi", res.Data["echo"])
	assert.Equal(t, "7", res.Data["user"])
	assert.True(t, reg.Has("echo"))
	assert.Equal(t, []string{"echo"}, reg.Names())
}

func TestRegistry_UnknownAction(t *testing.T) {
	reg := registry.NewRegistry()
	res := reg.Execute(context.Background(), "missing", &domain.UniversalContext{}, nil)

	assert.False(t, res.Success)
	require.Error(t, res.Error)
	assert.Equal(t, domain.CodeUnknownAction, domain.ErrorCode(res.Error))
	assert.Contains(t, res.Error.Error(), "missing")
}

func TestRegistry_RecoversPanics(t *testing.T) {
	reg := registry.NewRegistry()
	reg.Register("boom", func(context.Context, *domain.UniversalContext, map[string]any) domain.ActionResult {
		panic("kaboom")
	})

	res := reg.Execute(context.Background(), "boom", &domain.UniversalContext{}, nil)
	assert.False(t, res.Success)
	assert.Contains(t, domain.ErrorMessage(res.Error), "kaboom")
}

func TestRegistry_FailureWithoutError(t *testing.T) {
	reg := registry.NewRegistry()
	reg.Register("silent", func(context.Context, *domain.UniversalContext, map[string]any) domain.ActionResult {
		return domain.ActionResult{}
	})

	res := reg.Execute(context.Background(), "silent", &domain.UniversalContext{}, nil)
	assert.False(t, res.Success)
	assert.EqualError(t, res.Error, "action silent failed")
}

func TestRegistry_IsolatedInstances(t *testing.T) {
	a := registry.NewRegistry()
	b := registry.NewRegistry()
	a.Register("only_a", func(context.Context, *domain.UniversalContext, map[string]any) domain.ActionResult {
		return domain.Ok(nil)
	})
	assert.False(t, b.Has("only_a"))
}
