package actions

import (
	"context"

	"github.com/aretw0/botflow/pkg/domain"
)

// SetVariables is the set_variable action. It accepts a single
// {name, value} pair, a "values" map, or both.
func SetVariables(_ context.Context, _ *domain.UniversalContext, params map[string]any) domain.ActionResult {
	out := make(map[string]any)
	if values, ok := params["values"].(map[string]any); ok {
		for k, v := range values {
			out[k] = v
		}
	}
	if name, ok := params["name"].(string); ok && name != "" {
		out[name] = params["value"]
	}
	if len(out) == 0 {
		return domain.Fail(domain.NewError(domain.ErrInvalidBlueprint, "set_variable requires name or values", nil, nil))
	}
	for k := range out {
		if domain.IsReservedKey(k) {
			return domain.Fail(domain.NewError(domain.ErrInvalidBlueprint, "set_variable cannot write reserved key "+k, nil, nil))
		}
	}
	return domain.Ok(out)
}
