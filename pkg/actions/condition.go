package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/botflow/pkg/domain"
)

// EvaluateCondition is the condition action. Its only param, "expression",
// arrives already template-resolved; the engine branches on the boolean it
// returns under domain.KeyResult.
func EvaluateCondition(_ context.Context, _ *domain.UniversalContext, params map[string]any) domain.ActionResult {
	raw, ok := params["expression"]
	if !ok {
		return domain.Fail(domain.NewError(domain.ErrInvalidBlueprint, "condition requires expression", nil, nil))
	}
	expr, ok := raw.(string)
	if !ok {
		expr = fmt.Sprint(raw)
	}
	return domain.Ok(map[string]any{domain.KeyResult: Evaluate(expr)})
}

// Evaluate applies the minimal comparator: "a == b" and "a != b" compare the
// trimmed, unquoted operands as strings; anything else is true only when it
// reads "true" (case-insensitive). No arithmetic, no boolean operators.
func Evaluate(expr string) bool {
	eq := strings.Index(expr, "==")
	ne := strings.Index(expr, "!=")

	switch {
	case eq >= 0 && (ne < 0 || eq < ne):
		return operand(expr[:eq]) == operand(expr[eq+2:])
	case ne >= 0:
		return operand(expr[:ne]) != operand(expr[ne+2:])
	default:
		return strings.ToLower(operand(expr)) == "true"
	}
}

// operand trims whitespace and one layer of matching surrounding quotes.
func operand(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' || first == '"') && first == last {
			s = s[1 : len(s)-1]
		}
	}
	return s
}
