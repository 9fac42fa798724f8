// Package template resolves {{placeholder}} tokens against session and event data.
//
// Resolution never fails: a token that matches no source is left in the output
// verbatim, so a half-configured blueprint still renders something readable.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/botflow/pkg/domain"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// contextFields is the allow-list reachable through the "ctx." namespace.
// The bot token is deliberately absent.
var contextFields = map[string]func(*domain.UniversalContext) string{
	"tenant_id":  func(c *domain.UniversalContext) string { return c.TenantID },
	"provider":   func(c *domain.UniversalContext) string { return c.Provider },
	"user_id":    func(c *domain.UniversalContext) string { return c.UserID },
	"chat_id":    func(c *domain.UniversalContext) string { return c.ChatID },
	"bot_id":     func(c *domain.UniversalContext) string { return c.BotID },
	"command":    func(c *domain.UniversalContext) string { return c.Metadata.Command },
	"last_input": func(c *domain.UniversalContext) string { return c.Metadata.LastInput },
	"user_name":  func(c *domain.UniversalContext) string { return c.Metadata.UserName },
}

// shortcuts are bare keys answered from the event when collected data has no match.
var shortcuts = []string{"user_name", "last_input", "user_id", "chat_id", "tenant_id", "provider"}

// Resolve replaces every placeholder in tmpl.
func Resolve(tmpl string, uctx *domain.UniversalContext, session *domain.SessionData) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(token string) string {
		m := placeholder.FindStringSubmatch(token)
		if v, ok := lookup(m[1], uctx, session); ok {
			return v
		}
		return token
	})
}

// ResolveDeep walks maps and slices and resolves every string leaf.
// The input is never mutated; non-string leaves are returned as-is.
func ResolveDeep(value any, uctx *domain.UniversalContext, session *domain.SessionData) any {
	switch v := value.(type) {
	case string:
		return Resolve(v, uctx, session)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = ResolveDeep(item, uctx, session)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = ResolveDeep(item, uctx, session)
		}
		return out
	case []string:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = Resolve(item, uctx, session)
		}
		return out
	default:
		return value
	}
}

// ResolveParams is ResolveDeep specialised for step params.
func ResolveParams(params map[string]any, uctx *domain.UniversalContext, session *domain.SessionData) map[string]any {
	if params == nil {
		return make(map[string]any)
	}
	return ResolveDeep(params, uctx, session).(map[string]any)
}

// Resolver exposes the package functions as an injectable value.
type Resolver struct{}

// Resolve implements the engine's template dependency.
func (Resolver) Resolve(tmpl string, uctx *domain.UniversalContext, session *domain.SessionData) string {
	return Resolve(tmpl, uctx, session)
}

// ResolveParams implements the engine's template dependency.
func (Resolver) ResolveParams(params map[string]any, uctx *domain.UniversalContext, session *domain.SessionData) map[string]any {
	return ResolveParams(params, uctx, session)
}

func lookup(key string, uctx *domain.UniversalContext, session *domain.SessionData) (string, bool) {
	if rest, ok := strings.CutPrefix(key, "session."); ok {
		return lookupSession(rest, session)
	}
	if rest, ok := strings.CutPrefix(key, "ctx."); ok {
		return lookupContext(rest, uctx)
	}

	if session != nil {
		if v, ok := walk(session.CollectedData, key); ok {
			return stringify(v), true
		}
	}
	for _, name := range shortcuts {
		if name == key {
			return lookupContext(key, uctx)
		}
	}
	return "", false
}

func lookupSession(field string, session *domain.SessionData) (string, bool) {
	if session == nil {
		return "", false
	}
	switch field {
	case "tenant_id":
		return session.TenantID, true
	case "provider":
		return session.Provider, true
	case "user_id":
		return session.UserID, true
	case "current_flow_id":
		return session.CurrentFlowID, true
	case "current_step_id":
		return session.CurrentStepID, true
	case "waiting_for_input":
		return strconv.FormatBool(session.WaitingForInput), true
	}
	if v, ok := walk(session.CollectedData, field); ok {
		return stringify(v), true
	}
	return "", false
}

func lookupContext(field string, uctx *domain.UniversalContext) (string, bool) {
	if uctx == nil {
		return "", false
	}
	get, ok := contextFields[field]
	if !ok {
		return "", false
	}
	v := get(uctx)
	if v == "" {
		return "", false
	}
	return v, true
}

// walk follows a dotted path through nested maps. An exact key match wins
// over path traversal so keys that contain dots stay addressable.
func walk(data map[string]any, path string) (any, bool) {
	if data == nil {
		return nil, false
	}
	if v, ok := data[path]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}
	next, ok := data[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return walk(next, rest)
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
