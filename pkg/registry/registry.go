package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/botflow/pkg/domain"
)

// Handler defines the signature for an action implementation.
// It receives the event context and template-resolved params, and reports the outcome
// in the result instead of returning an error.
type Handler func(ctx context.Context, uctx *domain.UniversalContext, params map[string]any) domain.ActionResult

// Registry manages the available actions.
// It is built once during process start and injected into the engine.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds an action to the registry.
// If an action with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Names returns the registered action names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute looks up an action by name and runs it.
// An unknown name yields a failed result classified as UNKNOWN_ACTION.
// A panicking handler is converted into a failed result.
func (r *Registry) Execute(ctx context.Context, name string, uctx *domain.UniversalContext, params map[string]any) (res domain.ActionResult) {
	r.mu.RLock()
	fn, ok := r.handlers[name]
	r.mu.RUnlock()

	if !ok {
		return domain.Fail(domain.NewError(domain.ErrUnknownAction,
			fmt.Sprintf("unknown action: %s", name), nil,
			map[string]any{"action": name}))
	}

	defer func() {
		if p := recover(); p != nil {
			res = domain.Fail(domain.NewError(domain.ErrProvider,
				fmt.Sprintf("action %s panicked", name), fmt.Errorf("%v", p), nil))
		}
	}()

	res = fn(ctx, uctx, params)
	if !res.Success && res.Error == nil {
		res.Error = fmt.Errorf("action %s failed", name)
	}
	return res
}
