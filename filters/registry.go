package filters

import (
	"sync"

	"github.com/ajihyf/scopeql/scopeerr"
)

// Registry is a concurrency-safe name -> Filter table. Since Filter is
// an alias of expr.Filter, its Lookup method satisfies
// expr.FilterResolver, so a *Registry can be passed directly to
// expr.Compile/expr.NewFacade.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Filter
}

// NewRegistry returns an empty registry. Use Default for the
// preconfigured registry carrying the built-in "filter" filter.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Filter)}
}

// Register adds name, built by calling factory. Re-registering a
// name overwrites the previous filter - there is no shadowing.
func (r *Registry) Register(name string, factory Factory) (Filter, error) {
	if factory == nil {
		return nil, scopeerr.NewRegistrationError("filters: nil factory for %q", name)
	}
	f := factory()
	if f == nil {
		return nil, scopeerr.NewRegistrationError("filters: factory for %q returned nil", name)
	}
	r.mu.Lock()
	r.entries[name] = f
	r.mu.Unlock()
	return f, nil
}

// RegisterMap registers every entry of mapping, stopping at the
// first error.
func (r *Registry) RegisterMap(mapping map[string]Factory) ([]Filter, error) {
	out := make([]Filter, 0, len(mapping))
	for name, factory := range mapping {
		f, err := r.Register(name, factory)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Lookup implements expr.FilterResolver.
func (r *Registry) Lookup(name string) (Filter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.entries[name]
	return f, ok
}

// Clear removes every registered filter, including built-ins. Tests
// that want a clean registry should build one with NewRegistry
// instead of mutating Default.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]Filter)
	r.mu.Unlock()
}

// Default is pre-seeded with the built-in "filter" filter before any
// user registration runs.
var Default = NewRegistry()

func init() {
	if _, err := Default.Register("filter", func() Filter { return Func(filterFilter) }); err != nil {
		panic(err)
	}
}
