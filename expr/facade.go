package expr

import (
	"sync"

	"github.com/ajihyf/scopeql/values"
)

// Facade is the expression dispatcher: it accepts a string (compiled
// and cached by source text), a *Compiled (returned unchanged), an
// Accessor (wrapped in a Compiled) or anything else (turned into a
// no-op accessor producing Undefined).
type Facade struct {
	resolver FilterResolver
}

// NewFacade builds a Facade backed by resolver for filter lookups.
func NewFacade(resolver FilterResolver) *Facade {
	return &Facade{resolver: resolver}
}

// compileCacheKey distinguishes cache entries by both source text and
// resolver identity, so two scope trees with different filter
// registries never share a compiled accessor that resolved a filter
// name against the wrong registry.
type compileCacheKey struct {
	resolver FilterResolver
	src      string
}

// compileCacheMu and compileCache back the process-wide compiled-
// expression cache: every Facade in the process shares one map rather
// than keeping an independent per-instance cache, so two root scopes
// parsing the same source text reuse the same compiled accessor.
var (
	compileCacheMu sync.Mutex
	compileCache   = make(map[compileCacheKey]*Compiled)
)

// Parse implements the dispatch rule: a string is compiled (or reused
// from the process-wide cache) by source text, a *Compiled is
// returned unchanged, an Accessor is wrapped, and anything else
// becomes a no-op accessor producing Undefined.
func (f *Facade) Parse(expr interface{}) (*Compiled, error) {
	switch t := expr.(type) {
	case *Compiled:
		return t, nil
	case Accessor:
		return &Compiled{Eval: t}, nil
	case string:
		return f.compileCached(t)
	default:
		return &Compiled{
			Eval: func(Env, Locals) (interface{}, error) { return values.UndefinedValue, nil },
		}, nil
	}
}

func (f *Facade) compileCached(src string) (*Compiled, error) {
	key := compileCacheKey{resolver: f.resolver, src: src}

	compileCacheMu.Lock()
	if c, ok := compileCache[key]; ok {
		compileCacheMu.Unlock()
		return c, nil
	}
	compileCacheMu.Unlock()

	compiled, err := Compile(src, f.resolver)
	if err != nil {
		return nil, err
	}

	compileCacheMu.Lock()
	compileCache[key] = compiled
	compileCacheMu.Unlock()
	return compiled, nil
}

// Explain renders a source expression's AST for debugging and for the
// goldie-backed compiler snapshot tests.
func Explain(src string) (string, error) {
	text := src
	if len(text) >= 2 && text[:2] == "::" {
		text = text[2:]
	}
	prog, err := Parse(text)
	if err != nil {
		return "", err
	}
	return Dump(prog), nil
}
