package scope

import (
	"github.com/ajihyf/scopeql/expr"
	"github.com/ajihyf/scopeql/values"
)

// uninitialized is the watcher.last sentinel before any dirty-check
// pass has run, distinct from values.Undefined/Null so a genuinely
// undefined watched value still counts as "changed" on first sight.
type uninitialized struct{}

var initWatchVal interface{} = uninitialized{}

type watcher struct {
	accessor expr.Accessor
	listener ListenerFunc
	valueEq  bool
	last     interface{}
	oneTime  bool
	literal  bool
	fireOnce bool
	fired    bool
	dead     bool
}

// Watch registers expr (a string, a pre-compiled expr.Accessor, or a
// *expr.Compiled) with listener under dirty-checking. A
// compiled-constant expression fires its listener once then
// self-deregisters; a "::"-prefixed one-time expression deregisters
// in post-digest once its value becomes defined.
func (s *Scope) Watch(exprSrc interface{}, listener ListenerFunc, valueEq bool) (func(), error) {
	compiled, err := s.root.facade.Parse(exprSrc)
	if err != nil {
		return nil, err
	}

	w := &watcher{
		accessor: compiled.Eval,
		listener: listener,
		valueEq:  valueEq,
		last:     initWatchVal,
		oneTime:  compiled.OneTime,
		literal:  compiled.Literal,
		fireOnce: compiled.Constant,
	}

	s.mu.Lock()
	s.watchers = append([]*watcher{w}, s.watchers...)
	s.mu.Unlock()

	return func() { s.removeWatcher(w) }, nil
}

func (s *Scope) removeWatcher(w *watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.dead {
		return
	}
	w.dead = true
	kept := s.watchers[:0:0]
	for _, cur := range s.watchers {
		if cur != w {
			kept = append(kept, cur)
		}
	}
	s.watchers = kept
}

// WatchGroup watches N expressions with a single combined listener
// that fires at most once per digest. A zero-length exprs fires the
// listener exactly once, asynchronously, via the async queue, and
// returns a no-op deregister.
func (s *Scope) WatchGroup(exprs []interface{}, listener GroupListenerFunc) (func(), error) {
	if len(exprs) == 0 {
		empty := []interface{}{}
		s.EvalAsync(expr.Accessor(func(expr.Env, expr.Locals) (interface{}, error) {
			listener(empty, empty, s)
			return nil, nil
		}))
		return func() {}, nil
	}

	state := &groupState{
		newValues: make([]interface{}, len(exprs)),
		firstRun:  true,
	}

	deregs := make([]func(), len(exprs))
	for i, e := range exprs {
		i := i
		dereg, err := s.Watch(e, func(newVal, oldVal interface{}, sc *Scope) {
			state.newValues[i] = newVal
			if state.scheduled {
				return
			}
			state.scheduled = true
			sc.EvalAsync(expr.Accessor(func(expr.Env, expr.Locals) (interface{}, error) {
				state.scheduled = false
				if state.firstRun {
					state.firstRun = false
					snapshot := append([]interface{}(nil), state.newValues...)
					listener(snapshot, snapshot, sc)
					state.oldValues = snapshot
				} else {
					listener(state.newValues, state.oldValues, sc)
					state.oldValues = append([]interface{}(nil), state.newValues...)
				}
				return nil, nil
			}))
		}, false)
		if err != nil {
			for _, d := range deregs[:i] {
				d()
			}
			return nil, err
		}
		deregs[i] = dereg
	}

	return func() {
		for _, d := range deregs {
			d()
		}
	}, nil
}

type groupState struct {
	newValues []interface{}
	oldValues []interface{}
	scheduled bool
	firstRun  bool
}

// valueEqual picks the comparator a watcher uses: Identical for
// valueEq=false, DeepEqual for valueEq=true.
func valueEqual(valueEq bool, a, b interface{}) bool {
	if valueEq {
		return values.DeepEqual(a, b)
	}
	return values.Identical(a, b)
}
