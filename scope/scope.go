// Package scope implements the reactive scope tree and digest engine:
// a Scope carries its own data, delegates reads to its non-isolated
// parent, and participates in a shared digest/event system rooted at
// the top of its tree.
//
// The Mutex-guarded struct, the Logger/Tracer pair, the children slice
// and the reverse-stack property lookup give this module a narrower,
// dirty-checking-oriented shape than a general property-bag tree.
package scope

import (
	"log"
	"sync"

	"github.com/Velocidex/ordereddict"
	"github.com/davecgh/go-spew/spew"

	"github.com/ajihyf/scopeql/expr"
	"github.com/ajihyf/scopeql/filters"
	"github.com/ajihyf/scopeql/scopeerr"
	"github.com/ajihyf/scopeql/values"
)

// Phase names used for the phase guard.
const (
	PhaseDigest = "digest"
	PhaseApply  = "apply"
)

// ListenerFunc is a watch listener, invoked (newValue, oldValue, scope).
type ListenerFunc func(newValue, oldValue interface{}, scope *Scope)

// GroupListenerFunc is the listener shape for WatchGroup, receiving
// the full set of current and previous accessor values.
type GroupListenerFunc func(newValues, oldValues []interface{}, scope *Scope)

// Scope is a node in the evaluation tree. The zero value is not
// usable; construct one with New (root) or an existing scope's New
// method (child).
type Scope struct {
	mu sync.Mutex

	own      *ordereddict.Dict
	parent   *Scope
	root     *Scope
	isolated bool
	children []*Scope
	watchers []*watcher
	listeners map[string][]*eventListener
	destroyed bool

	// Root-only digest/queue state. Accessed only via s.root from any
	// scope in the tree; queues live on root rather than being
	// threaded through each construction parent since a descendant's
	// async/apply work must still drain on the shared root digest.
	ttl             int
	phase           string
	lastDirtyWatch  *watcher
	asyncQueue      []asyncTask
	applyAsyncQueue []asyncTask
	applyCancel     func()
	postDigestQueue []func()

	facade *expr.Facade
	sink   func(error)
	logger *log.Logger
	tracer *log.Logger
	clock  Clock
}

type asyncTask struct {
	scope *Scope
	expr  interface{}
}

// New constructs a root scope. Every descendant reached via New/
// IsolatedNew shares this root's facade, error sink, loggers, clock
// and queues.
func New(opts ...Option) *Scope {
	cfg := &rootConfig{
		ttl:      defaultTTL,
		sink:     func(error) {},
		clock:    realClock{},
		resolver: filters.Default,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Scope{
		own:       ordereddict.NewDict(),
		listeners: make(map[string][]*eventListener),
		ttl:       cfg.ttl,
		facade:    expr.NewFacade(cfg.resolver),
		sink:      cfg.sink,
		logger:    cfg.logger,
		tracer:    cfg.tracer,
		clock:     cfg.clock,
	}
	s.root = s
	return s
}

// New creates a non-isolated child: it delegates data reads to s but
// owns its writes, and shares s's root queues/facade/sink/clock.
func (s *Scope) New() *Scope {
	return s.newChild(false)
}

// IsolatedNew creates an isolated child: it shares s's root queues but
// does not delegate data reads to s.
func (s *Scope) IsolatedNew() *Scope {
	return s.newChild(true)
}

func (s *Scope) newChild(isolated bool) *Scope {
	s.mu.Lock()
	defer s.mu.Unlock()

	child := &Scope{
		own:       ordereddict.NewDict(),
		parent:    s,
		root:      s.root,
		isolated:  isolated,
		listeners: make(map[string][]*eventListener),
	}
	s.children = append(s.children, child)
	return child
}

// Root returns the tree root this scope belongs to.
func (s *Scope) Root() *Scope { return s.root }

// Parent returns the construction parent, or nil for the root.
func (s *Scope) Parent() *Scope { return s.parent }

// Isolated reports whether this scope was created with IsolatedNew.
func (s *Scope) Isolated() bool { return s.isolated }

// Get implements expr.Env: resolve name against this scope's own
// data, delegating to the non-isolated parent chain on miss.
func (s *Scope) Get(name string) (interface{}, bool) {
	s.mu.Lock()
	v, pres := s.own.Get(name)
	isolated := s.isolated
	parent := s.parent
	s.mu.Unlock()

	if pres {
		return v, true
	}
	if !isolated && parent != nil {
		return parent.Get(name)
	}
	return nil, false
}

// GetOwn implements expr.Env: resolve name against this scope's own
// data only, with no delegation.
func (s *Scope) GetOwn(name string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.own.Get(name)
}

// Set implements expr.Env: assign name on this scope's own data.
// Writes never delegate, even for non-isolated children - the write
// shadows the parent's value rather than mutating it.
func (s *Scope) Set(name string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.own.Set(name, value)
}

// Container implements expr.Env: the auto-vivification primitive for
// nested assignment paths. It always operates on this scope's own
// data.
func (s *Scope) Container(name string) *ordereddict.Dict {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, pres := s.own.Get(name)
	if pres {
		if d, ok := existing.(*ordereddict.Dict); ok {
			return d
		}
	}
	fresh := ordereddict.NewDict()
	s.own.Set(name, fresh)
	return fresh
}

// Keys returns this scope's own property names, for diagnostics.
func (s *Scope) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.own.Keys()
}

// Snapshot materializes this scope's own data into plain, JSON-safe
// values (dicts and arrays copied, everything else passed through),
// for tracing and diagnostic dumps where the live data must not be
// aliased or mutated by the caller.
func (s *Scope) Snapshot() interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return values.Normalize(s.own, 0)
}

func (s *Scope) log(format string, args ...interface{}) {
	logger := s.root.logger
	if logger != nil {
		logger.Printf(format, args...)
	}
}

func (s *Scope) trace(format string, args ...interface{}) {
	tracer := s.root.tracer
	if tracer != nil {
		tracer.Printf(format, args...)
	}
}

func (s *Scope) traceDump(label string, v interface{}) {
	if s.root.tracer != nil {
		s.trace("%s: %s", label, spew.Sdump(v))
	}
}

func (s *Scope) reportError(err error) {
	if err == nil {
		return
	}
	s.log("scope error: %v", err)
	if sink := s.root.sink; sink != nil {
		sink(err)
	}
}

// enterPhaseLocked guards against re-entrant digest/apply calls. It
// must be called with s.root locked.
func (s *Scope) enterPhaseLocked(phase string) error {
	if s.root.phase != "" {
		return scopeerr.NewPhaseConflictError(s.root.phase, phase)
	}
	s.root.phase = phase
	return nil
}

func (s *Scope) clearPhaseLocked() {
	s.root.phase = ""
}

// Eval compiles (or reuses) exprSrc and evaluates it against this
// scope, with optional extra locals.
func (s *Scope) Eval(exprSrc interface{}, locals expr.Locals) (interface{}, error) {
	compiled, err := s.root.facade.Parse(exprSrc)
	if err != nil {
		return nil, err
	}
	return compiled.Eval(s, locals)
}

// Apply evaluates exprSrc under the "apply" phase guard and triggers
// a root digest afterward, even if evaluation panicked or errored.
func (s *Scope) Apply(exprSrc interface{}) (result interface{}, err error) {
	s.root.mu.Lock()
	if perr := s.enterPhaseLocked(PhaseApply); perr != nil {
		s.root.mu.Unlock()
		return nil, perr
	}
	s.root.mu.Unlock()

	defer func() {
		s.root.mu.Lock()
		s.clearPhaseLocked()
		s.root.mu.Unlock()
		if derr := s.root.digest(); derr != nil && err == nil {
			err = derr
		}
	}()

	result, err = s.Eval(exprSrc, nil)
	return result, err
}

// EvalAsync queues exprSrc to run on this scope during the next
// asyncQueue drain, scheduling a root digest tick if none is already
// pending or running.
func (s *Scope) EvalAsync(exprSrc interface{}) {
	root := s.root
	root.mu.Lock()
	wasEmpty := len(root.asyncQueue) == 0
	root.asyncQueue = append(root.asyncQueue, asyncTask{scope: s, expr: exprSrc})
	shouldSchedule := wasEmpty && root.phase == ""
	root.mu.Unlock()

	if shouldSchedule {
		root.clock.AfterFunc(0, func() {
			if derr := root.digest(); derr != nil {
				root.reportError(derr)
			}
		})
	}
}

// ApplyAsync queues exprSrc to be applied on this scope, coalescing
// with any other applyAsync calls before the scheduled tick into one
// root digest.
func (s *Scope) ApplyAsync(exprSrc interface{}) {
	root := s.root
	root.mu.Lock()
	root.applyAsyncQueue = append(root.applyAsyncQueue, asyncTask{scope: s, expr: exprSrc})
	needTimer := root.applyCancel == nil
	root.mu.Unlock()

	if needTimer {
		cancel := root.clock.AfterFunc(0, func() {
			root.mu.Lock()
			root.applyCancel = nil
			root.mu.Unlock()
			if _, err := root.Apply(flushApplyAsyncExpr(root)); err != nil {
				root.reportError(err)
			}
		})
		root.mu.Lock()
		root.applyCancel = cancel
		root.mu.Unlock()
	}
}

// flushApplyAsyncExpr returns an accessor that drains root's
// applyAsyncQueue, used both by the scheduled tick and by the digest
// loop's step 2 synchronous drain.
func flushApplyAsyncExpr(root *Scope) expr.Accessor {
	return func(env expr.Env, locals expr.Locals) (interface{}, error) {
		root.drainApplyAsyncQueue()
		return nil, nil
	}
}

func (s *Scope) drainApplyAsyncQueue() {
	s.mu.Lock()
	tasks := s.applyAsyncQueue
	s.applyAsyncQueue = nil
	s.mu.Unlock()

	for _, task := range tasks {
		if task.scope.isDestroyed() {
			continue
		}
		if _, err := task.scope.Eval(task.expr, nil); err != nil {
			task.scope.reportError(err)
		}
	}
}

// PostDigest schedules fn to run once, after the current (or next)
// digest converges. The queue is explicitly NOT drained when TTL is
// exhausted; see digest.go.
func (s *Scope) PostDigest(fn func()) {
	root := s.root
	root.mu.Lock()
	root.postDigestQueue = append(root.postDigestQueue, fn)
	root.mu.Unlock()
}

func (s *Scope) isDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Digest runs the subtree dirty-checking loop starting at the tree
// root, regardless of which scope Digest is called on - the outer
// loop always advances across the whole subtree under root.
func (s *Scope) Digest() error {
	return s.root.digest()
}

// Destroy broadcasts "$destroy" to this scope's subtree, detaches it
// from its parent, and clears its watchers/listeners so it is no
// longer reachable from any future digest or dispatch.
func (s *Scope) Destroy() {
	s.Broadcast("$destroy")

	if s.parent != nil {
		s.parent.mu.Lock()
		children := s.parent.children[:0:0]
		for _, c := range s.parent.children {
			if c != s {
				children = append(children, c)
			}
		}
		s.parent.children = children
		s.parent.mu.Unlock()
	}

	s.mu.Lock()
	s.watchers = nil
	s.listeners = make(map[string][]*eventListener)
	s.destroyed = true
	s.mu.Unlock()
}
