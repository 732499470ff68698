package scope

import (
	"fmt"

	"github.com/ajihyf/scopeql/expr"
	"github.com/ajihyf/scopeql/scopeerr"
	"github.com/ajihyf/scopeql/values"
)

// digest runs the full convergence loop. It must only be invoked on a
// root scope (s.root == s); Digest()/Apply() route through s.root to
// guarantee that.
func (s *Scope) digest() error {
	s.mu.Lock()
	if err := s.enterPhaseLocked(PhaseDigest); err != nil {
		s.mu.Unlock()
		return err
	}
	s.lastDirtyWatch = nil
	s.mu.Unlock()

	s.traceDump("digest start", s.Snapshot())

	defer func() {
		s.mu.Lock()
		s.clearPhaseLocked()
		s.mu.Unlock()
	}()

	s.mu.Lock()
	if s.applyCancel != nil {
		s.applyCancel()
		s.applyCancel = nil
	}
	s.mu.Unlock()
	s.drainApplyAsyncQueue()

	remaining := s.ttl
	for {
		s.mu.Lock()
		tasks := s.asyncQueue
		s.asyncQueue = nil
		s.mu.Unlock()

		for _, task := range tasks {
			if task.scope.isDestroyed() {
				continue
			}
			if _, err := task.scope.Eval(task.expr, nil); err != nil {
				task.scope.reportError(err)
			}
		}

		dirty := s.dirtyCheckPass()

		s.mu.Lock()
		moreAsync := len(s.asyncQueue) > 0
		s.mu.Unlock()

		if dirty || moreAsync {
			remaining--
			if remaining <= 0 {
				return scopeerr.NewMaxDigestIterationsError(s.ttl)
			}
			continue
		}
		break
	}

	s.mu.Lock()
	fns := s.postDigestQueue
	s.postDigestQueue = nil
	s.mu.Unlock()

	for _, fn := range fns {
		s.runGuarded(fn)
	}

	return nil
}

// runGuarded recovers a panic from user code (listener, post-digest
// task, event handler) and routes it to the error sink instead of
// letting it cross into the digest/dispatch machinery.
func (s *Scope) runGuarded(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.reportError(scopeerr.Wrap(fmt.Errorf("%v", r), "recovered panic"))
		}
	}()
	fn()
}

// dirtyCheckPass performs one root-first, pre-order dirty-checking
// sweep over the whole tree rooted at s, returning whether any
// watcher changed. It aborts the entire walk as soon as it revisits
// root.lastDirtyWatch unchanged.
func (s *Scope) dirtyCheckPass() bool {
	dirty := false

	var visit func(scope *Scope) (abort bool)
	visit = func(scope *Scope) bool {
		scope.mu.Lock()
		snapshot := append([]*watcher(nil), scope.watchers...)
		scope.mu.Unlock()

		for i := len(snapshot) - 1; i >= 0; i-- {
			w := snapshot[i]
			if w.dead {
				continue
			}

			newVal, err := evalWatcherAccessor(w, scope)
			if err != nil {
				scope.reportError(err)
				continue
			}

			if valueEqual(w.valueEq, newVal, w.last) {
				if w == s.lastDirtyWatch {
					return true
				}
				continue
			}

			old := w.last
			if old == initWatchVal {
				old = newVal
			}
			if w.valueEq {
				w.last = values.DeepClone(newVal)
			} else {
				w.last = newVal
			}
			s.lastDirtyWatch = w
			dirty = true

			if w.listener != nil {
				func() {
					listener, nv, ov, sc := w.listener, newVal, old, scope
					defer func() {
						if r := recover(); r != nil {
							scope.reportError(scopeerr.Wrap(fmt.Errorf("%v", r), "watch listener panic"))
						}
					}()
					listener(nv, ov, sc)
				}()
			}

			if w.fireOnce && !w.fired {
				w.fired = true
				scope.removeWatcher(w)
			}
			if w.oneTime && expr.IsDefined(newVal, w.literal) {
				s.PostDigest(func() { scope.removeWatcher(w) })
			}
		}
		return false
	}

	var walk func(scope *Scope) bool
	walk = func(scope *Scope) bool {
		if visit(scope) {
			return true
		}
		scope.mu.Lock()
		children := append([]*Scope(nil), scope.children...)
		scope.mu.Unlock()
		for _, c := range children {
			if c.isDestroyed() {
				continue
			}
			if walk(c) {
				return true
			}
		}
		return false
	}

	walk(s)
	return dirty
}

func evalWatcherAccessor(w *watcher, scope *Scope) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = scopeerr.Wrap(fmt.Errorf("%v", r), "watch accessor panic")
		}
	}()
	return w.accessor(scope, nil)
}
