package scope

import "fmt"

// Event is passed to every listener invoked by Emit/Broadcast.
// StopPropagation only has an observable effect on Emit's upward
// walk; Broadcast's downward walk never consults it, which lets both
// dispatch directions carry defaultPrevented without needing two
// separate event types.
type Event struct {
	Name             string
	TargetScope      *Scope
	CurrentScope     *Scope
	Args             []interface{}
	defaultPrevented bool
	stopped          bool
}

// DefaultPrevented reports whether PreventDefault was called.
func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }

// PreventDefault marks the event as having had its default action
// prevented; it is advisory - the engine does not itself branch on it.
func (e *Event) PreventDefault() { e.defaultPrevented = true }

// StopPropagation halts Emit's walk toward the root after the
// currently dispatching scope. It has no effect during Broadcast.
func (e *Event) StopPropagation() { e.stopped = true }

type eventListener struct {
	fn   func(*Event)
	dead bool
}

// On registers fn for name, returning a deregister that tombstones
// the listener so an in-progress dispatch is not re-indexed.
// Tombstones are compacted at the next dispatch for name.
func (s *Scope) On(name string, fn func(*Event)) func() {
	s.mu.Lock()
	l := &eventListener{fn: fn}
	s.listeners[name] = append(s.listeners[name], l)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		l.dead = true
		s.mu.Unlock()
	}
}

// compactAndSnapshot drops tombstoned listeners for name and returns
// a stable copy of what remains to dispatch over.
func (s *Scope) compactAndSnapshot(name string) []*eventListener {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.listeners[name]
	kept := existing[:0:0]
	for _, l := range existing {
		if !l.dead {
			kept = append(kept, l)
		}
	}
	s.listeners[name] = kept
	return append([]*eventListener(nil), kept...)
}

func (s *Scope) dispatch(event *Event, name string) {
	for _, l := range s.compactAndSnapshot(name) {
		if l.dead {
			continue
		}
		listener := l
		s.runGuarded(func() { listener.fn(event) })
	}
}

// Emit walks from this scope up through its parents to the tree root,
// invoking every "name" listener at each scope, until StopPropagation
// is called or the root is reached.
func (s *Scope) Emit(name string, args ...interface{}) *Event {
	event := &Event{Name: name, TargetScope: s, Args: args}
	for cur := s; cur != nil; cur = cur.parent {
		event.CurrentScope = cur
		cur.dispatch(event, name)
		if event.stopped {
			break
		}
	}
	event.CurrentScope = nil
	return event
}

// Broadcast walks this scope's subtree depth-first, invoking every
// "name" listener at each scope.
func (s *Scope) Broadcast(name string, args ...interface{}) *Event {
	event := &Event{Name: name, TargetScope: s, Args: args}

	var walk func(scope *Scope)
	walk = func(scope *Scope) {
		event.CurrentScope = scope
		scope.dispatch(event, name)

		scope.mu.Lock()
		children := append([]*Scope(nil), scope.children...)
		scope.mu.Unlock()
		for _, c := range children {
			walk(c)
		}
	}
	walk(s)
	event.CurrentScope = nil
	return event
}

func (e *Event) String() string {
	return fmt.Sprintf("Event{%s}", e.Name)
}
