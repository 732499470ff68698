package expr

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/ajihyf/scopeql/scopeerr"
	"github.com/ajihyf/scopeql/values"
)

// forbiddenIdentifiers is the property-name blacklist enforced before
// every dynamic dereference.
var forbiddenIdentifiers = map[string]bool{
	"constructor":        true,
	"__proto__":          true,
	"__defineGetter__":   true,
	"__defineSetter__":   true,
	"__lookupGetter__":   true,
	"__lookupSetter__":   true,
}

// forbiddenInvocationNames blocks the three capabilities that would
// let an expression borrow or rebind a function's receiver.
var forbiddenInvocationNames = map[string]bool{
	"call":  true,
	"apply": true,
	"bind":  true,
}

func checkIdentifier(name string) error {
	if forbiddenIdentifiers[name] {
		return scopeerr.NewSecurityError("referencing %q is disallowed", name)
	}
	return nil
}

// checkInvocationName blocks call/apply/bind *as the dereferenced
// member being invoked*; it does not block the identifier appearing
// as an ordinary field name elsewhere, matching the reference
// semantics where only the call-site capability is dangerous.
func checkInvocationName(name string) error {
	if forbiddenInvocationNames[name] {
		return scopeerr.NewSecurityError("invoking %q is disallowed", name)
	}
	return nil
}

// checkDereference rejects values that would hand expression code a
// path back to the embedding host: the host's global object, a
// self-constructing function/object, or a live DOM node.
//
// In a language with a real global `window`/`Function` constructor
// the reference engine detects these by shape (presence of timer,
// document, location, alert; a function whose own constructor is
// itself). This module replaces the shape heuristics with explicit
// marker interfaces (values.HostGlobal, values.DOMNode) that an
// embedder opts a value into, plus one structural heuristic kept from
// the original design: a dict simultaneously exposing "location",
// "document", "alert" and "setTimeout" is treated as a host global
// even without the marker, since no ordinary expression value should
// ever need all four at once.
func checkDereference(v interface{}) error {
	if v == nil {
		return nil
	}
	if hg, ok := v.(values.HostGlobal); ok && hg.IsHostGlobal() {
		return scopeerr.NewSecurityError("referencing the host global is disallowed: %s", spew.Sdump(v))
	}
	if dom, ok := v.(values.DOMNode); ok && dom.IsDOMNode() {
		return scopeerr.NewSecurityError("referencing a DOM node is disallowed")
	}
	if looksLikeHostGlobal(v) {
		return scopeerr.NewSecurityError("referencing the host global is disallowed")
	}
	return nil
}

func looksLikeHostGlobal(v interface{}) bool {
	type memberer interface {
		Get(string) (interface{}, bool)
	}
	m, ok := v.(memberer)
	if !ok {
		return false
	}
	want := []string{"location", "document", "alert", "setTimeout"}
	for _, name := range want {
		if _, pres := m.Get(name); !pres {
			return false
		}
	}
	return true
}

// checkCallable rejects invoking something that is its own
// constructor capability. FunctionConstructor is the sentinel an
// embedder may register to represent "build me a new function from a
// string" - the reference implementation's `Function()` escape hatch.
type FunctionConstructor struct{}

func (FunctionConstructor) IsHostGlobal() bool { return true }

func checkCallable(fn interface{}) error {
	if _, ok := fn.(FunctionConstructor); ok {
		return scopeerr.NewSecurityError("invoking the function constructor is disallowed")
	}
	return nil
}
