// Package filters implements the name -> transformer registry and the
// built-in "filter" filter for selecting elements out of a collection.
// A Registry satisfies expr.FilterResolver so the compiler can fold
// constant filter calls and so the digest engine can dispatch pipe
// operator calls at evaluation time.
package filters

import "github.com/ajihyf/scopeql/expr"

// Filter is a named value transformer invokable via the expression
// pipe operator. Stateful filters (those whose output depends on
// out-of-band state, e.g. wall-clock time or a ticking counter) must
// report Stateful() == true so the compiler never constant-folds a
// watch expression that uses them. It is an alias of expr.Filter.
type Filter = expr.Filter

// Func adapts a plain function into a non-stateful Filter, the
// common case for pure transforms (uppercase, currency, json, ...).
type Func func(input interface{}, args []interface{}) (interface{}, error)

func (f Func) Call(input interface{}, args []interface{}) (interface{}, error) {
	return f(input, args)
}

func (f Func) Stateful() bool { return false }

// StatefulFunc is Func for filters whose result is not a pure
// function of its arguments.
type StatefulFunc func(input interface{}, args []interface{}) (interface{}, error)

func (f StatefulFunc) Call(input interface{}, args []interface{}) (interface{}, error) {
	return f(input, args)
}

func (f StatefulFunc) Stateful() bool { return true }

// Factory builds a Filter. Register calls Factory with no arguments -
// no hidden injection of scope or context is passed to it.
type Factory func() Filter
