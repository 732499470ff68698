// Package scopeql implements a reactive scope tree and dirty-checking
// digest engine over a small sandboxed expression language: watched
// expressions are dirty-checked on each digest cycle and their
// listeners fire when the watched value changes.
//
// Package layout:
//
//	scopeerr  structural error kinds (lex/parse/security/phase/TTL/registration)
//	values    the dynamic value model shared by the compiler and the digest engine
//	expr      lexer, parser, sandboxed compiler, expression facade
//	filters   the name -> filter registry and the built-in "filter" filter
//	scope     the Scope tree: watchers, digest loop, queues, events
//
// Construct a root scope with scope.New, register watches with
// (*scope.Scope).Watch, and call Digest to converge them.
package scopeql
