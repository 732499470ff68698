package scope

import (
	"log"

	"github.com/ajihyf/scopeql/expr"
)

const defaultTTL = 10

// Option configures a root Scope at construction - there is no
// file-based configuration, only functional options on New.
type Option func(*rootConfig)

type rootConfig struct {
	ttl      int
	sink     func(error)
	logger   *log.Logger
	tracer   *log.Logger
	clock    Clock
	resolver expr.FilterResolver
}

// WithTTL overrides the digest convergence budget (default 10).
func WithTTL(ttl int) Option {
	return func(c *rootConfig) { c.ttl = ttl }
}

// WithErrorSink supplies the sink that catches user-triggered errors
// from watchers, listeners and async/post-digest tasks. The default
// sink discards errors silently.
func WithErrorSink(sink func(error)) Option {
	return func(c *rootConfig) { c.sink = sink }
}

// WithLogger sets the user-facing diagnostics logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *rootConfig) { c.logger = logger }
}

// WithTracer sets the verbose digest-tracing logger.
func WithTracer(tracer *log.Logger) Option {
	return func(c *rootConfig) { c.tracer = tracer }
}

// WithClock overrides the scheduler clock used for evalAsync/
// applyAsync ticks. Tests should pass a *ManualClock for
// deterministic control.
func WithClock(clock Clock) Option {
	return func(c *rootConfig) { c.clock = clock }
}

// WithFilterResolver wires a filter registry (typically
// filters.Default or a *filters.Registry) into the expression facade
// used by Eval/Apply/Watch on this scope tree.
func WithFilterResolver(resolver expr.FilterResolver) Option {
	return func(c *rootConfig) { c.resolver = resolver }
}
