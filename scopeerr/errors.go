// Package scopeerr defines the structural error kinds raised by the
// lexer, parser, compiler, sandbox and digest engine. Anything raised
// from user code (accessors, listeners, event handlers) is not one of
// these types - it is wrapped and routed to the scope's error sink
// instead of propagating.
package scopeerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// LexError is raised by the lexer on an unrecognised character,
// invalid numeric literal, bad unicode escape or unterminated string.
type LexError struct {
	Pos     int
	Message string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lexical error at %d: %s", e.Pos, e.Message)
}

func NewLexError(pos int, format string, args ...interface{}) error {
	return &LexError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// ParseError is raised by the parser on an unexpected token or a
// missing closing bracket. Expected names the token the parser wanted.
type ParseError struct {
	Pos      int
	Got      string
	Expected string
}

func (e *ParseError) Error() string {
	if e.Expected == "" {
		return fmt.Sprintf("parse error at %d: unexpected token %q", e.Pos, e.Got)
	}
	return fmt.Sprintf("parse error at %d: expected %s, got %q", e.Pos, e.Expected, e.Got)
}

func NewParseError(pos int, got, expected string) error {
	return &ParseError{Pos: pos, Got: got, Expected: expected}
}

// SecurityError is raised when the sandbox blocks a dereference,
// invocation or identifier reference that could escape to the host.
type SecurityError struct {
	Reason string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("security error: %s", e.Reason)
}

func NewSecurityError(format string, args ...interface{}) error {
	return &SecurityError{Reason: fmt.Sprintf(format, args...)}
}

// PhaseConflictError is raised when a scope is asked to enter a phase
// (digest, apply) while another is already active on it.
type PhaseConflictError struct {
	Active    string
	Requested string
}

func (e *PhaseConflictError) Error() string {
	return fmt.Sprintf("phase conflict: already in %s, requested %s", e.Active, e.Requested)
}

func NewPhaseConflictError(active, requested string) error {
	return &PhaseConflictError{Active: active, Requested: requested}
}

// MaxDigestIterationsError is raised when a digest fails to converge
// within its TTL budget.
type MaxDigestIterationsError struct {
	TTL int
}

func (e *MaxDigestIterationsError) Error() string {
	return fmt.Sprintf("%d digest iterations reached without convergence, aborting", e.TTL)
}

func NewMaxDigestIterationsError(ttl int) error {
	return &MaxDigestIterationsError{TTL: ttl}
}

// RegistrationError is raised by the filter registry on an invalid
// registration call (nil factory, or a factory that returns nil).
type RegistrationError struct {
	Message string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration error: %s", e.Message)
}

func NewRegistrationError(format string, args ...interface{}) error {
	return &RegistrationError{Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches additional context to an error as it crosses a
// package boundary, preserving the original cause for errors.Cause.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, message)
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}
