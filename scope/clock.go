package scope

import "time"

// Clock schedules one-shot callbacks the way the digest engine needs
// for evalAsync/applyAsync ticks. The returned cancel func is a no-op
// once the callback has already fired.
type Clock interface {
	AfterFunc(d time.Duration, f func()) (cancel func())
}

// realClock backs production scopes with time.AfterFunc rather than a
// hand-rolled scheduler.
type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// NewManualClock returns a Clock whose scheduled callbacks only run
// when Advance is invoked, for single-threaded, deterministic tests of
// evalAsync/applyAsync scheduling.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

// ManualClock is the exported handle to control scheduled ticks in
// tests.
type ManualClock struct {
	pending []*manualTask
}

type manualTask struct {
	fn        func()
	cancelled bool
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) func() {
	task := &manualTask{fn: f}
	c.pending = append(c.pending, task)
	return func() { task.cancelled = true }
}

// Advance runs every scheduled, non-cancelled callback once, in
// registration order, and clears the pending list.
func (c *ManualClock) Advance() {
	pending := c.pending
	c.pending = nil
	for _, task := range pending {
		if !task.cancelled {
			task.fn()
		}
	}
}

// Pending reports how many callbacks are scheduled and not cancelled.
func (c *ManualClock) Pending() int {
	n := 0
	for _, task := range c.pending {
		if !task.cancelled {
			n++
		}
	}
	return n
}
