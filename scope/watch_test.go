package scope_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajihyf/scopeql/scope"
)

// Scenario 1: a watch fires on the first digest with old==new for an
// already-defined value, then again after a mutation.
func TestWatchFiresOnFirstDigestThenOnMutation(t *testing.T) {
	root := scope.New()
	root.Set("x", float64(1))

	type call struct{ newVal, oldVal float64 }
	var calls []call
	_, err := root.Watch("x", func(newVal, oldVal interface{}, sc *scope.Scope) {
		calls = append(calls, call{newVal.(float64), oldVal.(float64)})
	}, false)
	require.NoError(t, err)

	require.NoError(t, root.Digest())
	assert.Equal(t, []call{{1, 1}}, calls)

	root.Set("x", float64(2))
	require.NoError(t, root.Digest())
	assert.Equal(t, []call{{1, 1}, {2, 1}}, calls)
}

// Scenario 2: chained watches converge within a single digest via the
// TTL loop - b derives from a, c derives from b, a single digest call
// after mutating a settles every dependent watch.
func TestDigestConvergesChainedWatches(t *testing.T) {
	root := scope.New()
	root.Set("a", float64(1))

	_, err := root.Watch("a", func(newVal, _ interface{}, sc *scope.Scope) {
		sc.Set("b", newVal.(float64)*2)
	}, false)
	require.NoError(t, err)

	var finalC float64
	_, err = root.Watch("b", func(newVal, _ interface{}, sc *scope.Scope) {
		sc.Set("c", newVal.(float64)+1)
	}, false)
	require.NoError(t, err)

	_, err = root.Watch("c", func(newVal, _ interface{}, sc *scope.Scope) {
		finalC = newVal.(float64)
	}, false)
	require.NoError(t, err)

	require.NoError(t, root.Digest())
	assert.Equal(t, float64(3), finalC) // a=1 -> b=2 -> c=3, one digest call

	root.Set("a", float64(5))
	require.NoError(t, root.Digest())
	assert.Equal(t, float64(11), finalC) // a=5 -> b=10 -> c=11
}

// Scenario 9: a watcher whose listener changes its own watched value on
// every pass never settles, exhausts the default TTL of 10 and surfaces
// MaxDigestIterationsError.
func TestDigestTTLExhaustionReturnsError(t *testing.T) {
	root := scope.New()
	root.Set("n", float64(0))

	_, err := root.Watch("n", func(newVal, _ interface{}, sc *scope.Scope) {
		sc.Set("n", newVal.(float64)+1)
	}, false)
	require.NoError(t, err)

	err = root.Digest()
	assert.Error(t, err)
}

func TestWatchConstantExpressionFiresOnceAndDeregisters(t *testing.T) {
	root := scope.New()

	calls := 0
	_, err := root.Watch(`[1, 2, 3]`, func(interface{}, interface{}, *scope.Scope) {
		calls++
	}, true)
	require.NoError(t, err)

	require.NoError(t, root.Digest())
	require.NoError(t, root.Digest())
	assert.Equal(t, 1, calls)
}

func TestWatchOneTimeDeregistersAfterBecomingDefined(t *testing.T) {
	root := scope.New()

	calls := 0
	_, err := root.Watch("::x", func(interface{}, interface{}, *scope.Scope) {
		calls++
	}, false)
	require.NoError(t, err)

	require.NoError(t, root.Digest())
	assert.Equal(t, 1, calls, "fires on first sight even though x is undefined")

	root.Set("x", float64(7))
	require.NoError(t, root.Digest())
	assert.Equal(t, 2, calls)

	root.Set("x", float64(8))
	require.NoError(t, root.Digest())
	assert.Equal(t, 2, calls, "one-time watch should have deregistered")
}

// A one-time watch on an array/object literal must wait for every
// element to become defined before deregistering, not just the array
// value itself (which is already non-undefined on the very first
// digest, since the literal always evaluates to a fresh array).
func TestWatchOneTimeLiteralDeregistersOnceEveryElementDefined(t *testing.T) {
	root := scope.New()

	calls := 0
	_, err := root.Watch("::[a, b]", func(interface{}, interface{}, *scope.Scope) {
		calls++
	}, true)
	require.NoError(t, err)

	require.NoError(t, root.Digest())
	assert.Equal(t, 1, calls, "fires on first sight even though a and b are undefined")

	root.Set("a", float64(1))
	require.NoError(t, root.Digest())
	assert.Equal(t, 2, calls, "b is still undefined, so the watch must not have deregistered yet")

	root.Set("b", float64(2))
	require.NoError(t, root.Digest())
	assert.Equal(t, 3, calls, "every element is now defined")

	root.Set("a", float64(99))
	require.NoError(t, root.Digest())
	assert.Equal(t, 3, calls, "the one-time watch must have deregistered once stabilised")
}

// valueEq=true watches must clone the watched value so that later
// in-place mutation of the live object does not retroactively change
// what the listener was told the old value was.
func TestWatchValueEqClonesPreventMutationPollution(t *testing.T) {
	root := scope.New()
	root.Set("arr", []interface{}{float64(1), float64(2)})

	var lastOld interface{}
	_, err := root.Watch("arr", func(newVal, oldVal interface{}, sc *scope.Scope) {
		lastOld = oldVal
	}, true)
	require.NoError(t, err)

	require.NoError(t, root.Digest())

	arr, _ := root.Get("arr")
	slice := arr.([]interface{})
	slice[0] = float64(99) // mutate in place

	require.NoError(t, root.Digest())

	old := lastOld.([]interface{})
	assert.Equal(t, float64(1), old[0], "cloned old value must not see the in-place mutation")
}

func TestWatchGroupCoalescesMultipleExprsIntoOneListenerCall(t *testing.T) {
	root := scope.New()
	root.Set("a", float64(1))
	root.Set("b", float64(2))

	calls := 0
	var lastNew []interface{}
	_, err := root.WatchGroup([]interface{}{"a", "b"}, func(newValues, oldValues []interface{}, sc *scope.Scope) {
		calls++
		lastNew = newValues
	})
	require.NoError(t, err)

	require.NoError(t, root.Digest())
	assert.Equal(t, 1, calls)
	assert.Equal(t, []interface{}{float64(1), float64(2)}, lastNew)

	root.Set("a", float64(10))
	root.Set("b", float64(20))
	require.NoError(t, root.Digest())
	assert.Equal(t, 2, calls)
	assert.Equal(t, []interface{}{float64(10), float64(20)}, lastNew)
}

func TestWatchGroupZeroLengthFiresOnceAsync(t *testing.T) {
	root := scope.New()

	calls := 0
	_, err := root.WatchGroup(nil, func(newValues, oldValues []interface{}, sc *scope.Scope) {
		calls++
		assert.Empty(t, newValues)
		assert.Empty(t, oldValues)
	})
	require.NoError(t, err)

	require.NoError(t, root.Digest())
	assert.Equal(t, 1, calls)
}

// A watcher registered from inside another watcher's listener, during
// digest D, must not be evaluated anywhere within D itself - it first
// runs on the next call to Digest.
func TestDigestInsertedWatcherExcludedFromSameDigest(t *testing.T) {
	root := scope.New()
	root.Set("trigger", float64(1))

	var innerCalls int
	registered := false

	_, err := root.Watch("trigger", func(_, _ interface{}, sc *scope.Scope) {
		if !registered {
			registered = true
			_, werr := sc.Watch("trigger", func(interface{}, interface{}, *scope.Scope) {
				innerCalls++
			}, false)
			require.NoError(t, werr)
		}
	}, false)
	require.NoError(t, err)

	require.NoError(t, root.Digest())
	assert.Equal(t, 0, innerCalls, "watcher added mid-digest must not fire during the same digest call")

	require.NoError(t, root.Digest())
	assert.Equal(t, 1, innerCalls, "it fires normally on the following digest")
}

// Scenario 3: applyAsync calls made before the scheduled tick runs
// coalesce into a single digest.
func TestApplyAsyncCoalescesViaManualClock(t *testing.T) {
	clock := scope.NewManualClock()
	root := scope.New(scope.WithClock(clock))
	root.Set("x", float64(0))

	digests := 0
	_, err := root.Watch("x", func(interface{}, interface{}, *scope.Scope) {
		digests++
	}, false)
	require.NoError(t, err)
	require.NoError(t, root.Digest())
	digests = 0

	root.ApplyAsync("x = x + 1")
	root.ApplyAsync("x = x + 1")
	root.ApplyAsync("x = x + 1")

	assert.Equal(t, 1, clock.Pending(), "multiple applyAsync calls before the tick share one scheduled callback")

	clock.Advance()

	v, _ := root.Get("x")
	assert.Equal(t, float64(3), v)
	assert.Equal(t, 1, digests, "the coalesced applyAsync flush triggers exactly one digest")
}

// Scenario 4: the builtin "filter" pipe filters an array by a string
// criterion when evaluated through Eval.
func TestFilterPipeThroughEval(t *testing.T) {
	root := scope.New()
	root.Set("names", []interface{}{"apple", "banana", "avocado"})

	v, err := root.Eval(`names | filter:"app"`, nil)
	require.NoError(t, err)

	result := v.([]interface{})
	assert.Equal(t, []interface{}{"apple"}, result)
}
