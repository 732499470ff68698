package scope_test

import (
	"testing"

	"github.com/Velocidex/ordereddict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajihyf/scopeql/expr"
	"github.com/ajihyf/scopeql/scope"
	"github.com/ajihyf/scopeql/values"
)

func TestChildDelegatesReadsToParent(t *testing.T) {
	root := scope.New()
	root.Set("name", "Keal")

	child := root.New()
	v, ok := child.Get("name")
	require.True(t, ok)
	assert.Equal(t, "Keal", v)

	child.Set("name", "Buck")
	childVal, _ := child.Get("name")
	parentVal, _ := root.Get("name")
	assert.Equal(t, "Buck", childVal)
	assert.Equal(t, "Keal", parentVal)
}

func TestIsolatedChildDoesNotDelegate(t *testing.T) {
	root := scope.New()
	root.Set("name", "Keal")

	iso := root.IsolatedNew()
	_, ok := iso.Get("name")
	assert.False(t, ok)
}

func TestEvalUsesScopeAsEnvironment(t *testing.T) {
	root := scope.New()
	root.Set("x", float64(10))

	v, err := root.Eval("x + 5", nil)
	require.NoError(t, err)
	assert.Equal(t, float64(15), v)
}

func TestApplyMutatesAndTriggersDigest(t *testing.T) {
	root := scope.New()
	var observed interface{}
	_, err := root.Watch("x", func(newVal, oldVal interface{}, sc *scope.Scope) {
		observed = newVal
	}, false)
	require.NoError(t, err)

	_, err = root.Apply("x = 42")
	require.NoError(t, err)
	assert.Equal(t, float64(42), observed)
}

func TestApplyWhileApplyingIsPhaseConflict(t *testing.T) {
	root := scope.New()

	_, err := root.Apply(expr.Accessor(func(env expr.Env, l expr.Locals) (interface{}, error) {
		sc := env.(*scope.Scope)
		_, innerErr := sc.Apply(expr.Accessor(func(expr.Env, expr.Locals) (interface{}, error) {
			return nil, nil
		}))
		assert.Error(t, innerErr)
		return nil, nil
	}))
	require.NoError(t, err)
}

func TestNestedAssignmentThroughScopeEval(t *testing.T) {
	root := scope.New()

	_, err := root.Eval(`a["b"].c.d = 233`, nil)
	require.NoError(t, err)

	a, ok := root.Get("a")
	require.True(t, ok)
	b, _ := a.(*ordereddict.Dict).Get("b")
	c, _ := b.(*ordereddict.Dict).Get("c")
	d, _ := c.(*ordereddict.Dict).Get("d")
	assert.Equal(t, float64(233), d)
}

func TestSnapshotReturnsIndependentCopyOfOwnData(t *testing.T) {
	root := scope.New()
	root.Set("items", []interface{}{float64(1), float64(2)})

	snap := root.Snapshot().(*ordereddict.Dict)
	items, _ := snap.Get("items")
	items.([]interface{})[0] = float64(99)

	live, _ := root.Get("items")
	assert.Equal(t, float64(1), live.([]interface{})[0], "mutating a snapshot must not affect the live scope data")
}

func TestSecuritySandboxBlocksConstructorEscape(t *testing.T) {
	root := scope.New()
	root.Set("fn", values.Func(func(this interface{}, args []interface{}) (interface{}, error) { return nil, nil }))

	_, err := root.Eval(`fn.constructor("return window;")()`, nil)
	assert.Error(t, err)
}
