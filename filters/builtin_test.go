package filters

import (
	"testing"

	"github.com/Velocidex/ordereddict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajihyf/scopeql/values"
)

func mustFilter(t *testing.T, input interface{}, args ...interface{}) []interface{} {
	t.Helper()
	out, err := filterFilter(input, args)
	require.NoError(t, err)
	arr, ok := out.([]interface{})
	require.True(t, ok)
	return arr
}

func TestFilterDefaultSubstringCaseInsensitive(t *testing.T) {
	arr := []interface{}{"Keal", "buck", "Aji"}
	got := mustFilter(t, arr, "k")
	assert.Equal(t, []interface{}{"Keal", "buck"}, got)
}

func TestFilterNegationPrefix(t *testing.T) {
	arr := []interface{}{"Keal", "buck", "Aji"}
	got := mustFilter(t, arr, "!k")
	assert.Equal(t, []interface{}{"Aji"}, got)
}

func TestFilterNullMatchesOnlyNull(t *testing.T) {
	arr := []interface{}{values.NullValue, "x", float64(1)}
	got := mustFilter(t, arr, values.NullValue)
	assert.Equal(t, []interface{}{values.NullValue}, got)
}

func TestFilterUndefinedActualNeverMatches(t *testing.T) {
	arr := []interface{}{values.UndefinedValue, "hello"}
	got := mustFilter(t, arr, "hello")
	assert.Equal(t, []interface{}{"hello"}, got)
}

func TestFilterObjectCriterionMatchesEveryKey(t *testing.T) {
	a := ordereddict.NewDict().Set("name", "Keal").Set("age", float64(30))
	b := ordereddict.NewDict().Set("name", "Buck").Set("age", float64(30))
	arr := []interface{}{a, b}

	criterion := ordereddict.NewDict().Set("name", "keal")
	got := mustFilter(t, arr, criterion)
	require.Len(t, got, 1)
	assert.Same(t, a, got[0].(*ordereddict.Dict))
}

func TestFilterObjectCriterionWildcardKey(t *testing.T) {
	a := ordereddict.NewDict().Set("name", "Keal").Set("age", float64(30))
	b := ordereddict.NewDict().Set("name", "Buck").Set("age", float64(7))
	arr := []interface{}{a, b}

	criterion := ordereddict.NewDict().Set("$", "7")
	got := mustFilter(t, arr, criterion)
	require.Len(t, got, 1)
	assert.Same(t, b, got[0].(*ordereddict.Dict))
}

func TestFilterArrayActualMatchesAnyElement(t *testing.T) {
	arr := []interface{}{
		[]interface{}{"a", "b"},
		[]interface{}{"c", "d"},
	}
	got := mustFilter(t, arr, "b")
	require.Len(t, got, 1)
	assert.Equal(t, []interface{}{"a", "b"}, got[0])
}

func TestFilterCmpTrueUsesDeepEquality(t *testing.T) {
	a := ordereddict.NewDict().Set("x", float64(1))
	b := ordereddict.NewDict().Set("x", float64(1))
	arr := []interface{}{a}
	got := mustFilter(t, arr, b, true)
	assert.Len(t, got, 1)
}

func TestFilterCmpFunctionPredicate(t *testing.T) {
	cmp := values.Func(func(this interface{}, args []interface{}) (interface{}, error) {
		actual := args[0].(float64)
		expected := args[1].(float64)
		return actual > expected, nil
	})
	arr := []interface{}{float64(1), float64(5), float64(9)}
	got := mustFilter(t, arr, float64(4), cmp)
	assert.Equal(t, []interface{}{float64(5), float64(9)}, got)
}

func TestFilterCriterionFunctionUsedDirectly(t *testing.T) {
	pred := values.Func(func(this interface{}, args []interface{}) (interface{}, error) {
		n := args[0].(float64)
		return n > float64(2), nil
	})
	arr := []interface{}{float64(1), float64(2), float64(3)}
	got := mustFilter(t, arr, pred)
	assert.Equal(t, []interface{}{float64(3)}, got)
}

func TestFilterNoArgsReturnsUndefined(t *testing.T) {
	out, err := filterFilter([]interface{}{"a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, values.UndefinedValue, out)
}

func TestFilterIteratesNonArrayInput(t *testing.T) {
	d := ordereddict.NewDict().Set("a", "apple").Set("b", "banana")
	got := mustFilter(t, d, "an")
	assert.ElementsMatch(t, []interface{}{"banana"}, got)
}

func TestDeepCompareDirectly(t *testing.T) {
	assert.True(t, deepCompare("Keal", "keal", nil, false, false))
	assert.False(t, deepCompare("Keal", "zzz", nil, false, false))
	assert.True(t, deepCompare(values.NullValue, values.NullValue, nil, false, false))
	assert.False(t, deepCompare(values.UndefinedValue, "x", nil, false, false))
}
