package filters

import (
	"strings"

	"github.com/Velocidex/ordereddict"
	"golang.org/x/text/cases"

	"github.com/ajihyf/scopeql/values"
)

var fold = cases.Fold()

// filterFilter implements the built-in "filter" filter, accepting
// (array, criterion, cmp?).
func filterFilter(input interface{}, args []interface{}) (interface{}, error) {
	if len(args) == 0 {
		return values.UndefinedValue, nil
	}

	items := values.Iterate(input)
	criterion := args[0]

	var cmp interface{}
	if len(args) > 1 {
		cmp = args[1]
	}

	predicate := buildPredicate(criterion, cmp)

	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		if predicate(item) {
			out = append(out, item)
		}
	}
	return out, nil
}

// buildPredicate returns the item-test function for a single
// criterion/cmp pair: a function criterion is used directly, anything
// else goes through deepCompare.
func buildPredicate(criterion interface{}, cmp interface{}) func(interface{}) bool {
	if fn, ok := criterion.(values.Func); ok {
		return func(item interface{}) bool {
			result, err := fn(nil, []interface{}{item})
			if err != nil {
				return false
			}
			return values.Truthy(result)
		}
	}
	return func(item interface{}) bool {
		return deepCompare(item, criterion, cmp, false, false)
	}
}

// deepCompare is the recursive predicate engine behind the "filter"
// filter.
func deepCompare(actual, expected interface{}, cmp interface{}, matchAnyProperty, isWildcard bool) bool {
	if s, ok := expected.(string); ok && strings.HasPrefix(s, "!") {
		return !deepCompare(actual, s[1:], cmp, matchAnyProperty, isWildcard)
	}

	if arr, ok := actual.([]interface{}); ok {
		for _, elem := range arr {
			if deepCompare(elem, expected, cmp, matchAnyProperty, false) {
				return true
			}
		}
		return false
	}

	if actualDict, ok := actual.(*ordereddict.Dict); ok {
		if expectedDict, ok := expected.(*ordereddict.Dict); ok && !isWildcard {
			return dictMatchesDict(actualDict, expectedDict, cmp)
		}
		if matchAnyProperty {
			for _, k := range actualDict.Keys() {
				v, _ := actualDict.Get(k)
				if deepCompare(v, expected, cmp, false, false) {
					return true
				}
			}
			return false
		}
	}

	return compareValue(actual, expected, cmp)
}

// dictMatchesDict requires every defined key of expected to match
// actual[k], with "$" as the wildcard key.
func dictMatchesDict(actual, expected *ordereddict.Dict, cmp interface{}) bool {
	for _, k := range expected.Keys() {
		expectedVal, _ := expected.Get(k)
		if values.IsUndefined(expectedVal) {
			continue
		}

		wildcard := k == "$"
		var actualVal interface{}
		if wildcard {
			actualVal = actual
		} else {
			var pres bool
			actualVal, pres = actual.Get(k)
			if !pres {
				actualVal = values.UndefinedValue
			}
		}
		if !deepCompare(actualVal, expectedVal, cmp, wildcard, wildcard) {
			return false
		}
	}
	return true
}

// compareValue is deepCompare's base case: delegate to cmp, or the
// default case-insensitive substring match.
func compareValue(actual, expected interface{}, cmp interface{}) bool {
	switch c := cmp.(type) {
	case bool:
		if c {
			return values.DeepEqual(actual, expected)
		}
		return defaultCompare(actual, expected)
	case values.Func:
		result, err := c(nil, []interface{}{actual, expected})
		if err != nil {
			return false
		}
		return values.Truthy(result)
	default:
		return defaultCompare(actual, expected)
	}
}

// defaultCompare: undefined actual never matches; null matches only
// null; otherwise case-insensitive substring containment, folded with
// golang.org/x/text/cases rather than strings.ToLower so the match is
// Unicode-aware.
func defaultCompare(actual, expected interface{}) bool {
	if values.IsUndefined(actual) {
		return false
	}
	if values.IsNull(expected) {
		return values.IsNull(actual)
	}
	actualStr := fold.String(values.ToDisplayString(actual))
	expectedStr := fold.String(values.ToDisplayString(expected))
	return strings.Contains(actualStr, expectedStr)
}
