// Package values implements the dynamic value model shared by the
// expression compiler and the digest engine: the Undefined and Null
// sentinels, structural equality and cloning, and the "array-like"
// classification used by watchCollection.
//
// Dynamic values are represented as plain Go interface{} using the
// same small closed set the compiler ever produces: nil/Undefined,
// bool, float64, string, []interface{}, *ordereddict.Dict and Func.
package values

import (
	"fmt"
	"math"
	"strconv"

	"github.com/Velocidex/ordereddict"
	deep "github.com/go-test/deep"
)

// Undefined is the sentinel used for "no such property" and for the
// result of dereferencing through a nil member chain.
type Undefined struct{}

// UndefinedValue is the single shared Undefined instance.
var UndefinedValue = Undefined{}

// Null is the explicit null/None value, distinct from Undefined.
type Null struct{}

// NullValue is the single shared Null instance.
var NullValue = Null{}

// Func is a callable value. This is invoked with an explicit
// receiver ("this") resolved by the compiler per the method-call
// binding rules in the expression pipeline.
type Func func(this interface{}, args []interface{}) (interface{}, error)

// HostGlobal is implemented by values that represent the embedding
// host's global object. The sandbox refuses to ever hand one of
// these back to expression code.
type HostGlobal interface {
	IsHostGlobal() bool
}

// DOMNode marks values that represent a live UI/DOM node. The sandbox
// refuses to hand one whose IsDOMNode reports true back to expression
// code.
type DOMNode interface {
	IsDOMNode() bool
}

// IsUndefined reports whether v is the Undefined sentinel or a bare
// Go nil (which the compiler never produces itself but which may
// enter from host-supplied data).
func IsUndefined(v interface{}) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Undefined)
	return ok
}

// IsNull reports whether v is the Null sentinel.
func IsNull(v interface{}) bool {
	_, ok := v.(Null)
	return ok
}

// IsNullOrUndefined reports whether v is Null or Undefined.
func IsNullOrUndefined(v interface{}) bool {
	return IsUndefined(v) || IsNull(v)
}

// AsNumber coerces v to a float64 the way binary +/- treat operands:
// undefined and nil become 0, true/false become 1/0, numeric kinds pass
// through, and everything else fails.
func AsNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case Undefined:
		return 0, true
	case nil:
		return 0, true
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Truthy evaluates the truth value of v following the expression
// language's loose semantics: 0, NaN, "", false, Null, Undefined, nil
// and empty arrays/dicts are false.
func Truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil, Undefined, Null:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case *ordereddict.Dict:
		return t.Len() > 0
	default:
		return true
	}
}

// Identical implements the watcher's valueEq=false comparison:
// reference/value identity, with NaN treated as equal to itself
// (mirrors the dirty-check short-circuit relying on watched values
// eventually settling).
func Identical(a, b interface{}) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok && math.IsNaN(af) && math.IsNaN(bf) {
		return true
	}
	if aDict, ok := a.(*ordereddict.Dict); ok {
		if bDict, ok := b.(*ordereddict.Dict); ok {
			return aDict == bDict
		}
		return false
	}
	if aArr, ok := a.([]interface{}); ok {
		if bArr, ok := b.([]interface{}); ok {
			return sameBacking(aArr, bArr)
		}
		return false
	}
	return a == b
}

func sameBacking(a, b []interface{}) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	if len(a) != len(b) {
		return false
	}
	return &a[0] == &b[0]
}

// DeepEqual implements the watcher's valueEq=true comparison using
// deep.Equal, which is already cycle-safe and nil-tolerant; the
// filter registry's cmp=true mode reuses the same test.
func DeepEqual(a, b interface{}) bool {
	a = normalizeForDeep(a, map[*ordereddict.Dict]map[string]interface{}{})
	b = normalizeForDeep(b, map[*ordereddict.Dict]map[string]interface{}{})
	return len(deep.Equal(a, b)) == 0
}

// normalizeForDeep expands *ordereddict.Dict into a plain map so
// deep.Equal compares contents rather than pointers. visited maps each
// dict already expanded to its map, so a cyclic value graph becomes a
// cyclic map instead of recursing forever. The Undefined/Null
// sentinels pass through unchanged.
func normalizeForDeep(v interface{}, visited map[*ordereddict.Dict]map[string]interface{}) interface{} {
	switch t := v.(type) {
	case *ordereddict.Dict:
		if m, ok := visited[t]; ok {
			return m
		}
		m := make(map[string]interface{}, t.Len())
		visited[t] = m
		for _, k := range t.Keys() {
			val, _ := t.Get(k)
			m[k] = normalizeForDeep(val, visited)
		}
		return m
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalizeForDeep(e, visited)
		}
		return out
	default:
		return t
	}
}

// DeepClone produces a structural copy of v, breaking aliasing so a
// valueEq watcher's retained "last" value cannot be mutated out from
// under it. A visited set guards against cycles in the watched value
// graph.
func DeepClone(v interface{}) interface{} {
	return deepCloneVisited(v, map[interface{}]interface{}{})
}

func deepCloneVisited(v interface{}, visited map[interface{}]interface{}) interface{} {
	switch t := v.(type) {
	case *ordereddict.Dict:
		if clone, ok := visited[t]; ok {
			return clone
		}
		clone := ordereddict.NewDict()
		visited[t] = clone
		for _, k := range t.Keys() {
			val, _ := t.Get(k)
			clone.Set(k, deepCloneVisited(val, visited))
		}
		return clone
	case []interface{}:
		clone := make([]interface{}, len(t))
		for i, e := range t {
			clone[i] = deepCloneVisited(e, visited)
		}
		return clone
	default:
		return t
	}
}

// FormatNumber renders a float64 the way the expression language's
// string coercion does: integral values print without a decimal
// point.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ToDisplayString coerces v to the string it would print as when
// used in string concatenation or a filter's default comparator.
func ToDisplayString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return FormatNumber(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case nil, Undefined, Null:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// IsArrayLike reports whether v should be diffed as a collection
// (v has a numeric "length" and either is empty or owns the index
// length-1). This deliberately excludes plain objects that merely
// carry a "length" key without the matching index - that exclusion is
// a tested contract, not an oversight.
func IsArrayLike(v interface{}) bool {
	switch t := v.(type) {
	case []interface{}:
		return true
	case *ordereddict.Dict:
		lengthVal, pres := t.Get("length")
		if !pres {
			return false
		}
		length, ok := AsNumber(lengthVal)
		if !ok || length != math.Trunc(length) || length < 0 {
			return false
		}
		if length == 0 {
			return true
		}
		_, pres = t.Get(strconv.Itoa(int(length) - 1))
		return pres
	default:
		return false
	}
}
