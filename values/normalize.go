package values

import (
	"time"

	"github.com/Velocidex/ordereddict"
)

// Normalize recursively materializes v into plain, independently
// owned values, the way a scope snapshot wants it: dicts and arrays
// are deep-copied, everything else is passed through. The depth guard
// protects against client-supplied values that are self-referential,
// even though scope trees themselves are acyclic.
func Normalize(value interface{}, depth int) interface{} {
	if depth > 32 {
		return NullValue
	}
	if value == nil {
		return NullValue
	}

	switch t := value.(type) {
	case string, Null, bool, float64, int, int64, time.Time:
		return value

	case Undefined:
		return UndefinedValue

	case []interface{}:
		result := make([]interface{}, 0, len(t))
		for _, item := range t {
			result = append(result, Normalize(item, depth+1))
		}
		return result

	case *ordereddict.Dict:
		result := ordereddict.NewDict()
		for _, key := range t.Keys() {
			item, pres := t.Get(key)
			if pres {
				result.Set(key, Normalize(item, depth+1))
			}
		}
		return result

	case Func:
		// Functions are opaque to snapshots; keep identity so
		// collection change-detection still sees a stable value.
		return value

	default:
		return value
	}
}
