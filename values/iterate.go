package values

import "github.com/Velocidex/ordereddict"

// Iterate walks a dynamic value the way the filter registry and the
// collection watcher need to: arrays element by element, dicts value
// by value, and everything else as a single-element sequence unless
// it is nil/Undefined/Null, which yields nothing. This closed
// dict/array/scalar triad covers every shape the value model produces
// - no pluggable protocol table is needed since host types never flow
// through the sandbox unannounced.
func Iterate(v interface{}) []interface{} {
	switch t := v.(type) {
	case []interface{}:
		return t

	case *ordereddict.Dict:
		out := make([]interface{}, 0, t.Len())
		for _, k := range t.Keys() {
			val, _ := t.Get(k)
			out = append(out, val)
		}
		return out

	case nil, Undefined, Null:
		return nil

	default:
		return []interface{}{v}
	}
}
