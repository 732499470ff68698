package scope

import (
	"github.com/Velocidex/ordereddict"

	"github.com/ajihyf/scopeql/expr"
	"github.com/ajihyf/scopeql/values"
)

// WatchCollection is an optimised collection watcher: it tracks a
// monotonic changeCount internally (element count/identity changes
// for array-likes, key churn for plain objects, plain inequality
// otherwise) and only invokes listener when that counter moves,
// handing it (newValue, veryOldValue, scope).
//
// This always computes the shallow "very old" clone; skipping it for
// single-argument listeners would require introspecting function
// arity, which Go's fixed-signature ListenerFunc has no equivalent for.
func (s *Scope) WatchCollection(exprSrc interface{}, listener ListenerFunc) (func(), error) {
	compiled, err := s.root.facade.Parse(exprSrc)
	if err != nil {
		return nil, err
	}
	accessor := compiled.Eval

	tracker := &collectionTracker{
		snapshot:     values.UndefinedValue,
		veryOld:      values.UndefinedValue,
		firstChange:  true,
		internalKeys: make(map[string]interface{}),
	}

	internalAccessor := expr.Accessor(func(env expr.Env, locals expr.Locals) (interface{}, error) {
		newValue, err := accessor(env, locals)
		if err != nil {
			return nil, err
		}
		tracker.observe(newValue)
		return tracker.changeCount, nil
	})

	return s.Watch(internalAccessor, func(interface{}, interface{}, *Scope) {
		listener(tracker.snapshot, tracker.veryOld, s)
	}, false)
}

type collectionTracker struct {
	changeCount float64

	trackingArray bool
	internalArray []interface{}

	internalKeys map[string]interface{}
	oldLength    int

	snapshot    interface{}
	veryOld     interface{}
	firstChange bool
}

func (t *collectionTracker) observe(newValue interface{}) {
	changed := false

	switch {
	case values.IsArrayLike(newValue):
		arr := toArraySlice(newValue)
		if !t.trackingArray {
			t.trackingArray = true
			t.internalArray = nil
			changed = true
		}
		if len(arr) != len(t.internalArray) {
			changed = true
			t.internalArray = make([]interface{}, len(arr))
		}
		for i, v := range arr {
			if !values.Identical(v, t.internalArray[i]) {
				changed = true
				t.internalArray[i] = v
			}
		}
		if changed {
			t.commit(append([]interface{}(nil), arr...))
		}

	case isPlainDict(newValue):
		if t.trackingArray {
			t.trackingArray = false
			t.internalKeys = make(map[string]interface{})
			t.oldLength = 0
			changed = true
		}
		d := newValue.(*ordereddict.Dict)
		newLength := 0
		for _, k := range d.Keys() {
			v, _ := d.Get(k)
			newLength++
			old, pres := t.internalKeys[k]
			if !pres || !values.Identical(old, v) {
				changed = true
				t.internalKeys[k] = v
			}
		}
		if newLength < t.oldLength {
			changed = true
			for k := range t.internalKeys {
				if _, pres := d.Get(k); !pres {
					delete(t.internalKeys, k)
				}
			}
		}
		t.oldLength = newLength
		if changed {
			clone := ordereddict.NewDict()
			for _, k := range d.Keys() {
				v, _ := d.Get(k)
				clone.Set(k, v)
			}
			t.commit(clone)
		}

	default:
		if t.trackingArray {
			t.trackingArray = false
		}
		if !values.Identical(newValue, t.snapshotOrUndefined()) {
			changed = true
			t.commit(newValue)
		}
	}

	if changed {
		t.changeCount++
	}
}

// snapshotOrUndefined avoids comparing a primitive against a stale
// array/dict snapshot left over from a prior mode.
func (t *collectionTracker) snapshotOrUndefined() interface{} {
	switch t.snapshot.(type) {
	case []interface{}, *ordereddict.Dict:
		return values.UndefinedValue
	default:
		return t.snapshot
	}
}

func (t *collectionTracker) commit(built interface{}) {
	if t.firstChange {
		t.firstChange = false
		t.veryOld = built
	} else {
		t.veryOld = shallowClone(t.snapshot)
	}
	t.snapshot = built
}

func toArraySlice(v interface{}) []interface{} {
	if arr, ok := v.([]interface{}); ok {
		return arr
	}
	return values.Iterate(v)
}

func isPlainDict(v interface{}) bool {
	_, ok := v.(*ordereddict.Dict)
	return ok && !values.IsArrayLike(v)
}

func shallowClone(v interface{}) interface{} {
	switch t := v.(type) {
	case []interface{}:
		return append([]interface{}(nil), t...)
	case *ordereddict.Dict:
		clone := ordereddict.NewDict()
		for _, k := range t.Keys() {
			val, _ := t.Get(k)
			clone.Set(k, val)
		}
		return clone
	default:
		return v
	}
}
