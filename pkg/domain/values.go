package domain

import (
	"slices"
	"sort"
)

// NoTrigger is the trigger id of a forced or initial run.
const NoTrigger = ""

// Values is the id → value map of a tool session.
type Values map[string]any

// Patch is a partial id → value mapping produced by a run or a user edit.
type Patch map[string]any

// Clone returns a shallow copy of the values.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// DeepClone returns a copy that shares no maps or slices with v.
func (v Values) DeepClone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = DeepCopy(val)
	}
	return out
}

// DeepCopy copies the maps and slices of a widget value recursively.
// Pointers such as file payloads are kept as is.
func DeepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if x == nil {
			return x
		}
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = DeepCopy(val)
		}
		return out
	case Values:
		return x.DeepClone()
	case Patch:
		return Patch(Values(x).DeepClone())
	case []any:
		if x == nil {
			return x
		}
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = DeepCopy(val)
		}
		return out
	case []string:
		return slices.Clone(x)
	case []byte:
		return slices.Clone(x)
	}
	return v
}

// Pick returns the subset of values for the given ids.
func (v Values) Pick(ids ...string) Values {
	out := make(Values, len(ids))
	for _, id := range ids {
		if val, ok := v[id]; ok {
			out[id] = val
		}
	}
	return out
}

// Keys returns the patch ids in sorted order.
func (p Patch) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
