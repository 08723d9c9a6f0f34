package pathvalue

import (
	"encoding/json"

	"github.com/google/go-cmp/cmp"
)

// jsonNumberOpt treats json.Number like any other comparable scalar.
var jsonNumberOpt = cmp.Comparer(func(a, b json.Number) bool {
	return a.String() == b.String()
})

// Equal reports whether two decoded JSON values are structurally
// identical, per I3 ("a path subscriber fires iff the serialized subtree
// at that path changes"). Generalizes the comparison approach the teacher
// uses in libevm/jsoncmp (there scoped to test assertions via go-cmp) to a
// runtime change-detection check.
func Equal(a, b interface{}) bool {
	return cmp.Equal(a, b, jsonNumberOpt)
}

// DeepCopy returns an independent copy of a decoded JSON value tree, so
// that RecordEngine.Get can hand out a value the caller may not mutate
// the record through.
func DeepCopy(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, vv := range val {
			out[k] = DeepCopy(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, vv := range val {
			out[i] = DeepCopy(vv)
		}
		return out
	default:
		return val
	}
}
