// Package tree holds an ordered, format-neutral value tree and the
// format.Writer/format.Reader pair over it. Self-describing formats whose
// libraries decode whole documents (YAML, CBOR) convert to and from this tree.
//
// Values are nil, bool, int64, uint64, float64, string, []byte, []any and
// Object. Objects keep member order and may hold duplicate keys; the Reader
// reports duplicates when the object is opened.
package tree

// Member is one key/value pair of an Object.
type Member struct {
	Key   string
	Value any
}

// Object is an ordered mapping.
type Object []Member

// Get returns the first member value with the given key.
func (o Object) Get(key string) (any, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// duplicate returns the first key that occurs twice, if any.
func (o Object) duplicate() (string, bool) {
	if len(o) < 2 {
		return "", false
	}
	if len(o) <= 8 {
		for i := 1; i < len(o); i++ {
			for j := 0; j < i; j++ {
				if o[i].Key == o[j].Key {
					return o[i].Key, true
				}
			}
		}
		return "", false
	}
	seen := make(map[string]struct{}, len(o))
	for _, m := range o {
		if _, ok := seen[m.Key]; ok {
			return m.Key, true
		}
		seen[m.Key] = struct{}{}
	}
	return "", false
}

// Plain converts a tree value into generic Go values, turning Objects into
// map[string]any. Later duplicates win.
func Plain(v any) any {
	switch x := v.(type) {
	case Object:
		m := make(map[string]any, len(x))
		for _, mem := range x {
			m[mem.Key] = Plain(mem.Value)
		}
		return m
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Plain(e)
		}
		return out
	}
	return v
}

// KindOf names the kind of a tree value for error messages.
func KindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case int64, uint64:
		return "integer"
	case float64:
		return "number"
	case string:
		return "string"
	case []byte:
		return "bytes"
	case []any:
		return "array"
	case Object:
		return "object"
	}
	return "unknown"
}
