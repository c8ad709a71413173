package govers

import (
	"fmt"
	"reflect"
)

// Step upgrades a snapshot of one version to the snapshot of the next. Build
// steps with Upgrade, Map or Unchanged.
type Step struct {
	from, to reflect.Type
	// same marks steps built by Unchanged; their field sets are checked at
	// registration.
	same  bool
	apply func(reflect.Value) (reflect.Value, error)
}

// From is the snapshot type the step consumes.
func (s Step) From() reflect.Type { return s.from }

// To is the snapshot type the step produces.
func (s Step) To() reflect.Type { return s.to }

func (s Step) String() string {
	if s.from == nil {
		return "<nil step>"
	}
	return s.from.String() + " -> " + s.to.String()
}

// Upgrade wraps a fallible migration function.
func Upgrade[From, To any](fn func(From) (To, error)) Step {
	return Step{
		from: reflect.TypeFor[From](),
		to:   reflect.TypeFor[To](),
		apply: func(v reflect.Value) (reflect.Value, error) {
			out, err := fn(v.Interface().(From))
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(&out).Elem(), nil
		},
	}
}

// Map wraps an infallible migration function.
func Map[From, To any](fn func(From) To) Step {
	return Upgrade(func(v From) (To, error) { return fn(v), nil })
}

// Unchanged is the step between two snapshots with the same fields. Values
// are copied key by key.
func Unchanged[From, To any]() Step {
	from, to := reflect.TypeFor[From](), reflect.TypeFor[To]()
	return Step{
		from: from,
		to:   to,
		same: true,
		apply: func(v reflect.Value) (reflect.Value, error) {
			out := reflect.New(to).Elem()
			if err := copyFields(out, v); err != nil {
				return reflect.Value{}, err
			}
			return out, nil
		},
	}
}

// copyFields assigns every field of src to the field of dst with the same
// wire key. The types were checked by sameShape.
func copyFields(dst, src reflect.Value) error {
	if dst.Type() == src.Type() {
		dst.Set(src)
		return nil
	}
	from := structKeys(src.Type())
	idx := make(map[string]int, len(from))
	for _, k := range from {
		idx[k.key] = k.index
	}
	for _, k := range structKeys(dst.Type()) {
		i, ok := idx[k.key]
		if !ok {
			return fmt.Errorf("govers: field %q missing from %s", k.key, src.Type())
		}
		sv, df := src.Field(i), dst.Field(k.index)
		switch {
		case sv.Type().AssignableTo(df.Type()):
			df.Set(sv)
		case copyable(sv.Type(), df.Type()):
			df.Set(sv.Convert(df.Type()))
		default:
			return fmt.Errorf("govers: field %q: cannot convert %s to %s", k.key, sv.Type(), df.Type())
		}
	}
	return nil
}

// sameShape reports why struct types a and b cannot be copied key by key,
// or "" when they can.
func sameShape(a, b reflect.Type) string {
	if a == b {
		return ""
	}
	if a.Kind() != reflect.Struct || b.Kind() != reflect.Struct {
		return fmt.Sprintf("%s and %s are not both structs", a, b)
	}
	ak, bk := structKeys(a), structKeys(b)
	if len(ak) != len(bk) {
		return fmt.Sprintf("%s has %d fields, %s has %d", a, len(ak), b, len(bk))
	}
	for i := range ak {
		if ak[i].key != bk[i].key {
			return fmt.Sprintf("field %d is %q in %s but %q in %s", i, ak[i].key, a, bk[i].key, b)
		}
		at, bt := a.Field(ak[i].index).Type, b.Field(bk[i].index).Type
		if !at.AssignableTo(bt) && !copyable(at, bt) {
			return fmt.Sprintf("field %q: %s does not convert to %s", ak[i].key, at, bt)
		}
	}
	return ""
}

// copyable reports whether a value of type a converts to b without changing
// its kind, as between a named type and its underlying type. Conversions
// such as int to string or float64 to int are not copies.
func copyable(a, b reflect.Type) bool {
	return a.Kind() == b.Kind() && a.ConvertibleTo(b)
}

// migrate upgrades snapshot value v of version ver to the current type.
func (ti *typeInfo) migrate(ver uint32, v reflect.Value, at *pathRef) (reflect.Value, error) {
	for i := ver; i < ti.schema.max; i++ {
		step := ti.steps[i-1]
		out, err := step.apply(v)
		if err != nil {
			it := at.Issue(CodeMigrationFailed,
				fmt.Sprintf("migrating %s from version %d to %d: %v", ti.name, i, i+1, err),
				"type", ti.name, "from", i, "to", i+1)
			it.Cause = err
			return reflect.Value{}, AppendIssues(nil, it)
		}
		v = out
	}
	if v.Type() == ti.typ {
		return v, nil
	}
	cur := reflect.New(ti.typ).Elem()
	if err := copyFields(cur, v); err != nil {
		return reflect.Value{}, AppendIssues(nil, at.Issue(CodeMigrationFailed, err.Error(), "type", ti.name))
	}
	return cur, nil
}
