package govers

import "reflect"

// FieldOf starts a FieldSpec for the top-level field of T that selector
// addresses, so renaming or removing the Go field breaks the build instead
// of silently changing the schema:
//
//	govers.FieldOf(func(p *Profile) *string { return &p.Email }).Since(3)
func FieldOf[T any, F any](selector func(*T) *F) FieldSpec {
	return Field(FieldNameOf(selector))
}

// FieldNameOf returns the encoded key of the top-level field of T addressed
// by selector. It panics unless selector returns the address of an encoded
// field.
func FieldNameOf[T any, F any](selector func(*T) *F) string {
	if selector == nil {
		panic("govers.FieldNameOf: selector must not be nil")
	}
	var zero T
	rv := reflect.ValueOf(&zero).Elem()
	if rv.Kind() != reflect.Struct {
		panic("govers.FieldNameOf: " + rv.Type().String() + " is not a struct")
	}
	fp := reflect.ValueOf(selector(&zero)).Pointer()
	ft := reflect.TypeFor[F]()
	for _, sk := range structKeys(rv.Type()) {
		fv := rv.Field(sk.index)
		// zero-size fields share their address with the next field
		if fv.Addr().Pointer() == fp && fv.Type() == ft {
			return sk.key
		}
	}
	panic("govers.FieldNameOf: selector must return the address of an encoded top-level field of " + rv.Type().String())
}
