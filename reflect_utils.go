package govers

import (
	"reflect"
	"strings"
)

// ResolveStructKey applies the repository-wide rule to resolve a struct field's
// wire key.
// Priority: govers:"name=..." > json tag name > field name; "-" disables the field.
func ResolveStructKey(sf reflect.StructField) string {
	if gt := sf.Tag.Get("govers"); gt != "" {
		if gt == "-" {
			return "-"
		}
		for _, p := range strings.Split(gt, ",") {
			p = strings.TrimSpace(p)
			if strings.HasPrefix(p, "name=") {
				return strings.TrimPrefix(p, "name=")
			}
		}
	}
	if jt := sf.Tag.Get("json"); jt != "" {
		if jt == "-" {
			return "-"
		}
		if i := strings.IndexByte(jt, ','); i >= 0 {
			if jt[:i] != "" {
				return jt[:i]
			}
			return sf.Name
		}
		return jt
	}
	return sf.Name
}

// hasTagOption reports whether the govers tag lists opt.
func hasTagOption(sf reflect.StructField, opt string) bool {
	for _, p := range strings.Split(sf.Tag.Get("govers"), ",") {
		if strings.TrimSpace(p) == opt {
			return true
		}
	}
	return false
}

type structKey struct {
	key   string
	index int
}

// structKeys lists the encoded fields of struct type t in declaration order.
func structKeys(t reflect.Type) []structKey {
	var out []structKey
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		k := ResolveStructKey(sf)
		if k == "-" {
			continue
		}
		out = append(out, structKey{key: k, index: i})
	}
	return out
}

func keyNames(ks []structKey) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = k.key
	}
	return out
}
