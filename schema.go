package govers

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// FieldSpec declares one field and the half-open version interval
// [start, end) in which it exists. Start defaults to 1; a field without an
// end is never removed.
type FieldSpec struct {
	Name     string
	start    uint32
	end      uint32
	startSet bool
	endSet   bool
}

// Field starts a FieldSpec that exists in every version.
func Field(name string) FieldSpec { return FieldSpec{Name: name} }

// Since returns a copy of f that starts existing at version v.
func (f FieldSpec) Since(v uint32) FieldSpec {
	f.start, f.startSet = v, true
	return f
}

// Until returns a copy of f that no longer exists from version v on.
func (f FieldSpec) Until(v uint32) FieldSpec {
	f.end, f.endSet = v, true
	return f
}

// Start is the first version containing the field.
func (f FieldSpec) Start() uint32 {
	if !f.startSet {
		return 1
	}
	return f.start
}

// End is the first version no longer containing the field; ok is false when
// the field is never removed.
func (f FieldSpec) End() (v uint32, ok bool) { return f.end, f.endSet }

// In reports whether the field exists at version v.
func (f FieldSpec) In(v uint32) bool {
	return f.Start() <= v && (!f.endSet || v < f.end)
}

func (f FieldSpec) String() string {
	if e, ok := f.End(); ok {
		return fmt.Sprintf("%s[%d,%d)", f.Name, f.Start(), e)
	}
	return fmt.Sprintf("%s[%d,)", f.Name, f.Start())
}

// Schema is the version schema of one type: its fields, max version and the
// field subset (snapshot) of every version.
type Schema struct {
	name   string
	fields []FieldSpec
	max    uint32
	snaps  [][]string
}

// NewSchema validates fields and derives the per-version snapshots.
func NewSchema(name string, fields []FieldSpec) (*Schema, error) {
	var iss Issues
	seen := make(map[string]bool, len(fields))
	latest := uint32(1)
	for _, f := range fields {
		at := (*pathRef)(nil).Field(f.Name)
		params := map[string]any{"type": name, "field": f.Name}
		bad := func(msg string) {
			iss = AppendIssues(iss, schemaIssue(at.Pointer(), msg, params))
		}
		if f.Name == "" {
			bad("field name is empty")
			continue
		}
		if seen[f.Name] {
			bad("field declared twice")
		}
		seen[f.Name] = true
		if f.startSet && f.start == 0 {
			bad("start version 0 is not a version")
		}
		if f.endSet {
			switch {
			case f.end == 0:
				bad("end version 0 is not a version")
			case f.end == 1:
				bad("field cannot be absent from version 1")
			case f.end == f.Start():
				bad(fmt.Sprintf("zero-width interval [%d,%d)", f.end, f.end))
			case f.end < f.Start():
				bad(fmt.Sprintf("end %d precedes start %d", f.end, f.Start()))
			}
			latest = max(latest, f.end)
		}
		latest = max(latest, f.Start())
	}
	if len(iss) > 0 {
		return nil, iss
	}
	s := &Schema{name: name, fields: append([]FieldSpec(nil), fields...), max: latest}
	s.snaps = make([][]string, latest)
	for v := uint32(1); v <= latest; v++ {
		keys := []string{}
		for _, f := range fields {
			if f.In(v) {
				keys = append(keys, f.Name)
			}
		}
		s.snaps[v-1] = keys
	}
	return s, nil
}

// Name is the type name used in version maps.
func (s *Schema) Name() string { return s.name }

// Max is the newest version.
func (s *Schema) Max() uint32 { return s.max }

// Fields returns the declared fields.
func (s *Schema) Fields() []FieldSpec { return append([]FieldSpec(nil), s.fields...) }

// Snapshot returns the ordered field names present at version v.
func (s *Schema) Snapshot(v uint32) ([]string, error) {
	if v == 0 || v > s.max {
		return nil, unknownVersion(nil, s.name, v, s.max)
	}
	return append([]string(nil), s.snaps[v-1]...), nil
}

// Has reports whether field name exists at version v.
func (s *Schema) Has(v uint32, name string) bool {
	for _, f := range s.fields {
		if f.Name == name {
			return f.In(v)
		}
	}
	return false
}

// Diff lists the fields entering and leaving between version v-1 and v.
func (s *Schema) Diff(v uint32) (added, removed []string) {
	if v < 2 || v > s.max {
		return nil, nil
	}
	for _, f := range s.fields {
		was, is := f.In(v-1), f.In(v)
		switch {
		case is && !was:
			added = append(added, f.Name)
		case was && !is:
			removed = append(removed, f.Name)
		}
	}
	return added, removed
}

// ParseFieldTags reads field specs from the `version` tags of struct type t,
// for example `version:"start=2,end=3"`. Keys resolve like encoded fields.
// Fields without a tag exist in every version.
func ParseFieldTags(t reflect.Type) ([]FieldSpec, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, singleIssue(CodeSchemaInvalid, t.String()+" is not a struct")
	}
	var iss Issues
	var out []FieldSpec
	for _, sk := range structKeys(t) {
		f := Field(sk.key)
		tag, ok := t.Field(sk.index).Tag.Lookup("version")
		if ok {
			var err error
			if f, err = parseVersionTag(f, tag); err != nil {
				iss = AppendIssues(iss, schemaIssue((*pathRef)(nil).Field(sk.key).Pointer(), err.Error(),
					map[string]any{"type": t.String(), "field": sk.key, "tag": tag}))
				continue
			}
		}
		out = append(out, f)
	}
	if len(iss) > 0 {
		return nil, iss
	}
	// interval rules are shared with NewSchema
	if _, err := NewSchema(t.String(), out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseVersionTag(f FieldSpec, tag string) (FieldSpec, error) {
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return f, fmt.Errorf("version tag attribute %q has no value", part)
		}
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return f, fmt.Errorf("version tag %s=%q is not a version number", k, v)
		}
		switch strings.TrimSpace(k) {
		case "start":
			f = f.Since(uint32(n))
		case "end":
			f = f.Until(uint32(n))
		default:
			return f, fmt.Errorf("unknown version tag attribute %q", k)
		}
	}
	return f, nil
}
