package govers

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Definition describes a versioned type for registration.
type Definition struct {
	// Name identifies the type in version maps. Empty means
	// "<package path>.<type name>".
	Name string
	// Fields lists every field ever declared, in wire order. Nil derives an
	// unversioned schema (max version 1) from the type's own fields.
	Fields []FieldSpec
	// Steps holds one step per version boundary: Steps[i] upgrades version
	// i+1 to i+2. The From type of each step is that version's snapshot;
	// the last step produces the current type or a struct with the same
	// fields.
	Steps []Step
}

type typeInfo struct {
	name   string
	typ    reflect.Type
	schema *Schema
	// snaps[v-1] is the Go type holding version v.
	snaps []reflect.Type
	steps []Step
}

// Registry maps Go types to their version definitions and caches compiled
// plans. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*typeInfo
	byName map[string]*typeInfo
	plans  sync.Map // reflect.Type -> *plan
	// gen counts registrations; a plan compiled under an older gen is not cached.
	gen uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[reflect.Type]*typeInfo),
		byName: make(map[string]*typeInfo),
	}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the registry used when options name none.
func DefaultRegistry() *Registry { return defaultRegistry }

// Register adds T to the default registry.
func Register[T any](def Definition) error { return RegisterIn[T](defaultRegistry, def) }

// MustRegister is Register that panics on error, for package init.
func MustRegister[T any](def Definition) {
	if err := Register[T](def); err != nil {
		panic(err)
	}
}

// RegisterIn validates def against T and adds it to r.
func RegisterIn[T any](r *Registry, def Definition) error {
	ti, err := buildTypeInfo(reflect.TypeFor[T](), def)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byType[ti.typ]; dup {
		return singleIssue(CodeSchemaInvalid, ti.typ.String()+" is already registered")
	}
	if _, dup := r.byName[ti.name]; dup {
		return singleIssue(CodeSchemaInvalid, "type name "+ti.name+" is already registered")
	}
	r.byType[ti.typ] = ti
	r.byName[ti.name] = ti
	// plans compiled before this call may embed t as a plain struct
	r.gen++
	r.plans.Range(func(k, _ any) bool {
		r.plans.Delete(k)
		return true
	})
	Logger().Debug("registered versioned type",
		zap.String("type", ti.name),
		zap.Uint32("max_version", ti.schema.max))
	return nil
}

// Schema returns the schema registered under name.
func (r *Registry) Schema(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ti, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return ti.schema, true
}

// SchemaOf returns the schema of T if T is registered.
func SchemaOf[T any](r *Registry) (*Schema, bool) {
	if r == nil {
		r = defaultRegistry
	}
	ti := r.lookup(reflect.TypeFor[T]())
	if ti == nil {
		return nil, false
	}
	return ti.schema, true
}

// Names lists registered type names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) lookup(t reflect.Type) *typeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byType[t]
}

// TypeName is the default version map name of t.
func TypeName(t reflect.Type) string {
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

func buildTypeInfo(t reflect.Type, def Definition) (*typeInfo, error) {
	if t.Kind() != reflect.Struct || t.Name() == "" {
		return nil, singleIssue(CodeSchemaInvalid, "versioned type "+t.String()+" must be a named struct")
	}
	name := def.Name
	if name == "" {
		name = TypeName(t)
	}
	fields := def.Fields
	if fields == nil {
		for _, k := range structKeys(t) {
			fields = append(fields, Field(k.key))
		}
	}
	schema, err := NewSchema(name, fields)
	if err != nil {
		return nil, err
	}
	ti := &typeInfo{name: name, typ: t, schema: schema, steps: def.Steps}

	var iss Issues
	bad := func(path, msg string) {
		iss = AppendIssues(iss, schemaIssue(path, msg, map[string]any{"type": name}))
	}
	if want := int(schema.max) - 1; len(def.Steps) != want {
		bad("/steps", fmt.Sprintf("max version %d needs %d steps, got %d", schema.max, want, len(def.Steps)))
		return nil, iss
	}
	ti.snaps = make([]reflect.Type, schema.max)
	for i, s := range def.Steps {
		at := (*pathRef)(nil).Field("steps").Index(i).Pointer()
		if s.apply == nil {
			bad(at, "step is not initialized")
			return nil, iss
		}
		ti.snaps[i] = s.from
		if i > 0 && def.Steps[i-1].to != s.from {
			bad(at, fmt.Sprintf("step consumes %s but the previous step produces %s", s.from, def.Steps[i-1].to))
		}
		if s.same {
			if why := sameShape(s.from, s.to); why != "" {
				bad(at, "unchanged step: "+why)
			}
		}
	}
	last := t
	if n := len(def.Steps); n > 0 {
		last = def.Steps[n-1].to
		if why := sameShape(last, t); why != "" {
			bad("/steps/"+fmt.Sprint(n-1), "newest snapshot does not match "+t.String()+": "+why)
		}
	}
	ti.snaps[schema.max-1] = last
	for v := uint32(1); v <= schema.max; v++ {
		st := ti.snaps[v-1]
		at := "/versions/" + fmt.Sprint(v)
		if st == nil {
			continue
		}
		if st.Kind() != reflect.Struct {
			bad(at, fmt.Sprintf("snapshot %s of version %d is not a struct", st, v))
			continue
		}
		want := schema.snaps[v-1]
		got := keyNames(structKeys(st))
		if !slices.Equal(want, got) {
			bad(at, fmt.Sprintf("snapshot %s of version %d has fields %v, schema expects %v", st, v, got, want))
		}
	}
	if len(iss) > 0 {
		return nil, iss
	}
	return ti, nil
}
