package govers

import (
	"encoding"
	"reflect"
)

type planKind uint8

const (
	planBool planKind = iota
	planInt
	planUint
	planFloat
	planString
	planBytes
	planText
	planStruct
	planTransparent
	planPtr
	planSlice
	planArray
	planMap
	planAny
	planVersioned
)

// plan is the compiled encode/decode recipe of one Go type.
type plan struct {
	kind planKind
	typ  reflect.Type
	bits int

	fields []fieldPlan // struct, transparent
	keys   []string    // struct
	elem   *plan       // ptr, slice, array, map value

	// versioned types: self is the plain struct plan of the current type and
	// snaps[v-1] the plain struct plan of version v.
	info  *typeInfo
	self  *plan
	snaps []*plan

	// textPtr means MarshalText is declared on *T.
	textPtr bool
	// mayVersion is false when no value of this type can contain a
	// versioned node; the dry pass skips such subtrees.
	mayVersion bool
}

type fieldPlan struct {
	key   string
	index int
	plan  *plan
}

var (
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// planOf returns the cached plan of t, compiling it on first use.
func (r *Registry) planOf(t reflect.Type) (*plan, error) {
	if p, ok := r.plans.Load(t); ok {
		return p.(*plan), nil
	}
	r.mu.RLock()
	gen := r.gen
	r.mu.RUnlock()
	c := &compiler{reg: r, done: make(map[planKey]*plan)}
	p, err := c.compile(t, false)
	if err != nil {
		return nil, err
	}
	c.propagate()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.gen != gen {
		// a registration landed mid-compile; p serves this call only
		return p, nil
	}
	actual, _ := r.plans.LoadOrStore(t, p)
	return actual.(*plan), nil
}

type planKey struct {
	t     reflect.Type
	plain bool
}

type compiler struct {
	reg  *Registry
	done map[planKey]*plan
	all  []*plan
}

func unsupportedType(t reflect.Type, why string) error {
	return singleIssue(CodeUnsupported, "type "+t.String()+": "+why)
}

// compile builds the plan of t. plain ignores a registration of t itself,
// which is how versioned types get the plan of their own fields.
func (c *compiler) compile(t reflect.Type, plain bool) (*plan, error) {
	k := planKey{t: t, plain: plain}
	if p, ok := c.done[k]; ok {
		return p, nil
	}
	if !plain {
		if p, ok := c.reg.plans.Load(t); ok {
			return p.(*plan), nil
		}
	}
	// placeholder first so recursive types terminate
	p := &plan{typ: t}
	c.done[k] = p
	c.all = append(c.all, p)

	if !plain {
		if ti := c.reg.lookup(t); ti != nil {
			return p, c.versioned(p, ti)
		}
	}
	if t.Kind() != reflect.Interface && t.Kind() != reflect.Pointer {
		switch {
		case t.Implements(textMarshalerType) && reflect.PointerTo(t).Implements(textUnmarshalerType):
			p.kind = planText
			return p, nil
		case reflect.PointerTo(t).Implements(textMarshalerType) && reflect.PointerTo(t).Implements(textUnmarshalerType):
			p.kind, p.textPtr = planText, true
			return p, nil
		}
	}

	var err error
	switch t.Kind() {
	case reflect.Bool:
		p.kind = planBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		p.kind, p.bits = planInt, t.Bits()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		p.kind, p.bits = planUint, t.Bits()
	case reflect.Float32, reflect.Float64:
		p.kind, p.bits = planFloat, t.Bits()
	case reflect.String:
		p.kind = planString
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			p.kind = planBytes
			break
		}
		p.kind = planSlice
		p.elem, err = c.compile(t.Elem(), false)
	case reflect.Array:
		p.kind = planArray
		p.elem, err = c.compile(t.Elem(), false)
	case reflect.Map:
		switch t.Key().Kind() {
		case reflect.String,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		default:
			return nil, unsupportedType(t, "map keys must be strings or integers")
		}
		p.kind = planMap
		p.elem, err = c.compile(t.Elem(), false)
	case reflect.Pointer:
		p.kind = planPtr
		p.elem, err = c.compile(t.Elem(), false)
	case reflect.Interface:
		p.kind, p.mayVersion = planAny, true
	case reflect.Struct:
		err = c.structFields(p)
	default:
		return nil, unsupportedType(t, "kind "+t.Kind().String()+" cannot be encoded")
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (c *compiler) structFields(p *plan) error {
	keys := structKeys(p.typ)
	seen := make(map[string]bool, len(keys))
	for _, sk := range keys {
		if seen[sk.key] {
			return unsupportedType(p.typ, "key "+sk.key+" is used by two fields")
		}
		seen[sk.key] = true
		fp, err := c.compile(p.typ.Field(sk.index).Type, false)
		if err != nil {
			return err
		}
		p.fields = append(p.fields, fieldPlan{key: sk.key, index: sk.index, plan: fp})
		p.keys = append(p.keys, sk.key)
	}
	p.kind = planStruct
	if len(keys) == 1 && hasTagOption(p.typ.Field(keys[0].index), "transparent") {
		p.kind = planTransparent
	}
	return nil
}

func (c *compiler) versioned(p *plan, ti *typeInfo) error {
	p.kind, p.info, p.mayVersion = planVersioned, ti, true
	self, err := c.compile(ti.typ, true)
	if err != nil {
		return err
	}
	p.self = self
	p.snaps = make([]*plan, len(ti.snaps))
	for i, st := range ti.snaps {
		if st == ti.typ {
			p.snaps[i] = self
			continue
		}
		if p.snaps[i], err = c.compile(st, true); err != nil {
			return err
		}
	}
	return nil
}

// propagate marks every plan that can reach a versioned plan. Iterating to a
// fixed point handles recursive types.
func (c *compiler) propagate() {
	for changed := true; changed; {
		changed = false
		for _, p := range c.all {
			if p.mayVersion {
				continue
			}
			if p.reaches() {
				p.mayVersion, changed = true, true
			}
		}
	}
}

func (p *plan) reaches() bool {
	if p.elem != nil && p.elem.mayVersion {
		return true
	}
	for _, f := range p.fields {
		if f.plan.mayVersion {
			return true
		}
	}
	return false
}

// versionedRoot finds the versioned plan a value of p encodes as, looking
// through pointers and transparent wrappers.
func (p *plan) versionedRoot() *plan {
	for q := p; q != nil; {
		switch q.kind {
		case planVersioned:
			return q
		case planPtr:
			q = q.elem
		case planTransparent:
			q = q.fields[0].plan
		default:
			return nil
		}
	}
	return nil
}
