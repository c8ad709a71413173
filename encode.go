package govers

import (
	"encoding"
	"errors"
	"reflect"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/reoring/govers/format"
)

// encoder walks values along their plans. harvest is non-nil only during
// the dry pass, when w is format.Discard and versioned nodes record their
// newest version instead of producing bytes.
type encoder struct {
	reg     *Registry
	w       format.Writer
	harvest VersionMap
	// selfDescribing is false for formats that cannot carry interface values.
	selfDescribing bool
}

func (e *encoder) fail(err error, at *pathRef) error {
	if err == nil {
		return nil
	}
	if _, ok := AsIssues(err); ok {
		return err
	}
	code := CodeInvalidType
	if errors.Is(err, format.ErrUnsupported) {
		code = CodeUnsupported
	}
	it := at.Issue(code, err.Error())
	it.Cause = err
	return AppendIssues(nil, it)
}

func (e *encoder) value(p *plan, v reflect.Value, at *pathRef) error {
	if e.harvest != nil && !p.mayVersion {
		return nil
	}
	var err error
	switch p.kind {
	case planBool:
		err = e.w.Bool(v.Bool())
	case planInt:
		err = e.w.Int(v.Int(), p.bits)
	case planUint:
		err = e.w.Uint(v.Uint(), p.bits)
	case planFloat:
		err = e.w.Float(v.Float(), p.bits)
	case planString:
		err = e.w.String(v.String())
	case planBytes:
		err = e.w.Bytes(v.Bytes())
	case planText:
		err = e.text(p, v, at)
	case planStruct:
		return e.structValue(p, v, at)
	case planTransparent:
		f := p.fields[0]
		return e.value(f.plan, v.Field(f.index), at)
	case planPtr:
		if v.IsNil() {
			return e.fail(e.w.Option(false), at)
		}
		if err := e.w.Option(true); err != nil {
			return e.fail(err, at)
		}
		return e.value(p.elem, v.Elem(), at)
	case planSlice, planArray:
		return e.seq(p, v, at)
	case planMap:
		return e.mapValue(p, v, at)
	case planAny:
		return e.anyValue(v, at)
	case planVersioned:
		if e.harvest != nil {
			e.harvest[p.info.name] = p.info.schema.max
		}
		return e.value(p.self, v, at)
	}
	return e.fail(err, at)
}

func (e *encoder) text(p *plan, v reflect.Value, at *pathRef) error {
	if p.textPtr {
		if !v.CanAddr() {
			c := reflect.New(p.typ)
			c.Elem().Set(v)
			v = c.Elem()
		}
		v = v.Addr()
	}
	b, err := v.Interface().(encoding.TextMarshaler).MarshalText()
	if err != nil {
		return e.fail(err, at)
	}
	return e.fail(e.w.String(string(b)), at)
}

func (e *encoder) structValue(p *plan, v reflect.Value, at *pathRef) error {
	if err := e.w.BeginStruct(len(p.fields)); err != nil {
		return e.fail(err, at)
	}
	for _, f := range p.fields {
		if err := e.w.Field(f.key); err != nil {
			return e.fail(err, at)
		}
		if err := e.value(f.plan, v.Field(f.index), at.Field(f.key)); err != nil {
			return err
		}
	}
	return e.fail(e.w.EndStruct(), at)
}

func (e *encoder) seq(p *plan, v reflect.Value, at *pathRef) error {
	n := v.Len()
	if err := e.w.BeginSeq(n); err != nil {
		return e.fail(err, at)
	}
	for i := 0; i < n; i++ {
		if err := e.value(p.elem, v.Index(i), at.Index(i)); err != nil {
			return err
		}
	}
	return e.fail(e.w.EndSeq(), at)
}

func mapKeyString(k reflect.Value) string {
	switch k.Kind() {
	case reflect.String:
		return k.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10)
	default:
		return strconv.FormatUint(k.Uint(), 10)
	}
}

func (e *encoder) mapValue(p *plan, v reflect.Value, at *pathRef) error {
	type entry struct {
		key string
		val reflect.Value
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		entries = append(entries, entry{key: mapKeyString(iter.Key()), val: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	if err := e.w.BeginMap(len(entries)); err != nil {
		return e.fail(err, at)
	}
	for _, en := range entries {
		if err := e.w.MapKey(en.key); err != nil {
			return e.fail(err, at)
		}
		if err := e.value(p.elem, en.val, at.Field(en.key)); err != nil {
			return err
		}
	}
	return e.fail(e.w.EndMap(), at)
}

func (e *encoder) anyValue(v reflect.Value, at *pathRef) error {
	if !e.selfDescribing && e.harvest == nil {
		return AppendIssues(nil, at.Issue(CodeUnsupported, "interface values need a self-describing format"))
	}
	if v.IsNil() {
		return e.fail(e.w.Null(), at)
	}
	inner := v.Elem()
	p, err := e.reg.planOf(inner.Type())
	if err != nil {
		return err
	}
	return e.value(p, inner, at)
}

// harvestVersions runs the dry pass over v.
func harvestVersions(reg *Registry, p *plan, v reflect.Value) (VersionMap, error) {
	e := &encoder{reg: reg, w: format.Discard, harvest: VersionMap{}, selfDescribing: true}
	if err := e.value(p, v, nil); err != nil {
		return nil, err
	}
	Logger().Debug("harvested versions",
		zap.String("root", p.typ.String()),
		zap.Int("types", len(e.harvest)))
	return e.harvest, nil
}

func writeVersions(w format.Writer, m VersionMap) error {
	names := m.Names()
	if err := w.BeginMap(len(names)); err != nil {
		return err
	}
	for _, n := range names {
		if err := w.MapKey(n); err != nil {
			return err
		}
		if err := w.Uint(uint64(m[n]), 32); err != nil {
			return err
		}
	}
	return w.EndMap()
}

// encodeValue runs both passes and frames the output per opt.Mode.
func encodeValue(v any, opt EncodeOpt) ([]byte, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if !rv.IsValid() || rv.Kind() == reflect.Pointer {
		return nil, singleIssue(CodeUnsupported, "cannot encode a nil value")
	}
	p, err := opt.Registry.planOf(rv.Type())
	if err != nil {
		return nil, err
	}
	w := opt.Format.NewWriter()
	e := &encoder{reg: opt.Registry, w: w, selfDescribing: opt.Format.SelfDescribing()}
	envErr := func(err error) ([]byte, error) { return nil, e.fail(err, nil) }

	switch opt.Mode {
	case ModeUnversioned:
		if err := e.value(p, rv, nil); err != nil {
			return nil, err
		}
	case ModeVersioned:
		m, err := harvestVersions(opt.Registry, p, rv)
		if err != nil {
			return nil, err
		}
		if err := w.Envelope(format.EnvelopeMap); err != nil {
			return envErr(err)
		}
		if err := w.BeginMap(2); err != nil {
			return envErr(err)
		}
		if err := w.MapKey(format.KeyVersions); err != nil {
			return envErr(err)
		}
		if err := writeVersions(w, m); err != nil {
			return envErr(err)
		}
		if err := w.MapKey(format.KeyValue); err != nil {
			return envErr(err)
		}
		if err := e.value(p, rv, nil); err != nil {
			return nil, err
		}
		if err := w.EndMap(); err != nil {
			return envErr(err)
		}
	case ModeSingle:
		root := p.versionedRoot()
		if root == nil {
			return nil, singleIssue(CodeUnsupported, "single-version envelope needs a versioned root type, got "+rv.Type().String())
		}
		m, err := harvestVersions(opt.Registry, p, rv)
		if err != nil {
			return nil, err
		}
		if len(m) > 1 {
			return nil, singleIssue(CodeUnsupported, "single-version envelope cannot describe nested versioned types; use ModeVersioned")
		}
		if err := w.Envelope(format.EnvelopeSingle); err != nil {
			return envErr(err)
		}
		if err := w.BeginMap(2); err != nil {
			return envErr(err)
		}
		if err := w.MapKey(format.KeyVersion); err != nil {
			return envErr(err)
		}
		if err := w.Uint(uint64(root.info.schema.max), 32); err != nil {
			return envErr(err)
		}
		if err := w.MapKey(format.KeyValue); err != nil {
			return envErr(err)
		}
		if err := e.value(p, rv, nil); err != nil {
			return nil, err
		}
		if err := w.EndMap(); err != nil {
			return envErr(err)
		}
	default:
		return nil, singleIssue(CodeUnsupported, "unknown mode "+opt.Mode.String())
	}
	out, err := w.Finish()
	if err != nil {
		return envErr(err)
	}
	return out, nil
}
