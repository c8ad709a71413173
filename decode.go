package govers

import (
	"encoding"
	"errors"
	"io"
	"reflect"
	"strconv"

	"go.uber.org/zap"

	"github.com/reoring/govers/format"
)

// decoder pulls values from a reader along their plans. ctx is installed
// from the envelope before the payload is read.
type decoder struct {
	reg            *Registry
	r              format.Reader
	ctx            *DecodeContext
	unknown        UnknownPolicy
	selfDescribing bool
}

// fail maps reader errors onto Issues at the current path.
func (d *decoder) fail(err error, at *pathRef) error {
	if err == nil {
		return nil
	}
	if _, ok := AsIssues(err); ok {
		return err
	}
	it := formatIssue(err, at)
	return AppendIssues(nil, it)
}

func formatIssue(err error, at *pathRef) Issue {
	var (
		te *format.TypeError
		de *format.DuplicateKeyError
		oe *format.OverflowError
		le *format.LimitError
		se *format.SyntaxError
	)
	var it Issue
	switch {
	case errors.As(err, &te):
		it = at.Issue(CodeInvalidType, te.Error())
		it.Offset = te.Offset
	case errors.As(err, &de):
		it = at.Field(de.Key).Issue(CodeDuplicateKey, de.Error(), "key", de.Key)
	case errors.As(err, &oe):
		it = at.Issue(CodeOverflow, oe.Error(), "bits", oe.Bits)
	case errors.As(err, &le) && le.Limit == "bytes":
		it = at.Issue(CodeTruncated, le.Error())
	case errors.As(err, &le):
		it = at.Issue(CodeParseError, le.Error())
	case errors.As(err, &se):
		it = at.Issue(CodeParseError, se.Msg)
		it.Offset = se.Offset
	case errors.Is(err, format.ErrUnsupported):
		it = at.Issue(CodeUnsupported, err.Error())
	default:
		it = at.Issue(CodeParseError, err.Error())
	}
	it.Cause = err
	return it
}

func (d *decoder) value(p *plan, dst reflect.Value, at *pathRef) error {
	switch p.kind {
	case planBool:
		b, err := d.r.Bool()
		if err != nil {
			return d.fail(err, at)
		}
		dst.SetBool(b)
	case planInt:
		i, err := d.r.Int(p.bits)
		if err != nil {
			return d.fail(err, at)
		}
		dst.SetInt(i)
	case planUint:
		u, err := d.r.Uint(p.bits)
		if err != nil {
			return d.fail(err, at)
		}
		dst.SetUint(u)
	case planFloat:
		f, err := d.r.Float(p.bits)
		if err != nil {
			return d.fail(err, at)
		}
		dst.SetFloat(f)
	case planString:
		s, err := d.r.String()
		if err != nil {
			return d.fail(err, at)
		}
		dst.SetString(s)
	case planBytes:
		b, err := d.r.Bytes()
		if err != nil {
			return d.fail(err, at)
		}
		if b == nil {
			dst.SetZero()
			return nil
		}
		dst.SetBytes(b)
	case planText:
		return d.text(p, dst, at)
	case planStruct:
		return d.structValue(p, dst, at)
	case planTransparent:
		f := p.fields[0]
		return d.value(f.plan, dst.Field(f.index), at)
	case planPtr:
		present, err := d.r.Option()
		if err != nil {
			return d.fail(err, at)
		}
		if !present {
			dst.SetZero()
			return nil
		}
		nv := reflect.New(p.elem.typ)
		if err := d.value(p.elem, nv.Elem(), at); err != nil {
			return err
		}
		dst.Set(nv)
	case planSlice:
		return d.slice(p, dst, at)
	case planArray:
		return d.array(p, dst, at)
	case planMap:
		return d.mapValue(p, dst, at)
	case planAny:
		return d.anyValue(p, dst, at)
	case planVersioned:
		return d.versioned(p, dst, at)
	}
	return nil
}

func (d *decoder) text(p *plan, dst reflect.Value, at *pathRef) error {
	s, err := d.r.String()
	if err != nil {
		return d.fail(err, at)
	}
	nv := reflect.New(p.typ)
	if err := nv.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
		it := at.Issue(CodeInvalidType, err.Error())
		it.Cause = err
		return AppendIssues(nil, it)
	}
	dst.Set(nv.Elem())
	return nil
}

func (d *decoder) structValue(p *plan, dst reflect.Value, at *pathRef) error {
	if err := d.r.BeginStruct(p.keys); err != nil {
		return d.fail(err, at)
	}
	for {
		idx, key, ok, err := d.r.NextField()
		if err != nil {
			return d.fail(err, at)
		}
		if !ok {
			break
		}
		if idx < 0 {
			if d.unknown == UnknownStrict {
				return AppendIssues(nil, at.Field(key).Issue(CodeUnknownKey, "unknown key "+strconv.Quote(key), "key", key))
			}
			if err := d.r.Skip(); err != nil {
				return d.fail(err, at.Field(key))
			}
			continue
		}
		f := p.fields[idx]
		if err := d.value(f.plan, dst.Field(f.index), at.Field(f.key)); err != nil {
			return err
		}
	}
	return d.fail(d.r.EndStruct(), at)
}

// capHint bounds preallocation driven by untrusted length prefixes.
func capHint(n int) int {
	if n < 0 {
		return 0
	}
	return min(n, 1024)
}

func (d *decoder) slice(p *plan, dst reflect.Value, at *pathRef) error {
	n, err := d.r.BeginSeq()
	if err != nil {
		return d.fail(err, at)
	}
	s := reflect.MakeSlice(p.typ, 0, capHint(n))
	for i := 0; ; i++ {
		more, err := d.r.NextElem()
		if err != nil {
			return d.fail(err, at)
		}
		if !more {
			break
		}
		s = reflect.Append(s, reflect.Zero(p.elem.typ))
		if err := d.value(p.elem, s.Index(i), at.Index(i)); err != nil {
			return err
		}
	}
	if err := d.r.EndSeq(); err != nil {
		return d.fail(err, at)
	}
	if s.Len() == 0 {
		dst.SetZero()
		return nil
	}
	dst.Set(s)
	return nil
}

func (d *decoder) array(p *plan, dst reflect.Value, at *pathRef) error {
	if _, err := d.r.BeginSeq(); err != nil {
		return d.fail(err, at)
	}
	n := dst.Len()
	i := 0
	for ; ; i++ {
		more, err := d.r.NextElem()
		if err != nil {
			return d.fail(err, at)
		}
		if !more {
			break
		}
		if i >= n {
			return AppendIssues(nil, at.Issue(CodeInvalidType, "array has more than "+strconv.Itoa(n)+" elements", "len", n))
		}
		if err := d.value(p.elem, dst.Index(i), at.Index(i)); err != nil {
			return err
		}
	}
	if i != n {
		return AppendIssues(nil, at.Issue(CodeInvalidType, "array has "+strconv.Itoa(i)+" elements, want "+strconv.Itoa(n), "len", n))
	}
	return d.fail(d.r.EndSeq(), at)
}

func parseMapKey(kt reflect.Type, s string) (reflect.Value, error) {
	k := reflect.New(kt).Elem()
	switch kt.Kind() {
	case reflect.String:
		k.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(s, 10, kt.Bits())
		if err != nil {
			return k, err
		}
		k.SetInt(i)
	default:
		u, err := strconv.ParseUint(s, 10, kt.Bits())
		if err != nil {
			return k, err
		}
		k.SetUint(u)
	}
	return k, nil
}

func (d *decoder) mapValue(p *plan, dst reflect.Value, at *pathRef) error {
	n, err := d.r.BeginMap()
	if err != nil {
		return d.fail(err, at)
	}
	m := reflect.MakeMapWithSize(p.typ, capHint(n))
	for {
		key, ok, err := d.r.NextKey()
		if err != nil {
			return d.fail(err, at)
		}
		if !ok {
			break
		}
		kat := at.Field(key)
		kv, err := parseMapKey(p.typ.Key(), key)
		if err != nil {
			it := kat.Issue(CodeInvalidType, "map key "+strconv.Quote(key)+" is not a "+p.typ.Key().String())
			it.Cause = err
			return AppendIssues(nil, it)
		}
		if m.MapIndex(kv).IsValid() {
			return AppendIssues(nil, kat.Issue(CodeDuplicateKey, "key '"+key+"' duplicated", "key", key))
		}
		ev := reflect.New(p.elem.typ).Elem()
		if err := d.value(p.elem, ev, kat); err != nil {
			return err
		}
		m.SetMapIndex(kv, ev)
	}
	if err := d.r.EndMap(); err != nil {
		return d.fail(err, at)
	}
	if m.Len() == 0 {
		dst.SetZero()
		return nil
	}
	dst.Set(m)
	return nil
}

func (d *decoder) anyValue(p *plan, dst reflect.Value, at *pathRef) error {
	if !d.selfDescribing {
		return AppendIssues(nil, at.Issue(CodeUnsupported, "interface values need a self-describing format"))
	}
	if p.typ.NumMethod() != 0 {
		return AppendIssues(nil, at.Issue(CodeUnsupported, "cannot decode into non-empty interface "+p.typ.String()))
	}
	v, err := d.r.Any()
	if err != nil {
		return d.fail(err, at)
	}
	if v == nil {
		dst.SetZero()
		return nil
	}
	dst.Set(reflect.ValueOf(v))
	return nil
}

// versioned decodes the snapshot selected by the context and migrates it to
// the current shape.
func (d *decoder) versioned(p *plan, dst reflect.Value, at *pathRef) error {
	ti := p.info
	ver, err := d.ctx.versionFor(ti.schema, at)
	if err != nil {
		return err
	}
	sp := p.snaps[ver-1]
	if ver == ti.schema.max && sp.typ == ti.typ {
		return d.value(sp, dst, at)
	}
	sv := reflect.New(sp.typ).Elem()
	if err := d.value(sp, sv, at); err != nil {
		return err
	}
	cur, err := ti.migrate(ver, sv, at)
	if err != nil {
		return err
	}
	dst.Set(cur)
	return nil
}

// run detects the envelope, installs the decode context and decodes the
// payload into dst.
func (d *decoder) run(p *plan, dst reflect.Value, hint format.EnvelopeKind, missing MissingPolicy) error {
	kind, err := d.r.Envelope(hint)
	if err != nil {
		return d.envelopeErr(err)
	}
	Logger().Debug("decoding",
		zap.String("type", p.typ.String()),
		zap.Stringer("envelope", kind))
	switch kind {
	case format.EnvelopeMap:
		err = d.mapEnvelope(p, dst, missing)
	case format.EnvelopeSingle:
		err = d.singleEnvelope(p, dst, missing)
	default:
		d.ctx = &DecodeContext{missing: missing}
		err = d.value(p, dst, nil)
	}
	if err != nil {
		return err
	}
	return d.fail(d.r.Done(), nil)
}

// envelopeErr reports reader errors raised while reading envelope members.
func (d *decoder) envelopeErr(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return d.fail(err, nil)
	}
	it := formatIssue(err, nil)
	it.Code = CodeEnvelopeMalformed
	it.Path = "/"
	return AppendIssues(nil, it)
}

// readVersions reads the versions member.
func (d *decoder) readVersions() (VersionMap, error) {
	if _, err := d.r.BeginMap(); err != nil {
		return nil, d.envelopeErr(err)
	}
	m := VersionMap{}
	for {
		name, ok, err := d.r.NextKey()
		if err != nil {
			return nil, d.envelopeErr(err)
		}
		if !ok {
			break
		}
		if _, dup := m[name]; dup {
			return nil, malformed("type %q listed twice in versions", name)
		}
		v, err := d.r.Uint(32)
		if err != nil {
			return nil, d.envelopeErr(err)
		}
		m[name] = uint32(v)
	}
	if err := d.r.EndMap(); err != nil {
		return nil, d.envelopeErr(err)
	}
	return m, nil
}

func (d *decoder) mapEnvelope(p *plan, dst reflect.Value, missing MissingPolicy) error {
	if _, err := d.r.BeginMap(); err != nil {
		return d.envelopeErr(err)
	}
	var (
		versions VersionMap
		deferred format.Reader
		haveVers bool
		haveVal  bool
	)
	for {
		key, ok, err := d.r.NextKey()
		if err != nil {
			return d.envelopeErr(err)
		}
		if !ok {
			break
		}
		switch key {
		case format.KeyVersions:
			if haveVers {
				return malformed("duplicate %q member", key)
			}
			if versions, err = d.readVersions(); err != nil {
				return err
			}
			haveVers = true
		case format.KeyValue:
			if haveVal {
				return malformed("duplicate %q member", key)
			}
			haveVal = true
			if haveVers {
				d.ctx = &DecodeContext{versions: versions, missing: missing}
				if err := d.value(p, dst, nil); err != nil {
					return err
				}
				continue
			}
			// value precedes versions: hold it until the map is known
			deferred, err = d.r.Defer()
			if errors.Is(err, format.ErrUnsupported) {
				return malformed("%q member precedes %q in a format that cannot defer values", format.KeyValue, format.KeyVersions)
			}
			if err != nil {
				return d.fail(err, nil)
			}
		default:
			return malformed("unexpected envelope member %q", key)
		}
	}
	if err := d.r.EndMap(); err != nil {
		return d.envelopeErr(err)
	}
	if !haveVal {
		return malformed("envelope has no %q member", format.KeyValue)
	}
	if !haveVers {
		return malformed("envelope has no %q member", format.KeyVersions)
	}
	if deferred == nil {
		return nil
	}
	sub := *d
	sub.r = deferred
	sub.ctx = &DecodeContext{versions: versions, missing: missing}
	if err := sub.value(p, dst, nil); err != nil {
		return err
	}
	return d.fail(deferred.Done(), nil)
}

func (d *decoder) singleEnvelope(p *plan, dst reflect.Value, missing MissingPolicy) error {
	root := p.versionedRoot()
	if root == nil {
		return malformed("single-version envelope needs a versioned target, got %s", p.typ)
	}
	if _, err := d.r.BeginMap(); err != nil {
		return d.envelopeErr(err)
	}
	var (
		ver      uint32
		haveVers bool
		haveVal  bool
	)
	for {
		key, ok, err := d.r.NextKey()
		if err != nil {
			return d.envelopeErr(err)
		}
		if !ok {
			break
		}
		switch key {
		case format.KeyVersion:
			if haveVers {
				return malformed("duplicate %q member", key)
			}
			if haveVal {
				return malformed("%q member follows %q", format.KeyVersion, format.KeyValue)
			}
			v, err := d.r.Uint(32)
			if err != nil {
				return d.envelopeErr(err)
			}
			ver, haveVers = uint32(v), true
		case format.KeyValue:
			if haveVal {
				return malformed("duplicate %q member", key)
			}
			if !haveVers {
				return malformed("%q member read before %q", format.KeyValue, format.KeyVersion)
			}
			haveVal = true
			d.ctx = &DecodeContext{versions: VersionMap{root.info.name: ver}, missing: missing}
			if err := d.value(p, dst, nil); err != nil {
				return err
			}
		default:
			return malformed("unexpected envelope member %q", key)
		}
	}
	if err := d.r.EndMap(); err != nil {
		return d.envelopeErr(err)
	}
	if !haveVal {
		return malformed("envelope has no %q member", format.KeyValue)
	}
	return nil
}
