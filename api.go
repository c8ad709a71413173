package govers

import (
	"io"
	"reflect"
	"sort"

	"github.com/reoring/govers/format"
)

// Encode writes v in its newest shape. In the default ModeVersioned the
// output is an envelope whose version map covers every versioned node
// reachable from v.
func Encode(v any, opts ...EncodeOpt) ([]byte, error) {
	return encodeValue(v, encodeOpt(opts))
}

// EncodeTo encodes v and writes the bytes to w.
func EncodeTo(w io.Writer, v any, opts ...EncodeOpt) error {
	b, err := Encode(v, opts...)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return singleIssue(CodeParseError, "write: "+err.Error())
	}
	return nil
}

// Decode reads data into a new T, detecting the envelope unless the options
// force one. Versioned nodes are decoded in the version recorded for them and
// migrated to the current shape.
func Decode[T any](data []byte, opts ...DecodeOpt) (T, error) {
	var out T
	if err := decodeInto(data, reflect.ValueOf(&out).Elem(), decodeOpt(opts)); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// DecodeInto decodes data into the value dst points to, overwriting it.
func DecodeInto(data []byte, dst any, opts ...DecodeOpt) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return singleIssue(CodeUnsupported, "DecodeInto needs a non-nil pointer")
	}
	return decodeInto(data, rv.Elem(), decodeOpt(opts))
}

// DecodeFrom reads all of r and decodes it. When MaxBytes is set the size cap
// is enforced while reading.
func DecodeFrom[T any](r io.Reader, opts ...DecodeOpt) (T, error) {
	var zero T
	opt := decodeOpt(opts)
	if opt.MaxBytes > 0 {
		r = io.LimitReader(r, opt.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return zero, singleIssue(CodeParseError, err.Error())
	}
	if opt.MaxBytes > 0 && int64(len(data)) > opt.MaxBytes {
		return zero, singleIssue(CodeTruncated, "max bytes exceeded")
	}
	return Decode[T](data, opt)
}

func decodeInto(data []byte, dst reflect.Value, opt DecodeOpt) error {
	p, err := opt.Registry.planOf(dst.Type())
	if err != nil {
		return err
	}
	r, err := opt.Format.NewReader(data, opt.readerOpt())
	if err != nil {
		return AppendIssues(nil, formatIssue(err, nil))
	}
	d := &decoder{
		reg:            opt.Registry,
		r:              r,
		unknown:        opt.Unknown,
		selfDescribing: opt.Format.SelfDescribing(),
	}
	tmp := reflect.New(dst.Type()).Elem()
	if err := d.run(p, tmp, opt.Envelope, opt.Missing); err != nil {
		return err
	}
	dst.Set(tmp)
	return nil
}

// Header is the framing of encoded bytes.
type Header struct {
	Kind format.EnvelopeKind
	// Versions is the version map of a map envelope.
	Versions VersionMap
	// Version is the version of a single-version envelope.
	Version uint32
}

// ReadHeader reports the envelope of data without decoding the payload.
func ReadHeader(data []byte, opts ...DecodeOpt) (Header, error) {
	opt := decodeOpt(opts)
	r, err := opt.Format.NewReader(data, opt.readerOpt())
	if err != nil {
		return Header{}, AppendIssues(nil, formatIssue(err, nil))
	}
	d := &decoder{reg: opt.Registry, r: r}
	kind, err := r.Envelope(opt.Envelope)
	if err != nil {
		return Header{}, d.envelopeErr(err)
	}
	h := Header{Kind: kind}
	if kind == format.EnvelopeNone {
		return h, nil
	}
	if _, err := r.BeginMap(); err != nil {
		return h, d.envelopeErr(err)
	}
	for {
		key, ok, err := r.NextKey()
		if err != nil {
			return h, d.envelopeErr(err)
		}
		if !ok {
			break
		}
		switch {
		case kind == format.EnvelopeMap && key == format.KeyVersions:
			if h.Versions, err = d.readVersions(); err != nil {
				return h, err
			}
			return h, nil
		case kind == format.EnvelopeSingle && key == format.KeyVersion:
			v, err := r.Uint(32)
			if err != nil {
				return h, d.envelopeErr(err)
			}
			h.Version = uint32(v)
			return h, nil
		case key == format.KeyValue:
			if err := r.Skip(); err != nil {
				return h, d.envelopeErr(err)
			}
		default:
			return h, malformed("unexpected envelope member %q", key)
		}
	}
	return h, malformed("envelope has no version information")
}

// Transcode re-encodes data from one self-describing format to another,
// envelope included. Map envelopes are written with versions first.
func Transcode(data []byte, from, to format.Format, opts ...DecodeOpt) ([]byte, error) {
	if !from.SelfDescribing() || !to.SelfDescribing() {
		return nil, singleIssue(CodeUnsupported, "transcoding needs self-describing formats")
	}
	opt := decodeOpt(opts)
	r, err := from.NewReader(data, opt.readerOpt())
	if err != nil {
		return nil, AppendIssues(nil, formatIssue(err, nil))
	}
	kind, err := r.Envelope(opt.Envelope)
	if err != nil {
		return nil, AppendIssues(nil, formatIssue(err, nil))
	}
	v, err := r.Any()
	if err != nil {
		return nil, AppendIssues(nil, formatIssue(err, nil))
	}
	if err := r.Done(); err != nil {
		return nil, AppendIssues(nil, formatIssue(err, nil))
	}
	w := to.NewWriter()
	if kind == format.EnvelopeMap || kind == format.EnvelopeSingle {
		if err := writeEnvelopeAny(w, kind, v); err != nil {
			return nil, err
		}
	} else if err := writeAny(w, v); err != nil {
		return nil, AppendIssues(nil, formatIssue(err, nil))
	}
	out, err := w.Finish()
	if err != nil {
		return nil, AppendIssues(nil, formatIssue(err, nil))
	}
	return out, nil
}

func writeEnvelopeAny(w format.Writer, kind format.EnvelopeKind, v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return malformed("envelope is not an object")
	}
	first := format.KeyVersions
	if kind == format.EnvelopeSingle {
		first = format.KeyVersion
	}
	for k := range m {
		if k != first && k != format.KeyValue {
			return malformed("unexpected envelope member %q", k)
		}
	}
	if _, ok := m[format.KeyValue]; !ok {
		return malformed("envelope has no %q member", format.KeyValue)
	}
	err := w.Envelope(kind)
	if err == nil {
		err = w.BeginMap(len(m))
	}
	for _, k := range []string{first, format.KeyValue} {
		mv, ok := m[k]
		if !ok || err != nil {
			continue
		}
		if err = w.MapKey(k); err == nil {
			err = writeAny(w, mv)
		}
	}
	if err == nil {
		err = w.EndMap()
	}
	if err != nil {
		return AppendIssues(nil, formatIssue(err, nil))
	}
	return nil
}

// writeAny writes generic values as produced by format.Reader.Any.
func writeAny(w format.Writer, v any) error {
	switch x := v.(type) {
	case nil:
		return w.Null()
	case bool:
		return w.Bool(x)
	case int64:
		return w.Int(x, 64)
	case uint64:
		return w.Uint(x, 64)
	case float64:
		return w.Float(x, 64)
	case string:
		return w.String(x)
	case []byte:
		return w.Bytes(x)
	case []any:
		if err := w.BeginSeq(len(x)); err != nil {
			return err
		}
		for _, e := range x {
			if err := writeAny(w, e); err != nil {
				return err
			}
		}
		return w.EndSeq()
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if err := w.BeginMap(len(keys)); err != nil {
			return err
		}
		for _, k := range keys {
			if err := w.MapKey(k); err != nil {
				return err
			}
			if err := writeAny(w, x[k]); err != nil {
				return err
			}
		}
		return w.EndMap()
	}
	return format.Syntax("cannot transcode %T", v)
}
