package tree

import (
	"encoding/base64"
	"math"

	"github.com/reoring/govers/format"
)

type rframe struct {
	object bool
	obj    Object
	arr    []any
	keys   []string
	i      int
	val    any
	ready  bool
}

// Reader walks a tree in the order the decoder asks for it.
type Reader struct {
	root     any
	pending  bool
	stack    []*rframe
	maxDepth int
}

// NewReader returns a Reader positioned on v.
func NewReader(v any, opt format.ReaderOpt) *Reader {
	return &Reader{root: v, pending: true, maxDepth: opt.MaxDepth}
}

func (r *Reader) peek() (any, error) {
	n := len(r.stack)
	if n == 0 {
		if !r.pending {
			return nil, format.Syntax("read past end of input")
		}
		return r.root, nil
	}
	f := r.stack[n-1]
	if f.object {
		if !f.ready {
			return nil, format.Syntax("value read before its key")
		}
		return f.val, nil
	}
	if f.i >= len(f.arr) {
		return nil, format.Syntax("read past end of array")
	}
	return f.arr[f.i], nil
}

func (r *Reader) advance() {
	n := len(r.stack)
	switch {
	case n == 0:
		r.pending = false
	case r.stack[n-1].object:
		r.stack[n-1].ready = false
		r.stack[n-1].val = nil
	default:
		r.stack[n-1].i++
	}
}

func (r *Reader) take() (any, error) {
	v, err := r.peek()
	if err != nil {
		return nil, err
	}
	r.advance()
	return v, nil
}

func mismatch(want string, v any) error {
	return &format.TypeError{Want: want, Got: KindOf(v), Offset: -1}
}

func (r *Reader) push(f *rframe) error {
	r.stack = append(r.stack, f)
	if r.maxDepth > 0 && len(r.stack) > r.maxDepth {
		return &format.LimitError{Limit: "depth"}
	}
	return nil
}

func (r *Reader) pop() {
	if n := len(r.stack); n > 0 {
		r.stack = r.stack[:n-1]
	}
}

func (r *Reader) Envelope(hint format.EnvelopeKind) (format.EnvelopeKind, error) {
	if hint != format.EnvelopeAuto {
		return hint, nil
	}
	if len(r.stack) != 0 || !r.pending {
		return format.EnvelopeNone, nil
	}
	obj, ok := r.root.(Object)
	if !ok {
		return format.EnvelopeNone, nil
	}
	members := make([]format.TopMember, len(obj))
	for i, m := range obj {
		_, isObj := m.Value.(Object)
		members[i] = format.TopMember{Key: m.Key, Object: isObj}
	}
	return format.DetectEnvelope(members), nil
}

func (r *Reader) Bool() (bool, error) {
	v, err := r.take()
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, mismatch("bool", v)
	}
	return b, nil
}

func (r *Reader) Int(bits int) (int64, error) {
	v, err := r.take()
	if err != nil {
		return 0, err
	}
	lo, hi := int64(math.MinInt64)>>(64-bits), int64(math.MaxInt64)>>(64-bits)
	switch x := v.(type) {
	case int64:
		if x < lo || x > hi {
			return 0, &format.OverflowError{Value: formatInt(x), Bits: bits}
		}
		return x, nil
	case uint64:
		if x > uint64(hi) {
			return 0, &format.OverflowError{Value: formatUint(x), Bits: bits}
		}
		return int64(x), nil
	}
	return 0, mismatch("integer", v)
}

func (r *Reader) Uint(bits int) (uint64, error) {
	v, err := r.take()
	if err != nil {
		return 0, err
	}
	hi := uint64(math.MaxUint64) >> (64 - bits)
	switch x := v.(type) {
	case uint64:
		if x > hi {
			return 0, &format.OverflowError{Value: formatUint(x), Bits: bits}
		}
		return x, nil
	case int64:
		if x < 0 {
			return 0, &format.TypeError{Want: "unsigned integer", Got: "negative integer", Offset: -1}
		}
		if uint64(x) > hi {
			return 0, &format.OverflowError{Value: formatInt(x), Bits: bits}
		}
		return uint64(x), nil
	}
	return 0, mismatch("unsigned integer", v)
}

func (r *Reader) Float(bits int) (float64, error) {
	v, err := r.take()
	if err != nil {
		return 0, err
	}
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int64:
		f = float64(x)
	case uint64:
		f = float64(x)
	default:
		return 0, mismatch("number", v)
	}
	if bits == 32 && !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
		return 0, &format.OverflowError{Value: formatFloat(f), Bits: bits}
	}
	return f, nil
}

func (r *Reader) String() (string, error) {
	v, err := r.take()
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", mismatch("string", v)
	}
	return s, nil
}

func (r *Reader) Bytes() ([]byte, error) {
	v, err := r.take()
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(x) == 0 {
			return nil, nil
		}
		return x, nil
	case string:
		if x == "" {
			return nil, nil
		}
		b, err := base64.StdEncoding.DecodeString(x)
		if err != nil {
			return nil, &format.SyntaxError{Msg: "invalid base64", Offset: -1, Cause: err}
		}
		return b, nil
	}
	return nil, mismatch("bytes", v)
}

func (r *Reader) Option() (bool, error) {
	v, err := r.peek()
	if err != nil {
		return false, err
	}
	if v == nil {
		r.advance()
		return false, nil
	}
	return true, nil
}

func (r *Reader) object() (Object, error) {
	v, err := r.take()
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, mismatch("object", v)
	}
	if k, dup := obj.duplicate(); dup {
		return nil, &format.DuplicateKeyError{Key: k}
	}
	return obj, nil
}

func (r *Reader) BeginStruct(keys []string) error {
	obj, err := r.object()
	if err != nil {
		return err
	}
	return r.push(&rframe{object: true, obj: obj, keys: keys})
}

func (r *Reader) member() (string, bool) {
	n := len(r.stack)
	if n == 0 || !r.stack[n-1].object {
		return "", false
	}
	f := r.stack[n-1]
	if f.i >= len(f.obj) {
		return "", false
	}
	m := f.obj[f.i]
	f.i++
	f.val, f.ready = m.Value, true
	return m.Key, true
}

func (r *Reader) NextField() (int, string, bool, error) {
	key, ok := r.member()
	if !ok {
		return 0, "", false, nil
	}
	idx := -1
	for i, k := range r.stack[len(r.stack)-1].keys {
		if k == key {
			idx = i
			break
		}
	}
	return idx, key, true, nil
}

func (r *Reader) EndStruct() error {
	r.pop()
	return nil
}

func (r *Reader) BeginSeq() (int, error) {
	v, err := r.take()
	if err != nil {
		return 0, err
	}
	arr, ok := v.([]any)
	if !ok {
		return 0, mismatch("array", v)
	}
	return len(arr), r.push(&rframe{arr: arr})
}

func (r *Reader) NextElem() (bool, error) {
	n := len(r.stack)
	if n == 0 || r.stack[n-1].object {
		return false, nil
	}
	f := r.stack[n-1]
	return f.i < len(f.arr), nil
}

func (r *Reader) EndSeq() error {
	r.pop()
	return nil
}

func (r *Reader) BeginMap() (int, error) {
	obj, err := r.object()
	if err != nil {
		return 0, err
	}
	return len(obj), r.push(&rframe{object: true, obj: obj})
}

func (r *Reader) NextKey() (string, bool, error) {
	key, ok := r.member()
	return key, ok, nil
}

func (r *Reader) EndMap() error {
	r.pop()
	return nil
}

func (r *Reader) Skip() error {
	_, err := r.take()
	return err
}

func (r *Reader) Defer() (format.Reader, error) {
	v, err := r.take()
	if err != nil {
		return nil, err
	}
	return &Reader{root: v, pending: true, maxDepth: r.maxDepth}, nil
}

func (r *Reader) Any() (any, error) {
	v, err := r.take()
	if err != nil {
		return nil, err
	}
	return Plain(v), nil
}

func (r *Reader) Done() error {
	if len(r.stack) != 0 || r.pending {
		return format.Syntax("value not fully consumed")
	}
	return nil
}
