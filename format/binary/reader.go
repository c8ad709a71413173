package binary

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/reoring/govers/format"
)

type container struct {
	keys      []string
	next      int
	remaining int
}

type reader struct {
	data     []byte
	pos      int
	maxDepth int
	stack    []container
}

func (r *reader) truncated() error {
	return &format.SyntaxError{Msg: "unexpected end of input", Offset: int64(r.pos), Cause: io.ErrUnexpectedEOF}
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || len(r.data)-r.pos < n {
		return nil, r.truncated()
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.pos:])
	if n == 0 {
		return 0, r.truncated()
	}
	if n < 0 {
		return 0, &format.SyntaxError{Msg: "varint overflows 64 bits", Offset: int64(r.pos)}
	}
	r.pos += n
	return v, nil
}

// maxFreeElems is the longest sequence accepted without one input byte per
// element.
const maxFreeElems = 1 << 12

// count reads a length prefix and checks it against the remaining input
// when every element occupies at least minSize bytes.
func (r *reader) count(minSize int) (int, error) {
	start := r.pos
	v, err := r.uvarint()
	if err != nil {
		return 0, err
	}
	if v > uint64(math.MaxInt32) || (minSize > 0 && v*uint64(minSize) > uint64(len(r.data)-r.pos)) {
		return 0, &format.SyntaxError{Msg: "length prefix exceeds input", Offset: int64(start)}
	}
	return int(v), nil
}

func (r *reader) push(c container) error {
	r.stack = append(r.stack, c)
	if r.maxDepth > 0 && len(r.stack) > r.maxDepth {
		return &format.LimitError{Limit: "depth"}
	}
	return nil
}

func (r *reader) pop() container {
	n := len(r.stack)
	if n == 0 {
		return container{}
	}
	c := r.stack[n-1]
	r.stack = r.stack[:n-1]
	return c
}

func (r *reader) Envelope(hint format.EnvelopeKind) (format.EnvelopeKind, error) {
	if r.pos != 0 {
		return format.EnvelopeNone, nil
	}
	found := format.EnvelopeNone
	switch {
	case bytes.HasPrefix(r.data, magicMap):
		found = format.EnvelopeMap
	case bytes.HasPrefix(r.data, magicSingle):
		found = format.EnvelopeSingle
	}
	switch hint {
	case format.EnvelopeAuto:
	case format.EnvelopeNone:
		return format.EnvelopeNone, nil
	default:
		if found != hint {
			return hint, &format.SyntaxError{Msg: "missing " + hint.String() + " envelope magic", Offset: 0}
		}
	}
	if found != format.EnvelopeNone {
		r.pos = len(magicMap)
	}
	return found, nil
}

func (r *reader) Bool() (bool, error) {
	b, err := r.take(1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, &format.TypeError{Want: "bool", Got: "byte value", Offset: int64(r.pos - 1)}
}

func (r *reader) fixed(bits int) (uint64, error) {
	switch bits {
	case 8:
		b, err := r.take(1)
		if err != nil {
			return 0, err
		}
		return uint64(b[0]), nil
	case 16:
		b, err := r.take(2)
		if err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 32:
		b, err := r.take(4)
		if err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 64:
		b, err := r.take(8)
		if err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint64(b), nil
	}
	return 0, format.ErrUnsupported
}

func (r *reader) Int(bits int) (int64, error) {
	u, err := r.fixed(bits)
	if err != nil {
		return 0, err
	}
	switch bits {
	case 8:
		return int64(int8(u)), nil
	case 16:
		return int64(int16(u)), nil
	case 32:
		return int64(int32(u)), nil
	}
	return int64(u), nil
}

func (r *reader) Uint(bits int) (uint64, error) { return r.fixed(bits) }

func (r *reader) Float(bits int) (float64, error) {
	if bits == 32 {
		u, err := r.fixed(32)
		return float64(math.Float32frombits(uint32(u))), err
	}
	u, err := r.fixed(64)
	return math.Float64frombits(u), err
}

func (r *reader) String() (string, error) {
	b, err := r.Bytes()
	return string(b), err
}

func (r *reader) Bytes() ([]byte, error) {
	n, err := r.count(1)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(b), nil
}

func (r *reader) Option() (bool, error) {
	present, err := r.Bool()
	if _, ok := err.(*format.TypeError); ok {
		return false, &format.TypeError{Want: "option marker", Got: "byte value", Offset: int64(r.pos - 1)}
	}
	return present, err
}

func (r *reader) BeginStruct(keys []string) error { return r.push(container{keys: keys}) }

func (r *reader) NextField() (int, string, bool, error) {
	n := len(r.stack)
	if n == 0 {
		return 0, "", false, nil
	}
	top := &r.stack[n-1]
	if top.next >= len(top.keys) {
		return 0, "", false, nil
	}
	i := top.next
	top.next++
	return i, top.keys[i], true, nil
}

func (r *reader) EndStruct() error {
	r.pop()
	return nil
}

func (r *reader) BeginSeq() (int, error) {
	start := r.pos
	n, err := r.count(0)
	if err != nil {
		return 0, err
	}
	// elements of zero-size types take no input, so only a short run of
	// them may outnumber the remaining bytes
	if n > maxFreeElems && n > len(r.data)-r.pos {
		return 0, &format.SyntaxError{Msg: "sequence length exceeds input", Offset: int64(start)}
	}
	return n, r.push(container{remaining: n})
}

func (r *reader) NextElem() (bool, error) {
	n := len(r.stack)
	if n == 0 || r.stack[n-1].remaining == 0 {
		return false, nil
	}
	r.stack[n-1].remaining--
	return true, nil
}

func (r *reader) EndSeq() error { return r.end() }

func (r *reader) end() error {
	if c := r.pop(); c.remaining != 0 {
		return &format.SyntaxError{Msg: "container closed before its last element", Offset: int64(r.pos)}
	}
	return nil
}

func (r *reader) BeginMap() (int, error) {
	// every entry carries at least a one-byte key length
	n, err := r.count(1)
	if err != nil {
		return 0, err
	}
	return n, r.push(container{remaining: n})
}

func (r *reader) NextKey() (string, bool, error) {
	n := len(r.stack)
	if n == 0 || r.stack[n-1].remaining == 0 {
		return "", false, nil
	}
	r.stack[n-1].remaining--
	k, err := r.String()
	if err != nil {
		return "", false, err
	}
	return k, true, nil
}

func (r *reader) EndMap() error { return r.end() }

func (r *reader) Skip() error                   { return format.ErrUnsupported }
func (r *reader) Defer() (format.Reader, error) { return nil, format.ErrUnsupported }
func (r *reader) Any() (any, error)             { return nil, format.ErrUnsupported }

func (r *reader) Done() error {
	if r.pos != len(r.data) {
		return &format.SyntaxError{Msg: "trailing data after value", Offset: int64(r.pos)}
	}
	return nil
}
