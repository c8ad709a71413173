// Package cbor implements the self-describing CBOR format using
// github.com/fxamacker/cbor/v2.
//
// Scalars are encoded with Core Deterministic Encoding (RFC 8949 §4.2).
// Maps are written and read member by member so that struct field order is
// kept and duplicate keys can be reported where they occur.
package cbor

import (
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"sort"
	"time"

	fxcbor "github.com/fxamacker/cbor/v2"

	"github.com/reoring/govers/format"
	"github.com/reoring/govers/internal/tree"
)

const (
	majorArray = 4
	majorMap   = 5
	breakByte  = 0xff

	// defaultMaxDepth bounds container nesting when the caller sets no limit.
	defaultMaxDepth = 10000
)

var (
	encMode fxcbor.EncMode
	decMode fxcbor.DecMode
)

func init() {
	var err error
	encMode, err = fxcbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cbor: encoder initialization failed: " + err.Error())
	}
	decMode, err = fxcbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		DupMapKey:      fxcbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("cbor: decoder initialization failed: " + err.Error())
	}
}

// Format is the CBOR wire format.
type Format struct{}

// Default is the CBOR format.
var Default = Format{}

func (Format) Name() string { return "cbor" }

func (Format) SelfDescribing() bool { return true }

func (Format) NewWriter() format.Writer { return &writer{} }

func (Format) NewReader(data []byte, opt format.ReaderOpt) (format.Reader, error) {
	if opt.MaxBytes > 0 && int64(len(data)) > opt.MaxBytes {
		return nil, &format.LimitError{Limit: "bytes"}
	}
	maxDepth := opt.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	var v any
	if len(data) > 0 {
		var rest []byte
		var err error
		v, rest, err = decodeItem(data, 0, maxDepth)
		if err != nil {
			return nil, err
		}
		if len(rest) != 0 {
			return nil, &format.SyntaxError{Msg: "trailing data after value", Offset: int64(len(data) - len(rest))}
		}
	}
	return tree.NewReader(v, opt), nil
}

type writer struct {
	tree.Writer
}

func (w *writer) Finish() ([]byte, error) {
	v, err := w.Value()
	if err != nil {
		return nil, err
	}
	return appendItem(nil, v)
}

func appendHead(b []byte, major byte, n uint64) []byte {
	m := major << 5
	switch {
	case n < 24:
		return append(b, m|byte(n))
	case n <= 0xff:
		return append(b, m|24, byte(n))
	case n <= 0xffff:
		return binary.BigEndian.AppendUint16(append(b, m|25), uint16(n))
	case n <= 0xffffffff:
		return binary.BigEndian.AppendUint32(append(b, m|26), uint32(n))
	}
	return binary.BigEndian.AppendUint64(append(b, m|27), n)
}

func appendItem(b []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case tree.Object:
		b = appendHead(b, majorMap, uint64(len(x)))
		for _, m := range x {
			kb, err := encMode.Marshal(m.Key)
			if err != nil {
				return nil, err
			}
			b = append(b, kb...)
			if b, err = appendItem(b, m.Value); err != nil {
				return nil, err
			}
		}
		return b, nil
	case []any:
		b = appendHead(b, majorArray, uint64(len(x)))
		for _, e := range x {
			var err error
			if b, err = appendItem(b, e); err != nil {
				return nil, err
			}
		}
		return b, nil
	}
	sb, err := encMode.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, sb...), nil
}

func truncated() error {
	return &format.SyntaxError{Msg: "unexpected end of input", Offset: -1, Cause: io.ErrUnexpectedEOF}
}

// head parses a container header. n is -1 for indefinite length.
func head(data []byte) (n int64, size int, err error) {
	ai := data[0] & 0x1f
	var u uint64
	switch {
	case ai < 24:
		return int64(ai), 1, nil
	case ai == 31:
		return -1, 1, nil
	case ai == 24 && len(data) >= 2:
		u, size = uint64(data[1]), 2
	case ai == 25 && len(data) >= 3:
		u, size = uint64(binary.BigEndian.Uint16(data[1:])), 3
	case ai == 26 && len(data) >= 5:
		u, size = uint64(binary.BigEndian.Uint32(data[1:])), 5
	case ai == 27 && len(data) >= 9:
		u, size = binary.BigEndian.Uint64(data[1:]), 9
	case ai > 27:
		return 0, 0, format.Syntax("cbor: invalid additional information %d", ai)
	default:
		return 0, 0, truncated()
	}
	if u > uint64(len(data)) {
		return 0, 0, format.Syntax("cbor: container length %d exceeds input", u)
	}
	return int64(u), size, nil
}

func decodeItem(data []byte, depth, maxDepth int) (any, []byte, error) {
	if len(data) == 0 {
		return nil, nil, truncated()
	}
	major := data[0] >> 5
	if major != majorArray && major != majorMap {
		var v any
		rest, err := decMode.UnmarshalFirst(data, &v)
		if err != nil {
			return nil, nil, syntaxError(err)
		}
		nv, err := normalize(v)
		return nv, rest, err
	}
	if depth >= maxDepth {
		return nil, nil, &format.LimitError{Limit: "depth"}
	}
	n, size, err := head(data)
	if err != nil {
		return nil, nil, err
	}
	rest := data[size:]
	more := func(i int64) (bool, error) {
		if n >= 0 {
			return i < n, nil
		}
		if len(rest) == 0 {
			return false, truncated()
		}
		if rest[0] == breakByte {
			rest = rest[1:]
			return false, nil
		}
		return true, nil
	}
	if major == majorArray {
		arr := []any{}
		for i := int64(0); ; i++ {
			ok, err := more(i)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				return arr, rest, nil
			}
			var e any
			if e, rest, err = decodeItem(rest, depth+1, maxDepth); err != nil {
				return nil, nil, err
			}
			arr = append(arr, e)
		}
	}
	obj := tree.Object{}
	for i := int64(0); ; i++ {
		ok, err := more(i)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return obj, rest, nil
		}
		var k, v any
		if k, rest, err = decodeItem(rest, depth+1, maxDepth); err != nil {
			return nil, nil, err
		}
		key, isString := k.(string)
		if !isString {
			return nil, nil, &format.TypeError{Want: "string key", Got: tree.KindOf(k), Offset: -1}
		}
		if v, rest, err = decodeItem(rest, depth+1, maxDepth); err != nil {
			return nil, nil, err
		}
		obj = append(obj, tree.Member{Key: key, Value: v})
	}
}

// normalize maps values produced by the generic decoder (tag contents and
// the like) onto tree values.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, int64, uint64, float64, string, []byte:
		return x, nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case fxcbor.Tag:
		return normalize(x.Content)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := make(tree.Object, 0, len(x))
		for _, k := range keys {
			nv, err := normalize(x[k])
			if err != nil {
				return nil, err
			}
			obj = append(obj, tree.Member{Key: k, Value: nv})
		}
		return obj, nil
	case []any:
		arr := make([]any, len(x))
		for i, e := range x {
			nv, err := normalize(e)
			if err != nil {
				return nil, err
			}
			arr[i] = nv
		}
		return arr, nil
	}
	return nil, &format.TypeError{Want: "cbor data item", Got: reflect.TypeOf(v).String(), Offset: -1}
}

func syntaxError(err error) error {
	var dup *fxcbor.DupMapKeyError
	if errors.As(err, &dup) {
		if k, isString := dup.Key.(string); isString {
			return &format.DuplicateKeyError{Key: k}
		}
	}
	return &format.SyntaxError{Msg: err.Error(), Offset: -1, Cause: err}
}
