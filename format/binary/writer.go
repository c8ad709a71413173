package binary

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/reoring/govers/format"
)

type writer struct {
	buf []byte
}

func (w *writer) Envelope(kind format.EnvelopeKind) error {
	if len(w.buf) != 0 {
		return fmt.Errorf("binary: envelope after payload")
	}
	switch kind {
	case format.EnvelopeMap:
		w.buf = append(w.buf, magicMap...)
	case format.EnvelopeSingle:
		w.buf = append(w.buf, magicSingle...)
	}
	return nil
}

// Null has no binary representation; nil pointers use Option.
func (w *writer) Null() error { return format.ErrUnsupported }

func (w *writer) Bool(v bool) error {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
	return nil
}

func (w *writer) Int(v int64, bits int) error { return w.Uint(uint64(v), bits) }

func (w *writer) Uint(v uint64, bits int) error {
	switch bits {
	case 8:
		w.buf = append(w.buf, byte(v))
	case 16:
		w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(v))
	case 32:
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
	case 64:
		w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	default:
		return fmt.Errorf("binary: unsupported integer width %d", bits)
	}
	return nil
}

func (w *writer) Float(v float64, bits int) error {
	if bits == 32 {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(float32(v)))
		return nil
	}
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
	return nil
}

func (w *writer) String(v string) error {
	w.buf = binary.AppendUvarint(w.buf, uint64(len(v)))
	w.buf = append(w.buf, v...)
	return nil
}

func (w *writer) Bytes(v []byte) error {
	w.buf = binary.AppendUvarint(w.buf, uint64(len(v)))
	w.buf = append(w.buf, v...)
	return nil
}

func (w *writer) Option(present bool) error { return w.Bool(present) }

func (w *writer) BeginStruct(int) error { return nil }
func (w *writer) Field(string) error    { return nil }
func (w *writer) EndStruct() error      { return nil }

func (w *writer) BeginSeq(n int) error {
	w.buf = binary.AppendUvarint(w.buf, uint64(n))
	return nil
}

func (w *writer) EndSeq() error { return nil }

func (w *writer) BeginMap(n int) error {
	w.buf = binary.AppendUvarint(w.buf, uint64(n))
	return nil
}

func (w *writer) MapKey(key string) error { return w.String(key) }

func (w *writer) EndMap() error { return nil }

func (w *writer) Finish() ([]byte, error) {
	if w.buf == nil {
		return []byte{}, nil
	}
	return w.buf, nil
}
