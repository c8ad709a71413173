package json

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"

	gojson "github.com/goccy/go-json"

	"github.com/reoring/govers/format"
)

type wframe struct {
	object bool
	count  int
}

type writer struct {
	buf    bytes.Buffer
	stack  []wframe
	indent string
}

// value emits the separator owed before an array element.
func (w *writer) value() {
	n := len(w.stack)
	if n == 0 || w.stack[n-1].object {
		return
	}
	if w.stack[n-1].count > 0 {
		w.buf.WriteByte(',')
	}
	w.stack[n-1].count++
}

func (w *writer) key(k string) error {
	n := len(w.stack)
	if n == 0 || !w.stack[n-1].object {
		return fmt.Errorf("json: key %q outside object", k)
	}
	if w.stack[n-1].count > 0 {
		w.buf.WriteByte(',')
	}
	w.stack[n-1].count++
	if err := w.quote(k); err != nil {
		return err
	}
	w.buf.WriteByte(':')
	return nil
}

func (w *writer) quote(s string) error {
	b, err := gojson.MarshalNoEscape(s)
	if err != nil {
		return err
	}
	w.buf.Write(b)
	return nil
}

func (w *writer) open(c byte, object bool) {
	w.value()
	w.buf.WriteByte(c)
	w.stack = append(w.stack, wframe{object: object})
}

func (w *writer) close(c byte) error {
	n := len(w.stack)
	if n == 0 {
		return fmt.Errorf("json: unbalanced %q", c)
	}
	w.stack = w.stack[:n-1]
	w.buf.WriteByte(c)
	return nil
}

// Envelope is a no-op: JSON envelopes are ordinary objects.
func (w *writer) Envelope(format.EnvelopeKind) error { return nil }

func (w *writer) Null() error {
	w.value()
	w.buf.WriteString("null")
	return nil
}

func (w *writer) Bool(v bool) error {
	w.value()
	w.buf.WriteString(strconv.FormatBool(v))
	return nil
}

func (w *writer) Int(v int64, _ int) error {
	w.value()
	w.buf.WriteString(strconv.FormatInt(v, 10))
	return nil
}

func (w *writer) Uint(v uint64, _ int) error {
	w.value()
	w.buf.WriteString(strconv.FormatUint(v, 10))
	return nil
}

func (w *writer) Float(v float64, bits int) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("json: unsupported float value %v", v)
	}
	var b []byte
	var err error
	if bits == 32 {
		b, err = gojson.Marshal(float32(v))
	} else {
		b, err = gojson.Marshal(v)
	}
	if err != nil {
		return err
	}
	w.value()
	w.buf.Write(b)
	return nil
}

func (w *writer) String(v string) error {
	w.value()
	return w.quote(v)
}

func (w *writer) Bytes(v []byte) error {
	w.value()
	w.buf.WriteByte('"')
	w.buf.WriteString(base64.StdEncoding.EncodeToString(v))
	w.buf.WriteByte('"')
	return nil
}

func (w *writer) Option(present bool) error {
	if present {
		return nil
	}
	return w.Null()
}

func (w *writer) BeginStruct(int) error   { w.open('{', true); return nil }
func (w *writer) Field(key string) error  { return w.key(key) }
func (w *writer) EndStruct() error        { return w.close('}') }
func (w *writer) BeginSeq(int) error      { w.open('[', false); return nil }
func (w *writer) EndSeq() error           { return w.close(']') }
func (w *writer) BeginMap(int) error      { w.open('{', true); return nil }
func (w *writer) MapKey(key string) error { return w.key(key) }
func (w *writer) EndMap() error           { return w.close('}') }

func (w *writer) Finish() ([]byte, error) {
	if len(w.stack) != 0 {
		return nil, fmt.Errorf("json: %d unclosed containers", len(w.stack))
	}
	if w.indent == "" {
		return w.buf.Bytes(), nil
	}
	var out bytes.Buffer
	if err := gojson.Indent(&out, w.buf.Bytes(), "", w.indent); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
