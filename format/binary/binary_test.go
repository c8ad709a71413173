package binary

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/reoring/govers/format"
)

func newReader(t *testing.T, data []byte) format.Reader {
	t.Helper()
	r, err := Default.NewReader(data, format.ReaderOpt{})
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	return r
}

func TestRoundTrip(t *testing.T) {
	w := Default.NewWriter()
	steps := []error{
		w.BeginStruct(5),
		w.Field("a"), w.Int(-2, 16),
		w.Field("b"), w.Uint(300, 32),
		w.Field("c"), w.Float(1.5, 64),
		w.Field("d"), w.Option(true), w.String("héllo"),
		w.Field("e"), w.BeginMap(1), w.MapKey("k"), w.BeginSeq(2), w.Bool(true), w.Bool(false), w.EndSeq(), w.EndMap(),
		w.EndStruct(),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	data, err := w.Finish()
	if err != nil {
		t.Fatal(err)
	}

	r := newReader(t, data)
	if err := r.BeginStruct([]string{"a", "b", "c", "d", "e"}); err != nil {
		t.Fatal(err)
	}
	var seen []string
	for {
		i, key, ok, err := r.NextField()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		seen = append(seen, key)
		switch i {
		case 0:
			if v, err := r.Int(16); err != nil || v != -2 {
				t.Fatalf("a = %d, %v", v, err)
			}
		case 1:
			if v, err := r.Uint(32); err != nil || v != 300 {
				t.Fatalf("b = %d, %v", v, err)
			}
		case 2:
			if v, err := r.Float(64); err != nil || v != 1.5 {
				t.Fatalf("c = %v, %v", v, err)
			}
		case 3:
			if ok, err := r.Option(); err != nil || !ok {
				t.Fatalf("d option = %v, %v", ok, err)
			}
			if v, err := r.String(); err != nil || v != "héllo" {
				t.Fatalf("d = %q, %v", v, err)
			}
		case 4:
			n, err := r.BeginMap()
			if err != nil || n != 1 {
				t.Fatalf("e map = %d, %v", n, err)
			}
			k, ok, err := r.NextKey()
			if err != nil || !ok || k != "k" {
				t.Fatalf("key = %q %v %v", k, ok, err)
			}
			if n, err := r.BeginSeq(); err != nil || n != 2 {
				t.Fatalf("seq = %d, %v", n, err)
			}
			var got []bool
			for {
				more, err := r.NextElem()
				if err != nil {
					t.Fatal(err)
				}
				if !more {
					break
				}
				b, err := r.Bool()
				if err != nil {
					t.Fatal(err)
				}
				got = append(got, b)
			}
			if len(got) != 2 || !got[0] || got[1] {
				t.Fatalf("bools = %v", got)
			}
			if err := r.EndSeq(); err != nil {
				t.Fatal(err)
			}
			if _, more, _ := r.NextKey(); more {
				t.Fatal("extra map key")
			}
			if err := r.EndMap(); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := r.EndStruct(); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 5 {
		t.Fatalf("fields = %v", seen)
	}
	if err := r.Done(); err != nil {
		t.Fatalf("done: %v", err)
	}
}

func TestFixedWidthLayout(t *testing.T) {
	w := Default.NewWriter()
	w.Int(-1, 8)
	w.Uint(0x0102, 16)
	w.String("ab")
	got, _ := w.Finish()
	want := []byte{0xFF, 0x02, 0x01, 0x02, 'a', 'b'}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}

func TestIntSignExtension(t *testing.T) {
	cases := []struct {
		bits int
		data []byte
		want int64
	}{
		{8, []byte{0x80}, math.MinInt8},
		{16, []byte{0xFF, 0xFF}, -1},
		{32, []byte{0x00, 0x00, 0x00, 0x80}, math.MinInt32},
		{64, []byte{0xFE, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, -2},
	}
	for _, tc := range cases {
		got, err := newReader(t, tc.data).Int(tc.bits)
		if err != nil || got != tc.want {
			t.Errorf("Int(%d) from % x = %d, %v; want %d", tc.bits, tc.data, got, err, tc.want)
		}
	}
}

func TestFloat32(t *testing.T) {
	w := Default.NewWriter()
	w.Float(0.25, 32)
	data, _ := w.Finish()
	if len(data) != 4 {
		t.Fatalf("float32 takes %d bytes", len(data))
	}
	if v, err := newReader(t, data).Float(32); err != nil || v != 0.25 {
		t.Fatalf("got %v, %v", v, err)
	}
}

func TestEnvelopeMagic(t *testing.T) {
	for _, kind := range []format.EnvelopeKind{format.EnvelopeMap, format.EnvelopeSingle} {
		w := Default.NewWriter()
		if err := w.Envelope(kind); err != nil {
			t.Fatal(err)
		}
		w.Uint(7, 8)
		data, _ := w.Finish()
		if !HasEnvelope(data) {
			t.Fatalf("%v: magic missing from % x", kind, data)
		}
		r := newReader(t, data)
		got, err := r.Envelope(format.EnvelopeAuto)
		if err != nil || got != kind {
			t.Fatalf("detected %v, %v; want %v", got, err, kind)
		}
		if v, err := r.Uint(8); err != nil || v != 7 {
			t.Fatalf("payload after magic = %d, %v", v, err)
		}
	}
}

func TestEnvelopeBareAndForced(t *testing.T) {
	data := []byte{0x05}
	if HasEnvelope(data) {
		t.Fatal("bare value reported as envelope")
	}
	r := newReader(t, data)
	if kind, err := r.Envelope(format.EnvelopeAuto); err != nil || kind != format.EnvelopeNone {
		t.Fatalf("auto on bare = %v, %v", kind, err)
	}
	if v, err := r.Uint(8); err != nil || v != 5 {
		t.Fatalf("bare payload = %d, %v", v, err)
	}

	_, err := newReader(t, data).Envelope(format.EnvelopeMap)
	var se *format.SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("forced map without magic: %v", err)
	}

	// a forced bare read leaves magic bytes to the payload
	withMagic := append(append([]byte(nil), magicMap...), 0x01)
	r = newReader(t, withMagic)
	if kind, err := r.Envelope(format.EnvelopeNone); err != nil || kind != format.EnvelopeNone {
		t.Fatalf("forced none = %v, %v", kind, err)
	}
	if v, _ := r.Uint(8); v != 0xC3 {
		t.Fatalf("first payload byte = %#x", v)
	}
}

func TestWriterEnvelopeAfterPayload(t *testing.T) {
	w := Default.NewWriter()
	w.Bool(true)
	if err := w.Envelope(format.EnvelopeMap); err == nil {
		t.Fatal("envelope accepted after payload")
	}
}

func TestBoolRejectsOtherBytes(t *testing.T) {
	var te *format.TypeError
	if _, err := newReader(t, []byte{2}).Bool(); !errors.As(err, &te) {
		t.Fatalf("bool 2: %v", err)
	}
	if _, err := newReader(t, []byte{9}).Option(); !errors.As(err, &te) || te.Want != "option marker" {
		t.Fatalf("option 9: %v", err)
	}
}

func TestTruncated(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		read func(format.Reader) error
	}{
		{"int32", []byte{0x01, 0x02}, func(r format.Reader) error { _, err := r.Int(32); return err }},
		{"float", []byte{0x01}, func(r format.Reader) error { _, err := r.Float(64); return err }},
		{"string", nil, func(r format.Reader) error { _, err := r.String(); return err }},
		{"bool", nil, func(r format.Reader) error { _, err := r.Bool(); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.read(newReader(t, tc.data)); !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Fatalf("got %v, want unexpected EOF", err)
			}
		})
	}
}

func TestCountBound(t *testing.T) {
	// a map claiming a billion entries backed by two bytes
	data := []byte{0x80, 0x94, 0xEB, 0xDC, 0x03, 0x01, 'k'}
	_, err := newReader(t, data).BeginMap()
	var se *format.SyntaxError
	if !errors.As(err, &se) || se.Offset != 0 {
		t.Fatalf("got %v", err)
	}
	if _, err := newReader(t, []byte{0x05, 'a'}).Bytes(); !errors.As(err, &se) {
		t.Fatalf("short bytes: %v", err)
	}

	// a five-byte prefix must not start 2^31 iterations over empty elements
	if _, err := newReader(t, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x07}).BeginSeq(); !errors.As(err, &se) || se.Offset != 0 {
		t.Fatalf("huge sequence: %v", err)
	}
	r := newReader(t, []byte{0x03})
	if n, err := r.BeginSeq(); err != nil || n != 3 {
		t.Fatalf("short run of empty elements: %d %v", n, err)
	}
}

func TestVarintOverflow(t *testing.T) {
	data := bytes.Repeat([]byte{0xFF}, 11)
	_, err := newReader(t, data).BeginSeq()
	var se *format.SyntaxError
	if !errors.As(err, &se) || errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("got %v", err)
	}
}

func TestSeqClosedEarly(t *testing.T) {
	r := newReader(t, []byte{0x02, 0x01, 0x00})
	if _, err := r.BeginSeq(); err != nil {
		t.Fatal(err)
	}
	r.NextElem()
	r.Bool()
	if err := r.EndSeq(); err == nil {
		t.Fatal("EndSeq accepted a missing element")
	}
}

func TestDoneTrailing(t *testing.T) {
	r := newReader(t, []byte{0x01, 0x02})
	r.Uint(8)
	var se *format.SyntaxError
	if err := r.Done(); !errors.As(err, &se) || se.Offset != 1 {
		t.Fatalf("done: %v", err)
	}
}

func TestUnsupported(t *testing.T) {
	r := newReader(t, []byte{0x01})
	if err := r.Skip(); !errors.Is(err, format.ErrUnsupported) {
		t.Errorf("skip: %v", err)
	}
	if _, err := r.Defer(); !errors.Is(err, format.ErrUnsupported) {
		t.Errorf("defer: %v", err)
	}
	if _, err := r.Any(); !errors.Is(err, format.ErrUnsupported) {
		t.Errorf("any: %v", err)
	}
	if err := Default.NewWriter().Null(); !errors.Is(err, format.ErrUnsupported) {
		t.Errorf("null: %v", err)
	}
	if _, err := r.Int(12); !errors.Is(err, format.ErrUnsupported) {
		t.Errorf("int12: %v", err)
	}
}

func TestLimits(t *testing.T) {
	var le *format.LimitError
	if _, err := Default.NewReader(make([]byte, 10), format.ReaderOpt{MaxBytes: 9}); !errors.As(err, &le) || le.Limit != "bytes" {
		t.Fatalf("bytes: %v", err)
	}
	r, _ := Default.NewReader([]byte{0x01, 0x01, 0x00}, format.ReaderOpt{MaxDepth: 1})
	if _, err := r.BeginSeq(); err != nil {
		t.Fatal(err)
	}
	r.NextElem()
	if _, err := r.BeginSeq(); !errors.As(err, &le) || le.Limit != "depth" {
		t.Fatalf("depth: %v", err)
	}
}

func TestEmptyFinish(t *testing.T) {
	b, err := Default.NewWriter().Finish()
	if err != nil || b == nil || len(b) != 0 {
		t.Fatalf("got %v, %v", b, err)
	}
}
