package cbor

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/reoring/govers/format"
)

func plain(t *testing.T, data []byte) any {
	t.Helper()
	r, err := Default.NewReader(data, format.ReaderOpt{})
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	v, err := r.Any()
	if err != nil {
		t.Fatalf("any: %v", err)
	}
	return v
}

func TestWriterKeepsMemberOrder(t *testing.T) {
	w := Default.NewWriter()
	w.BeginStruct(2)
	w.Field("b")
	w.Uint(1, 8)
	w.Field("a")
	w.Int(-1, 64)
	w.EndStruct()
	got, err := w.Finish()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0xA2, 0x61, 'b', 0x01, 0x61, 'a', 0x20}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	w := Default.NewWriter()
	for i, err := range []error{
		w.BeginMap(4),
		w.MapKey("s"), w.String("héllo"),
		w.MapKey("f"), w.Float(1.5, 64),
		w.MapKey("b"), w.Bytes([]byte{9, 8}),
		w.MapKey("xs"), w.BeginSeq(3), w.Bool(false), w.Null(), w.Int(-300, 32), w.EndSeq(),
		w.EndMap(),
	} {
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	data, err := w.Finish()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"s":  "héllo",
		"f":  1.5,
		"b":  []byte{9, 8},
		"xs": []any{false, nil, int64(-300)},
	}
	if got := plain(t, data); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v", got)
	}
}

func TestIndefiniteLength(t *testing.T) {
	// {_ "a": [_ 1, 2]}
	data := []byte{0xBF, 0x61, 'a', 0x9F, 0x01, 0x02, 0xFF, 0xFF}
	want := map[string]any{"a": []any{uint64(1), uint64(2)}}
	if got := plain(t, data); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v", got)
	}
	_, err := Default.NewReader([]byte{0x9F, 0x01}, format.ReaderOpt{})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("unterminated: %v", err)
	}
}

func TestDuplicateMapKey(t *testing.T) {
	data := []byte{0xA2, 0x61, 'a', 0x01, 0x61, 'a', 0x02}
	r, err := Default.NewReader(data, format.ReaderOpt{})
	if err != nil {
		t.Fatal(err)
	}
	var de *format.DuplicateKeyError
	if _, err := r.BeginMap(); !errors.As(err, &de) || de.Key != "a" {
		t.Fatalf("got %v", err)
	}
}

func TestTagContent(t *testing.T) {
	// tag 100 wrapping "abc"
	data := []byte{0xD8, 0x64, 0x63, 'a', 'b', 'c'}
	if got := plain(t, data); got != "abc" {
		t.Fatalf("got %#v", got)
	}
}

func TestReaderErrors(t *testing.T) {
	var se *format.SyntaxError
	if _, err := Default.NewReader([]byte{0x01, 0x01}, format.ReaderOpt{}); !errors.As(err, &se) || se.Offset != 1 {
		t.Errorf("trailing: %v", err)
	}
	if _, err := Default.NewReader([]byte{0x9A, 0xFF, 0xFF, 0xFF, 0xFF}, format.ReaderOpt{}); !errors.As(err, &se) {
		t.Errorf("oversized length: %v", err)
	}
	if _, err := Default.NewReader([]byte{0x82, 0x01}, format.ReaderOpt{}); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("short array: %v", err)
	}
	if _, err := Default.NewReader([]byte{0x9C}, format.ReaderOpt{}); !errors.As(err, &se) {
		t.Errorf("reserved additional info: %v", err)
	}
	var te *format.TypeError
	if _, err := Default.NewReader([]byte{0xA1, 0x01, 0x01}, format.ReaderOpt{}); !errors.As(err, &te) {
		t.Errorf("integer key: %v", err)
	}
}

func TestLimits(t *testing.T) {
	var le *format.LimitError
	if _, err := Default.NewReader([]byte{0x81, 0x81, 0x80}, format.ReaderOpt{MaxDepth: 2}); !errors.As(err, &le) || le.Limit != "depth" {
		t.Fatalf("depth: %v", err)
	}
	if _, err := Default.NewReader([]byte{0x81, 0x80}, format.ReaderOpt{MaxDepth: 2}); err != nil {
		t.Fatalf("depth 2: %v", err)
	}
	if _, err := Default.NewReader([]byte{0x01, 0x02}, format.ReaderOpt{MaxBytes: 1}); !errors.As(err, &le) || le.Limit != "bytes" {
		t.Fatalf("bytes: %v", err)
	}
}

func TestEnvelopeDetection(t *testing.T) {
	w := Default.NewWriter()
	w.BeginMap(2)
	w.MapKey(format.KeyVersion)
	w.Uint(2, 32)
	w.MapKey(format.KeyValue)
	w.String("x")
	w.EndMap()
	data, _ := w.Finish()
	r, err := Default.NewReader(data, format.ReaderOpt{})
	if err != nil {
		t.Fatal(err)
	}
	if kind, _ := r.Envelope(format.EnvelopeAuto); kind != format.EnvelopeSingle {
		t.Fatalf("kind = %v", kind)
	}
}
