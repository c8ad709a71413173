package snapshot_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reoring/govers"
	"github.com/reoring/govers/format"
	"github.com/reoring/govers/format/cbor"
	"github.com/reoring/govers/format/json"
	"github.com/reoring/govers/format/yaml"
	"github.com/reoring/govers/snapshot"
)

type settingsV1 struct {
	Theme string `json:"theme"`
}

type Settings struct {
	Theme    string `json:"theme"`
	FontSize int    `json:"font_size"`
}

func testRegistry(t *testing.T) *govers.Registry {
	t.Helper()
	reg := govers.NewRegistry()
	err := govers.RegisterIn[Settings](reg, govers.Definition{
		Name: "test.Settings",
		Fields: []govers.FieldSpec{
			govers.Field("theme"),
			govers.Field("font_size").Since(2),
		},
		Steps: []govers.Step{
			govers.Map(func(v settingsV1) Settings { return Settings{Theme: v.Theme, FontSize: 12} }),
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func TestRoundTripFormatsAndCompressions(t *testing.T) {
	reg := testRegistry(t)
	in := Settings{Theme: strings.Repeat("solarized-", 64), FontSize: 14}
	formats := []format.Format{nil, json.Default, yaml.Default, cbor.Default}
	comps := []snapshot.Compression{snapshot.CompressionNone, snapshot.CompressionZstd, snapshot.CompressionLZ4}
	for _, f := range formats {
		for _, c := range comps {
			var buf bytes.Buffer
			if err := snapshot.Write(&buf, in, snapshot.Options{Format: f, Compression: c, Registry: reg}); err != nil {
				t.Fatalf("write %v/%s: %v", f, c, err)
			}
			fr, err := snapshot.ReadFrame(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("read frame %v/%s: %v", f, c, err)
			}
			if c != snapshot.CompressionNone && fr.Compression != c {
				t.Fatalf("compression: got %s want %s", fr.Compression, c)
			}
			if fr.StoredSize >= len(fr.Payload) && fr.Compression != snapshot.CompressionNone {
				t.Fatalf("compressed payload did not shrink: %d >= %d", fr.StoredSize, len(fr.Payload))
			}
			out, err := snapshot.Read[Settings](bytes.NewReader(buf.Bytes()), govers.DecodeOpt{Registry: reg})
			if err != nil {
				t.Fatalf("read %v/%s: %v", f, c, err)
			}
			if out != in {
				t.Fatalf("round trip %v/%s: got %+v", f, c, out)
			}
		}
	}
}

func TestIncompressiblePayloadStoredRaw(t *testing.T) {
	reg := testRegistry(t)
	b, err := snapshot.Marshal(Settings{Theme: "x"}, snapshot.Options{Compression: snapshot.CompressionLZ4, Registry: reg})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	fr, err := snapshot.ReadFrame(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if fr.Compression != snapshot.CompressionNone {
		t.Fatalf("tiny payload should be stored raw, got %s", fr.Compression)
	}
}

func TestChecksumMismatch(t *testing.T) {
	reg := testRegistry(t)
	b, err := snapshot.Marshal(Settings{Theme: "dark", FontSize: 10}, snapshot.Options{Format: json.Default, Registry: reg})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// flip a byte inside the payload
	b[len(b)-3] ^= 0x20
	_, err = snapshot.Read[Settings](bytes.NewReader(b), govers.DecodeOpt{Registry: reg})
	if !govers.HasCode(err, govers.CodeChecksumMismatch) {
		t.Fatalf("expected checksum_mismatch, got %v", err)
	}
}

func TestFrameErrors(t *testing.T) {
	reg := testRegistry(t)
	good, err := snapshot.Marshal(Settings{Theme: "dark"}, snapshot.Options{Registry: reg})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	cases := []struct {
		name string
		data []byte
		code string
	}{
		{"bad magic", append([]byte("XXXX"), good[4:]...), govers.CodeParseError},
		{"short header", good[:10], govers.CodeTruncated},
		{"short payload", good[:len(good)-1], govers.CodeTruncated},
		{"frame version", append(append([]byte("GVSN"), 9), good[5:]...), govers.CodeUnsupported},
		{"format id", append(append([]byte("GVSN"), 1, 99), good[6:]...), govers.CodeUnsupported},
		{"huge stored length", hugeFrame(good, 0, nil), govers.CodeTruncated},
		{"lz4 expansion", hugeFrame(good, byte(snapshot.CompressionLZ4), []byte{0}), govers.CodeParseError},
	}
	for _, tc := range cases {
		_, err := snapshot.ReadFrame(bytes.NewReader(tc.data))
		if !govers.HasCode(err, tc.code) {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.code, err)
		}
	}
}

// hugeFrame keeps the header of good but claims a 1 GiB payload. With
// compression c the stored length is len(body), otherwise it is 1 GiB too.
func hugeFrame(good []byte, c byte, body []byte) []byte {
	gib := []byte{0x80, 0x80, 0x80, 0x80, 0x04}
	out := append([]byte(nil), good[:39]...)
	out[6] = c
	out = append(out, gib...)
	if body == nil {
		out = append(out, gib...)
	} else {
		out = append(out, byte(len(body)))
	}
	return append(out, body...)
}

func TestOldSnapshotMigratesOnRead(t *testing.T) {
	old := govers.NewRegistry()
	type legacy settingsV1
	if err := govers.RegisterIn[legacy](old, govers.Definition{Name: "test.Settings"}); err != nil {
		t.Fatalf("register old: %v", err)
	}
	b, err := snapshot.Marshal(legacy{Theme: "dark"}, snapshot.Options{Format: json.Default, Registry: old})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := snapshot.Unmarshal[Settings](b, govers.DecodeOpt{Registry: testRegistry(t)})
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Theme != "dark" || got.FontSize != 12 {
		t.Fatalf("migrated value: %+v", got)
	}
}

func TestParseCompression(t *testing.T) {
	for _, c := range []snapshot.Compression{snapshot.CompressionNone, snapshot.CompressionZstd, snapshot.CompressionLZ4} {
		got, err := snapshot.ParseCompression(c.String())
		if err != nil || got != c {
			t.Fatalf("parse %s: %v %v", c, got, err)
		}
	}
	if _, err := snapshot.ParseCompression("gzip"); err == nil {
		t.Fatalf("expected error for gzip")
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)
	st, err := snapshot.NewStore(filepath.Join(t.TempDir(), "snaps"), snapshot.Options{Compression: snapshot.CompressionZstd, Registry: reg})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := st.Save(ctx, "b", Settings{Theme: "b"}); err != nil {
		t.Fatalf("save b: %v", err)
	}
	if err := st.Save(ctx, "a", Settings{Theme: "a", FontSize: 1}); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := st.Save(ctx, "a", Settings{Theme: "a2", FontSize: 2}); err != nil {
		t.Fatalf("overwrite a: %v", err)
	}
	names, err := st.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Join(names, ",") != "a,b" {
		t.Fatalf("list: %v", names)
	}
	got, err := snapshot.Load[Settings](ctx, st, "a", govers.DecodeOpt{Registry: reg})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != (Settings{Theme: "a2", FontSize: 2}) {
		t.Fatalf("load: %+v", got)
	}
	info, err := st.Stat(ctx, "a")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Format != "binary" || info.Header.Kind != format.EnvelopeMap || info.Header.Versions["test.Settings"] != 2 {
		t.Fatalf("stat: %+v", info)
	}
	if err := st.Remove(ctx, "b"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := snapshot.Load[Settings](ctx, st, "b", govers.DecodeOpt{Registry: reg}); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("load removed: %v", err)
	}
}

func TestStoreRejectsBadNamesAndCanceledContext(t *testing.T) {
	st, err := snapshot.NewStore(t.TempDir(), snapshot.Options{})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, name := range []string{"", "../x", "a/b", ".hidden"} {
		if err := st.Save(context.Background(), name, Settings{}); err == nil {
			t.Fatalf("name %q accepted", name)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := st.Save(ctx, "x", Settings{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled save: %v", err)
	}
	names, _ := st.List(context.Background())
	if len(names) != 0 {
		t.Fatalf("canceled save left files: %v", names)
	}
}
