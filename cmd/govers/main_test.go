package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reoring/govers/snapshot"
)

type record struct {
	Name string `json:"name"`
}

func runCmd(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestInspectMapEnvelope(t *testing.T) {
	in := `{"versions":{"b.T":1,"a.T":3},"value":{"x":1}}`
	code, out, errOut := runCmd(t, in, "inspect", "--format", "json", "-")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	want := "envelope: map\nversions:\n  a.T: 3\n  b.T: 1\n"
	if out != want {
		t.Fatalf("output:\n%s\nwant:\n%s", out, want)
	}
}

func TestInspectJSONCAndExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.jsonc")
	src := "{\n  // single\n  \"version\": 2,\n  \"value\": {\"x\": 1,},\n}\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	code, out, errOut := runCmd(t, "", "inspect", path)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if out != "envelope: single\nversion: 2\n" {
		t.Fatalf("output: %q", out)
	}
}

func TestTranscodeJSONToYAML(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.yaml")
	in := `{"value":{"x":1},"versions":{"a.T":2}}`
	code, _, errOut := runCmd(t, in, "transcode", "--from", "json", "--to", "yaml", "-o", outPath, "-")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	b, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(b), "versions:") {
		t.Fatalf("versions should come first:\n%s", b)
	}
}

func TestTranscodeRejectsBinary(t *testing.T) {
	code, _, _ := runCmd(t, `{"a":1}`, "transcode", "--from", "json", "--to", "binary", "-")
	if code != 1 {
		t.Fatalf("exit %d, want 1", code)
	}
}

func TestSnapshotCommand(t *testing.T) {
	var buf bytes.Buffer
	if err := snapshot.Write(&buf, record{Name: "n"}, snapshot.Options{Compression: snapshot.CompressionZstd}); err != nil {
		t.Fatalf("write: %v", err)
	}
	code, out, errOut := runCmd(t, buf.String(), "snapshot", "-")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	for _, want := range []string{"frame: v1", "format: binary", "envelope: map"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}

	corrupt := buf.Bytes()
	corrupt[10] ^= 0xff
	code, _, errOut = runCmd(t, string(corrupt), "snapshot", "-")
	if code != 1 || !strings.Contains(errOut, "checksum_mismatch") {
		t.Fatalf("corrupt frame: exit %d: %s", code, errOut)
	}
}

func TestUsageErrors(t *testing.T) {
	cases := [][]string{
		{},
		{"frobnicate"},
		{"inspect"},
		{"inspect", "--bogus", "x.json"},
		{"inspect", "file.unknown"},
		{"transcode", "--from", "json", "-"},
	}
	for _, args := range cases {
		if code, _, _ := runCmd(t, "", args...); code != 2 {
			t.Fatalf("%v: exit %d, want 2", args, code)
		}
	}
}

func TestLocalizedErrors(t *testing.T) {
	code, _, errOut := runCmd(t, `{"versions":{"a":"x"}}`, "inspect", "--format", "json", "--lang", "ja", "-")
	if code != 1 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.Contains(errOut, "バージョンエンベロープが不正です [envelope_malformed]") {
		t.Fatalf("stderr: %s", errOut)
	}
	_, _, errOut = runCmd(t, `{"versions":{"a":"x"}}`, "inspect", "--format", "json", "-")
	if !strings.Contains(errOut, "malformed version envelope [envelope_malformed]") {
		t.Fatalf("stderr: %s", errOut)
	}
}
