package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/reoring/govers"
	"github.com/reoring/govers/format"
	"github.com/reoring/govers/format/binary"
	"github.com/reoring/govers/format/cbor"
	"github.com/reoring/govers/format/json"
	"github.com/reoring/govers/format/yaml"
	"github.com/reoring/govers/i18n"
	"github.com/reoring/govers/snapshot"
)

var errHelp = errors.New("help requested")

// flags builds a subcommand flag set with the shared -v and --lang flags.
func (e *env) flags(name string) (*pflag.FlagSet, *bool) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(e.stderr)
	verbose := fs.BoolP("verbose", "v", false, "enable debug logging")
	fs.StringVar(&e.lang, "lang", "en", "language of error messages ("+strings.Join(i18n.Languages(), ", ")+")")
	return fs, verbose
}

func (e *env) parse(fs *pflag.FlagSet, verbose *bool, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return "", errHelp
		}
		return "", usagef("%v", err)
	}
	i18n.SetLanguage(e.lang)
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return "", fmt.Errorf("building logger: %w", err)
		}
		govers.SetLogger(l)
	}
	if fs.NArg() != 1 {
		return "", usagef("%s needs exactly one FILE argument", fs.Name())
	}
	return fs.Arg(0), nil
}

func (e *env) read(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(e.stdin)
	}
	return os.ReadFile(path)
}

// formatByName resolves a format flag. An empty name is guessed from path.
func formatByName(name, path string, jsonc bool) (format.Format, error) {
	if name == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			name = "json"
		case ".jsonc":
			name, jsonc = "json", true
		case ".yaml", ".yml":
			name = "yaml"
		case ".cbor":
			name = "cbor"
		case ".bin":
			name = "binary"
		default:
			return nil, usagef("cannot guess the format of %q; pass it explicitly", path)
		}
	}
	switch name {
	case "json":
		return json.Format{AllowComments: jsonc}, nil
	case "yaml":
		return yaml.Default, nil
	case "cbor":
		return cbor.Default, nil
	case "binary":
		return binary.Default, nil
	}
	return nil, usagef("unknown format %q", name)
}

func (e *env) inspect(args []string) error {
	fs, verbose := e.flags("inspect")
	name := fs.String("format", "", "input format (json, yaml, cbor, binary)")
	jsonc := fs.Bool("jsonc", false, "accept comments and trailing commas in JSON input")
	path, err := e.parse(fs, verbose, args)
	if err != nil {
		return err
	}
	f, err := formatByName(*name, path, *jsonc)
	if err != nil {
		return err
	}
	data, err := e.read(path)
	if err != nil {
		return err
	}
	h, err := govers.ReadHeader(data, govers.DecodeOpt{Format: f})
	if err != nil {
		return err
	}
	printHeader(e.stdout, h)
	return nil
}

func printHeader(w io.Writer, h govers.Header) {
	fmt.Fprintf(w, "envelope: %s\n", h.Kind)
	switch h.Kind {
	case format.EnvelopeMap:
		fmt.Fprintln(w, "versions:")
		for _, n := range h.Versions.Names() {
			fmt.Fprintf(w, "  %s: %d\n", n, h.Versions[n])
		}
	case format.EnvelopeSingle:
		fmt.Fprintf(w, "version: %d\n", h.Version)
	}
}

func (e *env) transcode(args []string) error {
	fs, verbose := e.flags("transcode")
	from := fs.String("from", "", "input format (json, yaml, cbor)")
	to := fs.String("to", "", "output format (json, yaml, cbor)")
	out := fs.StringP("output", "o", "", "output file (default stdout)")
	jsonc := fs.Bool("jsonc", false, "accept comments and trailing commas in JSON input")
	indent := fs.String("indent", "", "indentation for JSON output")
	path, err := e.parse(fs, verbose, args)
	if err != nil {
		return err
	}
	if *to == "" {
		return usagef("transcode needs --to")
	}
	src, err := formatByName(*from, path, *jsonc)
	if err != nil {
		return err
	}
	dst, err := formatByName(*to, "", false)
	if err != nil {
		return err
	}
	if jf, ok := dst.(json.Format); ok {
		jf.Indent = *indent
		dst = jf
	}
	data, err := e.read(path)
	if err != nil {
		return err
	}
	b, err := govers.Transcode(data, src, dst)
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = e.stdout.Write(b)
		return err
	}
	return os.WriteFile(*out, b, 0o644)
}

func (e *env) snapshot(args []string) error {
	fs, verbose := e.flags("snapshot")
	path, err := e.parse(fs, verbose, args)
	if err != nil {
		return err
	}
	data, err := e.read(path)
	if err != nil {
		return err
	}
	fr, err := snapshot.ReadFrame(bytes.NewReader(data))
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "frame: v%d\nformat: %s\ncompression: %s\npayload: %d bytes (stored %d)\ndigest: %x\n",
		fr.Version, fr.Format.Name(), fr.Compression, len(fr.Payload), fr.StoredSize, fr.Digest)
	h, err := fr.Header()
	if err != nil {
		return err
	}
	printHeader(e.stdout, h)
	return nil
}

// describe renders err for the terminal, one localized line per issue.
func describe(err error) string {
	iss, ok := govers.AsIssues(err)
	if !ok {
		return err.Error()
	}
	var b strings.Builder
	for i, it := range iss {
		if i > 0 {
			b.WriteString("\n  ")
		}
		data := make(map[string]string, len(it.Params))
		for k, v := range it.Params {
			data[k] = fmt.Sprint(v)
		}
		path := it.Path
		if path == "" {
			path = "/"
		}
		fmt.Fprintf(&b, "%s: %s [%s]", path, i18n.T(it.Code, data), it.Code)
		if it.Message != "" {
			fmt.Fprintf(&b, ": %s", it.Message)
		}
	}
	return b.String()
}
