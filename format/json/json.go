// Package json implements the self-describing JSON format.
//
// Input is read through a streaming token source (goccy/go-json by default,
// encoding/json when byte offsets matter). Duplicate object keys are always
// rejected; nesting depth and input size are enforced when the decoder asks.
package json

import (
	"github.com/tidwall/jsonc"

	"github.com/reoring/govers/format"
	eng "github.com/reoring/govers/internal/engine"
)

// Driver selects the tokenizer behind a Reader.
type Driver int

const (
	// DriverGoJSON uses github.com/goccy/go-json. Errors carry no offsets.
	DriverGoJSON Driver = iota
	// DriverStdlib uses encoding/json and reports byte offsets.
	DriverStdlib
)

func (d Driver) String() string {
	switch d {
	case DriverGoJSON:
		return "go-json"
	case DriverStdlib:
		return "encoding/json"
	default:
		return "unknown"
	}
}

// Format is the JSON wire format. The zero value writes compact output and
// reads strict JSON with the go-json driver.
type Format struct {
	// Indent, when non-empty, pretty-prints output using this string per level.
	Indent string
	// Driver selects the tokenizer used for reading.
	Driver Driver
	// AllowComments accepts JSONC input (comments and trailing commas).
	AllowComments bool
}

// Default is the compact go-json backed format.
var Default = Format{}

func (Format) Name() string { return "json" }

func (Format) SelfDescribing() bool { return true }

func (f Format) NewWriter() format.Writer { return &writer{indent: f.Indent} }

func (f Format) NewReader(data []byte, opt format.ReaderOpt) (format.Reader, error) {
	if opt.MaxBytes > 0 && int64(len(data)) > opt.MaxBytes {
		return nil, &format.LimitError{Limit: "bytes"}
	}
	if f.AllowComments {
		data = jsonc.ToJSON(data)
	}
	src := eng.WrapWithEnforcement(f.source(data), eng.EnforceOptions{
		RejectDuplicates: true,
		MaxDepth:         opt.MaxDepth,
		MaxBytes:         opt.MaxBytes,
	})
	return &reader{src: src, raw: data, f: f}, nil
}

func (f Format) source(data []byte) eng.TokenSource {
	if f.Driver == DriverStdlib {
		return eng.NewStdBytes(data)
	}
	return eng.NewGoJSONBytes(data)
}
