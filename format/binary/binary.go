// Package binary implements a dense, non-self-describing format.
//
// Struct fields are written in declaration order without keys. Integers and
// floats are fixed-width little-endian at the width of their Go type;
// lengths and counts are unsigned varints; bools and option markers are one
// byte. Map keys are length-prefixed strings. A reader can decode a value
// only when told its shape, which is why Skip, Defer and Any are unsupported
// and why an unknown payload version cannot be recovered by inspection.
//
// Envelopes start with a four-byte magic: C3 'G' 'V' 'M' for the version map
// form and C3 'G' 'V' 'S' for the single-version form. Bytes without a magic
// are a bare value.
package binary

import (
	"bytes"

	"github.com/reoring/govers/format"
)

var (
	magicMap    = []byte{0xC3, 'G', 'V', 'M'}
	magicSingle = []byte{0xC3, 'G', 'V', 'S'}
)

// Format is the binary wire format.
type Format struct{}

// Default is the binary format.
var Default = Format{}

func (Format) Name() string { return "binary" }

func (Format) SelfDescribing() bool { return false }

func (Format) NewWriter() format.Writer { return &writer{} }

func (Format) NewReader(data []byte, opt format.ReaderOpt) (format.Reader, error) {
	if opt.MaxBytes > 0 && int64(len(data)) > opt.MaxBytes {
		return nil, &format.LimitError{Limit: "bytes"}
	}
	return &reader{data: data, maxDepth: opt.MaxDepth}, nil
}

// HasEnvelope reports whether data starts with an envelope magic.
func HasEnvelope(data []byte) bool {
	return bytes.HasPrefix(data, magicMap) || bytes.HasPrefix(data, magicSingle)
}
