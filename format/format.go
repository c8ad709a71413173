// Package format defines the format-neutral SPI that the govers encoder and
// decoder drive. A Format produces Writers and Readers; the engine never
// inspects bytes itself.
//
// Readers are pulled by the decoder, which always knows the shape it expects.
// This is what lets non-self-describing formats (format/binary) share the
// same type definitions as JSON, YAML and CBOR: the reader is told "a struct
// with these keys comes next" instead of having to discover it.
package format

// EnvelopeKind identifies the framing around an encoded value.
type EnvelopeKind int

const (
	// EnvelopeAuto asks the reader to detect the framing.
	EnvelopeAuto EnvelopeKind = iota
	// EnvelopeNone is a bare value with no version metadata.
	EnvelopeNone
	// EnvelopeMap is the canonical {versions, value} envelope.
	EnvelopeMap
	// EnvelopeSingle is the {version, value} envelope for one standalone type.
	EnvelopeSingle
)

func (k EnvelopeKind) String() string {
	switch k {
	case EnvelopeAuto:
		return "auto"
	case EnvelopeNone:
		return "none"
	case EnvelopeMap:
		return "map"
	case EnvelopeSingle:
		return "single"
	default:
		return "unknown"
	}
}

// Envelope member keys.
const (
	KeyVersions = "versions"
	KeyVersion  = "version"
	KeyValue    = "value"
)

// TopMember is one member of a top-level object, reduced to what envelope
// detection needs.
type TopMember struct {
	Key    string
	Object bool // the member value is an object
}

// DetectEnvelope classifies a top-level object by its members. Only an
// object made entirely of envelope members is an envelope, and a map
// envelope also needs "versions" to hold an object. Anything else, such as a
// record with its own version field, is a bare value.
func DetectEnvelope(members []TopMember) EnvelopeKind {
	var versions, version bool
	for _, m := range members {
		switch m.Key {
		case KeyVersions:
			if !m.Object {
				return EnvelopeNone
			}
			versions = true
		case KeyVersion:
			version = true
		case KeyValue:
		default:
			return EnvelopeNone
		}
	}
	switch {
	case versions && !version:
		return EnvelopeMap
	case version && !versions:
		return EnvelopeSingle
	}
	return EnvelopeNone
}

// Format is a wire encoding.
type Format interface {
	// Name is a short identifier such as "json" or "binary".
	Name() string
	// SelfDescribing reports whether encoded bytes can be read without
	// knowing the target shape (keys, lengths and scalar kinds are explicit).
	SelfDescribing() bool
	NewWriter() Writer
	NewReader(data []byte, opt ReaderOpt) (Reader, error)
}

// ReaderOpt carries decode limits common to all readers.
type ReaderOpt struct {
	// MaxDepth limits container nesting; 0 disables the check.
	MaxDepth int
	// MaxBytes limits consumed input; 0 disables the check.
	MaxBytes int64
}

// Writer receives the value tree produced by the encoder.
//
// Struct fields are announced with Field before their value, map entries
// with MapKey. Option writes the presence marker of a pointer; when present
// is true the inner value follows.
type Writer interface {
	// Envelope marks the framing of the output. It is called once, before any
	// other method, and only for EnvelopeMap and EnvelopeSingle.
	Envelope(kind EnvelopeKind) error

	Null() error
	Bool(v bool) error
	Int(v int64, bits int) error
	Uint(v uint64, bits int) error
	Float(v float64, bits int) error
	String(v string) error
	Bytes(v []byte) error
	Option(present bool) error

	BeginStruct(n int) error
	Field(key string) error
	EndStruct() error

	BeginSeq(n int) error
	EndSeq() error

	BeginMap(n int) error
	MapKey(key string) error
	EndMap() error

	// Finish returns the encoded bytes. The writer must not be used afterwards.
	Finish() ([]byte, error)
}

// Reader yields the value tree the decoder asks for.
type Reader interface {
	// Envelope consumes the framing of the input. With EnvelopeAuto the
	// reader detects the kind; any other hint is verified and returned.
	Envelope(hint EnvelopeKind) (EnvelopeKind, error)

	Bool() (bool, error)
	Int(bits int) (int64, error)
	Uint(bits int) (uint64, error)
	Float(bits int) (float64, error)
	String() (string, error)
	Bytes() ([]byte, error)
	// Option reports whether a value follows. A null on self-describing
	// formats is consumed and reported as absent.
	Option() (bool, error)

	// BeginStruct opens a struct whose fields are keys, in declaration order.
	BeginStruct(keys []string) error
	// NextField returns the index into keys of the next field. Unknown keys
	// are returned with index -1 and key set; the caller must Skip the value.
	// ok is false once the struct is exhausted.
	NextField() (index int, key string, ok bool, err error)
	EndStruct() error

	// BeginSeq opens a sequence. n is the element count, or -1 when unknown.
	BeginSeq() (n int, err error)
	NextElem() (bool, error)
	EndSeq() error

	BeginMap() (n int, err error)
	NextKey() (key string, ok bool, err error)
	EndMap() error

	// Skip discards the next value.
	Skip() error
	// Defer returns a reader positioned on the next value and advances this
	// reader past it, so the value can be decoded later.
	Defer() (Reader, error)
	// Any decodes the next value into generic Go values (map[string]any,
	// []any, string, bool, numbers, nil).
	Any() (any, error)

	// Done verifies that no input remains.
	Done() error
}
