package govers

import (
	"github.com/reoring/govers/format"
	"github.com/reoring/govers/format/json"
)

// Mode selects how Encode frames its output.
type Mode int

const (
	ModeVersioned   Mode = iota // {versions, value} envelope (default).
	ModeUnversioned             // Bare newest-shape value, no version metadata.
	ModeSingle                  // {version, value} envelope for one standalone versioned type.
)

func (m Mode) String() string {
	switch m {
	case ModeVersioned:
		return "versioned"
	case ModeUnversioned:
		return "unversioned"
	case ModeSingle:
		return "single"
	default:
		return "unknown"
	}
}

// MissingPolicy picks the version of a type absent from the version map.
type MissingPolicy int

const (
	MissingOldest MissingPolicy = iota // Assume version 1, the baseline shape.
	MissingLatest                      // Assume the newest version (bytes from ModeUnversioned).
)

// UnknownPolicy controls how unknown struct keys are handled.
type UnknownPolicy int

const (
	UnknownStrip  UnknownPolicy = iota // Drop unknown keys.
	UnknownStrict                      // Reject unknown keys with an error.
)

// EncodeOpt bundles encoding options.
type EncodeOpt struct {
	Format   format.Format // nil means compact JSON.
	Mode     Mode
	Registry *Registry // nil means the default registry.
}

// DecodeOpt bundles decoding options.
type DecodeOpt struct {
	Format   format.Format // nil means JSON.
	Registry *Registry     // nil means the default registry.
	// Envelope forces the framing instead of detecting it.
	Envelope format.EnvelopeKind
	Missing  MissingPolicy
	Unknown  UnknownPolicy
	MaxDepth int
	MaxBytes int64
}

func encodeOpt(opts []EncodeOpt) EncodeOpt {
	var opt EncodeOpt
	if len(opts) > 0 {
		opt = opts[len(opts)-1]
	}
	if opt.Format == nil {
		opt.Format = json.Default
	}
	if opt.Registry == nil {
		opt.Registry = defaultRegistry
	}
	return opt
}

func decodeOpt(opts []DecodeOpt) DecodeOpt {
	var opt DecodeOpt
	if len(opts) > 0 {
		opt = opts[len(opts)-1]
	}
	if opt.Format == nil {
		opt.Format = json.Default
	}
	if opt.Registry == nil {
		opt.Registry = defaultRegistry
	}
	return opt
}

func (o DecodeOpt) readerOpt() format.ReaderOpt {
	return format.ReaderOpt{MaxDepth: o.MaxDepth, MaxBytes: o.MaxBytes}
}
