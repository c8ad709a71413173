package format

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned when a format cannot perform an operation, such
// as skipping an unknown value in a non-self-describing stream.
var ErrUnsupported = errors.New("format: unsupported operation")

// SyntaxError reports malformed input.
type SyntaxError struct {
	Msg    string
	Offset int64 // -1 when unknown
	Cause  error
}

func (e *SyntaxError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("syntax error at offset %d: %s", e.Offset, e.Msg)
	}
	return "syntax error: " + e.Msg
}

func (e *SyntaxError) Unwrap() error { return e.Cause }

// TypeError reports a wire value that does not match the expected kind.
type TypeError struct {
	Want   string
	Got    string
	Offset int64
}

func (e *TypeError) Error() string { return "expected " + e.Want + ", got " + e.Got }

// DuplicateKeyError reports a key seen twice in one object.
type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string { return "key '" + e.Key + "' duplicated" }

// OverflowError reports a number that does not fit the requested width.
type OverflowError struct {
	Value string
	Bits  int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("number %s overflows %d bits", e.Value, e.Bits)
}

// LimitError reports an exceeded reader limit.
type LimitError struct {
	Limit string // "depth" or "bytes"
}

func (e *LimitError) Error() string { return "max " + e.Limit + " exceeded" }

// Syntax builds a SyntaxError with an unknown offset.
func Syntax(format string, args ...any) error {
	return &SyntaxError{Msg: fmt.Sprintf(format, args...), Offset: -1}
}
