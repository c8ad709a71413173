package govers

import (
	"errors"
	"fmt"
	"strings"
)

// Issue codes (exported consts for IDE completion and type safety by convention)
const (
	// Definition time.
	CodeSchemaInvalid = "schema_invalid"
	// Version protocol.
	CodeUnknownVersion    = "unknown_version"
	CodeEnvelopeMalformed = "envelope_malformed"
	CodeMigrationFailed   = "migration_failed"
	// Payload decoding.
	CodeInvalidType  = "invalid_type"
	CodeUnknownKey   = "unknown_key"
	CodeDuplicateKey = "duplicate_key"
	CodeOverflow     = "overflow"
	CodeParseError   = "parse_error"
	CodeTruncated    = "truncated"
	CodeUnsupported  = "unsupported"
	// Snapshot frames.
	CodeChecksumMismatch = "checksum_mismatch"
)

// Issue represents a single failure entry.
type Issue struct {
	Path    string // JSON Pointer inside the value (for example: /items/2/price).
	Code    string // One of the codes listed above.
	Message string
	Hint    string // Optional: remediation hint.
	Cause   error  // Optional: underlying error, such as a migration step's.
	Offset  int64  // Byte offset in the input (-1 when unknown).
	// Params carries structured parameters (e.g., {"type":"pkg.T", "version":4, "max":3}).
	Params map[string]any
}

func (it Issue) String() string {
	path := it.Path
	if path == "" {
		path = "/"
	}
	if it.Message == "" {
		return it.Code + " at " + path
	}
	return it.Code + " at " + path + ": " + it.Message
}

// Issues is a collection of errors that implements error.
type Issues []Issue

// Error summarizes the first few issues.
func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	n := len(iss)
	lim := min(n, maxShown)
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(iss[i].String())
	}
	if n > lim {
		fmt.Fprintf(b, "; ... (total %d)", n)
	}
	return b.String()
}

// Unwrap exposes the issue causes so errors.Is and errors.As can reach them.
func (iss Issues) Unwrap() []error {
	var out []error
	for _, it := range iss {
		if it.Cause != nil {
			out = append(out, it.Cause)
		}
	}
	return out
}

// AppendIssues appends issues to the destination, initializing the slice when
// needed.
func AppendIssues(dst Issues, more ...Issue) Issues {
	if dst == nil {
		dst = Issues{}
	}
	dst = append(dst, more...)
	return dst
}

// AsIssues extracts Issues from an error using errors.As internally.
func AsIssues(err error) (Issues, bool) {
	if err == nil {
		return nil, false
	}
	var iss Issues
	if errors.As(err, &iss) {
		return iss, true
	}
	return nil, false
}

// HasCode reports whether err carries an issue with the given code.
func HasCode(err error, code string) bool {
	iss, ok := AsIssues(err)
	if !ok {
		return false
	}
	for _, it := range iss {
		if it.Code == code {
			return true
		}
	}
	return false
}

func singleIssue(code, msg string) Issues {
	return AppendIssues(nil, Issue{Code: code, Message: msg, Offset: -1})
}

func schemaIssue(path, msg string, params map[string]any) Issue {
	return Issue{Path: path, Code: CodeSchemaInvalid, Message: msg, Offset: -1, Params: params}
}

func unknownVersion(at *pathRef, name string, v, latest uint32) Issues {
	return AppendIssues(nil, at.Issue(CodeUnknownVersion,
		fmt.Sprintf("type %s has no version %d (max %d)", name, v, latest),
		"type", name, "version", v, "max", latest))
}

func malformed(msg string, args ...any) Issues {
	return singleIssue(CodeEnvelopeMalformed, fmt.Sprintf(msg, args...))
}
