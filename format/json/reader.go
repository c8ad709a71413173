package json

import (
	"encoding/base64"
	"errors"
	"io"
	"strconv"

	"github.com/reoring/govers/format"
	eng "github.com/reoring/govers/internal/engine"
	"github.com/reoring/govers/internal/stream"
)

type reader struct {
	src    eng.TokenSource
	peeked bool
	tok    eng.Token
	// raw is the full input for envelope detection; nil for deferred readers.
	raw   []byte
	f     Format
	stack [][]string
}

func (r *reader) next() (eng.Token, error) {
	if r.peeked {
		r.peeked = false
		return r.tok, nil
	}
	tok, err := r.src.NextToken()
	if err != nil {
		return eng.Token{}, r.wrap(err)
	}
	return tok, nil
}

func (r *reader) peek() (eng.Token, error) {
	if r.peeked {
		return r.tok, nil
	}
	tok, err := r.src.NextToken()
	if err != nil {
		return eng.Token{}, r.wrap(err)
	}
	r.tok, r.peeked = tok, true
	return tok, nil
}

func (r *reader) expect(kind eng.Kind, want string) (eng.Token, error) {
	tok, err := r.next()
	if err != nil {
		return tok, err
	}
	if tok.Kind != kind {
		return tok, &format.TypeError{Want: want, Got: tok.Kind.String(), Offset: tok.Offset}
	}
	return tok, nil
}

// wrap maps token source errors onto format errors.
func (r *reader) wrap(err error) error {
	var ie eng.IssueError
	if errors.As(err, &ie) {
		switch ie.Code {
		case eng.CodeDuplicateKey:
			return &format.DuplicateKeyError{Key: ie.Key}
		case eng.CodeMaxDepth:
			return &format.LimitError{Limit: "depth"}
		case eng.CodeTruncated:
			return &format.LimitError{Limit: "bytes"}
		}
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return &format.SyntaxError{Msg: "unexpected end of input", Offset: r.src.Location(), Cause: io.ErrUnexpectedEOF}
	}
	var se *format.SyntaxError
	if errors.As(err, &se) {
		return err
	}
	return &format.SyntaxError{Msg: err.Error(), Offset: r.src.Location(), Cause: err}
}

func (r *reader) Envelope(hint format.EnvelopeKind) (format.EnvelopeKind, error) {
	if hint != format.EnvelopeAuto {
		return hint, nil
	}
	if r.raw == nil {
		return format.EnvelopeNone, nil
	}
	keys, object, err := eng.TopLevelKeys(r.f.source(r.raw))
	if err != nil {
		// malformed input surfaces with better context on the real read
		return format.EnvelopeNone, nil
	}
	if !object {
		return format.EnvelopeNone, nil
	}
	members := make([]format.TopMember, len(keys))
	for i, k := range keys {
		members[i] = format.TopMember{Key: k.Key, Object: k.Object}
	}
	return format.DetectEnvelope(members), nil
}

func (r *reader) Bool() (bool, error) {
	tok, err := r.expect(eng.KindBool, "bool")
	return tok.Bool, err
}

func (r *reader) Int(bits int) (int64, error) {
	tok, err := r.expect(eng.KindNumber, "integer")
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(tok.Number, 10, bits)
	if err != nil {
		return 0, numberError(err, tok, bits, "integer")
	}
	return v, nil
}

func (r *reader) Uint(bits int) (uint64, error) {
	tok, err := r.expect(eng.KindNumber, "unsigned integer")
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(tok.Number, 10, bits)
	if err != nil {
		return 0, numberError(err, tok, bits, "unsigned integer")
	}
	return v, nil
}

func (r *reader) Float(bits int) (float64, error) {
	tok, err := r.expect(eng.KindNumber, "number")
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(tok.Number, bits)
	if err != nil {
		return 0, numberError(err, tok, bits, "number")
	}
	return v, nil
}

func numberError(err error, tok eng.Token, bits int, want string) error {
	if errors.Is(err, strconv.ErrRange) {
		return &format.OverflowError{Value: tok.Number, Bits: bits}
	}
	return &format.TypeError{Want: want, Got: "number " + tok.Number, Offset: tok.Offset}
}

func (r *reader) String() (string, error) {
	tok, err := r.expect(eng.KindString, "string")
	return tok.String, err
}

func (r *reader) Bytes() ([]byte, error) {
	tok, err := r.expect(eng.KindString, "base64 string")
	if err != nil {
		return nil, err
	}
	if tok.String == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(tok.String)
	if err != nil {
		return nil, &format.SyntaxError{Msg: "invalid base64", Offset: tok.Offset, Cause: err}
	}
	return b, nil
}

func (r *reader) Option() (bool, error) {
	tok, err := r.peek()
	if err != nil {
		return false, err
	}
	if tok.Kind == eng.KindNull {
		r.peeked = false
		return false, nil
	}
	return true, nil
}

func (r *reader) BeginStruct(keys []string) error {
	if _, err := r.expect(eng.KindBeginObject, "object"); err != nil {
		return err
	}
	r.stack = append(r.stack, keys)
	return nil
}

func (r *reader) NextField() (int, string, bool, error) {
	tok, err := r.peek()
	if err != nil {
		return 0, "", false, err
	}
	if tok.Kind == eng.KindEndObject {
		return 0, "", false, nil
	}
	if tok.Kind != eng.KindKey {
		return 0, "", false, &format.TypeError{Want: "key", Got: tok.Kind.String(), Offset: tok.Offset}
	}
	r.peeked = false
	idx := -1
	if n := len(r.stack); n > 0 {
		for i, k := range r.stack[n-1] {
			if k == tok.String {
				idx = i
				break
			}
		}
	}
	return idx, tok.String, true, nil
}

func (r *reader) EndStruct() error {
	if _, err := r.expect(eng.KindEndObject, "end of object"); err != nil {
		return err
	}
	if n := len(r.stack); n > 0 {
		r.stack = r.stack[:n-1]
	}
	return nil
}

func (r *reader) BeginSeq() (int, error) {
	_, err := r.expect(eng.KindBeginArray, "array")
	return -1, err
}

func (r *reader) NextElem() (bool, error) {
	tok, err := r.peek()
	if err != nil {
		return false, err
	}
	return tok.Kind != eng.KindEndArray, nil
}

func (r *reader) EndSeq() error {
	_, err := r.expect(eng.KindEndArray, "end of array")
	return err
}

func (r *reader) BeginMap() (int, error) {
	_, err := r.expect(eng.KindBeginObject, "object")
	return -1, err
}

func (r *reader) NextKey() (string, bool, error) {
	tok, err := r.peek()
	if err != nil {
		return "", false, err
	}
	switch tok.Kind {
	case eng.KindEndObject:
		return "", false, nil
	case eng.KindKey:
		r.peeked = false
		return tok.String, true, nil
	}
	return "", false, &format.TypeError{Want: "key", Got: tok.Kind.String(), Offset: tok.Offset}
}

func (r *reader) EndMap() error {
	_, err := r.expect(eng.KindEndObject, "end of object")
	return err
}

func (r *reader) Skip() error {
	tok, err := r.next()
	if err != nil {
		return err
	}
	if err := eng.SkipValue(r.src, tok); err != nil {
		return r.wrap(err)
	}
	return nil
}

func (r *reader) Defer() (format.Reader, error) {
	tok, err := r.next()
	if err != nil {
		return nil, err
	}
	tokens, err := stream.Capture(r.src, tok)
	if err != nil {
		return nil, r.wrap(err)
	}
	return &reader{src: stream.NewReplaySource(tokens), f: r.f}, nil
}

func (r *reader) Any() (any, error) {
	tok, err := r.next()
	if err != nil {
		return nil, err
	}
	v, err := eng.DecodeAny(r.src, tok)
	if err != nil {
		return nil, r.wrap(err)
	}
	return v, nil
}

func (r *reader) Done() error {
	if r.peeked {
		return &format.SyntaxError{Msg: "trailing data after value", Offset: r.tok.Offset}
	}
	tok, err := r.src.NextToken()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return r.wrap(err)
	}
	return &format.SyntaxError{Msg: "trailing data after value", Offset: tok.Offset}
}
