package engine

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
)

type stdJSONSource struct {
	dec        *json.Decoder
	kt         keyTracker
	lastOffset int64
}

// NewStdSource wraps an io.Reader into a TokenSource backed by encoding/json.
// Unlike the go-json source it reports byte offsets, which MaxBytes
// enforcement relies on.
func NewStdSource(r io.Reader) TokenSource {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &stdJSONSource{dec: dec, lastOffset: -1}
}

// NewStdBytes wraps a byte slice into an encoding/json TokenSource.
func NewStdBytes(b []byte) TokenSource { return NewStdSource(bytes.NewReader(b)) }

func (s *stdJSONSource) NextToken() (Token, error) {
	tok, err := s.dec.Token()
	if err != nil {
		return Token{}, err
	}
	s.lastOffset = s.dec.InputOffset()
	off := s.lastOffset

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			s.kt.open(true)
			return Token{Kind: KindBeginObject, Offset: off}, nil
		case '}':
			s.kt.close()
			return Token{Kind: KindEndObject, Offset: off}, nil
		case '[':
			s.kt.open(false)
			return Token{Kind: KindBeginArray, Offset: off}, nil
		case ']':
			s.kt.close()
			return Token{Kind: KindEndArray, Offset: off}, nil
		}
	case string:
		return Token{Kind: s.kt.str(), String: v, Offset: off}, nil
	case bool:
		s.kt.value()
		return Token{Kind: KindBool, Bool: v, Offset: off}, nil
	case json.Number:
		s.kt.value()
		return Token{Kind: KindNumber, Number: string(v), Offset: off}, nil
	case float64:
		s.kt.value()
		return Token{Kind: KindNumber, Number: strconv.FormatFloat(v, 'g', -1, 64), Offset: off}, nil
	}
	s.kt.value()
	return Token{Kind: KindNull, Offset: off}, nil
}

func (s *stdJSONSource) Location() int64 { return s.lastOffset }
