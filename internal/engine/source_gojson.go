package engine

import (
	"bytes"
	"io"
	"strconv"

	gojson "github.com/goccy/go-json"
)

type goJSONSource struct {
	dec *gojson.Decoder
	kt  keyTracker
}

// NewGoJSONSource wraps an io.Reader into a TokenSource backed by
// goccy/go-json. Offsets are not tracked (-1).
func NewGoJSONSource(r io.Reader) TokenSource {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return &goJSONSource{dec: dec}
}

// NewGoJSONBytes wraps a byte slice into a go-json TokenSource.
func NewGoJSONBytes(b []byte) TokenSource { return NewGoJSONSource(bytes.NewReader(b)) }

func (s *goJSONSource) NextToken() (Token, error) {
	tok, err := s.dec.Token()
	if err != nil {
		return Token{}, err
	}
	switch v := tok.(type) {
	case gojson.Delim:
		switch v {
		case '{':
			s.kt.open(true)
			return Token{Kind: KindBeginObject, Offset: -1}, nil
		case '}':
			s.kt.close()
			return Token{Kind: KindEndObject, Offset: -1}, nil
		case '[':
			s.kt.open(false)
			return Token{Kind: KindBeginArray, Offset: -1}, nil
		case ']':
			s.kt.close()
			return Token{Kind: KindEndArray, Offset: -1}, nil
		}
	case string:
		return Token{Kind: s.kt.str(), String: v, Offset: -1}, nil
	case bool:
		s.kt.value()
		return Token{Kind: KindBool, Bool: v, Offset: -1}, nil
	case gojson.Number:
		s.kt.value()
		return Token{Kind: KindNumber, Number: string(v), Offset: -1}, nil
	case float64:
		s.kt.value()
		return Token{Kind: KindNumber, Number: strconv.FormatFloat(v, 'g', -1, 64), Offset: -1}, nil
	}
	s.kt.value()
	return Token{Kind: KindNull, Offset: -1}, nil
}

func (s *goJSONSource) Location() int64 { return -1 }
