package stream

import (
	"io"

	eng "github.com/reoring/govers/internal/engine"
)

// PreloadedSource is a subtree source that first returns a preloaded token
// (typically the first token of a value) and then continues to stream the
// remaining tokens for the same subtree from the underlying source. It stops
// after the subtree end is reached, returning io.EOF afterwards.
type PreloadedSource struct {
	inner       eng.TokenSource
	first       eng.Token
	depth       int
	done        bool
	firstServed bool
}

// NewPreloadedSource constructs a subtree source that will return first
// before consuming further tokens from inner. The subtree boundary is
// determined by matching container begin/end pairs starting from first.
func NewPreloadedSource(inner eng.TokenSource, first eng.Token) *PreloadedSource {
	return &PreloadedSource{inner: inner, first: first}
}

func (p *PreloadedSource) NextToken() (eng.Token, error) {
	if p.done {
		return eng.Token{}, io.EOF
	}
	var tok eng.Token
	if !p.firstServed {
		p.firstServed = true
		tok = p.first
	} else {
		t, err := p.inner.NextToken()
		if err != nil {
			if err == io.EOF {
				return eng.Token{}, io.ErrUnexpectedEOF
			}
			return eng.Token{}, err
		}
		tok = t
	}
	switch tok.Kind {
	case eng.KindBeginObject, eng.KindBeginArray:
		p.depth++
	case eng.KindEndObject, eng.KindEndArray:
		p.depth--
	}
	// primitives at depth 0 are single-token subtrees; keys never end one
	if p.depth <= 0 && tok.Kind != eng.KindKey {
		p.done = true
	}
	return tok, nil
}

func (p *PreloadedSource) Location() int64 { return p.inner.Location() }

// Capture drains the subtree starting at first into a token slice.
func Capture(inner eng.TokenSource, first eng.Token) ([]eng.Token, error) {
	src := NewPreloadedSource(inner, first)
	var out []eng.Token
	for {
		tok, err := src.NextToken()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
}

// ReplaySource serves previously captured tokens.
type ReplaySource struct {
	tokens []eng.Token
	pos    int
}

// NewReplaySource returns a TokenSource over tokens.
func NewReplaySource(tokens []eng.Token) *ReplaySource { return &ReplaySource{tokens: tokens} }

func (r *ReplaySource) NextToken() (eng.Token, error) {
	if r.pos >= len(r.tokens) {
		return eng.Token{}, io.EOF
	}
	t := r.tokens[r.pos]
	r.pos++
	return t, nil
}

func (r *ReplaySource) Location() int64 {
	if r.pos > 0 && r.pos <= len(r.tokens) {
		return r.tokens[r.pos-1].Offset
	}
	return -1
}
