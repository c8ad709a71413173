package govers

import (
	"fmt"
	"strconv"
	"strings"
)

// pathRef builds JSON Pointer paths in a chain-safe way and creates Issues.
// The nil *pathRef is the root.
type pathRef struct {
	parent *pathRef
	token  string
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

func (p *pathRef) Field(name string) *pathRef {
	// escape '~' -> '~0', '/' -> '~1' per RFC6901
	return &pathRef{parent: p, token: pointerEscaper.Replace(name)}
}

func (p *pathRef) Index(i int) *pathRef {
	return &pathRef{parent: p, token: strconv.Itoa(i)}
}

func (p *pathRef) Pointer() string {
	if p == nil {
		return "/"
	}
	var parts []string
	for q := p; q != nil; q = q.parent {
		parts = append(parts, q.token)
	}
	b := &strings.Builder{}
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(parts[i])
	}
	return b.String()
}

func (p *pathRef) Issue(code, msg string, kv ...any) Issue {
	var m map[string]any
	if len(kv) > 1 {
		m = map[string]any{}
		for i := 0; i+1 < len(kv); i += 2 {
			m[fmt.Sprint(kv[i])] = kv[i+1]
		}
	}
	return Issue{Path: p.Pointer(), Code: code, Message: msg, Offset: -1, Params: m}
}
