// Package yaml implements the self-describing YAML format on top of
// gopkg.in/yaml.v3 nodes. Mapping order is preserved in both directions.
package yaml

import (
	"bytes"
	"encoding/base64"
	"math"
	"strconv"
	"strings"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/reoring/govers/format"
	"github.com/reoring/govers/internal/tree"
)

// Format is the YAML wire format.
type Format struct {
	// Indent is the number of spaces per nesting level; 0 means 2.
	Indent int
}

// Default is the YAML format with two-space indentation.
var Default = Format{}

// maxAliasDepth bounds alias expansion so recursive anchors cannot loop.
const maxAliasDepth = 64

func (Format) Name() string { return "yaml" }

func (Format) SelfDescribing() bool { return true }

func (f Format) NewWriter() format.Writer { return &writer{indent: f.Indent} }

func (Format) NewReader(data []byte, opt format.ReaderOpt) (format.Reader, error) {
	if opt.MaxBytes > 0 && int64(len(data)) > opt.MaxBytes {
		return nil, &format.LimitError{Limit: "bytes"}
	}
	var doc yamlv3.Node
	if err := yamlv3.Unmarshal(data, &doc); err != nil {
		return nil, &format.SyntaxError{Msg: err.Error(), Offset: -1, Cause: err}
	}
	var v any
	if doc.Kind == yamlv3.DocumentNode && len(doc.Content) > 0 {
		var err error
		if v, err = fromNode(doc.Content[0], 0); err != nil {
			return nil, err
		}
	}
	return tree.NewReader(v, opt), nil
}

type writer struct {
	tree.Writer
	indent int
}

func (w *writer) Finish() ([]byte, error) {
	v, err := w.Value()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yamlv3.NewEncoder(&buf)
	indent := w.indent
	if indent <= 0 {
		indent = 2
	}
	enc.SetIndent(indent)
	if err := enc.Encode(toNode(v)); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fromNode(n *yamlv3.Node, aliases int) (any, error) {
	switch n.Kind {
	case yamlv3.AliasNode:
		if aliases >= maxAliasDepth || n.Alias == nil {
			return nil, format.Syntax("yaml: alias nesting too deep at line %d", n.Line)
		}
		return fromNode(n.Alias, aliases+1)
	case yamlv3.MappingNode:
		obj := make(tree.Object, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yamlv3.ScalarNode {
				return nil, &format.TypeError{Want: "scalar key", Got: kindName(k.Kind), Offset: -1}
			}
			v, err := fromNode(n.Content[i+1], aliases)
			if err != nil {
				return nil, err
			}
			obj = append(obj, tree.Member{Key: k.Value, Value: v})
		}
		return obj, nil
	case yamlv3.SequenceNode:
		arr := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := fromNode(c, aliases)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	case yamlv3.ScalarNode:
		return scalar(n)
	}
	return nil, nil
}

func scalar(n *yamlv3.Node) (any, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, &format.SyntaxError{Msg: err.Error(), Offset: -1, Cause: err}
		}
		return b, nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return i, nil
		}
		var u uint64
		if err := n.Decode(&u); err == nil {
			return u, nil
		}
		return nil, &format.OverflowError{Value: n.Value, Bits: 64}
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, &format.SyntaxError{Msg: err.Error(), Offset: -1, Cause: err}
		}
		return f, nil
	case "!!binary":
		b, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(n.Value), ""))
		if err != nil {
			return nil, &format.SyntaxError{Msg: "invalid !!binary value", Offset: -1, Cause: err}
		}
		return b, nil
	}
	return n.Value, nil
}

func toNode(v any) *yamlv3.Node {
	switch x := v.(type) {
	case tree.Object:
		n := &yamlv3.Node{Kind: yamlv3.MappingNode, Tag: "!!map"}
		for _, m := range x {
			n.Content = append(n.Content,
				&yamlv3.Node{Kind: yamlv3.ScalarNode, Tag: "!!str", Value: m.Key},
				toNode(m.Value))
		}
		return n
	case []any:
		n := &yamlv3.Node{Kind: yamlv3.SequenceNode, Tag: "!!seq"}
		for _, e := range x {
			n.Content = append(n.Content, toNode(e))
		}
		return n
	case bool:
		return &yamlv3.Node{Kind: yamlv3.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(x)}
	case int64:
		return &yamlv3.Node{Kind: yamlv3.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(x, 10)}
	case uint64:
		return &yamlv3.Node{Kind: yamlv3.ScalarNode, Tag: "!!int", Value: strconv.FormatUint(x, 10)}
	case float64:
		return &yamlv3.Node{Kind: yamlv3.ScalarNode, Tag: "!!float", Value: floatText(x)}
	case string:
		return &yamlv3.Node{Kind: yamlv3.ScalarNode, Tag: "!!str", Value: x}
	case []byte:
		return &yamlv3.Node{Kind: yamlv3.ScalarNode, Tag: "!!binary", Value: base64.StdEncoding.EncodeToString(x)}
	}
	return &yamlv3.Node{Kind: yamlv3.ScalarNode, Tag: "!!null", Value: "null"}
}

func floatText(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func kindName(k yamlv3.Kind) string {
	switch k {
	case yamlv3.MappingNode:
		return "mapping"
	case yamlv3.SequenceNode:
		return "sequence"
	case yamlv3.AliasNode:
		return "alias"
	}
	return "node"
}
