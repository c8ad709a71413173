package tree

import (
	"bytes"
	"errors"

	"github.com/reoring/govers/format"
)

type wnode struct {
	object bool
	obj    Object
	arr    []any
	key    string
}

// Writer builds a tree. Formats embed it and add Finish.
type Writer struct {
	stack []*wnode
	root  any
	set   bool
}

var errUnbalanced = errors.New("tree: unbalanced container")

func (w *Writer) put(v any) error {
	n := len(w.stack)
	if n == 0 {
		if w.set {
			return errors.New("tree: more than one top-level value")
		}
		w.root, w.set = v, true
		return nil
	}
	top := w.stack[n-1]
	if top.object {
		top.obj = append(top.obj, Member{Key: top.key, Value: v})
		return nil
	}
	top.arr = append(top.arr, v)
	return nil
}

func (w *Writer) pop(object bool) (*wnode, error) {
	n := len(w.stack)
	if n == 0 || w.stack[n-1].object != object {
		return nil, errUnbalanced
	}
	top := w.stack[n-1]
	w.stack = w.stack[:n-1]
	return top, nil
}

func (w *Writer) key(k string) error {
	n := len(w.stack)
	if n == 0 || !w.stack[n-1].object {
		return errUnbalanced
	}
	w.stack[n-1].key = k
	return nil
}

// Value returns the finished tree.
func (w *Writer) Value() (any, error) {
	if len(w.stack) != 0 || !w.set {
		return nil, errUnbalanced
	}
	return w.root, nil
}

func (w *Writer) Envelope(format.EnvelopeKind) error { return nil }

func (w *Writer) Null() error                  { return w.put(nil) }
func (w *Writer) Bool(v bool) error            { return w.put(v) }
func (w *Writer) Int(v int64, _ int) error     { return w.put(v) }
func (w *Writer) Uint(v uint64, _ int) error   { return w.put(v) }
func (w *Writer) Float(v float64, _ int) error { return w.put(v) }
func (w *Writer) String(v string) error        { return w.put(v) }
func (w *Writer) Bytes(v []byte) error         { return w.put(bytes.Clone(v)) }
func (w *Writer) Field(key string) error       { return w.key(key) }
func (w *Writer) MapKey(key string) error      { return w.key(key) }

func (w *Writer) Option(present bool) error {
	if present {
		return nil
	}
	return w.put(nil)
}

func (w *Writer) BeginStruct(n int) error { return w.BeginMap(n) }

func (w *Writer) EndStruct() error { return w.EndMap() }

func (w *Writer) BeginMap(n int) error {
	w.stack = append(w.stack, &wnode{object: true, obj: make(Object, 0, n)})
	return nil
}

func (w *Writer) EndMap() error {
	top, err := w.pop(true)
	if err != nil {
		return err
	}
	return w.put(top.obj)
}

func (w *Writer) BeginSeq(n int) error {
	w.stack = append(w.stack, &wnode{arr: make([]any, 0, n)})
	return nil
}

func (w *Writer) EndSeq() error {
	top, err := w.pop(false)
	if err != nil {
		return err
	}
	return w.put(top.arr)
}
