package engine

// keyTracker turns a flat stream of decoder tokens into engine tokens by
// telling object keys apart from string values.
type keyTracker struct {
	stack []trackFrame
}

type trackFrame struct {
	object       bool
	expectingKey bool
}

func (t *keyTracker) open(object bool) {
	t.stack = append(t.stack, trackFrame{object: object, expectingKey: object})
}

func (t *keyTracker) close() {
	if n := len(t.stack); n > 0 {
		t.stack = t.stack[:n-1]
	}
	t.value()
}

// str classifies a string token as a key or a value.
func (t *keyTracker) str() Kind {
	if n := len(t.stack); n > 0 {
		top := &t.stack[n-1]
		if top.object && top.expectingKey {
			top.expectingKey = false
			return KindKey
		}
	}
	t.value()
	return KindString
}

// value records that a complete value was read.
func (t *keyTracker) value() {
	if n := len(t.stack); n > 0 {
		top := &t.stack[n-1]
		if top.object && !top.expectingKey {
			top.expectingKey = true
		}
	}
}
