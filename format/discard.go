package format

// Discard is a Writer that accepts every call and produces no bytes. The
// encoder walks a value against it during the version-harvesting pass.
var Discard Writer = discard{}

type discard struct{}

func (discard) Envelope(EnvelopeKind) error { return nil }
func (discard) Null() error                 { return nil }
func (discard) Bool(bool) error             { return nil }
func (discard) Int(int64, int) error        { return nil }
func (discard) Uint(uint64, int) error      { return nil }
func (discard) Float(float64, int) error    { return nil }
func (discard) String(string) error         { return nil }
func (discard) Bytes([]byte) error          { return nil }
func (discard) Option(bool) error           { return nil }
func (discard) BeginStruct(int) error       { return nil }
func (discard) Field(string) error          { return nil }
func (discard) EndStruct() error            { return nil }
func (discard) BeginSeq(int) error          { return nil }
func (discard) EndSeq() error               { return nil }
func (discard) BeginMap(int) error          { return nil }
func (discard) MapKey(string) error         { return nil }
func (discard) EndMap() error               { return nil }
func (discard) Finish() ([]byte, error)     { return nil, nil }
