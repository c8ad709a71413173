package govers

import (
	"sort"

	"go.uber.org/zap"
)

// VersionMap maps versioned type names to the version their bytes were
// written with.
type VersionMap map[string]uint32

// Names returns the map's type names in sorted order.
func (m VersionMap) Names() []string {
	out := make([]string, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Clone returns a copy of m.
func (m VersionMap) Clone() VersionMap {
	if m == nil {
		return nil
	}
	out := make(VersionMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// DecodeContext carries the version map of one decode call. It is created
// once from the envelope and never changes; nested decoders receive it as
// an argument.
type DecodeContext struct {
	versions VersionMap
	missing  MissingPolicy
}

// NewDecodeContext returns a context over a copy of m. A nil map is the
// empty context used for bare values.
func NewDecodeContext(m VersionMap) *DecodeContext {
	return &DecodeContext{versions: m.Clone()}
}

// Lookup returns the recorded version of name.
func (c *DecodeContext) Lookup(name string) (uint32, bool) {
	if c == nil {
		return 0, false
	}
	v, ok := c.versions[name]
	return v, ok
}

// Versions returns a copy of the context's map.
func (c *DecodeContext) Versions() VersionMap {
	if c == nil {
		return nil
	}
	return c.versions.Clone()
}

// VersionFor resolves the version to decode s with. Types missing from the
// map fall back to version 1, or to s.Max() under MissingLatest. Versions
// outside [1, max] fail with unknown_version.
func (c *DecodeContext) VersionFor(s *Schema) (uint32, error) {
	return c.versionFor(s, nil)
}

func (c *DecodeContext) versionFor(s *Schema, at *pathRef) (uint32, error) {
	v, ok := c.Lookup(s.name)
	if !ok {
		v = 1
		if c != nil && c.missing == MissingLatest {
			v = s.max
		}
		Logger().Debug("type missing from version map",
			zap.String("type", s.name),
			zap.Uint32("assumed_version", v))
	}
	if v == 0 || v > s.max {
		return 0, unknownVersion(at, s.name, v, s.max)
	}
	return v, nil
}
