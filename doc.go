// Package govers encodes and decodes Go values whose field sets evolve across
// releases.
//
//   - Per-type version schemas built from field validity intervals (FieldSpec, NewSchema, ParseFieldTags)
//   - Migration chains of user-supplied steps, applied strictly in version order (Upgrade, Map, Unchanged)
//   - A two-pass encoder that harvests a version map for every versioned node before writing the payload
//   - A decoder that reads each versioned node in its recorded version and migrates it to the current shape
//   - A stable error model via Issues (JSON Pointer, code, message)
//
// Design policy:
//
//   - Keep only public APIs in the root package; put wire formats under format/ and helpers under internal/.
//   - The same definitions work over self-describing (format/json, format/yaml, format/cbor) and dense (format/binary) formats.
//   - Prefer black-box testing against public APIs.
//
// Typical usage:
//
//	govers.MustRegister[Config](govers.Definition{
//		Fields: []govers.FieldSpec{
//			govers.Field("name"),
//			govers.Field("port").Until(2),
//			govers.Field("addr").Since(2),
//		},
//		Steps: []govers.Step{govers.Map(func(v ConfigV1) Config {
//			return Config{Name: v.Name, Addr: fmt.Sprintf(":%d", v.Port)}
//		})},
//	})
//
//	data, err := govers.Encode(cfg)
//	cfg, err := govers.Decode[Config](data)
package govers
