package govers_test

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/reoring/govers"
	"github.com/reoring/govers/format"
	"github.com/reoring/govers/format/binary"
)

// Profile renames age to years in v2 and adds email in v3.
type profileV1 struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

type profileV2 struct {
	Name  string `json:"name"`
	Years int    `json:"years"`
}

type Profile struct {
	Name  string `json:"name"`
	Years int    `json:"years"`
	Email string `json:"email"`
}

// Inner gains a unit in v2.
type innerV1 struct {
	Value int `json:"value"`
}

type Inner struct {
	Value int    `json:"value"`
	Unit  string `json:"unit"`
}

// Outer renames title to name in v2; both versions embed the current Inner.
type outerV1 struct {
	Title string `json:"title"`
	Inner Inner  `json:"inner"`
}

type Outer struct {
	Name  string `json:"name"`
	Inner Inner  `json:"inner"`
}

var errNegativeAge = errors.New("age is negative")

// stepLog records applied migration steps.
type stepLog struct {
	mu    sync.Mutex
	steps []string
}

func (l *stepLog) add(s string) {
	l.mu.Lock()
	l.steps = append(l.steps, s)
	l.mu.Unlock()
}

func (l *stepLog) take() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.steps
	l.steps = nil
	return out
}

// newRegistry registers Profile, Inner and Outer.
func newRegistry(t *testing.T, log *stepLog) *govers.Registry {
	t.Helper()
	if log == nil {
		log = &stepLog{}
	}
	reg := govers.NewRegistry()
	err := govers.RegisterIn[Profile](reg, govers.Definition{
		Name: "test.Profile",
		Fields: []govers.FieldSpec{
			govers.Field("name"),
			govers.Field("age").Until(2),
			govers.Field("years").Since(2),
			govers.Field("email").Since(3),
		},
		Steps: []govers.Step{
			govers.Upgrade(func(v profileV1) (profileV2, error) {
				log.add("profile 1->2")
				if v.Age < 0 {
					return profileV2{}, errNegativeAge
				}
				return profileV2{Name: v.Name, Years: v.Age}, nil
			}),
			govers.Map(func(v profileV2) Profile {
				log.add("profile 2->3")
				return Profile{Name: v.Name, Years: v.Years, Email: "unknown"}
			}),
		},
	})
	if err != nil {
		t.Fatalf("register Profile: %v", err)
	}
	err = govers.RegisterIn[Inner](reg, govers.Definition{
		Name:   "test.Inner",
		Fields: []govers.FieldSpec{govers.Field("value"), govers.Field("unit").Since(2)},
		Steps: []govers.Step{
			govers.Map(func(v innerV1) Inner {
				log.add("inner 1->2")
				return Inner{Value: v.Value, Unit: "m"}
			}),
		},
	})
	if err != nil {
		t.Fatalf("register Inner: %v", err)
	}
	err = govers.RegisterIn[Outer](reg, govers.Definition{
		Name: "test.Outer",
		Fields: []govers.FieldSpec{
			govers.Field("title").Until(2),
			govers.Field("name").Since(2),
			govers.Field("inner"),
		},
		Steps: []govers.Step{
			govers.Map(func(v outerV1) Outer {
				log.add("outer 1->2")
				return Outer{Name: v.Title, Inner: v.Inner}
			}),
		},
	})
	if err != nil {
		t.Fatalf("register Outer: %v", err)
	}
	return reg
}

// binaryEnvelope writes a binary map envelope whose value is a struct of
// the given scalar fields, in order.
func binaryEnvelope(t *testing.T, versions govers.VersionMap, fields ...any) []byte {
	t.Helper()
	w := binary.Default.NewWriter()
	must := func(err error) {
		if err != nil {
			t.Fatalf("binary writer: %v", err)
		}
	}
	must(w.Envelope(format.EnvelopeMap))
	must(w.BeginMap(2))
	must(w.MapKey(format.KeyVersions))
	names := versions.Names()
	must(w.BeginMap(len(names)))
	for _, n := range names {
		must(w.MapKey(n))
		must(w.Uint(uint64(versions[n]), 32))
	}
	must(w.EndMap())
	must(w.MapKey(format.KeyValue))
	must(w.BeginStruct(len(fields)))
	for _, f := range fields {
		switch v := f.(type) {
		case string:
			must(w.String(v))
		case int:
			must(w.Int(int64(v), strconv.IntSize))
		default:
			t.Fatalf("unsupported field %T", f)
		}
	}
	must(w.EndStruct())
	must(w.EndMap())
	b, err := w.Finish()
	must(err)
	return b
}

func issueOf(t *testing.T, err error, code string) govers.Issue {
	t.Helper()
	iss, ok := govers.AsIssues(err)
	if !ok {
		t.Fatalf("expected Issues with %s, got %v", code, err)
	}
	for _, it := range iss {
		if it.Code == code {
			return it
		}
	}
	t.Fatalf("expected %s, got %v", code, iss)
	return govers.Issue{}
}
