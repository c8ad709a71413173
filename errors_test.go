package govers

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestPathRef_Pointer(t *testing.T) {
	var root *pathRef
	if got := root.Pointer(); got != "/" {
		t.Fatalf("root: %q", got)
	}
	p := root.Field("a/b").Index(2).Field("c~d")
	if got := p.Pointer(); got != "/a~1b/2/c~0d" {
		t.Fatalf("pointer: %q", got)
	}
	it := p.Issue(CodeInvalidType, "bad", "key", "c~d")
	if it.Path != "/a~1b/2/c~0d" || it.Offset != -1 || it.Params["key"] != "c~d" {
		t.Fatalf("issue: %+v", it)
	}
}

func TestIssues_ErrorSummary(t *testing.T) {
	iss := Issues{
		{Path: "/a", Code: CodeInvalidType},
		{Path: "/b", Code: CodeUnknownKey},
		{Path: "/c", Code: CodeOverflow},
		{Path: "/d", Code: CodeTruncated},
	}
	s := iss.Error()
	if !strings.HasPrefix(s, "invalid_type at /a") || !strings.Contains(s, "(total 4)") {
		t.Fatalf("summary: %s", s)
	}
	if (Issues{}).Error() != "" {
		t.Fatalf("empty issues should have an empty message")
	}
}

func TestIssues_UnwrapAndHasCode(t *testing.T) {
	cause := errors.New("boom")
	var err error = AppendIssues(nil, Issue{Code: CodeMigrationFailed, Cause: cause})
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is should reach the cause")
	}
	if !HasCode(err, CodeMigrationFailed) || HasCode(err, CodeOverflow) || HasCode(cause, CodeMigrationFailed) {
		t.Fatalf("HasCode mismatch")
	}
	if _, ok := AsIssues(nil); ok {
		t.Fatalf("AsIssues(nil) should be false")
	}
}

func TestDecodeContext_Fallback(t *testing.T) {
	s, err := NewSchema("t", []FieldSpec{Field("a"), Field("b").Since(3)})
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	var empty *DecodeContext
	if v, err := empty.VersionFor(s); err != nil || v != 1 {
		t.Fatalf("nil context: %d %v", v, err)
	}
	latest := &DecodeContext{missing: MissingLatest}
	if v, err := latest.VersionFor(s); err != nil || v != 3 {
		t.Fatalf("latest: %d %v", v, err)
	}
	if logs.FilterMessage("type missing from version map").Len() != 2 {
		t.Fatalf("fallbacks should be logged: %v", logs.All())
	}

	m := VersionMap{"t": 2}
	ctx := NewDecodeContext(m)
	m["t"] = 9
	if v, err := ctx.VersionFor(s); err != nil || v != 2 {
		t.Fatalf("context must copy its map: %d %v", v, err)
	}
	for _, bad := range []uint32{0, 4} {
		_, err := NewDecodeContext(VersionMap{"t": bad}).VersionFor(s)
		if !HasCode(err, CodeUnknownVersion) {
			t.Fatalf("version %d: %v", bad, err)
		}
	}
}

func TestPlan_SkipsSubtreesWithoutVersions(t *testing.T) {
	type leaf struct {
		N int `json:"n"`
	}
	type node struct {
		Leaf  leaf    `json:"leaf"`
		Next  *node   `json:"next"`
		Items []leaf  `json:"items"`
		Kids  []*node `json:"kids"`
	}
	reg := NewRegistry()
	p, err := reg.planOf(reflect.TypeFor[node]())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if p.mayVersion {
		t.Fatalf("plain recursive type cannot reach a versioned node")
	}

	type versioned struct {
		N int `json:"n"`
	}
	type tree struct {
		V    *versioned `json:"v"`
		Kids []*tree    `json:"kids"`
		Leaf leaf       `json:"leaf"`
	}
	if err := RegisterIn[versioned](reg, Definition{Name: "v"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	p, err = reg.planOf(reflect.TypeFor[tree]())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !p.mayVersion || p.fields[2].plan.mayVersion {
		t.Fatalf("mayVersion: tree=%v leaf=%v", p.mayVersion, p.fields[2].plan.mayVersion)
	}
	if !p.fields[1].plan.mayVersion {
		t.Fatalf("recursive kids should reach the versioned field")
	}
}
