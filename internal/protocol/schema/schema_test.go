package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/donuts/internal/testutil/testlog"
	"github.com/xeipuuv/gojsonschema"
)

func messageSchema() *Schema {
	return Object([]Property{
		Prop("severity", String("information", "warning", "error")),
		Prop("items", Array(String())),
		Prop("message", String()),
		Prop("modal", Bool()),
	}, "message")
}

func TestValidateObjectRequiredAndOpenWorld(t *testing.T) {
	testlog.Start(t)
	required := Object([]Property{Prop("message", String())}, "message")

	if err := Validate(required, map[string]any{}); err == nil {
		t.Fatalf("expected missing message to fail")
	}
	if err := Validate(required, map[string]any{"message": "hi"}); err != nil {
		t.Fatalf("validate message: %v", err)
	}
	if err := Validate(required, map[string]any{"message": "hi", "severity": "bogus"}); err != nil {
		t.Fatalf("undeclared key should be ignored: %v", err)
	}
	if err := Validate(messageSchema(), map[string]any{"message": "hi", "severity": "bogus"}); err == nil {
		t.Fatalf("expected enum violation")
	}
}

func TestValidateOptionalPropertyAcceptsNil(t *testing.T) {
	testlog.Start(t)
	s := messageSchema()
	if err := Validate(s, map[string]any{"message": "hi", "modal": nil}); err != nil {
		t.Fatalf("optional nil property: %v", err)
	}
	if err := Validate(s, map[string]any{"message": nil}); err == nil {
		t.Fatalf("expected required nil property to fail")
	}
}

func TestValidateNullAndAny(t *testing.T) {
	testlog.Start(t)
	if err := Validate(Null(), nil); err != nil {
		t.Fatalf("null accepts absence: %v", err)
	}
	if err := Validate(Null(), map[string]any{}); err == nil {
		t.Fatalf("null must reject a present value")
	}
	if err := Validate(Any(), nil); err != nil {
		t.Fatalf("any accepts absence: %v", err)
	}
	if err := Validate(Any(), []any{1.0, "x"}); err != nil {
		t.Fatalf("any accepts values: %v", err)
	}
	if err := Validate(String(), nil); err == nil {
		t.Fatalf("string must reject absence")
	}
}

func TestValidatePrimitives(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		s    *Schema
		v    any
		ok   bool
	}{
		{"bool", Bool(), true, true},
		{"bool-mismatch", Bool(), "true", false},
		{"number", Number(), 3.5, true},
		{"number-int", Number(), 7, true},
		{"number-json", Number(), json.Number("12"), true},
		{"number-enum", Number(1, 2), 2.0, true},
		{"number-enum-miss", Number(1, 2), 3.0, false},
		{"string", String(), "x", true},
		{"string-enum-miss", String("a"), "b", false},
		{"array", Array(Number()), []any{1.0, 2.0}, true},
		{"array-typed", Array(String()), []string{"a", "b"}, true},
		{"array-element", Array(Number()), []any{1.0, "2"}, false},
		{"array-mismatch", Array(Number()), "1", false},
		{"object-mismatch", Object(nil), []any{}, false},
	}
	for _, tc := range cases {
		err := Validate(tc.s, tc.v)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected failure", tc.name)
		}
	}
}

func TestUnionFirstAlternativeWins(t *testing.T) {
	testlog.Start(t)
	loose := Object([]Property{Prop("id", String())})
	strict := Object([]Property{Prop("id", String()), Prop("name", String())}, "id", "name")
	value := map[string]any{"id": "a", "name": "b"}

	idx, err := MatchAlternative(Union(loose, strict), value)
	if err != nil {
		t.Fatalf("match union: %v", err)
	}
	if idx != 0 {
		t.Fatalf("expected first alternative, got=%d", idx)
	}

	idx, err = MatchAlternative(Union(strict, loose), map[string]any{"id": "a"})
	if err != nil {
		t.Fatalf("match union: %v", err)
	}
	if idx != 1 {
		t.Fatalf("expected fallback alternative, got=%d", idx)
	}

	if err := Validate(Union(Number(), Bool()), "x"); err == nil {
		t.Fatalf("expected union failure")
	}
	if err := Validate(Union(Null(), String()), nil); err == nil {
		t.Fatalf("union must reject absence")
	}
}

func TestValidateErrorNamesRejectingNode(t *testing.T) {
	testlog.Start(t)
	s := Object([]Property{Prop("tags", Array(String()))})
	err := Validate(s, map[string]any{"tags": []any{"a", 2.0}})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if verr.Path != "$.tags[1]" || verr.Type != TypeString {
		t.Fatalf("unexpected validation error: %+v", verr)
	}
}

func TestValidateDeterministicAndPure(t *testing.T) {
	testlog.Start(t)
	s := messageSchema()
	value := map[string]any{"message": "hi", "items": []any{"a"}}
	first := Validate(s, value)
	for i := 0; i < 5; i++ {
		if got := Validate(s, value); (got == nil) != (first == nil) {
			t.Fatalf("validation outcome changed on run %d", i)
		}
	}
	if len(value) != 2 || len(s.Properties) != 4 {
		t.Fatalf("validation mutated its inputs")
	}
}

func TestSchemaJSONPreservesPropertyOrder(t *testing.T) {
	testlog.Start(t)
	s := Object([]Property{
		Prop("zeta", String().WithDefault(FromEnv("TERM_ID"), FromPID())),
		Prop("alpha", Number()),
	}, "zeta")

	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Index(string(raw), `"zeta"`) > strings.Index(string(raw), `"alpha"`) {
		t.Fatalf("property order lost: %s", raw)
	}

	var decoded Schema
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Properties) != 2 || decoded.Properties[0].Name != "zeta" {
		t.Fatalf("unexpected properties: %+v", decoded.Properties)
	}
	zeta, _ := decoded.Property("zeta")
	if len(zeta.Meta.Default) != 2 || zeta.Meta.Default[0].Name != "TERM_ID" || zeta.Meta.Default[1].Source != SourcePID {
		t.Fatalf("unexpected defaults: %+v", zeta.Meta.Default)
	}
	if !decoded.IsRequired("zeta") || decoded.IsRequired("alpha") {
		t.Fatalf("unexpected required set: %v", decoded.Required)
	}
}

func TestSchemaJSONRejectsUnknownTags(t *testing.T) {
	testlog.Start(t)
	var s Schema
	if err := json.Unmarshal([]byte(`{"type":"tuple","meta":{}}`), &s); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if err := json.Unmarshal([]byte(`{"type":"string","meta":{"default":[{"source":"cwd"}]}}`), &s); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("expected ErrUnknownSource, got %v", err)
	}
	if err := json.Unmarshal([]byte(`{"type":"array","meta":{}}`), &s); !errors.Is(err, ErrMissingItems) {
		t.Fatalf("expected ErrMissingItems, got %v", err)
	}
}

func TestCheckRejectsMalformedTrees(t *testing.T) {
	testlog.Start(t)
	if err := Check(messageSchema()); err != nil {
		t.Fatalf("well-formed schema rejected: %v", err)
	}
	cases := []struct {
		name string
		s    *Schema
		want error
	}{
		{"nil", nil, ErrNilSchema},
		{"unknown type", &Schema{Type: "tuple"}, ErrUnknownType},
		{"array without items", Array(nil), ErrMissingItems},
		{"nil property", Object([]Property{Prop("x", nil)}), ErrNilSchema},
		{"nested nil alternative", Array(Union(String(), nil)), ErrNilSchema},
		{"bad default", String().WithDefault(DefaultSource{Source: SourceEnv}), ErrUnknownSource},
	}
	for _, tc := range cases {
		if err := Check(tc.s); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if err := Check(Object([]Property{Prop("a", String()), Prop("a", Bool())})); err == nil {
		t.Fatalf("duplicate property accepted")
	}
}

func TestWithDefaultCopies(t *testing.T) {
	testlog.Start(t)
	base := String()
	derived := base.WithDefault(FromPID())
	if len(base.Meta.Default) != 0 {
		t.Fatalf("base schema mutated: %+v", base.Meta)
	}
	if len(derived.Meta.Default) != 1 {
		t.Fatalf("unexpected derived defaults: %+v", derived.Meta)
	}
}

func TestCompiledJSONSchemaAgrees(t *testing.T) {
	testlog.Start(t)
	s := messageSchema()
	compiled, err := Compile(s)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	values := []map[string]any{
		{"message": "hi"},
		{"message": "hi", "severity": "warning", "items": []any{"ok"}},
		{"message": "hi", "severity": "bogus"},
		{"severity": "error"},
		{"message": 1.0},
		{"message": "hi", "modal": nil, "extra": true},
	}
	for _, v := range values {
		result, err := compiled.Validate(gojsonschema.NewGoLoader(v))
		if err != nil {
			t.Fatalf("json schema validate: %v", err)
		}
		ours := Validate(s, v) == nil
		if result.Valid() != ours {
			t.Fatalf("verdicts differ for %v: json schema=%v ours=%v", v, result.Valid(), ours)
		}
	}
}
