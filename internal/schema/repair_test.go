package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairCoercesStringConfidence(t *testing.T) {
	s := mustParse(t, summarySchema)
	data := decode(t, `{"summary": "ok", "confidence": "0.8"}`)

	fixed, warns := Repair(data, s)
	res := Validate(fixed, s)

	require.True(t, res.Valid, "errors: %v", res.Messages())
	assert.Equal(t, 0.8, fixed.(map[string]any)["confidence"])
	require.Len(t, warns, 1)
	assert.Equal(t, WarnCoerced, warns[0].Code)
	assert.False(t, warns[0].Partial())

	// input is left untouched
	assert.Equal(t, "0.8", data.(map[string]any)["confidence"])
}

func TestRepairInjectsOnlyDeclaredDefaults(t *testing.T) {
	s := mustParse(t, `{
	  "type": "object",
	  "required": ["summary", "risks", "score"],
	  "properties": {
	    "summary": {"type": "string"},
	    "risks": {"type": "array", "items": {"type": "string"}, "default": []},
	    "score": {"type": "number", "default": 0.5}
	  }
	}`)

	fixed, warns := Repair(map[string]any{}, s)
	obj := fixed.(map[string]any)
	assert.Equal(t, []any{}, obj["risks"])
	assert.Equal(t, 0.5, obj["score"])
	_, hasSummary := obj["summary"]
	assert.False(t, hasSummary, "no default means no guess")
	assert.Len(t, warns, 2)

	res := Validate(fixed, s)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ".summary", res.Errors[0].Path)
	assert.Equal(t, CodeRequired, res.Errors[0].Code)
}

func TestRepairAllDefaultsMakesValid(t *testing.T) {
	s := mustParse(t, `{
	  "type": "object",
	  "required": ["a", "b"],
	  "properties": {
	    "a": {"type": "string", "default": "n/a"},
	    "b": {"type": "boolean", "default": false}
	  }
	}`)
	inputs := []any{
		map[string]any{},
		map[string]any{"a": 12},
		map[string]any{"b": "yes"},
		map[string]any{"a": true, "b": 0},
		map[string]any{"a": nil, "b": nil},
		map[string]any{"a": map[string]any{"x": 1}, "b": []any{}},
	}
	for _, in := range inputs {
		fixed, _ := Repair(in, s)
		res := Validate(fixed, s)
		assert.True(t, res.Valid, "input %v -> %v: %v", in, fixed, res.Messages())
	}
}

func TestRepairTreatsNullAsAbsent(t *testing.T) {
	s := mustParse(t, `{
	  "type": "object",
	  "required": ["summary", "owner"],
	  "properties": {
	    "summary": {"type": "string", "default": ""},
	    "owner": {"type": "string"},
	    "note": {"type": ["string", "null"]}
	  }
	}`)

	fixed, warns := Repair(decode(t, `{"summary": null, "owner": null, "note": null}`), s)
	obj := fixed.(map[string]any)
	assert.Equal(t, "", obj["summary"])
	_, hasOwner := obj["owner"]
	assert.False(t, hasOwner, "null without a default is left absent")
	note, hasNote := obj["note"]
	assert.True(t, hasNote)
	assert.Nil(t, note)

	codes := make([]string, 0, len(warns))
	for _, w := range warns {
		codes = append(codes, w.Code)
	}
	assert.ElementsMatch(t, []string{WarnNullRemoved, WarnNullRemoved, WarnDefaultInjected}, codes)

	res := Validate(fixed, s)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ".owner", res.Errors[0].Path)
	assert.Equal(t, CodeRequired, res.Errors[0].Code)
}

func TestRepairReplacesUncoercibleWithDefault(t *testing.T) {
	s := mustParse(t, `{
	  "type": "object",
	  "required": ["score"],
	  "properties": {"score": {"type": "number", "default": 0.5}}
	}`)

	fixed, warns := Repair(map[string]any{"score": "high"}, s)
	assert.Equal(t, map[string]any{"score": 0.5}, fixed)
	require.Len(t, warns, 1)
	assert.Equal(t, WarnReplaced, warns[0].Code)
	assert.True(t, warns[0].Partial())
}

func TestRepairNestedStructures(t *testing.T) {
	s := mustParse(t, `{
	  "type": "object",
	  "additionalProperties": false,
	  "properties": {
	    "tags": {"type": "array", "maxItems": 2, "items": {"type": "string"}},
	    "ids": {"type": "array", "items": {"type": "integer", "minimum": 0}},
	    "level": {"type": "string", "enum": ["low", "high"], "maxLength": 4},
	    "meta": {"type": "object", "properties": {"count": {"type": "integer"}}}
	  }
	}`)
	data := decode(t, `{
	  "tags": ["a", 2, "c"],
	  "ids": ["1", {"x": 1}, -4, 2.6],
	  "level": " HIGH",
	  "meta": "{\"count\": \"3\"}",
	  "noise": 1
	}`)

	fixed, warns := Repair(data, s)
	want := map[string]any{
		"tags":  []any{"a", "2"},
		"ids":   []any{1.0, 0.0, 3.0},
		"level": "high",
		"meta":  map[string]any{"count": 3.0},
	}
	if diff := cmp.Diff(want, fixed); diff != "" {
		t.Fatalf("repair mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, Validate(fixed, s).Valid)

	codes := map[string]bool{}
	partial := 0
	for _, w := range warns {
		codes[w.Code] = true
		if w.Partial() {
			partial++
		}
	}
	for _, c := range []string{WarnDroppedProperty, WarnDroppedItem, WarnTruncated, WarnClamped, WarnEnumNormalized, WarnCoerced} {
		assert.True(t, codes[c], "expected warning %s", c)
	}
	assert.GreaterOrEqual(t, partial, 4)
}

func TestRepairWrapsScalarIntoArray(t *testing.T) {
	s := mustParse(t, `{"type": "array", "items": {"type": ["object", "string"]}}`)
	fixed, _ := Repair("https://a.com/x", s)
	assert.Equal(t, []any{"https://a.com/x"}, fixed)
}

func TestParseLenient(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want any
	}{
		{"clean", `{"a": 1}`, map[string]any{"a": 1.0}},
		{"bom", "\ufeff{\"a\": 1}", map[string]any{"a": 1.0}},
		{"fenced", "```json\n{\"a\": [1, 2]}\n```", map[string]any{"a": []any{1.0, 2.0}}},
		{"prose", "Here is the result:\n{\"a\": true}\nThanks!", map[string]any{"a": true}},
		{"bare keys and trailing commas", `{summary: "ok", items: [1, 2,], }`, map[string]any{"summary": "ok", "items": []any{1.0, 2.0}}},
		{"string content untouched", `{note: "a, b: c", list: ["x,]", "{y: z}",], flag: true,}`, map[string]any{"note": "a, b: c", "list": []any{"x,]", "{y: z}"}, "flag": true}},
		{"escaped quote in string", `{q: "say \"hi, there\",", n: null,}`, map[string]any{"q": `say "hi, there",`, "n": nil}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _, err := ParseLenient(tc.in)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}

	_, _, err := ParseLenient("no json here")
	assert.Error(t, err)
}
