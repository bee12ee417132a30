package schema

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const summarySchema = `{
  "type": "object",
  "required": ["summary", "confidence"],
  "additionalProperties": false,
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

func mustParse(t *testing.T, doc string) *Schema {
	t.Helper()
	s, err := Parse([]byte(doc))
	require.NoError(t, err)
	return s
}

func decode(t *testing.T, doc string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(doc), &v))
	return v
}

func TestValidateStringConfidenceIsOneTypeMismatch(t *testing.T) {
	s := mustParse(t, summarySchema)
	res := Validate(decode(t, `{"summary": "ok", "confidence": "0.8"}`), s)

	require.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ".confidence", res.Errors[0].Path)
	assert.Equal(t, CodeTypeMismatch, res.Errors[0].Code)
}

func TestValidateCollectsAllViolations(t *testing.T) {
	s := mustParse(t, `{
	  "type": "object",
	  "required": ["name", "tags", "score"],
	  "additionalProperties": false,
	  "properties": {
	    "name": {"type": "string", "maxLength": 3, "pattern": "^[a-z]+$"},
	    "tags": {"type": "array", "minItems": 2, "items": {"type": "string", "enum": ["a", "b"]}},
	    "score": {"type": "integer", "minimum": 1, "maximum": 5},
	    "level": {"type": "string", "enum": ["low", "high"]}
	  }
	}`)
	data := decode(t, `{"name": "ABCDE", "tags": ["c"], "score": 9, "level": "mid", "extra": true}`)

	res := Validate(data, s)
	require.False(t, res.Valid)

	got := map[string]string{}
	for _, e := range res.Errors {
		got[e.Path+"#"+e.Code] = e.Code
	}
	want := map[string]string{
		".extra#" + CodeAdditionalProperty: CodeAdditionalProperty,
		".level#" + CodeEnum:               CodeEnum,
		".name#" + CodeMaxLength:           CodeMaxLength,
		".name#" + CodePattern:             CodePattern,
		".score#" + CodeMaximum:            CodeMaximum,
		".tags#" + CodeMinItems:            CodeMinItems,
		".tags[0]#" + CodeEnum:             CodeEnum,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("violations mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateReportsMissingRequiredAtPropertyPath(t *testing.T) {
	s := mustParse(t, summarySchema)
	res := Validate(map[string]any{}, s)

	var paths []string
	for _, e := range res.Errors {
		assert.Equal(t, CodeRequired, e.Code)
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{".summary", ".confidence"}, paths)
}

func TestValidateNestedPaths(t *testing.T) {
	s := mustParse(t, `{
	  "type": "object",
	  "properties": {
	    "citations": {"type": "array", "items": {
	      "type": "object", "required": ["url"],
	      "properties": {"url": {"type": "string"}, "confidence": {"type": "number", "exclusiveMaximum": 1}}
	    }}
	  }
	}`)
	res := Validate(decode(t, `{"citations": [{"url": "x"}, {"confidence": 1}]}`), s)

	require.Len(t, res.Errors, 2)
	assert.Equal(t, ".citations[1].confidence", res.Errors[1].Path)
	assert.Equal(t, ".citations[1].url", res.Errors[0].Path)
}

func TestValidateTypeListsAndIntegers(t *testing.T) {
	s := mustParse(t, `{"type": ["object", "string"]}`)
	assert.True(t, Validate("https://a.com", s).Valid)
	assert.True(t, Validate(map[string]any{"url": "x"}, s).Valid)
	assert.False(t, Validate(3.0, s).Valid)

	num := mustParse(t, `{"type": "number"}`)
	assert.True(t, Validate(3, num).Valid, "integers are numbers")

	integer := mustParse(t, `{"type": "integer"}`)
	assert.True(t, Validate(4.0, integer).Valid)
	assert.False(t, Validate(4.5, integer).Valid)
}

func TestParseRejectsBadPattern(t *testing.T) {
	_, err := Parse([]byte(`{"type": "object", "properties": {"x": {"type": "string", "pattern": "("}}}`))
	assert.Error(t, err)
}
