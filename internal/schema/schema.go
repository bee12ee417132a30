// Package schema validates and repairs JSON values against a declared
// JSON-schema subset: type, required, properties, additionalProperties,
// items, array and string bounds, pattern, enum and numeric ranges.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
)

// JSON type names.
const (
	TypeObject  = "object"
	TypeArray   = "array"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeNull    = "null"
)

// Schema is a parsed schema node.
type Schema struct {
	Title                string             `json:"title,omitempty"`
	Description          string             `json:"description,omitempty"`
	Type                 TypeList           `json:"type,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	AdditionalProperties *Additional        `json:"additionalProperties,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	MinItems             *int               `json:"minItems,omitempty"`
	MaxItems             *int               `json:"maxItems,omitempty"`
	MinLength            *int               `json:"minLength,omitempty"`
	MaxLength            *int               `json:"maxLength,omitempty"`
	Pattern              string             `json:"pattern,omitempty"`
	Enum                 []any              `json:"enum,omitempty"`
	Minimum              *float64           `json:"minimum,omitempty"`
	Maximum              *float64           `json:"maximum,omitempty"`
	ExclusiveMinimum     *float64           `json:"exclusiveMinimum,omitempty"`
	ExclusiveMaximum     *float64           `json:"exclusiveMaximum,omitempty"`
	Default              json.RawMessage    `json:"default,omitempty"`

	patternOnce sync.Once
	pattern     *regexp.Regexp
	patternErr  error
}

// Parse decodes a schema document.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if err := s.compile(); err != nil {
		return nil, err
	}
	return &s, nil
}

// compile checks every pattern in the tree up front so bad schemas fail at load.
func (s *Schema) compile() error {
	if s == nil {
		return nil
	}
	if _, err := s.regexp(); err != nil {
		return err
	}
	for _, p := range s.Properties {
		if err := p.compile(); err != nil {
			return err
		}
	}
	if s.AdditionalProperties != nil {
		if err := s.AdditionalProperties.Schema.compile(); err != nil {
			return err
		}
	}
	return s.Items.compile()
}

func (s *Schema) regexp() (*regexp.Regexp, error) {
	s.patternOnce.Do(func() {
		if s.Pattern == "" {
			return
		}
		s.pattern, s.patternErr = regexp.Compile(s.Pattern)
		if s.patternErr != nil {
			s.patternErr = fmt.Errorf("invalid pattern %q: %w", s.Pattern, s.patternErr)
		}
	})
	return s.pattern, s.patternErr
}

// MatchesPattern reports whether str satisfies the schema's pattern. A
// schema without a pattern matches everything.
func (s *Schema) MatchesPattern(str string) bool {
	re, err := s.regexp()
	if err != nil || re == nil {
		return true
	}
	return re.MatchString(str)
}

// HasDefault reports whether the schema declares a default value.
func (s *Schema) HasDefault() bool {
	return s != nil && len(s.Default) > 0
}

// DefaultValue decodes a fresh copy of the declared default.
func (s *Schema) DefaultValue() (any, bool) {
	if !s.HasDefault() {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(s.Default, &v); err != nil {
		return nil, false
	}
	return v, true
}

// IsRequired reports whether name is listed as required.
func (s *Schema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// allowsAdditional reports whether unknown properties are accepted.
func (s *Schema) allowsAdditional() bool {
	return s.AdditionalProperties == nil || s.AdditionalProperties.Allowed
}

// TypeList accepts either a single type name or a list of them.
type TypeList []string

// UnmarshalJSON implements json.Unmarshaler.
func (t *TypeList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		*t = TypeList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("schema type must be a string or list of strings: %w", err)
	}
	*t = many
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t TypeList) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

// Has reports whether name is one of the declared types.
func (t TypeList) Has(name string) bool {
	for _, n := range t {
		if n == name {
			return true
		}
	}
	return false
}

// Additional is the additionalProperties keyword: a boolean or a schema
// applied to every undeclared property.
type Additional struct {
	Allowed bool
	Schema  *Schema
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Additional) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true":
		a.Allowed = true
		return nil
	case "false":
		a.Allowed = false
		return nil
	}
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("additionalProperties: %w", err)
	}
	a.Allowed = true
	a.Schema = &s
	return nil
}

// MarshalJSON implements json.Marshaler.
func (a Additional) MarshalJSON() ([]byte, error) {
	if a.Schema != nil {
		return json.Marshal(a.Schema)
	}
	return json.Marshal(a.Allowed)
}

// typeOf returns the JSON type name of a decoded value.
func typeOf(v any) string {
	switch n := v.(type) {
	case nil:
		return TypeNull
	case map[string]any:
		return TypeObject
	case []any:
		return TypeArray
	case string:
		return TypeString
	case bool:
		return TypeBoolean
	case float64:
		if n == float64(int64(n)) {
			return TypeInteger
		}
		return TypeNumber
	case float32, json.Number:
		f, _ := toFloat(v)
		if f == float64(int64(f)) {
			return TypeInteger
		}
		return TypeNumber
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInteger
	}
	return ""
}

// matchesType reports whether v satisfies one declared type. An integer
// value also satisfies "number".
func matchesType(v any, types TypeList) bool {
	if len(types) == 0 {
		return true
	}
	actual := typeOf(v)
	for _, t := range types {
		if t == actual || (t == TypeNumber && actual == TypeInteger) {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
