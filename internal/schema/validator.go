package schema

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode/utf8"
)

// Violation codes.
const (
	CodeTypeMismatch       = "type_mismatch"
	CodeRequired           = "required"
	CodeAdditionalProperty = "additional_property"
	CodeMinItems           = "min_items"
	CodeMaxItems           = "max_items"
	CodeMinLength          = "min_length"
	CodeMaxLength          = "max_length"
	CodePattern            = "pattern"
	CodeEnum               = "enum"
	CodeMinimum            = "minimum"
	CodeMaximum            = "maximum"
)

// ValidationError is one contract violation at a dotted/bracketed path
// such as ".confidence" or ".citations[2].url". The root path is "".
type ValidationError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	path := e.Path
	if path == "" {
		path = "$"
	}
	return fmt.Sprintf("%s: %s", path, e.Message)
}

// Result collects every violation found in one pass.
type Result struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Messages renders the violations for logs and error values.
func (r Result) Messages() []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.String()
	}
	return out
}

// Validate checks data against s and reports all violations.
func Validate(data any, s *Schema) Result {
	v := &validator{}
	v.check(data, s, "")
	return Result{Valid: len(v.errs) == 0, Errors: v.errs}
}

type validator struct {
	errs []ValidationError
}

func (v *validator) add(path, code, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{Path: path, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) check(data any, s *Schema, path string) {
	if s == nil {
		return
	}
	if !matchesType(data, s.Type) {
		v.add(path, CodeTypeMismatch, "expected %s, got %s", strings.Join(s.Type, "|"), typeOf(data))
		return
	}
	if len(s.Enum) > 0 && !inEnum(data, s.Enum) {
		v.add(path, CodeEnum, "value %v is not one of %v", data, s.Enum)
	}

	switch val := data.(type) {
	case map[string]any:
		v.checkObject(val, s, path)
	case []any:
		v.checkArray(val, s, path)
	case string:
		v.checkString(val, s, path)
	default:
		if f, ok := toFloat(data); ok {
			v.checkNumber(f, s, path)
		}
	}
}

func (v *validator) checkObject(obj map[string]any, s *Schema, path string) {
	for _, name := range s.Required {
		if _, ok := obj[name]; !ok {
			v.add(path+"."+name, CodeRequired, "required property missing")
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		child := path + "." + k
		if prop, ok := s.Properties[k]; ok {
			v.check(obj[k], prop, child)
			continue
		}
		if !s.allowsAdditional() {
			v.add(child, CodeAdditionalProperty, "property not allowed")
			continue
		}
		if s.AdditionalProperties != nil && s.AdditionalProperties.Schema != nil {
			v.check(obj[k], s.AdditionalProperties.Schema, child)
		}
	}
}

func (v *validator) checkArray(arr []any, s *Schema, path string) {
	if s.MinItems != nil && len(arr) < *s.MinItems {
		v.add(path, CodeMinItems, "expected at least %d items, got %d", *s.MinItems, len(arr))
	}
	if s.MaxItems != nil && len(arr) > *s.MaxItems {
		v.add(path, CodeMaxItems, "expected at most %d items, got %d", *s.MaxItems, len(arr))
	}
	if s.Items == nil {
		return
	}
	for i, item := range arr {
		v.check(item, s.Items, fmt.Sprintf("%s[%d]", path, i))
	}
}

func (v *validator) checkString(str string, s *Schema, path string) {
	n := utf8.RuneCountInString(str)
	if s.MinLength != nil && n < *s.MinLength {
		v.add(path, CodeMinLength, "expected length >= %d, got %d", *s.MinLength, n)
	}
	if s.MaxLength != nil && n > *s.MaxLength {
		v.add(path, CodeMaxLength, "expected length <= %d, got %d", *s.MaxLength, n)
	}
	if re, err := s.regexp(); err == nil && re != nil && !re.MatchString(str) {
		v.add(path, CodePattern, "does not match pattern %q", s.Pattern)
	}
}

func (v *validator) checkNumber(f float64, s *Schema, path string) {
	if s.Minimum != nil && f < *s.Minimum {
		v.add(path, CodeMinimum, "expected >= %v, got %v", *s.Minimum, f)
	}
	if s.ExclusiveMinimum != nil && f <= *s.ExclusiveMinimum {
		v.add(path, CodeMinimum, "expected > %v, got %v", *s.ExclusiveMinimum, f)
	}
	if s.Maximum != nil && f > *s.Maximum {
		v.add(path, CodeMaximum, "expected <= %v, got %v", *s.Maximum, f)
	}
	if s.ExclusiveMaximum != nil && f >= *s.ExclusiveMaximum {
		v.add(path, CodeMaximum, "expected < %v, got %v", *s.ExclusiveMaximum, f)
	}
}

func inEnum(v any, enum []any) bool {
	f, isNum := toFloat(v)
	for _, e := range enum {
		if isNum {
			if ef, ok := toFloat(e); ok && ef == f {
				return true
			}
			continue
		}
		if reflect.DeepEqual(v, e) {
			return true
		}
	}
	return false
}
