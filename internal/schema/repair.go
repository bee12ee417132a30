package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Repair warning codes. Partial repairs lose or alter data and are kept on
// the phase result so operators can tell a clean pass from a patched one.
const (
	WarnCoerced         = "coerced"
	WarnDefaultInjected = "default_injected"
	WarnDroppedProperty = "dropped_property"
	WarnDroppedItem     = "dropped_item"
	WarnTruncated       = "truncated"
	WarnClamped         = "clamped"
	WarnEnumNormalized  = "enum_normalized"
	WarnTextFixed       = "text_fixed"
	WarnNullRemoved     = "null_removed"
	WarnReplaced        = "replaced"
)

// Warning describes one change made by Repair or ParseLenient.
type Warning struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Partial reports whether the repair discarded or altered content.
func (w Warning) Partial() bool {
	switch w.Code {
	case WarnDroppedItem, WarnDroppedProperty, WarnTruncated, WarnClamped, WarnReplaced:
		return true
	}
	return false
}

func (w Warning) String() string {
	path := w.Path
	if path == "" {
		path = "$"
	}
	return fmt.Sprintf("%s: %s (%s)", path, w.Message, w.Code)
}

// Repair coerces data toward s. It never invents values for required
// properties without a declared default; those stay absent so Validate
// reports them. The input is not modified.
func Repair(data any, s *Schema) (any, []Warning) {
	r := &repairer{}
	out, _ := r.repair(data, s, "")
	return out, r.warns
}

type repairer struct {
	warns []Warning
}

func (r *repairer) warn(path, code, format string, args ...any) {
	r.warns = append(r.warns, Warning{Path: path, Code: code, Message: fmt.Sprintf(format, args...)})
}

// repair returns the repaired value and whether it now has an acceptable type.
func (r *repairer) repair(v any, s *Schema, path string) (any, bool) {
	if s == nil {
		return v, true
	}
	if !matchesType(v, s.Type) {
		coerced, ok := coerce(v, s.Type)
		if !ok {
			return v, false
		}
		r.warn(path, WarnCoerced, "coerced %s to %s", typeOf(v), typeOf(coerced))
		v = coerced
	}

	switch val := v.(type) {
	case map[string]any:
		return r.repairObject(val, s, path), true
	case []any:
		return r.repairArray(val, s, path), true
	case string:
		return r.repairString(val, s, path), true
	}
	if f, ok := toFloat(v); ok {
		return r.repairNumber(f, v, s, path), true
	}
	return v, true
}

func (r *repairer) repairObject(obj map[string]any, s *Schema, path string) map[string]any {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(obj))
	for _, k := range keys {
		child := path + "." + k
		if prop, ok := s.Properties[k]; ok {
			if obj[k] == nil && prop != nil && len(prop.Type) > 0 && !prop.Type.Has(TypeNull) {
				// an explicit null counts as absent
				r.warn(child, WarnNullRemoved, "removed null value")
				continue
			}
			fixed, ok := r.repair(obj[k], prop, child)
			if !ok {
				if dv, has := prop.DefaultValue(); has {
					r.warn(child, WarnReplaced, "replaced %s with schema default", typeOf(obj[k]))
					fixed = dv
				}
			}
			out[k] = fixed
			continue
		}
		if !s.allowsAdditional() {
			r.warn(child, WarnDroppedProperty, "removed undeclared property")
			continue
		}
		if s.AdditionalProperties != nil && s.AdditionalProperties.Schema != nil {
			fixed, _ := r.repair(obj[k], s.AdditionalProperties.Schema, child)
			out[k] = fixed
			continue
		}
		out[k] = obj[k]
	}

	for _, name := range s.Required {
		if _, ok := out[name]; ok {
			continue
		}
		prop := s.Properties[name]
		if prop == nil {
			continue
		}
		if dv, ok := prop.DefaultValue(); ok {
			out[name] = dv
			r.warn(path+"."+name, WarnDefaultInjected, "injected schema default")
		}
	}
	return out
}

func (r *repairer) repairArray(arr []any, s *Schema, path string) []any {
	out := make([]any, 0, len(arr))
	for i, item := range arr {
		if s.Items == nil {
			out = append(out, item)
			continue
		}
		child := fmt.Sprintf("%s[%d]", path, i)
		fixed, ok := r.repair(item, s.Items, child)
		if !ok {
			r.warn(child, WarnDroppedItem, "dropped %s item that cannot become %s", typeOf(item), strings.Join(s.Items.Type, "|"))
			continue
		}
		out = append(out, fixed)
	}
	if s.MaxItems != nil && len(out) > *s.MaxItems {
		r.warn(path, WarnTruncated, "truncated array from %d to %d items", len(out), *s.MaxItems)
		out = out[:*s.MaxItems]
	}
	return out
}

func (r *repairer) repairString(str string, s *Schema, path string) string {
	if len(s.Enum) > 0 && !inEnum(str, s.Enum) {
		needle := strings.ToLower(strings.TrimSpace(str))
		for _, e := range s.Enum {
			if es, ok := e.(string); ok && strings.ToLower(es) == needle {
				r.warn(path, WarnEnumNormalized, "normalized %q to %q", str, es)
				str = es
				break
			}
		}
	}
	if s.MaxLength != nil {
		runes := []rune(str)
		if len(runes) > *s.MaxLength {
			r.warn(path, WarnTruncated, "truncated string from %d to %d characters", len(runes), *s.MaxLength)
			str = string(runes[:*s.MaxLength])
		}
	}
	return str
}

func (r *repairer) repairNumber(f float64, orig any, s *Schema, path string) any {
	changed := false
	if s.Type.Has(TypeInteger) && !s.Type.Has(TypeNumber) && f != math.Trunc(f) {
		r.warn(path, WarnCoerced, "rounded %v to integer", f)
		f = math.Round(f)
		changed = true
	}
	if s.Minimum != nil && f < *s.Minimum {
		r.warn(path, WarnClamped, "clamped %v to minimum %v", f, *s.Minimum)
		f = *s.Minimum
		changed = true
	}
	if s.Maximum != nil && f > *s.Maximum {
		r.warn(path, WarnClamped, "clamped %v to maximum %v", f, *s.Maximum)
		f = *s.Maximum
		changed = true
	}
	if !changed {
		return orig
	}
	return f
}

// coerce converts v to the first declared type it can represent.
func coerce(v any, types TypeList) (any, bool) {
	for _, t := range types {
		if out, ok := coerceTo(v, t); ok {
			return out, true
		}
	}
	return nil, false
}

func coerceTo(v any, t string) (any, bool) {
	switch t {
	case TypeNumber, TypeInteger:
		var f float64
		switch val := v.(type) {
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
				return nil, false
			}
			f = parsed
		case bool:
			if val {
				f = 1
			}
		default:
			n, ok := toFloat(v)
			if !ok {
				return nil, false
			}
			f = n
		}
		if t == TypeInteger {
			f = math.Round(f)
		}
		return f, true

	case TypeString:
		switch val := v.(type) {
		case bool:
			return strconv.FormatBool(val), true
		default:
			if f, ok := toFloat(v); ok {
				return strconv.FormatFloat(f, 'f', -1, 64), true
			}
		}
		return nil, false

	case TypeBoolean:
		switch val := v.(type) {
		case string:
			switch strings.ToLower(strings.TrimSpace(val)) {
			case "true", "yes", "y", "1":
				return true, true
			case "false", "no", "n", "0":
				return false, true
			}
			return nil, false
		default:
			if f, ok := toFloat(v); ok {
				return f != 0, true
			}
		}
		return nil, false

	case TypeArray:
		if str, ok := v.(string); ok {
			trimmed := strings.TrimSpace(str)
			if strings.HasPrefix(trimmed, "[") {
				var arr []any
				if err := json.Unmarshal([]byte(trimmed), &arr); err == nil {
					return arr, true
				}
			}
		}
		if v == nil {
			return nil, false
		}
		return []any{v}, true

	case TypeObject:
		if str, ok := v.(string); ok {
			trimmed := strings.TrimSpace(str)
			if strings.HasPrefix(trimmed, "{") {
				var obj map[string]any
				if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
					return obj, true
				}
			}
		}
		return nil, false
	}
	return nil, false
}

// ParseLenient decodes near-valid JSON text: it strips a BOM and markdown
// fences, cuts surrounding prose, quotes bare keys and drops trailing commas.
func ParseLenient(text string) (any, []Warning, error) {
	var warns []Warning
	note := func(msg string) {
		warns = append(warns, Warning{Code: WarnTextFixed, Message: msg})
	}

	t := text
	if strings.HasPrefix(t, "\ufeff") {
		t = strings.TrimPrefix(t, "\ufeff")
		note("stripped byte order mark")
	}
	t = strings.TrimSpace(t)
	if strings.HasPrefix(t, "```") {
		t = stripFence(t)
		note("stripped markdown code fence")
	}

	var v any
	err := json.Unmarshal([]byte(t), &v)
	if err == nil {
		return v, warns, nil
	}

	if cut, ok := extractJSON(t); ok && cut != t {
		t = cut
		note("removed text around JSON document")
		if err = json.Unmarshal([]byte(t), &v); err == nil {
			return v, warns, nil
		}
	}

	if fixed := fixStructure(t); fixed != t {
		if err2 := json.Unmarshal([]byte(fixed), &v); err2 == nil {
			note("quoted bare keys and removed trailing commas")
			return v, warns, nil
		}
	}
	return nil, warns, fmt.Errorf("unparseable JSON output: %w", err)
}

// fixStructure quotes bare object keys and drops trailing commas. String
// literals are copied through untouched.
func fixStructure(t string) string {
	var b strings.Builder
	b.Grow(len(t) + 16)
	inString, escaped := false, false
	// last significant byte written outside a string
	var prev byte
	for i := 0; i < len(t); i++ {
		c := t[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				prev = c
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == ',':
			j := skipSpace(t, i+1)
			if j < len(t) && (t[j] == '}' || t[j] == ']') {
				continue
			}
			b.WriteByte(c)
			prev = c
		case (prev == '{' || prev == ',') && isIdentStart(c):
			j := i + 1
			for j < len(t) && isIdentPart(t[j]) {
				j++
			}
			if k := skipSpace(t, j); k < len(t) && t[k] == ':' {
				b.WriteByte('"')
				b.WriteString(t[i:j])
				b.WriteByte('"')
			} else {
				b.WriteString(t[i:j])
			}
			prev = t[j-1]
			i = j - 1
		default:
			b.WriteByte(c)
			if !isSpace(c) {
				prev = c
			}
		}
	}
	return b.String()
}

func skipSpace(t string, i int) int {
	for i < len(t) && isSpace(t[i]) {
		i++
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c == '-' || (c >= '0' && c <= '9')
}

func stripFence(t string) string {
	if i := strings.Index(t, "\n"); i >= 0 {
		t = t[i+1:]
	} else {
		t = strings.TrimPrefix(t, "```")
	}
	t = strings.TrimSpace(t)
	return strings.TrimSpace(strings.TrimSuffix(t, "```"))
}

// extractJSON returns the span from the first opening bracket to the last
// matching closing bracket.
func extractJSON(t string) (string, bool) {
	start := strings.IndexAny(t, "{[")
	if start < 0 {
		return "", false
	}
	closer := byte('}')
	if t[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(t, closer)
	if end <= start {
		return "", false
	}
	return t[start : end+1], true
}
