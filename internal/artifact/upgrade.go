package artifact

import (
	"fmt"

	"github.com/Nitesh802/customerintel-sub008/internal/citation"
)

// CurrentSchemaVersion is the version written by this adapter.
//
//	v1: evidence listed under "sources"
//	v2: evidence under "citations"; confidence may be a label ("high")
//	v3: confidence is always a number in [0,1]
const CurrentSchemaVersion = 3

type upgradeStep func(data map[string]any) map[string]any

var upgradeSteps = map[int]upgradeStep{
	1: renameSources,
	2: numericConfidence,
}

// Upgrade moves data of a logical artifact from one schema version to a
// later one. It never mutates data.
func Upgrade(logical string, data map[string]any, from, to int) (map[string]any, error) {
	if from < 1 {
		from = 1
	}
	if to > CurrentSchemaVersion || from > to {
		return nil, fmt.Errorf("artifact %s: cannot upgrade from v%d to v%d", logical, from, to)
	}
	out := cloneMap(data)
	for v := from; v < to; v++ {
		out = upgradeSteps[v](out)
	}
	return out, nil
}

// renameSources moves v1 "sources" into "citations", keeping both lists.
func renameSources(data map[string]any) map[string]any {
	sources, ok := data["sources"]
	if !ok {
		return data
	}
	delete(data, "sources")
	merged := toSlice(data["citations"])
	merged = append(merged, toSlice(sources)...)
	data["citations"] = merged
	return data
}

// numericConfidence replaces textual confidence labels at the top level and
// inside citation objects.
func numericConfidence(data map[string]any) map[string]any {
	if label, ok := data["confidence"].(string); ok {
		if f, ok := citation.LabelConfidence(label); ok {
			data["confidence"] = f
		}
	}
	for _, item := range toSlice(data["citations"]) {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if label, ok := m["confidence"].(string); ok {
			if f, ok := citation.LabelConfidence(label); ok {
				m["confidence"] = f
			}
		}
	}
	return data
}

func toSlice(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}
