package artifact

import (
	"sort"

	"github.com/Nitesh802/customerintel-sub008/internal/citation"
)

// rule is the load-time transformation for one logical artifact.
type rule struct {
	// ensure lists fields that must exist, with their default.
	ensure map[string]any
	// citations normalizes the "citations" field into canonical objects.
	citations bool
	// domainAnalysis derives "domain_analysis" from the citations.
	domainAnalysis bool
}

var phaseBaseFields = map[string]any{
	"summary":    "",
	"confidence": 0.0,
	"citations":  []any{},
}

func ruleFor(logical string) rule {
	for _, p := range mustLoad().phases {
		if p.Logical != logical {
			continue
		}
		ensure := make(map[string]any, len(phaseBaseFields)+len(p.Defaults))
		for k, v := range phaseBaseFields {
			ensure[k] = v
		}
		for k, v := range p.Defaults {
			ensure[k] = v
		}
		return rule{ensure: ensure, citations: true, domainAnalysis: true}
	}
	switch logical {
	case LogicalSynthesis:
		return rule{
			ensure: map[string]any{
				"executive_summary":  "",
				"key_findings":       []any{},
				"recommendations":    []any{},
				"narrative_markdown": "",
				"confidence":         0.0,
				"citations":          []any{},
			},
			citations: true,
		}
	case LogicalQAReport:
		return rule{ensure: map[string]any{"score": 0.0, "grade": "", "warnings": []any{}}}
	case LogicalHTMLReport:
		return rule{ensure: map[string]any{"html": ""}}
	}
	return rule{}
}

// Transform applies the load-time rules of a logical artifact. It never
// mutates data.
func Transform(logical string, data map[string]any) map[string]any {
	out := cloneMap(data)
	r := ruleFor(logical)
	for k, def := range r.ensure {
		if _, ok := out[k]; !ok {
			out[k] = cloneValue(def)
		}
	}
	if r.citations {
		if raw, ok := out["citations"]; ok {
			out["citations"] = citation.ToAny(citation.Normalize(raw))
		}
	}
	if r.domainAnalysis {
		out["domain_analysis"] = DomainAnalysis(toSlice(out["citations"]))
	}
	return out
}

// DomainAnalysis summarizes how citations spread over source domains.
func DomainAnalysis(citations []any) map[string]any {
	counts := make(map[string]int)
	for _, c := range citation.Normalize(citations) {
		if c.Domain != "" {
			counts[c.Domain]++
		}
	}
	domains := make([]string, 0, len(counts))
	total := 0
	for d, n := range counts {
		domains = append(domains, d)
		total += n
	}
	sort.Slice(domains, func(i, j int) bool {
		if counts[domains[i]] != counts[domains[j]] {
			return counts[domains[i]] > counts[domains[j]]
		}
		return domains[i] < domains[j]
	})

	freq := make(map[string]any, len(counts))
	for d, n := range counts {
		freq[d] = n
	}
	top := ""
	share := 0.0
	if len(domains) > 0 {
		top = domains[0]
		share = float64(counts[top]) / float64(total)
	}
	return map[string]any{
		"unique_domains": len(domains),
		"frequency":      freq,
		"top_domain":     top,
		"top_share":      share,
	}
}
