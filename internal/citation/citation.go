// Package citation normalizes the citation shapes phases emit (bare URL
// strings or partial objects) into domain.Citation values.
package citation

import (
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
)

// DefaultType is applied when a citation carries no type.
const DefaultType = "web"

// DefaultConfidence is applied when a citation carries no usable confidence.
const DefaultConfidence = 0.5

var confidenceLabels = map[string]float64{
	"very high": 0.95,
	"high":      0.9,
	"medium":    0.6,
	"moderate":  0.6,
	"low":       0.3,
	"very low":  0.1,
}

// LabelConfidence maps a textual confidence label to a score.
func LabelConfidence(label string) (float64, bool) {
	f, ok := confidenceLabels[strings.ToLower(strings.TrimSpace(label))]
	return f, ok
}

// Normalize converts a raw citations value into canonical citations.
// Entries without a usable URL are skipped.
func Normalize(raw any) []domain.Citation {
	var items []any
	switch v := raw.(type) {
	case nil:
		return []domain.Citation{}
	case []any:
		items = v
	case []domain.Citation:
		out := make([]domain.Citation, 0, len(v))
		for _, c := range v {
			out = append(out, Canonical(c))
		}
		return out
	default:
		items = []any{v}
	}

	out := make([]domain.Citation, 0, len(items))
	for _, item := range items {
		if c, ok := normalizeOne(item); ok {
			out = append(out, c)
		}
	}
	return out
}

func normalizeOne(item any) (domain.Citation, bool) {
	switch v := item.(type) {
	case string:
		u := strings.TrimSpace(v)
		if u == "" {
			return domain.Citation{}, false
		}
		return Canonical(domain.Citation{URL: u, Confidence: DefaultConfidence}), true
	case map[string]any:
		c := domain.Citation{
			URL:      firstString(v, "url", "link", "href", "source_url"),
			Domain:   firstString(v, "domain"),
			Title:    firstString(v, "title", "name"),
			Type:     firstString(v, "type"),
			Category: firstString(v, "category", "source_type"),
		}
		if conf, ok := confidenceOf(v["confidence"]); ok {
			c.Confidence = conf
		} else {
			c.Confidence = DefaultConfidence
		}
		if c.URL == "" && c.Domain == "" {
			return domain.Citation{}, false
		}
		return Canonical(c), true
	}
	return domain.Citation{}, false
}

// Canonical fills domain, type and category defaults. A confidence outside
// [0, 1] is replaced by DefaultConfidence; an explicit 0 is kept.
func Canonical(c domain.Citation) domain.Citation {
	c.URL = strings.TrimSpace(c.URL)
	if c.Domain == "" {
		c.Domain = Domain(c.URL)
	} else {
		c.Domain = Domain(c.Domain)
	}
	if c.Type == "" {
		c.Type = DefaultType
	}
	c.Category = strings.ToLower(strings.TrimSpace(c.Category))
	if !validCategory(c.Category) {
		c.Category = Categorize(c.Domain)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		c.Confidence = DefaultConfidence
	}
	return c
}

// Domain extracts the registrable domain of a URL or host ("www.news.bbc.co.uk" -> "bbc.co.uk").
// Hosts without a known public suffix fall back to the bare host.
func Domain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return etld1
	}
	return host
}

func validCategory(c string) bool {
	switch c {
	case domain.CategoryNews, domain.CategoryAnalyst, domain.CategoryCompany,
		domain.CategoryRegulatory, domain.CategoryIndustry, domain.CategoryAcademic:
		return true
	}
	return false
}

var (
	newsDomains = map[string]bool{
		"reuters.com": true, "bloomberg.com": true, "wsj.com": true, "ft.com": true,
		"nytimes.com": true, "cnbc.com": true, "bbc.co.uk": true, "techcrunch.com": true,
		"forbes.com": true, "businessinsider.com": true, "theverge.com": true, "apnews.com": true,
	}
	analystDomains = map[string]bool{
		"gartner.com": true, "forrester.com": true, "idc.com": true, "mckinsey.com": true,
		"bcg.com": true, "deloitte.com": true, "statista.com": true, "cbinsights.com": true,
	}
	industryDomains = map[string]bool{
		"industryweek.com": true, "supplychaindive.com": true, "fiercebiotech.com": true,
	}
)

// Categorize guesses the source category from the domain.
func Categorize(d string) string {
	switch {
	case d == "":
		return domain.CategoryIndustry
	case strings.HasSuffix(d, ".gov") || strings.Contains(d, ".gov.") || d == "sec.gov" || strings.HasSuffix(d, "europa.eu"):
		return domain.CategoryRegulatory
	case strings.HasSuffix(d, ".edu") || strings.Contains(d, ".ac.") || d == "arxiv.org" || d == "nature.com":
		return domain.CategoryAcademic
	case newsDomains[d]:
		return domain.CategoryNews
	case analystDomains[d]:
		return domain.CategoryAnalyst
	case industryDomains[d]:
		return domain.CategoryIndustry
	}
	return domain.CategoryCompany
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// confidenceOf reports false when v is absent or unreadable.
func confidenceOf(v any) (float64, bool) {
	switch c := v.(type) {
	case float64:
		return c, true
	case int:
		return float64(c), true
	case string:
		if f, ok := LabelConfidence(c); ok {
			return f, true
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(c), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// Extract walks a phase payload and normalizes every "citations" (or
// legacy "sources") array found at any depth.
func Extract(payload any) []domain.Citation {
	out := []domain.Citation{}
	var walk func(v any)
	walk = func(v any) {
		switch node := v.(type) {
		case map[string]any:
			for _, key := range []string{"citations", "sources"} {
				if raw, ok := node[key]; ok {
					out = append(out, Normalize(raw)...)
				}
			}
			keys := make([]string, 0, len(node))
			for k := range node {
				if k != "citations" && k != "sources" {
					keys = append(keys, k)
				}
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(node[k])
			}
		case []any:
			for _, child := range node {
				walk(child)
			}
		}
	}
	walk(payload)
	return out
}

// ToAny renders citations in their canonical JSON shape.
func ToAny(cs []domain.Citation) []any {
	out := make([]any, len(cs))
	for i, c := range cs {
		out[i] = map[string]any{
			"url":        c.URL,
			"domain":     c.Domain,
			"title":      c.Title,
			"type":       c.Type,
			"category":   c.Category,
			"confidence": c.Confidence,
		}
	}
	return out
}
