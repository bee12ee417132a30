package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Nitesh802/customerintel-sub008/internal/schema"
)

// MockClient produces schema-conforming output without a network. The same
// prompts always yield the same content.
type MockClient struct {
	// Override, when set, is consulted before generation. Returning handled
	// false falls through to the generator.
	Override func(req *Request, call int) (content string, handled bool, err error)

	mu    sync.Mutex
	calls int
}

// NewMockClient creates a new mock client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Calls returns how many times Call has been invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Call implements Client.
func (m *MockClient) Call(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()

	start := time.Now()
	var content string
	handled := false
	if m.Override != nil {
		c, ok, err := m.Override(req, call)
		if err != nil {
			return nil, err
		}
		content, handled = c, ok
	}
	if !handled {
		content = m.generate(req)
	}

	t := 0.0
	if req.Temperature != nil {
		t = *req.Temperature
	}
	return &Response{
		Content:     content,
		DurationMs:  time.Since(start).Milliseconds(),
		TokensUsed:  estimateTokens(req.SystemPrompt+req.UserPrompt) + estimateTokens(content),
		Model:       "mock",
		Temperature: t,
	}, nil
}

func (m *MockClient) generate(req *Request) string {
	g := newGenerator(req.SystemPrompt + "\x00" + req.UserPrompt)
	if req.Schema == nil {
		phrase := g.phrase(6, 14)
		if !req.JSONMode {
			return phrase
		}
		out, _ := json.Marshal(map[string]any{"text": phrase})
		return string(out)
	}
	out, err := json.Marshal(g.value("", req.Schema))
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(out)
}

func estimateTokens(s string) int {
	return len(s) / 4
}

// mockDomains keeps generated citations spread over enough hosts to pass the
// diversity gate.
var mockDomains = []string{
	"reuters.com", "bloomberg.com", "ft.com", "wsj.com", "cnbc.com",
	"gartner.com", "forrester.com", "mckinsey.com", "idc.com", "statista.com",
	"sec.gov", "europa.eu", "mit.edu", "arxiv.org", "nature.com",
	"techcrunch.com", "theverge.com", "businesswire.com", "prnewswire.com", "crunchbase.com",
}

var mockWords = []string{
	"strategic", "expansion", "platform", "customers", "revenue", "growth",
	"enterprise", "market", "operations", "investment", "digital", "partners",
	"regional", "pricing", "adoption", "leadership", "efficiency", "demand",
	"product", "segment", "capability", "portfolio", "supply", "margin",
}

type generator struct {
	rnd *rand.Rand
}

func newGenerator(seed string) *generator {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	return &generator{rnd: rand.New(rand.NewSource(int64(h.Sum64())))}
}

func (g *generator) value(name string, s *schema.Schema) any {
	if len(s.Enum) > 0 {
		return s.Enum[g.rnd.Intn(len(s.Enum))]
	}
	typ := schema.TypeObject
	if len(s.Type) > 0 {
		typ = s.Type[0]
	} else if s.Items != nil {
		typ = schema.TypeArray
	}
	switch typ {
	case schema.TypeObject:
		return g.object(s)
	case schema.TypeArray:
		return g.array(name, s)
	case schema.TypeNumber:
		return g.number(s)
	case schema.TypeInteger:
		return g.integer(s)
	case schema.TypeBoolean:
		return g.rnd.Intn(2) == 1
	case schema.TypeNull:
		return nil
	}
	return g.str(name, s)
}

func (g *generator) object(s *schema.Schema) map[string]any {
	out := make(map[string]any, len(s.Properties))
	names := make([]string, 0, len(s.Properties))
	for k := range s.Properties {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		out[k] = g.value(k, s.Properties[k])
	}
	return out
}

func (g *generator) array(name string, s *schema.Schema) []any {
	lo := 1
	if s.MinItems != nil {
		lo = *s.MinItems
	}
	hi := lo + 3
	if s.MaxItems != nil && *s.MaxItems < hi {
		hi = *s.MaxItems
	}
	if hi < lo {
		hi = lo
	}
	n := lo + g.rnd.Intn(hi-lo+1)
	out := make([]any, n)
	for i := range out {
		if s.Items == nil {
			out[i] = g.phrase(2, 5)
			continue
		}
		out[i] = g.value(name, s.Items)
	}
	return out
}

// number stays in the upper 30% of the declared range.
func (g *generator) number(s *schema.Schema) float64 {
	lo, hi := bounds(s, 100)
	v := lo + (0.7+0.3*g.rnd.Float64())*(hi-lo)
	v = math.Round(v*100) / 100
	if v > hi {
		v = hi
	}
	return v
}

func (g *generator) integer(s *schema.Schema) int {
	lo, hi := bounds(s, 10)
	l, h := int(math.Ceil(lo)), int(math.Floor(hi))
	if h < l {
		return l
	}
	return l + g.rnd.Intn(h-l+1)
}

func bounds(s *schema.Schema, span float64) (float64, float64) {
	lo := 0.0
	switch {
	case s.Minimum != nil:
		lo = *s.Minimum
	case s.ExclusiveMinimum != nil:
		lo = *s.ExclusiveMinimum + 0.01
	}
	hi := lo + span
	switch {
	case s.Maximum != nil:
		hi = *s.Maximum
	case s.ExclusiveMaximum != nil:
		hi = *s.ExclusiveMaximum - 0.01
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func (g *generator) str(name string, s *schema.Schema) string {
	out := fitLength(g.natural(name), s, g)
	if s.Pattern == "" || s.MatchesPattern(out) {
		return out
	}
	for i := 0; i < 8; i++ {
		cand, ok := g.fromPattern(s.Pattern)
		if !ok {
			break
		}
		out = cand
		if s.MatchesPattern(cand) && lengthFits(cand, s) {
			break
		}
	}
	return out
}

func (g *generator) natural(name string) string {
	lname := strings.ToLower(name)
	switch {
	case strings.Contains(lname, "url") || lname == "citations" || lname == "sources":
		d := mockDomains[g.rnd.Intn(len(mockDomains))]
		return fmt.Sprintf("https://%s/%s-%d", d, mockWords[g.rnd.Intn(len(mockWords))], g.rnd.Intn(10000))
	case strings.Contains(lname, "date"):
		return fmt.Sprintf("2024-%02d-%02d", 1+g.rnd.Intn(12), 1+g.rnd.Intn(28))
	}
	return g.phrase(4, 10)
}

func fitLength(out string, s *schema.Schema, g *generator) string {
	if s.MinLength != nil {
		for len(out) < *s.MinLength {
			out += " " + mockWords[g.rnd.Intn(len(mockWords))]
		}
	}
	if s.MaxLength != nil && len(out) > *s.MaxLength {
		out = strings.TrimSpace(out[:*s.MaxLength])
	}
	return out
}

func lengthFits(str string, s *schema.Schema) bool {
	n := utf8.RuneCountInString(str)
	if s.MinLength != nil && n < *s.MinLength {
		return false
	}
	return s.MaxLength == nil || n <= *s.MaxLength
}

func (g *generator) phrase(minWords, maxWords int) string {
	n := minWords + g.rnd.Intn(maxWords-minWords+1)
	words := make([]string, n)
	for i := range words {
		words[i] = mockWords[g.rnd.Intn(len(mockWords))]
	}
	words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	return strings.Join(words, " ")
}
