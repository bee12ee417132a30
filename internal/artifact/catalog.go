package artifact

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed phases.yaml
var phasesYAML []byte

// Phase describes one protocol step.
type Phase struct {
	Code         string         `yaml:"code"`
	Title        string         `yaml:"title"`
	Type         string         `yaml:"type"`
	Logical      string         `yaml:"logical"`
	Requires     []string       `yaml:"requires"`
	Optional     []string       `yaml:"optional"`
	Legacy       []string       `yaml:"legacy"`
	Defaults     map[string]any `yaml:"defaults"`
	Instructions string         `yaml:"instructions"`
}

// SchemaName is the registry name of the phase's output contract.
func (p Phase) SchemaName() string {
	return strings.ToLower(p.Code)
}

// Phase codes and logical names of the synthesis tail.
const (
	PhaseSynthesis = "SYNTHESIS"
	PhaseQA        = "QA"

	LogicalSynthesis        = "synthesis_draft"
	LogicalHTMLReport       = "html_report"
	LogicalJSONReport       = "json_report"
	LogicalVoiceReport      = "voice_report"
	LogicalQAReport         = "qa_report"
	LogicalCoherenceReport  = "coherence_report"
	LogicalPatternAlignment = "pattern_alignment_report"
)

type catalog struct {
	phases []Phase
	// byLogical maps a logical name to its owning phase code and physical type.
	byLogical map[string]location
	// byPhysical maps every physical name, current or legacy, to its logical name.
	byPhysical map[string]string
}

type location struct {
	phase    string
	physical string
}

var (
	loadOnce sync.Once
	loaded   *catalog
	loadErr  error
)

// tailArtifacts are produced after the protocol phases.
var tailArtifacts = []struct {
	logical, phase string
	legacy         []string
}{
	{LogicalSynthesis, PhaseSynthesis, []string{"synthesis", "draft"}},
	{LogicalHTMLReport, PhaseSynthesis, []string{"report_html"}},
	{LogicalJSONReport, PhaseSynthesis, []string{"report_json"}},
	{LogicalVoiceReport, PhaseSynthesis, []string{"voice"}},
	{LogicalQAReport, PhaseQA, []string{"qa_scores"}},
	{LogicalCoherenceReport, PhaseQA, nil},
	{LogicalPatternAlignment, PhaseQA, []string{"pattern_alignment"}},
}

func load() (*catalog, error) {
	loadOnce.Do(func() {
		var doc struct {
			Phases []Phase `yaml:"phases"`
		}
		if err := yaml.Unmarshal(phasesYAML, &doc); err != nil {
			loadErr = fmt.Errorf("parse phase catalog: %w", err)
			return
		}
		c := &catalog{
			phases:     doc.Phases,
			byLogical:  make(map[string]location),
			byPhysical: make(map[string]string),
		}
		for _, p := range doc.Phases {
			c.byLogical[p.Logical] = location{phase: p.Code, physical: p.Type}
			c.byPhysical[p.Type] = p.Logical
			for _, l := range p.Legacy {
				c.byPhysical[l] = p.Logical
			}
		}
		for _, t := range tailArtifacts {
			c.byLogical[t.logical] = location{phase: t.phase, physical: t.logical}
			c.byPhysical[t.logical] = t.logical
			for _, l := range t.legacy {
				c.byPhysical[l] = t.logical
			}
		}
		loaded = c
	})
	return loaded, loadErr
}

func mustLoad() *catalog {
	c, err := load()
	if err != nil {
		panic(err)
	}
	return c
}

// Phases returns the protocol phases in execution order.
func Phases() []Phase {
	c := mustLoad()
	out := make([]Phase, len(c.phases))
	copy(out, c.phases)
	return out
}

// PhaseByCode returns the phase with the given code (case-insensitive).
func PhaseByCode(code string) (Phase, bool) {
	for _, p := range mustLoad().phases {
		if strings.EqualFold(p.Code, code) {
			return p, true
		}
	}
	return Phase{}, false
}

// LogicalName resolves a physical artifact name, current or legacy.
func LogicalName(physical string) (string, bool) {
	l, ok := mustLoad().byPhysical[strings.ToLower(physical)]
	return l, ok
}

// PhysicalName returns the current physical name for a logical name.
func PhysicalName(logical string) (string, bool) {
	loc, ok := mustLoad().byLogical[logical]
	return loc.physical, ok
}

// PhaseOf infers the owning phase of a logical or physical artifact name.
func PhaseOf(name string) (string, bool) {
	c := mustLoad()
	if loc, ok := c.byLogical[name]; ok {
		return loc.phase, true
	}
	if logical, ok := c.byPhysical[strings.ToLower(name)]; ok {
		return c.byLogical[logical].phase, true
	}
	return "", false
}

// physicalAliases returns every physical name that maps to logical, the
// current one first.
func physicalAliases(logical string) []string {
	c := mustLoad()
	loc, ok := c.byLogical[logical]
	if !ok {
		return nil
	}
	out := []string{loc.physical}
	for phys, l := range c.byPhysical {
		if l == logical && phys != loc.physical {
			out = append(out, phys)
		}
	}
	sort.Strings(out[1:])
	return out
}

// LogicalNames returns all logical names in protocol order.
func LogicalNames() []string {
	c := mustLoad()
	out := make([]string, 0, len(c.phases)+len(tailArtifacts))
	for _, p := range c.phases {
		out = append(out, p.Logical)
	}
	for _, t := range tailArtifacts {
		out = append(out, t.logical)
	}
	return out
}
