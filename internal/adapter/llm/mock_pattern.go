package llm

import (
	"regexp/syntax"
	"strings"
)

// fromPattern builds a string the regular expression expr accepts by walking
// its parse tree. Anchors and boundaries emit nothing.
func (g *generator) fromPattern(expr string) (string, bool) {
	re, err := syntax.Parse(expr, syntax.Perl)
	if err != nil {
		return "", false
	}
	var b strings.Builder
	g.emit(&b, re.Simplify())
	return b.String(), true
}

func (g *generator) emit(b *strings.Builder, re *syntax.Regexp) {
	switch re.Op {
	case syntax.OpLiteral:
		b.WriteString(string(re.Rune))
	case syntax.OpCharClass:
		b.WriteRune(g.classRune(re.Rune))
	case syntax.OpAnyChar, syntax.OpAnyCharNotNL:
		b.WriteRune(g.classRune([]rune{'a', 'z'}))
	case syntax.OpCapture:
		g.emit(b, re.Sub[0])
	case syntax.OpConcat:
		for _, sub := range re.Sub {
			g.emit(b, sub)
		}
	case syntax.OpAlternate:
		g.emit(b, re.Sub[g.rnd.Intn(len(re.Sub))])
	case syntax.OpStar:
		g.repeat(b, re.Sub[0], 0, 3)
	case syntax.OpPlus:
		g.repeat(b, re.Sub[0], 1, 3)
	case syntax.OpQuest:
		g.repeat(b, re.Sub[0], 0, 1)
	case syntax.OpRepeat:
		hi := re.Max
		if hi < 0 {
			hi = re.Min + 3
		}
		g.repeat(b, re.Sub[0], re.Min, hi)
	}
}

func (g *generator) repeat(b *strings.Builder, sub *syntax.Regexp, lo, hi int) {
	n := lo
	if hi > lo {
		n += g.rnd.Intn(hi - lo + 1)
	}
	for i := 0; i < n; i++ {
		g.emit(b, sub)
	}
}

// classRune picks a printable ASCII rune from the class ranges, falling back
// to the first rune of the class.
func (g *generator) classRune(ranges []rune) rune {
	var printable []rune
	for i := 0; i+1 < len(ranges); i += 2 {
		lo, hi := ranges[i], ranges[i+1]
		if lo < 0x21 {
			lo = 0x21
		}
		if hi > 0x7e {
			hi = 0x7e
		}
		for r := lo; r <= hi; r++ {
			printable = append(printable, r)
		}
	}
	if len(printable) == 0 {
		if len(ranges) == 0 {
			return 'x'
		}
		return ranges[0]
	}
	return printable[g.rnd.Intn(len(printable))]
}
