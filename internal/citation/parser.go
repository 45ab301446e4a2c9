// Package citation turns free-text page references produced by the upstream
// assistant into resolved document preview contexts: parsing, file matching
// and range resolution.
package citation

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/docref/internal/model"
)

// ConfidenceWeights are the scoring constants applied to each parsed
// reference. They are heuristic values with no empirical basis, kept as
// named overridable constants rather than hard-coded invariants.
type ConfidenceWeights struct {
	Base         float64 `yaml:"base" mapstructure:"base"`
	HintBonus    float64 `yaml:"hint_bonus" mapstructure:"hint_bonus"`
	PageBonus    float64 `yaml:"page_bonus" mapstructure:"page_bonus"`
	BracketBonus float64 `yaml:"bracket_bonus" mapstructure:"bracket_bonus"`
	ShortPenalty float64 `yaml:"short_penalty" mapstructure:"short_penalty"`
	Min          float64 `yaml:"min" mapstructure:"min"`
	Max          float64 `yaml:"max" mapstructure:"max"`
}

// DefaultConfidenceWeights returns the standard scoring constants.
func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{
		Base:         0.5,
		HintBonus:    0.2,
		PageBonus:    0.1,
		BracketBonus: 0.1,
		ShortPenalty: 0.1,
		Min:          0.1,
		Max:          1.0,
	}
}

// shortMatchLen is the full-match length below which the short penalty applies.
const shortMatchLen = 5

// candidate is a raw span produced by one matcher, before overlap resolution
// and confidence scoring.
type candidate struct {
	start int
	end   int // exclusive byte offset
	ref   model.PageReference
}

// matcherFunc finds all non-overlapping matches of one citation form in text.
// Matchers are pure functions: same text in, same candidates out.
type matcherFunc func(text string) []candidate

// Parser extracts ordered, scored page references from arbitrary text.
type Parser struct {
	weights  ConfidenceWeights
	matchers []matcherFunc
}

// NewParser creates a parser with the given confidence weights.
func NewParser(weights ConfidenceWeights) *Parser {
	return &Parser{
		weights: weights,
		matchers: []matcherFunc{
			matchBracketed,
			matchWorkProcedure,
			matchBareFilename,
			matchPlainPage,
		},
	}
}

// Parse returns all page references found in text, ordered by match
// position. It never fails: unparseable text simply yields no references.
//
// Candidates from different matchers may overlap (a bracketed citation
// contains a plain "pp. N-M" span). Overlaps are resolved explicitly:
// earliest start wins, and on a tie the longest match wins.
func (p *Parser) Parse(text string) []model.PageReference {
	if text == "" {
		return nil
	}

	var cands []candidate
	for _, m := range p.matchers {
		cands = append(cands, m(text)...)
	}
	if len(cands) == 0 {
		return nil
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].start != cands[j].start {
			return cands[i].start < cands[j].start
		}
		return cands[i].end-cands[i].start > cands[j].end-cands[j].start
	})

	refs := make([]model.PageReference, 0, len(cands))
	lastEnd := -1
	for _, c := range cands {
		if c.start < lastEnd {
			continue
		}
		ref := normalize(c.ref)
		ref.Confidence = p.score(ref)
		refs = append(refs, ref)
		lastEnd = c.end
	}
	return refs
}

// normalize enforces the EndPage >= StartPage invariant.
func normalize(r model.PageReference) model.PageReference {
	if r.StartPage < 1 {
		r.StartPage = 1
	}
	if r.EndPage < r.StartPage {
		r.EndPage = r.StartPage
	}
	return r
}

func (p *Parser) score(r model.PageReference) float64 {
	conf := p.weights.Base
	if r.HasHint() {
		conf += p.weights.HintBonus
	}
	if r.StartPage > 1 || r.IsRange() {
		conf += p.weights.PageBonus
	}
	if r.Kind == model.KindBracketed {
		conf += p.weights.BracketBonus
	}
	if len(r.FullMatch) < shortMatchLen {
		conf -= p.weights.ShortPenalty
	}
	if conf < p.weights.Min {
		conf = p.weights.Min
	}
	if conf > p.weights.Max {
		conf = p.weights.Max
	}
	return conf
}

var (
	// "pp. 51-65", "p. 12", "page 7", "pages 3-5"
	plainPageRe = regexp.MustCompile(`(?i)\b(?:pp?\.\s*|pages?\s+)(\d+)(?:\s*-\s*(\d+))?`)

	// "manual.pdf", "notes_v2.docx"
	bareFilenameRe = regexp.MustCompile(`(?i)\b[\w][\w-]*(?:\.[\w-]+)*\.(?:pdf|docx?|txt|md)\b`)

	// "WP 123 ... p. 15-17" — work-procedure number, then a page reference.
	workProcedureRe = regexp.MustCompile(`(?i)\bWP\s+(\d+)\b.*?\bpp?\.\s*(\d+)(?:\s*-\s*(\d+))?`)

	// "[1, pp. 22-31]", "[2] pp. 5-9", "[1] (pp. 10-12)", bare "[3]"
	bracketedRe = regexp.MustCompile(`\[\s*(\d+)\s*(?:,\s*pp?\.\s*(\d+)\s*-\s*(\d+)\s*)?\]\s*(?:\(\s*pp?\.\s*(\d+)\s*-\s*(\d+)\s*\)|pp?\.\s*(\d+)\s*-\s*(\d+))?`)
)

func matchPlainPage(text string) []candidate {
	var out []candidate
	for _, m := range plainPageRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		startPage := atoiGroup(text, m, 1)
		endPage := atoiGroup(text, m, 2)
		out = append(out, candidate{
			start: start,
			end:   end,
			ref: model.PageReference{
				StartPage: startPage,
				EndPage:   endPage,
				FullMatch: text[start:end],
				MatchPos:  start,
				Kind:      model.KindPlainPage,
			},
		})
	}
	return out
}

func matchBareFilename(text string) []candidate {
	var out []candidate
	for _, m := range bareFilenameRe.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		name := text[start:end]
		out = append(out, candidate{
			start: start,
			end:   end,
			ref: model.PageReference{
				StartPage:    1,
				EndPage:      1,
				FullMatch:    name,
				DocumentHint: name,
				MatchPos:     start,
				Kind:         model.KindBareFilename,
			},
		})
	}
	return out
}

func matchWorkProcedure(text string) []candidate {
	var out []candidate
	for _, m := range workProcedureRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		wpNum := groupText(text, m, 1)
		startPage := atoiGroup(text, m, 2)
		endPage := atoiGroup(text, m, 3)
		out = append(out, candidate{
			start: start,
			end:   end,
			ref: model.PageReference{
				StartPage:    startPage,
				EndPage:      endPage,
				FullMatch:    text[start:end],
				DocumentHint: "WP " + wpNum,
				MatchPos:     start,
				Kind:         model.KindWorkProcedure,
			},
		})
	}
	return out
}

func matchBracketed(text string) []candidate {
	var out []candidate
	for _, m := range bracketedRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		refNum := groupText(text, m, 1)

		// The page range can sit inside the brackets, in parentheses after
		// them, or bare after them. A bare "[K]" defaults to page 1.
		startPage, endPage := 1, 1
		for _, g := range []int{2, 4, 6} {
			if s := atoiGroup(text, m, g); s > 0 {
				startPage = s
				endPage = atoiGroup(text, m, g+1)
				break
			}
		}

		out = append(out, candidate{
			start: start,
			end:   end,
			ref: model.PageReference{
				StartPage:    startPage,
				EndPage:      endPage,
				FullMatch:    strings.TrimSpace(text[start:end]),
				DocumentHint: "Reference " + refNum,
				MatchPos:     start,
				Kind:         model.KindBracketed,
			},
		})
	}
	return out
}

// groupText returns submatch group g of a FindAllStringSubmatchIndex match,
// or "" when the group did not participate.
func groupText(text string, m []int, g int) string {
	lo, hi := m[2*g], m[2*g+1]
	if lo < 0 || hi < 0 {
		return ""
	}
	return text[lo:hi]
}

func atoiGroup(text string, m []int, g int) int {
	s := groupText(text, m, g)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
