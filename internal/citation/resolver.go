package citation

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/docref/internal/model"
)

// mergeGapPages is the largest page gap between two ranges that still
// collapses them into one wider range.
const mergeGapPages = 2

// autoShowThreshold is the confidence above which a context is shown
// without user interaction.
const autoShowThreshold = 0.7

// minHintFragmentLen drops search-hint fragments too short to be useful.
const minHintFragmentLen = 3

var hintBoilerplateRe = regexp.MustCompile(`(?i)^(?:Reference|WP)\s+\d+\s*`)

// Resolver pairs parsed references with the file matcher and merges them
// into document preview contexts.
type Resolver struct {
	matcher *Matcher
}

// NewResolver creates a range resolver using the given file matcher.
func NewResolver(matcher *Matcher) *Resolver {
	return &Resolver{matcher: matcher}
}

// resolvedGroup collects the references that matched one document.
type resolvedGroup struct {
	doc  model.KnownDocument
	refs []model.PageReference
}

// Resolve matches each reference to a known document, merges adjacent page
// ranges per document, and returns preview contexts ordered by descending
// confidence. References that resolve to no document are dropped; the
// caller renders them as plain text.
func (r *Resolver) Resolve(refs []model.PageReference, known []model.KnownDocument) []model.DocumentPreviewContext {
	groups := make(map[string]*resolvedGroup)
	var order []string

	for _, ref := range refs {
		doc, ok := r.matcher.Match(ref, known)
		if !ok {
			continue
		}
		g, exists := groups[doc.ID]
		if !exists {
			g = &resolvedGroup{doc: doc}
			groups[doc.ID] = g
			order = append(order, doc.ID)
		}
		g.refs = append(g.refs, ref)
	}

	var out []model.DocumentPreviewContext
	for _, id := range order {
		g := groups[id]
		out = append(out, mergeGroup(g.doc, g.refs)...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// ShouldAutoShow reports whether the context is confident enough, and
// specific enough, to open without user interaction. A default single
// first page carries no real target and never auto-shows.
func (r *Resolver) ShouldAutoShow(ctx model.DocumentPreviewContext) bool {
	if ctx.Confidence <= autoShowThreshold {
		return false
	}
	return !(ctx.StartPage == 1 && ctx.EndPage == 1)
}

// mergeGroup sorts one document's references by start page and collapses
// ranges whose gap is at most mergeGapPages. Each surviving range becomes
// its own context.
func mergeGroup(doc model.KnownDocument, refs []model.PageReference) []model.DocumentPreviewContext {
	sorted := make([]model.PageReference, len(refs))
	copy(sorted, refs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartPage < sorted[j].StartPage
	})

	type span struct {
		start, end int
		confidence float64
		members    []model.PageReference
	}

	var spans []span
	for _, ref := range sorted {
		if len(spans) > 0 {
			last := &spans[len(spans)-1]
			if ref.StartPage-last.end <= mergeGapPages {
				if ref.EndPage > last.end {
					last.end = ref.EndPage
				}
				if ref.Confidence > last.confidence {
					last.confidence = ref.Confidence
				}
				last.members = append(last.members, ref)
				continue
			}
		}
		spans = append(spans, span{
			start:      ref.StartPage,
			end:        ref.EndPage,
			confidence: ref.Confidence,
			members:    []model.PageReference{ref},
		})
	}

	out := make([]model.DocumentPreviewContext, 0, len(spans))
	for _, s := range spans {
		out = append(out, model.DocumentPreviewContext{
			DocumentName: doc.Name,
			StartPage:    s.start,
			EndPage:      s.end,
			SearchHint:   searchHint(s.members),
			DocumentURL:  documentURL(doc),
			Confidence:   s.confidence,
		})
	}
	return out
}

// searchHint builds the de-duplicated concatenation of the constituent
// references' hint text, with "Reference N" / "WP N" boilerplate stripped
// and fragments shorter than minHintFragmentLen discarded.
func searchHint(refs []model.PageReference) string {
	seen := make(map[string]bool)
	var parts []string
	for _, ref := range refs {
		frag := strings.TrimSpace(hintBoilerplateRe.ReplaceAllString(ref.DocumentHint, ""))
		if len(frag) < minHintFragmentLen {
			continue
		}
		key := strings.ToLower(frag)
		if seen[key] {
			continue
		}
		seen[key] = true
		parts = append(parts, frag)
	}
	return strings.Join(parts, " ")
}

func documentURL(doc model.KnownDocument) string {
	if doc.SignedURL != "" {
		return doc.SignedURL
	}
	return "/documents/" + doc.ID
}
