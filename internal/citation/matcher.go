package citation

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/docref/internal/model"
)

// documentExtensions are the filename extensions treated as document files.
var documentExtensions = []string{".pdf", ".doc", ".docx", ".txt", ".md"}

// maxFallbackSetSize bounds the no-hint last-resort fallback: with this many
// known documents or more, guessing the first one is no longer defensible.
const maxFallbackSetSize = 5

var ordinalHintRe = regexp.MustCompile(`^Reference\s+(\d+)$`)

// Matcher resolves a parsed reference to one document out of a known set.
// Match is a pure function of its inputs: no state, no I/O.
type Matcher struct{}

// NewMatcher creates a file matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Match tries an ordered fallback of strategies and returns the first
// matching document. A false return is a non-fatal outcome: callers render
// the reference as plain text.
//
// Ordinal resolution (strategy 3) depends on the alphabetical order of the
// known set lining up with the numbering the upstream assistant assigned.
// That holds while the document set is stable but is fragile under renames
// and additions; treat low-confidence ordinal matches accordingly.
func (m *Matcher) Match(ref model.PageReference, known []model.KnownDocument) (model.KnownDocument, bool) {
	if len(known) == 0 {
		return model.KnownDocument{}, false
	}

	hint := strings.TrimSpace(ref.DocumentHint)

	if hint != "" {
		// Strategy 1: exact case-insensitive name match.
		for _, d := range known {
			if strings.EqualFold(d.Name, hint) {
				return d, true
			}
		}

		// Strategy 2: case-insensitive substring containment, either direction.
		lowHint := strings.ToLower(hint)
		for _, d := range known {
			lowName := strings.ToLower(d.Name)
			if strings.Contains(lowName, lowHint) || strings.Contains(lowHint, lowName) {
				return d, true
			}
		}

		// Strategy 3: ordinal "Reference N" against the alphabetical order.
		if g := ordinalHintRe.FindStringSubmatch(hint); g != nil {
			n, err := strconv.Atoi(g[1])
			if err == nil && n >= 1 {
				byName := sortedByName(known)
				if n <= len(byName) {
					return byName[n-1], true
				}
			}
		}
	}

	// Strategy 4: a single document with a recognized extension in the
	// whole known set is an unambiguous target.
	if sole, ok := soleDocumentFile(known); ok {
		return sole, true
	}

	// Strategy 5: no hint and a small set of eligible documents — take the
	// alphabetical first as a last resort.
	if hint == "" {
		eligible := make([]model.KnownDocument, 0, len(known))
		for _, d := range known {
			if d.Retrievable() {
				eligible = append(eligible, d)
			}
		}
		if len(eligible) > 0 && len(eligible) < maxFallbackSetSize {
			return sortedByName(eligible)[0], true
		}
	}

	return model.KnownDocument{}, false
}

func sortedByName(docs []model.KnownDocument) []model.KnownDocument {
	out := make([]model.KnownDocument, len(docs))
	copy(out, docs)
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

func soleDocumentFile(known []model.KnownDocument) (model.KnownDocument, bool) {
	var found model.KnownDocument
	count := 0
	for _, d := range known {
		if hasDocumentExtension(d.Name) {
			found = d
			count++
		}
	}
	return found, count == 1
}

func hasDocumentExtension(name string) bool {
	low := strings.ToLower(name)
	for _, ext := range documentExtensions {
		if strings.HasSuffix(low, ext) {
			return true
		}
	}
	return false
}
