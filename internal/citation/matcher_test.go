package citation

import (
	"testing"

	"github.com/sells-group/docref/internal/model"
)

func docs(names ...string) []model.KnownDocument {
	out := make([]model.KnownDocument, len(names))
	for i, n := range names {
		out[i] = model.KnownDocument{
			ID:     "doc-" + n,
			Name:   n,
			Status: model.DocumentAvailable,
		}
	}
	return out
}

func hintRef(hint string) model.PageReference {
	return model.PageReference{StartPage: 1, EndPage: 1, DocumentHint: hint}
}

func TestMatch_ExactNameCaseInsensitive(t *testing.T) {
	m := NewMatcher()
	known := docs("Manual.PDF", "other.pdf")

	doc, ok := m.Match(hintRef("manual.pdf"), known)
	if !ok || doc.Name != "Manual.PDF" {
		t.Fatalf("expected exact match on Manual.PDF, got %+v ok=%v", doc, ok)
	}
}

func TestMatch_SubstringEitherDirection(t *testing.T) {
	m := NewMatcher()
	known := docs("safety-manual-2024.pdf", "release-notes.txt")

	// Hint contained in document name.
	doc, ok := m.Match(hintRef("safety-manual"), known)
	if !ok || doc.Name != "safety-manual-2024.pdf" {
		t.Fatalf("expected substring match, got %+v ok=%v", doc, ok)
	}

	// Document name contained in hint.
	doc, ok = m.Match(hintRef("see release-notes.txt for details"), known)
	if !ok || doc.Name != "release-notes.txt" {
		t.Fatalf("expected reverse substring match, got %+v ok=%v", doc, ok)
	}
}

func TestMatch_OrdinalAgainstAlphabeticalOrder(t *testing.T) {
	m := NewMatcher()
	known := docs("B.pdf", "A.pdf", "C.pdf")

	// Alphabetical sort A, B, C: "Reference 2" is index 1.
	doc, ok := m.Match(hintRef("Reference 2"), known)
	if !ok || doc.Name != "B.pdf" {
		t.Fatalf("expected B.pdf for Reference 2, got %+v ok=%v", doc, ok)
	}

	// Out-of-range ordinal with multiple candidates: no match.
	if _, ok := m.Match(hintRef("Reference 9"), known); ok {
		t.Error("expected no match for out-of-range ordinal")
	}
}

func TestMatch_SoleDocumentFallback(t *testing.T) {
	m := NewMatcher()
	known := docs("only-one.pdf")

	// Hint matches nothing by name, but the set has exactly one document file.
	doc, ok := m.Match(hintRef("Reference 1"), known)
	if !ok || doc.Name != "only-one.pdf" {
		t.Fatalf("expected sole document fallback, got %+v ok=%v", doc, ok)
	}

	// An unmatchable hint still lands on the sole document.
	doc, ok = m.Match(hintRef("completely unrelated"), known)
	if !ok || doc.Name != "only-one.pdf" {
		t.Fatalf("expected sole document fallback for unrelated hint, got %+v ok=%v", doc, ok)
	}
}

func TestMatch_NoHintSmallSetFallback(t *testing.T) {
	m := NewMatcher()

	// Fewer than five eligible documents: alphabetical first wins.
	doc, ok := m.Match(hintRef(""), docs("zeta.pdf", "alpha.pdf", "mid.pdf"))
	if !ok || doc.Name != "alpha.pdf" {
		t.Fatalf("expected alpha.pdf fallback, got %+v ok=%v", doc, ok)
	}

	// Five or more: too ambiguous, no match.
	if _, ok := m.Match(hintRef(""), docs("a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf")); ok {
		t.Error("expected no match with five eligible documents and no hint")
	}
}

func TestMatch_IgnoresNonRetrievableInFallback(t *testing.T) {
	m := NewMatcher()
	known := docs("broken.pdf", "good.pdf", "extra.pdf")
	known[0].Status = model.DocumentError

	doc, ok := m.Match(hintRef(""), known)
	if !ok || doc.Name != "extra.pdf" {
		t.Fatalf("expected first eligible alphabetical doc, got %+v ok=%v", doc, ok)
	}
}

func TestMatch_EmptyKnownSet(t *testing.T) {
	m := NewMatcher()
	if _, ok := m.Match(hintRef("anything"), nil); ok {
		t.Error("expected no match against empty set")
	}
}
