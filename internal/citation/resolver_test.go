package citation

import (
	"testing"

	"github.com/sells-group/docref/internal/model"
)

func pageRef(hint string, start, end int, conf float64) model.PageReference {
	return model.PageReference{
		StartPage:    start,
		EndPage:      end,
		DocumentHint: hint,
		Confidence:   conf,
	}
}

func TestResolve_MergesAdjacentRanges(t *testing.T) {
	r := NewResolver(NewMatcher())
	known := docs("manual.pdf")

	// Gap of 2 pages (55 -> 57): merge into one 51-60 context.
	refs := []model.PageReference{
		pageRef("manual.pdf", 51, 55, 0.8),
		pageRef("manual.pdf", 57, 60, 0.7),
	}
	ctxs := r.Resolve(refs, known)
	if len(ctxs) != 1 {
		t.Fatalf("expected 1 merged context, got %d: %+v", len(ctxs), ctxs)
	}
	if ctxs[0].StartPage != 51 || ctxs[0].EndPage != 60 {
		t.Errorf("expected merged range (51,60), got (%d,%d)", ctxs[0].StartPage, ctxs[0].EndPage)
	}
	if ctxs[0].Confidence != 0.8 {
		t.Errorf("expected merged confidence 0.8, got %.2f", ctxs[0].Confidence)
	}
}

func TestResolve_DoesNotMergeDistantRanges(t *testing.T) {
	r := NewResolver(NewMatcher())
	known := docs("manual.pdf")

	// Gap of 5 pages (55 -> 60): stays split.
	refs := []model.PageReference{
		pageRef("manual.pdf", 51, 55, 0.8),
		pageRef("manual.pdf", 60, 65, 0.7),
	}
	ctxs := r.Resolve(refs, known)
	if len(ctxs) != 2 {
		t.Fatalf("expected 2 contexts, got %d: %+v", len(ctxs), ctxs)
	}
}

func TestResolve_DropsUnresolvedReferences(t *testing.T) {
	r := NewResolver(NewMatcher())
	known := docs("a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf", "f.pdf")

	refs := []model.PageReference{
		pageRef("a.pdf", 3, 4, 0.8),
		pageRef("", 7, 8, 0.6), // no hint, large set: unresolvable
	}
	ctxs := r.Resolve(refs, known)
	if len(ctxs) != 1 {
		t.Fatalf("expected 1 context, got %d: %+v", len(ctxs), ctxs)
	}
	if ctxs[0].DocumentName != "a.pdf" {
		t.Errorf("expected a.pdf context, got %s", ctxs[0].DocumentName)
	}
}

func TestResolve_OrderedByDescendingConfidence(t *testing.T) {
	r := NewResolver(NewMatcher())
	known := docs("low.pdf", "high.pdf", "mid.pdf", "other.txt", "more.txt", "extra.txt")

	refs := []model.PageReference{
		pageRef("low.pdf", 2, 3, 0.4),
		pageRef("high.pdf", 5, 6, 0.9),
		pageRef("mid.pdf", 8, 9, 0.6),
	}
	ctxs := r.Resolve(refs, known)
	if len(ctxs) != 3 {
		t.Fatalf("expected 3 contexts, got %d", len(ctxs))
	}
	for i := 1; i < len(ctxs); i++ {
		if ctxs[i].Confidence > ctxs[i-1].Confidence {
			t.Errorf("contexts out of order at %d: %.2f > %.2f", i, ctxs[i].Confidence, ctxs[i-1].Confidence)
		}
	}
}

func TestResolve_SearchHintStripsBoilerplate(t *testing.T) {
	r := NewResolver(NewMatcher())
	known := docs("manual.pdf")

	refs := []model.PageReference{
		// "Reference 1" strips to nothing and is discarded.
		pageRef("Reference 1", 3, 4, 0.8),
		// Filename hints survive, de-duplicated.
		pageRef("manual.pdf", 5, 6, 0.7),
		pageRef("manual.pdf", 7, 8, 0.7),
	}
	ctxs := r.Resolve(refs, known)
	if len(ctxs) != 1 {
		t.Fatalf("expected 1 merged context, got %d: %+v", len(ctxs), ctxs)
	}
	if ctxs[0].SearchHint != "manual.pdf" {
		t.Errorf("expected search hint %q, got %q", "manual.pdf", ctxs[0].SearchHint)
	}
}

func TestResolve_UsesSignedURLWhenPresent(t *testing.T) {
	r := NewResolver(NewMatcher())
	known := docs("manual.pdf")
	known[0].SignedURL = "https://files.example.com/manual.pdf?sig=abc"

	ctxs := r.Resolve([]model.PageReference{pageRef("manual.pdf", 2, 3, 0.8)}, known)
	if len(ctxs) != 1 {
		t.Fatalf("expected 1 context, got %d", len(ctxs))
	}
	if ctxs[0].DocumentURL != known[0].SignedURL {
		t.Errorf("expected signed URL, got %q", ctxs[0].DocumentURL)
	}
}

func TestShouldAutoShow(t *testing.T) {
	r := NewResolver(NewMatcher())

	tests := []struct {
		name string
		ctx  model.DocumentPreviewContext
		want bool
	}{
		{"confident with real range", model.DocumentPreviewContext{StartPage: 18, EndPage: 25, Confidence: 0.9}, true},
		{"confident single deep page", model.DocumentPreviewContext{StartPage: 7, EndPage: 7, Confidence: 0.8}, true},
		{"low confidence", model.DocumentPreviewContext{StartPage: 18, EndPage: 25, Confidence: 0.5}, false},
		{"default first page", model.DocumentPreviewContext{StartPage: 1, EndPage: 1, Confidence: 0.9}, false},
		{"exactly at threshold", model.DocumentPreviewContext{StartPage: 3, EndPage: 4, Confidence: 0.7}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.ShouldAutoShow(tt.ctx); got != tt.want {
				t.Errorf("ShouldAutoShow = %v, want %v", got, tt.want)
			}
		})
	}
}
