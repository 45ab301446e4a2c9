package citation

import (
	"reflect"
	"testing"

	"github.com/sells-group/docref/internal/model"
)

func newTestParser() *Parser {
	return NewParser(DefaultConfidenceWeights())
}

func TestParse_GrammarForms(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		startPage int
		endPage   int
		hint      string
		kind      model.SourceKind
	}{
		{"page range", "pp. 51-65", 51, 65, "", model.KindPlainPage},
		{"single page", "p. 12", 12, 12, "", model.KindPlainPage},
		{"pages word", "pages 3-5", 3, 5, "", model.KindPlainPage},
		{"bare filename", "manual.pdf", 1, 1, "manual.pdf", model.KindBareFilename},
		{"work procedure", "WP 123 p. 15", 15, 15, "WP 123", model.KindWorkProcedure},
		{"work procedure range", "WP 7 describes this, p. 4-6", 4, 6, "WP 7", model.KindWorkProcedure},
		{"bracket with range", "[1, pp. 22-31]", 22, 31, "Reference 1", model.KindBracketed},
		{"bracket then range", "[2] pp. 5-9", 5, 9, "Reference 2", model.KindBracketed},
		{"bracket then parens", "[1] (pp. 10-12)", 10, 12, "Reference 1", model.KindBracketed},
		{"bare bracket", "[3]", 1, 1, "Reference 3", model.KindBracketed},
	}

	p := newTestParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := p.Parse(tt.text)
			if len(refs) != 1 {
				t.Fatalf("expected 1 reference, got %d: %+v", len(refs), refs)
			}
			r := refs[0]
			if r.StartPage != tt.startPage || r.EndPage != tt.endPage {
				t.Errorf("pages = (%d,%d), want (%d,%d)", r.StartPage, r.EndPage, tt.startPage, tt.endPage)
			}
			if r.DocumentHint != tt.hint {
				t.Errorf("hint = %q, want %q", r.DocumentHint, tt.hint)
			}
			if r.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", r.Kind, tt.kind)
			}
		})
	}
}

func TestParse_OrderedByPosition(t *testing.T) {
	p := newTestParser()
	refs := p.Parse("see pp. 4-5 first, then [2] and finally manual.pdf")

	if len(refs) != 3 {
		t.Fatalf("expected 3 references, got %d: %+v", len(refs), refs)
	}
	for i := 1; i < len(refs); i++ {
		if refs[i].MatchPos <= refs[i-1].MatchPos {
			t.Errorf("references out of order at %d: %d <= %d", i, refs[i].MatchPos, refs[i-1].MatchPos)
		}
	}
}

func TestParse_OverlapResolution(t *testing.T) {
	p := newTestParser()

	// The bracketed citation contains a plain "pp. 22-31" span. Only the
	// bracketed match (earliest start) survives.
	refs := p.Parse("see [1, pp. 22-31] for details")
	if len(refs) != 1 {
		t.Fatalf("expected 1 reference after overlap resolution, got %d: %+v", len(refs), refs)
	}
	if refs[0].Kind != model.KindBracketed {
		t.Errorf("expected bracketed match to win, got %s", refs[0].Kind)
	}

	// Same for the work-procedure form containing "p. 15".
	refs = p.Parse("per WP 123 p. 15 the valve closes")
	if len(refs) != 1 {
		t.Fatalf("expected 1 reference, got %d: %+v", len(refs), refs)
	}
	if refs[0].Kind != model.KindWorkProcedure {
		t.Errorf("expected work-procedure match to win, got %s", refs[0].Kind)
	}
}

func TestParse_Idempotent(t *testing.T) {
	p := newTestParser()
	text := "Refer to [1, pp. 18-25] and manual.pdf, also WP 9 p. 3"

	first := p.Parse(text)
	second := p.Parse(text)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("parse not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestParse_NormalizesInvertedRange(t *testing.T) {
	p := newTestParser()
	refs := p.Parse("pp. 30-20")
	if len(refs) != 1 {
		t.Fatalf("expected 1 reference, got %d", len(refs))
	}
	if refs[0].StartPage != 30 || refs[0].EndPage != 30 {
		t.Errorf("expected inverted range normalized to (30,30), got (%d,%d)", refs[0].StartPage, refs[0].EndPage)
	}
}

func TestParse_ConfidenceScoring(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		// base + page bonus
		{"plain range", "pp. 51-65", 0.6},
		// base + page bonus - short penalty ("p. 2" is 4 chars)
		{"short single page", "p. 2", 0.5},
		// base + hint + page + bracket
		{"full bracket", "[1, pp. 18-25]", 0.9},
		// base + hint + bracket - short ("[3]" is 3 chars)
		{"bare bracket", "[3]", 0.7},
		// base + hint
		{"filename", "manual.pdf", 0.7},
	}

	p := newTestParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := p.Parse(tt.text)
			if len(refs) != 1 {
				t.Fatalf("expected 1 reference, got %d", len(refs))
			}
			if diff := refs[0].Confidence - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("confidence = %.2f, want %.2f", refs[0].Confidence, tt.want)
			}
		})
	}
}

func TestParse_NeverFails(t *testing.T) {
	p := newTestParser()
	for _, text := range []string{"", "no citations here", "[]", "pp.", "WP p.", "[abc]"} {
		refs := p.Parse(text)
		if len(refs) != 0 {
			t.Errorf("expected no references for %q, got %+v", text, refs)
		}
	}
}
