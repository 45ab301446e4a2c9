package model

// SourceKind identifies which citation form produced a page reference.
// The set is closed: the parser validates at its boundary and never emits
// a reference without a kind.
type SourceKind string

const (
	// KindPlainPage covers bare "p. 12" / "pages 3-5" forms with no document hint.
	KindPlainPage SourceKind = "plain_page"
	// KindBareFilename covers a filename mentioned inline, e.g. "manual.pdf".
	KindBareFilename SourceKind = "bare_filename"
	// KindWorkProcedure covers "WP 123 ... p. 15" work-procedure citations.
	KindWorkProcedure SourceKind = "work_procedure"
	// KindBracketed covers numbered bracket citations like "[1, pp. 22-31]".
	KindBracketed SourceKind = "bracketed"
)

// PageReference is a single parsed citation span. Immutable once created.
// EndPage >= StartPage always; the parser normalizes inverted or missing
// end pages to StartPage.
type PageReference struct {
	StartPage    int        `json:"start_page"`
	EndPage      int        `json:"end_page"`
	FullMatch    string     `json:"full_match"`
	DocumentHint string     `json:"document_hint,omitempty"`
	MatchPos     int        `json:"match_pos"`
	Confidence   float64    `json:"confidence"`
	Kind         SourceKind `json:"kind"`
}

// HasHint reports whether the reference carries a document hint.
func (r PageReference) HasHint() bool {
	return r.DocumentHint != ""
}

// IsRange reports whether the reference spans more than one page.
func (r PageReference) IsRange() bool {
	return r.EndPage > r.StartPage
}

// DocumentPreviewContext is a resolved, merged citation ready for the
// presentation layer. It only exists when a reference resolved to a
// concrete known document.
type DocumentPreviewContext struct {
	DocumentName string  `json:"document_name"`
	StartPage    int     `json:"start_page"`
	EndPage      int     `json:"end_page"`
	SearchHint   string  `json:"search_hint,omitempty"`
	DocumentURL  string  `json:"document_url,omitempty"`
	Confidence   float64 `json:"confidence"`
}
