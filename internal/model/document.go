package model

import "time"

// DocumentStatus represents the upstream registry's processing state for a document.
type DocumentStatus string

const (
	DocumentAvailable  DocumentStatus = "available"
	DocumentProcessing DocumentStatus = "processing"
	DocumentError      DocumentStatus = "error"
	DocumentDeleted    DocumentStatus = "deleted"
)

// KnownDocument is a document the upstream file registry knows about.
// Read-only to this service: the registry owns it.
type KnownDocument struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	SizeBytes int64          `json:"size_bytes"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Status    DocumentStatus `json:"status"`
	SignedURL string         `json:"signed_url,omitempty"`
}

// Retrievable reports whether the document is in a state where its bytes
// can be fetched.
func (d KnownDocument) Retrievable() bool {
	return d.Status == DocumentAvailable
}

// RetrievalOutcome classifies how a document retrieval ended.
type RetrievalOutcome string

const (
	RetrievalHit       RetrievalOutcome = "cache_hit"
	RetrievalFetched   RetrievalOutcome = "fetched"
	RetrievalFailed    RetrievalOutcome = "failed"
	RetrievalExhausted RetrievalOutcome = "exhausted"
)

// RetrievalRecord is one audit row describing a retrieval attempt through
// the pipeline: which source finally served the bytes and how long it took.
type RetrievalRecord struct {
	ID         string           `json:"id"`
	DocumentID string           `json:"document_id"`
	Source     string           `json:"source"`
	Bytes      int64            `json:"bytes"`
	DurationMS int64            `json:"duration_ms"`
	Outcome    RetrievalOutcome `json:"outcome"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}
