// Package store persists the retrieval audit trail: one record per
// document retrieval with its source, size, duration, and outcome.
package store

import (
	"context"

	"github.com/sells-group/docref/internal/model"
)

// RetrievalFilter narrows ListRetrievals.
type RetrievalFilter struct {
	DocumentID string
	Outcome    model.RetrievalOutcome
	Limit      int
	Offset     int
}

// Stats aggregates the audit trail for the operator surface.
type Stats struct {
	TotalRetrievals int64 `json:"total_retrievals"`
	CacheHits       int64 `json:"cache_hits"`
	Fetched         int64 `json:"fetched"`
	Exhausted       int64 `json:"exhausted"`
	TotalBytes      int64 `json:"total_bytes"`
}

// Store is the audit persistence boundary.
type Store interface {
	Migrate(ctx context.Context) error
	RecordRetrieval(ctx context.Context, rec model.RetrievalRecord) error
	ListRetrievals(ctx context.Context, filter RetrievalFilter) ([]model.RetrievalRecord, error)
	RetrievalStats(ctx context.Context) (*Stats, error)
	Close() error
}
