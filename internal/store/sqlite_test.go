package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docref/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testRecord(documentID string, outcome model.RetrievalOutcome) model.RetrievalRecord {
	return model.RetrievalRecord{
		ID:         uuid.New().String(),
		DocumentID: documentID,
		Source:     "signed_url",
		Bytes:      1024,
		DurationMS: 42,
		Outcome:    outcome,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestSQLite_RecordAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := testRecord("doc-1", model.RetrievalFetched)
	require.NoError(t, st.RecordRetrieval(ctx, rec))

	recs, err := st.ListRetrievals(ctx, RetrievalFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rec.ID, recs[0].ID)
	assert.Equal(t, "signed_url", recs[0].Source)
	assert.Equal(t, int64(1024), recs[0].Bytes)
	assert.Equal(t, model.RetrievalFetched, recs[0].Outcome)
	assert.Empty(t, recs[0].Error)
}

func TestSQLite_ListFilters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.RecordRetrieval(ctx, testRecord("doc-1", model.RetrievalFetched)))
	require.NoError(t, st.RecordRetrieval(ctx, testRecord("doc-1", model.RetrievalHit)))
	require.NoError(t, st.RecordRetrieval(ctx, testRecord("doc-2", model.RetrievalExhausted)))

	byDoc, err := st.ListRetrievals(ctx, RetrievalFilter{DocumentID: "doc-1"})
	require.NoError(t, err)
	assert.Len(t, byDoc, 2)

	byOutcome, err := st.ListRetrievals(ctx, RetrievalFilter{Outcome: model.RetrievalExhausted})
	require.NoError(t, err)
	require.Len(t, byOutcome, 1)
	assert.Equal(t, "doc-2", byOutcome[0].DocumentID)

	limited, err := st.ListRetrievals(ctx, RetrievalFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_ErrorColumnRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := testRecord("doc-3", model.RetrievalExhausted)
	rec.Source = ""
	rec.Bytes = 0
	rec.Error = "all retrieval sources exhausted"
	require.NoError(t, st.RecordRetrieval(ctx, rec))

	recs, err := st.ListRetrievals(ctx, RetrievalFilter{DocumentID: "doc-3"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "all retrieval sources exhausted", recs[0].Error)
}

func TestSQLite_RetrievalStats(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.RecordRetrieval(ctx, testRecord("doc-1", model.RetrievalFetched)))
	require.NoError(t, st.RecordRetrieval(ctx, testRecord("doc-1", model.RetrievalHit)))
	require.NoError(t, st.RecordRetrieval(ctx, testRecord("doc-2", model.RetrievalHit)))
	require.NoError(t, st.RecordRetrieval(ctx, testRecord("doc-3", model.RetrievalExhausted)))

	stats, err := st.RetrievalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalRetrievals)
	assert.Equal(t, int64(2), stats.CacheHits)
	assert.Equal(t, int64(1), stats.Fetched)
	assert.Equal(t, int64(1), stats.Exhausted)
	assert.Equal(t, int64(4096), stats.TotalBytes)
}

func TestSQLite_StatsEmpty(t *testing.T) {
	st := newTestSQLiteStore(t)

	stats, err := st.RetrievalStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalRetrievals)
	assert.Equal(t, int64(0), stats.TotalBytes)
}
