package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/docref/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS retrievals (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	bytes       INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	outcome     TEXT NOT NULL,
	error       TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_retrievals_document_id ON retrievals(document_id);
CREATE INDEX IF NOT EXISTS idx_retrievals_outcome ON retrievals(outcome);
CREATE INDEX IF NOT EXISTS idx_retrievals_created_at ON retrievals(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordRetrieval(ctx context.Context, rec model.RetrievalRecord) error {
	var errStr sql.NullString
	if rec.Error != "" {
		errStr = sql.NullString{String: rec.Error, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO retrievals (id, document_id, source, bytes, duration_ms, outcome, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DocumentID, rec.Source, rec.Bytes, rec.DurationMS,
		string(rec.Outcome), errStr, rec.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert retrieval %s", rec.ID)
}

func (s *SQLiteStore) ListRetrievals(ctx context.Context, filter RetrievalFilter) ([]model.RetrievalRecord, error) {
	query := `SELECT id, document_id, source, bytes, duration_ms, outcome, error, created_at
	          FROM retrievals WHERE 1=1`
	var args []any

	if filter.DocumentID != "" {
		query += ` AND document_id = ?`
		args = append(args, filter.DocumentID)
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, string(filter.Outcome))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list retrievals")
	}
	defer rows.Close()

	var recs []model.RetrievalRecord
	for rows.Next() {
		var rec model.RetrievalRecord
		var errStr sql.NullString
		var outcome string
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.Source, &rec.Bytes,
			&rec.DurationMS, &outcome, &errStr, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan retrieval")
		}
		rec.Outcome = model.RetrievalOutcome(outcome)
		rec.Error = errStr.String
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list retrievals iterate")
}

func (s *SQLiteStore) RetrievalStats(ctx context.Context) (*Stats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(bytes), 0)
		FROM retrievals`,
		string(model.RetrievalHit), string(model.RetrievalFetched), string(model.RetrievalExhausted),
	)

	var st Stats
	if err := row.Scan(&st.TotalRetrievals, &st.CacheHits, &st.Fetched, &st.Exhausted, &st.TotalBytes); err != nil {
		return nil, eris.Wrap(err, "sqlite: retrieval stats")
	}
	return &st, nil
}
