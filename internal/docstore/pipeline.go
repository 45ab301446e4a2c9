package docstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/docref/internal/model"
	"github.com/sells-group/docref/internal/resilience"
)

// RegistryClient is the upstream boundary the pipeline retrieves through.
type RegistryClient interface {
	GetDocumentMetadata(ctx context.Context, documentID string) (*model.KnownDocument, error)
	GetDocumentBytes(ctx context.Context, signedURL string) ([]byte, error)
	FetchProxy(ctx context.Context, signedURL string) ([]byte, error)
	FetchContentByID(ctx context.Context, documentID string) ([]byte, error)
	RefreshMetadata(ctx context.Context, documentID string) (*model.KnownDocument, error)
}

// AuditStore records how each retrieval ended. Implementations must treat
// writes as best-effort; the pipeline logs and swallows audit failures.
type AuditStore interface {
	RecordRetrieval(ctx context.Context, rec model.RetrievalRecord) error
}

// Pipeline retrieves document bytes through the tiered chain: disk cache,
// signed URL, then the ordered alternative sources. Concurrent retrievals
// of the same document ID are coalesced into one underlying fetch.
type Pipeline struct {
	disk     *DiskCache
	registry RegistryClient
	audit    AuditStore // optional

	flight singleflight.Group
}

// NewPipeline creates a retrieval pipeline. audit may be nil.
func NewPipeline(disk *DiskCache, registry RegistryClient, audit AuditStore) *Pipeline {
	return &Pipeline{disk: disk, registry: registry, audit: audit}
}

// Retrieve returns the document's bytes. Steps run strictly in order, each
// attempted only if the previous failed; the first success is written
// through to the disk cache. When every source fails the result is a
// terminal ExhaustedError carrying troubleshooting guidance.
func (p *Pipeline) Retrieve(ctx context.Context, documentID string) ([]byte, error) {
	v, err, shared := p.flight.Do(documentID, func() (any, error) {
		return p.retrieve(ctx, documentID)
	})
	if shared {
		zap.L().Debug("docstore: retrieval coalesced with in-flight request",
			zap.String("document_id", documentID),
		)
	}
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (p *Pipeline) retrieve(ctx context.Context, documentID string) ([]byte, error) {
	log := zap.L().With(zap.String("document_id", documentID))
	start := time.Now()

	// Step 1: disk cache, no network.
	if data, ok := p.disk.Read(documentID); ok {
		log.Debug("docstore: disk cache hit", zap.Int("bytes", len(data)))
		p.record(ctx, documentID, "disk_cache", int64(len(data)), start, model.RetrievalHit, nil)
		return data, nil
	}

	// Step 2: document metadata (name, signed URL, status).
	meta, metaErr := p.registry.GetDocumentMetadata(ctx, documentID)
	if metaErr != nil {
		log.Warn("docstore: metadata fetch failed, falling back", zap.Error(metaErr))
	}

	name := documentID
	signedURL := ""
	if meta != nil {
		if meta.Name != "" {
			name = meta.Name
		}
		signedURL = meta.SignedURL
	}

	var lastErr error = metaErr

	// Step 3: direct signed-URL fetch.
	if signedURL != "" {
		data, err := p.registry.GetDocumentBytes(ctx, signedURL)
		if err == nil && len(data) > 0 {
			p.finish(ctx, log, documentID, name, "signed_url", data, start)
			return data, nil
		}
		if err != nil {
			log.Warn("docstore: signed url fetch failed, trying alternatives", zap.Error(err))
			lastErr = err
		}
	}

	// Step 4: ordered alternative sources.
	for _, src := range p.sources(documentID, signedURL) {
		data, err := src.fetch(ctx)
		if err != nil {
			log.Warn("docstore: alternative source failed",
				zap.String("source", src.name),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		if len(data) == 0 {
			continue
		}
		p.finish(ctx, log, documentID, name, src.name, data, start)
		return data, nil
	}

	// Step 5: everything failed.
	exhausted := resilience.NewExhaustedError(documentID, lastErr)
	log.Error("docstore: all retrieval sources exhausted",
		zap.Error(lastErr),
		zap.Strings("guidance", exhausted.Guidance),
	)
	p.record(ctx, documentID, "", 0, start, model.RetrievalExhausted, exhausted)
	return nil, exhausted
}

type source struct {
	name  string
	fetch func(ctx context.Context) ([]byte, error)
}

func (p *Pipeline) sources(documentID, signedURL string) []source {
	var out []source
	if signedURL != "" {
		out = append(out, source{
			name: "proxy",
			fetch: func(ctx context.Context) ([]byte, error) {
				return p.registry.FetchProxy(ctx, signedURL)
			},
		})
	}
	out = append(out,
		source{
			name: "content_by_id",
			fetch: func(ctx context.Context) ([]byte, error) {
				return p.registry.FetchContentByID(ctx, documentID)
			},
		},
		source{
			name: "metadata_refresh",
			fetch: func(ctx context.Context) ([]byte, error) {
				meta, err := p.registry.RefreshMetadata(ctx, documentID)
				if err != nil {
					return nil, err
				}
				if meta.SignedURL == "" {
					return nil, resilience.NewExhaustedError(documentID, nil)
				}
				return p.registry.GetDocumentBytes(ctx, meta.SignedURL)
			},
		},
	)
	return out
}

// finish writes through to the disk cache and records the retrieval. Cache
// write failures are logged and swallowed: the bytes are still returned.
func (p *Pipeline) finish(ctx context.Context, log *zap.Logger, documentID, name, src string, data []byte, start time.Time) {
	if err := p.disk.Write(documentID, name, data); err != nil {
		log.Warn("docstore: cache write failed; returning bytes anyway", zap.Error(err))
	}
	log.Info("docstore: document retrieved",
		zap.String("source", src),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)),
	)
	p.record(ctx, documentID, src, int64(len(data)), start, model.RetrievalFetched, nil)
}

func (p *Pipeline) record(ctx context.Context, documentID, src string, size int64, start time.Time, outcome model.RetrievalOutcome, cause error) {
	if p.audit == nil {
		return
	}
	rec := model.RetrievalRecord{
		ID:         uuid.New().String(),
		DocumentID: documentID,
		Source:     src,
		Bytes:      size,
		DurationMS: time.Since(start).Milliseconds(),
		Outcome:    outcome,
		CreatedAt:  time.Now().UTC(),
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	if err := p.audit.RecordRetrieval(ctx, rec); err != nil {
		zap.L().Warn("docstore: audit write failed", zap.Error(err))
	}
}
