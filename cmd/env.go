package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/docref/internal/citation"
	"github.com/sells-group/docref/internal/docstore"
	"github.com/sells-group/docref/internal/memcache"
	"github.com/sells-group/docref/internal/model"
	"github.com/sells-group/docref/internal/resilience"
	"github.com/sells-group/docref/internal/store"
	"github.com/sells-group/docref/internal/upstream"
)

// docLister is the slice of the registry the citation endpoints need.
type docLister interface {
	ListDocuments(ctx context.Context) ([]model.KnownDocument, error)
}

// appEnv holds the initialized service graph shared by the serve/parse/
// fetch/cache/retrievals commands.
type appEnv struct {
	Monitor  *resilience.Monitor
	Memory   *memcache.Cache[upstream.Response]
	Disk     *docstore.DiskCache
	Store    store.Store
	Registry docLister
	Pipeline *docstore.Pipeline
	Parser   *citation.Parser
	Matcher  *citation.Matcher
	Resolver *citation.Resolver
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv builds the monitor, caches, upstream client, audit store, and the
// retrieval pipeline from config. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	monitor := resilience.NewMonitor(resilience.MonitorConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     time.Duration(cfg.Breaker.ResetTimeoutSecs) * time.Second,
		OnStateChange: func(from, to resilience.CircuitState) {
			zap.L().Warn("circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	memory := memcache.New[upstream.Response](time.Duration(cfg.Cache.ResponseTTLSecs) * time.Second)

	client := upstream.NewClient(upstream.ClientConfig{
		DefaultTimeout: time.Duration(cfg.Upstream.MetadataTimeoutSecs) * time.Second,
		DefaultRetries: cfg.Upstream.Retries,
		RetryDelay:     time.Duration(cfg.Upstream.RetryDelayMS) * time.Millisecond,
		CacheTTL:       time.Duration(cfg.Cache.ResponseTTLSecs) * time.Second,
		RateLimit:      rate.Limit(cfg.Upstream.RateLimitPerSec),
		RateBurst:      cfg.Upstream.RateBurst,
	}, monitor, memory)

	registry := upstream.NewRegistry(client, upstream.RegistryConfig{
		BaseURL:         cfg.Upstream.BaseURL,
		APIKey:          cfg.Upstream.APIKey,
		MetadataTimeout: time.Duration(cfg.Upstream.MetadataTimeoutSecs) * time.Second,
		DownloadTimeout: time.Duration(cfg.Upstream.DownloadTimeoutSecs) * time.Second,
		MetadataTTL:     time.Duration(cfg.Upstream.MetadataCacheTTLSecs) * time.Second,
	})

	disk, err := docstore.NewDiskCache(cfg.Cache.Dir)
	if err != nil {
		return nil, err
	}

	storePath := cfg.Store.Path
	if storePath == "" {
		storePath = filepath.Join(cfg.Cache.Dir, "retrievals.db")
	}
	st, err := store.NewSQLite(storePath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	matcher := citation.NewMatcher()

	return &appEnv{
		Monitor:  monitor,
		Memory:   memory,
		Disk:     disk,
		Store:    st,
		Registry: registry,
		Pipeline: docstore.NewPipeline(disk, registry, st),
		Parser:   citation.NewParser(cfg.Parser.Confidence),
		Matcher:  matcher,
		Resolver: citation.NewResolver(matcher),
	}, nil
}
