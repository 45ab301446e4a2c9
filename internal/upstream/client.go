// Package upstream provides the outbound HTTP client for the file registry:
// timeouts, bounded retries, read-through response caching, and the circuit
// breaker gate in front of every call.
package upstream

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/docref/internal/memcache"
	"github.com/sells-group/docref/internal/resilience"
)

// StatusError is a non-transient HTTP failure from the upstream registry,
// propagated to the caller after retries are exhausted (or immediately for
// statuses that are not worth retrying).
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.Status, e.URL)
}

// Options configures a single request. Zero values fall back to the
// client's defaults.
type Options struct {
	Method  string
	Body    []byte
	Header  http.Header
	Timeout time.Duration

	// Retries is the number of additional attempts after the first failure.
	// Timeouts are never retried.
	Retries int
	// RetryDelay is the base backoff; the delay doubles per attempt.
	RetryDelay time.Duration

	// UseCache serves the response from the memory cache when present and
	// stores successful 200 responses with CacheTTL.
	UseCache bool
	CacheTTL time.Duration
}

// Response is the outcome of a successful request.
type Response struct {
	Data   []byte
	Status int
	Cached bool
}

// ClientConfig configures the upstream client.
type ClientConfig struct {
	UserAgent      string
	DefaultTimeout time.Duration // default 8s
	DefaultRetries int           // default 2
	RetryDelay     time.Duration // default 500ms
	CacheTTL       time.Duration // default 30s
	RateLimit      rate.Limit    // per-host, default 20/s
	RateBurst      int           // default 20
}

// Client issues requests to the upstream registry. Every attempt is gated
// by the connection health monitor and feeds its metrics.
type Client struct {
	http    *http.Client
	cfg     ClientConfig
	monitor *resilience.Monitor
	cache   *memcache.Cache[Response]

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient creates an upstream client using the given health monitor and
// response cache.
func NewClient(cfg ClientConfig, monitor *resilience.Monitor, cache *memcache.Cache[Response]) *Client {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 8 * time.Second
	}
	if cfg.DefaultRetries <= 0 {
		cfg.DefaultRetries = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "docref/1.0"
	}
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg:      cfg,
		monitor:  monitor,
		cache:    cache,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Request performs one upstream call with timeout, retries and optional
// read-through caching. Returns ErrCircuitOpen without attempting the call
// when the circuit breaker is open.
func (c *Client) Request(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	if opts.Timeout <= 0 {
		opts.Timeout = c.cfg.DefaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = c.cfg.RetryDelay
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = c.cfg.CacheTTL
	}

	key := cacheKey(opts.Method, rawURL, opts.Body)
	if opts.UseCache {
		if resp, ok := c.cache.Get(key); ok {
			resp.Cached = true
			return &resp, nil
		}
	}

	retryCfg := resilience.RetryConfig{
		MaxAttempts:    opts.Retries + 1,
		InitialBackoff: opts.RetryDelay,
		Multiplier:     2.0,
		JitterFraction: 0,
		OnRetry:        resilience.RetryLogger("registry", opts.Method+" "+rawURL),
	}

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*Response, error) {
		return c.attempt(ctx, rawURL, opts)
	})
	if err != nil {
		return nil, err
	}

	if opts.UseCache && resp.Status == http.StatusOK {
		c.cache.SetTTL(key, *resp, opts.CacheTTL)
	}
	return resp, nil
}

// attempt performs a single HTTP exchange and records its outcome with the
// health monitor. The circuit breaker is consulted before every attempt;
// ErrCircuitOpen is not transient, so it also stops any retry loop.
func (c *Client) attempt(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	if !c.monitor.Allow() {
		return nil, resilience.ErrCircuitOpen
	}

	if err := c.limiterFor(rawURL).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "upstream: rate limiter wait")
	}

	callCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var body io.Reader
	if len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(callCtx, opts.Method, rawURL, body)
	if err != nil {
		return nil, eris.Wrap(err, "upstream: create request")
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	c.monitor.RecordAttempt()
	start := time.Now()

	httpResp, err := c.http.Do(req)
	if err != nil {
		// Our own deadline produces a distinct, non-retried timeout error.
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			c.monitor.RecordFailure("timeout: " + rawURL)
			return nil, &resilience.TimeoutError{Operation: opts.Method + " " + rawURL, Err: err}
		}
		c.monitor.RecordFailure(err.Error())
		return nil, resilience.NewTransientError(eris.Wrap(err, "upstream: request"), 0)
	}
	defer httpResp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.monitor.RecordFailure("read body: " + err.Error())
		return nil, resilience.NewTransientError(eris.Wrap(err, "upstream: read body"), 0)
	}

	if resilience.IsTransientHTTPStatus(httpResp.StatusCode) {
		c.monitor.RecordFailure(fmt.Sprintf("http %d from %s", httpResp.StatusCode, rawURL))
		return nil, resilience.NewTransientError(&StatusError{Status: httpResp.StatusCode, URL: rawURL}, httpResp.StatusCode)
	}
	if httpResp.StatusCode >= 400 {
		c.monitor.RecordFailure(fmt.Sprintf("http %d from %s", httpResp.StatusCode, rawURL))
		return nil, &StatusError{Status: httpResp.StatusCode, URL: rawURL}
	}

	c.monitor.RecordSuccess(time.Since(start))
	return &Response{Data: data, Status: httpResp.StatusCode}, nil
}

// BatchResult pairs one batch input with its outcome. Output order matches
// input order.
type BatchResult struct {
	URL      string
	Response *Response
	Err      error
}

// BatchRequest is one entry in a Batch call.
type BatchRequest struct {
	URL     string
	Options Options
}

// Batch runs the requests with at most concurrency in flight, collecting a
// result or error per input.
func (c *Client) Batch(ctx context.Context, reqs []BatchRequest, concurrency int) []BatchResult {
	if concurrency <= 0 {
		concurrency = 4
	}

	results := make([]BatchResult, len(reqs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			resp, err := c.Request(gCtx, req.URL, req.Options)
			results[i] = BatchResult{URL: req.URL, Response: resp, Err: err}
			// Individual failures are per-result, never batch-fatal.
			return nil
		})
	}
	_ = g.Wait()

	if n := failures(results); n > 0 {
		zap.L().Debug("upstream: batch completed with failures",
			zap.Int("total", len(reqs)),
			zap.Int("failed", n),
		)
	}
	return results
}

func failures(results []BatchResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

func (c *Client) limiterFor(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	c.limMu.Lock()
	defer c.limMu.Unlock()
	if lim, ok := c.limiters[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(c.cfg.RateLimit, c.cfg.RateBurst)
	c.limiters[host] = lim
	return lim
}

func cacheKey(method, rawURL string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(rawURL))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)[:16])
}
