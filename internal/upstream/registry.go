package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docref/internal/model"
)

// RegistryConfig configures the file-registry boundary.
type RegistryConfig struct {
	BaseURL string
	APIKey  string

	// MetadataTimeout bounds metadata and listing calls. Default 8s.
	MetadataTimeout time.Duration
	// DownloadTimeout bounds byte downloads. Default 30s.
	DownloadTimeout time.Duration
	// MetadataTTL is the read-through cache TTL for metadata. Default 15s.
	MetadataTTL time.Duration
}

// Registry is the client for the upstream file registry: document metadata,
// signed-URL byte downloads, and the alternative content endpoints the
// retrieval pipeline falls back to.
type Registry struct {
	client *Client
	cfg    RegistryConfig
}

// NewRegistry creates a registry boundary over the given upstream client.
func NewRegistry(client *Client, cfg RegistryConfig) *Registry {
	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = 8 * time.Second
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 30 * time.Second
	}
	if cfg.MetadataTTL <= 0 {
		cfg.MetadataTTL = 15 * time.Second
	}
	return &Registry{client: client, cfg: cfg}
}

// ListDocuments returns the registry's known-document set.
func (r *Registry) ListDocuments(ctx context.Context) ([]model.KnownDocument, error) {
	resp, err := r.client.Request(ctx, r.cfg.BaseURL+"/api/files", Options{
		Header:   r.authHeader(),
		Timeout:  r.cfg.MetadataTimeout,
		UseCache: true,
		CacheTTL: r.cfg.MetadataTTL,
	})
	if err != nil {
		return nil, eris.Wrap(err, "registry: list documents")
	}

	var docs []model.KnownDocument
	if err := json.Unmarshal(resp.Data, &docs); err != nil {
		return nil, eris.Wrap(err, "registry: decode document list")
	}
	return docs, nil
}

// GetDocumentMetadata fetches one document's metadata (name, signed URL,
// status) with a short-TTL read-through cache.
func (r *Registry) GetDocumentMetadata(ctx context.Context, documentID string) (*model.KnownDocument, error) {
	resp, err := r.client.Request(ctx, r.cfg.BaseURL+"/api/files/"+url.PathEscape(documentID), Options{
		Header:   r.authHeader(),
		Timeout:  r.cfg.MetadataTimeout,
		UseCache: true,
		CacheTTL: r.cfg.MetadataTTL,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "registry: metadata for %s", documentID)
	}

	var doc model.KnownDocument
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		return nil, eris.Wrapf(err, "registry: decode metadata for %s", documentID)
	}
	return &doc, nil
}

// GetDocumentBytes downloads a document directly from its signed URL.
// No retries: a failed signed-URL fetch falls through to the alternative
// sources instead.
func (r *Registry) GetDocumentBytes(ctx context.Context, signedURL string) ([]byte, error) {
	resp, err := r.client.Request(ctx, signedURL, Options{
		Timeout: r.cfg.DownloadTimeout,
		Retries: 0,
	})
	if err != nil {
		return nil, eris.Wrap(err, "registry: signed url fetch")
	}
	return resp.Data, nil
}

// FetchProxy retrieves document bytes through the registry's local proxying
// endpoint, which fetches the signed URL server-side.
func (r *Registry) FetchProxy(ctx context.Context, signedURL string) ([]byte, error) {
	u := r.cfg.BaseURL + "/api/proxy?url=" + url.QueryEscape(signedURL)
	resp, err := r.client.Request(ctx, u, Options{
		Header:  r.authHeader(),
		Timeout: r.cfg.DownloadTimeout,
	})
	if err != nil {
		return nil, eris.Wrap(err, "registry: proxy fetch")
	}
	return resp.Data, nil
}

// FetchContentByID retrieves document bytes from the registry's direct
// content endpoint, bypassing signed URLs entirely.
func (r *Registry) FetchContentByID(ctx context.Context, documentID string) ([]byte, error) {
	u := r.cfg.BaseURL + "/api/files/" + url.PathEscape(documentID) + "/content"
	resp, err := r.client.Request(ctx, u, Options{
		Header:  r.authHeader(),
		Timeout: r.cfg.DownloadTimeout,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "registry: content for %s", documentID)
	}
	return resp.Data, nil
}

// RefreshMetadata forces the registry to mint fresh metadata (and a fresh
// signed URL) for a document, bypassing the metadata cache.
func (r *Registry) RefreshMetadata(ctx context.Context, documentID string) (*model.KnownDocument, error) {
	u := r.cfg.BaseURL + "/api/files/" + url.PathEscape(documentID) + "/refresh"
	resp, err := r.client.Request(ctx, u, Options{
		Method:  http.MethodPost,
		Header:  r.authHeader(),
		Timeout: r.cfg.MetadataTimeout,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "registry: refresh metadata for %s", documentID)
	}

	var doc model.KnownDocument
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		return nil, eris.Wrapf(err, "registry: decode refreshed metadata for %s", documentID)
	}
	return &doc, nil
}

func (r *Registry) authHeader() http.Header {
	h := http.Header{}
	if r.cfg.APIKey != "" {
		h.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}
	return h
}
