package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/depstack/depstack/pkg/errors"
	"github.com/depstack/depstack/pkg/httputil"
	"github.com/depstack/depstack/pkg/observability"
)

// DefaultBaseURL is the public npm registry.
const DefaultBaseURL = "https://registry.npmjs.org"

// installMetadataAccept requests the abbreviated metadata document, which
// contains everything resolution needs at a fraction of the size.
const installMetadataAccept = "application/vnd.npm.install-v1+json, application/json; q=0.8"

// Client implements [API] against an npm-compatible registry over HTTP.
//
// Responses are cached twice: an in-process map so a single resolution
// never refetches a name, and an optional persistent [httputil.Cache]
// shared across runs. MarkForceReload drops both, once.
type Client struct {
	http    *http.Client
	cache   *httputil.Cache
	baseURL string

	mu          sync.Mutex
	memory      map[string]*PackageInfo
	forceReload bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a different registry.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(baseURL, "/") }
}

// WithCache attaches a persistent response cache.
func WithCache(cache *httputil.Cache) ClientOption {
	return func(c *Client) { c.cache = cache }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient creates a registry client. By default it talks to the public
// npm registry with a 30 second request timeout and no persistent cache.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: DefaultBaseURL,
		memory:  make(map[string]*PackageInfo),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PackageInfo fetches the metadata document for a package name.
func (c *Client) PackageInfo(ctx context.Context, name string) (*PackageInfo, error) {
	if err := errors.ValidateNpmPackageName(name); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if info, ok := c.memory[name]; ok {
		c.mu.Unlock()
		return info, nil
	}
	refresh := c.forceReload
	c.mu.Unlock()

	key := "npm:" + name
	var info PackageInfo
	if !refresh && c.cache != nil {
		if ok, _ := c.cache.Get(key, &info); ok {
			observability.Cache().OnCacheHit(ctx, "http")
			c.remember(name, &info)
			return &info, nil
		}
		observability.Cache().OnCacheMiss(ctx, "http")
	}

	if err := httputil.RetryWithBackoff(ctx, func() error {
		return c.fetch(ctx, name, &info)
	}); err != nil {
		return nil, err
	}
	if c.cache != nil {
		_ = c.cache.Set(key, &info)
	}
	c.remember(name, &info)
	return &info, nil
}

// MarkForceReload drops cached package data so the next lookups hit the
// registry again. Only the first call per client has any effect.
func (c *Client) MarkForceReload() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.forceReload {
		return false
	}
	c.forceReload = true
	c.memory = make(map[string]*PackageInfo)
	return true
}

func (c *Client) remember(name string, info *PackageInfo) {
	c.mu.Lock()
	c.memory[name] = info
	c.mu.Unlock()
}

func (c *Client) fetch(ctx context.Context, name string, info *PackageInfo) error {
	// Scoped names keep their "@" but escape the slash.
	u := c.baseURL + "/" + strings.ReplaceAll(url.PathEscape(name), "%40", "@")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", installMetadataAccept)

	observability.HTTP().OnRequest(ctx, req.Method, req.URL.Host, req.URL.Path)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.HTTP().OnError(ctx, req.Method, req.URL.Host, req.URL.Path, err)
		return &httputil.RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "fetching %s", name)}
	}
	defer resp.Body.Close()
	observability.HTTP().OnResponse(ctx, req.Method, req.URL.Host, req.URL.Path, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return errors.New(errors.ErrCodePackageNotFound, "npm package %q does not exist", name)
	case resp.StatusCode >= 500:
		return &httputil.RetryableError{Err: errors.New(errors.ErrCodeNetwork, "registry returned status %d for %s", resp.StatusCode, name)}
	default:
		return errors.New(errors.ErrCodeNetwork, "registry returned status %d for %s", resp.StatusCode, name)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &httputil.RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "reading response for %s", name)}
	}
	if err := json.Unmarshal(body, info); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "decoding registry response for %s", name)
	}
	if info.Name == "" {
		info.Name = name
	}
	// Some registries omit the version field inside version documents.
	for version, v := range info.Versions {
		if v.Version == "" {
			v.Version = version
		}
	}
	return nil
}

var _ API = (*Client)(nil)

// String describes the client for logs.
func (c *Client) String() string {
	return fmt.Sprintf("npm registry %s", c.baseURL)
}
