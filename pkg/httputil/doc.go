// Package httputil provides HTTP utilities for the registry client.
//
// # Overview
//
// This package provides infrastructure used by the npm registry client:
//
//   - [Cache]: File-based HTTP response caching
//   - [Retry]: Automatic retry with exponential backoff
//
// # Caching
//
// [Cache] stores HTTP responses in the filesystem (~/.cache/depstack/)
// with configurable TTL. This dramatically speeds up repeated resolutions
// and reduces load on the registry.
//
// Usage:
//
//	cache, err := httputil.NewCache("", 24*time.Hour)
//	var info registry.PackageInfo
//	ok, err := cache.Get("npm:react", &info) // Check cache
//	if !ok {
//	    info = fetchFromRegistry()
//	    cache.Set("npm:react", info) // Store for later
//	}
//
// Cache keys should be namespaced to avoid collisions; see [Cache.Namespace].
//
// # Retry
//
// [Retry] wraps operations with automatic retry for transient failures.
// Wrap retryable errors (network errors, 5xx responses, 429 rate limits)
// in [RetryableError]; other errors return immediately.
//
// It uses exponential backoff to avoid hammering a struggling registry:
//
//	err := httputil.RetryWithBackoff(ctx, func() error {
//	    return fetchMetadata()
//	})
//
// # Configuration
//
// Default settings are suitable for most use cases:
//
//   - Cache directory: ~/.cache/depstack/
//   - Default TTL: 24 hours
//   - Max retries: 3
//   - Base backoff: 1 second
//
// The cache can be cleared via `depstack cache clear` or by deleting
// the cache directory.
package httputil
