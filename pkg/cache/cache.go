// Package cache provides pluggable byte caches and cache key generation.
//
// The [Cache] interface abstracts over storage backends: [FileCache] for
// CLI usage, [RedisCache] for the server, and [NullCache] to disable
// caching entirely. Keys are generated through a [Keyer] so that every
// component hashes its inputs the same way.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented cache with per-entry TTLs.
//
// Implementations must be safe for concurrent use. A TTL of 0 means the
// entry never expires.
type Cache interface {
	// Get retrieves a value. The second return value reports whether the
	// key was present and fresh.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the backend.
	Close() error
}

// Keyer generates cache keys for the things depstack caches. Centralizing
// key construction keeps every component's keys collision-free and makes
// the hashing scheme swappable.
type Keyer interface {
	// HTTPKey generates a key for a cached registry HTTP response.
	HTTPKey(namespace, key string) string

	// ResolutionKey generates a key for a cached resolution result. Two
	// resolutions share a key only when their requirements and options
	// are identical.
	ResolutionKey(reqs []string, opts ResolutionKeyOpts) string

	// LockKey generates a key for a stored named lockfile.
	LockKey(name string) string
}

// ResolutionKeyOpts are the options that change a resolution's outcome
// and therefore participate in its cache key.
type ResolutionKeyOpts struct {
	RegistryURL string
	Dedup       bool
}

// DefaultKeyer hashes key components with SHA-256.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard keyer.
func NewDefaultKeyer() Keyer {
	return &DefaultKeyer{}
}

// HTTPKey generates a key for HTTP response caching.
func (k *DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}

// ResolutionKey generates a key for a resolution result.
func (k *DefaultKeyer) ResolutionKey(reqs []string, opts ResolutionKeyOpts) string {
	return hashKey("resolution", reqs, opts)
}

// LockKey generates a key for a named lockfile.
func (k *DefaultKeyer) LockKey(name string) string {
	return hashKey("lock", name)
}

var _ Keyer = (*DefaultKeyer)(nil)
