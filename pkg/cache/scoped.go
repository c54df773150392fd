package cache

// ScopedKeyer wraps a Keyer with a prefix so independent consumers can
// share one cache backend without key collisions. The server scopes its
// resolution results this way, since they can land in the same directory
// or Redis instance as the registry response cache.
//
// Example usage:
//
//	// Resolution results, kept apart from response caching
//	resultKeyer := NewScopedKeyer(NewDefaultKeyer(), "results:")
//
//	// Unscoped keys
//	globalKeyer := NewDefaultKeyer()
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// HTTPKey generates a prefixed key for HTTP response caching.
func (k *ScopedKeyer) HTTPKey(namespace, key string) string {
	return k.prefix + k.inner.HTTPKey(namespace, key)
}

// ResolutionKey generates a prefixed key for a resolution result.
func (k *ScopedKeyer) ResolutionKey(reqs []string, opts ResolutionKeyOpts) string {
	return k.prefix + k.inner.ResolutionKey(reqs, opts)
}

// LockKey generates a prefixed key for a named lockfile.
func (k *ScopedKeyer) LockKey(name string) string {
	return k.prefix + k.inner.LockKey(name)
}
