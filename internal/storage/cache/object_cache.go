package cache

import (
	"time"

	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/config"
)

const (
	DefaultObjectTTL     = 5 * time.Minute
	DefaultObjectMaxSize = 1000
)

// ObjectCache keeps recently read or written documents keyed by
// "<collection>:<document key>".
type ObjectCache struct {
	c        *ttlCache
	notifier notifierRef
}

// NewObjectCache builds an object cache. Zero values in cfg fall back to defaults.
func NewObjectCache(cfg config.CacheConfig, opts ...Option) *ObjectCache {
	ttl, size := cfg.TTL, cfg.MaxSize
	if ttl <= 0 {
		ttl = DefaultObjectTTL
	}
	if size <= 0 {
		size = DefaultObjectMaxSize
	}
	oc := &ObjectCache{c: newTTLCache("object", ttl, size, opts...)}
	oc.c.startJanitor(cfg.CleanupInterval)
	return oc
}

// Get returns the value if present and younger than the TTL. A stale entry is
// evicted on the way out.
func (o *ObjectCache) Get(key string) (interface{}, bool) {
	return o.c.get(key)
}

// Set stores value under key, evicting the oldest entry first when full.
func (o *ObjectCache) Set(key string, value interface{}) {
	o.c.set(key, value)
}

// Delete invalidates one key locally and on peers.
func (o *ObjectCache) Delete(key string) {
	o.c.delete(key)
	if n := o.notifier.load(); n != nil {
		n.KeyDeleted(key)
	}
}

// DeleteLocal invalidates one key without notifying peers.
func (o *ObjectCache) DeleteLocal(key string) {
	o.c.delete(key)
}

// Clear drops every entry.
func (o *ObjectCache) Clear() {
	o.c.clear()
}

// Cleanup removes all expired entries and reports how many were removed.
func (o *ObjectCache) Cleanup() int {
	return o.c.cleanup()
}

// Len returns the number of entries, expired ones included until swept.
func (o *ObjectCache) Len() int {
	return o.c.len()
}

// Keys returns keys oldest first.
func (o *ObjectCache) Keys() []string {
	return o.c.keys()
}

// SetNotifier registers a peer notifier for deletions. It may be called
// while other goroutines read and delete.
func (o *ObjectCache) SetNotifier(n Notifier) {
	o.notifier.store(n)
}

// Close stops the background sweep.
func (o *ObjectCache) Close() {
	o.c.stop()
}

// Typed fetches key and asserts its type; a wrong type counts as absent.
func Typed[T any](o *ObjectCache, key string) (T, bool) {
	var zero T
	v, ok := o.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
