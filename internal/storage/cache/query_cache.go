package cache

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/config"
)

const (
	DefaultQueryTTL     = 2 * time.Minute
	DefaultQueryMaxSize = 500
)

// Notifier is told about local invalidations so it can forward them to peers.
type Notifier interface {
	CollectionInvalidated(collection string)
	KeyDeleted(key string)
}

// notifierRef holds a Notifier that may be swapped while requests read it.
type notifierRef struct {
	p atomic.Pointer[Notifier]
}

func (r *notifierRef) store(n Notifier) {
	if n == nil {
		r.p.Store(nil)
		return
	}
	r.p.Store(&n)
}

func (r *notifierRef) load() Notifier {
	if p := r.p.Load(); p != nil {
		return *p
	}
	return nil
}

// QueryCache caches results of aggregate reads such as leaderboards and
// listings. Keys always start with "<collection>:" so a write can drop every
// result derived from its collection.
type QueryCache struct {
	c        *ttlCache
	notifier notifierRef
}

// NewQueryCache builds a query cache. Zero values in cfg fall back to defaults.
func NewQueryCache(cfg config.CacheConfig, opts ...Option) *QueryCache {
	ttl, size := cfg.TTL, cfg.MaxSize
	if ttl <= 0 {
		ttl = DefaultQueryTTL
	}
	if size <= 0 {
		size = DefaultQueryMaxSize
	}
	qc := &QueryCache{c: newTTLCache("query", ttl, size, opts...)}
	qc.c.startJanitor(cfg.CleanupInterval)
	return qc
}

// QueryKey serializes the query parameters under the collection prefix.
func QueryKey(collection string, params ...interface{}) string {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", collection, params)
	}
	return collection + ":" + string(raw)
}

func (q *QueryCache) Get(key string) (interface{}, bool) {
	return q.c.get(key)
}

func (q *QueryCache) Set(key string, value interface{}) {
	q.c.set(key, value)
}

func (q *QueryCache) Delete(key string) {
	q.c.delete(key)
}

func (q *QueryCache) Clear() {
	q.c.clear()
}

func (q *QueryCache) Cleanup() int {
	return q.c.cleanup()
}

func (q *QueryCache) Len() int {
	return q.c.len()
}

func (q *QueryCache) Keys() []string {
	return q.c.keys()
}

// InvalidateCollection removes every key beginning with "<collection>:" and
// nothing else, then tells peers to do the same.
func (q *QueryCache) InvalidateCollection(collection string) int {
	n := q.InvalidateCollectionLocal(collection)
	if n := q.notifier.load(); n != nil {
		n.CollectionInvalidated(collection)
	}
	return n
}

// InvalidateCollectionLocal is InvalidateCollection without peer notification.
func (q *QueryCache) InvalidateCollectionLocal(collection string) int {
	prefix := collection + ":"
	return q.c.removeIf(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// SetNotifier is safe to call while the cache is in use.
func (q *QueryCache) SetNotifier(n Notifier) {
	q.notifier.store(n)
}

func (q *QueryCache) Close() {
	q.c.stop()
}

// Remember returns the cached result for key, or runs load and caches its
// result. Errors are not cached.
func Remember[T any](q *QueryCache, key string, load func() (T, error)) (T, error) {
	if v, ok := q.Get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	result, err := load()
	if err != nil {
		return result, err
	}
	q.Set(key, result)
	return result, nil
}
