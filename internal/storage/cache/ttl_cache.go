// Package cache holds the two in-process cache tiers used by the repositories:
// a per-document ObjectCache and a shorter-lived QueryCache for aggregate reads.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/qodinger/role-reactor-bot-sub005/internal/shared/metrics"
)

// entry is one cached value and the instant it was stored.
type entry struct {
	key       string
	value     interface{}
	timestamp time.Time
}

// ttlCache is a bounded map whose entries expire ttl after insertion.
// When full, inserting a new key evicts exactly one entry: the oldest inserted.
// Re-setting an existing key counts as a fresh insertion.
type ttlCache struct {
	name    string
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	metrics *metrics.Collector

	mu    sync.Mutex
	order *list.List
	items map[string]*list.Element

	stopOnce sync.Once
	stopChan chan struct{}
}

// Option customises a cache at construction.
type Option func(*ttlCache)

// WithClock replaces time.Now, so tests can move time without sleeping.
func WithClock(now func() time.Time) Option {
	return func(c *ttlCache) { c.now = now }
}

// WithMetrics records hits, misses and evictions on the collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *ttlCache) { c.metrics = m }
}

func newTTLCache(name string, ttl time.Duration, maxSize int, opts ...Option) *ttlCache {
	c := &ttlCache{
		name:     name,
		ttl:      ttl,
		maxSize:  maxSize,
		now:      time.Now,
		order:    list.New(),
		items:    make(map[string]*list.Element, maxSize),
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ttlCache) expired(e *entry, now time.Time) bool {
	return now.Sub(e.timestamp) > c.ttl
}

func (c *ttlCache) get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.metrics.CacheMiss(c.name)
		return nil, false
	}
	e := el.Value.(*entry)
	if c.expired(e, c.now()) {
		c.removeElement(el)
		c.metrics.CacheMiss(c.name)
		return nil, false
	}
	c.metrics.CacheHit(c.name)
	return e.value, true
}

func (c *ttlCache) set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.timestamp = now
		c.order.MoveToBack(el)
		return
	}

	if c.maxSize > 0 && len(c.items) >= c.maxSize {
		if oldest := c.order.Front(); oldest != nil {
			c.removeElement(oldest)
			c.metrics.CacheEviction(c.name)
		}
	}

	c.items[key] = c.order.PushBack(&entry{key: key, value: value, timestamp: now})
	c.metrics.CacheSize(c.name, len(c.items))
}

func (c *ttlCache) delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

func (c *ttlCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[string]*list.Element, c.maxSize)
	c.metrics.CacheSize(c.name, 0)
}

// removeIf deletes every entry whose key matches and returns how many went.
func (c *ttlCache) removeIf(match func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if match(el.Value.(*entry).key) {
			c.removeElement(el)
			removed++
		}
		el = next
	}
	return removed
}

func (c *ttlCache) cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if c.expired(el.Value.(*entry), now) {
			c.removeElement(el)
			removed++
		}
		el = next
	}
	return removed
}

func (c *ttlCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *ttlCache) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry).key)
	}
	return keys
}

// removeElement must be called with mu held.
func (c *ttlCache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry).key)
	c.metrics.CacheSize(c.name, len(c.items))
}

// startJanitor sweeps expired entries every interval until stop is called.
func (c *ttlCache) startJanitor(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.cleanup()
			case <-c.stopChan:
				return
			}
		}
	}()
}

func (c *ttlCache) stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}
