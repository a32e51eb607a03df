package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/qodinger/role-reactor-bot-sub005/internal/shared/metrics"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/config"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type recordingNotifier struct {
	collections []string
	keys        []string
}

func (r *recordingNotifier) CollectionInvalidated(c string) { r.collections = append(r.collections, c) }
func (r *recordingNotifier) KeyDeleted(k string)            { r.keys = append(r.keys, k) }

func TestObjectCache_Defaults(t *testing.T) {
	oc := NewObjectCache(config.CacheConfig{})
	defer oc.Close()
	assert.Equal(t, DefaultObjectTTL, oc.c.ttl)
	assert.Equal(t, DefaultObjectMaxSize, oc.c.maxSize)

	qc := NewQueryCache(config.CacheConfig{})
	defer qc.Close()
	assert.Equal(t, DefaultQueryTTL, qc.c.ttl)
	assert.Equal(t, DefaultQueryMaxSize, qc.c.maxSize)
}

func TestObjectCache_GetSet(t *testing.T) {
	oc := NewObjectCache(config.CacheConfig{TTL: time.Minute, MaxSize: 10})
	defer oc.Close()

	_, ok := oc.Get("welcome_settings:G1")
	assert.False(t, ok)

	oc.Set("welcome_settings:G1", "v1")
	v, ok := oc.Get("welcome_settings:G1")
	require.True(t, ok)
	assert.Equal(t, "v1", v)
}

func TestObjectCache_ExpiresAfterTTLRegardlessOfAccess(t *testing.T) {
	clock := newFakeClock()
	oc := NewObjectCache(config.CacheConfig{TTL: time.Minute, MaxSize: 10}, WithClock(clock.Now))
	defer oc.Close()

	oc.Set("k", 1)
	for i := 0; i < 6; i++ {
		clock.Advance(10 * time.Second)
		_, ok := oc.Get("k")
		assert.True(t, ok, "still fresh at %ds", (i+1)*10)
	}

	clock.Advance(time.Nanosecond)
	_, ok := oc.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, oc.Len(), "stale entry is evicted on read")
}

func TestObjectCache_EvictsOldestOnePerInsert(t *testing.T) {
	oc := NewObjectCache(config.CacheConfig{TTL: time.Hour, MaxSize: 3})
	defer oc.Close()

	oc.Set("a", 1)
	oc.Set("b", 2)
	oc.Set("c", 3)
	_, _ = oc.Get("a") // reads do not refresh insertion order

	for i, key := range []string{"d", "e", "f"} {
		before := oc.Keys()
		oc.Set(key, i)
		after := oc.Keys()

		assert.Len(t, after, 3)
		assert.Equal(t, before[1:], after[:2], "exactly the oldest key went")
		assert.Equal(t, key, after[2])
	}
	assert.Equal(t, []string{"d", "e", "f"}, oc.Keys())
}

func TestObjectCache_ResetMovesKeyToNewest(t *testing.T) {
	oc := NewObjectCache(config.CacheConfig{TTL: time.Hour, MaxSize: 2})
	defer oc.Close()

	oc.Set("a", 1)
	oc.Set("b", 2)
	oc.Set("a", 3)
	oc.Set("c", 4)

	_, ok := oc.Get("b")
	assert.False(t, ok)
	v, ok := oc.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestObjectCache_UpdatingExistingKeyDoesNotEvict(t *testing.T) {
	oc := NewObjectCache(config.CacheConfig{TTL: time.Hour, MaxSize: 2})
	defer oc.Close()

	oc.Set("a", 1)
	oc.Set("b", 2)
	oc.Set("b", 3)
	assert.ElementsMatch(t, []string{"a", "b"}, oc.Keys())
}

func TestObjectCache_DeleteClearCleanup(t *testing.T) {
	clock := newFakeClock()
	n := &recordingNotifier{}
	oc := NewObjectCache(config.CacheConfig{TTL: time.Minute, MaxSize: 10}, WithClock(clock.Now))
	defer oc.Close()
	oc.SetNotifier(n)

	oc.Set("a", 1)
	oc.Delete("a")
	_, ok := oc.Get("a")
	assert.False(t, ok)
	assert.Equal(t, []string{"a"}, n.keys)

	oc.Set("b", 1)
	oc.DeleteLocal("b")
	assert.Equal(t, []string{"a"}, n.keys)

	oc.Set("old1", 1)
	oc.Set("old2", 1)
	clock.Advance(2 * time.Minute)
	oc.Set("fresh", 1)
	assert.Equal(t, 2, oc.Cleanup())
	assert.Equal(t, []string{"fresh"}, oc.Keys())

	oc.Clear()
	assert.Equal(t, 0, oc.Len())
}

func TestTyped(t *testing.T) {
	oc := NewObjectCache(config.CacheConfig{})
	defer oc.Close()

	oc.Set("n", 42)
	v, ok := Typed[int](oc, "n")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = Typed[string](oc, "n")
	assert.False(t, ok)
}

func TestObjectCache_Metrics(t *testing.T) {
	m := metrics.NewCollector("cachetest")
	oc := NewObjectCache(config.CacheConfig{TTL: time.Hour, MaxSize: 1}, WithMetrics(m))
	defer oc.Close()

	oc.Get("missing")
	oc.Set("a", 1)
	oc.Get("a")
	oc.Set("b", 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits.WithLabelValues("object")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses.WithLabelValues("object")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheEvictions.WithLabelValues("object")))
}

func TestObjectCache_Janitor(t *testing.T) {
	oc := NewObjectCache(config.CacheConfig{TTL: time.Millisecond, MaxSize: 10, CleanupInterval: 5 * time.Millisecond})
	defer oc.Close()

	oc.Set("a", 1)
	assert.Eventually(t, func() bool { return oc.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestObjectCache_CloseIsIdempotent(t *testing.T) {
	oc := NewObjectCache(config.CacheConfig{CleanupInterval: time.Second})
	assert.NotPanics(t, func() {
		oc.Close()
		oc.Close()
	})
}

func TestObjectCache_ConcurrentAccess(t *testing.T) {
	oc := NewObjectCache(config.CacheConfig{TTL: time.Hour, MaxSize: 50})
	defer oc.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*200+i)%120)
				oc.Set(key, i)
				oc.Get(key)
				if i%7 == 0 {
					oc.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, oc.Len(), 50)
}

type countingNotifier struct {
	collections atomic.Int64
	keys        atomic.Int64
}

func (c *countingNotifier) CollectionInvalidated(string) { c.collections.Add(1) }
func (c *countingNotifier) KeyDeleted(string)            { c.keys.Add(1) }

func TestCaches_SetNotifierWhileInUse(t *testing.T) {
	oc := NewObjectCache(config.CacheConfig{})
	qc := NewQueryCache(config.CacheConfig{})
	defer oc.Close()
	defer qc.Close()

	n := &countingNotifier{}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				oc.Delete(fmt.Sprintf("polls:%d-%d", i, j))
				qc.InvalidateCollection("polls")
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 200; j++ {
			oc.SetNotifier(n)
			qc.SetNotifier(n)
			oc.SetNotifier(nil)
			qc.SetNotifier(nil)
		}
		oc.SetNotifier(n)
		qc.SetNotifier(n)
	}()
	wg.Wait()

	before := n.keys.Load()
	oc.Delete("polls:last")
	assert.Equal(t, before+1, n.keys.Load())
	beforeCollections := n.collections.Load()
	qc.InvalidateCollection("polls")
	assert.Equal(t, beforeCollections+1, n.collections.Load())
}

func TestQueryKey(t *testing.T) {
	assert.Equal(t, `user_experience:["leaderboard","G1",10]`, QueryKey("user_experience", "leaderboard", "G1", 10))
	assert.Equal(t, "polls:[]", QueryKey("polls"))
	assert.NotEqual(t, QueryKey("polls", "G1", 1), QueryKey("polls", "G1", 2))
}

func TestQueryCache_InvalidateCollection(t *testing.T) {
	qc := NewQueryCache(config.CacheConfig{TTL: time.Minute, MaxSize: 100})
	defer qc.Close()
	n := &recordingNotifier{}
	qc.SetNotifier(n)

	qc.Set(QueryKey("polls", "G1"), 1)
	qc.Set(QueryKey("polls", "G2"), 2)
	qc.Set("polls:raw", 3)
	qc.Set(QueryKey("pollsarchive", "G1"), 4)
	qc.Set(QueryKey("user_experience", "G1"), 5)
	qc.Set("polls", 6)

	removed := qc.InvalidateCollection("polls")
	assert.Equal(t, 3, removed)
	assert.ElementsMatch(t, []string{
		QueryKey("pollsarchive", "G1"),
		QueryKey("user_experience", "G1"),
		"polls",
	}, qc.Keys())
	assert.Equal(t, []string{"polls"}, n.collections)

	assert.Equal(t, 0, qc.InvalidateCollectionLocal("polls"))
	assert.Equal(t, []string{"polls"}, n.collections)
}

func TestQueryCache_TTL(t *testing.T) {
	clock := newFakeClock()
	qc := NewQueryCache(config.CacheConfig{}, WithClock(clock.Now))
	defer qc.Close()

	qc.Set("user_experience:x", 1)
	clock.Advance(DefaultQueryTTL)
	_, ok := qc.Get("user_experience:x")
	assert.True(t, ok)
	clock.Advance(time.Millisecond)
	_, ok = qc.Get("user_experience:x")
	assert.False(t, ok)
}

func TestRemember(t *testing.T) {
	clock := newFakeClock()
	qc := NewQueryCache(config.CacheConfig{}, WithClock(clock.Now))
	defer qc.Close()

	calls := 0
	load := func() ([]string, error) {
		calls++
		return []string{"u1", "u2"}, nil
	}

	key := QueryKey("user_experience", "leaderboard", "G1", 10)
	first, err := Remember(qc, key, load)
	require.NoError(t, err)
	second, err := Remember(qc, key, load)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	clock.Advance(DefaultQueryTTL + time.Second)
	_, err = Remember(qc, key, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRemember_ErrorsAreNotCached(t *testing.T) {
	qc := NewQueryCache(config.CacheConfig{})
	defer qc.Close()

	boom := errors.New("boom")
	_, err := Remember(qc, "polls:x", func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, qc.Len())
}
