// ABOUTME: Tests for the reply cache used to answer retried requests.
// ABOUTME: Validates TTL expiration, size limits, eviction order, sweeping, and concurrency safety.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestCache(ttl time.Duration, maxSize int) (*Cache[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return newCache[string](ttl, maxSize, clock.Now), clock
}

func TestCache_Get_NotStored(t *testing.T) {
	cache, _ := newTestCache(5*time.Minute, 100)

	_, ok := cache.Get("never-stored")
	assert.False(t, ok)
}

func TestCache_PutThenGet(t *testing.T) {
	cache, _ := newTestCache(5*time.Minute, 100)

	cache.Put("ask:+1555:abc", "It is sunny.")

	got, ok := cache.Get("ask:+1555:abc")
	assert.True(t, ok)
	assert.Equal(t, "It is sunny.", got)
}

func TestCache_Get_Expired(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 100)

	cache.Put("k", "v")
	clock.Advance(59 * time.Second)
	_, ok := cache.Get("k")
	assert.True(t, ok, "entry should live until the TTL")

	clock.Advance(time.Second)
	_, ok = cache.Get("k")
	assert.False(t, ok, "entry should expire at the TTL")
}

func TestCache_Put_RefreshesEntry(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 100)

	cache.Put("k", "first")
	clock.Advance(50 * time.Second)
	cache.Put("k", "second")
	clock.Advance(50 * time.Second)

	got, ok := cache.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "second", got)
	assert.Equal(t, 1, cache.Len())
}

func TestCache_EvictsOldest(t *testing.T) {
	cache, _ := newTestCache(time.Hour, 3)

	cache.Put("a", "1")
	cache.Put("b", "2")
	cache.Put("c", "3")
	// Refreshing "a" makes "b" the oldest
	cache.Put("a", "1b")
	cache.Put("d", "4")

	_, ok := cache.Get("b")
	assert.False(t, ok)
	for _, key := range []string{"a", "c", "d"} {
		_, ok := cache.Get(key)
		assert.True(t, ok, "key %q should remain", key)
	}
	assert.Equal(t, 3, cache.Len())
}

func TestCache_Sweep(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 100)

	cache.Put("old-1", "x")
	cache.Put("old-2", "x")
	clock.Advance(45 * time.Second)
	cache.Put("fresh", "y")
	clock.Advance(30 * time.Second)

	cache.sweep()

	assert.Equal(t, 1, cache.Len())
	_, ok := cache.Get("fresh")
	assert.True(t, ok)
}

func TestCache_MinimumSize(t *testing.T) {
	cache, _ := newTestCache(time.Minute, 0)

	cache.Put("a", "1")
	cache.Put("b", "2")

	assert.Equal(t, 1, cache.Len())
	_, ok := cache.Get("b")
	assert.True(t, ok)
}

func TestCache_Concurrent(t *testing.T) {
	cache := New[string](time.Minute, 1000)
	defer cache.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key := fmt.Sprintf("k-%d-%d", n, j)
				cache.Put(key, key)
				got, ok := cache.Get(key)
				assert.True(t, ok)
				assert.Equal(t, key, got)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1000, cache.Len())
}

func TestCache_Close(t *testing.T) {
	cache := New[string](time.Minute, 10)

	// Multiple closes must not panic
	cache.Close()
	cache.Close()
}
