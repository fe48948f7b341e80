// ABOUTME: Tests for the event dedupe cache
// ABOUTME: Covers TTL expiry, refresh, size-bounded eviction, purge, and atomic Observe

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T, ttl time.Duration, maxSize int) (*Cache, *fakeClock) {
	clock := newFakeClock()
	c := New(ttl, maxSize, time.Hour, WithClock(clock.Now))
	t.Cleanup(c.Close)
	return c, clock
}

func TestKey(t *testing.T) {
	assert.Equal(t, "C1:1.0", Key("C1", "1.0"))
}

func TestCache_Observe_FirstSightingIsNew(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)

	assert.False(t, c.Seen("C1:1.0"))
	assert.False(t, c.Observe("C1:1.0"), "first delivery is new")
	assert.True(t, c.Observe("C1:1.0"), "redelivery is a duplicate")
	assert.True(t, c.Seen("C1:1.0"))
}

func TestCache_Expiry(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)

	c.Observe("k")
	clock.Advance(59 * time.Second)
	assert.True(t, c.Seen("k"))

	clock.Advance(2 * time.Second)
	assert.False(t, c.Seen("k"))
	assert.False(t, c.Observe("k"), "expired key counts as new again")
}

func TestCache_ObserveDuplicateDoesNotRefresh(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)

	c.Observe("k")
	clock.Advance(40 * time.Second)
	assert.True(t, c.Observe("k"))
	clock.Advance(30 * time.Second)

	assert.False(t, c.Seen("k"), "a duplicate sighting does not extend the TTL")
}

func TestCache_EvictsOldestWhenFull(t *testing.T) {
	c, clock := newTestCache(t, time.Hour, 3)

	for _, k := range []string{"a", "b", "c"} {
		c.Observe(k)
		clock.Advance(time.Millisecond)
	}
	c.Observe("d")

	assert.False(t, c.Seen("a"), "oldest key evicted")
	assert.True(t, c.Seen("b"))
	assert.True(t, c.Seen("c"))
	assert.True(t, c.Seen("d"))
	assert.Equal(t, 3, c.Len())

	c.Observe("e")
	assert.False(t, c.Seen("b"))
}

func TestCache_Purge(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)

	c.Observe("old-1")
	c.Observe("old-2")
	clock.Advance(50 * time.Second)
	c.Observe("fresh")
	clock.Advance(20 * time.Second)

	c.purge()

	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Seen("fresh"))
}

func TestCache_ObserveIsAtomic(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 100)

	const workers = 100
	var fresh int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if !c.Observe("contested") {
				atomic.AddInt32(&fresh, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fresh, "exactly one caller sees the key as new")
}

func TestCache_Concurrent(t *testing.T) {
	c := New(time.Minute, 1000, 0)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("C%d:%d", id%5, j)
				c.Observe(key)
				c.Seen(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 1000)
}

func TestCache_CloseTwice(t *testing.T) {
	c := New(time.Minute, 10, 0)
	c.Close()
	c.Close()
}

func TestCache_ZeroSizeHoldsOne(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 0)
	c.Observe("a")
	c.Observe("b")
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Seen("b"))
}
