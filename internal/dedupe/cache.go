// ABOUTME: Thread-safe TTL cache remembering recently delivered event keys
// ABOUTME: Lets the orchestrator drop events a chat platform redelivers

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// DefaultCleanupInterval is how often expired keys are purged.
const DefaultCleanupInterval = time.Minute

// entry is one remembered key.
type entry struct {
	key    string
	seenAt time.Time
}

// Cache remembers keys for a TTL, holding at most maxSize of them. The
// oldest key is forgotten first when the cache is full. A background
// goroutine purges expired keys until Close is called.
type Cache struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List // *entry values, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache and starts its cleanup goroutine, which runs every
// cleanupEvery (DefaultCleanupInterval when non-positive).
func New(ttl time.Duration, maxSize int, cleanupEvery time.Duration, opts ...Option) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	if cleanupEvery <= 0 {
		cleanupEvery = DefaultCleanupInterval
	}
	c := &Cache{
		index:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.purgeLoop(cleanupEvery)
	return c
}

// Key builds the dedupe key of a chat event.
func Key(channel, messageID string) string {
	return channel + ":" + messageID
}

// Seen reports whether key was remembered within the TTL.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked(key)
}

// Observe remembers key and reports whether it had already been seen within
// the TTL. The check and the insert happen under one lock, so of many
// concurrent callers with the same key exactly one gets false.
func (c *Cache) Observe(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.liveLocked(key) {
		return true
	}
	c.rememberLocked(key)
	return false
}

// Len returns how many keys are held, including expired ones not yet purged.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
}

func (c *Cache) liveLocked(key string) bool {
	el, ok := c.index[key]
	if !ok {
		return false
	}
	return c.now().Sub(el.Value.(*entry).seenAt) < c.ttl
}

// rememberLocked inserts or refreshes key. Must be called with mu held.
func (c *Cache) rememberLocked(key string) {
	now := c.now()
	if el, ok := c.index[key]; ok {
		el.Value.(*entry).seenAt = now
		c.order.MoveToBack(el)
		return
	}
	for c.order.Len() >= c.maxSize {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*entry).key)
	}
	c.index[key] = c.order.PushBack(&entry{key: key, seenAt: now})
}

func (c *Cache) purgeLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.purge()
		case <-c.stop:
			return
		}
	}
}

// purge drops expired keys. Keys are ordered by last sighting, so it stops
// at the first live one.
func (c *Cache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for el := c.order.Front(); el != nil; {
		e := el.Value.(*entry)
		if now.Sub(e.seenAt) < c.ttl {
			return
		}
		next := el.Next()
		c.order.Remove(el)
		delete(c.index, e.key)
		el = next
	}
}
