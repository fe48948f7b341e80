// ABOUTME: Memory of the bot's own recent posts and the threads it took part in
// ABOUTME: Lets the bridge route thread replies and reactions back into flows

package matrix

import (
	"sync"
	"time"

	"github.com/2389/flowkeeper/internal/dedupe"
)

// Tracker remembers events the bot posted, the threads they went to, and
// the button actions offered on each post. Entries expire after a TTL.
type Tracker struct {
	posted  *dedupe.Cache
	threads *dedupe.Cache

	mu      sync.Mutex
	actions map[string][]string // keyed by dedupe.Key(room, event)
	maxSize int
}

// NewTracker creates a Tracker holding up to maxSize entries per kind for ttl.
func NewTracker(ttl time.Duration, maxSize int, opts ...dedupe.Option) *Tracker {
	return &Tracker{
		posted:  dedupe.New(ttl, maxSize, 0, opts...),
		threads: dedupe.New(ttl, maxSize, 0, opts...),
		actions: make(map[string][]string),
		maxSize: maxSize,
	}
}

// MarkPosted records a bot post. threadRoot is the thread it went to, or the
// post itself when it started at the top level of the room.
func (t *Tracker) MarkPosted(room, eventID, threadRoot string, actions []string) {
	key := dedupe.Key(room, eventID)
	t.posted.Observe(key)
	if threadRoot == "" {
		threadRoot = eventID
	}
	t.threads.Observe(dedupe.Key(room, threadRoot))

	if len(actions) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.actions) >= t.maxSize {
		t.pruneLocked()
	}
	t.actions[key] = actions
}

// IsPosted reports whether eventID is a live bot post in room.
func (t *Tracker) IsPosted(room, eventID string) bool {
	return t.posted.Seen(dedupe.Key(room, eventID))
}

// InThread reports whether the bot has posted in the thread rooted at root.
func (t *Tracker) InThread(room, root string) bool {
	if root == "" {
		return false
	}
	return t.threads.Seen(dedupe.Key(room, root))
}

// Actions returns the button action IDs offered on a bot post, in order.
func (t *Tracker) Actions(room, eventID string) []string {
	key := dedupe.Key(room, eventID)
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.posted.Seen(key) {
		delete(t.actions, key)
		return nil
	}
	return t.actions[key]
}

// Close stops the expiry goroutines.
func (t *Tracker) Close() {
	t.posted.Close()
	t.threads.Close()
}

// pruneLocked drops action lists whose post has expired. If every post is
// still live, the map is cleared.
func (t *Tracker) pruneLocked() {
	for key := range t.actions {
		if !t.posted.Seen(key) {
			delete(t.actions, key)
		}
	}
	if len(t.actions) >= t.maxSize {
		clear(t.actions)
	}
}
