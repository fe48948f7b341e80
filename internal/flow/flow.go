// ABOUTME: Flow entity holding one multi-turn conversation's state and history
// ABOUTME: All mutation goes through the flow's own mutex and refreshes UpdatedAt

package flow

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/2389/flowkeeper/internal/gateway"
	"github.com/2389/flowkeeper/internal/inbound"
)

// DefaultTimeout is how long a flow may sit idle before the sweeper times it out.
const DefaultTimeout = time.Hour

// Flow is one tracked conversation. Identity fields are fixed at creation;
// everything else is read through accessors that take the flow's lock.
type Flow struct {
	id        string
	kind      Kind
	ctx       inbound.Context
	createdAt time.Time
	timeout   time.Duration

	// turn serializes handler execution for this flow.
	turn sync.Mutex

	mu        sync.RWMutex
	state     State
	messages  []Message
	metadata  map[string]any
	updatedAt time.Time
}

func newFlow(id string, kind Kind, c inbound.Context, timeout time.Duration, now time.Time) *Flow {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Flow{
		id:        id,
		kind:      kind,
		ctx:       c,
		createdAt: now,
		timeout:   timeout,
		state:     StateInitiated,
		metadata:  make(map[string]any),
		updatedAt: now,
	}
}

func (f *Flow) ID() string               { return f.id }
func (f *Flow) Kind() Kind               { return f.kind }
func (f *Flow) Context() inbound.Context { return f.ctx }
func (f *Flow) CreatedAt() time.Time     { return f.createdAt }
func (f *Flow) Timeout() time.Duration   { return f.timeout }

func (f *Flow) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

func (f *Flow) UpdatedAt() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.updatedAt
}

// Messages returns a copy of the history in order.
func (f *Flow) Messages() []Message {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Message, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.clone()
	}
	return out
}

// Metadata returns a shallow copy of the handler metadata.
func (f *Flow) Metadata() map[string]any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return maps.Clone(f.metadata)
}

// Meta returns one metadata value.
func (f *Flow) Meta(key string) (any, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.metadata[key]
	return v, ok
}

// MetaString returns a metadata value as a string, or "" if absent or not a string.
func (f *Flow) MetaString(key string) string {
	v, _ := f.Meta(key)
	s, _ := v.(string)
	return s
}

// MetaInt returns a metadata value as an int, accepting the numeric types
// JSON decoding and handlers commonly produce.
func (f *Flow) MetaInt(key string) int {
	v, _ := f.Meta(key)
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// touchLocked refreshes updatedAt without letting it move backwards.
func (f *Flow) touchLocked(now time.Time) {
	if now.After(f.updatedAt) {
		f.updatedAt = now
	}
}

func checkTransition(from, to State) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, from)
	}
	if !to.Valid() || (to == StateInitiated && from != StateInitiated) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

func (f *Flow) transition(to State, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := checkTransition(f.state, to); err != nil {
		return err
	}
	f.state = to
	f.touchLocked(now)
	return nil
}

// resume records an inbound entry on a live flow and moves it to Processing.
func (f *Flow) resume(msg Message, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := checkTransition(f.state, StateProcessing); err != nil {
		return err
	}
	f.messages = append(f.messages, msg.clone())
	f.state = StateProcessing
	f.touchLocked(now)
	return nil
}

func (f *Flow) appendMessage(msg Message, now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg.clone())
	f.touchLocked(now)
}

// postedMessage reports whether platformID is one of the flow's outgoing messages.
func (f *Flow) postedMessage(platformID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.outgoingLocked(platformID) >= 0
}

// outgoingLocked finds the newest outgoing entry with platformID. Incoming
// and interaction entries belong to the user and are never matched.
func (f *Flow) outgoingLocked(platformID string) int {
	if platformID == "" {
		return -1
	}
	for i := len(f.messages) - 1; i >= 0; i-- {
		m := f.messages[i]
		if m.Direction == DirectionOutgoing && m.PlatformID == platformID {
			return i
		}
	}
	return -1
}

func (f *Flow) editMessage(platformID, text string, blocks []gateway.Block, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.outgoingLocked(platformID)
	if i < 0 {
		return false
	}
	f.messages[i].Text = text
	if blocks != nil {
		f.messages[i].Blocks = cloneBlocks(blocks)
	}
	f.touchLocked(now)
	return true
}

func (f *Flow) removeMessage(platformID string, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.outgoingLocked(platformID)
	if i < 0 {
		return false
	}
	f.messages = append(f.messages[:i], f.messages[i+1:]...)
	f.touchLocked(now)
	return true
}

func (f *Flow) mergeMetadata(updates map[string]any, now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	maps.Copy(f.metadata, updates)
	f.touchLocked(now)
}

// expire decides the flow's fate for one sweep pass. Terminal flows are
// evicted as they are; idle live flows become TimedOut and are evicted too.
func (f *Flow) expire(now time.Time) (evict, timedOut bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.IsTerminal() {
		return true, false
	}
	if now.Sub(f.updatedAt) <= f.timeout {
		return false, false
	}
	f.state = StateTimedOut
	f.touchLocked(now)
	return true, true
}

// view reads the fields the matcher ranks on.
func (f *Flow) view() (State, time.Time) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state, f.updatedAt
}
