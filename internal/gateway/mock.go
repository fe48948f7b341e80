// ABOUTME: Mock Gateway implementation for testing
// ABOUTME: Records outbound calls in memory and injects failures per operation

package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Posted is a message recorded by MockGateway.
type Posted struct {
	ID       string
	Channel  string
	ThreadID string
	Outgoing
	Deleted bool
}

// MockGateway is an in-memory Gateway for tests.
type MockGateway struct {
	mu      sync.Mutex
	botID   string
	nextID  int
	posted  []*Posted                // in post order
	byID    map[string]*Posted       // keyed by message ID
	errs    map[string]error         // keyed by operation
	delays  map[string]time.Duration // keyed by operation
	calls   map[string]int           // keyed by operation
	updates map[string][]string      // keyed by message ID, texts in update order
}

// NewMockGateway creates a MockGateway that reports botID from WhoAmI.
func NewMockGateway(botID string) *MockGateway {
	return &MockGateway{
		botID:   botID,
		byID:    make(map[string]*Posted),
		errs:    make(map[string]error),
		delays:  make(map[string]time.Duration),
		calls:   make(map[string]int),
		updates: make(map[string][]string),
	}
}

// FailWith makes every call of op return err. Pass nil to clear.
func (m *MockGateway) FailWith(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, op)
		return
	}
	m.errs[op] = err
}

// Delay makes every call of op wait d, or until its context is done.
func (m *MockGateway) Delay(op string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[op] = d
}

// begin counts the call, applies any delay, and returns the injected error.
func (m *MockGateway) begin(ctx context.Context, op string) error {
	m.mu.Lock()
	m.calls[op]++
	delay := m.delays[op]
	err := m.errs[op]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (m *MockGateway) PostMessage(ctx context.Context, channel, threadID string, msg Outgoing) (string, error) {
	if err := m.begin(ctx, OpPost); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	p := &Posted{
		ID:       fmt.Sprintf("m%d", m.nextID),
		Channel:  channel,
		ThreadID: threadID,
		Outgoing: msg,
	}
	m.posted = append(m.posted, p)
	m.byID[p.ID] = p
	return p.ID, nil
}

func (m *MockGateway) UpdateMessage(ctx context.Context, channel, messageID, text string, blocks []Block) error {
	if err := m.begin(ctx, OpUpdate); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.byID[messageID]
	if !ok || p.Deleted {
		return fmt.Errorf("message %s not found", messageID)
	}
	p.Text = text
	if blocks != nil {
		p.Blocks = blocks
	}
	m.updates[messageID] = append(m.updates[messageID], text)
	return nil
}

func (m *MockGateway) DeleteMessage(ctx context.Context, channel, messageID string) error {
	if err := m.begin(ctx, OpDelete); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.byID[messageID]
	if !ok || p.Deleted {
		return fmt.Errorf("message %s not found", messageID)
	}
	p.Deleted = true
	return nil
}

func (m *MockGateway) WhoAmI(ctx context.Context) (string, error) {
	if err := m.begin(ctx, OpWhoAmI); err != nil {
		return "", err
	}
	return m.botID, nil
}

// Posts returns copies of all posted messages that were not deleted, in post order.
func (m *MockGateway) Posts() []Posted {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Posted, 0, len(m.posted))
	for _, p := range m.posted {
		if !p.Deleted {
			out = append(out, *p)
		}
	}
	return out
}

// LastPost returns the most recent live post.
func (m *MockGateway) LastPost() (Posted, bool) {
	posts := m.Posts()
	if len(posts) == 0 {
		return Posted{}, false
	}
	return posts[len(posts)-1], true
}

// Updates returns the texts a message was updated to, in order.
func (m *MockGateway) Updates(messageID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.updates[messageID]...)
}

// Calls returns how many times op was invoked, including failed calls.
func (m *MockGateway) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}
