// ABOUTME: Shared test fixtures for the flow package
// ABOUTME: Fake clock, sequential IDs, and an orchestrator wired to a mock gateway

package flow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/2389/flowkeeper/internal/gateway"
	"github.com/2389/flowkeeper/internal/inbound"
)

const testBot = "UBOT"

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("flow-%03d", n.Add(1)) }
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	o     *Orchestrator
	gw    *gateway.MockGateway
	clock *fakeClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	gw := gateway.NewMockGateway(testBot)
	clock := newFakeClock()
	base := []Option{
		WithLogger(quietLogger()),
		WithClock(clock.Now),
		WithIDGenerator(sequentialIDs()),
		WithBotUserID(testBot),
		WithCallTimeout(time.Second),
	}
	o := New(gw, append(base, opts...)...)
	t.Cleanup(o.Close)
	return &fixture{o: o, gw: gw, clock: clock}
}

func channelMessage(user, channel, ts, text string) *inbound.Event {
	return &inbound.Event{Type: inbound.TypeMessage, User: user, Channel: channel, TS: ts, Text: text}
}

func threadReply(user, channel, thread, ts, text string) *inbound.Event {
	evt := channelMessage(user, channel, ts, text)
	evt.ThreadTS = thread
	return evt
}

func directMessage(user, channel, ts, text string) *inbound.Event {
	evt := channelMessage(user, channel, ts, text)
	evt.ChannelType = inbound.ChannelTypeIM
	return evt
}

func mention(user, channel, ts, text string) *inbound.Event {
	evt := channelMessage(user, channel, ts, text)
	evt.Type = inbound.TypeAppMention
	return evt
}

// recorder is a handler that records what it saw and leaves the flow waiting.
type recorder struct {
	mu    sync.Mutex
	calls []Input
	flows []string
	out   Outbound
}

func (r *recorder) HandleFlow(ctx context.Context, f *Flow, in Input) (Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, in)
	r.flows = append(r.flows, f.ID())
	r.mu.Unlock()
	if r.out != nil {
		if err := r.out.SetState(f, StateWaitingForResponse); err != nil {
			return Result{}, err
		}
	}
	return Result{Message: "recorded"}, nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
