// ABOUTME: Tests for the timeout sweeper
// ABOUTME: Expiry, notices, pruning of finished flows, and the background loop

package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/flowkeeper/internal/gateway"
)

func TestSweepOnce_TimesOutIdleFlow(t *testing.T) {
	fx := newFixture(t, WithDefaultTimeout(time.Minute))
	f := startedFlow(t, fx)

	fx.clock.Advance(30 * time.Second)
	report := fx.o.Sweeper().SweepOnce(context.Background(), fx.clock.Now())
	assert.Empty(t, report.TimedOut)
	assert.Len(t, fx.o.Flows(), 1)

	fx.clock.Advance(31 * time.Second)
	report = fx.o.Sweeper().SweepOnce(context.Background(), fx.clock.Now())

	require.Len(t, report.TimedOut, 1)
	assert.Same(t, f, report.TimedOut[0])
	assert.Equal(t, StateTimedOut, f.State())
	assert.Empty(t, fx.o.Flows())

	post, ok := fx.gw.LastPost()
	require.True(t, ok)
	assert.Equal(t, timeoutNotice, post.Text)
	assert.Equal(t, "C1", post.Channel)
	assert.Equal(t, "1.0", post.ThreadID)
}

func TestSweepOnce_HungGatewayIsBoundedByCallTimeout(t *testing.T) {
	fx := newFixture(t, WithDefaultTimeout(time.Minute), WithCallTimeout(50*time.Millisecond))
	f := startedFlow(t, fx)
	fx.gw.Delay(gateway.OpPost, time.Minute)

	fx.clock.Advance(2 * time.Minute)
	start := time.Now()
	report := fx.o.Sweeper().SweepOnce(context.Background(), fx.clock.Now())
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 5*time.Second, "the notice post is cut off at the call timeout")
	require.Len(t, report.TimedOut, 1)
	assert.Same(t, f, report.TimedOut[0])
	assert.Empty(t, fx.o.Flows())
	assert.Equal(t, 1, fx.gw.Calls(gateway.OpPost))
}

func TestSweepOnce_SameEventAfterTimeoutStartsNewFlow(t *testing.T) {
	fx := newFixture(t, WithDefaultTimeout(time.Minute))
	fx.o.Register(KindDirectMessage, &recorder{out: fx.o})

	first := fx.o.HandleEvent(context.Background(), directMessage("U1", "D1", "1.0", "hi"))
	fx.clock.Advance(2 * time.Minute)
	fx.o.Sweeper().SweepOnce(context.Background(), fx.clock.Now())
	second := fx.o.HandleEvent(context.Background(), directMessage("U1", "D1", "1.0", "hi"))

	require.NotEmpty(t, second.FlowID)
	assert.NotEqual(t, first.FlowID, second.FlowID)
	_, stillThere := fx.o.Flow(first.FlowID)
	assert.False(t, stillThere)
}

func TestSweepOnce_ActivityResetsIdleTimer(t *testing.T) {
	fx := newFixture(t, WithDefaultTimeout(time.Minute))
	f := startedFlow(t, fx)

	fx.clock.Advance(50 * time.Second)
	fx.o.UpdateMetadata(f, map[string]any{"touched": true})
	fx.clock.Advance(50 * time.Second)

	report := fx.o.Sweeper().SweepOnce(context.Background(), fx.clock.Now())
	assert.Empty(t, report.TimedOut)
	assert.Equal(t, StateWaitingForResponse, f.State())
}

func TestSweepOnce_NoticeSuppressedByMetadata(t *testing.T) {
	fx := newFixture(t, WithDefaultTimeout(time.Minute))
	f := startedFlow(t, fx)
	fx.o.UpdateMetadata(f, map[string]any{MetaSendTimeoutNotice: false})

	fx.clock.Advance(time.Hour)
	report := fx.o.Sweeper().SweepOnce(context.Background(), fx.clock.Now())

	assert.Len(t, report.TimedOut, 1)
	assert.Zero(t, fx.gw.Calls(gateway.OpPost))
}

func TestSweepOnce_NoticesDisabled(t *testing.T) {
	fx := newFixture(t, WithDefaultTimeout(time.Minute), WithTimeoutNotices(false))
	startedFlow(t, fx)

	fx.clock.Advance(time.Hour)
	report := fx.o.Sweeper().SweepOnce(context.Background(), fx.clock.Now())

	assert.Len(t, report.TimedOut, 1)
	assert.Zero(t, fx.gw.Calls(gateway.OpPost))
}

func TestSweepOnce_NoticeFailureStillEvicts(t *testing.T) {
	obs := newCountingObserver()
	fx := newFixture(t, WithDefaultTimeout(time.Minute), WithObserver(obs))
	f := startedFlow(t, fx)
	fx.gw.FailWith(gateway.OpPost, errors.New("channel_archived"))

	fx.clock.Advance(time.Hour)
	report := fx.o.Sweeper().SweepOnce(context.Background(), fx.clock.Now())

	require.Len(t, report.TimedOut, 1)
	assert.Equal(t, StateTimedOut, f.State())
	assert.Empty(t, fx.o.Flows())
	assert.Equal(t, 1, obs.failures[gateway.OpPost])
	assert.Equal(t, 1, obs.evicted[StateTimedOut])
}

func TestSweepOnce_PrunesFinishedFlows(t *testing.T) {
	fx := newFixture(t, WithDefaultTimeout(time.Hour))
	f := startedFlow(t, fx)
	require.NoError(t, fx.o.Complete(context.Background(), f, true, ""))

	report := fx.o.Sweeper().SweepOnce(context.Background(), fx.clock.Now())

	require.Len(t, report.Pruned, 1)
	assert.Empty(t, report.TimedOut)
	assert.Empty(t, fx.o.Flows())
	assert.Equal(t, StateCompleted, f.State(), "pruning keeps the final state")
	assert.Zero(t, fx.gw.Calls(gateway.OpPost), "finished flows get no timeout notice")
}

func TestSweepOnce_TerminalNeverRegresses(t *testing.T) {
	fx := newFixture(t, WithDefaultTimeout(time.Minute))
	f := startedFlow(t, fx)
	require.NoError(t, fx.o.Complete(context.Background(), f, false, ""))

	fx.clock.Advance(time.Hour)
	fx.o.Sweeper().SweepOnce(context.Background(), fx.clock.Now())

	assert.Equal(t, StateError, f.State())
}

func TestSweeper_BackgroundLoop(t *testing.T) {
	gw := gateway.NewMockGateway(testBot)
	o := New(gw,
		WithLogger(quietLogger()),
		WithBotUserID(testBot),
		WithDefaultTimeout(10*time.Millisecond),
		WithSweepInterval(5*time.Millisecond),
	)
	t.Cleanup(o.Close)
	o.Register(KindDirectMessage, &recorder{out: o})

	require.NoError(t, o.Start(context.Background()))
	o.HandleEvent(context.Background(), directMessage("U1", "D1", "1.0", "hi"))
	require.Len(t, o.Flows(), 1)

	assert.Eventually(t, func() bool {
		post, ok := gw.LastPost()
		return ok && post.Text == timeoutNotice && len(o.Flows()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestSweeper_StopsOnContextCancel(t *testing.T) {
	fx := newFixture(t, WithSweepInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, fx.o.Start(ctx))
	cancel()

	done := make(chan struct{})
	go func() {
		fx.o.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after context cancel")
	}
}

func TestClose_WithoutStart(t *testing.T) {
	fx := newFixture(t)
	assert.NotPanics(t, func() {
		fx.o.Close()
		fx.o.Close()
	})
}
