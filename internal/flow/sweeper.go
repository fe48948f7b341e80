// ABOUTME: Timeout sweeper expiring idle flows and evicting finished ones
// ABOUTME: Notices go out after eviction, never while the store is locked

package flow

import (
	"context"
	"sync"
	"time"

	"github.com/2389/flowkeeper/internal/gateway"
)

// MetaSendTimeoutNotice is the metadata key a handler sets to false to
// suppress the timeout notice for its flow.
const MetaSendTimeoutNotice = "send_timeout_message"

const timeoutNotice = "This conversation has timed out due to inactivity. " +
	"Please start a new conversation if you need further assistance."

// SweepReport lists what one pass removed.
type SweepReport struct {
	TimedOut []*Flow
	Pruned   []*Flow
}

// Sweeper periodically times out idle flows.
type Sweeper struct {
	o *Orchestrator

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

func newSweeper(o *Orchestrator) *Sweeper {
	return &Sweeper{o: o}
}

func (s *Sweeper) start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.done != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

func (s *Sweeper) stop() {
	s.mu.Lock()
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	logger := s.o.logger.With("task", "sweeper")
	logger.Debug("sweeper started", "interval", s.o.sweepInterval)

	ticker := time.NewTicker(s.o.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx, s.o.now())
		}
	}
}

// SweepOnce runs a single pass as of now. Idle live flows become TimedOut
// and are evicted along with flows that had already finished; each timed-out
// flow then gets a notice unless notices are off for it.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) SweepReport {
	var report SweepReport
	s.o.store.Evict(func(f *Flow) bool {
		evict, timedOut := f.expire(now)
		switch {
		case timedOut:
			report.TimedOut = append(report.TimedOut, f)
		case evict:
			report.Pruned = append(report.Pruned, f)
		}
		return evict
	})

	for _, f := range report.Pruned {
		s.o.observer.FlowEvicted(f.Kind(), f.State())
	}
	for _, f := range report.TimedOut {
		s.o.observer.FlowEvicted(f.Kind(), StateTimedOut)
		s.o.logger.Info("flow timed out", "flow_id", f.ID(), "kind", f.Kind(), "channel", f.Context().ChannelID)
		if s.wantsNotice(f) {
			s.notify(ctx, f)
		}
	}

	if n := len(report.TimedOut) + len(report.Pruned); n > 0 {
		s.o.logger.Debug("sweep finished", "timed_out", len(report.TimedOut), "pruned", len(report.Pruned))
	}
	return report
}

func (s *Sweeper) wantsNotice(f *Flow) bool {
	if !s.o.timeoutNotices {
		return false
	}
	v, ok := f.Meta(MetaSendTimeoutNotice)
	if !ok {
		return true
	}
	send, isBool := v.(bool)
	return !isBool || send
}

// notify posts the timeout notice. The flow is already out of the store, so
// this goes straight to the gateway instead of through Send.
func (s *Sweeper) notify(ctx context.Context, f *Flow) {
	c := f.Context()
	if _, err := s.o.gw.PostMessage(ctx, c.ChannelID, c.ThreadID, gateway.Outgoing{Text: timeoutNotice}); err != nil {
		s.o.gatewayFailed(gateway.OpPost, err)
		s.o.logger.Warn("failed to send timeout notice", "flow_id", f.ID(), "error", err)
	}
}
