// ABOUTME: Orchestrator routing inbound events and interactions to conversation flows
// ABOUTME: Owns the store, matcher, registry, and sweeper; recovers handler failures

package flow

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/flowkeeper/internal/dedupe"
	"github.com/2389/flowkeeper/internal/gateway"
	"github.com/2389/flowkeeper/internal/inbound"
)

const (
	// DefaultSweepInterval is how often the sweeper looks for idle flows.
	DefaultSweepInterval = time.Minute

	// routeAttempts bounds re-routing when a matched flow finishes while an
	// event waits for its turn.
	routeAttempts = 3

	apologyText = "Sorry, something went wrong while handling your message. Please try again."
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDefaultTimeout sets the idle timeout given to new flows.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.defaultTimeout = d
		}
	}
}

// WithSweepInterval sets the sweeper period.
func WithSweepInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.sweepInterval = d
		}
	}
}

// WithCallTimeout bounds every gateway call.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.callTimeout = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator replaces UUID flow IDs, for tests.
func WithIDGenerator(next func() string) Option {
	return func(o *Orchestrator) {
		if next != nil {
			o.newID = next
		}
	}
}

// WithDedupe drops events whose channel:ts key the cache has already seen.
func WithDedupe(cache *dedupe.Cache) Option {
	return func(o *Orchestrator) { o.dedupe = cache }
}

// WithObserver reports lifecycle notifications to obs.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithBotUserID fixes the bot identity so Start skips the WhoAmI lookup.
func WithBotUserID(id string) Option {
	return func(o *Orchestrator) { o.botUserID = id }
}

// WithMentionFormat sets how the bot's mention token appears in text.
func WithMentionFormat(format inbound.MentionFormat) Option {
	return func(o *Orchestrator) { o.mention = format }
}

// WithTimeoutNotices toggles the message posted when a flow times out.
func WithTimeoutNotices(enabled bool) Option {
	return func(o *Orchestrator) { o.timeoutNotices = enabled }
}

// Orchestrator receives inbound events, attaches them to flows, and
// dispatches them to handlers.
type Orchestrator struct {
	gw       *gateway.Bounded
	store    *Store
	matcher  *Matcher
	registry *Registry
	sweeper  *Sweeper
	dedupe   *dedupe.Cache
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	defaultTimeout time.Duration
	sweepInterval  time.Duration
	callTimeout    time.Duration
	timeoutNotices bool

	identityMu sync.RWMutex
	botUserID  string
	mention    inbound.MentionFormat

	// routeMu covers matching plus creation so one new thread yields one flow.
	routeMu sync.Mutex

	startOnce sync.Once
}

// New creates an Orchestrator that talks to the chat platform through gw.
func New(gw gateway.Gateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:          NewStore(),
		observer:       nopObserver{},
		logger:         slog.Default(),
		now:            time.Now,
		newID:          uuid.NewString,
		defaultTimeout: DefaultTimeout,
		sweepInterval:  DefaultSweepInterval,
		callTimeout:    gateway.DefaultCallTimeout,
		timeoutNotices: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")
	o.gw = gateway.WithTimeout(gw, o.callTimeout)
	o.matcher = NewMatcher(o.store)
	o.registry = NewRegistry(defaultHandler{out: o})
	o.sweeper = newSweeper(o)
	return o
}

// Register binds a handler to a flow kind, replacing any earlier one.
func (o *Orchestrator) Register(kind Kind, h Handler) {
	o.registry.Register(kind, h)
}

// Registry exposes the handler registry.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Sweeper exposes the timeout sweeper, mainly so tests can run passes directly.
func (o *Orchestrator) Sweeper() *Sweeper {
	return o.sweeper
}

// Start resolves the bot identity if it is not configured and starts the
// sweeper. The sweeper stops when ctx is cancelled or Close is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.BotUserID() == "" {
		id, err := o.gw.WhoAmI(ctx)
		if err != nil {
			return fmt.Errorf("resolving bot identity: %w", err)
		}
		o.identityMu.Lock()
		o.botUserID = id
		o.identityMu.Unlock()
		o.logger.Info("resolved bot identity", "bot_user_id", id)
	}
	o.startOnce.Do(func() { o.sweeper.start(ctx) })
	return nil
}

// Close stops the sweeper and waits for it to exit.
func (o *Orchestrator) Close() {
	o.sweeper.stop()
}

func (o *Orchestrator) BotUserID() string {
	o.identityMu.RLock()
	defer o.identityMu.RUnlock()
	return o.botUserID
}

// Extractor returns the context extractor for the current bot identity.
func (o *Orchestrator) Extractor() inbound.Extractor {
	o.identityMu.RLock()
	defer o.identityMu.RUnlock()
	return inbound.Extractor{BotUserID: o.botUserID, Mention: o.mention}
}

// Flow looks up a tracked flow by ID.
func (o *Orchestrator) Flow(id string) (*Flow, bool) {
	return o.store.Get(id)
}

// Flows returns every tracked flow, including terminal ones not yet swept.
func (o *Orchestrator) Flows() []*Flow {
	return o.store.Values()
}

// HandleEvent processes one message event. It never returns an error; the
// outcome is described by the Result.
func (o *Orchestrator) HandleEvent(ctx context.Context, evt *inbound.Event) Result {
	start := o.now()
	res := o.handleEvent(ctx, evt)
	o.observer.EventHandled(SourceEvent, res.Status, o.now().Sub(start))
	return res
}

func (o *Orchestrator) handleEvent(ctx context.Context, evt *inbound.Event) Result {
	if evt == nil {
		return Result{Status: StatusIgnored, Message: "empty event"}
	}

	if bot := o.BotUserID(); evt.BotID != "" || (bot != "" && evt.User == bot) {
		o.logger.Debug("ignoring bot message", "channel", evt.Channel, "user", evt.User, "bot_id", evt.BotID)
		return Result{Status: StatusIgnored, Message: "ignored message from bot"}
	}

	if o.dedupe != nil && evt.TS != "" && o.dedupe.Observe(dedupe.Key(evt.Channel, evt.TS)) {
		o.logger.Debug("ignoring redelivered event", "channel", evt.Channel, "ts", evt.TS)
		return Result{Status: StatusIgnored, Message: "duplicate event"}
	}

	in := Input{Context: o.Extractor().FromEvent(evt), Event: evt}
	msg := Message{
		Direction:  DirectionIncoming,
		Text:       evt.Text,
		Timestamp:  o.now(),
		PlatformID: evt.TS,
	}
	return o.process(ctx, in, KindForEvent(evt), msg)
}

// HandleInteraction processes one interaction payload (button click, form
// submission). Interactions skip the bot and duplicate checks.
func (o *Orchestrator) HandleInteraction(ctx context.Context, it *inbound.Interaction) Result {
	start := o.now()
	var res Result
	if it == nil {
		res = Result{Status: StatusIgnored, Message: "empty interaction"}
	} else {
		actions := it.ActionIDs()
		in := Input{Context: o.Extractor().FromInteraction(it), Interaction: it}
		msg := Message{
			Direction: DirectionInteraction,
			Text:      strings.Join(actions, ", "),
			Actions:   actions,
			Timestamp: o.now(),
		}
		res = o.process(ctx, in, KindForInteraction(it), msg)
	}
	o.observer.EventHandled(SourceInteraction, res.Status, o.now().Sub(start))
	return res
}

func (o *Orchestrator) process(ctx context.Context, in Input, kind Kind, msg Message) Result {
	f, created, err := o.route(in.Context, kind, msg)
	if err != nil {
		o.logger.Warn("could not route event", "channel", in.Context.ChannelID, "error", err)
		return Result{Status: StatusError, Error: err.Error()}
	}
	defer f.turn.Unlock()

	if created {
		o.observer.FlowCreated(f.Kind())
		o.logger.Info("flow created",
			"flow_id", f.ID(),
			"kind", f.Kind(),
			"channel", in.Context.ChannelID,
			"thread", in.Context.ThreadID,
			"user", in.Context.UserID,
		)
	} else {
		o.logger.Debug("flow continued", "flow_id", f.ID(), "kind", f.Kind())
	}

	return o.dispatch(ctx, f, in)
}

// route finds or creates the flow for c and returns it with its turn lock held.
func (o *Orchestrator) route(c inbound.Context, kind Kind, msg Message) (*Flow, bool, error) {
	for range routeAttempts {
		o.routeMu.Lock()
		if f := o.matcher.FindActive(c); f != nil {
			o.routeMu.Unlock()

			f.turn.Lock()
			if err := f.resume(msg, o.now()); err != nil {
				// Finished while we waited; route again.
				f.turn.Unlock()
				continue
			}
			return f, false, nil
		}

		now := o.now()
		f := newFlow(o.newID(), kind, c, o.defaultTimeout, now)
		f.messages = append(f.messages, msg.clone())
		f.turn.Lock()
		o.store.Put(f)
		o.routeMu.Unlock()
		return f, true, nil
	}
	return nil, false, ErrBusy
}

func (o *Orchestrator) dispatch(ctx context.Context, f *Flow, in Input) Result {
	h, found := o.registry.Resolve(f.Kind())
	if !found {
		o.logger.Debug("using default handler", "flow_id", f.ID(), "kind", f.Kind(), "reason", ErrNoHandler)
	}

	res, err := o.invoke(ctx, h, f, in)
	if err != nil {
		return o.fail(ctx, f, err)
	}
	if res.FlowID == "" {
		res.FlowID = f.ID()
	}
	if res.Status == "" {
		res.Status = StatusHandled
	}
	return res
}

func (o *Orchestrator) invoke(ctx context.Context, h Handler, f *Flow, in Input) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("handler panicked", "flow_id", f.ID(), "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.HandleFlow(ctx, f, in)
}

// fail marks f as errored, tells the user, and builds the error Result.
func (o *Orchestrator) fail(ctx context.Context, f *Flow, cause error) Result {
	o.logger.Error("handler failed", "flow_id", f.ID(), "kind", f.Kind(), "error", cause)

	if err := f.transition(StateError, o.now()); err != nil {
		o.logger.Debug("flow already finished", "flow_id", f.ID(), "state", f.State())
	}
	if _, err := o.Send(ctx, f, gateway.Outgoing{Text: apologyText}); err != nil {
		o.logger.Warn("failed to send error notice", "flow_id", f.ID(), "error", err)
	}

	return Result{
		Status: StatusError,
		FlowID: f.ID(),
		Error:  cause.Error(),
	}
}
