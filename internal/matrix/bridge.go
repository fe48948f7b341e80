// ABOUTME: Matrix sync loop translating room traffic into inbound events and interactions
// ABOUTME: Detects DMs, mentions, threads, and reactions, and dispatches each on its own goroutine

package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/flowkeeper/internal/flow"
	"github.com/2389/flowkeeper/internal/inbound"
)

// typingTimeout is how long the typing indicator shows.
const typingTimeout = 30 * time.Second

// networkTimeout bounds calls the bridge makes on its own behalf.
const networkTimeout = 10 * time.Second

// Handler receives translated traffic. *flow.Orchestrator implements it.
type Handler interface {
	HandleEvent(ctx context.Context, evt *inbound.Event) flow.Result
	HandleInteraction(ctx context.Context, in *inbound.Interaction) flow.Result
}

// BridgeConfig controls which room traffic is forwarded.
type BridgeConfig struct {
	// AllowedRooms limits the bridge to these room IDs. Empty allows all.
	AllowedRooms []string
	// CommandPrefix, when set, turns messages starting with it into
	// mentions of the bot. The prefix is stripped.
	CommandPrefix string
	// TypingIndicator shows the bot typing while a handler runs.
	TypingIndicator bool
}

// Bridge feeds Matrix room events into a Handler.
type Bridge struct {
	client  *mautrix.Client
	api     API
	botID   id.UserID
	handler Handler
	tracker *Tracker
	cfg     BridgeConfig
	logger  *slog.Logger

	directMu sync.Mutex
	direct   map[id.RoomID]bool // cached two-member check

	wg sync.WaitGroup
}

// NewBridge creates a Bridge syncing through client.
func NewBridge(client *mautrix.Client, handler Handler, tracker *Tracker, cfg BridgeConfig, logger *slog.Logger) *Bridge {
	b := newBridge(client, client.UserID, handler, tracker, cfg, logger)
	b.client = client
	return b
}

func newBridge(api API, botID id.UserID, handler Handler, tracker *Tracker, cfg BridgeConfig, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		api:     api,
		botID:   botID,
		handler: handler,
		tracker: tracker,
		cfg:     cfg,
		logger:  logger.With("component", "matrix-bridge"),
		direct:  make(map[id.RoomID]bool),
	}
}

// Run syncs until ctx is cancelled, then waits for in-flight handlers.
func (b *Bridge) Run(ctx context.Context) error {
	syncer, ok := b.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.client.Syncer)
	}
	syncer.OnSync(b.client.DontProcessOldEvents)
	syncer.OnEventType(event.EventMessage, b.onMessage)
	syncer.OnEventType(event.EventReaction, b.onReaction)
	syncer.OnEventType(event.StateMember, b.onMember)

	b.logger.Info("starting matrix bridge",
		"user_id", b.botID.String(),
		"allowed_rooms", len(b.cfg.AllowedRooms),
	)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.client.SyncWithContext(ctx)
	}()

	var err error
	select {
	case <-ctx.Done():
		b.logger.Info("shutting down matrix bridge")
	case err = <-syncErr:
		if ctx.Err() == nil {
			err = fmt.Errorf("matrix sync failed: %w", err)
		} else {
			err = nil
		}
	}
	b.client.StopSync()
	b.wg.Wait()
	return err
}

func (b *Bridge) onMessage(ctx context.Context, evt *event.Event) {
	in, ok := b.translateMessage(ctx, evt)
	if !ok {
		return
	}
	b.logger.Info("received message",
		"room", in.Channel,
		"sender", in.User,
		"type", in.Type,
		"thread", in.ThreadTS,
	)
	b.dispatch(ctx, evt.RoomID, func(ctx context.Context) flow.Result {
		return b.handler.HandleEvent(ctx, in)
	})
}

func (b *Bridge) onReaction(ctx context.Context, evt *event.Event) {
	in, ok := b.translateReaction(evt)
	if !ok {
		return
	}
	b.logger.Info("received reaction",
		"room", in.Channel.ID,
		"sender", in.User.ID,
		"target", in.Message.TS,
		"actions", in.ActionIDs(),
	)
	b.dispatch(ctx, evt.RoomID, func(ctx context.Context) flow.Result {
		return b.handler.HandleInteraction(ctx, in)
	})
}

// onMember forgets the cached DM status of a room whose membership changed.
func (b *Bridge) onMember(_ context.Context, evt *event.Event) {
	b.directMu.Lock()
	delete(b.direct, evt.RoomID)
	b.directMu.Unlock()
}

// translateMessage converts a room message into an inbound event. It
// reports false for traffic the orchestrator should not see.
func (b *Bridge) translateMessage(ctx context.Context, evt *event.Event) (*inbound.Event, bool) {
	if evt.Sender == b.botID {
		return nil, false
	}
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return nil, false
	}
	rel := content.RelatesTo
	if rel != nil && rel.Type == event.RelReplace {
		return nil, false
	}
	room := evt.RoomID.String()
	if !b.isRoomAllowed(room) {
		b.logger.Debug("ignoring message from non-allowed room", "room", room)
		return nil, false
	}

	body := content.Body
	mentioned := b.botID != "" && strings.Contains(body, b.botID.String())
	if content.Mentions != nil && slices.Contains(content.Mentions.UserIDs, b.botID) {
		mentioned = true
	}
	if b.cfg.CommandPrefix != "" && strings.HasPrefix(body, b.cfg.CommandPrefix) {
		mentioned = true
		body = strings.TrimSpace(strings.TrimPrefix(body, b.cfg.CommandPrefix))
	}

	var thread string
	if rel != nil && rel.Type == event.RelThread {
		thread = rel.EventID.String()
	}

	direct := b.isDirect(ctx, evt.RoomID)
	if !direct && !mentioned && !b.tracker.InThread(room, thread) {
		return nil, false
	}

	out := &inbound.Event{
		Type:     inbound.TypeMessage,
		User:     evt.Sender.String(),
		Channel:  room,
		ThreadTS: thread,
		TS:       evt.ID.String(),
		Text:     body,
		Raw:      evt.Content.Raw,
	}
	switch {
	case direct:
		out.ChannelType = inbound.ChannelTypeIM
	case mentioned:
		out.Type = inbound.TypeAppMention
	}
	return out, true
}

// translateReaction converts a reaction on one of the bot's posts into a
// block_actions interaction.
func (b *Bridge) translateReaction(evt *event.Event) (*inbound.Interaction, bool) {
	if evt.Sender == b.botID {
		return nil, false
	}
	content, ok := evt.Content.Parsed.(*event.ReactionEventContent)
	if !ok || content.RelatesTo.Type != event.RelAnnotation {
		return nil, false
	}
	room := evt.RoomID.String()
	target := content.RelatesTo.EventID.String()
	if !b.isRoomAllowed(room) || !b.tracker.IsPosted(room, target) {
		return nil, false
	}

	key := content.RelatesTo.Key
	return &inbound.Interaction{
		Type:    inbound.TypeBlockActions,
		User:    inbound.Ref{ID: evt.Sender.String()},
		Channel: inbound.Ref{ID: room},
		Message: inbound.MessageRef{TS: target},
		Actions: []inbound.Action{{
			ActionID: actionFor(key, b.tracker.Actions(room, target)),
			Value:    key,
		}},
		Raw: evt.Content.Raw,
	}, true
}

// isDirect reports whether the room has exactly two joined members. Lookup
// failures are not cached and count as not direct.
func (b *Bridge) isDirect(ctx context.Context, room id.RoomID) bool {
	b.directMu.Lock()
	direct, ok := b.direct[room]
	b.directMu.Unlock()
	if ok {
		return direct
	}

	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	resp, err := b.api.JoinedMembers(ctx, room)
	if err != nil {
		b.logger.Debug("failed to fetch room members", "room", room.String(), "error", err)
		return false
	}
	direct = len(resp.Joined) == 2

	b.directMu.Lock()
	b.direct[room] = direct
	b.directMu.Unlock()
	return direct
}

// isRoomAllowed checks if the room is in the allowed list.
func (b *Bridge) isRoomAllowed(roomID string) bool {
	if len(b.cfg.AllowedRooms) == 0 {
		return true
	}
	return slices.Contains(b.cfg.AllowedRooms, roomID)
}

// dispatch runs fn on its own goroutine so a slow handler never blocks sync.
func (b *Bridge) dispatch(ctx context.Context, room id.RoomID, fn func(context.Context) flow.Result) {
	ctx = context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		if b.cfg.TypingIndicator {
			b.setTyping(ctx, room, true)
			defer b.setTyping(ctx, room, false)
		}

		res := fn(ctx)
		if res.Status == flow.StatusError {
			b.logger.Warn("event handling failed", "room", room.String(), "flow_id", res.FlowID, "error", res.Error)
			return
		}
		b.logger.Debug("event handled", "room", room.String(), "flow_id", res.FlowID, "status", res.Status)
	}()
}

// setTyping sends typing indicator to room.
func (b *Bridge) setTyping(ctx context.Context, room id.RoomID, typing bool) {
	var timeout time.Duration
	if typing {
		timeout = typingTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	if _, err := b.api.UserTyping(ctx, room, typing, timeout); err != nil {
		b.logger.Debug("failed to set typing indicator", "room", room.String(), "error", err)
	}
}
