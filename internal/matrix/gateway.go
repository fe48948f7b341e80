// ABOUTME: Matrix implementation of the outbound message Gateway
// ABOUTME: Posts, edits, and redacts m.room.message events through a mautrix client

package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/flowkeeper/internal/gateway"
)

// Extra content keys carrying Block Kit style payloads. Matrix clients
// ignore them; other bots in the room can read them.
const (
	blocksKey      = "com.flowkeeper.blocks"
	attachmentsKey = "com.flowkeeper.attachments"
)

// API is the part of *mautrix.Client the bridge and gateway use.
type API interface {
	SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON any, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error)
	RedactEvent(ctx context.Context, roomID id.RoomID, eventID id.EventID, extra ...mautrix.ReqRedact) (*mautrix.RespSendEvent, error)
	Whoami(ctx context.Context) (*mautrix.RespWhoami, error)
	UserTyping(ctx context.Context, roomID id.RoomID, typing bool, timeout time.Duration) (*mautrix.RespTyping, error)
	JoinedMembers(ctx context.Context, roomID id.RoomID) (*mautrix.RespJoinedMembers, error)
}

var _ API = (*mautrix.Client)(nil)

var _ gateway.Gateway = (*Gateway)(nil)

// Gateway sends orchestrator output to Matrix rooms. Channel IDs are room
// IDs, message and thread IDs are event IDs.
type Gateway struct {
	api     API
	tracker *Tracker
	logger  *slog.Logger
}

// NewGateway creates a Gateway. Every post is recorded in tracker so the
// bridge can recognize replies and reactions to it.
func NewGateway(api API, tracker *Tracker, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		api:     api,
		tracker: tracker,
		logger:  logger.With("component", "matrix-gateway"),
	}
}

func (g *Gateway) PostMessage(ctx context.Context, channel, threadID string, msg gateway.Outgoing) (string, error) {
	btns := buttons(msg.Blocks)
	content := textContent(withButtons(msg.Text, btns))
	if threadID != "" {
		root := id.EventID(threadID)
		content.RelatesTo = (&event.RelatesTo{}).SetThread(root, root)
	}

	resp, err := g.api.SendMessageEvent(ctx, id.RoomID(channel), event.EventMessage, withExtras(content, msg.Blocks, msg.Attachments))
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}

	eventID := resp.EventID.String()
	actions := make([]string, len(btns))
	for i, btn := range btns {
		actions[i] = btn.ActionID
	}
	if g.tracker != nil {
		g.tracker.MarkPosted(channel, eventID, threadID, actions)
	}

	g.logger.Debug("posted message", "room", channel, "event", eventID, "thread", threadID)
	return eventID, nil
}

func (g *Gateway) UpdateMessage(ctx context.Context, channel, messageID, text string, blocks []gateway.Block) error {
	btns := buttons(blocks)
	content := textContent(withButtons(text, btns))
	content.SetEdit(id.EventID(messageID))

	if _, err := g.api.SendMessageEvent(ctx, id.RoomID(channel), event.EventMessage, withExtras(content, blocks, nil)); err != nil {
		return fmt.Errorf("editing message %s: %w", messageID, err)
	}

	if g.tracker != nil && len(btns) > 0 {
		actions := make([]string, len(btns))
		for i, btn := range btns {
			actions[i] = btn.ActionID
		}
		g.tracker.MarkPosted(channel, messageID, "", actions)
	}
	return nil
}

func (g *Gateway) DeleteMessage(ctx context.Context, channel, messageID string) error {
	if _, err := g.api.RedactEvent(ctx, id.RoomID(channel), id.EventID(messageID)); err != nil {
		return fmt.Errorf("redacting message %s: %w", messageID, err)
	}
	return nil
}

func (g *Gateway) WhoAmI(ctx context.Context) (string, error) {
	resp, err := g.api.Whoami(ctx)
	if err != nil {
		return "", fmt.Errorf("whoami: %w", err)
	}
	return resp.UserID.String(), nil
}

// textContent builds an m.text message, adding an HTML body when the text
// contains Markdown.
func textContent(body string) *event.MessageEventContent {
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    body,
	}
	if formatted := renderMarkdown(body); formatted != "" {
		content.Format = event.FormatHTML
		content.FormattedBody = formatted
	}
	return content
}

// withExtras attaches blocks and attachments as extra content keys. With
// neither present the typed content is sent as is.
func withExtras(content *event.MessageEventContent, blocks []gateway.Block, attachments []gateway.Attachment) any {
	if len(blocks) == 0 && len(attachments) == 0 {
		return content
	}
	raw := make(map[string]any, 2)
	if len(blocks) > 0 {
		raw[blocksKey] = blocks
	}
	if len(attachments) > 0 {
		raw[attachmentsKey] = attachments
	}
	return &event.Content{Parsed: content, Raw: raw}
}
