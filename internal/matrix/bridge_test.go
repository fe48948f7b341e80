package matrix

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/flowkeeper/internal/inbound"
)

const (
	dmRoom    = id.RoomID("!dm:example.org")
	groupRoom = id.RoomID("!group:example.org")
	alice     = id.UserID("@alice:example.org")
)

type bridgeFixture struct {
	b       *Bridge
	api     *fakeAPI
	handler *fakeHandler
	tracker *Tracker
}

func newBridgeFixture(t *testing.T, cfg BridgeConfig) *bridgeFixture {
	t.Helper()
	api := newFakeAPI()
	api.members[dmRoom] = 2
	api.members[groupRoom] = 5
	tracker := NewTracker(time.Hour, 100)
	t.Cleanup(tracker.Close)
	handler := &fakeHandler{}
	return &bridgeFixture{
		b:       newBridge(api, testBot, handler, tracker, cfg, nil),
		api:     api,
		handler: handler,
		tracker: tracker,
	}
}

func text(body string) *event.MessageEventContent {
	return &event.MessageEventContent{MsgType: event.MsgText, Body: body}
}

func TestTranslateDirectMessage(t *testing.T) {
	fx := newBridgeFixture(t, BridgeConfig{})

	evt, ok := fx.b.translateMessage(context.Background(), textEvent(alice, dmRoom, "$e1", text("hi")))
	require.True(t, ok)
	assert.Equal(t, inbound.TypeMessage, evt.Type)
	assert.Equal(t, inbound.ChannelTypeIM, evt.ChannelType)
	assert.Equal(t, alice.String(), evt.User)
	assert.Equal(t, dmRoom.String(), evt.Channel)
	assert.Equal(t, "$e1", evt.TS)
	assert.Empty(t, evt.ThreadTS)
	assert.Equal(t, "hi", evt.Text)
}

func TestTranslateMentionByPill(t *testing.T) {
	fx := newBridgeFixture(t, BridgeConfig{})

	content := text("flowbot: can you help")
	content.Mentions = &event.Mentions{UserIDs: []id.UserID{testBot}}
	evt, ok := fx.b.translateMessage(context.Background(), textEvent(alice, groupRoom, "$e1", content))
	require.True(t, ok)
	assert.Equal(t, inbound.TypeAppMention, evt.Type)
	assert.Empty(t, evt.ChannelType)
}

func TestTranslateMentionByUserIDInBody(t *testing.T) {
	fx := newBridgeFixture(t, BridgeConfig{})

	evt, ok := fx.b.translateMessage(context.Background(), textEvent(alice, groupRoom, "$e1", text(testBot.String()+" hello")))
	require.True(t, ok)
	assert.Equal(t, inbound.TypeAppMention, evt.Type)
}

func TestTranslateCommandPrefix(t *testing.T) {
	fx := newBridgeFixture(t, BridgeConfig{CommandPrefix: "!flow"})

	evt, ok := fx.b.translateMessage(context.Background(), textEvent(alice, groupRoom, "$e1", text("!flow   status please")))
	require.True(t, ok)
	assert.Equal(t, inbound.TypeAppMention, evt.Type)
	assert.Equal(t, "status please", evt.Text)
}

func TestTranslateIgnoresRoomChatter(t *testing.T) {
	fx := newBridgeFixture(t, BridgeConfig{})

	_, ok := fx.b.translateMessage(context.Background(), textEvent(alice, groupRoom, "$e1", text("lunch?")))
	assert.False(t, ok)
}

func TestTranslateThreadReplyInTrackedThread(t *testing.T) {
	fx := newBridgeFixture(t, BridgeConfig{})
	fx.tracker.MarkPosted(groupRoom.String(), "$bot", "$root", nil)

	content := text("here is the repo")
	content.RelatesTo = (&event.RelatesTo{}).SetThread("$root", "$bot")
	evt, ok := fx.b.translateMessage(context.Background(), textEvent(alice, groupRoom, "$e2", content))
	require.True(t, ok)
	assert.Equal(t, inbound.TypeMessage, evt.Type)
	assert.Equal(t, "$root", evt.ThreadTS)

	other := text("unrelated thread")
	other.RelatesTo = (&event.RelatesTo{}).SetThread("$elsewhere", "$elsewhere")
	_, ok = fx.b.translateMessage(context.Background(), textEvent(alice, groupRoom, "$e3", other))
	assert.False(t, ok)
}

func TestTranslateIgnores(t *testing.T) {
	edit := text("* fixed")
	edit.RelatesTo = (&event.RelatesTo{}).SetReplace("$e1")

	tests := []struct {
		name string
		evt  *event.Event
		cfg  BridgeConfig
	}{
		{"own message", textEvent(testBot, dmRoom, "$e1", text("hi")), BridgeConfig{}},
		{"edit", textEvent(alice, dmRoom, "$e2", edit), BridgeConfig{}},
		{"notice", textEvent(alice, dmRoom, "$e3", &event.MessageEventContent{MsgType: event.MsgNotice, Body: "x"}), BridgeConfig{}},
		{"image", textEvent(alice, dmRoom, "$e4", &event.MessageEventContent{MsgType: event.MsgImage, Body: "a.png"}), BridgeConfig{}},
		{"room not allowed", textEvent(alice, dmRoom, "$e5", text("hi")), BridgeConfig{AllowedRooms: []string{"!other:example.org"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newBridgeFixture(t, tt.cfg)
			_, ok := fx.b.translateMessage(context.Background(), tt.evt)
			assert.False(t, ok)
		})
	}
}

func TestDirectCheckIsCachedUntilMembershipChanges(t *testing.T) {
	fx := newBridgeFixture(t, BridgeConfig{})
	ctx := context.Background()

	assert.True(t, fx.b.isDirect(ctx, dmRoom))
	assert.True(t, fx.b.isDirect(ctx, dmRoom))
	assert.Equal(t, 1, fx.api.lookups)

	fx.api.members[dmRoom] = 3
	fx.b.onMember(ctx, &event.Event{RoomID: dmRoom, Type: event.StateMember})
	assert.False(t, fx.b.isDirect(ctx, dmRoom))
	assert.Equal(t, 2, fx.api.lookups)
}

func TestDirectCheckFailureIsNotCached(t *testing.T) {
	fx := newBridgeFixture(t, BridgeConfig{})
	fx.api.memberErr = errors.New("timeout")

	assert.False(t, fx.b.isDirect(context.Background(), dmRoom))

	fx.api.memberErr = nil
	assert.True(t, fx.b.isDirect(context.Background(), dmRoom))
}

func TestTranslateReactionOnBotPost(t *testing.T) {
	fx := newBridgeFixture(t, BridgeConfig{})
	fx.tracker.MarkPosted(dmRoom.String(), "$bot", "", []string{"workflow_code_review", "workflow_pr_creation"})

	in, ok := fx.b.translateReaction(reactionEvent(alice, dmRoom, "$bot", "2️⃣"))
	require.True(t, ok)
	assert.Equal(t, inbound.TypeBlockActions, in.Type)
	assert.Equal(t, alice.String(), in.User.ID)
	assert.Equal(t, dmRoom.String(), in.Channel.ID)
	assert.Equal(t, "$bot", in.Message.TS)
	assert.Equal(t, []string{"workflow_pr_creation"}, in.ActionIDs())
	assert.Equal(t, "2️⃣", in.Actions[0].Value)

	in, ok = fx.b.translateReaction(reactionEvent(alice, dmRoom, "$bot", "👍"))
	require.True(t, ok)
	assert.Equal(t, []string{"👍"}, in.ActionIDs())
}

func TestTranslateReactionIgnored(t *testing.T) {
	fx := newBridgeFixture(t, BridgeConfig{})
	fx.tracker.MarkPosted(dmRoom.String(), "$bot", "", nil)

	_, ok := fx.b.translateReaction(reactionEvent(alice, dmRoom, "$someone-else", "👍"))
	assert.False(t, ok, "reaction on a message the bot did not post")

	_, ok = fx.b.translateReaction(reactionEvent(testBot, dmRoom, "$bot", "👍"))
	assert.False(t, ok, "the bot's own reaction")
}

func TestOnMessageDispatchesWithTyping(t *testing.T) {
	fx := newBridgeFixture(t, BridgeConfig{TypingIndicator: true})

	fx.b.onMessage(context.Background(), textEvent(alice, dmRoom, "$e1", text("hello")))
	fx.b.wg.Wait()

	require.Len(t, fx.handler.events, 1)
	assert.Equal(t, "hello", fx.handler.events[0].Text)
	assert.Equal(t, []bool{true, false}, fx.api.typing)
}

func TestOnReactionDispatches(t *testing.T) {
	fx := newBridgeFixture(t, BridgeConfig{})
	fx.tracker.MarkPosted(groupRoom.String(), "$bot", "$root", nil)

	fx.b.onReaction(context.Background(), reactionEvent(alice, groupRoom, "$bot", "✅"))
	fx.b.wg.Wait()

	require.Len(t, fx.handler.interactions, 1)
	assert.Empty(t, fx.api.typing)
}
