// ABOUTME: Test doubles for the Matrix API and the event handler
// ABOUTME: Records sent content as decoded JSON so tests can inspect the wire shape

package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/flowkeeper/internal/flow"
	"github.com/2389/flowkeeper/internal/inbound"
)

const testBot = id.UserID("@flowbot:example.org")

type sent struct {
	Room    string
	Content map[string]any
}

type fakeAPI struct {
	mu        sync.Mutex
	next      int
	sent      []sent
	redacted  []string
	typing    []bool
	members   map[id.RoomID]int
	lookups   int
	sendErr   error
	memberErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{members: make(map[id.RoomID]int)}
}

func (f *fakeAPI) SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON any, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	data, err := json.Marshal(contentJSON)
	if err != nil {
		return nil, err
	}
	var content map[string]any
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, err
	}
	f.next++
	f.sent = append(f.sent, sent{Room: roomID.String(), Content: content})
	return &mautrix.RespSendEvent{EventID: id.EventID(fmt.Sprintf("$out%d", f.next))}, nil
}

func (f *fakeAPI) RedactEvent(ctx context.Context, roomID id.RoomID, eventID id.EventID, extra ...mautrix.ReqRedact) (*mautrix.RespSendEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redacted = append(f.redacted, eventID.String())
	return &mautrix.RespSendEvent{EventID: "$redaction"}, nil
}

func (f *fakeAPI) Whoami(ctx context.Context) (*mautrix.RespWhoami, error) {
	return &mautrix.RespWhoami{UserID: testBot, DeviceID: "DEVICE"}, nil
}

func (f *fakeAPI) UserTyping(ctx context.Context, roomID id.RoomID, typing bool, timeout time.Duration) (*mautrix.RespTyping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, typing)
	return &mautrix.RespTyping{}, nil
}

func (f *fakeAPI) JoinedMembers(ctx context.Context, roomID id.RoomID) (*mautrix.RespJoinedMembers, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.memberErr != nil {
		return nil, f.memberErr
	}
	joined := make(map[string]any)
	for i := 0; i < f.members[roomID]; i++ {
		joined[fmt.Sprintf("@user%d:example.org", i)] = map[string]any{}
	}
	data, _ := json.Marshal(map[string]any{"joined": joined})
	var resp mautrix.RespJoinedMembers
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (f *fakeAPI) lastSent() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakeHandler struct {
	mu           sync.Mutex
	events       []*inbound.Event
	interactions []*inbound.Interaction
}

func (h *fakeHandler) HandleEvent(ctx context.Context, evt *inbound.Event) flow.Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, evt)
	return flow.Result{Status: flow.StatusHandled}
}

func (h *fakeHandler) HandleInteraction(ctx context.Context, in *inbound.Interaction) flow.Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interactions = append(h.interactions, in)
	return flow.Result{Status: flow.StatusHandled}
}

func textEvent(sender id.UserID, room id.RoomID, eventID id.EventID, content *event.MessageEventContent) *event.Event {
	return &event.Event{
		Sender:  sender,
		RoomID:  room,
		ID:      eventID,
		Type:    event.EventMessage,
		Content: event.Content{Parsed: content, Raw: map[string]any{"body": content.Body}},
	}
}

func reactionEvent(sender id.UserID, room id.RoomID, target id.EventID, key string) *event.Event {
	return &event.Event{
		Sender: sender,
		RoomID: room,
		ID:     "$reaction",
		Type:   event.EventReaction,
		Content: event.Content{Parsed: &event.ReactionEventContent{
			RelatesTo: event.RelatesTo{Type: event.RelAnnotation, EventID: target, Key: key},
		}},
	}
}
