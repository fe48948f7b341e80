// ABOUTME: Inbound chat event and interaction payload shapes
// ABOUTME: Decodes JSON into typed structs while keeping the raw object around

package inbound

import (
	"encoding/json"
	"fmt"
)

// Event types understood by the orchestrator.
const (
	TypeAppMention = "app_mention"
	TypeMessage    = "message"
)

// ChannelTypeIM marks a direct-message conversation.
const ChannelTypeIM = "im"

// Interaction types.
const (
	TypeBlockActions   = "block_actions"
	TypeViewSubmission = "view_submission"
	TypeViewClosed     = "view_closed"
)

// Event is a parsed chat message notification.
type Event struct {
	Type        string `json:"type"`
	User        string `json:"user"`
	BotID       string `json:"bot_id,omitempty"`
	Channel     string `json:"channel"`
	ChannelType string `json:"channel_type,omitempty"`
	ThreadTS    string `json:"thread_ts,omitempty"`
	TS          string `json:"ts"`
	Text        string `json:"text,omitempty"`
	Team        string `json:"team,omitempty"`

	// Raw holds every field of the original payload, including the ones above.
	Raw map[string]any `json:"-"`
}

// ParseEvent decodes a JSON event payload.
func ParseEvent(data []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}
	if err := json.Unmarshal(data, &evt.Raw); err != nil {
		return nil, fmt.Errorf("decoding raw event: %w", err)
	}
	return &evt, nil
}

// Ref is the {"id": ...} wrapper interaction payloads use for users and channels.
type Ref struct {
	ID string `json:"id"`
}

// MessageRef identifies the message an interaction was performed on.
type MessageRef struct {
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

// Action is one element of an interaction's actions array.
type Action struct {
	ActionID string `json:"action_id"`
	BlockID  string `json:"block_id,omitempty"`
	Value    string `json:"value,omitempty"`
}

// Interaction is a parsed interaction payload.
type Interaction struct {
	Type    string     `json:"type"`
	User    Ref        `json:"user"`
	Channel Ref        `json:"channel"`
	Message MessageRef `json:"message"`
	Actions []Action   `json:"actions,omitempty"`

	Raw map[string]any `json:"-"`
}

// ParseInteraction decodes a JSON interaction payload.
func ParseInteraction(data []byte) (*Interaction, error) {
	var in Interaction
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decoding interaction: %w", err)
	}
	if err := json.Unmarshal(data, &in.Raw); err != nil {
		return nil, fmt.Errorf("decoding raw interaction: %w", err)
	}
	return &in, nil
}

// ActionIDs returns the action_id of every action, in order.
func (in *Interaction) ActionIDs() []string {
	ids := make([]string, 0, len(in.Actions))
	for _, a := range in.Actions {
		ids = append(ids, a.ActionID)
	}
	return ids
}

// IsInteraction reports whether a decoded JSON object looks like an
// interaction payload rather than a message event. Interactions carry a
// nested user object; events carry the user ID as a string.
func IsInteraction(raw map[string]any) bool {
	switch raw["type"] {
	case TypeBlockActions, TypeViewSubmission, TypeViewClosed, "interaction":
		return true
	}
	_, nested := raw["user"].(map[string]any)
	return nested
}
