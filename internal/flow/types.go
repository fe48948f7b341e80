// ABOUTME: Flow states, kinds, message entries, handler results, and sentinel errors
// ABOUTME: Maps inbound event and interaction types onto typed flow kinds

package flow

import (
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/2389/flowkeeper/internal/gateway"
	"github.com/2389/flowkeeper/internal/inbound"
)

// State is the lifecycle state of a flow.
type State string

const (
	StateInitiated          State = "initiated"
	StateWaitingForResponse State = "waiting_for_response"
	StateProcessing         State = "processing"
	StateCompleted          State = "completed"
	StateTimedOut           State = "timed_out"
	StateError              State = "error"
)

// IsTerminal reports whether no further transitions are allowed.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateTimedOut || s == StateError
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	switch s {
	case StateInitiated, StateWaitingForResponse, StateProcessing,
		StateCompleted, StateTimedOut, StateError:
		return true
	}
	return false
}

// Kind is the logical category of a flow; it selects the handler.
type Kind string

const (
	KindMention        Kind = "mention"
	KindDirectMessage  Kind = "direct_message"
	KindChannelMessage Kind = "channel_message"
	KindBlockActions   Kind = "block_actions"
	KindViewSubmission Kind = "view_submission"
	KindViewClosed     Kind = "view_closed"
	KindInteraction    Kind = "interaction"
	KindDefault        Kind = "default"
)

// KindForEvent derives the kind of a flow started by evt.
func KindForEvent(evt *inbound.Event) Kind {
	switch evt.Type {
	case inbound.TypeAppMention:
		return KindMention
	case inbound.TypeMessage:
		if evt.ChannelType == inbound.ChannelTypeIM {
			return KindDirectMessage
		}
		return KindChannelMessage
	default:
		return KindDefault
	}
}

// KindForInteraction derives the kind of a flow started by an interaction.
func KindForInteraction(in *inbound.Interaction) Kind {
	switch in.Type {
	case inbound.TypeBlockActions:
		return KindBlockActions
	case inbound.TypeViewSubmission:
		return KindViewSubmission
	case inbound.TypeViewClosed:
		return KindViewClosed
	default:
		return KindInteraction
	}
}

// Direction says where a message entry came from.
type Direction string

const (
	DirectionIncoming    Direction = "incoming"
	DirectionOutgoing    Direction = "outgoing"
	DirectionInteraction Direction = "interaction"
)

// Message is one entry in a flow's history.
type Message struct {
	Direction   Direction
	Text        string
	Blocks      []gateway.Block
	Attachments []gateway.Attachment
	Actions     []string
	Timestamp   time.Time
	// PlatformID is the chat platform's identifier for the message: the
	// event ts for incoming entries, the gateway-returned ID for outgoing ones.
	PlatformID string
}

// clone copies m so history entries never share slices or top-level block
// maps with callers.
func (m Message) clone() Message {
	m.Blocks = cloneBlocks(m.Blocks)
	if m.Attachments != nil {
		atts := make([]gateway.Attachment, len(m.Attachments))
		for i, a := range m.Attachments {
			atts[i] = maps.Clone(a)
		}
		m.Attachments = atts
	}
	m.Actions = slices.Clone(m.Actions)
	return m
}

func cloneBlocks(blocks []gateway.Block) []gateway.Block {
	if blocks == nil {
		return nil
	}
	out := make([]gateway.Block, len(blocks))
	for i, b := range blocks {
		out[i] = maps.Clone(b)
	}
	return out
}

// Status classifies a Result.
type Status string

const (
	StatusHandled  Status = "handled"
	StatusFallback Status = "fallback"
	StatusIgnored  Status = "ignored"
	StatusError    Status = "error"
)

// Result describes what happened to one inbound event. It is returned to
// whoever delivered the event; the orchestrator only fills in FlowID and
// Status when a handler leaves them empty.
type Result struct {
	Status   Status         `json:"status"`
	FlowID   string         `json:"flow_id,omitempty"`
	Message  string         `json:"message,omitempty"`
	Response string         `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

var (
	// ErrTerminal is returned when mutating the state of a finished flow.
	ErrTerminal = errors.New("flow is in a terminal state")
	// ErrInvalidTransition is returned for a transition the state machine forbids.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrMessageNotFound is returned by Update and Delete for an unknown message ID.
	ErrMessageNotFound = errors.New("message not found in flow")
	// ErrNoHandler is logged when a kind has no registered handler. It never
	// reaches callers; the default handler takes over.
	ErrNoHandler = errors.New("no handler registered")
	// ErrBusy is returned when an event could not be attached to a live flow
	// after repeated attempts.
	ErrBusy = errors.New("could not route event to a live flow")
)
