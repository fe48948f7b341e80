// ABOUTME: Outbound operations handlers use to talk back through the gateway
// ABOUTME: Every successful call is mirrored into the flow's message history

package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/flowkeeper/internal/gateway"
	"github.com/2389/flowkeeper/internal/inbound"
)

// Outbound is the surface handlers use to reply and to drive their flow.
// *Orchestrator implements it.
type Outbound interface {
	Send(ctx context.Context, f *Flow, msg gateway.Outgoing) (string, error)
	Update(ctx context.Context, f *Flow, messageID, text string, blocks []gateway.Block) error
	Delete(ctx context.Context, f *Flow, messageID string) error
	Complete(ctx context.Context, f *Flow, success bool, finalText string) error
	UpdateMetadata(f *Flow, updates map[string]any)
	SetState(f *Flow, state State) error
	Extractor() inbound.Extractor
}

var _ Outbound = (*Orchestrator)(nil)

// Send posts msg into the flow's channel and thread and records it.
func (o *Orchestrator) Send(ctx context.Context, f *Flow, msg gateway.Outgoing) (string, error) {
	c := f.Context()
	id, err := o.gw.PostMessage(ctx, c.ChannelID, c.ThreadID, msg)
	if err != nil {
		o.gatewayFailed(gateway.OpPost, err)
		return "", err
	}

	f.appendMessage(Message{
		Direction:   DirectionOutgoing,
		Text:        msg.Text,
		Blocks:      msg.Blocks,
		Attachments: msg.Attachments,
		Timestamp:   o.now(),
		PlatformID:  id,
	}, o.now())
	return id, nil
}

// Update edits a message the flow posted. Blocks are replaced only when non-nil.
// Incoming entries are never edited, and unknown IDs fail before any gateway call.
func (o *Orchestrator) Update(ctx context.Context, f *Flow, messageID, text string, blocks []gateway.Block) error {
	if !f.postedMessage(messageID) {
		return fmt.Errorf("update %s: %w", messageID, ErrMessageNotFound)
	}
	if err := o.gw.UpdateMessage(ctx, f.Context().ChannelID, messageID, text, blocks); err != nil {
		o.gatewayFailed(gateway.OpUpdate, err)
		return err
	}
	if !f.editMessage(messageID, text, blocks, o.now()) {
		return fmt.Errorf("update %s: %w", messageID, ErrMessageNotFound)
	}
	return nil
}

// Delete removes a message the flow posted from the platform and from the
// flow's history.
func (o *Orchestrator) Delete(ctx context.Context, f *Flow, messageID string) error {
	if !f.postedMessage(messageID) {
		return fmt.Errorf("delete %s: %w", messageID, ErrMessageNotFound)
	}
	if err := o.gw.DeleteMessage(ctx, f.Context().ChannelID, messageID); err != nil {
		o.gatewayFailed(gateway.OpDelete, err)
		return err
	}
	if !f.removeMessage(messageID, o.now()) {
		return fmt.Errorf("delete %s: %w", messageID, ErrMessageNotFound)
	}
	return nil
}

// Complete finishes the flow as Completed or Error and optionally posts a
// final message. The state change stands even if that post fails.
func (o *Orchestrator) Complete(ctx context.Context, f *Flow, success bool, finalText string) error {
	final := StateCompleted
	if !success {
		final = StateError
	}
	if err := f.transition(final, o.now()); err != nil {
		return err
	}
	o.logger.Info("flow finished", "flow_id", f.ID(), "kind", f.Kind(), "state", final)

	if finalText == "" {
		return nil
	}
	if _, err := o.Send(ctx, f, gateway.Outgoing{Text: finalText}); err != nil {
		return fmt.Errorf("sending final message: %w", err)
	}
	return nil
}

// UpdateMetadata merges updates into the flow's metadata; later keys win.
func (o *Orchestrator) UpdateMetadata(f *Flow, updates map[string]any) {
	f.mergeMetadata(updates, o.now())
}

// SetState moves the flow to state if the transition is allowed.
func (o *Orchestrator) SetState(f *Flow, state State) error {
	return f.transition(state, o.now())
}

func (o *Orchestrator) gatewayFailed(op string, err error) {
	o.observer.GatewayFailed(op)
	var gerr *gateway.Error
	if errors.As(err, &gerr) {
		o.logger.Warn("gateway call failed", "op", gerr.Op, "channel", gerr.Channel, "error", gerr.Err)
		return
	}
	o.logger.Warn("gateway call failed", "op", op, "error", err)
}
