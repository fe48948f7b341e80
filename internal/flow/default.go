// ABOUTME: Built-in fallback handler for flow kinds nobody registered
// ABOUTME: Replies with a capability listing, or echoes action IDs for interactions

package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/flowkeeper/internal/gateway"
)

const capabilityText = "Hello! I received your message, but I don't have a specific handler for this type of conversation. " +
	"Here's what I can do:\n\n" +
	"• Respond to mentions\n" +
	"• Process direct messages\n" +
	"• Walk you through multi-step workflows\n\n" +
	"Let me know how I can assist you!"

type defaultHandler struct {
	out Outbound
}

func (h defaultHandler) HandleFlow(ctx context.Context, f *Flow, in Input) (Result, error) {
	text := capabilityText
	msg := "default flow handled"
	if in.Interaction != nil {
		text = "I received your interaction, but I don't have a specific handler for this type of action. " +
			"Action IDs: " + strings.Join(in.ActionIDs(), ", ")
		msg = "default interaction handled"
	}

	if _, err := h.out.Send(ctx, f, gateway.Outgoing{Text: text}); err != nil {
		return Result{}, fmt.Errorf("sending default reply: %w", err)
	}
	if err := h.out.SetState(f, StateWaitingForResponse); err != nil {
		return Result{}, err
	}

	return Result{
		Status:   StatusFallback,
		FlowID:   f.ID(),
		Message:  msg,
		Response: text,
	}, nil
}
