// ABOUTME: Handler for modal submissions and dismissals
// ABOUTME: Confirms a submission and closes the flow either way

package handlers

import (
	"context"
	"log/slog"

	"github.com/2389/flowkeeper/internal/flow"
	"github.com/2389/flowkeeper/internal/inbound"
)

const submittedText = "Thanks, your submission was received."

// Acknowledge finishes view_submission and view_closed flows.
type Acknowledge struct {
	out    flow.Outbound
	logger *slog.Logger
}

func (h *Acknowledge) HandleFlow(ctx context.Context, f *flow.Flow, in flow.Input) (flow.Result, error) {
	if in.Interaction != nil && in.Interaction.Type == inbound.TypeViewClosed {
		if err := h.out.Complete(ctx, f, true, ""); err != nil {
			return flow.Result{}, err
		}
		h.logger.Debug("view closed", "flow_id", f.ID())
		return flow.Result{Status: flow.StatusHandled, Message: "view closed"}, nil
	}

	if err := h.out.Complete(ctx, f, true, submittedText); err != nil {
		return flow.Result{}, err
	}
	return flow.Result{Status: flow.StatusHandled, Message: "submission received", Response: submittedText}, nil
}
