// ABOUTME: Handler for flows started by mentioning the bot
// ABOUTME: Replies with the mention text stripped of the bot's token

package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/flowkeeper/internal/flow"
	"github.com/2389/flowkeeper/internal/gateway"
)

// Mention greets the user and keeps the thread open for follow-ups.
type Mention struct {
	out    flow.Outbound
	logger *slog.Logger
}

func (h *Mention) HandleFlow(ctx context.Context, f *flow.Flow, in flow.Input) (flow.Result, error) {
	text := h.out.Extractor().StripMention(answer(in))
	h.logger.Debug("handling mention", "flow_id", f.ID(), "text", text)

	reply := fmt.Sprintf("Hello! I received your mention: '%s'\n\n"+
		"Reply in this thread to continue, or message me directly and say \"help\" to see what I can do.", text)

	if _, err := h.out.Send(ctx, f, gateway.Outgoing{Text: reply}); err != nil {
		return flow.Result{}, err
	}
	if err := h.out.SetState(f, flow.StateWaitingForResponse); err != nil {
		return flow.Result{}, err
	}
	return flow.Result{
		Status:   flow.StatusHandled,
		Message:  "mention handled",
		Response: reply,
	}, nil
}
