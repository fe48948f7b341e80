// ABOUTME: Registration of the built-in handlers and shared helpers
// ABOUTME: Turns events and interactions into the answer text handlers act on

package handlers

import (
	"log/slog"
	"strings"

	"github.com/2389/flowkeeper/internal/flow"
)

// Registrar is the part of the orchestrator Register needs.
type Registrar interface {
	flow.Outbound
	Register(kind flow.Kind, h flow.Handler)
}

// Register installs the built-in handlers on r.
func Register(r Registrar, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "handlers")

	r.Register(flow.KindMention, &Mention{out: r, logger: logger})
	r.Register(flow.KindDirectMessage, &Direct{out: r, logger: logger})
	ack := &Acknowledge{out: r, logger: logger}
	r.Register(flow.KindViewSubmission, ack)
	r.Register(flow.KindViewClosed, ack)
}

// answer is what the user said this turn: the message text, or for an
// interaction the IDs of the actions taken.
func answer(in flow.Input) string {
	if in.Event != nil {
		return in.Event.Text
	}
	return strings.Join(in.ActionIDs(), " ")
}
