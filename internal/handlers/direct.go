// ABOUTME: Handler for direct-message flows: help, the guided workflow wizard, and acknowledgements
// ABOUTME: Wizard progress lives in flow metadata so each turn picks up where the last left off

package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/flowkeeper/internal/flow"
	"github.com/2389/flowkeeper/internal/gateway"
)

const helpText = "Here's how I can help you:\n\n" +
	"• *Mentions*: Mention me in a channel and I'll answer in a thread\n" +
	"• *Guided Workflows*: Say \"workflow\" and I'll collect a code review, PR, or bug request step by step\n" +
	"• *Help*: Say \"help\" to see this message again\n\n" +
	"Everything you tell me in a workflow is kept with the conversation."

// Direct handles one-to-one conversations with the bot.
type Direct struct {
	out    flow.Outbound
	logger *slog.Logger
}

func (h *Direct) HandleFlow(ctx context.Context, f *flow.Flow, in flow.Input) (flow.Result, error) {
	text := strings.TrimSpace(answer(in))
	lower := strings.ToLower(text)

	switch {
	case f.MetaInt(MetaWorkflowStep) > 0:
		return h.continueWorkflow(ctx, f, text)
	case strings.Contains(lower, "help"):
		if err := h.out.Complete(ctx, f, true, helpText); err != nil {
			return flow.Result{}, err
		}
		return flow.Result{Status: flow.StatusHandled, Message: "help request handled", Response: helpText}, nil
	case strings.Contains(lower, "workflow") || strings.Contains(lower, "multi-step"):
		return h.startWorkflow(ctx, f)
	default:
		reply := fmt.Sprintf("I received your message: '%s'\n\n"+
			"Say \"help\" to see what I can do, or \"workflow\" to start a guided workflow.", text)
		return h.reply(ctx, f, reply, nil, nil, "message acknowledged")
	}
}

func (h *Direct) startWorkflow(ctx context.Context, f *flow.Flow) (flow.Result, error) {
	prompt := "I'll guide you through a multi-step workflow. Let's get started!\n\n" +
		"*Step 1*: What type of workflow do you need help with?\n" + choiceList()
	h.logger.Info("workflow started", "flow_id", f.ID())
	return h.reply(ctx, f, prompt, choiceBlocks(prompt), map[string]any{MetaWorkflowStep: 1}, "workflow started")
}

func (h *Direct) continueWorkflow(ctx context.Context, f *flow.Flow, text string) (flow.Result, error) {
	step := f.MetaInt(MetaWorkflowStep)

	if step == 1 {
		w, ok := chooseWorkflow(text)
		if !ok {
			retry := "I didn't recognize that workflow type. Please choose one of the following:\n\n" + choiceList()
			return h.reply(ctx, f, retry, choiceBlocks(retry), nil, "workflow step 1 repeated")
		}
		prompt := fmt.Sprintf("Great! Let's set up a %s workflow.\n\n*Step 2*: %s", strings.ToLower(w.Label), w.Ask2)
		return h.reply(ctx, f, prompt, nil, map[string]any{
			MetaWorkflowStep: 2,
			MetaWorkflowType: w.Type,
		}, "workflow step 1 processed")
	}

	w, ok := workflowByType(f.MetaString(MetaWorkflowType))
	if !ok {
		return flow.Result{}, fmt.Errorf("workflow step %d without a known workflow type %q", step, f.MetaString(MetaWorkflowType))
	}

	switch step {
	case 2:
		prompt := fmt.Sprintf(w.Thanks+"\n\n*Step 3*: %s", text, w.Ask3)
		return h.reply(ctx, f, prompt, nil, map[string]any{
			MetaWorkflowStep: 3,
			w.Key2:           text,
		}, "workflow step 2 processed")
	case 3:
		h.out.UpdateMetadata(f, map[string]any{w.Key3: text})
		final := fmt.Sprintf(w.Final, text)
		if err := h.out.Complete(ctx, f, true, final); err != nil {
			return flow.Result{}, err
		}
		h.logger.Info("workflow completed", "flow_id", f.ID(), "workflow", w.Type)
		return flow.Result{
			Status:   flow.StatusHandled,
			Message:  "workflow completed",
			Response: final,
			Data:     f.Metadata(),
		}, nil
	default:
		return flow.Result{}, fmt.Errorf("unexpected workflow step %d", step)
	}
}

// reply sends text (with optional blocks), merges metadata, and leaves the
// flow waiting for the user's next message.
func (h *Direct) reply(ctx context.Context, f *flow.Flow, text string, blocks []gateway.Block, meta map[string]any, summary string) (flow.Result, error) {
	if _, err := h.out.Send(ctx, f, gateway.Outgoing{Text: text, Blocks: blocks}); err != nil {
		return flow.Result{}, err
	}
	if meta != nil {
		h.out.UpdateMetadata(f, meta)
	}
	if err := h.out.SetState(f, flow.StateWaitingForResponse); err != nil {
		return flow.Result{}, err
	}
	return flow.Result{Status: flow.StatusHandled, Message: summary, Response: text}, nil
}
