// ABOUTME: Definitions of the guided workflows the direct-message handler walks through
// ABOUTME: Each workflow asks two follow-up questions and records the answers in metadata

package handlers

import (
	"fmt"
	"strings"

	"github.com/2389/flowkeeper/internal/gateway"
)

// Metadata keys the wizard keeps on the flow.
const (
	MetaWorkflowStep = "workflow_step"
	MetaWorkflowType = "workflow_type"
)

// actionPrefix marks button action IDs that choose a workflow.
const actionPrefix = "workflow_"

type workflow struct {
	Type  string
	Label string

	// Second step: the question and the metadata key its answer goes under.
	Ask2   string
	Key2   string
	Thanks string

	Ask3  string
	Key3  string
	Final string
}

var workflows = []workflow{
	{
		Type:   "code_review",
		Label:  "Code Review",
		Ask2:   "Please provide the GitHub repository URL or name.",
		Key2:   "repository",
		Thanks: "Thanks for providing the repository information: '%s'",
		Ask3:   "Please provide the branch or PR number you want to review.",
		Key3:   "branch",
		Final: "Perfect! I've recorded a code review for branch/PR: '%s'\n\n" +
			"The repository and branch are saved with this conversation.",
	},
	{
		Type:   "pr_creation",
		Label:  "PR Creation",
		Ask2:   "Please provide the GitHub repository URL or name.",
		Key2:   "repository",
		Thanks: "Thanks for providing the repository information: '%s'",
		Ask3:   "Please provide the branch name for the PR.",
		Key3:   "branch",
		Final: "Perfect! I've recorded a request to create a PR for branch: '%s'\n\n" +
			"The repository and branch are saved with this conversation.",
	},
	{
		Type:   "bug_investigation",
		Label:  "Bug Investigation",
		Ask2:   "Please describe the bug you're experiencing.",
		Key2:   "bug_description",
		Thanks: "Thanks for describing the bug: '%s'",
		Ask3:   "Please provide any error messages or logs you're seeing.",
		Key3:   "error_logs",
		Final: "Thanks for providing the error information: '%s'\n\n" +
			"The bug description and logs are saved with this conversation.",
	},
}

func workflowByType(typ string) (workflow, bool) {
	for _, w := range workflows {
		if w.Type == typ {
			return w, true
		}
	}
	return workflow{}, false
}

// chooseWorkflow matches the user's step-one answer against the labels
// ("code review"), the type names, and the button action IDs.
func chooseWorkflow(text string) (workflow, bool) {
	lower := strings.ToLower(text)
	for _, w := range workflows {
		if strings.Contains(lower, strings.ToLower(w.Label)) ||
			strings.Contains(lower, w.Type) {
			return w, true
		}
	}
	return workflow{}, false
}

func choiceList() string {
	var b strings.Builder
	for _, w := range workflows {
		fmt.Fprintf(&b, "• %s\n", w.Label)
	}
	return b.String()
}

// choiceBlocks renders the step-one buttons.
func choiceBlocks(prompt string) []gateway.Block {
	buttons := make([]any, 0, len(workflows))
	for _, w := range workflows {
		buttons = append(buttons, map[string]any{
			"type":      "button",
			"action_id": actionPrefix + w.Type,
			"text":      map[string]any{"type": "plain_text", "text": w.Label},
		})
	}
	return []gateway.Block{
		{"type": "section", "text": map[string]any{"type": "mrkdwn", "text": prompt}},
		{"type": "actions", "elements": buttons},
	}
}
