// ABOUTME: Converts outgoing message text and blocks into Matrix message bodies
// ABOUTME: Markdown goes to formatted_body via goldmark; buttons become numbered reactions

package matrix

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/2389/flowkeeper/internal/gateway"
)

// renderMarkdown converts text to HTML. It returns "" when the HTML adds
// nothing over the plain body, so no formatted_body needs to be sent.
func renderMarkdown(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		return ""
	}
	out := buf.String()
	if out == "<p>"+html.EscapeString(text)+"</p>\n" {
		return ""
	}
	return strings.TrimSuffix(out, "\n")
}

// button is one choice offered on a post.
type button struct {
	ActionID string
	Label    string
}

// keycaps are the reactions that pick a button by position.
var keycaps = []string{"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣"}

// buttons collects the buttons of every "actions" block, up to one per keycap.
func buttons(blocks []gateway.Block) []button {
	var out []button
	for _, block := range blocks {
		if block["type"] != "actions" {
			continue
		}
		for _, el := range elements(block["elements"]) {
			id, _ := el["action_id"].(string)
			if id == "" {
				continue
			}
			out = append(out, button{ActionID: id, Label: label(el, id)})
			if len(out) == len(keycaps) {
				return out
			}
		}
	}
	return out
}

func elements(v any) []map[string]any {
	switch els := v.(type) {
	case []map[string]any:
		return els
	case []any:
		out := make([]map[string]any, 0, len(els))
		for _, el := range els {
			if m, ok := el.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func label(el map[string]any, fallback string) string {
	switch t := el["text"].(type) {
	case string:
		return t
	case map[string]any:
		if s, ok := t["text"].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// withButtons appends the reaction legend for buttons to text.
func withButtons(text string, btns []button) string {
	if len(btns) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\nReact with:\n")
	for i, btn := range btns {
		fmt.Fprintf(&b, "- %s %s\n", keycaps[i], btn.Label)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// actionFor maps a reaction key to an action ID. A keycap or digit picks the
// button at that position; any other key is passed through as the action ID.
func actionFor(key string, actions []string) string {
	for i, k := range keycaps {
		if key == k || key == fmt.Sprint(i+1) {
			if i < len(actions) {
				return actions[i]
			}
			return key
		}
	}
	return key
}
