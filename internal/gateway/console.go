// ABOUTME: Console Gateway that prints outbound traffic to a terminal
// ABOUTME: Backs the replay command so flows can be exercised without a homeserver

package gateway

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Console implements Gateway by writing every operation to w.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	botID  string
	nextID int

	post   *color.Color
	edit   *color.Color
	delete *color.Color
}

// NewConsole creates a Console gateway that reports botID from WhoAmI.
func NewConsole(w io.Writer, botID string) *Console {
	return &Console{
		w:      w,
		botID:  botID,
		post:   color.New(color.FgGreen),
		edit:   color.New(color.FgYellow),
		delete: color.New(color.FgRed),
	}
}

func (c *Console) PostMessage(ctx context.Context, channel, threadID string, msg Outgoing) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := fmt.Sprintf("out-%d", c.nextID)

	where := channel
	if threadID != "" {
		where += " thread " + threadID
	}
	c.post.Fprintf(c.w, "    ◀ [%s] %s\n", id, where)
	fmt.Fprintln(c.w, indent(msg.Text))
	if len(msg.Blocks) > 0 {
		fmt.Fprintf(c.w, "      (%d blocks)\n", len(msg.Blocks))
	}
	return id, nil
}

func (c *Console) UpdateMessage(ctx context.Context, channel, messageID, text string, blocks []Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.edit.Fprintf(c.w, "    ✎ [%s] %s\n", messageID, channel)
	fmt.Fprintln(c.w, indent(text))
	return nil
}

func (c *Console) DeleteMessage(ctx context.Context, channel, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.delete.Fprintf(c.w, "    ✗ [%s] %s\n", messageID, channel)
	return nil
}

func (c *Console) WhoAmI(ctx context.Context) (string, error) {
	return c.botID, nil
}

func indent(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = "      " + l
	}
	return strings.Join(lines, "\n")
}
