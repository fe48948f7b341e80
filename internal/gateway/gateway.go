// ABOUTME: Message Gateway interface and outbound message types
// ABOUTME: Defines the typed error wrapping every failed platform call

package gateway

import (
	"context"
	"fmt"
)

// Block is one structured layout element (Block Kit style). Platforms that
// have no equivalent carry blocks as opaque extra content.
type Block map[string]any

// Attachment is a legacy-style message attachment.
type Attachment map[string]any

// Outgoing is the content of a message to post.
type Outgoing struct {
	Text        string
	Blocks      []Block
	Attachments []Attachment
}

// Gateway sends, edits, and deletes messages on a chat platform.
type Gateway interface {
	// PostMessage posts to channel, inside threadID when it is non-empty,
	// and returns the platform identifier of the new message.
	PostMessage(ctx context.Context, channel, threadID string, msg Outgoing) (string, error)
	// UpdateMessage replaces the text (and blocks, when non-nil) of a message.
	UpdateMessage(ctx context.Context, channel, messageID, text string, blocks []Block) error
	// DeleteMessage removes a message.
	DeleteMessage(ctx context.Context, channel, messageID string) error
	// WhoAmI returns the bot's own user ID.
	WhoAmI(ctx context.Context) (string, error)
}

// Operation names used in Error.Op.
const (
	OpPost   = "post"
	OpUpdate = "update"
	OpDelete = "delete"
	OpWhoAmI = "whoami"
)

// Error is a failed gateway call.
type Error struct {
	Op      string
	Channel string
	Err     error
}

func (e *Error) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway %s in %s: %v", e.Op, e.Channel, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
