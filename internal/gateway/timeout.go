// ABOUTME: Deadline-bounding decorator for Gateway implementations
// ABOUTME: Keeps a hung transport from stalling the sweeper or event handling

package gateway

import (
	"context"
	"errors"
	"time"
)

// DefaultCallTimeout bounds a single gateway call when no timeout is configured.
const DefaultCallTimeout = 10 * time.Second

// Bounded wraps a Gateway so every call runs under a deadline and every
// failure is an *Error.
type Bounded struct {
	next    Gateway
	timeout time.Duration
}

// WithTimeout decorates next. A non-positive timeout uses DefaultCallTimeout.
func WithTimeout(next Gateway, timeout time.Duration) *Bounded {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Bounded{next: next, timeout: timeout}
}

func (b *Bounded) PostMessage(ctx context.Context, channel, threadID string, msg Outgoing) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	id, err := b.next.PostMessage(ctx, channel, threadID, msg)
	if err != nil {
		return "", wrap(OpPost, channel, err)
	}
	return id, nil
}

func (b *Bounded) UpdateMessage(ctx context.Context, channel, messageID, text string, blocks []Block) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return wrap(OpUpdate, channel, b.next.UpdateMessage(ctx, channel, messageID, text, blocks))
}

func (b *Bounded) DeleteMessage(ctx context.Context, channel, messageID string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return wrap(OpDelete, channel, b.next.DeleteMessage(ctx, channel, messageID))
}

func (b *Bounded) WhoAmI(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	id, err := b.next.WhoAmI(ctx)
	if err != nil {
		return "", wrap(OpWhoAmI, "", err)
	}
	return id, nil
}

// wrap converts err into an *Error unless it already is one.
func wrap(op, channel string, err error) error {
	if err == nil {
		return nil
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return err
	}
	return &Error{Op: op, Channel: channel, Err: err}
}
