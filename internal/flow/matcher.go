// ABOUTME: Flow Matcher deciding which live flow an inbound context continues
// ABOUTME: Applies interaction, thread, and user/channel rules with a deterministic tie-break

package flow

import (
	"time"

	"github.com/2389/flowkeeper/internal/inbound"
)

// Matcher finds the live flow an inbound context belongs to.
type Matcher struct {
	store *Store
}

func NewMatcher(store *Store) *Matcher {
	return &Matcher{store: store}
}

type candidate struct {
	flow      *Flow
	updatedAt time.Time
}

// FindActive returns the live flow c continues, or nil if none does.
func (m *Matcher) FindActive(c inbound.Context) *Flow {
	live := m.live()
	if len(live) == 0 {
		return nil
	}

	if c.FromInteraction && c.MessageID != "" {
		if f := pick(live, func(f *Flow) bool {
			return f.ctx.ChannelID == c.ChannelID && f.postedMessage(c.MessageID)
		}); f != nil {
			return f
		}
	}

	if c.ThreadID != "" {
		if f := pick(live, func(f *Flow) bool {
			return f.ctx.ThreadID == c.ThreadID && f.ctx.ChannelID == c.ChannelID
		}); f != nil {
			return f
		}
	}

	return pick(live, func(f *Flow) bool {
		fc := f.ctx
		if fc.UserID != c.UserID || fc.ChannelID != c.ChannelID {
			return false
		}
		if fc.IsDirectMessage && c.IsDirectMessage {
			return true
		}
		return fc.ThreadID != "" && fc.ThreadID == c.ThreadID
	})
}

func (m *Matcher) live() []candidate {
	flows := m.store.Values()
	out := make([]candidate, 0, len(flows))
	for _, f := range flows {
		state, updated := f.view()
		if state.IsTerminal() {
			continue
		}
		out = append(out, candidate{flow: f, updatedAt: updated})
	}
	return out
}

// pick returns the most recently updated candidate satisfying ok, breaking
// ties on the lowest ID.
func pick(cands []candidate, ok func(*Flow) bool) *Flow {
	var best *candidate
	for i := range cands {
		c := &cands[i]
		if !ok(c.flow) {
			continue
		}
		if best == nil ||
			c.updatedAt.After(best.updatedAt) ||
			(c.updatedAt.Equal(best.updatedAt) && c.flow.id < best.flow.id) {
			best = c
		}
	}
	if best == nil {
		return nil
	}
	return best.flow
}
