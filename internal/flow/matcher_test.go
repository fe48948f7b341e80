// ABOUTME: Tests for flow matching rules and tie-breaking
// ABOUTME: Builds flows directly in a store and queries the matcher

package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/flowkeeper/internal/inbound"
)

func putFlow(s *Store, id string, c inbound.Context, updated time.Time) *Flow {
	f := newFlow(id, KindDefault, c, time.Hour, epoch)
	f.updatedAt = updated
	s.Put(f)
	return f
}

func TestMatcher_Empty(t *testing.T) {
	m := NewMatcher(NewStore())
	assert.Nil(t, m.FindActive(inbound.Context{UserID: "U1", ChannelID: "C1", ThreadID: "1.0"}))
}

func TestMatcher_SameThreadAnyUser(t *testing.T) {
	s := NewStore()
	f := putFlow(s, "f1", inbound.Context{UserID: "U1", ChannelID: "C1", ThreadID: "1.0"}, epoch)
	m := NewMatcher(s)

	assert.Same(t, f, m.FindActive(inbound.Context{UserID: "U2", ChannelID: "C1", ThreadID: "1.0"}))
	assert.Nil(t, m.FindActive(inbound.Context{UserID: "U2", ChannelID: "C2", ThreadID: "1.0"}), "thread IDs are scoped to a channel")
	assert.Nil(t, m.FindActive(inbound.Context{UserID: "U2", ChannelID: "C1", ThreadID: "9.0"}))
}

func TestMatcher_SkipsTerminal(t *testing.T) {
	s := NewStore()
	f := putFlow(s, "f1", inbound.Context{UserID: "U1", ChannelID: "C1", ThreadID: "1.0"}, epoch)
	require.NoError(t, f.transition(StateCompleted, epoch))

	assert.Nil(t, NewMatcher(s).FindActive(inbound.Context{UserID: "U1", ChannelID: "C1", ThreadID: "1.0"}))
}

func TestMatcher_DirectMessages(t *testing.T) {
	tests := []struct {
		name      string
		stored    inbound.Context
		incoming  inbound.Context
		wantMatch bool
	}{
		{
			name:      "both direct",
			stored:    inbound.Context{UserID: "U1", ChannelID: "D1", IsDirectMessage: true},
			incoming:  inbound.Context{UserID: "U1", ChannelID: "D1", IsDirectMessage: true},
			wantMatch: true,
		},
		{
			name:      "stored was a channel mention",
			stored:    inbound.Context{UserID: "U1", ChannelID: "C1", ThreadID: "1.0", IsMention: true},
			incoming:  inbound.Context{UserID: "U1", ChannelID: "C1", IsDirectMessage: true},
			wantMatch: false,
		},
		{
			name:      "different user",
			stored:    inbound.Context{UserID: "U1", ChannelID: "D1", IsDirectMessage: true},
			incoming:  inbound.Context{UserID: "U2", ChannelID: "D1", IsDirectMessage: true},
			wantMatch: false,
		},
		{
			name:      "different channel",
			stored:    inbound.Context{UserID: "U1", ChannelID: "D1", IsDirectMessage: true},
			incoming:  inbound.Context{UserID: "U1", ChannelID: "D2", IsDirectMessage: true},
			wantMatch: false,
		},
		{
			name:      "channel top-level messages with different roots",
			stored:    inbound.Context{UserID: "U1", ChannelID: "C1", ThreadID: "1.0"},
			incoming:  inbound.Context{UserID: "U1", ChannelID: "C1", ThreadID: "2.0"},
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			f := putFlow(s, "f1", tt.stored, epoch)
			got := NewMatcher(s).FindActive(tt.incoming)
			if tt.wantMatch {
				assert.Same(t, f, got)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestMatcher_InteractionTargetsPostingFlow(t *testing.T) {
	s := NewStore()
	older := putFlow(s, "f1", inbound.Context{UserID: "U1", ChannelID: "C1", ThreadID: "1.0"}, epoch)
	older.appendMessage(Message{Direction: DirectionOutgoing, PlatformID: "m1"}, epoch)
	putFlow(s, "f2", inbound.Context{UserID: "U1", ChannelID: "C1", ThreadID: "1.0"}, epoch.Add(time.Minute))

	got := NewMatcher(s).FindActive(inbound.Context{
		UserID:          "U1",
		ChannelID:       "C1",
		ThreadID:        "1.0",
		MessageID:       "m1",
		FromInteraction: true,
	})
	assert.Same(t, older, got, "the flow that posted the button wins over the newer thread match")
}

func TestMatcher_InteractionFallsBackToThread(t *testing.T) {
	s := NewStore()
	f := putFlow(s, "f1", inbound.Context{UserID: "U1", ChannelID: "C1", ThreadID: "1.0"}, epoch)

	got := NewMatcher(s).FindActive(inbound.Context{
		UserID: "U1", ChannelID: "C1", ThreadID: "1.0", MessageID: "unknown", FromInteraction: true,
	})
	assert.Same(t, f, got)
}

func TestMatcher_TieBreak(t *testing.T) {
	c := inbound.Context{UserID: "U1", ChannelID: "C1", ThreadID: "1.0"}

	t.Run("most recently updated wins", func(t *testing.T) {
		s := NewStore()
		putFlow(s, "f1", c, epoch)
		newer := putFlow(s, "f2", c, epoch.Add(time.Second))
		putFlow(s, "f3", c, epoch.Add(-time.Second))

		for range 20 {
			assert.Same(t, newer, NewMatcher(s).FindActive(c))
		}
	})

	t.Run("equal timestamps fall back to lowest id", func(t *testing.T) {
		s := NewStore()
		putFlow(s, "f-b", c, epoch)
		lowest := putFlow(s, "f-a", c, epoch)
		putFlow(s, "f-c", c, epoch)

		for range 20 {
			assert.Same(t, lowest, NewMatcher(s).FindActive(c))
		}
	})
}
