// ABOUTME: Handler Registry mapping flow kinds to handlers
// ABOUTME: Dispatch falls back to the default handler for unregistered kinds

package flow

import (
	"context"
	"slices"
	"sync"

	"github.com/2389/flowkeeper/internal/inbound"
)

// Input is what a handler receives for one inbound event: the extracted
// Context plus exactly one of Event or Interaction.
type Input struct {
	Context     inbound.Context
	Event       *inbound.Event
	Interaction *inbound.Interaction
}

// Text returns the event text, or "" for interactions.
func (in Input) Text() string {
	if in.Event == nil {
		return ""
	}
	return in.Event.Text
}

// ActionIDs returns the interaction's action IDs, or nil for events.
func (in Input) ActionIDs() []string {
	if in.Interaction == nil {
		return nil
	}
	return in.Interaction.ActionIDs()
}

// Handler processes one event for a flow. Returning an error marks the flow
// as failed; the orchestrator reports it to the user and the caller.
type Handler interface {
	HandleFlow(ctx context.Context, f *Flow, in Input) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, f *Flow, in Input) (Result, error)

func (fn HandlerFunc) HandleFlow(ctx context.Context, f *Flow, in Input) (Result, error) {
	return fn(ctx, f, in)
}

// Registry maps kinds to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind]Handler
	fallback Handler
}

// NewRegistry creates a Registry that dispatches unregistered kinds to fallback.
func NewRegistry(fallback Handler) *Registry {
	return &Registry{
		handlers: make(map[Kind]Handler),
		fallback: fallback,
	}
}

// Register binds h to kind, replacing any earlier handler.
func (r *Registry) Register(kind Kind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

func (r *Registry) Lookup(kind Kind) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Resolve returns the handler for kind, or the fallback. The bool reports
// whether a registered handler was found.
func (r *Registry) Resolve(kind Kind) (Handler, bool) {
	if h, ok := r.Lookup(kind); ok {
		return h, true
	}
	return r.fallback, false
}

// Dispatch runs the handler for kind against f.
func (r *Registry) Dispatch(ctx context.Context, kind Kind, f *Flow, in Input) (Result, error) {
	h, _ := r.Resolve(kind)
	return h.HandleFlow(ctx, f, in)
}
