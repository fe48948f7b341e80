// ABOUTME: Observer hook for flow lifecycle and gateway outcome reporting
// ABOUTME: The orchestrator calls it on creation, eviction, dispatch, and gateway failure

package flow

import "time"

// Source names where an inbound payload came from.
const (
	SourceEvent       = "event"
	SourceInteraction = "interaction"
)

// Observer receives lifecycle notifications. Implementations must be safe
// for concurrent use and must not block.
type Observer interface {
	FlowCreated(kind Kind)
	FlowEvicted(kind Kind, final State)
	EventHandled(source string, status Status, elapsed time.Duration)
	GatewayFailed(op string)
}

type nopObserver struct{}

func (nopObserver) FlowCreated(Kind)                           {}
func (nopObserver) FlowEvicted(Kind, State)                    {}
func (nopObserver) EventHandled(string, Status, time.Duration) {}
func (nopObserver) GatewayFailed(string)                       {}
