// Package flow implements the conversation flow orchestrator: it decides
// whether an inbound chat event continues an existing multi-turn
// conversation ("flow") or starts a new one, tracks each flow's state and
// message history, dispatches to a handler registered for the flow's kind,
// and expires flows that go quiet.
//
// # Components
//
//   - Store: the in-memory owner of every live flow
//   - Matcher: finds the live flow an event continues
//   - Registry: maps a flow Kind to its Handler, with a built-in default
//   - Orchestrator: HandleEvent / HandleInteraction plus the outbound
//     operations handlers call (Send, Update, Delete, Complete,
//     UpdateMetadata, SetState)
//   - Sweeper: background task that times out idle flows and evicts
//     terminal ones
//
// # Matching
//
// FindActive considers only non-terminal flows, first rule wins:
//
//  1. Interactions: the flow that posted the message the user acted on.
//  2. Same thread and channel, regardless of who posted.
//  3. Same user and channel, when both sides are direct messages or the
//     stored flow's thread equals the event's thread.
//
// Within a rule the most recently updated flow wins; equal timestamps fall
// back to the lowest ID so the choice is deterministic.
//
// # States
//
//	Initiated ──▶ WaitingForResponse ◀──▶ Processing
//	    │                 │                   │
//	    └────────────┬────┴───────────────────┘
//	                 ▼
//	    Completed | Error | TimedOut   (terminal)
//
// A terminal flow never changes state again, is ignored by matching, and is
// removed by the next sweep.
//
// # Concurrency
//
// The Store has one lock; each Flow guards its own fields. Matching and
// creation run under a routing lock so two events for the same new thread
// cannot both create a flow. Handler execution for one flow is serialized
// by a per-flow turn lock. Gateway calls never run under the store lock.
package flow
