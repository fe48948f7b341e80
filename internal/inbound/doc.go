// Package inbound defines the platform-agnostic shapes of chat events and
// interaction payloads, and the extractor that derives an addressing
// Context from them.
//
// # Events
//
// An Event is an already-parsed chat message notification:
//
//	{"type": "app_mention", "user": "U1", "channel": "C1", "ts": "1.0", "text": "hi"}
//
// An Interaction is a user acting on something the bot posted (a button,
// a modal submission, a reaction):
//
//	{"type": "block_actions", "user": {"id": "U1"}, "channel": {"id": "C1"},
//	 "message": {"ts": "2.0"}, "actions": [{"action_id": "approve"}]}
//
// Both keep the full decoded object in Raw so handlers can read fields this
// package does not model.
//
// # Context extraction
//
// The Extractor never fails. Missing fields become empty strings or false.
// A top-level channel message is treated as the root of its own thread, so
// replies posted in that thread carry the same ThreadID. Direct messages
// have no thread fallback.
package inbound
