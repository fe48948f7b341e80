// Package gateway defines the Message Gateway: the outbound boundary through
// which the orchestrator posts, edits, and deletes chat messages.
//
// # Interface
//
// A Gateway implementation talks to one chat platform:
//
//	id, err := gw.PostMessage(ctx, channel, threadID, gateway.Outgoing{Text: "hi"})
//	err = gw.UpdateMessage(ctx, channel, id, "hi again", nil)
//	err = gw.DeleteMessage(ctx, channel, id)
//	botID, err := gw.WhoAmI(ctx)
//
// The Matrix implementation lives in internal/matrix. This package also
// provides:
//
//   - WithTimeout: a decorator bounding every call with a deadline and
//     wrapping failures in *Error
//   - MockGateway: an in-memory recorder with failure injection for tests
//   - Console: writes outbound traffic to a terminal for the replay command
//
// # Errors
//
// Every failure surfaced by WithTimeout is an *Error carrying the operation
// and channel. Use errors.As to inspect it.
package gateway
