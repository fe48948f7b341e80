// Package handlers provides the built-in flow handlers the bot ships with.
//
// Register binds them on an orchestrator:
//
//   - mention: echoes the mention text back and waits for follow-ups
//   - direct_message: "help" listing, a guided three-step workflow wizard,
//     and a plain acknowledgement for everything else
//   - view_submission / view_closed: acknowledge and close the flow
//
// Interactions that land on an existing flow reach that flow's handler, so a
// button clicked on a wizard prompt (or a reaction on Matrix) is read as the
// user's answer to the current step.
package handlers
