// Package matrix connects the orchestrator to a Matrix homeserver.
//
// Gateway implements gateway.Gateway on top of a mautrix client: posts are
// m.room.message events (Markdown rendered to HTML), threads are m.thread
// relations, updates are m.replace edits, and deletes are redactions.
//
// Bridge runs the sync loop and translates room traffic into the chat
// event shapes the orchestrator understands:
//
//   - a room with exactly two members is a direct message (channel_type "im")
//   - an m.mentions pill, the bot's user ID in the body, or the configured
//     command prefix makes a message an app_mention
//   - a reply inside a thread carries the thread root as its thread_ts
//   - a reaction on one of the bot's own posts becomes a block_actions
//     interaction; keycap reactions pick the numbered button of that post
//
// In group rooms only mentions and replies in threads the bot has posted to
// are forwarded. Everything else is room chatter.
//
// SetupCrypto enables end-to-end encryption through mautrix's cryptohelper,
// backed by a SQLite store.
package matrix
