// ABOUTME: Context extraction from inbound events and interactions
// ABOUTME: Normalizes who/where/thread addressing; never fails on missing fields

package inbound

import "strings"

// Context is the normalized addressing information of one inbound event.
// It is created once per event and never mutated.
type Context struct {
	UserID    string
	ChannelID string
	ThreadID  string
	MessageID string
	TeamID    string

	IsDirectMessage bool
	IsMention       bool
	FromInteraction bool

	Raw map[string]any
}

// MentionFormat renders the token that appears in message text when the bot
// is mentioned.
type MentionFormat func(botUserID string) string

// SlackMention is the default mention format: <@U123>.
func SlackMention(botUserID string) string {
	return "<@" + botUserID + ">"
}

// BareMention matches the bot's user ID anywhere in the text, which is how
// Matrix clients render pills in the plain-text body.
func BareMention(botUserID string) string {
	return botUserID
}

// Extractor derives Contexts. The zero value works but never detects
// mentions by text.
type Extractor struct {
	BotUserID string
	Mention   MentionFormat
}

// MentionToken returns the token that marks a mention of the bot, or "" if
// the bot identity is unknown.
func (x Extractor) MentionToken() string {
	if x.BotUserID == "" {
		return ""
	}
	format := x.Mention
	if format == nil {
		format = SlackMention
	}
	return format(x.BotUserID)
}

// FromEvent builds the Context of a message event.
func (x Extractor) FromEvent(evt *Event) Context {
	if evt == nil {
		return Context{}
	}
	isIM := evt.ChannelType == ChannelTypeIM

	thread := evt.ThreadTS
	if thread == "" && !isIM {
		thread = evt.TS
	}

	isMention := evt.Type == TypeAppMention
	if !isMention {
		if token := x.MentionToken(); token != "" && evt.Text != "" {
			isMention = strings.Contains(evt.Text, token)
		}
	}

	return Context{
		UserID:          evt.User,
		ChannelID:       evt.Channel,
		ThreadID:        thread,
		MessageID:       evt.TS,
		TeamID:          evt.Team,
		IsDirectMessage: isIM,
		IsMention:       isMention,
		Raw:             evt.Raw,
	}
}

// FromInteraction builds the Context of an interaction payload.
func (x Extractor) FromInteraction(in *Interaction) Context {
	if in == nil {
		return Context{FromInteraction: true}
	}
	return Context{
		UserID:          in.User.ID,
		ChannelID:       in.Channel.ID,
		ThreadID:        in.Message.ThreadTS,
		MessageID:       in.Message.TS,
		FromInteraction: true,
		Raw:             in.Raw,
	}
}

// StripMention removes the bot's mention token from text and trims the result.
func (x Extractor) StripMention(text string) string {
	if token := x.MentionToken(); token != "" {
		text = strings.ReplaceAll(text, token, "")
	}
	return strings.TrimSpace(text)
}
