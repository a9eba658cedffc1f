// Package model holds the domain types shared across the pipeline.
// Stored messages are immutable; enrichment (e.g. voice transcription)
// produces copies via WithText, never in-place mutation.
package model

import (
	"strings"
	"time"
)

// Reaction is a single emoji reaction on a message.
type Reaction struct {
	Emoji     string `json:"emoji"`
	SenderJID string `json:"sender_jid"`
}

// Message represents one chat event as received from a channel and persisted.
type Message struct {
	MessageID string     `json:"message_id"`
	ChatJID   string     `json:"chat_jid"`
	SenderJID string     `json:"sender_jid"`
	GroupJID  string     `json:"group_jid,omitempty"` // empty = direct message
	Text      string     `json:"text,omitempty"`
	MediaURL  string     `json:"media_url,omitempty"`
	ReplyToID string     `json:"reply_to_id,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Reactions []Reaction `json:"reactions,omitempty"`
}

// IsGroup reports whether the message was sent in a group chat.
func (m Message) IsGroup() bool { return m.GroupJID != "" }

// WithText returns a copy of the message with the text field replaced.
// All other fields (identity included) are carried over unchanged; the
// copy is never persisted as a separate row.
func (m Message) WithText(text string) Message {
	m.Text = text
	return m
}

// Group is the per-group configuration record.
type Group struct {
	GroupJID      string   `json:"group_jid"`
	Name          string   `json:"name,omitempty"`
	Managed       bool     `json:"managed"`
	NotifyOnSpam  bool     `json:"notify_on_spam"`
	CommunityKeys []string `json:"community_keys,omitempty"` // shared keys linking related groups
}

// OptOut marks a participant who asked not to be named in generated text.
// Existence of the record is the whole signal.
type OptOut struct {
	JID       string    `json:"jid"`
	CreatedAt time.Time `json:"created_at"`
}

// UserPart extracts the user portion of a JID ("12345@s.whatsapp.net" → "12345").
// JIDs without an "@" are returned as-is.
func UserPart(jid string) string {
	if idx := strings.IndexByte(jid, '@'); idx >= 0 {
		return jid[:idx]
	}
	return jid
}
