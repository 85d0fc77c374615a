// Package message defines the canonical shape every inbound event is
// converted into before it reaches the orchestrator, together with the
// per-platform output length policy.
package message

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bdobrica/Kotoba/common/errkind"
)

// Platform identifies the surface a message came from and where its reply
// goes.
type Platform string

const (
	Telegram  Platform = "telegram"
	Farcaster Platform = "farcaster"
	Twitter   Platform = "twitter"
)

// Known reports whether p is one of the supported platforms.
func (p Platform) Known() bool {
	switch p {
	case Telegram, Farcaster, Twitter:
		return true
	}
	return false
}

// Author identifies who sent a message. Username is the partition key for
// conversation history and long-term memory.
type Author struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`

	// Telegram
	ChatID int64 `json:"chat_id,omitempty"`

	// Farcaster
	FID            string   `json:"fid,omitempty"`
	CustodyAddress string   `json:"custody_address,omitempty"`
	Verifications  []string `json:"verifications,omitempty"`
}

// Message is one inbound event. Treat it as immutable once built: the
// pipeline derives values from it and never writes to it.
type Message struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Author    Author   `json:"author"`
	Timestamp int64    `json:"timestamp"` // milliseconds since epoch
	Platform  Platform `json:"platform"`

	ReplyTo    string            `json:"reply_to,omitempty"`
	Hash       string            `json:"hash,omitempty"`
	ThreadHash string            `json:"thread_hash,omitempty"`
	ParentHash string            `json:"parent_hash,omitempty"`
	ParentURL  string            `json:"parent_url,omitempty"`
	Embeds     []json.RawMessage `json:"embeds,omitempty"`

	Raw json.RawMessage `json:"raw,omitempty"`
}

// Validate checks the fields the pipeline relies on.
func (m *Message) Validate() error {
	if m == nil {
		return errkind.Errorf(errkind.Validation, "message.validate", "message is nil")
	}
	if strings.TrimSpace(m.Text) == "" {
		return errkind.Errorf(errkind.Validation, "message.validate", "text is empty")
	}
	if m.Author.Username == "" {
		return errkind.Errorf(errkind.Validation, "message.validate", "author username is empty")
	}
	if !m.Platform.Known() {
		return errkind.Errorf(errkind.Validation, "message.validate", "unknown platform %q", m.Platform)
	}
	return nil
}

// ConversationID is the key under which this message's history is stored.
func (m *Message) ConversationID() string {
	return m.Author.Username
}

func (m *Message) String() string {
	return fmt.Sprintf("%s/%s from %s", m.Platform, m.ID, m.Author.Username)
}
