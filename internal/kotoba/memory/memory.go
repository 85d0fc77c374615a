// Package memory keeps per-user conversation history and long-term facts on
// top of a kv.Store.
//
// Keys are "conversation:<id>:<ulid>" and "memory:<username>:<ulid>". The id
// part is query-escaped so a username containing ':' cannot reach into
// another user's range, and ULIDs keep a prefix listing in write order.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"

	"github.com/bdobrica/Kotoba/internal/kotoba/kv"
)

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// EntryType distinguishes memory entries.
type EntryType string

const (
	TypeConversation EntryType = "conversation"
	TypeLongTerm     EntryType = "long_term"
)

// Entry is a long-term fact about a user. A zero TTL never expires.
type Entry struct {
	Type      EntryType     `json:"type"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
	TTL       time.Duration `json:"ttl,omitempty"`
}

const (
	conversationPrefix = "conversation:"
	longTermPrefix     = "memory:"
)

// Store reads and appends memory. It holds no state of its own beyond the
// backing kv.Store, so one Store may be shared by every runtime.
type Store struct {
	kv  kv.Store
	now func() time.Time
}

// New returns a Store over backing.
func New(backing kv.Store) *Store {
	return &Store{kv: backing, now: time.Now}
}

func conversationKeyPrefix(id string) string {
	return conversationPrefix + url.QueryEscape(id) + ":"
}

func longTermKeyPrefix(username string) string {
	return longTermPrefix + url.QueryEscape(username) + ":"
}

// AppendTurn adds turn to the end of conversation id. A zero timestamp is
// filled in.
func (s *Store) AppendTurn(ctx context.Context, id string, turn Turn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = s.now()
	}
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}
	key := conversationKeyPrefix(id) + ulid.Make().String()
	if err := s.kv.Put(ctx, key, data, 0); err != nil {
		return fmt.Errorf("append turn for %q: %w", id, err)
	}
	return nil
}

// GetTurns returns every stored turn of conversation id, oldest first.
func (s *Store) GetTurns(ctx context.Context, id string) ([]Turn, error) {
	entries, err := s.kv.List(ctx, conversationKeyPrefix(id))
	if err != nil {
		return nil, fmt.Errorf("list turns for %q: %w", id, err)
	}
	turns := make([]Turn, 0, len(entries))
	for _, e := range entries {
		var t Turn
		if err := json.Unmarshal(e.Value, &t); err != nil {
			return nil, fmt.Errorf("decode turn %s: %w", e.Key, err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// AddLongTerm stores entry for username, expiring after entry.TTL.
func (s *Store) AddLongTerm(ctx context.Context, username string, entry Entry) error {
	if entry.Type == "" {
		entry.Type = TypeLongTerm
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	key := longTermKeyPrefix(username) + ulid.Make().String()
	if err := s.kv.Put(ctx, key, data, entry.TTL); err != nil {
		return fmt.Errorf("add memory for %q: %w", username, err)
	}
	return nil
}

// GetLongTerm returns the live long-term entries for username, oldest first.
func (s *Store) GetLongTerm(ctx context.Context, username string) ([]Entry, error) {
	kvs, err := s.kv.List(ctx, longTermKeyPrefix(username))
	if err != nil {
		return nil, fmt.Errorf("list memories for %q: %w", username, err)
	}
	out := make([]Entry, 0, len(kvs))
	for _, e := range kvs {
		var entry Entry
		if err := json.Unmarshal(e.Value, &entry); err != nil {
			return nil, fmt.Errorf("decode memory %s: %w", e.Key, err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// FormatForContext renders entries as one block for the system prompt, or ""
// when there is nothing to say.
func (s *Store) FormatForContext(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	now := s.now()
	var b strings.Builder
	b.WriteString("Things you remember about this user:")
	for _, e := range entries {
		content := strings.TrimSpace(e.Content)
		if content == "" {
			continue
		}
		fmt.Fprintf(&b, "\n- %s (noted %s)", content, humanize.RelTime(e.Timestamp, now, "ago", "from now"))
	}
	return b.String()
}
