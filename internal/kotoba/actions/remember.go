package actions

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bdobrica/Kotoba/common/errkind"
	"github.com/bdobrica/Kotoba/internal/kotoba/memory"
	"github.com/bdobrica/Kotoba/internal/kotoba/message"
)

var rememberPattern = regexp.MustCompile(`(?is)\bremember\s+that\s+(.+)`)

// Remember stores "remember that ..." statements as long-term memory for the
// author.
type Remember struct {
	store *memory.Store
	ttl   time.Duration
}

// NewRemember returns the remember action. Entries expire after ttl; zero
// keeps them forever.
func NewRemember(store *memory.Store, ttl time.Duration) *Remember {
	return &Remember{store: store, ttl: ttl}
}

func (r *Remember) Name() string { return "remember" }

func (r *Remember) ShouldExecute(msg *message.Message) bool {
	return fact(msg.Text) != ""
}

func (r *Remember) Execute(ctx context.Context, msg *message.Message) (*Result, error) {
	f := fact(msg.Text)
	if f == "" {
		return nil, errkind.Errorf(errkind.Validation, "actions.remember", "nothing to remember")
	}
	if err := r.store.AddLongTerm(ctx, msg.Author.Username, memory.Entry{
		Type:    memory.TypeLongTerm,
		Content: f,
		TTL:     r.ttl,
	}); err != nil {
		return nil, fmt.Errorf("remember: %w", err)
	}
	return &Result{
		Text:              fmt.Sprintf("Noted. I'll remember that %s.", f),
		ShouldSendMessage: true,
	}, nil
}

func fact(text string) string {
	m := rememberPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(m[1]), ".!")
}
