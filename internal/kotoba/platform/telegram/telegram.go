// Package telegram sends replies through the Bot API and converts inbound
// webhook updates into messages.
package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bdobrica/Kotoba/common/errkind"
	"github.com/bdobrica/Kotoba/common/redact"
	"github.com/bdobrica/Kotoba/internal/kotoba/config"
	"github.com/bdobrica/Kotoba/internal/kotoba/message"
	"github.com/bdobrica/Kotoba/internal/kotoba/platform"
)

// SecretHeader carries the webhook secret token configured with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// DefaultAPIBase is the public Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// Client talks to the Bot API.
type Client struct {
	token   string
	apiBase string
	http    *http.Client
}

// New returns a client for cfg. A missing token is reported on send.
func New(cfg config.Telegram) *Client {
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = DefaultAPIBase
	}
	return &Client{token: cfg.BotToken, apiBase: base, http: platform.NewHTTPClient()}
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage posts text to chatID with HTML parse mode.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	if c.token == "" {
		return errkind.E(errkind.Config, "telegram.send", &errkind.AuthError{Service: "telegram"})
	}
	if chatID == 0 {
		return errkind.Errorf(errkind.Adapter, "telegram.send", "chat id is required")
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.token)
	err := platform.PostJSON(ctx, c.http, "telegram", url, nil, sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	}, nil)
	// The token is part of the URL, so transport errors would leak it.
	return redact.Error(err, c.token)
}

// VerifySecret reports whether the header value matches the configured
// secret. An empty secret disables the check.
func VerifySecret(header, secret string) bool {
	if secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(secret)) == 1
}

// --- inbound ---

type update struct {
	UpdateID int64      `json:"update_id"`
	Message  *tgMessage `json:"message"`
}

type tgMessage struct {
	MessageID int64 `json:"message_id"`
	From      struct {
		ID        int64  `json:"id"`
		Username  string `json:"username"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"from"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Date           int64  `json:"date"`
	Text           string `json:"text"`
	ReplyToMessage *struct {
		MessageID int64 `json:"message_id"`
	} `json:"reply_to_message"`
}

// ConvertUpdate turns a webhook update into a Message. Updates without a text
// message return nil, nil.
func ConvertUpdate(raw []byte) (*message.Message, error) {
	var u update
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, errkind.E(errkind.Validation, "telegram.convert", err)
	}
	if u.Message == nil || u.Message.Text == "" {
		return nil, nil
	}
	m := u.Message

	username := m.From.Username
	if username == "" {
		username = strconv.FormatInt(m.From.ID, 10)
	}
	msg := &message.Message{
		ID:   strconv.FormatInt(m.MessageID, 10),
		Text: m.Text,
		Author: message.Author{
			Username:    username,
			DisplayName: strings.TrimSpace(m.From.FirstName + " " + m.From.LastName),
			ChatID:      m.Chat.ID,
		},
		Timestamp: m.Date * 1000,
		Platform:  message.Telegram,
		Raw:       append(json.RawMessage(nil), raw...),
	}
	if m.ReplyToMessage != nil {
		msg.ReplyTo = strconv.FormatInt(m.ReplyToMessage.MessageID, 10)
	}
	return msg, nil
}
