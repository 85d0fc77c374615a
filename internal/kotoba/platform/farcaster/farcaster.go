// Package farcaster publishes casts through the Neynar API and converts
// Neynar webhook events into messages.
package farcaster

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Kotoba/common/errkind"
	"github.com/bdobrica/Kotoba/internal/kotoba/config"
	"github.com/bdobrica/Kotoba/internal/kotoba/message"
	"github.com/bdobrica/Kotoba/internal/kotoba/platform"
)

const (
	// DefaultAPIBase is the public Neynar endpoint.
	DefaultAPIBase = "https://api.neynar.com"

	// SignatureHeader carries the hex HMAC-SHA512 of the webhook body.
	SignatureHeader = "X-Neynar-Signature"

	// EventCastCreated is the only webhook event turned into a message.
	EventCastCreated = "cast.created"

	idemLength = 16
)

// Client publishes casts as the configured signer.
type Client struct {
	apiKey     string
	signerUUID string
	apiBase    string
	http       *http.Client
}

// New returns a client for cfg. Missing credentials are reported on publish.
func New(cfg config.Farcaster) *Client {
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = DefaultAPIBase
	}
	return &Client{
		apiKey:     cfg.NeynarAPIKey,
		signerUUID: cfg.SignerUUID,
		apiBase:    base,
		http:       platform.NewHTTPClient(),
	}
}

type castRequest struct {
	SignerUUID string            `json:"signer_uuid"`
	Text       string            `json:"text"`
	Idem       string            `json:"idem"`
	Parent     string            `json:"parent,omitempty"`
	Embeds     []json.RawMessage `json:"embeds,omitempty"`
}

// CastResponse is the subset of the publish answer the relay logs.
type CastResponse struct {
	Success bool `json:"success"`
	Cast    struct {
		Hash string `json:"hash"`
	} `json:"cast"`
}

// PublishCast posts text as a new cast, or as a reply when parentHash is set.
// Embeds are forwarded unmodified. Each call carries a fresh idempotency
// token.
func (c *Client) PublishCast(ctx context.Context, text, parentHash string, embeds []json.RawMessage) (*CastResponse, error) {
	if c.apiKey == "" {
		return nil, errkind.E(errkind.Config, "farcaster.publish", &errkind.AuthError{Service: "neynar"})
	}
	if c.signerUUID == "" {
		return nil, errkind.Errorf(errkind.Config, "farcaster.publish", "signer uuid is not configured")
	}
	var out CastResponse
	err := platform.PostJSON(ctx, c.http, "neynar", c.apiBase+"/v2/farcaster/cast",
		map[string]string{"x-api-key": c.apiKey},
		castRequest{
			SignerUUID: c.signerUUID,
			Text:       text,
			Idem:       uuid.NewString()[:idemLength],
			Parent:     parentHash,
			Embeds:     embeds,
		}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifySignature checks the Neynar webhook signature over body. An empty
// secret disables the check.
func VerifySignature(body []byte, signature, secret string) bool {
	if secret == "" {
		return true
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// --- inbound ---

type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Hash       string `json:"hash"`
		ThreadHash string `json:"thread_hash"`
		ParentHash string `json:"parent_hash"`
		ParentURL  string `json:"parent_url"`
		Text       string `json:"text"`
		Timestamp  string `json:"timestamp"`
		Author     struct {
			FID            json.Number `json:"fid"`
			Username       string      `json:"username"`
			DisplayName    string      `json:"display_name"`
			CustodyAddress string      `json:"custody_address"`
			Verifications  []string    `json:"verifications"`
		} `json:"author"`
		Embeds []json.RawMessage `json:"embeds"`
	} `json:"data"`
}

// ConvertWebhook turns a cast.created event into a Message. Other event
// types and casts authored by botFID return nil, nil.
func ConvertWebhook(raw []byte, botFID string) (*message.Message, error) {
	var ev webhookEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, errkind.E(errkind.Validation, "farcaster.convert", err)
	}
	if ev.Type != EventCastCreated {
		return nil, nil
	}
	d := ev.Data
	fid := d.Author.FID.String()
	if botFID != "" && fid == botFID {
		return nil, nil
	}

	username := d.Author.Username
	if username == "" {
		username = fid
	}
	return &message.Message{
		ID:   d.Hash,
		Text: d.Text,
		Author: message.Author{
			Username:       username,
			DisplayName:    d.Author.DisplayName,
			FID:            fid,
			CustodyAddress: d.Author.CustodyAddress,
			Verifications:  d.Author.Verifications,
		},
		Timestamp:  parseTimestamp(d.Timestamp),
		Platform:   message.Farcaster,
		Hash:       d.Hash,
		ThreadHash: d.ThreadHash,
		ParentHash: d.ParentHash,
		ParentURL:  d.ParentURL,
		Embeds:     d.Embeds,
		Raw:        append(json.RawMessage(nil), raw...),
	}, nil
}

// parseTimestamp accepts RFC 3339 or epoch milliseconds and falls back to
// the receive time.
func parseTimestamp(s string) int64 {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UnixMilli()
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms
	}
	return time.Now().UnixMilli()
}
