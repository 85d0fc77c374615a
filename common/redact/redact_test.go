package redact_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bdobrica/Kotoba/common/redact"
)

func TestString_RedactsSensitiveValues(t *testing.T) {
	token := "123456:AAH-bot-token"
	line := `Post "https://api.telegram.org/bot123456:AAH-bot-token/sendMessage": dial tcp: timeout`
	got := redact.String(line, token)
	const want = `Post "https://api.telegram.org/bot[REDACTED]/sendMessage": dial tcp: timeout`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestString_SkipsShortValues(t *testing.T) {
	line := "abc token"
	if got := redact.String(line, "abc"); got != line {
		t.Fatalf("short value should not be redacted; got %q", got)
	}
}

func TestError_KeepsChain(t *testing.T) {
	sentinel := errors.New("connection refused for key sk-or-secret")
	wrapped := fmt.Errorf("call upstream: %w", sentinel)

	got := redact.Error(wrapped, "sk-or-secret")
	if got.Error() != "call upstream: connection refused for key [REDACTED]" {
		t.Errorf("Error() = %q", got.Error())
	}
	if !errors.Is(got, sentinel) {
		t.Error("redacted error lost its chain")
	}
	if redact.Error(nil, "x") != nil {
		t.Error("nil error should stay nil")
	}
	clean := errors.New("nothing here")
	if redact.Error(clean, "sk-or-secret") != clean {
		t.Error("unchanged error should be returned as-is")
	}
}

func TestMap_RedactsSensitiveKeys(t *testing.T) {
	in := map[string]any{
		"telegram_bot_token":           "123:abc",
		"farcaster_neynar_signer_uuid": "uuid",
		"twitter_cookies":              "[...]",
		"llm_model":                    "openai/gpt-3.5-turbo",
		"enable_telegram":              true,
	}
	out := redact.Map(in)
	for _, k := range []string{"telegram_bot_token", "farcaster_neynar_signer_uuid", "twitter_cookies"} {
		if out[k] != "[REDACTED]" {
			t.Errorf("%s = %v, want redacted", k, out[k])
		}
	}
	if out["llm_model"] != "openai/gpt-3.5-turbo" || out["enable_telegram"] != true {
		t.Errorf("non-sensitive values changed: %v", out)
	}
}
