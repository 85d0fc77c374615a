package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bdobrica/Kotoba/common/errkind"
	"github.com/bdobrica/Kotoba/internal/kotoba/config"
	"github.com/bdobrica/Kotoba/internal/kotoba/message"
)

const testToken = "123456:ABCdefSECRET"

func TestSendMessage(t *testing.T) {
	var got sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bot"+testToken+"/sendMessage" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	c := New(config.Telegram{BotToken: testToken, APIBase: srv.URL})
	if err := c.SendMessage(context.Background(), 42, "<b>hi</b>"); err != nil {
		t.Fatal(err)
	}
	if got.ChatID != 42 || got.Text != "<b>hi</b>" || got.ParseMode != "HTML" {
		t.Errorf("request = %+v", got)
	}
}

func TestSendMessage_ErrorIsRedacted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	c := New(config.Telegram{BotToken: testToken, APIBase: srv.URL})
	err := c.SendMessage(context.Background(), 42, "hi")
	if !errkind.Is(err, errkind.Adapter) || errkind.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("err = %v", err)
	}

	// Transport failures include the URL, and therefore the token.
	c = New(config.Telegram{BotToken: testToken, APIBase: "http://127.0.0.1:1"})
	err = c.SendMessage(context.Background(), 42, "hi")
	if err == nil || strings.Contains(err.Error(), testToken) {
		t.Fatalf("token leaked or no error: %v", err)
	}
}

func TestSendMessage_Preconditions(t *testing.T) {
	err := New(config.Telegram{}).SendMessage(context.Background(), 42, "hi")
	var auth *errkind.AuthError
	if !errkind.Is(err, errkind.Config) || !errors.As(err, &auth) {
		t.Errorf("missing token: %v", err)
	}
	err = New(config.Telegram{BotToken: testToken}).SendMessage(context.Background(), 0, "hi")
	if !errkind.Is(err, errkind.Adapter) {
		t.Errorf("missing chat id: %v", err)
	}
}

func TestConvertUpdate(t *testing.T) {
	raw := []byte(`{"update_id":1,"message":{
		"message_id":77,
		"from":{"id":9001,"username":"bob","first_name":"Bob","last_name":"Stone"},
		"chat":{"id":-100123},
		"date":1700000000,
		"text":"What's BTC doing?",
		"reply_to_message":{"message_id":76}
	}}`)
	m, err := ConvertUpdate(raw)
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != "77" || m.Text != "What's BTC doing?" || m.Platform != message.Telegram {
		t.Errorf("message = %+v", m)
	}
	if m.Author.Username != "bob" || m.Author.DisplayName != "Bob Stone" || m.Author.ChatID != -100123 {
		t.Errorf("author = %+v", m.Author)
	}
	if m.Timestamp != 1700000000000 || m.ReplyTo != "76" {
		t.Errorf("timestamp=%d replyTo=%q", m.Timestamp, m.ReplyTo)
	}
	if len(m.Raw) == 0 {
		t.Error("raw payload not kept")
	}
}

func TestConvertUpdate_Fallbacks(t *testing.T) {
	m, err := ConvertUpdate([]byte(`{"update_id":2,"message":{"message_id":1,"from":{"id":555,"first_name":"Ann"},"chat":{"id":555},"date":1,"text":"hey"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.Author.Username != "555" || m.Author.DisplayName != "Ann" {
		t.Errorf("author = %+v", m.Author)
	}

	for _, raw := range []string{
		`{"update_id":3,"message":{"message_id":1,"chat":{"id":1},"date":1,"sticker":{}}}`,
		`{"update_id":4,"edited_message":{"text":"x"}}`,
	} {
		m, err := ConvertUpdate([]byte(raw))
		if err != nil || m != nil {
			t.Errorf("non-text update: %+v, %v", m, err)
		}
	}

	if _, err := ConvertUpdate([]byte(`{`)); !errkind.Is(err, errkind.Validation) {
		t.Errorf("malformed: %v", err)
	}
}

func TestVerifySecret(t *testing.T) {
	if !VerifySecret("anything", "") {
		t.Error("empty secret must disable the check")
	}
	if !VerifySecret("s3cret", "s3cret") || VerifySecret("nope", "s3cret") {
		t.Error("secret comparison wrong")
	}
}
