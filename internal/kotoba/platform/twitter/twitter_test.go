package twitter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/Kotoba/common/errkind"
	"github.com/bdobrica/Kotoba/internal/kotoba/config"
)

const sessionCookies = `[
	{"name":"ct0","value":"csrf123","domain":".twitter.com"},
	{"name":"auth_token","value":"auth456"},
	{"name":"guest_id","value":"v1%3A170000000000000000"}
]`

// ─── Selection ───────────────────────────────────────────────────────────────

func TestNewPoster_BrowserFirst(t *testing.T) {
	creds := config.Twitter{
		Enabled:           true,
		APIKey:            "k",
		APIKeySecret:      "s",
		AccessToken:       "t",
		AccessTokenSecret: "ts",
	}
	withBrowser := creds
	withBrowser.BrowserEnabled = true
	withBrowser.Cookies = sessionCookies

	p, err := NewPoster(withBrowser)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*BrowserPoster); !ok {
		t.Errorf("got %T, want *BrowserPoster", p)
	}

	p, err = NewPoster(creds)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*APIPoster); !ok {
		t.Errorf("got %T, want *APIPoster", p)
	}
}

func TestNewPoster_NothingEnabled(t *testing.T) {
	if _, err := NewPoster(config.Twitter{}); !errkind.Is(err, errkind.Config) {
		t.Fatalf("err = %v", err)
	}
	if _, err := NewPoster(config.Twitter{Enabled: true, APIKey: "k"}); !errkind.Is(err, errkind.Config) {
		t.Fatalf("partial credentials: %v", err)
	}
}

// ─── API poster ──────────────────────────────────────────────────────────────

func TestAPIPoster_SignsRequest(t *testing.T) {
	var got tweetRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/tweets" {
			t.Errorf("path = %q", r.URL.Path)
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "OAuth ") || !strings.Contains(auth, `oauth_consumer_key="key"`) || !strings.Contains(auth, `oauth_token="token"`) {
			t.Errorf("Authorization = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"1","text":"gm"}}`))
	}))
	defer srv.Close()

	p, err := NewAPIPoster(config.Twitter{
		APIKey:            "key",
		APIKeySecret:      "secret",
		AccessToken:       "token",
		AccessTokenSecret: "token-secret",
		APIBase:           srv.URL,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.PostTweet(context.Background(), "gm"); err != nil {
		t.Fatal(err)
	}
	if got.Text != "gm" {
		t.Errorf("text = %q", got.Text)
	}
}

// ─── Browser poster ──────────────────────────────────────────────────────────

func TestParseCookies_DoubleEncoded(t *testing.T) {
	encoded, _ := json.Marshal(sessionCookies)
	p, err := NewBrowserPoster(string(encoded))
	if err != nil {
		t.Fatal(err)
	}
	if p.csrfToken != "csrf123" || p.authToken != "auth456" {
		t.Errorf("tokens = %q %q", p.csrfToken, p.authToken)
	}
	if p.guestID != "170000000000000000" {
		t.Errorf("guest id = %q", p.guestID)
	}
	if p.cookies[1].Domain != ".twitter.com" {
		t.Errorf("default domain = %q", p.cookies[1].Domain)
	}
}

func TestNewBrowserPoster_Invalid(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":       "",
		"not json":    "ct0=abc",
		"missing ct0": `[{"name":"auth_token","value":"a"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := NewBrowserPoster(raw); !errkind.Is(err, errkind.Config) {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestBrowserPoster_PostTweet(t *testing.T) {
	var body createTweetRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer "+webBearerToken {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-Csrf-Token"); got != "csrf123" {
			t.Errorf("csrf = %q", got)
		}
		if got := r.Header.Get("Cookie"); got != "ct0=csrf123; auth_token=auth456; guest_id=v1%3A170000000000000000" {
			t.Errorf("cookie = %q", got)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"data":{"create_tweet":{}}}`))
	}))
	defer srv.Close()

	p, err := NewBrowserPoster(sessionCookies)
	if err != nil {
		t.Fatal(err)
	}
	p.endpoint = srv.URL
	var delayed bool
	p.delay = func() time.Duration { delayed = true; return 0 }

	if err := p.PostTweet(context.Background(), "hello world"); err != nil {
		t.Fatal(err)
	}
	if !delayed {
		t.Error("delay hook not consulted")
	}
	if body.Variables.TweetText != "hello world" || !body.Features["interactive_text_enabled"] {
		t.Errorf("body = %+v", body.Variables)
	}
}

func TestBrowserPoster_ErrorRedactsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":[{"message":"bad csrf csrf123"}]}`))
	}))
	defer srv.Close()

	p, _ := NewBrowserPoster(sessionCookies)
	p.endpoint = srv.URL
	p.delay = func() time.Duration { return 0 }

	err := p.PostTweet(context.Background(), "x")
	if errkind.StatusOf(err) != http.StatusForbidden || !errkind.Is(err, errkind.Adapter) {
		t.Fatalf("err = %v", err)
	}
	if strings.Contains(err.Error(), "csrf123") {
		t.Errorf("csrf token leaked: %v", err)
	}
}

func TestBrowserPoster_DelayHonoursContext(t *testing.T) {
	p, _ := NewBrowserPoster(sessionCookies)
	p.delay = func() time.Duration { return time.Hour }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.PostTweet(ctx, "x"); err != context.Canceled {
		t.Fatalf("err = %v", err)
	}
}

func TestHumanDelay_Range(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := humanDelay()
		if d < time.Second || d >= 3*time.Second {
			t.Fatalf("delay %v out of range", d)
		}
	}
}
