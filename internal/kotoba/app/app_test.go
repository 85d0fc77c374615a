package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bdobrica/Kotoba/common/errkind"
	"github.com/bdobrica/Kotoba/internal/kotoba/config"
	"github.com/bdobrica/Kotoba/internal/kotoba/llm"
	"github.com/bdobrica/Kotoba/internal/kotoba/message"
	"github.com/bdobrica/Kotoba/internal/kotoba/scheduler"
)

// ────────────────────────────────────────────────────────────────────────────
// Fake upstreams
// ────────────────────────────────────────────────────────────────────────────

// llmServer answers every completion with "reply from <model>".
func llmServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": "reply from " + req.Model},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type sentMessage struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramAPI struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (api *telegramAPI) messages() []sentMessage {
	api.mu.Lock()
	defer api.mu.Unlock()
	return append([]sentMessage(nil), api.sent...)
}

func telegramServer(t *testing.T) (*httptest.Server, *telegramAPI) {
	t.Helper()
	api := &telegramAPI{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bot123:abc/sendMessage" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var m sentMessage
		json.NewDecoder(r.Body).Decode(&m)
		api.mu.Lock()
		api.sent = append(api.sent, m)
		api.mu.Unlock()
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, api
}

func testConfig(llmURL, tgURL string) *config.Snapshot {
	return &config.Snapshot{
		LLM: config.LLM{
			APIKey:      "sk-test",
			Model:       llm.DefaultModel,
			BaseURL:     llmURL,
			MaxTokens:   700,
			Temperature: 0.7,
			Timeout:     5 * time.Second,
		},
		Telegram: config.Telegram{Enabled: true, BotToken: "123:abc", APIBase: tgURL},
		Memory:   config.Memory{Backend: config.BackendMemory},
		Market:   config.Market{APIBase: "http://127.0.0.1:1", Assets: []string{"btc"}},
		Server:   config.Server{Addr: "127.0.0.1:0"},
		Schedule: config.Schedule{Financial: "0 */6 * * *", ETF: "0 3/6 * * *"},
	}
}

func newTestApp(t *testing.T, opts Options) (*App, *telegramAPI) {
	t.Helper()
	tg, api := telegramServer(t)
	a, err := New(context.Background(), testConfig(llmServer(t).URL, tg.URL), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, api
}

func hello(text string) *message.Message {
	return &message.Message{
		ID:       "1",
		Text:     text,
		Author:   message.Author{Username: "alice", ChatID: 42},
		Platform: message.Telegram,
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Pipeline
// ────────────────────────────────────────────────────────────────────────────

func TestProcessMessage_EndToEnd(t *testing.T) {
	a, api := newTestApp(t, Options{})

	if _, err := a.ProcessMessage(context.Background(), hello("hello there")); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	sent := api.messages()
	if len(sent) != 1 || sent[0].ChatID != 42 || sent[0].Text != "reply from openai/gpt-3.5-turbo" {
		t.Fatalf("sent = %+v", sent)
	}
	turns, err := a.mem.GetTurns(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 || turns[0].Content != "hello there" || turns[1].Content != sent[0].Text {
		t.Errorf("turns = %+v", turns)
	}
}

func TestHandleScheduled_UnknownExpression(t *testing.T) {
	a, _ := newTestApp(t, Options{})
	err := a.HandleScheduled(context.Background(), scheduler.Event{Cron: "*/5 * * * *"})
	if !errors.Is(err, scheduler.ErrNoJob) {
		t.Fatalf("err = %v", err)
	}
	if len(a.Jobs()) != 2 {
		t.Errorf("jobs = %+v", a.Jobs())
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Reconfiguration
// ────────────────────────────────────────────────────────────────────────────

func TestUpdateEnv_SwapsRuntime(t *testing.T) {
	a, api := newTestApp(t, Options{})
	before := a.Config()

	next := *before
	next.LLM.Model = "acme/other"
	if err := a.UpdateEnv(&next); err != nil {
		t.Fatalf("UpdateEnv: %v", err)
	}
	if a.Config().Hash() == before.Hash() {
		t.Fatal("snapshot not swapped")
	}
	if before.LLM.Model != llm.DefaultModel {
		t.Error("previous snapshot was modified")
	}

	if _, err := a.ProcessMessage(context.Background(), hello("hi again")); err != nil {
		t.Fatal(err)
	}
	sent := api.messages()
	if got := sent[len(sent)-1].Text; got != "reply from acme/other" {
		t.Errorf("reply = %q, want the new model", got)
	}
}

func TestUpdateEnv_FailureKeepsRuntime(t *testing.T) {
	a, _ := newTestApp(t, Options{})
	before := a.Config()

	next := *before
	next.CharacterFile = "/nonexistent/character.yaml"
	err := a.UpdateEnv(&next)
	if !errkind.Is(err, errkind.Config) {
		t.Fatalf("err = %v, want config error", err)
	}
	if a.Config() != before {
		t.Error("failed update replaced the runtime")
	}
}

func TestUpdateEnv_PicksUpEditedPersona(t *testing.T) {
	path := filepath.Join(t.TempDir(), "character.yaml")
	writePersona := func(name string) {
		t.Helper()
		doc := "name: " + name + "\nsystem_prompt: You are " + name + ".\n"
		if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	writePersona("Aoi")

	tg, _ := telegramServer(t)
	cfg := testConfig(llmServer(t).URL, tg.URL)
	cfg.CharacterFile = path
	a, err := New(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	same := *cfg
	if err := a.UpdateEnv(&same); err != nil {
		t.Fatal(err)
	}
	if got := a.rt.Load().persona.Name; got != "Aoi" {
		t.Fatalf("persona = %q", got)
	}

	writePersona("Midori")
	if err := a.UpdateEnv(&same); err != nil {
		t.Fatalf("UpdateEnv: %v", err)
	}
	if got := a.rt.Load().persona.Name; got != "Midori" {
		t.Errorf("persona after edit = %q, want Midori", got)
	}
}

func TestUpdateEnv_BrokenTwitterDisablesOnlyTwitter(t *testing.T) {
	a, _ := newTestApp(t, Options{})
	next := *a.Config()
	next.Twitter = config.Twitter{BrowserEnabled: true, Cookies: "not json"}
	if err := a.UpdateEnv(&next); err != nil {
		t.Fatalf("UpdateEnv: %v", err)
	}
	if a.Config().Twitter.Cookies != "not json" {
		t.Error("snapshot not applied")
	}
}

func TestUpdateEnv_ReconcilesRunner(t *testing.T) {
	a, _ := newTestApp(t, Options{})
	a.mu.Lock()
	a.runner = scheduler.NewRunner(a.fire)
	a.mu.Unlock()
	defer a.stopRunner()

	next := *a.Config()
	next.Schedule.Enabled = true
	if err := a.UpdateEnv(&next); err != nil {
		t.Fatal(err)
	}
	running := a.runner.Running()
	sort.Strings(running)
	if strings.Join(running, ",") != "etf_flows,financial_analysis" {
		t.Fatalf("running = %v", running)
	}

	off := next
	off.Schedule.Enabled = false
	if err := a.UpdateEnv(&off); err != nil {
		t.Fatal(err)
	}
	if got := a.runner.Running(); len(got) != 0 {
		t.Errorf("running after disable = %v", got)
	}
}

func TestReload(t *testing.T) {
	a, _ := newTestApp(t, Options{})
	if err := a.Reload(context.Background()); !errkind.Is(err, errkind.Config) {
		t.Fatalf("reload without loader: %v", err)
	}

	next := *a.Config()
	next.Memory.HistoryWindow = 4
	calls := 0
	a.opts.Loader = func() (*config.Snapshot, error) {
		calls++
		return &next, nil
	}
	if err := a.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 1 || a.Config().Memory.HistoryWindow != 4 {
		t.Errorf("calls=%d window=%d", calls, a.Config().Memory.HistoryWindow)
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1", "http://127.0.0.1:1")
	cfg.Memory.Backend = "etcd"
	if _, err := New(context.Background(), cfg, Options{}); !errkind.Is(err, errkind.Config) {
		t.Fatalf("err = %v", err)
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Run
// ────────────────────────────────────────────────────────────────────────────

func TestRun_StopsOnCancel(t *testing.T) {
	a, _ := newTestApp(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
