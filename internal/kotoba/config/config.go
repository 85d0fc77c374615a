// Package config turns environment variables, an optional .env file and an
// optional YAML config file into an immutable Snapshot.
//
// A Snapshot is never modified after FromViper returns it. Reconfiguration
// builds a new Snapshot and hands it to App.UpdateEnv, which swaps every
// collaborator derived from it in one step.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bdobrica/Kotoba/common/errkind"
	"github.com/bdobrica/Kotoba/common/redact"
)

// Snapshot is one immutable view of the configuration.
type Snapshot struct {
	LLM       LLM
	Telegram  Telegram
	Farcaster Farcaster
	Twitter   Twitter
	Memory    Memory
	Market    Market
	Server    Server
	Schedule  Schedule
	Log       Log

	// CharacterFile is the persona YAML path; empty selects the built-in
	// persona.
	CharacterFile string
}

type LLM struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

type Telegram struct {
	Enabled       bool
	BotToken      string
	WebhookSecret string
	APIBase       string
}

type Farcaster struct {
	Enabled       bool
	FID           string
	NeynarAPIKey  string
	SignerUUID    string
	WebhookSecret string
	APIBase       string
}

type Twitter struct {
	Enabled           bool
	BrowserEnabled    bool
	APIKey            string
	APIKeySecret      string
	AccessToken       string
	AccessTokenSecret string
	Cookies           string
	APIBase           string
}

type Memory struct {
	Backend       string
	RedisURL      string
	SQLitePath    string
	PebblePath    string
	EncryptionKey string
	HistoryWindow int
	LongTermTTL   time.Duration
}

type Market struct {
	APIBase  string
	Assets   []string
	ETFFlows string
}

type Server struct {
	Addr       string
	AdminToken string
	Rate       float64
	Burst      int
}

type Schedule struct {
	Enabled   bool
	Financial string
	ETF       string
}

type Log struct {
	Level  string
	Format string
}

// Memory backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
)

// defaults maps every key to its default. Keys are the lower-cased
// environment variable names so AutomaticEnv resolves them directly.
var defaults = map[string]any{
	"openrouter_api_key": "",
	"llm_model":          "openai/gpt-3.5-turbo",
	"llm_base_url":       "https://openrouter.ai/api/v1",
	"llm_max_tokens":     700,
	"llm_temperature":    0.7,
	"llm_timeout":        "60s",
	"character_file":     "",

	"enable_telegram":         false,
	"telegram_bot_token":      "",
	"telegram_webhook_secret": "",
	"telegram_api_base":       "https://api.telegram.org",

	"enable_farcaster":             false,
	"farcaster_fid":                "",
	"farcaster_neynar_api_key":     "",
	"farcaster_neynar_signer_uuid": "",
	"farcaster_webhook_secret":     "",
	"neynar_api_base":              "https://api.neynar.com",

	"enable_twitter":              false,
	"enable_browser_twitter":      false,
	"twitter_api_key":             "",
	"twitter_api_key_secret":      "",
	"twitter_access_token":        "",
	"twitter_access_token_secret": "",
	"twitter_cookies":             "",
	"twitter_api_base":            "https://api.twitter.com",

	"memory_backend":        BackendMemory,
	"redis_url":             "redis://localhost:6379/0",
	"sqlite_path":           "kotoba.db",
	"pebble_path":           "kotoba-pebble",
	"memory_encryption_key": "",
	"history_window":        0,
	"long_term_ttl":         "720h",

	"market_api_base": "https://api.coingecko.com/api/v3",
	"market_assets":   "btc,eth,sol",
	"etf_flows_url":   "",

	"http_addr":     ":8080",
	"admin_token":   "",
	"webhook_rate":  0.0,
	"webhook_burst": 10,

	"scheduler_enabled":  false,
	"schedule_financial": "0 */6 * * *",
	"schedule_etf":       "0 3/6 * * *",

	"log_level":  "info",
	"log_format": "text",
}

// NewViper returns a viper instance with defaults registered and environment
// lookup enabled. When path is non-empty the YAML file is read as well.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errkind.E(errkind.Config, "config.read", err)
		}
	}
	return v, nil
}

// FromViper reads a Snapshot out of v and validates it.
func FromViper(v *viper.Viper) (*Snapshot, error) {
	s := &Snapshot{
		LLM: LLM{
			APIKey:      strings.TrimSpace(v.GetString("openrouter_api_key")),
			Model:       strings.TrimSpace(v.GetString("llm_model")),
			BaseURL:     strings.TrimRight(v.GetString("llm_base_url"), "/"),
			MaxTokens:   v.GetInt("llm_max_tokens"),
			Temperature: v.GetFloat64("llm_temperature"),
			Timeout:     v.GetDuration("llm_timeout"),
		},
		Telegram: Telegram{
			Enabled:       v.GetBool("enable_telegram"),
			BotToken:      strings.TrimSpace(v.GetString("telegram_bot_token")),
			WebhookSecret: v.GetString("telegram_webhook_secret"),
			APIBase:       strings.TrimRight(v.GetString("telegram_api_base"), "/"),
		},
		Farcaster: Farcaster{
			Enabled:       v.GetBool("enable_farcaster"),
			FID:           strings.TrimSpace(v.GetString("farcaster_fid")),
			NeynarAPIKey:  strings.TrimSpace(v.GetString("farcaster_neynar_api_key")),
			SignerUUID:    strings.TrimSpace(v.GetString("farcaster_neynar_signer_uuid")),
			WebhookSecret: v.GetString("farcaster_webhook_secret"),
			APIBase:       strings.TrimRight(v.GetString("neynar_api_base"), "/"),
		},
		Twitter: Twitter{
			Enabled:           v.GetBool("enable_twitter"),
			BrowserEnabled:    v.GetBool("enable_browser_twitter"),
			APIKey:            v.GetString("twitter_api_key"),
			APIKeySecret:      v.GetString("twitter_api_key_secret"),
			AccessToken:       v.GetString("twitter_access_token"),
			AccessTokenSecret: v.GetString("twitter_access_token_secret"),
			Cookies:           v.GetString("twitter_cookies"),
			APIBase:           strings.TrimRight(v.GetString("twitter_api_base"), "/"),
		},
		Memory: Memory{
			Backend:       strings.ToLower(strings.TrimSpace(v.GetString("memory_backend"))),
			RedisURL:      v.GetString("redis_url"),
			SQLitePath:    v.GetString("sqlite_path"),
			PebblePath:    v.GetString("pebble_path"),
			EncryptionKey: v.GetString("memory_encryption_key"),
			HistoryWindow: v.GetInt("history_window"),
			LongTermTTL:   v.GetDuration("long_term_ttl"),
		},
		Market: Market{
			APIBase:  strings.TrimRight(v.GetString("market_api_base"), "/"),
			Assets:   splitList(v.GetString("market_assets")),
			ETFFlows: strings.TrimSpace(v.GetString("etf_flows_url")),
		},
		Server: Server{
			Addr:       v.GetString("http_addr"),
			AdminToken: v.GetString("admin_token"),
			Rate:       v.GetFloat64("webhook_rate"),
			Burst:      v.GetInt("webhook_burst"),
		},
		Schedule: Schedule{
			Enabled:   v.GetBool("scheduler_enabled"),
			Financial: strings.TrimSpace(v.GetString("schedule_financial")),
			ETF:       strings.TrimSpace(v.GetString("schedule_etf")),
		},
		Log: Log{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
		CharacterFile: strings.TrimSpace(v.GetString("character_file")),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate reports structural problems. Missing platform credentials are not
// checked here: they fail the individual send with a Config error, leaving
// the rest of the relay running.
func (s *Snapshot) Validate() error {
	switch s.Memory.Backend {
	case BackendMemory, BackendRedis, BackendSQLite, BackendPebble:
	default:
		return errkind.Errorf(errkind.Config, "config.validate", "unknown memory_backend %q", s.Memory.Backend)
	}
	if s.Memory.HistoryWindow < 0 {
		return errkind.Errorf(errkind.Config, "config.validate", "history_window must be >= 0, got %d", s.Memory.HistoryWindow)
	}
	if s.LLM.MaxTokens <= 0 {
		return errkind.Errorf(errkind.Config, "config.validate", "llm_max_tokens must be positive, got %d", s.LLM.MaxTokens)
	}
	if s.Server.Rate < 0 {
		return errkind.Errorf(errkind.Config, "config.validate", "webhook_rate must be >= 0")
	}
	return nil
}

// Hash returns a stable SHA-256 hex digest of the snapshot. Two snapshots
// with equal settings hash equally.
func (s *Snapshot) Hash() string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Platforms lists the enabled outbound platforms for /status.
func (s *Snapshot) Platforms() []string {
	var out []string
	if s.Telegram.Enabled {
		out = append(out, "telegram")
	}
	if s.Farcaster.Enabled {
		out = append(out, "farcaster")
	}
	if s.Twitter.BrowserEnabled {
		out = append(out, "twitter(browser)")
	} else if s.Twitter.Enabled {
		out = append(out, "twitter")
	}
	return out
}

// Secrets returns every credential in the snapshot, for redaction.
func (s *Snapshot) Secrets() []string {
	return []string{
		s.LLM.APIKey,
		s.Telegram.BotToken, s.Telegram.WebhookSecret,
		s.Farcaster.NeynarAPIKey, s.Farcaster.SignerUUID, s.Farcaster.WebhookSecret,
		s.Twitter.APIKey, s.Twitter.APIKeySecret, s.Twitter.AccessToken, s.Twitter.AccessTokenSecret,
		s.Twitter.Cookies,
		s.Memory.EncryptionKey,
		s.Server.AdminToken,
	}
}

// StorageChanged reports whether next selects a different storage backend
// than s. The key-value store is opened once per process, so such a change
// only takes effect after a restart.
func (s *Snapshot) StorageChanged(next *Snapshot) bool {
	a, b := s.Memory, next.Memory
	return a.Backend != b.Backend || a.RedisURL != b.RedisURL ||
		a.SQLitePath != b.SQLitePath || a.PebblePath != b.PebblePath ||
		a.EncryptionKey != b.EncryptionKey
}

// Summary returns the effective settings with credentials masked, for the
// start-up log line.
func Summary(v *viper.Viper) map[string]any {
	out := make(map[string]any, len(defaults))
	for k := range defaults {
		out[k] = v.Get(k)
	}
	return redact.Map(out)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("config(%s)", s.Hash()[:12])
}
