// Package app wires the relay together.
//
// Everything derived from a configuration snapshot (model gateway, platform
// adapters, action registry, orchestrator, scheduler) lives in one runtime
// value behind an atomic pointer. UpdateEnv builds a complete new runtime
// and swaps the pointer, so a message in flight sees either the old or the
// new configuration and never a mix of both. The key-value store is opened
// once per process and shared by every runtime.
package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bdobrica/Kotoba/common/errkind"
	"github.com/bdobrica/Kotoba/common/trace"
	"github.com/bdobrica/Kotoba/common/version"
	"github.com/bdobrica/Kotoba/internal/kotoba/actions"
	"github.com/bdobrica/Kotoba/internal/kotoba/config"
	"github.com/bdobrica/Kotoba/internal/kotoba/kv"
	"github.com/bdobrica/Kotoba/internal/kotoba/llm"
	"github.com/bdobrica/Kotoba/internal/kotoba/memory"
	"github.com/bdobrica/Kotoba/internal/kotoba/message"
	"github.com/bdobrica/Kotoba/internal/kotoba/orchestrator"
	"github.com/bdobrica/Kotoba/internal/kotoba/platform/farcaster"
	"github.com/bdobrica/Kotoba/internal/kotoba/platform/telegram"
	"github.com/bdobrica/Kotoba/internal/kotoba/platform/twitter"
	"github.com/bdobrica/Kotoba/internal/kotoba/scheduler"
	"github.com/bdobrica/Kotoba/internal/kotoba/webhook"
)

// Loader produces a fresh snapshot, for Reload.
type Loader func() (*config.Snapshot, error)

// Options tune New.
type Options struct {
	// Loader re-reads configuration on SIGHUP and POST /admin/reload. Nil
	// disables reloading.
	Loader Loader
	// HTTPClient is used by the built-in actions. Nil selects a client with
	// a 15s timeout.
	HTTPClient *http.Client
}

// runtime is everything built from one snapshot. It is never modified after
// build returns.
type runtime struct {
	cfg       *config.Snapshot
	persona   *config.Persona
	registry  *actions.Registry
	orch      *orchestrator.Orchestrator
	scheduler *scheduler.Scheduler
}

// App is the relay process.
type App struct {
	opts Options
	kv   kv.Store
	mem  *memory.Store

	rt atomic.Pointer[runtime]

	// mu serialises UpdateEnv and guards runner.
	mu     sync.Mutex
	runner *scheduler.Runner
}

// New opens the key-value store and builds the first runtime from cfg.
func New(ctx context.Context, cfg *config.Snapshot, opts Options) (*App, error) {
	store, err := kv.Open(ctx, cfg.Memory)
	if err != nil {
		return nil, err
	}
	a := &App{opts: opts, kv: store, mem: memory.New(store)}
	persona, err := config.LoadPersona(cfg.CharacterFile)
	if err != nil {
		store.Close()
		return nil, err
	}
	rt := a.build(cfg, persona)
	a.rt.Store(rt)
	slog.Info("app: initialised",
		"version", version.Version,
		"config", cfg.Hash()[:12],
		"platforms", cfg.Platforms(),
		"actions", rt.registry.Names(),
	)
	return a, nil
}

// build assembles a runtime for cfg. It touches no shared state.
func (a *App) build(cfg *config.Snapshot, persona *config.Persona) *runtime {
	provider := llm.NewOpenRouter(llm.OpenRouterConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
		Title:   "Kotoba",
	})
	gateway := llm.NewGateway(provider, llm.GatewayConfig{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})

	registry := actions.Load(cfg, actions.Deps{Memory: a.mem, HTTPClient: a.opts.HTTPClient})

	opts := orchestrator.Options{
		Actions:       registry,
		Memory:        a.mem,
		Gateway:       gateway,
		Persona:       persona.Prompt(),
		HistoryWindow: cfg.Memory.HistoryWindow,
	}
	if cfg.Telegram.Enabled {
		opts.Telegram = telegram.New(cfg.Telegram)
	}
	if cfg.Farcaster.Enabled {
		opts.Farcaster = farcaster.New(cfg.Farcaster)
	}
	if cfg.Twitter.Enabled || cfg.Twitter.BrowserEnabled {
		// A broken twitter setup disables twitter only.
		if poster, err := twitter.NewPoster(cfg.Twitter); err != nil {
			slog.Warn("app: twitter disabled", "err", err)
		} else {
			opts.Twitter = poster
		}
	}

	orch := orchestrator.New(opts)
	return &runtime{
		cfg:       cfg,
		persona:   persona,
		registry:  registry,
		orch:      orch,
		scheduler: scheduler.New(orch, scheduler.DefaultJobs(cfg)),
	}
}

// Config returns the snapshot currently in effect.
func (a *App) Config() *config.Snapshot {
	return a.rt.Load().cfg
}

// UpdateEnv rebuilds every collaborator from cfg and swaps them in one step.
// On error the previous runtime stays in effect. Storage settings are not
// applied until restart. The persona file is re-read on every call, so an
// edited character file is picked up even when cfg itself is unchanged.
func (a *App) UpdateEnv(cfg *config.Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	persona, err := config.LoadPersona(cfg.CharacterFile)
	if err != nil {
		return err
	}
	cur := a.rt.Load()
	if cur.cfg.Hash() == cfg.Hash() && cur.persona.Prompt() == persona.Prompt() {
		slog.Debug("app: configuration unchanged")
		return nil
	}
	if cur.cfg.StorageChanged(cfg) {
		slog.Warn("app: storage settings changed; restart to apply")
	}
	if cur.cfg.Server.Addr != cfg.Server.Addr {
		slog.Warn("app: listen address changed; restart to apply", "addr", cur.cfg.Server.Addr)
	}

	rt := a.build(cfg, persona)
	a.rt.Store(rt)
	if a.runner != nil {
		a.runner.Reconcile(runnerJobs(rt))
	}
	slog.Info("app: configuration applied",
		"config", cfg.Hash()[:12],
		"platforms", cfg.Platforms(),
	)
	return nil
}

// Reload re-reads configuration through the loader and applies it.
func (a *App) Reload(ctx context.Context) error {
	if a.opts.Loader == nil {
		return errkind.Errorf(errkind.Config, "app.reload", "no configuration loader")
	}
	cfg, err := a.opts.Loader()
	if err != nil {
		return err
	}
	return a.UpdateEnv(cfg)
}

// ProcessMessage runs msg through the current pipeline.
func (a *App) ProcessMessage(ctx context.Context, msg *message.Message) (*actions.Result, error) {
	return a.rt.Load().orch.ProcessMessage(trace.Ensure(ctx), msg)
}

// ProcessScheduledMessage runs msg through the current scheduled pipeline.
func (a *App) ProcessScheduledMessage(ctx context.Context, msg *message.Message, opts orchestrator.ScheduledOptions) (*actions.Result, error) {
	return a.rt.Load().orch.ProcessScheduledMessage(trace.Ensure(ctx), msg, opts)
}

// Publish posts text as a top-level cast and tweet.
func (a *App) Publish(ctx context.Context, text string, embeds []json.RawMessage) error {
	return a.rt.Load().orch.Publish(trace.Ensure(ctx), text, embeds)
}

// HandleScheduled runs the jobs matching an external cron signal.
func (a *App) HandleScheduled(ctx context.Context, ev scheduler.Event) error {
	return a.rt.Load().scheduler.HandleEvent(trace.Ensure(ctx), ev)
}

// Jobs lists the scheduled jobs of the current runtime.
func (a *App) Jobs() []scheduler.Job {
	return a.rt.Load().scheduler.Jobs()
}

// runnerJobs is the set the in-process runner should drive for rt.
func runnerJobs(rt *runtime) []scheduler.Job {
	if !rt.cfg.Schedule.Enabled {
		return nil
	}
	return rt.scheduler.Jobs()
}

// fire is the runner callback. It always uses the runtime current at fire
// time.
func (a *App) fire(ctx context.Context, job scheduler.Job, at time.Time) {
	if err := a.rt.Load().scheduler.Run(ctx, job, at); err != nil {
		slog.Error("app: scheduled job failed", "job", job.Name, "trace_id", trace.FromContext(ctx), "err", err)
	}
}

// Run starts the HTTP server and the cron runner and blocks until ctx is
// cancelled. SIGHUP reloads configuration.
func (a *App) Run(ctx context.Context) error {
	srv, err := webhook.New(a)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx, a.Config().Server.Addr); err != nil {
		return err
	}
	defer srv.Stop()

	a.mu.Lock()
	a.runner = scheduler.NewRunner(a.fire)
	a.runner.Reconcile(runnerJobs(a.rt.Load()))
	a.mu.Unlock()
	defer a.stopRunner()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	slog.Info("app: running", "addr", a.Config().Server.Addr)
	for {
		select {
		case <-ctx.Done():
			slog.Info("app: shutting down")
			return nil
		case <-hup:
			if err := a.Reload(ctx); err != nil {
				slog.Error("app: reload failed", "err", err)
			}
		}
	}
}

func (a *App) stopRunner() {
	a.mu.Lock()
	r := a.runner
	a.runner = nil
	a.mu.Unlock()
	if r != nil {
		r.Stop()
	}
}

// Close releases the key-value store.
func (a *App) Close() error {
	return a.kv.Close()
}
