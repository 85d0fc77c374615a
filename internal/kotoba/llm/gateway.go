package llm

import (
	"context"
	"time"

	"github.com/bdobrica/Kotoba/common/errkind"
	"github.com/bdobrica/Kotoba/common/redact"
	"github.com/bdobrica/Kotoba/internal/kotoba/message"
	"github.com/bdobrica/Kotoba/internal/kotoba/observability"
)

// GatewayConfig holds the fixed generation parameters.
type GatewayConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Gateway is the stateless generate-and-trim capability shared by the main
// reply path and the action elaboration path.
type Gateway struct {
	provider Provider
	cfg      GatewayConfig
}

// NewGateway wraps provider. cfg.APIKey is only checked for presence; the
// provider is expected to carry it on the wire.
func NewGateway(provider Provider, cfg GatewayConfig) *Gateway {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 700
	}
	return &Gateway{provider: provider, cfg: cfg}
}

// Generate runs one completion and applies the length policy of platform.
// It never retries.
func (g *Gateway) Generate(ctx context.Context, msgs []Message, platform message.Platform) (string, error) {
	log := observability.WithTrace(ctx)
	if g.cfg.APIKey == "" {
		observability.LLMRequestsTotal.WithLabelValues("no_credential").Inc()
		return "", errkind.E(errkind.Gateway, "llm.generate", &errkind.AuthError{Service: "openrouter"})
	}

	start := time.Now()
	resp, err := g.provider.Complete(ctx, CompletionRequest{
		Model:       g.cfg.Model,
		Messages:    msgs,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	observability.LLMRequestDuration.Observe(time.Since(start).Seconds())
	observability.LLMRequestsTotal.WithLabelValues(observability.Outcome(err)).Inc()
	if err != nil {
		err = redact.Error(err, g.cfg.APIKey)
		log.Warn("llm: completion failed", "model", g.cfg.Model, "status", errkind.StatusOf(err), "err", err)
		return "", errkind.E(errkind.Gateway, "llm.generate", err)
	}

	log.Debug("llm: completion",
		"model", g.cfg.Model,
		"messages", len(msgs),
		"finish_reason", resp.FinishReason,
		"total_tokens", resp.Usage.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	text, declared := message.Truncate(platform, resp.Content)
	if !declared {
		log.Warn("llm: no length limit declared for platform; passing text through", "platform", platform)
	}
	return text, nil
}
