package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bdobrica/Kotoba/common/errkind"
	"github.com/bdobrica/Kotoba/common/version"
	"github.com/bdobrica/Kotoba/internal/kotoba/message"
	"github.com/bdobrica/Kotoba/internal/kotoba/observability"
	"github.com/bdobrica/Kotoba/internal/kotoba/platform/farcaster"
	"github.com/bdobrica/Kotoba/internal/kotoba/platform/telegram"
	"github.com/bdobrica/Kotoba/internal/kotoba/scheduler"
)

type statusBody struct {
	Status string `json:"status"`
}

type errorBody struct {
	Error string `json:"error"`
}

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// statusResponse is returned by GET /status.
type statusResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	Commit        string    `json:"commit"`
	BuildTime     string    `json:"build_time"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSecs    float64   `json:"uptime_seconds"`
	ConfigHash    string    `json:"config_hash"`
	Platforms     []string  `json:"platforms"`
	MemoryBackend string    `json:"memory_backend"`
	Scheduler     bool      `json:"scheduler_enabled"`
}

// ────────────────────────────────────────────────────────────────────────────
// Platform webhooks
// ────────────────────────────────────────────────────────────────────────────

func (s *Server) handleTelegram(w http.ResponseWriter, r *http.Request) {
	cfg := s.backend.Config()
	if !cfg.Telegram.Enabled {
		writeError(w, http.StatusBadRequest, "telegram is disabled")
		return
	}
	if !telegram.VerifySecret(r.Header.Get(telegram.SecretHeader), cfg.Telegram.WebhookSecret) {
		observability.WithTrace(r.Context()).Info("webhook: telegram secret mismatch")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !s.limiters.Allow(message.Telegram, cfg.Server) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	body, ok := s.readPayload(w, r, message.Telegram, schemaTelegram)
	if !ok {
		return
	}
	msg, err := telegram.ConvertUpdate(body)
	s.process(w, r, message.Telegram, msg, err)
}

func (s *Server) handleFarcaster(w http.ResponseWriter, r *http.Request) {
	cfg := s.backend.Config()
	if !cfg.Farcaster.Enabled {
		writeError(w, http.StatusBadRequest, "farcaster is disabled")
		return
	}
	if !s.limiters.Allow(message.Farcaster, cfg.Server) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if !farcaster.VerifySignature(body, r.Header.Get(farcaster.SignatureHeader), cfg.Farcaster.WebhookSecret) {
		observability.WithTrace(r.Context()).Info("webhook: farcaster signature mismatch")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.schemas.validate(schemaFarcaster, body); err != nil {
		s.reject(w, r, message.Farcaster, err)
		return
	}
	msg, err := farcaster.ConvertWebhook(body, cfg.Farcaster.FID)
	s.process(w, r, message.Farcaster, msg, err)
}

// readPayload reads the body and validates it against schema. On failure the
// response has been written and ok is false.
func (s *Server) readPayload(w http.ResponseWriter, r *http.Request, p message.Platform, schema string) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	if err := s.schemas.validate(schema, body); err != nil {
		s.reject(w, r, p, err)
		return nil, false
	}
	return body, true
}

// process runs a converted message through the pipeline. A conversion error
// is a 400; a nil message is an event that carries nothing to answer.
func (s *Server) process(w http.ResponseWriter, r *http.Request, p message.Platform, msg *message.Message, convErr error) {
	if convErr != nil {
		s.reject(w, r, p, convErr)
		return
	}
	if msg == nil {
		writeJSON(w, http.StatusOK, statusBody{Status: "ignored"})
		return
	}
	if err := msg.Validate(); err != nil {
		s.reject(w, r, p, err)
		return
	}

	// The pipeline outlives a sender that hangs up mid-request.
	ctx := context.WithoutCancel(r.Context())
	log := observability.WithTrace(ctx).With("platform", p, "message_id", msg.ID)
	if _, err := s.backend.ProcessMessage(ctx, msg); err != nil {
		log.Error("webhook: processing failed", "kind", errkind.KindOf(err), "err", err)
	} else {
		log.Info("webhook: message processed")
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, p message.Platform, err error) {
	observability.WithTrace(r.Context()).Info("webhook: payload rejected", "platform", p, "err", err)
	writeError(w, http.StatusBadRequest, "invalid payload")
}

// ────────────────────────────────────────────────────────────────────────────
// Admin
// ────────────────────────────────────────────────────────────────────────────

// requireAdmin checks the Authorization: Bearer header against ADMIN_TOKEN.
// With no token configured the admin routes are closed.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := s.backend.Config().Server.AdminToken
		if want == "" {
			writeError(w, http.StatusForbidden, "admin token not configured")
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleScheduled(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if err := s.schemas.validate(schemaScheduled, body); err != nil {
		observability.WithTrace(r.Context()).Info("webhook: scheduled trigger rejected", "err", err)
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	var ev scheduler.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	log := observability.WithTrace(r.Context()).With("cron", ev.Cron)
	err = s.backend.HandleScheduled(r.Context(), ev)
	switch {
	case errors.Is(err, scheduler.ErrNoJob):
		log.Info("webhook: no job for expression")
		writeError(w, http.StatusNotFound, "no job for cron expression")
	case err != nil:
		log.Error("webhook: scheduled run failed", "err", err)
		writeError(w, http.StatusInternalServerError, "scheduled run failed")
	default:
		writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
	}
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Reload(r.Context()); err != nil {
		observability.WithTrace(r.Context()).Error("webhook: reload failed", "err", err)
		writeError(w, http.StatusInternalServerError, "reload failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "reloaded",
		"config": s.backend.Config().Hash(),
	})
}

// ────────────────────────────────────────────────────────────────────────────
// Health
// ────────────────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.backend.Config()
	platforms := cfg.Platforms()
	if platforms == nil {
		platforms = []string{}
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:        "ok",
		Version:       version.Version,
		Commit:        version.GitCommit,
		BuildTime:     version.BuildTime,
		StartedAt:     s.startedAt,
		UptimeSecs:    time.Since(s.startedAt).Seconds(),
		ConfigHash:    cfg.Hash(),
		Platforms:     platforms,
		MemoryBackend: cfg.Memory.Backend,
		Scheduler:     cfg.Schedule.Enabled,
	})
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("webhook: failed to encode JSON response", "err", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}
