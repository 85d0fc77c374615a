// Package webhook is the relay's HTTP boundary.
//
// Inbound platform deliveries arrive at:
//
//	POST /telegram
//	POST /farcaster
//
// Each request is checked against the platform toggle, the platform's
// webhook secret, a per-platform rate limit and an embedded JSON Schema, then
// converted into a canonical message and run through the pipeline. Once a
// payload is accepted the sender gets 200 whatever happens downstream;
// processing failures are logged, not returned.
//
// The server also exposes the scheduled trigger, a reload endpoint, health,
// status and Prometheus metrics.
package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/bdobrica/Kotoba/common/trace"
	"github.com/bdobrica/Kotoba/internal/kotoba/actions"
	"github.com/bdobrica/Kotoba/internal/kotoba/config"
	"github.com/bdobrica/Kotoba/internal/kotoba/message"
	"github.com/bdobrica/Kotoba/internal/kotoba/observability"
	"github.com/bdobrica/Kotoba/internal/kotoba/scheduler"
)

// maxBodyBytes caps inbound request bodies.
const maxBodyBytes = 1 << 20

// Backend is what the server needs from the application.
type Backend interface {
	// Config returns the snapshot currently in effect.
	Config() *config.Snapshot
	ProcessMessage(ctx context.Context, msg *message.Message) (*actions.Result, error)
	HandleScheduled(ctx context.Context, ev scheduler.Event) error
	Reload(ctx context.Context) error
}

// Server routes HTTP requests to the backend.
type Server struct {
	backend   Backend
	schemas   schemaSet
	limiters  *limiterSet
	router    chi.Router
	startedAt time.Time

	srv *http.Server
}

// New builds the router. It fails only if the embedded schemas do not
// compile.
func New(backend Backend) (*Server, error) {
	schemas, err := loadSchemas()
	if err != nil {
		return nil, err
	}
	s := &Server{
		backend:   backend,
		schemas:   schemas,
		limiters:  newLimiterSet(),
		startedAt: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(instrument)
	r.Use(chimw.Recoverer)

	r.Post("/telegram", s.handleTelegram)
	r.Post("/farcaster", s.handleFarcaster)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Post("/scheduled", s.handleScheduled)
		r.Post("/admin/reload", s.handleReload)
	})

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.router = r
	return s, nil
}

// ServeHTTP implements http.Handler so the server can be tested without a
// listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens on addr in the background and shuts down when ctx is
// cancelled. It returns once the listener is open.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("webhook: listen %s: %w", addr, err)
	}

	s.srv = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Replies wait for the model and the platform API.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("webhook: listening", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("webhook: server stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop shuts the listener down, waiting up to 10s for in-flight requests.
func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		slog.Warn("webhook: shutdown error", "err", err)
	}
}

// instrument gives every request a trace id, counts it by route pattern and
// status, and logs it at debug level.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := trace.Ensure(r.Context())
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rc := chi.RouteContext(ctx); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		observability.WebhookRequestsTotal.WithLabelValues(route, fmt.Sprint(status)).Inc()
		observability.WithTrace(ctx).Debug("webhook: request",
			"method", r.Method,
			"route", route,
			"status", status,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"request_id", chimw.GetReqID(ctx),
		)
	})
}

// ────────────────────────────────────────────────────────────────────────────
// Rate limiting
// ────────────────────────────────────────────────────────────────────────────

// limiterSet keeps one token bucket per platform. A bucket is rebuilt when
// the configured rate or burst changes, so reloads take effect.
type limiterSet struct {
	mu sync.Mutex
	m  map[message.Platform]*platformLimiter
}

type platformLimiter struct {
	rate  float64
	burst int
	lim   *rate.Limiter
}

func newLimiterSet() *limiterSet {
	return &limiterSet{m: make(map[message.Platform]*platformLimiter)}
}

// Allow reports whether one more event from p fits under cfg's limits. A
// zero rate disables limiting.
func (l *limiterSet) Allow(p message.Platform, cfg config.Server) bool {
	if cfg.Rate <= 0 {
		return true
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	l.mu.Lock()
	pl, ok := l.m[p]
	if !ok || pl.rate != cfg.Rate || pl.burst != burst {
		pl = &platformLimiter{rate: cfg.Rate, burst: burst, lim: rate.NewLimiter(rate.Limit(cfg.Rate), burst)}
		l.m[p] = pl
	}
	l.mu.Unlock()
	return pl.lim.Allow()
}
