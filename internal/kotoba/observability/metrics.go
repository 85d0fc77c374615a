package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesTotal counts processed messages by platform, pipeline path
	// (action, elaborated, model) and outcome (ok, error).
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kotoba_messages_total",
			Help: "Messages processed by the orchestrator",
		},
		[]string{"platform", "path", "outcome"},
	)

	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kotoba_llm_requests_total",
			Help: "Chat completion requests",
		},
		[]string{"outcome"},
	)

	LLMRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kotoba_llm_request_seconds",
			Help:    "Chat completion latency",
			Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 32},
		},
	)

	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kotoba_dispatch_total",
			Help: "Replies sent through platform adapters",
		},
		[]string{"platform", "outcome"},
	)

	WebhookRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kotoba_webhook_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	ScheduledJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kotoba_scheduled_jobs_total",
			Help: "Scheduled job runs",
		},
		[]string{"job", "outcome"},
	)
)

// Outcome maps an error to the outcome label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
