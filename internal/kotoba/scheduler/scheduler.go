// Package scheduler runs the periodic market posts.
//
// A job is triggered either by an external cron signal carrying the schedule
// expression (HandleEvent) or by the in-process Runner. Either way the job
// builds a synthetic message, runs it through the scheduled pipeline and
// publishes the result as a top-level post.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bdobrica/Kotoba/internal/kotoba/actions"
	"github.com/bdobrica/Kotoba/internal/kotoba/config"
	"github.com/bdobrica/Kotoba/internal/kotoba/message"
	"github.com/bdobrica/Kotoba/internal/kotoba/observability"
	"github.com/bdobrica/Kotoba/internal/kotoba/orchestrator"
)

// ErrNoJob is returned by HandleEvent when no job uses the expression.
var ErrNoJob = errors.New("scheduler: no job for cron expression")

// Author is the username of every synthetic scheduled message.
const Author = "scheduler"

// Event is an external cron trigger.
type Event struct {
	Cron string `json:"cron"`
	// ScheduledTime is the intended fire time in milliseconds since epoch.
	// Zero means now.
	ScheduledTime int64 `json:"scheduledTime"`
}

// Job is one scheduled post.
type Job struct {
	Name string
	Cron string
	// Prompt is the text of the synthetic message; it must trigger an action.
	Prompt string
	// Context overrides the action's elaboration prompt.
	Context string
}

// Processor is what a job needs from the pipeline.
type Processor interface {
	ProcessScheduledMessage(ctx context.Context, msg *message.Message, opts orchestrator.ScheduledOptions) (*actions.Result, error)
	Publish(ctx context.Context, text string, embeds []json.RawMessage) error
}

const financialContext = "You are Kotoba writing a scheduled market update for " +
	"Farcaster and X. The user message holds live spot data. Write one post " +
	"under 280 characters that gives the direction of each asset and one " +
	"sharp observation. No hashtags, no financial advice."

const etfContext = "You are Kotoba writing a scheduled update on spot crypto " +
	"ETF flows for Farcaster and X. The user message holds the latest daily " +
	"net flows in millions of USD. Write one post under 280 characters on " +
	"what the flows say about institutional demand. No hashtags."

// DefaultJobs returns the built-in jobs for cfg. Jobs with an empty
// expression are left out.
func DefaultJobs(cfg *config.Snapshot) []Job {
	assets := strings.Join(cfg.Market.Assets, ", ")
	if assets == "" {
		assets = "btc"
	}
	candidates := []Job{
		{
			Name:    "financial_analysis",
			Cron:    cfg.Schedule.Financial,
			Prompt:  "Give me a price analysis for " + assets,
			Context: financialContext,
		},
		{
			Name:    "etf_flows",
			Cron:    cfg.Schedule.ETF,
			Prompt:  "Latest spot ETF flows update",
			Context: etfContext,
		},
	}
	var jobs []Job
	for _, j := range candidates {
		if strings.TrimSpace(j.Cron) != "" {
			jobs = append(jobs, j)
		}
	}
	return jobs
}

// Scheduler maps cron expressions to jobs and runs them.
type Scheduler struct {
	proc Processor
	jobs []Job
	now  func() time.Time
}

// New returns a Scheduler running jobs through proc.
func New(proc Processor, jobs []Job) *Scheduler {
	return &Scheduler{proc: proc, jobs: jobs, now: time.Now}
}

// Jobs returns the configured jobs.
func (s *Scheduler) Jobs() []Job {
	return append([]Job(nil), s.jobs...)
}

// HandleEvent runs every job whose expression equals ev.Cron.
func (s *Scheduler) HandleEvent(ctx context.Context, ev Event) error {
	expr := strings.TrimSpace(ev.Cron)
	at := s.now()
	if ev.ScheduledTime > 0 {
		at = time.UnixMilli(ev.ScheduledTime)
	}
	var (
		matched bool
		errs    []error
	)
	for _, job := range s.jobs {
		if job.Cron != expr {
			continue
		}
		matched = true
		if err := s.Run(ctx, job, at); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", job.Name, err))
		}
	}
	if !matched {
		return fmt.Errorf("%w: %q", ErrNoJob, expr)
	}
	return errors.Join(errs...)
}

// Run executes job as of at.
func (s *Scheduler) Run(ctx context.Context, job Job, at time.Time) (err error) {
	log := observability.WithTrace(ctx).With("job", job.Name)
	defer func() {
		observability.ScheduledJobsTotal.WithLabelValues(job.Name, observability.Outcome(err)).Inc()
	}()

	msg := &message.Message{
		ID:   fmt.Sprintf("scheduled:%s:%d", job.Name, at.Unix()),
		Text: job.Prompt,
		Author: message.Author{
			Username:    Author,
			DisplayName: "Scheduler",
		},
		Timestamp: at.UnixMilli(),
		Platform:  message.Farcaster,
	}

	res, err := s.proc.ProcessScheduledMessage(ctx, msg, orchestrator.ScheduledOptions{Context: job.Context})
	if err != nil {
		return err
	}
	if res == nil || strings.TrimSpace(res.Text) == "" {
		log.Warn("scheduler: job produced no post")
		return nil
	}
	if err := s.proc.Publish(ctx, res.Text, res.Embeds); err != nil {
		return err
	}
	log.Info("scheduler: job published", "chars", len([]rune(res.Text)))
	return nil
}
