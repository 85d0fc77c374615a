package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/bdobrica/Kotoba/common/trace"
)

// ────────────────────────────────────────────────────────────────────────────
// Clock abstraction (testability)
// ────────────────────────────────────────────────────────────────────────────

// clock is an interface over time.Now and time.After, allowing tests to
// substitute a controlled fake clock that advances on demand.
type clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// ────────────────────────────────────────────────────────────────────────────
// Runner
// ────────────────────────────────────────────────────────────────────────────

// FireFunc runs job for the tick at.
type FireFunc func(ctx context.Context, job Job, at time.Time)

type cronJob struct {
	job    Job
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner fires jobs on their cron expressions from inside the process. New
// creates an idle runner; Reconcile starts and stops jobs; Stop tears
// everything down.
type Runner struct {
	mu     sync.Mutex
	jobs   map[string]*cronJob
	fire   FireFunc
	ctx    context.Context
	cancel context.CancelFunc
	clk    clock
}

// NewRunner returns an idle Runner calling fire on every tick.
func NewRunner(fire FireFunc) *Runner {
	return NewRunnerWithClock(fire, realClock{})
}

// NewRunnerWithClock is like NewRunner but injects a custom clock.
func NewRunnerWithClock(fire FireFunc, clk clock) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		jobs:   make(map[string]*cronJob),
		fire:   fire,
		ctx:    ctx,
		cancel: cancel,
		clk:    clk,
	}
}

// Reconcile makes the running set equal jobs. A job whose expression, prompt
// or context changed is restarted.
func (r *Runner) Reconcile(jobs []Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[string]Job, len(jobs))
	for _, j := range jobs {
		wanted[j.Name] = j
	}

	for name, cj := range r.jobs {
		next, ok := wanted[name]
		if !ok || next != cj.job {
			slog.Info("scheduler: stopping cron job", "job", name)
			cj.cancel()
			<-cj.done
			delete(r.jobs, name)
		}
	}

	for name, j := range wanted {
		if _, running := r.jobs[name]; !running {
			r.startLocked(j)
		}
	}
}

// Running lists the names of the running jobs.
func (r *Runner) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		out = append(out, name)
	}
	return out
}

// Stop cancels all jobs and waits for them to exit.
func (r *Runner) Stop() {
	r.cancel()
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, cj := range r.jobs {
		slog.Info("scheduler: stopping cron job on shutdown", "job", name)
		cj.cancel()
		<-cj.done
	}
	r.jobs = make(map[string]*cronJob)
}

// startLocked starts one job. Caller must hold r.mu.
func (r *Runner) startLocked(j Job) {
	if !gronx.IsValid(j.Cron) {
		slog.Error("scheduler: invalid cron expression; job not started",
			"job", j.Name, "expression", j.Cron)
		return
	}
	ctx, cancel := context.WithCancel(r.ctx)
	cj := &cronJob{job: j, cancel: cancel, done: make(chan struct{})}
	r.jobs[j.Name] = cj

	slog.Info("scheduler: starting cron job", "job", j.Name, "expression", j.Cron)
	go r.runJob(ctx, cj)
}

// runJob sleeps until each next tick and fires. It returns when ctx is
// cancelled.
func (r *Runner) runJob(ctx context.Context, cj *cronJob) {
	defer close(cj.done)

	for {
		next, err := gronx.NextTickAfter(cj.job.Cron, r.clk.Now(), false)
		if err != nil {
			slog.Error("scheduler: could not compute next tick; stopping job",
				"job", cj.job.Name, "err", err)
			return
		}
		delay := next.Sub(r.clk.Now())
		if delay < 0 {
			delay = 0
		}

		select {
		case <-ctx.Done():
			slog.Info("scheduler: cron job stopped", "job", cj.job.Name)
			return
		case <-r.clk.After(delay):
			r.fire(trace.WithTraceID(ctx, trace.GenerateID()), cj.job, next)
		}
	}
}
