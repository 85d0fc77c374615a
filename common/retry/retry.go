// Package retry provides exponential backoff for start-up dependencies.
//
// The message pipeline itself never retries; this package is only used while
// the process is coming up, for example to wait for a Redis server that is
// starting in the same compose stack.
//
//	err := retry.Do(ctx, retry.Startup, func(ctx context.Context) error {
//	    return client.Ping(ctx).Err()
//	})
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Policy controls the backoff.
type Policy struct {
	// Attempts is the total number of calls including the first. Values
	// below 1 mean a single call.
	Attempts int
	// Initial is the wait before the second call; later waits double up to Max.
	Initial time.Duration
	Max     time.Duration
	// Name labels the log lines.
	Name string
}

// Startup is the policy used for backing stores at process start.
var Startup = Policy{
	Attempts: 5,
	Initial:  250 * time.Millisecond,
	Max:      4 * time.Second,
	Name:     "startup",
}

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts are
// exhausted or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Initial <= 0 {
		p.Initial = Startup.Initial
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}

	delay := p.Initial
	var last error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(last, err)
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		var perm permanent
		if errors.As(last, &perm) {
			return perm.err
		}
		if attempt == p.Attempts {
			break
		}

		slog.Warn("retry: attempt failed", "name", p.Name,
			"attempt", attempt, "of", p.Attempts, "err", last, "delay", delay)

		select {
		case <-ctx.Done():
			return errors.Join(last, ctx.Err())
		case <-time.After(delay):
		}
		delay = min(delay*2, p.Max)
	}
	return last
}
