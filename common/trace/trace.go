// Package trace provides trace ID generation and context propagation so that
// every log line emitted while one inbound message or scheduled job is
// processed can be correlated.
package trace

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

const prefix = "t_"

type traceKey struct{}

// GenerateID returns a new lexically sortable trace ID of the form t_<ulid>.
func GenerateID() string {
	return prefix + strings.ToLower(ulid.Make().String())
}

// WithTraceID returns a child context carrying the given trace ID.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// Ensure returns ctx unchanged when it already carries a trace ID, otherwise
// a child context with a fresh one.
func Ensure(ctx context.Context) context.Context {
	if FromContext(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, GenerateID())
}

// FromContext extracts the trace ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}
