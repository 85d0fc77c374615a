// Package actions holds the deterministic handlers that run before the model
// is consulted.
//
// Each inbound message is offered to the registered actions in registration
// order; the first whose ShouldExecute returns true handles it. An action
// returns a Result whose Text is always set. A non-empty Context asks the
// orchestrator to run Text through the model once more with Context as the
// system prompt. Actions never read conversation history.
package actions

import (
	"context"
	"encoding/json"

	"github.com/bdobrica/Kotoba/internal/kotoba/message"
)

// Action is implemented by every built-in handler.
type Action interface {
	// Name is unique within a Registry and used in logs and metrics.
	Name() string

	// ShouldExecute is a pure predicate over the message.
	ShouldExecute(msg *message.Message) bool

	// Execute produces the result. The context carries the trace id and
	// cancellation.
	Execute(ctx context.Context, msg *message.Message) (*Result, error)
}

// Result is the outcome of an action.
type Result struct {
	Text              string            `json:"text"`
	ShouldSendMessage bool              `json:"shouldSendMessage"`
	Context           string            `json:"context,omitempty"`
	Embeds            []json.RawMessage `json:"embeds,omitempty"`
}

// Registry is an ordered list of actions. Populate it before serving
// requests; it is read-only afterwards and safe for concurrent Match calls.
type Registry struct {
	actions []Action
	names   map[string]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register appends a to the registry. It panics on a duplicate name, which
// indicates a programming error in the registration sequence.
func (r *Registry) Register(a Action) {
	name := a.Name()
	if _, dup := r.names[name]; dup {
		panic("actions: duplicate action registration: " + name)
	}
	r.names[name] = struct{}{}
	r.actions = append(r.actions, a)
}

// Match returns the first action whose predicate accepts msg, or nil.
func (r *Registry) Match(msg *message.Message) Action {
	for _, a := range r.actions {
		if a.ShouldExecute(msg) {
			return a
		}
	}
	return nil
}

// Names lists the registered actions in order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.actions))
	for i, a := range r.actions {
		out[i] = a.Name()
	}
	return out
}
