// Package llm wraps a remote chat-completion API.
//
// Provider is the transport-level contract (one request, one completion).
// Gateway sits on top of it and is what the orchestrator calls: it enforces
// the credential check, maps failures to Gateway errors and applies the
// platform length policy to the returned text.
package llm

import "context"

// Role is the role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged content block.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System and User build messages.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message   { return Message{Role: RoleUser, Content: content} }

// CompletionRequest is the input to a single inference call.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// CompletionResponse is the first choice of a completion.
type CompletionResponse struct {
	Content      string
	FinishReason string
	Usage        TokenUsage
}

// TokenUsage reports token consumption.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is implemented by chat-completion backends.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
