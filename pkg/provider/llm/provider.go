// Package llm defines the Provider interface for large language model
// backends used for structured clinical extraction.
//
// Extraction only needs single-shot completions, so the interface is limited
// to Complete. Implementations must be safe for concurrent use and return
// promptly when ctx is cancelled.
package llm

import "context"

// Roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to answer.
type CompletionRequest struct {
	// SystemPrompt is sent ahead of Messages with the system role when
	// non-empty.
	SystemPrompt string

	// Messages is the ordered conversation. At least one is required.
	Messages []Message

	// Temperature in [0, 2]. Zero leaves the provider default, which for
	// extraction should be overridden with a low explicit value.
	Temperature float64

	// MaxTokens caps the completion. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the full answer to a [CompletionRequest].
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req and waits for the whole response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
