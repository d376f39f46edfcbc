// Package llm is the seam between the feedback scorer and whichever language
// model grades a transcript. Backends live in subpackages; all of them must
// be safe for concurrent use.
package llm

import "context"

// Usage is token accounting as reported by the backend. Token units differ
// between vendors.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest is one non-streaming chat request. Messages must not be
// empty.
type CompletionRequest struct {
	Messages []Message

	// SystemPrompt goes in front of Messages as a system message.
	SystemPrompt string

	// Temperature of zero keeps the backend default.
	Temperature float64

	// MaxTokens of zero keeps the backend default.
	MaxTokens int

	// JSONMode asks for a single JSON object back. Backends lacking a native
	// switch extend the system prompt instead (see [SystemPromptFor]), so the
	// caller still has to validate what comes back.
	JSONMode bool
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider completes chat requests. Complete must return promptly once ctx
// is done.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities is constant for the lifetime of the provider.
	Capabilities() ModelCapabilities
}
