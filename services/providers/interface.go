package providers

import (
	"context"
	"errors"
)

// Message roles accepted by every adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// ChatOptions holds the per-call tuning knobs. Nil fields fall back to
// provider defaults.
type ChatOptions struct {
	Temperature *float64
	MaxTokens   *int
}

// ChatResponse is the normalized response shape every adapter funnels
// through. Token counts are provider-reported; CostCents is computed
// from the static price catalog.
type ChatResponse struct {
	Content      string `json:"content"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	TotalTokens  int64  `json:"total_tokens"`
	CostCents    int64  `json:"cost_cents"`
	ModelID      string `json:"model_id"`
	Provider     string `json:"provider"`
}

// ChatClient is the uniform contract over any LLM backend. Adding a
// provider means implementing this interface and registering it; call
// sites never switch on provider identifiers.
type ChatClient interface {
	// Provider returns the provider identifier (e.g. "openai", "openrouter")
	Provider() string

	// Chat performs a chat completion request against a specific model.
	// Implementations bound the call with a timeout and honor context
	// cancellation.
	Chat(ctx context.Context, modelID string, messages []Message, opts *ChatOptions) (*ChatResponse, error)
}

// ProviderError represents an error from a provider backend
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates if the request can be retried
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}

// IsCancellation reports whether the error stems from context
// cancellation or a deadline expiry rather than a provider failure.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
