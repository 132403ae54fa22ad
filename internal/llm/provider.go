// Package llm talks to chat-completion backends used by the pipeline
// stages.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ppiankov/verifact/internal/retry"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends one prompt and returns the model's reply
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest is a single-turn prompt
type CompletionRequest struct {
	// System sets the model's role and rules
	System string

	// Prompt is the user message
	Prompt string

	// Model overrides the provider's default model
	Model string

	// MaxTokens limits the response length
	MaxTokens int

	// Temperature controls sampling; zero means provider default
	Temperature float32

	// JSON asks the backend to reply with a single JSON value
	JSON bool
}

// CompletionResponse contains the model's reply
type CompletionResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "openai",
		Timeout:   30,
		MaxTokens: 1500,
	}
}

// APIError is a non-success reply from a provider
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed if repeated:
// rate limits and server errors are, other client errors are not.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 || e.StatusCode == 0
}

// classify wraps non-retryable API errors with retry.Permanent
func classify(err *APIError) error {
	if err.Retryable() {
		return err
	}
	return retry.Permanent(err)
}

// IsAPIError reports whether err carries an APIError and returns it
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func pick[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}
