package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/upb/model-router/services/registry"
)

// Provider represents one upstream text-generation platform
type Provider interface {
	// Name returns the provider tag (e.g., "openai", "anthropic", "google")
	Name() string

	// Invoke sends a single prompt and returns the generated text.
	// An empty string with a nil error means the provider answered without content.
	Invoke(ctx context.Context, req Request) (string, error)
}

// Request is a single-turn generation request addressed to one provider model
type Request struct {
	// ModelName is the provider-native model name (e.g., "gpt-4", "gemini-2.0-flash")
	ModelName string

	// Prompt is the user message
	Prompt string

	// MaxTokens limits the response length when positive
	MaxTokens int
}

// CredentialSource resolves the API key for a provider at call time
type CredentialSource interface {
	Credential(provider registry.Provider) (string, bool)
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// BaseURL for the API (optional override)
	BaseURL string

	// Timeout for the underlying HTTP client
	Timeout time.Duration

	// Additional headers
	Headers map[string]string

	// Credentials resolves API keys on every call
	Credentials CredentialSource

	// HTTPClient overrides the client built from Timeout
	HTTPClient *http.Client
}

// DefaultProviderConfig returns a sensible default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout: 60 * time.Second,
		Headers: make(map[string]string),
	}
}

// Client returns the configured HTTP client, building one from Timeout if needed.
func (c ProviderConfig) Client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultProviderConfig().Timeout
	}
	return &http.Client{Timeout: timeout}
}

// APIKey looks up the credential for provider; missing sources yield no key.
func (c ProviderConfig) APIKey(provider registry.Provider) (string, bool) {
	if c.Credentials == nil {
		return "", false
	}
	return c.Credentials.Credential(provider)
}

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the provider error code (e.g., "insufficient_quota")
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// ProviderFunc adapts a function to the Provider interface
type ProviderFunc struct {
	name string
	fn   func(ctx context.Context, req Request) (string, error)
}

// NewProviderFunc creates a Provider named name backed by fn
func NewProviderFunc(name string, fn func(ctx context.Context, req Request) (string, error)) *ProviderFunc {
	return &ProviderFunc{name: name, fn: fn}
}

// Name returns the provider name
func (p *ProviderFunc) Name() string {
	return p.name
}

// Invoke calls the wrapped function
func (p *ProviderFunc) Invoke(ctx context.Context, req Request) (string, error) {
	return p.fn(ctx, req)
}
