package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/upb/omniagent/internal/shared"
)

// Provider represents one backend runtime (local Ollama, OpenAI, OpenRouter)
type Provider interface {
	// Name returns the runtime name used as the backend identifier prefix
	// (e.g. "ollama" in "ollama/llama3:8b")
	Name() string

	// ChatCompletion performs a single, non-streaming chat completion
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// ChatRequest represents a unified chat completion request
type ChatRequest struct {
	// Model identifier within the runtime (e.g. "llama3:8b", "gpt-4o")
	Model string `json:"model"`

	// Messages in the conversation
	Messages []Message `json:"messages"`

	// MaxTokens limits the response length
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 to 2.0)
	Temperature float64 `json:"temperature,omitempty"`

	// Metadata for tracking and logging
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Message represents a single message in a conversation
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`

	// Images holds base64-encoded images for vision models
	Images []string `json:"images,omitempty"`
}

// ChatResponse represents a unified chat completion response
type ChatResponse struct {
	ID       string        `json:"id"`
	Model    string        `json:"model"`
	Content  string        `json:"content"`
	Usage    Usage         `json:"usage"`
	Provider string        `json:"provider"`
	Latency  time.Duration `json:"latency"`
	Created  time.Time     `json:"created"`
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// APIKey for authentication (cloud runtimes only)
	APIKey string

	// BaseURL for the API
	BaseURL string

	// Timeout is a ceiling on the HTTP client; callers bound each call with a
	// context deadline as well
	Timeout time.Duration

	// Additional headers
	Headers map[string]string

	// HTTPClient overrides the default client (tests)
	HTTPClient *http.Client
}

// Error codes shared by the adapters
const (
	CodeHTTPError      = "HTTP_ERROR"
	CodeReadError      = "READ_ERROR"
	CodeMarshalError   = "MARSHAL_ERROR"
	CodeUnmarshalError = "UNMARSHAL_ERROR"
	CodeRequestError   = "REQUEST_ERROR"
	CodeEmptyResponse  = "EMPTY_RESPONSE"
	CodeTimeout        = "timeout"
)

// Codes that providers use to report exhausted quota or rate limiting
var quotaCodes = map[string]bool{
	"insufficient_quota":  true,
	"rate_limit_exceeded": true,
	"rate_limit_error":    true,
	"quota_exceeded":      true,
}

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates if the request could succeed on another attempt
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := e.Provider + ": " + e.Message
	if e.Cause != nil && e.Cause.Error() != e.Message {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// ErrorKind classifies the failure for the fallback coordinator.
func (e *ProviderError) ErrorKind() shared.ErrorKind {
	switch {
	case e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode == http.StatusPaymentRequired,
		quotaCodes[e.Code]:
		return shared.KindInvocationQuotaExceeded
	case e.Code == CodeTimeout,
		e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusGatewayTimeout:
		return shared.KindInvocationTimeout
	}
	if e.Cause != nil {
		if errors.Is(e.Cause, context.Canceled) {
			return shared.KindCanceled
		}
		if k := shared.KindOf(e.Cause); k == shared.KindInvocationTimeout {
			return k
		}
	}
	return shared.KindInvocationFailed
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
