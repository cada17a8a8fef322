package router

import (
	"fmt"
	"strings"
	"time"
)

// PrivacyMode is the user-selected privacy setting of a session.
type PrivacyMode string

const (
	PrivacyNormal PrivacyMode = "Normal"
	// PrivacyHigh pins every request to local backends.
	PrivacyHigh PrivacyMode = "High"
)

// ParsePrivacyMode accepts "normal" or "high" in any case.
func ParsePrivacyMode(s string) (PrivacyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return PrivacyNormal, nil
	case "high":
		return PrivacyHigh, nil
	default:
		return "", fmt.Errorf("invalid privacy mode %q: must be Normal or High", s)
	}
}

// Request is one user turn as seen by the router. Text is already sanitized.
type Request struct {
	Text        string
	HasImage    bool
	PrivacyMode PrivacyMode
}

// KeyProvider identifies which cloud service a credential belongs to.
type KeyProvider string

const (
	KeyProviderNone       KeyProvider = "none"
	KeyProviderOpenAI     KeyProvider = "openai"
	KeyProviderOpenRouter KeyProvider = "openrouter"
)

// EnvironmentStatus is a point-in-time snapshot of backend availability.
type EnvironmentStatus struct {
	LocalBackendAvailable bool        `json:"local_backend_available"`
	CloudBackendAvailable bool        `json:"cloud_backend_available"`
	CloudKeyProvider      KeyProvider `json:"cloud_key_provider"`

	// LocalBackendError describes why the last probe failed, if it did.
	LocalBackendError string    `json:"local_backend_error,omitempty"`
	CheckedAt         time.Time `json:"checked_at"`
}

// Provider is the kind of backend a decision targets.
type Provider string

const (
	ProviderLocalVision     Provider = "local_vision"
	ProviderLocalText       Provider = "local_text"
	ProviderCloudOpenAI     Provider = "cloud_openai"
	ProviderCloudOpenRouter Provider = "cloud_openrouter"
)

// IsCloud reports whether the provider is a remote service.
func (p Provider) IsCloud() bool {
	return p == ProviderCloudOpenAI || p == ProviderCloudOpenRouter
}

// RouteDecision names the backend chosen for a request.
type RouteDecision struct {
	TargetBackend string   `json:"target_backend"`
	Provider      Provider `json:"provider"`
	// IsForcedLocal is set when a hard constraint (image, privacy, fallback)
	// put the request on a local backend.
	IsForcedLocal bool `json:"is_forced_local"`
	// Rule is the name of the rule that produced the decision.
	Rule string `json:"rule"`
}

// Catalog holds the backend identifiers the router can choose from. An
// identifier is "<runtime>/<model>", e.g. "ollama/llama3:8b".
type Catalog struct {
	LocalText   string
	LocalVision string
	OpenAI      string
	OpenRouter  string
}

// DefaultCatalog returns the stock backend identifiers.
func DefaultCatalog() Catalog {
	return Catalog{
		LocalText:   "ollama/llama3:8b",
		LocalVision: "ollama/llava",
		OpenAI:      "openai/gpt-4o",
		OpenRouter:  "openrouter/anthropic/claude-3.5-sonnet",
	}
}

// Response is what a backend returned for one attempt.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model,omitempty"`
	PromptTokens int    `json:"prompt_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`

	// Fallback marks a response produced by the local retry after a cloud failure.
	Fallback bool   `json:"fallback"`
	Notice   string `json:"notice,omitempty"`
}
