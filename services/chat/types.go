package chat

import (
	"github.com/google/uuid"

	"github.com/upb/omniagent/internal/router"
	"github.com/upb/omniagent/internal/shared"
)

// ImagePromptPrefix is prepended to the user's text when an image is attached.
const ImagePromptPrefix = "Use the image to answer: "

// Prompt is one user turn before sanitization
type Prompt struct {
	Text string `json:"text"`

	// ImageBase64 is an optional base64 image (a data URL prefix is accepted)
	ImageBase64 string `json:"image_base64,omitempty"`

	PrivacyMode router.PrivacyMode `json:"privacy_mode"`

	// ImageAttached is used by previews when the caller has an image it
	// does not want to upload. Ask ignores it.
	ImageAttached bool `json:"has_image,omitempty"`
}

// HasImage reports whether an image is attached
func (p Prompt) HasImage() bool {
	return p.ImageBase64 != "" || p.ImageAttached
}

// TurnResult is the answer to one turn
type TurnResult struct {
	ID        uuid.UUID `json:"id"`
	RequestID string    `json:"request_id"`

	Content string `json:"content"`
	Model   string `json:"model,omitempty"`

	// Decision is the backend that produced Content; Original is the router's choice
	Decision router.RouteDecision `json:"decision"`
	Original router.RouteDecision `json:"original"`

	Fallback       bool             `json:"fallback"`
	Notice         string           `json:"notice,omitempty"`
	CloudErrorKind shared.ErrorKind `json:"cloud_error_kind,omitempty"`

	PromptTokens int   `json:"prompt_tokens,omitempty"`
	OutputTokens int   `json:"output_tokens,omitempty"`
	LatencyMs    int64 `json:"latency_ms"`
}

// Preview is a routing decision computed without invoking a backend
type Preview struct {
	SanitizedText string                   `json:"sanitized_text"`
	IsComplex     bool                     `json:"is_complex"`
	Decision      router.RouteDecision     `json:"decision"`
	Status        router.EnvironmentStatus `json:"status"`
}
