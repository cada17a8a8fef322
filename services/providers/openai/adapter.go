package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/omniagent/services/providers"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Adapter implements providers.Provider for OpenAI-compatible chat
// completion APIs. The same adapter serves OpenAI and OpenRouter.
type Adapter struct {
	name       string
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewOpenAIAdapter creates an adapter for api.openai.com
func NewOpenAIAdapter(config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	return newAdapter("openai", config)
}

// NewOpenRouterAdapter creates an adapter for openrouter.ai
func NewOpenRouterAdapter(config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = openRouterBaseURL
	}
	if config.Headers == nil {
		config.Headers = make(map[string]string)
	}
	if _, ok := config.Headers["X-Title"]; !ok {
		config.Headers["X-Title"] = "OmniAgent"
	}
	return newAdapter("openrouter", config)
}

func newAdapter(name string, config providers.ProviderConfig) *Adapter {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &Adapter{
		name:       name,
		config:     config,
		httpClient: client,
	}
}

// Name returns the runtime name
func (a *Adapter) Name() string {
	return a.name
}

// ChatCompletion performs a single chat completion request. It never retries;
// fallback is the caller's decision.
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	reqBody, err := json.Marshal(a.buildRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(a.name, providers.CodeMarshalError, "failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.name, providers.CodeRequestError, "failed to create request", 0, false, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(a.name, providers.CodeHTTPError, "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return nil, a.handleErrorResponse(httpResp.StatusCode, body)
	}

	var chatResp ChatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, providers.NewProviderError(a.name, providers.CodeUnmarshalError, "failed to decode response", httpResp.StatusCode, false, err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, providers.NewProviderError(a.name, providers.CodeEmptyResponse, "response has no choices", httpResp.StatusCode, false, nil)
	}

	return a.convertResponse(&chatResp, time.Since(startTime)), nil
}

func (a *Adapter) buildRequest(req *providers.ChatRequest) *ChatCompletionRequest {
	out := &ChatCompletionRequest{
		Model:    req.Model,
		Messages: make([]Message, len(req.Messages)),
	}
	for i, msg := range req.Messages {
		out.Messages[i] = Message{Role: msg.Role, Content: msg.Content}
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = &req.MaxTokens
	}
	if req.Temperature > 0 {
		out.Temperature = &req.Temperature
	}
	return out
}

func (a *Adapter) convertResponse(resp *ChatCompletionResponse, latency time.Duration) *providers.ChatResponse {
	return &providers.ChatResponse{
		ID:       resp.ID,
		Model:    resp.Model,
		Content:  resp.Choices[0].Message.Content,
		Provider: a.name,
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Latency: latency,
		Created: time.Unix(resp.Created, 0),
	}
}

// handleErrorResponse maps an error body to a ProviderError. OpenAI reports
// exhausted quota as {"error":{"code":"insufficient_quota"}}.
func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(statusCode)
		}
		return providers.NewProviderError(a.name, "UNKNOWN_ERROR", msg, statusCode, retryable, nil)
	}

	code := errResp.Error.Code.String()
	if code == "" {
		code = errResp.Error.Type
	}

	return providers.NewProviderError(
		a.name,
		code,
		errResp.Error.Message,
		statusCode,
		retryable,
		errors.New(errResp.Error.Message),
	)
}

// OpenAI-compatible request/response types

type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Message string    `json:"message"`
	Type    string    `json:"type"`
	Code    ErrorCode `json:"code"`
}

// ErrorCode accepts both the string codes of OpenAI and the numeric codes of OpenRouter.
type ErrorCode string

// UnmarshalJSON implements json.Unmarshaler
func (c *ErrorCode) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ErrorCode(s)
		return nil
	}
	if string(data) == "null" {
		*c = ""
		return nil
	}
	*c = ErrorCode(strings.TrimSpace(string(data)))
	return nil
}

// String returns the code as text
func (c ErrorCode) String() string {
	return string(c)
}
