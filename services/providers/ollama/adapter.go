// Package ollama talks to a local Ollama runtime over its HTTP API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/omniagent/services/providers"
)

const (
	// Name is the runtime name in backend identifiers ("ollama/llava").
	Name = "ollama"

	DefaultBaseURL = "http://localhost:11434"

	maxErrorBody = 64 << 10
)

// Adapter implements providers.Provider for the Ollama /api/chat endpoint.
// Images attached to a message are forwarded for vision models.
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewAdapter creates an Ollama adapter
func NewAdapter(config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &Adapter{config: config, httpClient: client}
}

// Name returns the runtime name
func (a *Adapter) Name() string {
	return Name
}

// ChatCompletion sends a non-streaming chat request
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	body, err := json.Marshal(a.buildRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(Name, providers.CodeMarshalError, "failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(Name, providers.CodeRequestError, "failed to create request", 0, false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(Name, providers.CodeHTTPError, "local runtime unreachable", 0, true, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return nil, handleErrorResponse(req.Model, httpResp.StatusCode, raw)
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, providers.NewProviderError(Name, providers.CodeUnmarshalError, "failed to decode response", httpResp.StatusCode, false, err)
	}

	return &providers.ChatResponse{
		Model:    chatResp.Model,
		Content:  chatResp.Message.Content,
		Provider: Name,
		Usage: providers.Usage{
			PromptTokens:     chatResp.PromptEvalCount,
			CompletionTokens: chatResp.EvalCount,
			TotalTokens:      chatResp.PromptEvalCount + chatResp.EvalCount,
		},
		Latency: time.Since(startTime),
		Created: chatResp.CreatedAt,
	}, nil
}

func (a *Adapter) buildRequest(req *providers.ChatRequest) *ChatRequest {
	out := &ChatRequest{
		Model:    req.Model,
		Messages: make([]Message, len(req.Messages)),
		Stream:   false,
	}
	for i, msg := range req.Messages {
		out.Messages[i] = Message{Role: msg.Role, Content: msg.Content, Images: msg.Images}
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		out.Options = &Options{}
		if req.Temperature > 0 {
			out.Options.Temperature = &req.Temperature
		}
		if req.MaxTokens > 0 {
			out.Options.NumPredict = &req.MaxTokens
		}
	}
	return out
}

func handleErrorResponse(model string, statusCode int, body []byte) error {
	var errResp ErrorResponse
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		msg = errResp.Error
	}
	if msg == "" {
		msg = http.StatusText(statusCode)
	}

	code := "OLLAMA_ERROR"
	if statusCode == http.StatusNotFound {
		code = "MODEL_NOT_FOUND"
		msg = "model " + model + " not found, run `ollama pull " + model + "`: " + msg
	}
	return providers.NewProviderError(Name, code, msg, statusCode, statusCode >= 500, nil)
}

// Ollama request/response types

type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  *Options  `json:"options,omitempty"`
}

type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type Options struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
}

type ChatResponse struct {
	Model           string    `json:"model"`
	CreatedAt       time.Time `json:"created_at"`
	Message         Message   `json:"message"`
	Done            bool      `json:"done"`
	PromptEvalCount int       `json:"prompt_eval_count,omitempty"`
	EvalCount       int       `json:"eval_count,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
