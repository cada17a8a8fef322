package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/upb/omniagent/internal/shared"
	"github.com/upb/omniagent/services/providers"
)

func TestNewAdapters(t *testing.T) {
	openai := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "sk-test"})
	if openai.Name() != "openai" {
		t.Errorf("Name() = %s, want openai", openai.Name())
	}
	if openai.config.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %s, want %s", openai.config.BaseURL, defaultBaseURL)
	}

	router := NewOpenRouterAdapter(providers.ProviderConfig{APIKey: "sk-or-test"})
	if router.Name() != "openrouter" {
		t.Errorf("Name() = %s, want openrouter", router.Name())
	}
	if router.config.BaseURL != openRouterBaseURL {
		t.Errorf("BaseURL = %s, want %s", router.config.BaseURL, openRouterBaseURL)
	}
	if router.config.Headers["X-Title"] == "" {
		t.Error("OpenRouter adapter should send an X-Title header")
	}
}

func TestAdapter_ChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-or-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if r.Header.Get("X-Title") == "" {
			t.Error("X-Title header missing")
		}

		var req ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("Expected a non-streaming request")
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "Hello" {
			t.Errorf("Unexpected messages: %+v", req.Messages)
		}

		resp := ChatCompletionResponse{
			ID:      "chatcmpl-test123",
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   req.Model,
			Choices: []Choice{
				{
					Index:        0,
					Message:      Message{Role: "assistant", Content: "This is a test response"},
					FinishReason: "stop",
				},
			},
			Usage: Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	adapter := NewOpenRouterAdapter(providers.ProviderConfig{
		APIKey:  "sk-or-test",
		BaseURL: server.URL + "/",
		Timeout: 5 * time.Second,
	})

	resp, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Model:    "anthropic/claude-3.5-sonnet",
		Messages: []providers.Message{{Role: "user", Content: "Hello"}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}

	if resp.ID != "chatcmpl-test123" {
		t.Errorf("ID = %s", resp.ID)
	}
	if resp.Model != "anthropic/claude-3.5-sonnet" {
		t.Errorf("Model = %s", resp.Model)
	}
	if resp.Provider != "openrouter" {
		t.Errorf("Provider = %s, want openrouter", resp.Provider)
	}
	if resp.Content != "This is a test response" {
		t.Errorf("Unexpected response content: %s", resp.Content)
	}
	if resp.Usage.TotalTokens != 30 {
		t.Errorf("TotalTokens = %d, want 30", resp.Usage.TotalTokens)
	}
}

func TestAdapter_ChatCompletion_Errors(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantKind   shared.ErrorKind
		wantCode   string
	}{
		{
			name:       "insufficient quota",
			statusCode: http.StatusTooManyRequests,
			body:       `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`,
			wantKind:   shared.KindInvocationQuotaExceeded,
			wantCode:   "insufficient_quota",
		},
		{
			name:       "openrouter credits",
			statusCode: http.StatusPaymentRequired,
			body:       `{"error":{"message":"Insufficient credits","code":402}}`,
			wantKind:   shared.KindInvocationQuotaExceeded,
			wantCode:   "402",
		},
		{
			name:       "invalid request",
			statusCode: http.StatusBadRequest,
			body:       `{"error":{"message":"Invalid request","type":"invalid_request_error","code":null}}`,
			wantKind:   shared.KindInvocationFailed,
			wantCode:   "invalid_request_error",
		},
		{
			name:       "non json body",
			statusCode: http.StatusBadGateway,
			body:       `upstream down`,
			wantKind:   shared.KindInvocationFailed,
			wantCode:   "UNKNOWN_ERROR",
		},
		{
			name:       "gateway timeout",
			statusCode: http.StatusGatewayTimeout,
			body:       ``,
			wantKind:   shared.KindInvocationTimeout,
			wantCode:   "UNKNOWN_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "sk-test", BaseURL: server.URL})
			_, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
				Model:    "gpt-4o",
				Messages: []providers.Message{{Role: "user", Content: "Hello"}},
			})
			if err == nil {
				t.Fatal("Expected error but got none")
			}

			var provErr *providers.ProviderError
			if !errors.As(err, &provErr) {
				t.Fatalf("Expected ProviderError, got %T", err)
			}
			if provErr.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %d, want %d", provErr.StatusCode, tt.statusCode)
			}
			if provErr.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", provErr.Code, tt.wantCode)
			}
			if kind := shared.KindOf(err); kind != tt.wantKind {
				t.Errorf("KindOf() = %s, want %s", kind, tt.wantKind)
			}
		})
	}
}

func TestAdapter_ChatCompletion_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{BaseURL: server.URL})
	_, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{Model: "gpt-4o"})

	var provErr *providers.ProviderError
	if !errors.As(err, &provErr) || provErr.Code != providers.CodeEmptyResponse {
		t.Errorf("Expected EMPTY_RESPONSE error, got %v", err)
	}
}

func TestAdapter_ChatCompletion_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	adapter := NewOpenAIAdapter(providers.ProviderConfig{BaseURL: server.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := adapter.ChatCompletion(ctx, &providers.ChatRequest{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("Expected error but got none")
	}
	if kind := shared.KindOf(err); kind != shared.KindInvocationTimeout {
		t.Errorf("KindOf() = %s, want %s", kind, shared.KindInvocationTimeout)
	}
}

func TestErrorCode_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"insufficient_quota"`, "insufficient_quota"},
		{`429`, "429"},
		{`null`, ""},
	}

	for _, tt := range tests {
		var c ErrorCode
		if err := json.Unmarshal([]byte(tt.input), &c); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tt.input, err)
		}
		if c.String() != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.input, c, tt.want)
		}
	}
}
