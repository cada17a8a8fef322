package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/omniagent/internal/shared"
	"github.com/upb/omniagent/services/providers"
)

func TestAdapter_ChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llava", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, []string{"aW1hZ2U="}, req.Messages[0].Images)

		_ = json.NewEncoder(w).Encode(ChatResponse{
			Model:           req.Model,
			CreatedAt:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Message:         Message{Role: "assistant", Content: "a cat"},
			Done:            true,
			PromptEvalCount: 12,
			EvalCount:       3,
		})
	}))
	defer server.Close()

	adapter := NewAdapter(providers.ProviderConfig{BaseURL: server.URL})
	resp, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Model: "llava",
		Messages: []providers.Message{
			{Role: "user", Content: "Use the image to answer: what is this?", Images: []string{"aW1hZ2U="}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "a cat", resp.Content)
	assert.Equal(t, "ollama", resp.Provider)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestAdapter_Options(t *testing.T) {
	adapter := NewAdapter(providers.ProviderConfig{})
	req := adapter.buildRequest(&providers.ChatRequest{Model: "llama3:8b", Temperature: 0.2, MaxTokens: 64})

	require.NotNil(t, req.Options)
	assert.Equal(t, 0.2, *req.Options.Temperature)
	assert.Equal(t, 64, *req.Options.NumPredict)
	assert.Nil(t, adapter.buildRequest(&providers.ChatRequest{Model: "llama3:8b"}).Options)
	assert.Equal(t, DefaultBaseURL, adapter.config.BaseURL)
}

func TestAdapter_ChatCompletion_Errors(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantCode   string
		wantInMsg  string
	}{
		{
			name:       "model not found",
			statusCode: http.StatusNotFound,
			body:       `{"error":"model 'llama3:8b' not found"}`,
			wantCode:   "MODEL_NOT_FOUND",
			wantInMsg:  "ollama pull llama3:8b",
		},
		{
			name:       "server error",
			statusCode: http.StatusInternalServerError,
			body:       `{"error":"out of memory"}`,
			wantCode:   "OLLAMA_ERROR",
			wantInMsg:  "out of memory",
		},
		{
			name:       "empty body",
			statusCode: http.StatusServiceUnavailable,
			wantCode:   "OLLAMA_ERROR",
			wantInMsg:  "Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewAdapter(providers.ProviderConfig{BaseURL: server.URL}).ChatCompletion(context.Background(), &providers.ChatRequest{Model: "llama3:8b"})
			require.Error(t, err)

			var provErr *providers.ProviderError
			require.True(t, errors.As(err, &provErr))
			assert.Equal(t, tt.wantCode, provErr.Code)
			assert.Contains(t, provErr.Message, tt.wantInMsg)
			assert.Equal(t, shared.KindInvocationFailed, shared.KindOf(err))
		})
	}
}

func TestAdapter_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewAdapter(providers.ProviderConfig{BaseURL: url}).ChatCompletion(context.Background(), &providers.ChatRequest{Model: "llama3:8b"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unreachable"))
	assert.Equal(t, shared.KindInvocationFailed, shared.KindOf(err))
}
