package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/omniagent/app"
	"github.com/upb/omniagent/config"
)

func newTestServer(t *testing.T, metrics bool) *httptest.Server {
	t.Helper()

	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/version":
			_, _ = w.Write([]byte(`{"version":"0.3.0"}`))
		case "/api/chat":
			_, _ = w.Write([]byte(`{"model":"llama3:8b","message":{"role":"assistant","content":"local answer"},"done":true,"prompt_eval_count":4,"eval_count":2}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ollama.Close)

	cfg := &config.Config{
		Environment: "test",
		Backends: config.BackendsConfig{
			OllamaBaseURL:    ollama.URL,
			LocalTextModel:   "llama3:8b",
			LocalVisionModel: "llava",
			OpenAIModel:      "gpt-4o",
			OpenRouterModel:  "anthropic/claude-3.5-sonnet",
			Timeout:          5 * time.Second,
		},
		Health:        config.HealthConfig{CacheTTL: time.Minute, ProbeTimeout: time.Second},
		Session:       config.SessionConfig{PrivacyDefault: "Normal"},
		Observability: config.ObservabilityConfig{LogLevel: "error", LogFormat: "json", MetricsEnabled: metrics},
	}

	deps, err := app.NewDependencies(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(context.Background()) })

	ts := httptest.NewServer(SetupRoutes(deps))
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, method, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, true)

	resp, body := call(t, http.MethodGet, ts.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	assert.Equal(t, "healthy", body["data"].(map[string]interface{})["status"])

	// No cloud key configured, so readiness is degraded but still 200
	resp, body = call(t, http.MethodGet, ts.URL+"/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "degraded", body["data"].(map[string]interface{})["status"])
}

func TestSessionChatFlow(t *testing.T) {
	ts := newTestServer(t, true)

	resp, body := call(t, http.MethodPost, ts.URL+"/api/v1/sessions", map[string]string{"privacy_mode": "High"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := body["data"].(map[string]interface{})["id"].(string)

	resp, body = call(t, http.MethodPost, ts.URL+"/api/v1/sessions/"+id+"/chat", map[string]string{"text": "Write a haiku about routers"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "local answer", data["content"])
	assert.Equal(t, resp.Header.Get("X-Request-Id"), data["request_id"])
	decision := data["decision"].(map[string]interface{})
	assert.Equal(t, "privacy_high_to_local", decision["rule"])

	resp, _ = call(t, http.MethodPut, ts.URL+"/api/v1/sessions/"+id+"/privacy", map[string]string{"privacy_mode": "Normal"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = call(t, http.MethodPost, ts.URL+"/api/v1/sessions/"+id+"/chat", map[string]string{"text": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Please provide a valid input.", body["message"])

	resp, body = call(t, http.MethodGet, ts.URL+"/api/v1/telemetry", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["data"].(map[string]interface{})["total"])

	resp, _ = call(t, http.MethodDelete, ts.URL+"/api/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRoutingEndpoints(t *testing.T) {
	ts := newTestServer(t, true)

	resp, body := call(t, http.MethodGet, ts.URL+"/api/v1/status?refresh=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env := body["data"].(map[string]interface{})["environment"].(map[string]interface{})
	assert.Equal(t, true, env["local_backend_available"])
	assert.Equal(t, false, env["cloud_backend_available"])

	resp, body = call(t, http.MethodPost, ts.URL+"/api/v1/route", map[string]interface{}{"text": "what is this?", "has_image": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decision := body["data"].(map[string]interface{})["decision"].(map[string]interface{})
	assert.Equal(t, "ollama/llava", decision["target_backend"])

	resp, body = call(t, http.MethodGet, ts.URL+"/api/v1/events", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "routing event log is not enabled", body["message"])
}

func TestMetricsEndpoint(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		ts := newTestServer(t, true)

		resp, err := http.Get(ts.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, strings.Contains(string(raw), "omniagent_invocations_total"))
	})

	t.Run("disabled", func(t *testing.T) {
		ts := newTestServer(t, false)

		resp, body := call(t, http.MethodGet, ts.URL+"/metrics", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "not_found", body["error"])
	})
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t, true)

	resp, body := call(t, http.MethodGet, ts.URL+"/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "endpoint not found", body["message"])
}
