package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/version":
			_, _ = w.Write([]byte(`{"version":"0.3.0"}`))
		case "/api/chat":
			_, _ = w.Write([]byte(`{"model":"llama3:8b","message":{"role":"assistant","content":"local answer"},"done":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setTestEnv(t *testing.T, ollamaURL string) {
	t.Helper()
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("OLLAMA_BASE_URL", ollamaURL)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("DATABASE_URL", "")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	setTestEnv(t, fakeOllama(t).URL)

	out, err := run(t, "status", "--refresh")
	require.NoError(t, err)

	assert.Contains(t, out, "local backend:  available (ollama/llama3:8b)")
	assert.Contains(t, out, "cloud backend:  unavailable (provider none, key <unset>)")
}

func TestRouteCommand(t *testing.T) {
	setTestEnv(t, fakeOllama(t).URL)

	t.Run("privacy high stays local", func(t *testing.T) {
		out, err := run(t, "route", "--privacy", "High", "write", "a", "poem")
		require.NoError(t, err)

		var preview map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &preview))
		decision := preview["decision"].(map[string]interface{})
		assert.Equal(t, "privacy_high_to_local", decision["rule"])
		assert.Equal(t, true, preview["is_complex"])
	})

	t.Run("image flag selects vision", func(t *testing.T) {
		out, err := run(t, "route", "--image", "what is this")
		require.NoError(t, err)
		assert.Contains(t, out, "ollama/llava")
	})

	t.Run("invalid privacy mode", func(t *testing.T) {
		_, err := run(t, "route", "--privacy", "Max", "hi")
		assert.Error(t, err)
	})

	t.Run("requires text", func(t *testing.T) {
		_, err := run(t, "route")
		assert.Error(t, err)
	})
}

func TestAskCommand(t *testing.T) {
	setTestEnv(t, fakeOllama(t).URL)

	t.Run("prints the answer and backend", func(t *testing.T) {
		out, err := run(t, "ask", "hello", "there")
		require.NoError(t, err)
		assert.Contains(t, out, "local answer")
		assert.Contains(t, out, "[ollama/llama3:8b via default_local")
	})

	t.Run("empty prompt", func(t *testing.T) {
		_, err := run(t, "ask", "   ")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Please provide a valid input.")
	})

	t.Run("missing image file", func(t *testing.T) {
		_, err := run(t, "ask", "--image", "/does/not/exist.png", "describe")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read image")
	})
}

func TestInvalidConfig(t *testing.T) {
	setTestEnv(t, "not a url")

	_, err := run(t, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestAvailability(t *testing.T) {
	assert.Equal(t, "available", availability(true, "ignored"))
	assert.Equal(t, "unavailable: connection refused", availability(false, "connection refused"))
	assert.Equal(t, "unavailable", availability(false, ""))
}
