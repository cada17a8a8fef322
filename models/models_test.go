package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoutingEvent(t *testing.T) {
	event := NewRoutingEvent("req-1")

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, "req-1", event.RequestID)
	assert.Nil(t, event.SessionID)
	assert.Nil(t, event.ErrorKind)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestRoutingEvent_TableName(t *testing.T) {
	assert.Equal(t, "routing_events", RoutingEvent{}.TableName())
}

func TestRoutingEvent_Builders(t *testing.T) {
	sessionID := uuid.New()
	event := NewRoutingEvent("req-2").WithSession(sessionID).WithError("invocation_timeout")

	require.NotNil(t, event.SessionID)
	assert.Equal(t, sessionID, *event.SessionID)
	require.NotNil(t, event.ErrorKind)
	assert.Equal(t, "invocation_timeout", *event.ErrorKind)

	event.WithError("")
	assert.Nil(t, event.ErrorKind)
}

func TestRoutingEvent_JSON(t *testing.T) {
	event := NewRoutingEvent("req-3")
	event.TargetBackend = "ollama/llama3:8b"
	event.OriginalBackend = "openai/gpt-4o"
	event.UsedFallback = true

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "ollama/llama3:8b", decoded["target_backend"])
	assert.Equal(t, true, decoded["used_fallback"])
	assert.NotContains(t, decoded, "session_id")
	assert.NotContains(t, decoded, "error_kind")
}
