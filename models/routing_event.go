package models

import (
	"time"

	"github.com/google/uuid"
)

// RoutingEvent records how one turn was routed and how the invocation ended.
// Events are written for observability only; routing never reads them back.
type RoutingEvent struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	SessionID *uuid.UUID `json:"session_id,omitempty" db:"session_id"`
	RequestID string     `json:"request_id" db:"request_id"`

	// Decision of the last attempt (the local text backend after a fallback)
	TargetBackend string `json:"target_backend" db:"target_backend"`
	Provider      string `json:"provider" db:"provider"`
	Rule          string `json:"rule" db:"rule"`
	ForcedLocal   bool   `json:"forced_local" db:"forced_local"`

	// OriginalBackend is the router's first choice
	OriginalBackend string `json:"original_backend" db:"original_backend"`

	Succeeded    bool    `json:"succeeded" db:"succeeded"`
	UsedFallback bool    `json:"used_fallback" db:"used_fallback"`
	ErrorKind    *string `json:"error_kind,omitempty" db:"error_kind"`
	LatencyMs    int64   `json:"latency_ms" db:"latency_ms"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the RoutingEvent model
func (RoutingEvent) TableName() string {
	return "routing_events"
}

// NewRoutingEvent creates a new RoutingEvent instance
func NewRoutingEvent(requestID string) *RoutingEvent {
	return &RoutingEvent{
		ID:        uuid.New(),
		RequestID: requestID,
		CreatedAt: time.Now().UTC(),
	}
}

// WithSession sets the session ID
func (e *RoutingEvent) WithSession(sessionID uuid.UUID) *RoutingEvent {
	e.SessionID = &sessionID
	return e
}

// WithError sets the failure kind; an empty kind clears it
func (e *RoutingEvent) WithError(kind string) *RoutingEvent {
	if kind == "" {
		e.ErrorKind = nil
		return e
	}
	e.ErrorKind = &kind
	return e
}
