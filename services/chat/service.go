// Package chat runs a user turn through sanitization, routing, invocation
// with fallback, and the usage recorders.
package chat

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/omniagent/internal/observability"
	"github.com/upb/omniagent/internal/prompt"
	"github.com/upb/omniagent/internal/router"
	"github.com/upb/omniagent/internal/shared"
	"github.com/upb/omniagent/internal/telemetry"
	"github.com/upb/omniagent/services"
	"github.com/upb/omniagent/services/providers"
	"github.com/upb/omniagent/services/session"
)

// StatusSource reports backend availability
type StatusSource interface {
	Status(ctx context.Context) router.EnvironmentStatus
}

// InvokerFactory binds a conversation to the backends
type InvokerFactory interface {
	Invoker(messages []providers.Message) router.Invoker
}

// EventRecorder persists routing events; implementations must not block
type EventRecorder interface {
	RecordOutcome(ctx context.Context, outcome router.InvocationOutcome) error
}

// Service orchestrates a chat turn
type Service struct {
	router      *router.Router
	coordinator *router.FallbackCoordinator
	status      StatusSource
	backends    InvokerFactory
	recorders   []telemetry.Recorder
	events      EventRecorder
	logger      *zap.Logger
}

// NewService creates a chat service. events may be nil when the routing
// event log is disabled.
func NewService(
	r *router.Router,
	coordinator *router.FallbackCoordinator,
	status StatusSource,
	backends InvokerFactory,
	recorders []telemetry.Recorder,
	events EventRecorder,
	logger *zap.Logger,
) *Service {
	return &Service{
		router:      r,
		coordinator: coordinator,
		status:      status,
		backends:    backends,
		recorders:   recorders,
		events:      events,
		logger:      logger,
	}
}

// Turn runs one turn in sess. Turns in the same session are serialized and
// the session's privacy mode is read once the turn holds the session.
func (s *Service) Turn(ctx context.Context, sess *session.Session, text, imageBase64 string) (*TurnResult, error) {
	if err := sess.Acquire(ctx); err != nil {
		return nil, services.ErrRequestCanceled.Clone().WithDetail("session_id", sess.ID.String())
	}
	defer sess.Release()

	ctx = shared.WithSessionID(ctx, sess.ID.String())
	return s.Ask(ctx, Prompt{
		Text:        text,
		ImageBase64: imageBase64,
		PrivacyMode: sess.PrivacyMode(),
	})
}

// Ask runs one turn outside any session
func (s *Service) Ask(ctx context.Context, p Prompt) (*TurnResult, error) {
	requestID := shared.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = shared.WithRequestID(ctx, requestID)
	}
	logger := observability.WithContext(ctx, s.logger)
	start := time.Now()

	// Step 1: sanitize
	text, image, err := s.prepare(p, logger)
	if err == nil && text == "" && image == "" {
		err = services.ErrEmptyPrompt
	}
	if err != nil {
		return nil, err
	}

	// Step 2: availability and decision
	env := s.status.Status(ctx)
	decision := s.router.Decide(router.Request{
		Text:        text,
		HasImage:    image != "",
		PrivacyMode: p.PrivacyMode,
	}, env)
	logger.Debug("routing decision",
		zap.String("target_backend", decision.TargetBackend),
		zap.String("rule", decision.Rule),
		zap.Bool("forced_local", decision.IsForcedLocal),
		zap.Bool("local_available", env.LocalBackendAvailable),
		zap.Bool("cloud_available", env.CloudBackendAvailable))

	// Step 3: invoke with fallback
	outcome := s.coordinator.Invoke(ctx, decision, s.backends.Invoker(buildMessages(text, image)))
	if outcome.Abandoned {
		logger.Debug("turn abandoned by caller", zap.Error(outcome.Err))
		return nil, services.NewDomainError(services.ErrorTypeCanceled, "request canceled", outcome.Err)
	}

	// Step 4: record
	s.record(ctx, outcome, logger)

	if !outcome.Succeeded {
		logger.Error("turn failed",
			zap.String("target_backend", outcome.Decision.TargetBackend),
			zap.String("error_kind", string(outcome.ErrorKind)),
			zap.Bool("used_fallback", outcome.UsedFallback),
			zap.Error(outcome.Err))
		return nil, services.FromOutcome(outcome)
	}

	result := &TurnResult{
		ID:             uuid.New(),
		RequestID:      requestID,
		Content:        outcome.Response.Content,
		Model:          outcome.Response.Model,
		Decision:       outcome.Decision,
		Original:       outcome.Original,
		Fallback:       outcome.Response.Fallback,
		Notice:         outcome.Response.Notice,
		CloudErrorKind: outcome.CloudErrorKind,
		PromptTokens:   outcome.Response.PromptTokens,
		OutputTokens:   outcome.Response.OutputTokens,
		LatencyMs:      time.Since(start).Milliseconds(),
	}

	logger.Info("turn completed",
		zap.String("target_backend", result.Decision.TargetBackend),
		zap.Bool("fallback", result.Fallback),
		zap.Int64("latency_ms", result.LatencyMs))

	return result, nil
}

// Preview sanitizes p and returns the decision the router would make now,
// without invoking a backend.
func (s *Service) Preview(ctx context.Context, p Prompt) (*Preview, error) {
	text, _, err := s.prepare(p, observability.WithContext(ctx, s.logger))
	if err == nil && text == "" && !p.HasImage() {
		err = services.ErrEmptyPrompt
	}
	if err != nil {
		return nil, err
	}
	if p.PrivacyMode == "" {
		p.PrivacyMode = router.PrivacyNormal
	}

	env := s.status.Status(ctx)
	return &Preview{
		SanitizedText: text,
		IsComplex:     router.IsComplex(text),
		Decision: s.router.Decide(router.Request{
			Text:        text,
			HasImage:    p.HasImage(),
			PrivacyMode: p.PrivacyMode,
		}, env),
		Status: env,
	}, nil
}

// prepare returns the sanitized text and validated image payload. Empty
// input is left to the caller.
func (s *Service) prepare(p Prompt, logger *zap.Logger) (string, string, error) {
	if p.PrivacyMode == "" {
		p.PrivacyMode = router.PrivacyNormal
	}
	if p.PrivacyMode != router.PrivacyNormal && p.PrivacyMode != router.PrivacyHigh {
		return "", "", services.ErrInvalidPrivacyMode.Clone().WithDetail("privacy_mode", string(p.PrivacyMode))
	}

	image, err := normalizeImage(p.ImageBase64)
	if err != nil {
		return "", "", services.ErrInvalidImage.Clone().WithDetail("error", err.Error())
	}

	if detections := prompt.DetectInjections(p.Text); len(detections) > 0 {
		logger.Warn("removed prompt injection patterns",
			zap.Int("count", len(detections)),
			zap.String("first_type", string(detections[0].Type)))
	}

	return prompt.Sanitize(p.Text), image, nil
}

func (s *Service) record(ctx context.Context, outcome router.InvocationOutcome, logger *zap.Logger) {
	for _, r := range s.recorders {
		r.Record(outcome)
	}
	if s.events == nil {
		return
	}
	if err := s.events.RecordOutcome(ctx, outcome); err != nil {
		logger.Warn("failed to queue routing event", zap.Error(err))
	}
}

// buildMessages builds the single user message sent to the backend
func buildMessages(text, image string) []providers.Message {
	if image == "" {
		return []providers.Message{{Role: "user", Content: text}}
	}
	return []providers.Message{{
		Role:    "user",
		Content: ImagePromptPrefix + text,
		Images:  []string{image},
	}}
}

// normalizeImage strips a data URL prefix and checks the payload decodes
func normalizeImage(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if strings.HasPrefix(raw, "data:") {
		if _, payload, ok := strings.Cut(raw, ","); ok {
			raw = payload
		}
	}
	if _, err := base64.StdEncoding.DecodeString(raw); err != nil {
		return "", err
	}
	return raw, nil
}
