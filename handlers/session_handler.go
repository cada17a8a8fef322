package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/omniagent/internal/router"
	"github.com/upb/omniagent/middleware"
	"github.com/upb/omniagent/services/chat"
	"github.com/upb/omniagent/services/session"
	"github.com/upb/omniagent/utils"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies; images travel inline as base64.
const maxBodyBytes = 20 << 20

// ChatService runs turns and routing previews
type ChatService interface {
	Turn(ctx context.Context, sess *session.Session, text, imageBase64 string) (*chat.TurnResult, error)
	Preview(ctx context.Context, p chat.Prompt) (*chat.Preview, error)
}

// SessionStore holds conversation sessions
type SessionStore interface {
	Create(mode router.PrivacyMode) *session.Session
	Get(id string) (*session.Session, error)
	Delete(id string) error
	DefaultMode() router.PrivacyMode
}

// CreateSessionRequest is the body of POST /api/v1/sessions
type CreateSessionRequest struct {
	PrivacyMode string `json:"privacy_mode,omitempty" validate:"omitempty,privacy_mode"`
}

// UpdatePrivacyRequest is the body of PUT /api/v1/sessions/{id}/privacy
type UpdatePrivacyRequest struct {
	PrivacyMode string `json:"privacy_mode" validate:"required,privacy_mode"`
}

// ChatRequest is the body of POST /api/v1/sessions/{id}/chat
type ChatRequest struct {
	Text        string `json:"text" validate:"max=32000"`
	ImageBase64 string `json:"image_base64,omitempty"`
}

// SessionHandler handles session and chat HTTP requests
type SessionHandler struct {
	sessions SessionStore
	chat     ChatService
	logger   *zap.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessions SessionStore, chat ChatService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		chat:     chat,
		logger:   logger,
	}
}

// HandleCreate handles POST /api/v1/sessions
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decodeBody(w, r, &req, true, h.logger) {
		return
	}

	mode := h.sessions.DefaultMode()
	if req.PrivacyMode != "" {
		mode = privacyMode(req.PrivacyMode)
	}

	sess := h.sessions.Create(mode)
	h.logger.Info("session created",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("session_id", sess.ID.String()),
		zap.String("privacy_mode", string(mode)))

	if err := utils.WriteCreated(w, sess.Info()); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleGet handles GET /api/v1/sessions/{id}
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, sess.Info()); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleDelete handles DELETE /api/v1/sessions/{id}
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleUpdatePrivacy handles PUT /api/v1/sessions/{id}/privacy
func (h *SessionHandler) HandleUpdatePrivacy(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	var req UpdatePrivacyRequest
	if !decodeBody(w, r, &req, false, h.logger) {
		return
	}

	mode := privacyMode(req.PrivacyMode)
	sess.SetPrivacyMode(mode)
	h.logger.Info("session privacy mode changed",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("session_id", sess.ID.String()),
		zap.String("privacy_mode", string(mode)))

	if err := utils.WriteOK(w, sess.Info()); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleChat handles POST /api/v1/sessions/{id}/chat
func (h *SessionHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	sess, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	var req ChatRequest
	if !decodeBody(w, r, &req, false, h.logger) {
		return
	}

	result, err := h.chat.Turn(ctx, sess, req.Text, req.ImageBase64)
	if err != nil {
		h.logger.Warn("chat turn failed",
			zap.String("request_id", requestID),
			zap.String("session_id", sess.ID.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, result); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// privacyMode canonicalizes a value that already passed the privacy_mode
// validator. Empty input stays empty.
func privacyMode(s string) router.PrivacyMode {
	mode, err := router.ParsePrivacyMode(s)
	if err != nil {
		return ""
	}
	return mode
}

// decodeBody parses and validates a JSON body. It writes the error response
// itself and reports whether the handler should continue.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool, logger *zap.Logger) bool {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !(allowEmpty && errors.Is(err, io.EOF)) {
		logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return false
	}

	if err := utils.ValidateStruct(dst); err != nil {
		logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, logger)
		return false
	}
	return true
}
