package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chatpush/notifier/internal/infrastructure/messaging"
	"github.com/chatpush/notifier/internal/interface/http/handlers"
	"github.com/chatpush/notifier/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports 503 when a critical check fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		handlers.WriteJSON(w, http.StatusOK, map[string]any{
			"healthy": true,
			"uptime":  s.Uptime().String(),
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	handlers.WriteJSON(w, code, status)
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	handlers.WriteJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// TRIGGER HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// triggerAccepted is the body of a 202 response.
type triggerAccepted struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}

// handleTrigger handles POST /v1/triggers/chats/{chatID}/messages/{messageID}.
// The body is the new message document. Processing is asynchronous.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	req, err := handlers.ParseTriggerRequest(chi.URLParam(r, "chatID"), chi.URLParam(r, "messageID"), r.Body)
	if err != nil {
		var verr *handlers.ValidationError
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &verr):
			handlers.WriteErrorWithDetails(w, http.StatusBadRequest, "invalid_request", err.Error(), verr.Fields)
		case errors.As(err, &maxErr):
			handlers.WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
		default:
			handlers.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		}
		return
	}

	requestID := middleware.GetReqID(r.Context())
	if err := s.deps.Publisher.Publish(req.Event(requestID)); err != nil {
		s.logger.Error("failed to publish trigger",
			logger.ChatID(req.ChatID), logger.MessageID(req.MessageID), logger.Err(err))
		if errors.Is(err, messaging.ErrEventBusClosed) {
			handlers.WriteError(w, http.StatusServiceUnavailable, "shutting_down", "Service is shutting down")
			return
		}
		handlers.WriteError(w, http.StatusInternalServerError, "publish_failed", "Trigger could not be queued")
		return
	}

	s.logger.Debug("trigger accepted",
		logger.ChatID(req.ChatID), logger.MessageID(req.MessageID), slog.String("request_id", requestID))
	handlers.WriteJSON(w, http.StatusAccepted, triggerAccepted{ChatID: req.ChatID, MessageID: req.MessageID})
}
