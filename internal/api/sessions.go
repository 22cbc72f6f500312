package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/shared"
	"github.com/ashureev/agentdesk/internal/store"
)

// CreateSession handles POST /chat/session. A body without sessionId gets a
// generated one.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var session domain.ChatSession
	if !decode(w, r, &session) {
		return
	}
	if session.ClientID == "" || session.UserID == "" {
		Error(w, http.StatusBadRequest, "clientId and userId are required")
		return
	}
	if session.SessionID == "" {
		session.SessionID = "session_" + uuid.NewString()
	}
	if err := h.repo.CreateSession(r.Context(), &session); err != nil {
		if shared.IsSQLiteConstraintError(err) {
			Error(w, http.StatusConflict, "session already exists")
			return
		}
		slog.Error("Failed to create session", "error", err, "session_id", session.SessionID)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	slog.Info("Session created", "session_id", session.SessionID, "client_id", session.ClientID, "user_id", session.UserID)
	JSON(w, http.StatusOK, map[string]string{"sessionId": session.SessionID})
}

// ListSessions handles GET /chat/session?agentId=&clientId=.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	q, ok := requireQuery(w, r, "agentId", "clientId")
	if !ok {
		return
	}
	sessions, err := h.repo.ListSessions(r.Context(), q["agentId"], q["clientId"])
	if err != nil {
		slog.Error("Failed to list sessions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

type closeSessionRequest struct {
	SessionID string `json:"session_id"`
}

// CloseSession handles POST /chat/session/close.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	var req closeSessionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if err := h.closer.CloseSession(r.Context(), req.SessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "Session not found")
			return
		}
		slog.Error("Failed to close session", "error", err, "session_id", req.SessionID)
		Error(w, http.StatusInternalServerError, "failed to close session")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"message": "Session closed"})
}
