package livechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/store"
)

// Texts sent by the hub.
const (
	ErrInvalidFrame      = "Invalid message format: sessionId and message required"
	ErrUnknownSession    = "Session not found"
	ErrUserNotConnected  = "User not connected"
	ErrNotAssigned       = "Session is not assigned to you"
	MsgNoSpecialists     = "No specialists available. Please try again later."
	MsgSpecialistOffline = "Specialist is unavailable."
	MsgAssistanceRequest = "User requested assistance"
)

// EventSink receives hub events for the conversation log.
type EventSink interface {
	LogHubEvent(event string, session *domain.ChatSession, msg *domain.Message)
}

// Hub relays frames between customers on /ws/chat/{clientId}/{userId} and
// specialists on /ws/agent/{agentId}, persisting every message.
type Hub struct {
	repo          store.Repository
	conns         *ConnManager
	sink          EventSink
	allowedOrigin string
	isDev         bool
	now           func() time.Time
}

// NewHub creates a Hub.
func NewHub(repo store.Repository, conns *ConnManager, allowedOrigin string, isDev bool) *Hub {
	if conns == nil {
		conns = NewConnManager()
	}
	return &Hub{
		repo:          repo,
		conns:         conns,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetEventSink attaches a conversation log.
func (h *Hub) SetEventSink(sink EventSink) {
	h.sink = sink
}

// Conns returns the socket registry.
func (h *Hub) Conns() *ConnManager {
	return h.conns
}

func (h *Hub) logEvent(event string, session *domain.ChatSession, msg *domain.Message) {
	if h.sink != nil {
		h.sink.LogHubEvent(event, session, msg)
	}
}

// ServeCustomer handles the customer socket.
func (h *Hub) ServeCustomer(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")
	userID := chi.URLParam(r, "userId")
	slog.Info("Customer connection request", "client_id", clientID, "user_id", userID, "ip", r.RemoteAddr)

	ws, ok := h.accept(w, r)
	if !ok {
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.conns.RegisterCustomer(clientID, userID, ws)
	defer h.conns.UnregisterCustomer(clientID, userID, ws)

	ctx := r.Context()
	for {
		frame, err := readFrame(ctx, ws)
		if err != nil {
			logReadError(err, "user_id", userID)
			return
		}
		if frame == nil {
			h.writeFrame(ws, domain.Frame{Error: ErrInvalidFrame})
			continue
		}
		h.handleCustomerFrame(ctx, ws, clientID, userID, *frame)
	}
}

func (h *Hub) handleCustomerFrame(ctx context.Context, ws *websocket.Conn, clientID, userID string, frame domain.Frame) {
	session, err := h.repo.GetSession(ctx, frame.SessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("Failed to load session", "error", err, "session_id", frame.SessionID)
		}
		h.writeFrame(ws, domain.Frame{Error: ErrUnknownSession})
		return
	}
	// Another customer's session is reported as missing.
	if session.ClientID != clientID || session.UserID != userID {
		slog.Warn("Customer frame for foreign session", "session_id", session.SessionID, "user_id", userID)
		h.writeFrame(ws, domain.Frame{Error: ErrUnknownSession})
		return
	}

	msg := h.stamp(*frame.Message, domain.SenderUser)
	if err := h.repo.AppendMessage(ctx, session.SessionID, msg); err != nil {
		slog.Warn("Failed to save customer message", "error", err, "session_id", session.SessionID)
	}
	h.logEvent("customer_message", session, &msg)

	if msg.Text == domain.HumanAssistanceText {
		h.assign(ctx, ws, clientID, session)
		return
	}

	if session.AgentID == "" {
		return
	}
	agentWS := h.conns.Specialist(session.AgentID)
	if agentWS == nil {
		h.writeFrame(ws, domain.Frame{Message: ptr(h.bot(MsgSpecialistOffline))})
		return
	}
	if err := h.send(agentWS, domain.Frame{SessionID: session.SessionID, Message: &msg}); err != nil {
		slog.Warn("Failed to forward to specialist", "error", err, "agent_id", session.AgentID)
		h.writeFrame(ws, domain.Frame{Message: ptr(h.bot(MsgSpecialistOffline))})
	}
}

// assign routes the session to the website's first online specialist.
func (h *Hub) assign(ctx context.Context, ws *websocket.Conn, clientID string, session *domain.ChatSession) {
	agents, err := h.repo.AvailableHumanAgents(ctx, clientID)
	if err != nil {
		slog.Error("Failed to list available specialists", "error", err, "client_id", clientID)
	}
	if len(agents) == 0 {
		slog.Info("No specialist available", "client_id", clientID, "session_id", session.SessionID)
		h.writeFrame(ws, domain.Frame{Message: ptr(h.bot(MsgNoSpecialists))})
		return
	}

	agent := agents[0]
	if err := h.repo.AssignSession(ctx, session.SessionID, agent.AgentID); err != nil {
		slog.Error("Failed to assign session", "error", err, "session_id", session.SessionID)
		h.writeFrame(ws, domain.Frame{Message: ptr(h.bot(MsgNoSpecialists))})
		return
	}
	session.AgentID = agent.AgentID
	session.Status = domain.SessionActive
	slog.Info("Session assigned", "session_id", session.SessionID, "agent_id", agent.AgentID)
	h.logEvent("assigned", session, nil)

	h.writeFrame(ws, domain.Frame{AgentAssigned: true})

	if agentWS := h.conns.Specialist(agent.AgentID); agentWS != nil {
		notice := h.stamp(domain.NewText(domain.SenderUser, MsgAssistanceRequest), domain.SenderUser)
		if err := h.send(agentWS, domain.Frame{SessionID: session.SessionID, Message: &notice}); err != nil {
			slog.Warn("Failed to notify specialist", "error", err, "agent_id", agent.AgentID)
		}
	}
}

// ServeSpecialist handles the specialist socket. When the socket drops the
// specialist is marked offline.
func (h *Hub) ServeSpecialist(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	slog.Info("Specialist connection request", "agent_id", agentID, "ip", r.RemoteAddr)

	ws, ok := h.accept(w, r)
	if !ok {
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "agent_id", agentID)
		}
	}()

	h.conns.RegisterSpecialist(agentID, ws)
	defer func() {
		if !h.conns.UnregisterSpecialist(agentID, ws) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.repo.SetHumanAgentStatus(ctx, agentID, domain.AgentOffline, h.now()); err != nil {
			slog.Warn("Failed to mark specialist offline", "error", err, "agent_id", agentID)
		}
	}()

	ctx := r.Context()
	for {
		frame, err := readFrame(ctx, ws)
		if err != nil {
			logReadError(err, "agent_id", agentID)
			return
		}
		if frame == nil {
			h.writeFrame(ws, domain.Frame{Error: ErrInvalidFrame})
			continue
		}
		h.handleSpecialistFrame(ctx, ws, agentID, *frame)
	}
}

func (h *Hub) handleSpecialistFrame(ctx context.Context, ws *websocket.Conn, agentID string, frame domain.Frame) {
	session, err := h.repo.GetSession(ctx, frame.SessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("Failed to load session", "error", err, "session_id", frame.SessionID)
		}
		h.writeFrame(ws, domain.Frame{Error: ErrUnknownSession})
		return
	}
	if session.AgentID != agentID {
		slog.Warn("Specialist frame for unassigned session", "session_id", session.SessionID, "agent_id", agentID)
		h.writeFrame(ws, domain.Frame{Error: ErrNotAssigned})
		return
	}

	msg := h.stamp(*frame.Message, domain.SenderAgent)
	if err := h.repo.AppendMessage(ctx, session.SessionID, msg); err != nil {
		slog.Warn("Failed to save specialist message", "error", err, "session_id", session.SessionID)
	}
	h.logEvent("specialist_message", session, &msg)

	userWS := h.conns.Customer(session.ClientID, session.UserID)
	if userWS == nil || h.send(userWS, domain.Frame{Message: &msg}) != nil {
		h.writeFrame(ws, domain.Frame{Error: ErrUserNotConnected})
	}
}

// CloseSession closes a session and tells the customer the live chat ended.
// An unknown id yields store.ErrNotFound.
func (h *Hub) CloseSession(ctx context.Context, sessionID string) error {
	session, err := h.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := h.repo.CloseSession(ctx, sessionID); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	slog.Info("Session closed", "session_id", sessionID, "agent_id", session.AgentID)
	h.logEvent("closed", session, nil)

	if userWS := h.conns.Customer(session.ClientID, session.UserID); userWS != nil {
		h.writeFrame(userWS, domain.Frame{Message: ptr(h.bot(domain.EndOfChatMarker))})
	}
	return nil
}

func (h *Hub) accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, bool) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return nil, false
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return nil, false
	}
	return ws, true
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Hub) stamp(msg domain.Message, sender domain.Sender) domain.Message {
	if msg.Sender == "" {
		msg.Sender = sender
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = h.now()
	}
	return msg
}

func (h *Hub) bot(text string) domain.Message {
	return domain.Message{Sender: domain.SenderBot, Text: text, Timestamp: h.now()}
}

func (h *Hub) send(ws *websocket.Conn, frame domain.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}

func (h *Hub) writeFrame(ws *websocket.Conn, frame domain.Frame) {
	if err := h.send(ws, frame); err != nil {
		slog.Debug("Failed to write frame", "error", err)
	}
}

// readFrame reads one frame. A nil frame with a nil error means the payload
// lacked sessionId or message.
func readFrame(ctx context.Context, ws *websocket.Conn) (*domain.Frame, error) {
	_, data, err := ws.Read(ctx)
	if err != nil {
		return nil, err
	}
	var frame domain.Frame
	if err := json.Unmarshal(data, &frame); err != nil || frame.SessionID == "" || frame.Message == nil {
		return nil, nil
	}
	return &frame, nil
}

func logReadError(err error, args ...any) {
	if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
		slog.Debug("WebSocket closed by peer", args...)
		return
	}
	slog.Warn("WebSocket read error", append([]any{"error", err}, args...)...)
}

func ptr[T any](v T) *T {
	return &v
}
