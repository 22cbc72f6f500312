package orchestrator

import (
	"context"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
)

// RequestSpecialist asks the backend for a human specialist over the
// transport and moves the conversation to Connecting.
func (o *Orchestrator) RequestSpecialist(ctx context.Context, st *ConversationState) []domain.Message {
	switch st.LiveStage() {
	case LiveRelay:
		return []domain.Message{domain.BotText(MsgAlreadyLive)}
	case LiveConnecting:
		return []domain.Message{domain.BotText(MsgConnecting)}
	}

	if !o.available(o.now()) {
		return []domain.Message{domain.BotText(MsgLiveUnavailable)}
	}

	tr := st.currentTransport()
	sessionID := st.SessionID()
	if tr == nil || sessionID == "" {
		o.logger.Warn("specialist requested without transport", "kind", KindTransport, "user_id", st.UserID())
		return []domain.Message{domain.BotText(MsgConnectError)}
	}

	req := domain.NewText(domain.SenderUser, domain.HumanAssistanceText)
	if err := tr.Send(ctx, domain.Frame{SessionID: sessionID, Message: &req}); err != nil {
		o.logger.Warn("failed to request specialist", "kind", KindTransport, "session_id", sessionID, "error", err)
		return []domain.Message{domain.BotText(MsgConnectError)}
	}

	st.setLive(LiveConnecting)
	o.logger.Info("specialist requested", "session_id", sessionID)
	return []domain.Message{domain.BotText(MsgConnecting)}
}

// HandleFrame applies one inbound transport frame to the state and returns
// the messages it appended. A frame may carry a message, an error and an
// assignment together.
func (o *Orchestrator) HandleFrame(st *ConversationState, frame domain.Frame) []domain.Message {
	var out []domain.Message

	if frame.Message != nil {
		msg := *frame.Message
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now().UTC()
		}
		out = append(out, msg)
	}
	if frame.Error != "" {
		out = append(out, domain.BotText(frame.Error))
	}
	if frame.AgentAssigned && st.markAnnounced() {
		st.setLive(LiveRelay)
		out = append(out, domain.BotText(MsgConnected))
		o.logger.Info("specialist assigned", "session_id", st.SessionID())
	}

	if len(out) > 0 {
		st.append(out...)
	}

	// Any bot reply or error to a pending request means no specialist was
	// assigned; a new request may be sent.
	refused := frame.Error != "" || (frame.Message != nil && frame.Message.Sender == domain.SenderBot)
	if !frame.AgentAssigned && refused && st.abandonConnecting() {
		o.logger.Info("specialist request refused", "kind", KindTransport, "session_id", st.SessionID())
	}

	if frame.Message != nil && frame.Message.Text == domain.EndOfChatMarker {
		sessionID := st.SessionID()
		st.endLive()
		o.logger.Info("live chat ended", "session_id", sessionID)
	}
	return out
}

// TransportLost handles an unexpected close of the live-chat channel. A
// pending specialist request is abandoned and reported.
func (o *Orchestrator) TransportLost(st *ConversationState) (reply Reply) {
	if st.abandonConnecting() {
		o.logger.Warn("live-chat channel lost while connecting", "kind", KindTransport, "session_id", st.SessionID())
		o.emit(st, &reply, domain.BotText(MsgConnectError))
	}
	return reply
}

// relay forwards user text verbatim to the specialist.
func (o *Orchestrator) relay(ctx context.Context, st *ConversationState, user domain.Message) []domain.Message {
	tr := st.currentTransport()
	sessionID := st.SessionID()
	if tr == nil || sessionID == "" {
		return []domain.Message{domain.BotText(MsgNotConnected)}
	}
	if err := tr.Send(ctx, domain.Frame{SessionID: sessionID, Message: &user}); err != nil {
		o.logger.Warn("relay failed", "kind", KindTransport, "session_id", sessionID, "error", err)
		return []domain.Message{domain.BotText(MsgRelayError)}
	}
	return nil
}
