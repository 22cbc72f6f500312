// Package chatlog records conversation events as NDJSON files and, optionally,
// publishes them to an AMQP queue.
package chatlog

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
)

// Event is one conversation log record.
type Event struct {
	Timestamp  time.Time `json:"ts"`
	UserID     string    `json:"user_id"`
	SessionID  string    `json:"session_id"`
	ClientID   string    `json:"client_id,omitempty"`
	AgentID    string    `json:"agent_id,omitempty"`
	Channel    string    `json:"channel"`
	Direction  string    `json:"direction"`
	EventType  string    `json:"event_type"`
	Sender     string    `json:"sender,omitempty"`
	Content    string    `json:"content,omitempty"`
	ContentRaw string    `json:"content_raw,omitempty"`
}

// Channels and directions used by the event producers.
const (
	ChannelWidget   = "widget"
	ChannelLiveChat = "live_chat"

	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
	DirectionInternal = "internal"
)

// Logger accepts events without blocking the caller.
type Logger interface {
	Log(event Event)
	Close() error
}

// Config controls conversation logging.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

type nopLogger struct{}

func (nopLogger) Log(Event)    {}
func (nopLogger) Close() error { return nil }

// Nop returns a Logger that discards everything.
func Nop() Logger { return nopLogger{} }

type multiLogger []Logger

func (m multiLogger) Log(event Event) {
	for _, l := range m {
		l.Log(event)
	}
}

func (m multiLogger) Close() error {
	var errs []error
	for _, l := range m {
		errs = append(errs, l.Close())
	}
	return errors.Join(errs...)
}

// Multi fans events out to every non-nil logger.
func Multi(loggers ...Logger) Logger {
	out := make(multiLogger, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			out = append(out, l)
		}
	}
	switch len(out) {
	case 0:
		return Nop()
	case 1:
		return out[0]
	}
	return out
}

var (
	ansiPattern  = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	tagPattern   = regexp.MustCompile(`<[^>]+>`)
	spacePattern = regexp.MustCompile(`[ \t]+`)
)

// cleanForReadability strips terminal escapes and markup from message text.
func cleanForReadability(raw string) string {
	s := ansiPattern.ReplaceAllString(raw, "")
	s = tagPattern.ReplaceAllString(s, "")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// MessageEvent builds an event from a transcript message.
func MessageEvent(channel, direction, eventType, userID, sessionID string, msg domain.Message) Event {
	ts := msg.Timestamp.UTC()
	if msg.Timestamp.IsZero() {
		ts = time.Now().UTC()
	}
	return Event{
		Timestamp:  ts,
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    channel,
		Direction:  direction,
		EventType:  eventType,
		Sender:     string(msg.Sender),
		ContentRaw: messageContent(msg),
	}
}

// messageContent renders the text of any payload variant.
func messageContent(msg domain.Message) string {
	switch {
	case msg.Text != "":
		return msg.Text
	case msg.Result != "":
		return msg.Result
	}
	return "[" + string(msg.Kind()) + "]"
}

// HubSink adapts a Logger to the live-chat hub's event callback.
type HubSink struct {
	Logger Logger
}

// LogHubEvent records a hub event for the session's user.
func (s HubSink) LogHubEvent(event string, session *domain.ChatSession, msg *domain.Message) {
	if s.Logger == nil || session == nil {
		return
	}
	e := Event{
		Timestamp: time.Now().UTC(),
		EventType: event,
		Direction: DirectionInternal,
	}
	if msg != nil {
		e = MessageEvent(ChannelLiveChat, DirectionInbound, event, "", "", *msg)
		if msg.Sender == domain.SenderAgent {
			e.Direction = DirectionOutbound
		}
	}
	e.Channel = ChannelLiveChat
	e.UserID = session.UserID
	e.SessionID = session.SessionID
	e.ClientID = session.ClientID
	e.AgentID = session.AgentID
	s.Logger.Log(e)
}
