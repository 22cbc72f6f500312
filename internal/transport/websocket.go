// Package transport provides the client side of the live-chat backend: the
// WebSocket channels for customers and specialists and the REST client for
// the session lifecycle.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/orchestrator"
)

// Conn is a live-chat WebSocket channel carrying JSON frames.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger
}

// Send writes one frame.
func (c *Conn) Send(ctx context.Context, frame domain.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		if websocket.CloseStatus(err) != -1 {
			return orchestrator.ErrTransportClosed
		}
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Receive blocks until the next well-formed frame arrives. Malformed frames
// are skipped. A closed channel yields orchestrator.ErrTransportClosed.
func (c *Conn) Receive(ctx context.Context) (domain.Frame, error) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				return domain.Frame{}, orchestrator.ErrTransportClosed
			}
			return domain.Frame{}, fmt.Errorf("read frame: %w", err)
		}

		var frame domain.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Debug("dropping malformed frame", "error", err)
			continue
		}
		return frame, nil
	}
}

// Close closes the channel with a normal closure.
func (c *Conn) Close() error {
	err := c.ws.Close(websocket.StatusNormalClosure, "session ended")
	if err == nil || websocket.CloseStatus(err) != -1 || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// ChatDialer opens the customer channel /ws/chat/{clientId}/{userId}.
type ChatDialer struct {
	BaseURL  string
	ClientID string
	UserID   string
	Logger   *slog.Logger
}

// Dial connects the customer channel.
func (d *ChatDialer) Dial(ctx context.Context) (orchestrator.Conn, error) {
	conn, err := dial(ctx, d.BaseURL, d.Logger, "ws", "chat", d.ClientID, d.UserID)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// SpecialistDialer opens the specialist channel /ws/agent/{agentId}.
type SpecialistDialer struct {
	BaseURL string
	AgentID string
	Logger  *slog.Logger
}

// Dial connects the specialist channel.
func (d *SpecialistDialer) Dial(ctx context.Context) (*Conn, error) {
	return dial(ctx, d.BaseURL, d.Logger, "ws", "agent", d.AgentID)
}

func dial(ctx context.Context, base string, logger *slog.Logger, segments ...string) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	u, err := channelURL(base, segments...)
	if err != nil {
		return nil, err
	}
	ws, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	logger.Debug("live-chat channel opened", "url", u)
	return &Conn{ws: ws, logger: logger}, nil
}

// channelURL joins escaped path segments onto base, mapping http(s) to ws(s).
func channelURL(base string, segments ...string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse websocket url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported websocket scheme %q", u.Scheme)
	}
	escaped := make([]string, len(segments))
	for i, s := range segments {
		if s == "" {
			return "", errors.New("empty websocket path segment")
		}
		escaped[i] = url.PathEscape(s)
	}
	return u.JoinPath(escaped...).String(), nil
}
