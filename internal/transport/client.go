package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/orchestrator"
)

// StatusError is a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the backend's session, human-agent and widget endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

var _ orchestrator.SessionAPI = (*Client)(nil)

// CreateSession registers a chat session and returns its id.
func (c *Client) CreateSession(ctx context.Context, session domain.ChatSession) (string, error) {
	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.do(ctx, http.MethodPost, "/chat/session", nil, session, &out); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if out.SessionID == "" {
		return session.SessionID, nil
	}
	return out.SessionID, nil
}

// CloseSession ends a chat session. An unknown id yields
// orchestrator.ErrSessionNotFound.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	body := map[string]string{"session_id": sessionID}
	if err := c.do(ctx, http.MethodPost, "/chat/session/close", nil, body, nil); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return orchestrator.ErrSessionNotFound
		}
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// ListSessions returns the sessions assigned to a specialist.
func (c *Client) ListSessions(ctx context.Context, agentID, clientID string) ([]domain.ChatSession, error) {
	var out struct {
		Sessions []domain.ChatSession `json:"sessions"`
	}
	q := url.Values{"agentId": {agentID}, "clientId": {clientID}}
	if err := c.do(ctx, http.MethodGet, "/chat/session", q, nil, &out); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out.Sessions, nil
}

// RegisterHumanAgent upserts a specialist.
func (c *Client) RegisterHumanAgent(ctx context.Context, agent domain.HumanAgent) error {
	if err := c.do(ctx, http.MethodPost, "/human-agents", nil, agent, nil); err != nil {
		return fmt.Errorf("register human agent: %w", err)
	}
	return nil
}

// SetHumanAgentStatus marks a specialist online or offline.
func (c *Client) SetHumanAgentStatus(ctx context.Context, agentID, status string) error {
	body := map[string]string{"agentId": agentID, "status": status}
	if err := c.do(ctx, http.MethodPost, "/human-agents/status", nil, body, nil); err != nil {
		return fmt.Errorf("set human agent status: %w", err)
	}
	return nil
}

// HumanAgents lists a website's specialists, optionally filtered by agentID.
func (c *Client) HumanAgents(ctx context.Context, websiteID, agentID string) ([]domain.HumanAgent, error) {
	var out struct {
		Agents []domain.HumanAgent `json:"agents"`
	}
	q := url.Values{"websiteId": {websiteID}}
	if agentID != "" {
		q.Set("agentId", agentID)
	}
	if err := c.do(ctx, http.MethodGet, "/human-agents", q, nil, &out); err != nil {
		return nil, fmt.Errorf("list human agents: %w", err)
	}
	return out.Agents, nil
}

// WidgetSettings fetches the widget customization for clientID.
func (c *Client) WidgetSettings(ctx context.Context, clientID string) (domain.WidgetSettings, error) {
	var doc domain.WidgetDocument
	if err := c.do(ctx, http.MethodGet, "/widget/"+url.PathEscape(clientID), nil, nil, &doc); err != nil {
		return domain.WidgetSettings{}, fmt.Errorf("fetch widget settings: %w", err)
	}
	return doc.WidgetSettings, nil
}

// UpdateWidgetSettings replaces the widget customization for clientID.
func (c *Client) UpdateWidgetSettings(ctx context.Context, clientID string, settings domain.WidgetSettings) error {
	if err := c.do(ctx, http.MethodPost, "/widget/"+url.PathEscape(clientID), nil, settings, nil); err != nil {
		return fmt.Errorf("update widget settings: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Message: errorText(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorText extracts {"error": ...} or {"detail": ...} from an error body.
func errorText(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Detail != "" {
			return body.Detail
		}
	}
	return strings.TrimSpace(string(raw))
}
