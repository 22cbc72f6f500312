// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
)

// ErrNotFound is returned when a session or widget document does not exist.
var ErrNotFound = errors.New("not found")

// Repository defines the backend's persistence for the agent registry, chat
// sessions, human agents and widget settings.
type Repository interface {
	// UpsertAgent creates or replaces the agent for (websiteId, intent).
	// Registration order is preserved across updates.
	UpsertAgent(ctx context.Context, agent domain.Agent) error

	// ListAgents returns a website's agents in registration order, optionally
	// filtered by intent.
	ListAgents(ctx context.Context, websiteID, intent string) ([]domain.Agent, error)

	// UpsertChain creates or replaces a chain by chainId.
	UpsertChain(ctx context.Context, chain domain.Chain) error

	// ListChains returns a website's chains in registration order.
	ListChains(ctx context.Context, websiteID string) ([]domain.Chain, error)

	// CreateSession inserts a chat session.
	CreateSession(ctx context.Context, session *domain.ChatSession) error

	// GetSession retrieves a session by id.
	GetSession(ctx context.Context, sessionID string) (*domain.ChatSession, error)

	// ListSessions returns the sessions assigned to agentID for clientID.
	ListSessions(ctx context.Context, agentID, clientID string) ([]*domain.ChatSession, error)

	// AppendMessage pushes a message onto a session transcript.
	AppendMessage(ctx context.Context, sessionID string, msg domain.Message) error

	// AssignSession binds a specialist and marks the session active.
	AssignSession(ctx context.Context, sessionID, agentID string) error

	// CloseSession marks a session closed and clears its specialist.
	CloseSession(ctx context.Context, sessionID string) error

	// IdleSessions returns open sessions not updated since before.
	IdleSessions(ctx context.Context, before time.Time) ([]*domain.ChatSession, error)

	// UpsertHumanAgent creates or replaces a specialist.
	UpsertHumanAgent(ctx context.Context, agent domain.HumanAgent) error

	// ListHumanAgents returns a website's specialists, optionally filtered by agentID.
	ListHumanAgents(ctx context.Context, websiteID, agentID string) ([]domain.HumanAgent, error)

	// SetHumanAgentStatus updates status and lastActive for agentID.
	SetHumanAgentStatus(ctx context.Context, agentID, status string, at time.Time) error

	// AvailableHumanAgents returns a website's online specialists in
	// registration order.
	AvailableHumanAgents(ctx context.Context, websiteID string) ([]domain.HumanAgent, error)

	// GetWidget retrieves the widget document for clientID.
	GetWidget(ctx context.Context, clientID string) (*domain.WidgetDocument, error)

	// PutWidget creates or replaces a widget document.
	PutWidget(ctx context.Context, doc domain.WidgetDocument) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
