package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/shared"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS agents (
		website_id TEXT NOT NULL,
		intent TEXT NOT NULL,
		features_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (website_id, intent)
	);

	CREATE TABLE IF NOT EXISTS chains (
		chain_id TEXT PRIMARY KEY,
		website_id TEXT NOT NULL,
		name TEXT NOT NULL,
		sequence_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chains_website ON chains(website_id);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		session_id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		agent_id TEXT,
		status TEXT NOT NULL,
		messages_json TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_agent ON chat_sessions(agent_id, client_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON chat_sessions(updated_at) WHERE status != 'closed';

	CREATE TABLE IF NOT EXISTS human_agents (
		website_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		status TEXT NOT NULL,
		last_active INTEGER,
		PRIMARY KEY (website_id, agent_id)
	);
	CREATE INDEX IF NOT EXISTS idx_human_agents_agent ON human_agents(agent_id);

	CREATE TABLE IF NOT EXISTS widget_settings (
		client_id TEXT PRIMARY KEY,
		settings_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertAgent creates or replaces an agent. The row keeps its rowid on
// update, so registration order survives.
func (s *SQLiteStore) UpsertAgent(ctx context.Context, agent domain.Agent) error {
	features, err := json.Marshal(agent.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	now := time.Now().Unix()
	query := `
	INSERT INTO agents (website_id, intent, features_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(website_id, intent) DO UPDATE SET
		features_json = excluded.features_json,
		updated_at = excluded.updated_at`

	return shared.RetryOnConflict(ctx, "upsert agent", func() error {
		_, err := s.db.ExecContext(ctx, query, agent.WebsiteID, agent.Intent, string(features), now, now)
		return err
	})
}

// ListAgents returns agents in registration order.
func (s *SQLiteStore) ListAgents(ctx context.Context, websiteID, intent string) ([]domain.Agent, error) {
	query := `SELECT website_id, intent, features_json FROM agents WHERE website_id = ?`
	args := []any{websiteID}
	if intent != "" {
		query += ` AND intent = ?`
		args = append(args, intent)
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	agents := []domain.Agent{}
	for rows.Next() {
		var a domain.Agent
		var features string
		if err := rows.Scan(&a.WebsiteID, &a.Intent, &features); err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		if err := json.Unmarshal([]byte(features), &a.Features); err != nil {
			return nil, fmt.Errorf("decode features of %s: %w", a.Intent, err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// UpsertChain creates or replaces a chain by chainId.
func (s *SQLiteStore) UpsertChain(ctx context.Context, chain domain.Chain) error {
	seq, err := json.Marshal(chain.AgentSequence)
	if err != nil {
		return fmt.Errorf("encode agent sequence: %w", err)
	}
	now := time.Now().Unix()
	query := `
	INSERT INTO chains (chain_id, website_id, name, sequence_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(chain_id) DO UPDATE SET
		website_id = excluded.website_id,
		name = excluded.name,
		sequence_json = excluded.sequence_json,
		updated_at = excluded.updated_at`

	return shared.RetryOnConflict(ctx, "upsert chain", func() error {
		_, err := s.db.ExecContext(ctx, query, chain.ChainID, chain.WebsiteID, chain.Name, string(seq), now, now)
		return err
	})
}

// ListChains returns chains in registration order.
func (s *SQLiteStore) ListChains(ctx context.Context, websiteID string) ([]domain.Chain, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chain_id, website_id, name, sequence_json FROM chains WHERE website_id = ? ORDER BY rowid`, websiteID)
	if err != nil {
		return nil, fmt.Errorf("query chains: %w", err)
	}
	defer rows.Close()

	chains := []domain.Chain{}
	for rows.Next() {
		var c domain.Chain
		var seq string
		if err := rows.Scan(&c.ChainID, &c.WebsiteID, &c.Name, &seq); err != nil {
			return nil, fmt.Errorf("scan chain row: %w", err)
		}
		if err := json.Unmarshal([]byte(seq), &c.AgentSequence); err != nil {
			return nil, fmt.Errorf("decode sequence of %s: %w", c.ChainID, err)
		}
		chains = append(chains, c)
	}
	return chains, rows.Err()
}

// CreateSession inserts a chat session, stamping created/updated times.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	now := time.Now().UTC()
	session.CreatedAt, session.UpdatedAt = now, now
	if session.Status == "" {
		session.Status = domain.SessionPending
	}
	if session.Messages == nil {
		session.Messages = []domain.Message{}
	}
	msgs, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	query := `
	INSERT INTO chat_sessions (session_id, client_id, user_id, agent_id, status, messages_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	return shared.RetryOnConflict(ctx, "create session", func() error {
		_, err := s.db.ExecContext(ctx, query,
			session.SessionID, session.ClientID, session.UserID, nullString(session.AgentID),
			string(session.Status), string(msgs), now.UnixMilli(), now.UnixMilli())
		return err
	})
}

const sessionColumns = `session_id, client_id, user_id, agent_id, status, messages_json, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.ChatSession, error) {
	var sess domain.ChatSession
	var agentID sql.NullString
	var status, msgs string
	var createdAt, updatedAt int64
	if err := row.Scan(&sess.SessionID, &sess.ClientID, &sess.UserID, &agentID, &status, &msgs, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sess.AgentID = agentID.String
	sess.Status = domain.SessionStatus(status)
	sess.CreatedAt = time.UnixMilli(createdAt).UTC()
	sess.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if err := json.Unmarshal([]byte(msgs), &sess.Messages); err != nil {
		return nil, fmt.Errorf("decode messages of %s: %w", sess.SessionID, err)
	}
	return &sess, nil
}

// GetSession retrieves a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE session_id = ?`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) querySessions(ctx context.Context, query string, args ...any) ([]*domain.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*domain.ChatSession{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// ListSessions returns the sessions assigned to agentID for clientID.
func (s *SQLiteStore) ListSessions(ctx context.Context, agentID, clientID string) ([]*domain.ChatSession, error) {
	return s.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE agent_id = ? AND client_id = ? ORDER BY created_at`,
		agentID, clientID)
}

// IdleSessions returns open sessions not updated since before.
func (s *SQLiteStore) IdleSessions(ctx context.Context, before time.Time) ([]*domain.ChatSession, error) {
	return s.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE status != 'closed' AND updated_at < ?`,
		before.UnixMilli())
}

// AppendMessage pushes msg onto the session transcript.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	query := `
	UPDATE chat_sessions
	SET messages_json = json_insert(messages_json, '$[#]', json(?)), updated_at = ?
	WHERE session_id = ?`
	return s.updateSession(ctx, "append message", sessionID, query, string(data), time.Now().UnixMilli(), sessionID)
}

// AssignSession binds agentID and marks the session active.
func (s *SQLiteStore) AssignSession(ctx context.Context, sessionID, agentID string) error {
	query := `UPDATE chat_sessions SET agent_id = ?, status = ?, updated_at = ? WHERE session_id = ?`
	return s.updateSession(ctx, "assign session", sessionID, query,
		agentID, string(domain.SessionActive), time.Now().UnixMilli(), sessionID)
}

// CloseSession marks the session closed and clears its specialist.
func (s *SQLiteStore) CloseSession(ctx context.Context, sessionID string) error {
	query := `UPDATE chat_sessions SET agent_id = NULL, status = ?, updated_at = ? WHERE session_id = ?`
	return s.updateSession(ctx, "close session", sessionID, query,
		string(domain.SessionClosed), time.Now().UnixMilli(), sessionID)
}

func (s *SQLiteStore) updateSession(ctx context.Context, op, sessionID, query string, args ...any) error {
	var rows int64
	err := shared.RetryOnConflict(ctx, op, func() error {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		slog.Debug("session update affected 0 rows", "op", op, "session_id", sessionID)
		return ErrNotFound
	}
	return nil
}

// UpsertHumanAgent creates or replaces a specialist.
func (s *SQLiteStore) UpsertHumanAgent(ctx context.Context, agent domain.HumanAgent) error {
	if agent.Status == "" {
		agent.Status = domain.AgentOffline
	}
	query := `
	INSERT INTO human_agents (website_id, agent_id, name, email, status, last_active)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(website_id, agent_id) DO UPDATE SET
		name = excluded.name,
		email = excluded.email,
		status = excluded.status,
		last_active = excluded.last_active`

	var lastActive any
	if agent.LastActive != nil {
		lastActive = agent.LastActive.UnixMilli()
	}
	return shared.RetryOnConflict(ctx, "upsert human agent", func() error {
		_, err := s.db.ExecContext(ctx, query,
			agent.WebsiteID, agent.AgentID, agent.Name, agent.Email, agent.Status, lastActive)
		return err
	})
}

func (s *SQLiteStore) queryHumanAgents(ctx context.Context, query string, args ...any) ([]domain.HumanAgent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query human agents: %w", err)
	}
	defer rows.Close()

	agents := []domain.HumanAgent{}
	for rows.Next() {
		var a domain.HumanAgent
		var lastActive sql.NullInt64
		if err := rows.Scan(&a.WebsiteID, &a.AgentID, &a.Name, &a.Email, &a.Status, &lastActive); err != nil {
			return nil, fmt.Errorf("scan human agent row: %w", err)
		}
		if lastActive.Valid {
			t := time.UnixMilli(lastActive.Int64).UTC()
			a.LastActive = &t
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// ListHumanAgents returns a website's specialists.
func (s *SQLiteStore) ListHumanAgents(ctx context.Context, websiteID, agentID string) ([]domain.HumanAgent, error) {
	query := `SELECT website_id, agent_id, name, email, status, last_active FROM human_agents WHERE website_id = ?`
	args := []any{websiteID}
	if agentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, agentID)
	}
	return s.queryHumanAgents(ctx, query+` ORDER BY rowid`, args...)
}

// AvailableHumanAgents returns a website's online specialists.
func (s *SQLiteStore) AvailableHumanAgents(ctx context.Context, websiteID string) ([]domain.HumanAgent, error) {
	return s.queryHumanAgents(ctx,
		`SELECT website_id, agent_id, name, email, status, last_active FROM human_agents
		WHERE website_id = ? AND status = ? ORDER BY rowid`,
		websiteID, domain.AgentOnline)
}

// SetHumanAgentStatus updates status and lastActive for every record of agentID.
func (s *SQLiteStore) SetHumanAgentStatus(ctx context.Context, agentID, status string, at time.Time) error {
	var rows int64
	err := shared.RetryOnConflict(ctx, "set human agent status", func() error {
		result, err := s.db.ExecContext(ctx,
			`UPDATE human_agents SET status = ?, last_active = ? WHERE agent_id = ?`,
			status, at.UnixMilli(), agentID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		slog.Warn("SetHumanAgentStatus affected 0 rows", "agent_id", agentID)
	}
	return nil
}

// GetWidget retrieves the widget document for clientID.
func (s *SQLiteStore) GetWidget(ctx context.Context, clientID string) (*domain.WidgetDocument, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT settings_json FROM widget_settings WHERE client_id = ?`, clientID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan widget row: %w", err)
	}

	doc := &domain.WidgetDocument{ClientID: clientID}
	if err := json.Unmarshal([]byte(raw), &doc.WidgetSettings); err != nil {
		return nil, fmt.Errorf("decode widget settings: %w", err)
	}
	return doc, nil
}

// PutWidget creates or replaces a widget document.
func (s *SQLiteStore) PutWidget(ctx context.Context, doc domain.WidgetDocument) error {
	raw, err := json.Marshal(doc.WidgetSettings)
	if err != nil {
		return fmt.Errorf("encode widget settings: %w", err)
	}
	query := `
	INSERT INTO widget_settings (client_id, settings_json, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(client_id) DO UPDATE SET
		settings_json = excluded.settings_json,
		updated_at = excluded.updated_at`

	return shared.RetryOnConflict(ctx, "put widget", func() error {
		_, err := s.db.ExecContext(ctx, query, doc.ClientID, string(raw), time.Now().Unix())
		return err
	})
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
