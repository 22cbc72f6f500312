package convstore

import (
	"context"
	"database/sql"
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

// SQLiteStore keeps encoded snapshots in a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	codec  Codec
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens (or creates) the conversation database at dbPath.
func NewSQLite(dbPath string, codec Codec, logger *slog.Logger) (*SQLiteStore, error) {
	if codec == nil {
		codec = PlainCodec{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS conversations (
		user_id TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db, codec: codec, logger: logger}, nil
}

// Load returns the stored snapshot for userID.
func (s *SQLiteStore) Load(ctx context.Context, userID string) (Snapshot, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM conversations WHERE user_id = ?`, userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return emptySnapshot(userID), nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load conversation: %w", err)
	}

	snap, err := s.codec.Decode(payload)
	if err != nil {
		s.logger.Warn("failed to decode conversation, starting empty", "user_id", userID, "error", err)
		return emptySnapshot(userID), nil
	}
	snap.UserID = userID
	if snap.Messages == nil {
		snap.Messages = []domain.Message{}
	}
	return snap, nil
}

// Save upserts the snapshot.
func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}
	payload, err := s.codec.Encode(snap)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}

	query := `
	INSERT INTO conversations (user_id, payload, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		payload = excluded.payload,
		updated_at = excluded.updated_at`

	return shared.RetryOnConflict(ctx, "save conversation", func() error {
		_, err := s.db.ExecContext(ctx, query, snap.UserID, payload, snap.UpdatedAt.Unix())
		return err
	})
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
