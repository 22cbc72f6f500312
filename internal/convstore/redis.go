package convstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ashureev/agentdesk/internal/domain"
)

// RedisConfig describes the Redis connection used for transcripts.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	// TTL expires idle transcripts. Zero keeps them forever.
	TTL time.Duration
}

// RedisStore keeps encoded snapshots under "<prefix><userID>" keys.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	codec  Codec
	logger *slog.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg RedisConfig, codec Codec, logger *slog.Logger) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	if codec == nil {
		codec = PlainCodec{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "agentdesk:conversation:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisStore{client: client, prefix: prefix, ttl: cfg.TTL, codec: codec, logger: logger}, nil
}

// Load returns the stored snapshot for userID.
func (s *RedisStore) Load(ctx context.Context, userID string) (Snapshot, error) {
	payload, err := s.client.Get(ctx, s.prefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
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

// Save writes the snapshot, refreshing its TTL.
func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}
	payload, err := s.codec.Encode(snap)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+snap.UserID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
