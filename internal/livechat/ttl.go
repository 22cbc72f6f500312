package livechat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/agentdesk/internal/store"
)

const ttlWorkerInterval = 5 * time.Minute

// StartTTLWorker runs a background goroutine that periodically closes open
// sessions idle for longer than ttl, notifying connected customers.
func StartTTLWorker(ctx context.Context, repo store.Repository, hub *Hub, ttl, interval time.Duration) {
	if interval <= 0 {
		interval = ttlWorkerInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				closeIdleSessions(ctx, repo, hub, ttl)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func closeIdleSessions(ctx context.Context, repo store.Repository, hub *Hub, ttl time.Duration) int {
	idle, err := repo.IdleSessions(ctx, hub.now().Add(-ttl))
	if err != nil {
		slog.Error("TTL worker failed to get idle sessions", "error", err)
		return 0
	}
	if len(idle) == 0 {
		return 0
	}

	slog.Info("TTL worker found idle sessions", "count", len(idle))
	closed := 0
	for _, session := range idle {
		if err := hub.CloseSession(ctx, session.SessionID); err != nil {
			if ctx.Err() != nil {
				slog.Debug("TTL worker: context canceled, cleanup may be incomplete", "session_id", session.SessionID)
				return closed
			}
			if !errors.Is(err, store.ErrNotFound) {
				slog.Warn("TTL worker failed to close session", "error", err, "session_id", session.SessionID)
			}
			continue
		}
		closed++
	}
	slog.Info("TTL worker cleanup completed", "closed", closed)
	return closed
}
