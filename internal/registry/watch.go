package registry

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ashureev/agentdesk/internal/domain"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// SeedSink stores seeded agents and chains.
type SeedSink interface {
	UpsertAgent(ctx context.Context, agent domain.Agent) error
	UpsertChain(ctx context.Context, chain domain.Chain) error
}

// Apply upserts every agent and chain of the seed into sink.
func (s *Seed) Apply(ctx context.Context, sink SeedSink) error {
	for _, a := range s.Agents {
		if err := sink.UpsertAgent(ctx, a); err != nil {
			return fmt.Errorf("store agent %s: %w", a.Intent, err)
		}
	}
	for _, c := range s.Chains {
		if err := sink.UpsertChain(ctx, c); err != nil {
			return fmt.Errorf("store chain %s: %w", c.ChainID, err)
		}
	}
	return nil
}

// Watch reloads the seed at path whenever it changes and passes it to apply.
// It watches the parent directory so editors that replace the file by rename
// are seen. Invalid seeds are logged and skipped. Watch blocks until ctx is
// done.
func Watch(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, apply func(context.Context, *Seed) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve seed path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	logger.Info("watching registry seed", "path", abs)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("registry seed watcher error", "error", err)
		case <-timer.C:
			seed, err := LoadFile(abs)
			if err != nil {
				logger.Warn("ignoring invalid registry seed", "path", abs, "error", err)
				continue
			}
			if err := apply(ctx, seed); err != nil {
				logger.Error("failed to apply registry seed", "path", abs, "error", err)
				continue
			}
			logger.Info("registry seed reloaded", "website_id", seed.WebsiteID, "agents", len(seed.Agents), "chains", len(seed.Chains))
		}
	}
}
