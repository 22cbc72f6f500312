package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
)

type fakeSink struct {
	mu     sync.Mutex
	agents []domain.Agent
	chains []domain.Chain
}

func (f *fakeSink) UpsertAgent(_ context.Context, a domain.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agents = append(f.agents, a)
	return nil
}

func (f *fakeSink) UpsertChain(_ context.Context, c domain.Chain) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chains = append(f.chains, c)
	return nil
}

func TestSeedApply(t *testing.T) {
	seed := &Seed{
		WebsiteID: "site",
		Agents:    []domain.Agent{{WebsiteID: "site", Intent: "search_product"}, {WebsiteID: "site", Intent: "place_order"}},
		Chains:    []domain.Chain{{WebsiteID: "site", ChainID: "buy", AgentSequence: []string{"search_product", "place_order"}}},
	}
	sink := &fakeSink{}
	if err := seed.Apply(context.Background(), sink); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(sink.agents) != 2 || len(sink.chains) != 1 {
		t.Fatalf("unexpected sink contents: %d agents, %d chains", len(sink.agents), len(sink.chains))
	}
}

func writeSeed(t *testing.T, path, intent string) {
	t.Helper()
	body := fmt.Sprintf("websiteId: site\nagents:\n  - intent: %s\n    features:\n      - route: /api/%s\n", intent, intent)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	writeSeed(t, path, "search_product")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan *Seed, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 20*time.Millisecond, nil, func(_ context.Context, s *Seed) error {
			applied <- s
			return nil
		})
	}()

	// The watcher registers asynchronously; keep rewriting until it reacts.
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case s := <-applied:
			if s.WebsiteID != "site" || len(s.Agents) != 1 || s.Agents[0].Intent != "track_order" {
				t.Fatalf("unexpected seed %+v", s)
			}
			if s.Agents[0].WebsiteID != "site" {
				t.Fatalf("expected website id to be stamped, got %+v", s.Agents[0])
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch returned %v", err)
			}
			return
		case <-ticker.C:
			writeSeed(t, path, "track_order")
		case <-deadline:
			t.Fatal("timed out waiting for seed reload")
		}
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "seed.yaml")
	err := Watch(context.Background(), path, 0, nil, func(context.Context, *Seed) error { return nil })
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
