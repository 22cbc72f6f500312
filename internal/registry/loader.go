package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ashureev/agentdesk/internal/domain"
)

type snapshot struct {
	agents []domain.Agent
	chains []domain.Chain
}

// Loader fetches agents and chains from the backend REST API. Responses are
// cached per website for a short TTL.
type Loader struct {
	baseURL string
	client  *http.Client
	cache   *expirable.LRU[string, snapshot]
	logger  *slog.Logger
}

// NewLoader creates a Loader. A zero ttl disables caching.
func NewLoader(baseURL string, client *http.Client, ttl time.Duration, logger *slog.Logger) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
	if ttl > 0 {
		l.cache = expirable.NewLRU[string, snapshot](64, nil, ttl)
	}
	return l
}

// Load returns a registry for websiteID.
func (l *Loader) Load(ctx context.Context, websiteID string) (*Registry, error) {
	reg := New(nil, nil)
	if err := l.Refresh(ctx, reg, websiteID); err != nil {
		return nil, err
	}
	return reg, nil
}

// Refresh replaces reg's contents with the backend's current agents and chains.
func (l *Loader) Refresh(ctx context.Context, reg *Registry, websiteID string) error {
	if l.cache != nil {
		if snap, ok := l.cache.Get(websiteID); ok {
			reg.Replace(snap.agents, snap.chains)
			return nil
		}
	}

	var agents struct {
		Agents []domain.Agent `json:"agents"`
	}
	if err := l.get(ctx, "/agents", websiteID, &agents); err != nil {
		return fmt.Errorf("fetch agents: %w", err)
	}
	var chains struct {
		Chains []domain.Chain `json:"chains"`
	}
	if err := l.get(ctx, "/chains", websiteID, &chains); err != nil {
		return fmt.Errorf("fetch chains: %w", err)
	}

	reg.Replace(agents.Agents, chains.Chains)
	if l.cache != nil {
		l.cache.Add(websiteID, snapshot{agents: agents.Agents, chains: chains.Chains})
	}
	l.logger.Info("registry loaded", "website_id", websiteID, "agents", len(agents.Agents), "chains", len(chains.Chains))
	return nil
}

// Publish upserts every agent and chain of the seed on the backend.
func (l *Loader) Publish(ctx context.Context, seed *Seed) error {
	for _, a := range seed.Agents {
		if err := l.post(ctx, "/agents", a); err != nil {
			return fmt.Errorf("publish agent %s: %w", a.Intent, err)
		}
	}
	for _, c := range seed.Chains {
		if err := l.post(ctx, "/chains", c); err != nil {
			return fmt.Errorf("publish chain %s: %w", c.ChainID, err)
		}
	}
	if l.cache != nil {
		l.cache.Remove(seed.WebsiteID)
	}
	return nil
}

func (l *Loader) get(ctx context.Context, path, websiteID string, out any) error {
	u := l.baseURL + path + "?" + url.Values{"websiteId": {websiteID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return l.do(req, out)
}

func (l *Loader) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return l.do(req, nil)
}

func (l *Loader) do(req *http.Request, out any) error {
	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
