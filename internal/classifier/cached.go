package classifier

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Cached memoizes another classifier's results keyed by normalized text.
// Fallback results are never cached.
type Cached struct {
	inner Classifier
	cache *ristretto.Cache
	ttl   time.Duration
}

var _ Classifier = (*Cached)(nil)

// NewCached wraps inner with a bounded cache holding up to maxEntries results.
func NewCached(inner Classifier, maxEntries int64, ttl time.Duration) (*Cached, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create classification cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache, ttl: ttl}, nil
}

// Classify returns a cached result or delegates and stores the answer.
func (c *Cached) Classify(ctx context.Context, text string, cctx Context) (Result, error) {
	key := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if v, ok := c.cache.Get(key); ok {
		if res, ok := v.(Result); ok {
			return cloneResult(res), nil
		}
	}

	res, err := c.inner.Classify(ctx, text, cctx)
	if err != nil || res.Fallback {
		return res, err
	}
	c.cache.SetWithTTL(key, cloneResult(res), 1, c.ttl)
	return res, nil
}

// Wait blocks until pending writes are visible.
func (c *Cached) Wait() {
	c.cache.Wait()
}

// Close releases the cache.
func (c *Cached) Close() {
	c.cache.Close()
}

func cloneResult(r Result) Result {
	out := Result{Fallback: r.Fallback}
	out.Intents = append([]Intent(nil), r.Intents...)
	if r.Params != nil {
		out.Params = maps.Clone(r.Params)
	}
	return out
}
