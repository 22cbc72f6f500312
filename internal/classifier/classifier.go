// Package classifier turns free-text user input into ranked intents and a
// parameter bag. Backends are interchangeable behind the Classifier interface.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
)

// ErrEmptyResult is returned by backends that produced no usable intent.
var ErrEmptyResult = errors.New("classifier returned no intents")

// Intent is one candidate intent with its confidence.
type Intent struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Result is the classification outcome. Intents are ordered by confidence, highest first.
type Result struct {
	Intents  []Intent       `json:"intents"`
	Params   map[string]any `json:"params"`
	Fallback bool           `json:"-"`
}

// Primary returns the highest-confidence intent, or "" when there is none.
func (r Result) Primary() string {
	if len(r.Intents) == 0 {
		return ""
	}
	return r.Intents[0].Intent
}

// Has reports whether intent was detected.
func (r Result) Has(intent string) bool {
	for _, in := range r.Intents {
		if in.Intent == intent {
			return true
		}
	}
	return false
}

// Context carries conversation state a backend may use.
type Context struct {
	SessionID string
	UserID    string
	History   []string
}

// Classifier classifies user text.
type Classifier interface {
	Classify(ctx context.Context, text string, cctx Context) (Result, error)
}

// Default parameter values used when nothing could be extracted.
const (
	DefaultBrand    = "Sony"
	DefaultCategory = "headphone"
	SortPriceAsc    = "price_asc"
	SortPriceDesc   = "price_desc"
)

// DefaultFallback is the deterministic result used when classification fails.
func DefaultFallback() Result {
	return Result{
		Intents: []Intent{{Intent: domain.IntentSearchProduct, Confidence: 1.0}},
		Params: map[string]any{
			"brand":    DefaultBrand,
			"category": DefaultCategory,
			"sort":     SortPriceDesc,
		},
		Fallback: true,
	}
}

// WithDefaults fills brand, category and sort when absent.
func WithDefaults(params map[string]any) map[string]any {
	out := make(map[string]any, len(params)+3)
	maps.Copy(out, params)
	if _, ok := out["brand"]; !ok {
		out["brand"] = DefaultBrand
	}
	if _, ok := out["category"]; !ok {
		out["category"] = DefaultCategory
	}
	if _, ok := out["sort"]; !ok {
		out["sort"] = SortPriceDesc
	}
	return out
}

// normalize orders intents by confidence and drops blanks.
func normalize(r Result) Result {
	intents := make([]Intent, 0, len(r.Intents))
	for _, in := range r.Intents {
		if in.Intent != "" {
			intents = append(intents, in)
		}
	}
	sort.SliceStable(intents, func(i, j int) bool {
		return intents[i].Confidence > intents[j].Confidence
	})
	r.Intents = intents
	if r.Params == nil {
		r.Params = map[string]any{}
	}
	return r
}

// Safe wraps a Classifier with a deadline and replaces any failure with
// DefaultFallback. Its Classify never returns an error.
type Safe struct {
	inner   Classifier
	timeout time.Duration
	logger  *slog.Logger
}

// NewSafe creates a Safe classifier. A zero timeout defaults to 10s.
func NewSafe(inner Classifier, timeout time.Duration, logger *slog.Logger) *Safe {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Safe{inner: inner, timeout: timeout, logger: logger}
}

// Classify runs the wrapped classifier and falls back on error, timeout or empty output.
func (s *Safe) Classify(ctx context.Context, text string, cctx Context) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("classifier panic: %v", r)}
			}
		}()
		r, err := s.inner.Classify(ctx, text, cctx)
		done <- outcome{r, err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = ctx.Err()
	}

	if out.err != nil {
		s.logger.Warn("classification failed, using fallback", "error", out.err, "session_id", cctx.SessionID)
		return DefaultFallback(), nil
	}
	out.res = normalize(out.res)
	if len(out.res.Intents) == 0 {
		s.logger.Warn("classification empty, using fallback", "session_id", cctx.SessionID)
		return DefaultFallback(), nil
	}
	return out.res, nil
}
