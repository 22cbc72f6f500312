// Package executor invokes agent features over HTTP and runs multi-agent chains.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
)

// User-visible outcome texts.
const (
	MsgNoRoute        = "No route found for this agent."
	MsgGenericFailure = "Sorry, something went wrong."
	MsgActionDone     = "Action completed successfully"
)

// Outcome is the normalized result of one agent invocation. Exactly one of
// Result or Error is set.
type Outcome struct {
	Result string
	Error  string
	Params map[string]any
}

// Failed returns true if the invocation produced an error.
func (o Outcome) Failed() bool {
	return o.Error != ""
}

// Products returns the product list carried in Params, if any.
func (o Outcome) Products() []domain.Product {
	return productsOf(o.Params["products"])
}

// Invoker executes one agent for an intent.
type Invoker interface {
	Execute(ctx context.Context, agent domain.Agent, intent string, params map[string]any) Outcome
}

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) { e.client = c }
}

// WithCSRFToken attaches token as X-CSRFToken on non-GET requests.
func WithCSRFToken(token string) Option {
	return func(e *Executor) { e.csrfToken = token }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// Executor calls agent features against the marketplace API.
type Executor struct {
	baseURL   string
	client    *http.Client
	csrfToken string
	logger    *slog.Logger
}

var _ Invoker = (*Executor)(nil)

// New creates an Executor for the marketplace at baseURL.
func New(baseURL string, opts ...Option) *Executor {
	e := &Executor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var intentPrefix = regexp.MustCompile(`^[a-z]+_`)

// SelectFeature picks the feature whose route contains the intent's suffix
// (the intent minus its leading "word_"), else the first feature.
func SelectFeature(agent domain.Agent, intent string) (domain.Feature, bool) {
	if len(agent.Features) == 0 {
		return domain.Feature{}, false
	}
	suffix := strings.ToLower(intentPrefix.ReplaceAllString(intent, ""))
	for _, f := range agent.Features {
		if strings.Contains(strings.ToLower(f.Route), suffix) {
			return f, true
		}
	}
	return agent.Features[0], true
}

// Execute invokes the agent's selected feature. It never panics on bad
// input and always returns an Outcome with Result or Error set.
func (e *Executor) Execute(ctx context.Context, agent domain.Agent, intent string, params map[string]any) Outcome {
	feature, ok := SelectFeature(agent, intent)
	if !ok {
		e.logger.Warn("agent has no features", "intent", intent)
		return Outcome{Error: MsgNoRoute}
	}

	route, query := promoteCategory(feature.Route, params)
	method := feature.HTTPMethod()

	req, err := e.buildRequest(ctx, method, e.baseURL+route, query)
	if err != nil {
		e.logger.Error("failed to build agent request", "intent", intent, "route", route, "error", err)
		return Outcome{Error: MsgGenericFailure}
	}

	e.logger.Debug("executing agent", "intent", agent.Intent, "route", route, "method", method)

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Warn("agent request failed", "intent", intent, "route", route, "error", err)
		return Outcome{Error: MsgGenericFailure}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		e.logger.Warn("failed to read agent response", "intent", intent, "error", err)
		return Outcome{Error: MsgGenericFailure}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.logger.Warn("agent returned error status", "intent", intent, "status", resp.StatusCode)
		return Outcome{Error: errorMessage(body)}
	}
	return normalize(body)
}

// promoteCategory moves a category parameter into the route path.
func promoteCategory(route string, params map[string]any) (string, map[string]any) {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	category := domain.StringParam(out, "category")
	if category == "" {
		delete(out, "category")
		return route, out
	}
	delete(out, "category")
	return strings.TrimSuffix(route, "/") + "/" + url.PathEscape(strings.ToLower(category)) + "/", out
}

func (e *Executor) buildRequest(ctx context.Context, method, target string, params map[string]any) (*http.Request, error) {
	if method == http.MethodGet {
		u, err := url.Parse(target)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		for k, v := range params {
			if v == nil {
				continue
			}
			q.Set(k, domain.StringParam(params, k))
		}
		u.RawQuery = q.Encode()
		return http.NewRequestWithContext(ctx, method, u.String(), nil)
	}

	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.csrfToken != "" {
		req.Header.Set("X-CSRFToken", e.csrfToken)
	}
	return req, nil
}

// normalize maps a 2xx body to an Outcome. First matching rule wins:
// a message field, a non-empty product array, anything else.
func normalize(body []byte) Outcome {
	var data any
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &data); err != nil {
			return Outcome{Result: MsgActionDone, Params: map[string]any{}}
		}
	}

	if obj, ok := data.(map[string]any); ok {
		if msg, ok := obj["message"].(string); ok && msg != "" {
			return Outcome{Result: msg, Params: obj}
		}
		if products := productsOf(obj["products"]); len(products) > 0 {
			return productsOutcome(obj["products"].([]any))
		}
		return Outcome{Result: MsgActionDone, Params: obj}
	}
	if list, ok := data.([]any); ok && len(list) > 0 {
		return productsOutcome(list)
	}
	return Outcome{Result: MsgActionDone, Params: map[string]any{}}
}

func productsOutcome(list []any) Outcome {
	n := len(list)
	noun := "products"
	if n == 1 {
		noun = "product"
	}
	return Outcome{
		Result: fmt.Sprintf("%d %s found", n, noun),
		Params: map[string]any{"products": list},
	}
}

func productsOf(v any) []domain.Product {
	switch list := v.(type) {
	case []domain.Product:
		return list
	case []any:
		out := make([]domain.Product, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, domain.Product(m))
			}
		}
		return out
	}
	return nil
}

// errorMessage extracts a validation message from an error body.
func errorMessage(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return MsgGenericFailure
	}

	var details []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &details); err == nil {
		if len(details) > 0 && details[0].Msg != "" {
			return details[0].Msg
		}
		return MsgGenericFailure
	}

	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err == nil && detail != "" {
		return detail
	}
	return MsgGenericFailure
}
