package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Remote classifies by calling a backend's /classify-intent endpoint.
type Remote struct {
	baseURL string
	client  *http.Client
}

// NewRemote creates a Remote classifier for baseURL.
func NewRemote(baseURL string, client *http.Client) *Remote {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Remote{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

var _ Classifier = (*Remote)(nil)

type classifyRequest struct {
	Text string `json:"text"`
}

// Classify posts the text and decodes {intents, params}.
func (r *Remote) Classify(ctx context.Context, text string, _ Context) (Result, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return Result{}, fmt.Errorf("encode classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/classify-intent", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("classify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("classify request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Result{}, fmt.Errorf("decode classify response: %w", err)
	}
	if len(res.Intents) == 0 {
		return Result{}, ErrEmptyResult
	}
	return normalize(res), nil
}
