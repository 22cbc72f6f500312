package classifier

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Backend names accepted by New.
const (
	BackendPattern   = "pattern"
	BackendRemote    = "remote"
	BackendGrpc      = "grpc"
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"
)

// Options selects and configures a classifier backend.
type Options struct {
	Backend       string
	Addr          string
	Timeout       time.Duration
	APIKey        string
	OpenAIBaseURL string
	Model         string
	CacheSize     int64
	CacheTTL      time.Duration
}

// New builds the configured backend wrapped in a cache (when CacheSize > 0)
// and a Safe fallback layer. An error means the backend could not be
// initialized at all.
func New(opts Options, logger *slog.Logger) (Classifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var inner Classifier
	switch opts.Backend {
	case "", BackendPattern:
		inner = NewPattern()
	case BackendRemote:
		if opts.Addr == "" {
			return nil, fmt.Errorf("remote classifier requires an address")
		}
		inner = NewRemote(opts.Addr, &http.Client{Timeout: opts.Timeout})
	case BackendGrpc:
		cfg := DefaultGrpcConfig()
		if opts.Addr != "" {
			cfg.Address = opts.Addr
		}
		g, err := NewGrpc(cfg, logger)
		if err != nil {
			return nil, err
		}
		inner = g
	case BackendAnthropic:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("anthropic classifier requires an API key")
		}
		inner = NewLLM(NewAnthropicCompleter(opts.APIKey, opts.Model))
	case BackendOpenAI:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("openai classifier requires an API key")
		}
		inner = NewLLM(NewOpenAICompleter(opts.APIKey, opts.OpenAIBaseURL, opts.Model))
	default:
		return nil, fmt.Errorf("unknown classifier backend %q", opts.Backend)
	}

	if opts.CacheSize > 0 {
		cached, err := NewCached(inner, opts.CacheSize, opts.CacheTTL)
		if err != nil {
			return nil, err
		}
		inner = cached
	}

	logger.Info("classifier ready", "backend", opts.Backend)
	return NewSafe(inner, opts.Timeout, logger), nil
}
