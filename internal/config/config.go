// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/agentdesk/internal/classifier"
)

// Config holds the backend server configuration.
type Config struct {
	Port            string
	FrontendURL     string
	DBPath          string
	SessionTTL      time.Duration
	SessionSweep    time.Duration
	SeedPath        string
	WatchSeed       bool
	RateLimit       int
	RateWindow      time.Duration
	Classifier      ClassifierConfig
	ConversationLog ConversationLogConfig
	AMQP            AMQPConfig
}

// ClassifierConfig selects and tunes the intent classifier backend.
type ClassifierConfig struct {
	Backend       string
	Addr          string
	Timeout       time.Duration
	AnthropicKey  string
	OpenAIKey     string
	OpenAIBaseURL string
	Model         string
	CacheSize     int64
	CacheTTL      time.Duration
}

// APIKey returns the key for the selected LLM backend.
func (c ClassifierConfig) APIKey() string {
	if c.Backend == classifier.BackendOpenAI {
		return c.OpenAIKey
	}
	return c.AnthropicKey
}

// Options converts the configuration for classifier.New.
func (c ClassifierConfig) Options() classifier.Options {
	return classifier.Options{
		Backend:       c.Backend,
		Addr:          c.Addr,
		Timeout:       c.Timeout,
		APIKey:        c.APIKey(),
		OpenAIBaseURL: c.OpenAIBaseURL,
		Model:         c.Model,
		CacheSize:     c.CacheSize,
		CacheTTL:      c.CacheTTL,
	}
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// AMQPConfig controls publication of conversation events to RabbitMQ.
type AMQPConfig struct {
	URL   string
	Queue string
}

// Load reads the server configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		FrontendURL:  getEnv("FRONTEND_URL", ""),
		DBPath:       getEnv("DB_PATH", "./data/agentdesk.db"),
		SessionTTL:   getEnvDuration("SESSION_TTL", 60*time.Minute),
		SessionSweep: getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		SeedPath:     getEnv("REGISTRY_SEED", ""),
		WatchSeed:    getEnvBool("REGISTRY_SEED_WATCH", false),
		RateLimit:    getEnvInt("CLASSIFY_RATE_LIMIT", 30),
		RateWindow:   getEnvDuration("CLASSIFY_RATE_WINDOW", time.Minute),
		Classifier:   loadClassifier(),
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000),
		},
		AMQP: AMQPConfig{
			URL:   getEnv("AMQP_URL", ""),
			Queue: getEnv("AMQP_QUEUE", "agentdesk.conversations"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadClassifier() ClassifierConfig {
	return ClassifierConfig{
		Backend:       getEnv("CLASSIFIER_BACKEND", "pattern"),
		Addr:          getEnv("CLASSIFIER_ADDR", ""),
		Timeout:       getEnvDuration("CLASSIFIER_TIMEOUT", 10*time.Second),
		AnthropicKey:  getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		Model:         getEnv("LLM_MODEL", ""),
		CacheSize:     int64(getEnvInt("CLASSIFIER_CACHE_SIZE", 1000)),
		CacheTTL:      getEnvDuration("CLASSIFIER_CACHE_TTL", 5*time.Minute),
	}
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be > 0")
	}
	if c.RateLimit <= 0 || c.RateWindow <= 0 {
		return errors.New("CLASSIFY_RATE_LIMIT and CLASSIFY_RATE_WINDOW must be > 0")
	}
	if c.WatchSeed && c.SeedPath == "" {
		return errors.New("REGISTRY_SEED_WATCH requires REGISTRY_SEED")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return errors.New("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalEnabled && c.ConversationLog.GlobalPath == "" {
		return errors.New("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return errors.New("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return c.Classifier.validate()
}

func (c ClassifierConfig) validate() error {
	switch c.Backend {
	case classifier.BackendPattern:
	case classifier.BackendRemote, classifier.BackendGrpc:
		if c.Addr == "" {
			return fmt.Errorf("CLASSIFIER_ADDR is required for the %s classifier", c.Backend)
		}
	case classifier.BackendAnthropic, classifier.BackendOpenAI:
	default:
		return fmt.Errorf("unknown CLASSIFIER_BACKEND %q", c.Backend)
	}
	if c.Timeout <= 0 {
		return errors.New("CLASSIFIER_TIMEOUT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the REST API.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

// WidgetConfig holds the chat widget (CLI) configuration.
type WidgetConfig struct {
	BackendURL        string
	WSURL             string
	MarketplaceURL    string
	WebsiteID         string
	ClientID          string
	ConfirmationURL   string
	CSRFToken         string
	IdentityPath      string
	RegistryCacheTTL  time.Duration
	Classifier        ClassifierConfig
	ConversationStore string
	ConversationDB    string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	ConversationTTL   time.Duration
	Secret            string
	LiveChat          bool
	ConversationLog   ConversationLogConfig
}

// LoadWidget reads the widget configuration from environment variables.
// Callers may override fields from flags before calling Validate.
func LoadWidget() *WidgetConfig {
	return &WidgetConfig{
		BackendURL:        getEnv("BACKEND_URL", "http://localhost:8080"),
		WSURL:             getEnv("WS_URL", ""),
		MarketplaceURL:    getEnv("MARKETPLACE_URL", "http://localhost:8000"),
		WebsiteID:         getEnv("WEBSITE_ID", ""),
		ClientID:          getEnv("CLIENT_ID", ""),
		ConfirmationURL:   getEnv("CONFIRMATION_URL", "/order-confirmation"),
		CSRFToken:         getEnv("CSRF_TOKEN", ""),
		IdentityPath:      getEnv("IDENTITY_PATH", "./data/identity"),
		RegistryCacheTTL:  getEnvDuration("REGISTRY_CACHE_TTL", 30*time.Second),
		Classifier:        loadClassifier(),
		ConversationStore: getEnv("CONVERSATION_STORE", "sqlite"),
		ConversationDB:    getEnv("CONVERSATION_DB", "./data/conversations.db"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		ConversationTTL:   getEnvDuration("CONVERSATION_TTL", 0),
		Secret:            getEnv("CONVERSATION_SECRET", ""),
		LiveChat:          getEnvBool("LIVE_CHAT_ENABLED", true),
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000),
		},
	}
}

// Validate checks the widget configuration. The classifier is validated by
// its factory so that a bad backend only disables automation.
func (c *WidgetConfig) Validate() error {
	if c.WebsiteID == "" {
		return errors.New("WEBSITE_ID cannot be empty")
	}
	if c.ClientID == "" {
		c.ClientID = c.WebsiteID
	}
	if c.WSURL == "" {
		c.WSURL = c.BackendURL
	}
	for name, raw := range map[string]string{"BACKEND_URL": c.BackendURL, "MARKETPLACE_URL": c.MarketplaceURL} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an http(s) URL, got %q", name, raw)
		}
	}
	switch c.ConversationStore {
	case "sqlite":
		if c.ConversationDB == "" {
			return errors.New("CONVERSATION_DB cannot be empty")
		}
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR cannot be empty")
		}
	default:
		return fmt.Errorf("unknown CONVERSATION_STORE %q", c.ConversationStore)
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return errors.New("CONVERSATION_LOG_DIR cannot be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
