package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CLASSIFIER_BACKEND", "pattern")
	t.Setenv("FRONTEND_URL", "")
	t.Setenv("SESSION_TTL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %q", cfg.Port)
	}
	if cfg.SessionTTL != 60*time.Minute {
		t.Errorf("expected 60m session TTL, got %v", cfg.SessionTTL)
	}
	if !cfg.IsDevelopment() || cfg.AllowedOrigins()[0] != "*" {
		t.Errorf("expected development mode with wildcard origins")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "unknown classifier", env: map[string]string{"CLASSIFIER_BACKEND": "magic"}, wantErr: "CLASSIFIER_BACKEND"},
		{name: "grpc without addr", env: map[string]string{"CLASSIFIER_BACKEND": "grpc", "CLASSIFIER_ADDR": ""}, wantErr: "CLASSIFIER_ADDR"},
		{name: "watch without seed", env: map[string]string{"REGISTRY_SEED_WATCH": "true", "REGISTRY_SEED": ""}, wantErr: "REGISTRY_SEED"},
		{name: "zero queue", env: map[string]string{"CONVERSATION_LOG_QUEUE_SIZE": "0"}, wantErr: "QUEUE_SIZE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestProductionOrigins(t *testing.T) {
	cfg := &Config{FrontendURL: "https://desk.example"}
	if cfg.IsDevelopment() {
		t.Fatal("expected production mode")
	}
	if got := cfg.AllowedOrigins(); len(got) != 1 || got[0] != "https://desk.example" {
		t.Fatalf("unexpected origins %v", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("D_GO", "90s")
	t.Setenv("D_SECONDS", "45")
	t.Setenv("D_BAD", "soon")

	if got := getEnvDuration("D_GO", time.Second); got != 90*time.Second {
		t.Errorf("D_GO = %v", got)
	}
	if got := getEnvDuration("D_SECONDS", time.Second); got != 45*time.Second {
		t.Errorf("D_SECONDS = %v", got)
	}
	if got := getEnvDuration("D_BAD", time.Second); got != time.Second {
		t.Errorf("D_BAD = %v", got)
	}
	if got := getEnvDuration("D_MISSING", 2*time.Second); got != 2*time.Second {
		t.Errorf("D_MISSING = %v", got)
	}
}

func TestWidgetValidate(t *testing.T) {
	t.Setenv("WEBSITE_ID", "site-1")
	t.Setenv("CLIENT_ID", "")
	t.Setenv("WS_URL", "")

	cfg := LoadWidget()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.ClientID != "site-1" {
		t.Errorf("expected client id to default to website id, got %q", cfg.ClientID)
	}
	if cfg.WSURL != cfg.BackendURL {
		t.Errorf("expected websocket url to default to backend url, got %q", cfg.WSURL)
	}

	cfg.ConversationStore = "mongo"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown store to be rejected")
	}

	cfg.ConversationStore = "redis"
	cfg.MarketplaceURL = "ftp://shop"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "MARKETPLACE_URL") {
		t.Fatalf("expected marketplace url error, got %v", err)
	}
}

func TestWidgetValidateRequiresWebsite(t *testing.T) {
	t.Setenv("WEBSITE_ID", "")
	if err := LoadWidget().Validate(); err == nil {
		t.Fatal("expected missing website id to fail")
	}
}

func TestClassifierOptionsPicksKey(t *testing.T) {
	c := ClassifierConfig{Backend: "openai", AnthropicKey: "a", OpenAIKey: "o", Timeout: time.Second}
	if got := c.Options(); got.APIKey != "o" || got.Backend != "openai" {
		t.Fatalf("unexpected options %+v", got)
	}
	c.Backend = "anthropic"
	if got := c.Options(); got.APIKey != "a" {
		t.Fatalf("expected anthropic key, got %+v", got)
	}
}
