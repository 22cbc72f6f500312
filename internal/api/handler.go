// Package api provides HTTP handlers for the agentdesk backend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/agentdesk/internal/classifier"
	"github.com/ashureev/agentdesk/internal/identity"
	"github.com/ashureev/agentdesk/internal/store"
)

const maxRequestBodySize = 1 << 20

// SessionCloser closes a live-chat session and notifies its customer.
type SessionCloser interface {
	CloseSession(ctx context.Context, sessionID string) error
}

// Handler serves the registry, session, human-agent, widget and
// classification endpoints.
type Handler struct {
	repo       store.Repository
	closer     SessionCloser
	classifier classifier.Classifier
	limiter    *RateLimiter
	isDev      bool
}

// NewHandler creates a Handler. A nil classifier selects the pattern
// classifier; a nil limiter disables rate limiting of /classify-intent.
func NewHandler(repo store.Repository, closer SessionCloser, cls classifier.Classifier, limiter *RateLimiter, isDev bool) *Handler {
	if cls == nil {
		cls = classifier.NewPattern()
	}
	return &Handler{
		repo:       repo,
		closer:     closer,
		classifier: cls,
		limiter:    limiter,
		isDev:      isDev,
	}
}

// RegisterRoutes mounts every endpoint on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/agents", h.ListAgents)
	r.Post("/agents", h.CreateAgent)
	r.Get("/chains", h.ListChains)
	r.Post("/chains", h.CreateChain)

	r.Route("/chat/session", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Get("/", h.ListSessions)
		r.Post("/close", h.CloseSession)
	})

	r.Route("/human-agents", func(r chi.Router) {
		r.Post("/", h.CreateHumanAgent)
		r.Get("/", h.ListHumanAgents)
		r.Post("/status", h.UpdateHumanAgentStatus)
		r.Get("/available", h.AvailableHumanAgents)
	})

	r.Get("/widget/{clientId}", h.GetWidget)
	r.Post("/widget/{clientId}", h.UpdateWidget)

	r.Group(func(r chi.Router) {
		if h.limiter != nil {
			r.Use(h.limiter.Middleware)
		}
		r.Post("/classify-intent", h.ClassifyIntent)
	})
	r.With(identity.Middleware(h.isDev)).Get("/identity", h.Identity)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decode reads a size-limited JSON body into v and writes the error response
// itself when it fails.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func requireQuery(w http.ResponseWriter, r *http.Request, keys ...string) (map[string]string, bool) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v := r.URL.Query().Get(k)
		if v == "" {
			Error(w, http.StatusBadRequest, k+" is required")
			return nil, false
		}
		out[k] = v
	}
	return out, true
}
