package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/agentdesk/internal/domain"
)

// CreateAgent handles POST /agents.
func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var agent domain.Agent
	if !decode(w, r, &agent) {
		return
	}
	if agent.WebsiteID == "" || agent.Intent == "" {
		Error(w, http.StatusBadRequest, "websiteId and intent are required")
		return
	}
	if err := h.repo.UpsertAgent(r.Context(), agent); err != nil {
		slog.Error("Failed to store agent", "error", err, "intent", agent.Intent)
		Error(w, http.StatusInternalServerError, "failed to store agent")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "Agent created"})
}

// ListAgents handles GET /agents?websiteId=&intent=.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	q, ok := requireQuery(w, r, "websiteId")
	if !ok {
		return
	}
	agents, err := h.repo.ListAgents(r.Context(), q["websiteId"], r.URL.Query().Get("intent"))
	if err != nil {
		slog.Error("Failed to list agents", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"agents": agents})
}

// CreateChain handles POST /chains.
func (h *Handler) CreateChain(w http.ResponseWriter, r *http.Request) {
	var chain domain.Chain
	if !decode(w, r, &chain) {
		return
	}
	if chain.WebsiteID == "" || chain.ChainID == "" || len(chain.AgentSequence) == 0 {
		Error(w, http.StatusBadRequest, "websiteId, chainId and agentSequence are required")
		return
	}
	if err := h.repo.UpsertChain(r.Context(), chain); err != nil {
		slog.Error("Failed to store chain", "error", err, "chain_id", chain.ChainID)
		Error(w, http.StatusInternalServerError, "failed to store chain")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "Chain created"})
}

// ListChains handles GET /chains?websiteId=.
func (h *Handler) ListChains(w http.ResponseWriter, r *http.Request) {
	q, ok := requireQuery(w, r, "websiteId")
	if !ok {
		return
	}
	chains, err := h.repo.ListChains(r.Context(), q["websiteId"])
	if err != nil {
		slog.Error("Failed to list chains", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list chains")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"chains": chains})
}
