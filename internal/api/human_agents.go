package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
)

// CreateHumanAgent handles POST /human-agents.
func (h *Handler) CreateHumanAgent(w http.ResponseWriter, r *http.Request) {
	var agent domain.HumanAgent
	if !decode(w, r, &agent) {
		return
	}
	if agent.WebsiteID == "" || agent.AgentID == "" || agent.Name == "" || agent.Email == "" {
		Error(w, http.StatusBadRequest, "websiteId, agentId, name and email are required")
		return
	}
	if err := h.repo.UpsertHumanAgent(r.Context(), agent); err != nil {
		slog.Error("Failed to store human agent", "error", err, "agent_id", agent.AgentID)
		Error(w, http.StatusInternalServerError, "failed to store human agent")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "Human agent created"})
}

// ListHumanAgents handles GET /human-agents?websiteId=&agentId=.
func (h *Handler) ListHumanAgents(w http.ResponseWriter, r *http.Request) {
	q, ok := requireQuery(w, r, "websiteId")
	if !ok {
		return
	}
	agents, err := h.repo.ListHumanAgents(r.Context(), q["websiteId"], r.URL.Query().Get("agentId"))
	if err != nil {
		slog.Error("Failed to list human agents", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list human agents")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"agents": agents})
}

type agentStatusRequest struct {
	AgentID string `json:"agentId"`
	Status  string `json:"status"`
}

// UpdateHumanAgentStatus handles POST /human-agents/status.
func (h *Handler) UpdateHumanAgentStatus(w http.ResponseWriter, r *http.Request) {
	var req agentStatusRequest
	if !decode(w, r, &req) {
		return
	}
	if req.AgentID == "" || (req.Status != domain.AgentOnline && req.Status != domain.AgentOffline) {
		Error(w, http.StatusBadRequest, "agentId and status (online|offline) are required")
		return
	}
	if err := h.repo.SetHumanAgentStatus(r.Context(), req.AgentID, req.Status, time.Now().UTC()); err != nil {
		slog.Error("Failed to update human agent status", "error", err, "agent_id", req.AgentID)
		Error(w, http.StatusInternalServerError, "failed to update status")
		return
	}
	slog.Info("Human agent status updated", "agent_id", req.AgentID, "status", req.Status)
	JSON(w, http.StatusOK, map[string]string{"status": "Human agent status updated"})
}

// AvailableHumanAgents handles GET /human-agents/available?websiteId=.
func (h *Handler) AvailableHumanAgents(w http.ResponseWriter, r *http.Request) {
	q, ok := requireQuery(w, r, "websiteId")
	if !ok {
		return
	}
	agents, err := h.repo.AvailableHumanAgents(r.Context(), q["websiteId"])
	if err != nil {
		slog.Error("Failed to list available human agents", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list human agents")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"agents": agents})
}
