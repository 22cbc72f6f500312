package domain

import "time"

// HumanAgent is a specialist who can take over a conversation.
type HumanAgent struct {
	WebsiteID  string     `json:"websiteId"`
	AgentID    string     `json:"agentId"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Status     string     `json:"status"`
	LastActive *time.Time `json:"lastActive,omitempty"`
}

const (
	AgentOnline  = "online"
	AgentOffline = "offline"
)

// IsOnline returns true if the specialist can accept chats.
func (h *HumanAgent) IsOnline() bool {
	return h.Status == AgentOnline
}
