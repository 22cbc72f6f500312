package domain

import (
	"fmt"
	"strconv"
	"time"
)

// SessionStatus is the lifecycle state of a chat session.
type SessionStatus string

const (
	SessionPending SessionStatus = "pending"
	SessionActive  SessionStatus = "active"
	SessionClosed  SessionStatus = "closed"
)

// ChatSession binds a user, a client deployment and a transcript.
type ChatSession struct {
	SessionID string        `json:"sessionId"`
	ClientID  string        `json:"clientId"`
	UserID    string        `json:"userId"`
	AgentID   string        `json:"agentId,omitempty"`
	Status    SessionStatus `json:"status"`
	Messages  []Message     `json:"messages"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// IsOpen returns true if the session has not been closed.
func (s *ChatSession) IsOpen() bool {
	return s.Status != SessionClosed
}

// UserProfile holds the order fields remembered for a user.
type UserProfile struct {
	CustomerName string `json:"customer_name"`
	Address      string `json:"address"`
}

// PendingOrder accumulates order slots while an order is being placed.
type PendingOrder struct {
	ProductID    string `json:"product_id"`
	CustomerName string `json:"customer_name,omitempty"`
	Address      string `json:"address,omitempty"`
	Quantity     int    `json:"quantity,omitempty"`
}

// Params renders the order as the place_order request body.
func (o PendingOrder) Params() map[string]any {
	return map[string]any{
		"product_id":    o.ProductID,
		"customer_name": o.CustomerName,
		"address":       o.Address,
		"quantity":      o.Quantity,
	}
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}

// StringParam reads key from a parameter bag as a string.
func StringParam(params map[string]any, key string) string {
	return stringField(params, key)
}
