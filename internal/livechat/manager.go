// Package livechat relays frames between customers and human specialists over
// WebSockets and closes idle sessions.
package livechat

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

type customerKey struct {
	clientID string
	userID   string
}

// ConnManager tracks the open customer and specialist sockets. A newer
// socket for the same customer or specialist replaces the older one.
type ConnManager struct {
	mu          sync.RWMutex
	customers   map[customerKey]*websocket.Conn
	specialists map[string]*websocket.Conn
}

// NewConnManager creates an empty manager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		customers:   make(map[customerKey]*websocket.Conn),
		specialists: make(map[string]*websocket.Conn),
	}
}

// Customer returns the socket of a connected customer.
func (m *ConnManager) Customer(clientID, userID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.customers[customerKey{clientID, userID}]
}

// Specialist returns the socket of a connected specialist.
func (m *ConnManager) Specialist(agentID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.specialists[agentID]
}

// RegisterCustomer adds a customer socket.
func (m *ConnManager) RegisterCustomer(clientID, userID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := customerKey{clientID, userID}
	if existing, ok := m.customers[k]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	m.customers[k] = conn
	slog.Info("Customer connected", "client_id", clientID, "user_id", userID)
}

// UnregisterCustomer removes a customer socket if it is still the current one.
func (m *ConnManager) UnregisterCustomer(clientID, userID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := customerKey{clientID, userID}
	if current, ok := m.customers[k]; ok && current == conn {
		delete(m.customers, k)
		slog.Info("Customer disconnected", "client_id", clientID, "user_id", userID)
	}
}

// RegisterSpecialist adds a specialist socket.
func (m *ConnManager) RegisterSpecialist(agentID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.specialists[agentID]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	m.specialists[agentID] = conn
	slog.Info("Specialist connected", "agent_id", agentID)
}

// UnregisterSpecialist removes a specialist socket if it is still the current
// one and reports whether it was.
func (m *ConnManager) UnregisterSpecialist(agentID string, conn *websocket.Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.specialists[agentID]; ok && current == conn {
		delete(m.specialists, agentID)
		slog.Info("Specialist disconnected", "agent_id", agentID)
		return true
	}
	return false
}

// CloseAll closes every tracked socket.
func (m *ConnManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, conn := range m.customers {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(m.customers, k)
	}
	for id, conn := range m.specialists {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(m.specialists, id)
	}
}
