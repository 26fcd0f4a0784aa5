package websocket

import (
	"encoding/json"
	"sync"

	"github.com/konkon3660/graduationP/internal/autoplay"
	"github.com/konkon3660/graduationP/internal/logger"
)

// ConnectionManager tracks open control connections.
type ConnectionManager struct {
	mu      sync.RWMutex
	clients map[autoplay.ClientHandle]*Client
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{clients: make(map[autoplay.ClientHandle]*Client)}
}

// AddConnection registers a new connection
func (m *ConnectionManager) AddConnection(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.Handle] = c
}

// RemoveConnection removes a connection
func (m *ConnectionManager) RemoveConnection(h autoplay.ClientHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, h)
}

// GetConnectionCount returns the number of open connections
func (m *ConnectionManager) GetConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Broadcast queues v for every connection. It never blocks; clients whose
// queue is full miss the message.
func (m *ConnectionManager) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warnf("[ws] failed to marshal broadcast: %v", err)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.clients {
		if !c.enqueue(data) {
			logger.Debugf("[ws] %s send queue full, dropping broadcast", c.Handle)
		}
	}
}

// CloseAll closes every connection. Their read loops then unregister them.
func (m *ConnectionManager) CloseAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.clients {
		_ = c.conn.Close()
	}
}
