package gateway

import (
	"sync"
	"time"
)

// UserMap manages the local connections of each user
type UserMap struct {
	mu    sync.RWMutex
	users map[string]*UserPlatform // userId -> UserPlatform
}

// UserPlatform holds all connections for a user
type UserPlatform struct {
	Clients []*Client
	Time    time.Time
}

// NewUserMap creates a new UserMap
func NewUserMap() *UserMap {
	return &UserMap{
		users: make(map[string]*UserPlatform),
	}
}

// Register registers a client, reporting whether it is the user's first connection
func (m *UserMap) Register(client *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	userPlatform, exists := m.users[client.UserId]
	if !exists {
		userPlatform = &UserPlatform{
			Clients: make([]*Client, 0, 4),
		}
		m.users[client.UserId] = userPlatform
	}

	userPlatform.Clients = append(userPlatform.Clients, client)
	userPlatform.Time = time.Now()
	return !exists
}

// Unregister unregisters a client, reporting whether the user has no connection left
func (m *UserMap) Unregister(client *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	userPlatform, exists := m.users[client.UserId]
	if !exists {
		return false
	}

	newClients := make([]*Client, 0, len(userPlatform.Clients))
	removed := false
	for _, c := range userPlatform.Clients {
		if c.ConnId == client.ConnId {
			removed = true
			continue
		}
		newClients = append(newClients, c)
	}
	if !removed {
		return false
	}
	userPlatform.Clients = newClients

	if len(userPlatform.Clients) == 0 {
		delete(m.users, client.UserId)
		return true
	}
	return false
}

// GetAll gets all clients for a user
func (m *UserMap) GetAll(userId string) ([]*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userPlatform, exists := m.users[userId]
	if !exists {
		return nil, false
	}

	// Return a copy to avoid race conditions
	clients := make([]*Client, len(userPlatform.Clients))
	copy(clients, userPlatform.Clients)
	return clients, true
}

// HasConnection checks if user has any local connection
func (m *UserMap) HasConnection(userId string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userPlatform, exists := m.users[userId]
	return exists && len(userPlatform.Clients) > 0
}

// GetOnlineUserCount returns the number of online users
func (m *UserMap) GetOnlineUserCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

// GetAllOnlineUserIds returns all locally connected user Ids
func (m *UserMap) GetAllOnlineUserIds() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userIds := make([]string, 0, len(m.users))
	for userId := range m.users {
		userIds = append(userIds, userId)
	}
	return userIds
}

// AllClients returns every local connection
func (m *UserMap) AllClients() []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var clients []*Client
	for _, up := range m.users {
		clients = append(clients, up.Clients...)
	}
	return clients
}
