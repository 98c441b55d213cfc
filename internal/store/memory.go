package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process ParticipantStore and UserStore used in dev mode and tests
type Memory struct {
	mu      sync.RWMutex
	members map[string]map[string]bool // conversation -> user -> active
	names   map[string]string
	order   map[string][]string // conversation -> users in insertion order
}

// NewMemory creates an empty store
func NewMemory() *Memory {
	return &Memory{
		members: make(map[string]map[string]bool),
		names:   make(map[string]string),
		order:   make(map[string][]string),
	}
}

// SetParticipant records or updates a membership.
func (m *Memory) SetParticipant(conversationID, userID string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv := m.members[conversationID]
	if conv == nil {
		conv = make(map[string]bool)
		m.members[conversationID] = conv
	}
	if _, exists := conv[userID]; !exists {
		m.order[conversationID] = append(m.order[conversationID], userID)
	}
	conv[userID] = active
}

// SetDisplayName stores the name returned by GetDisplayName.
func (m *Memory) SetDisplayName(userID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[userID] = name
}

func (m *Memory) FindActiveParticipations(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for convID, users := range m.members {
		if users[userID] {
			out = append(out, convID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) FindParticipants(_ context.Context, conversationID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for _, userID := range m.order[conversationID] {
		if m.members[conversationID][userID] {
			out = append(out, userID)
		}
	}
	return out, nil
}

func (m *Memory) IsActiveParticipant(_ context.Context, userID, conversationID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.members[conversationID][userID], nil
}

func (m *Memory) GetDisplayName(_ context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name, ok := m.names[userID]
	if !ok {
		return "", ErrNotFound
	}
	return name, nil
}
