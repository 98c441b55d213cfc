// Package server maneja las conexiones WebSocket, las salas de conversación
// y la difusión de mensajes en tiempo real.
package server

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/adcondev/convo-daemon/internal/protocol"
	"github.com/adcondev/convo-daemon/internal/store"
)

// Transport is the physical connection behind a client
type Transport interface {
	Send(ctx context.Context, frame protocol.Frame) error
	Close(reason string) error
}

// ConnectedClient is one admitted connection
type ConnectedClient struct {
	UserID    string
	transport Transport

	// guarded by Registry.mu
	conversations map[string]struct{}
}

// Send writes a frame to the client.
func (c *ConnectedClient) Send(ctx context.Context, frame protocol.Frame) error {
	return c.transport.Send(ctx, frame)
}

// Close terminates the underlying connection.
func (c *ConnectedClient) Close(reason string) error {
	return c.transport.Close(reason)
}

// Registry tracks online clients and the online members of each conversation.
// One lock covers both maps so admission and eviction update them together.
type Registry struct {
	mu           sync.RWMutex
	clients      map[string]*ConnectedClient
	rooms        map[string]map[string]struct{}
	participants store.ParticipantStore
}

// NewRegistry creates an empty registry
func NewRegistry(participants store.ParticipantStore) *Registry {
	return &Registry{
		clients:      make(map[string]*ConnectedClient),
		rooms:        make(map[string]map[string]struct{}),
		participants: participants,
	}
}

// Admit registers userID with the conversations it actively participates in.
// A previous connection for the same user is replaced and closed.
func (r *Registry) Admit(ctx context.Context, userID string, t Transport) (*ConnectedClient, error) {
	convIDs, err := r.participants.FindActiveParticipations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load participations for %s: %w", userID, err)
	}

	client := &ConnectedClient{
		UserID:        userID,
		transport:     t,
		conversations: make(map[string]struct{}, len(convIDs)),
	}

	r.mu.Lock()
	prev := r.clients[userID]
	if prev != nil {
		r.leaveAllLocked(prev)
	}
	r.clients[userID] = client
	for _, id := range convIDs {
		client.conversations[id] = struct{}{}
		r.joinRoomLocked(id, userID)
	}
	r.mu.Unlock()

	if prev != nil {
		log.Printf("[WS] 🔁 Replacing previous connection for %s", userID)
		_ = prev.Close("superseded by a new connection")
	}
	return client, nil
}

// Evict removes userID and its room memberships. It reports whether anything was removed.
func (r *Registry) Evict(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.clients[userID]
	if !ok {
		return false
	}
	r.leaveAllLocked(client)
	delete(r.clients, userID)
	return true
}

// EvictClient removes client only if it is still the registered connection for its user.
func (r *Registry) EvictClient(client *ConnectedClient) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clients[client.UserID] != client {
		return false
	}
	r.leaveAllLocked(client)
	delete(r.clients, client.UserID)
	return true
}

// Client returns the registered client for userID
func (r *Registry) Client(userID string) (*ConnectedClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[userID]
	return c, ok
}

// IsOnline reports whether userID has a registered client
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Client(userID)
	return ok
}

// OnlineCount returns the number of connected users
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Conversations returns the sorted conversation ids the user's client belongs to.
func (r *Registry) Conversations(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[userID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(client.conversations))
	for id := range client.conversations {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ForEach calls fn for a snapshot of the connected clients.
func (r *Registry) ForEach(fn func(*ConnectedClient)) {
	r.mu.RLock()
	snapshot := make([]*ConnectedClient, 0, len(r.clients))
	for _, c := range r.clients {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()

	for _, c := range snapshot {
		fn(c)
	}
}

// Reset drops every client and room without closing connections.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = make(map[string]*ConnectedClient)
	r.rooms = make(map[string]map[string]struct{})
}

func (r *Registry) leaveAllLocked(client *ConnectedClient) {
	for id := range client.conversations {
		r.leaveRoomLocked(id, client.UserID)
	}
}
