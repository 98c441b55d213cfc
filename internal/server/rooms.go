package server

import "sort"

// Join adds an admitted user to a conversation room. Returns false if the user is offline.
// Callers must check participation first.
func (r *Registry) Join(userID, conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.clients[userID]
	if !ok {
		return false
	}
	client.conversations[conversationID] = struct{}{}
	r.joinRoomLocked(conversationID, userID)
	return true
}

// Leave removes the user from a conversation room.
func (r *Registry) Leave(userID, conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.clients[userID]
	if !ok {
		return false
	}
	if _, member := client.conversations[conversationID]; !member {
		return false
	}
	delete(client.conversations, conversationID)
	r.leaveRoomLocked(conversationID, userID)
	return true
}

// InRoom reports whether userID is an online member of the conversation.
func (r *Registry) InRoom(userID, conversationID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[conversationID][userID]
	return ok
}

// OnlineParticipants returns the sorted online members of a conversation.
func (r *Registry) OnlineParticipants(conversationID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[conversationID]
	out := make([]string, 0, len(room))
	for userID := range room {
		out = append(out, userID)
	}
	sort.Strings(out)
	return out
}

// RoomCount returns the number of rooms with at least one online member
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) joinRoomLocked(conversationID, userID string) {
	room := r.rooms[conversationID]
	if room == nil {
		room = make(map[string]struct{})
		r.rooms[conversationID] = room
	}
	room[userID] = struct{}{}
}

func (r *Registry) leaveRoomLocked(conversationID, userID string) {
	room := r.rooms[conversationID]
	if room == nil {
		return
	}
	delete(room, userID)
	if len(room) == 0 {
		delete(r.rooms, conversationID)
	}
}
