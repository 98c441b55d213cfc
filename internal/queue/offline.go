// Package queue buffers messages for participants that are not connected.
package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adcondev/convo-daemon/internal/protocol"
)

// DefaultCapacity is the per-user buffer size
const DefaultCapacity = 100

// Sender delivers a frame to one client
type Sender interface {
	Send(ctx context.Context, frame protocol.Frame) error
}

// QueuedMessage is a message waiting for its recipient to reconnect
type QueuedMessage struct {
	ID             string                    `json:"id"`
	ConversationID string                    `json:"conversationId"`
	Message        protocol.BroadcastMessage `json:"message"`
	CreatedAt      time.Time                 `json:"createdAt"`
}

// Stats summarizes the queue for health checks
type Stats struct {
	Users    int `json:"users"`
	Messages int `json:"messages"`
	Dropped  int `json:"dropped"`
}

// OfflineQueue holds a bounded FIFO of messages per user
type OfflineQueue struct {
	mu       sync.Mutex
	items    map[string][]QueuedMessage
	capacity int
	dropped  int
	now      func() time.Time
}

// NewOfflineQueue creates a queue holding at most capacity messages per user.
func NewOfflineQueue(capacity int) *OfflineQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &OfflineQueue{
		items:    make(map[string][]QueuedMessage),
		capacity: capacity,
		now:      time.Now,
	}
}

// Enqueue appends a message for userID, dropping the oldest entry when full.
func (q *OfflineQueue) Enqueue(userID, conversationID string, msg protocol.BroadcastMessage) QueuedMessage {
	entry := QueuedMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Message:        msg,
		CreatedAt:      q.now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	pending := q.items[userID]
	if len(pending) >= q.capacity {
		overflow := len(pending) - q.capacity + 1
		pending = pending[overflow:]
		q.dropped += overflow
		log.Printf("[QUEUE] Offline queue full for %s, dropped %d oldest", userID, overflow)
	}
	q.items[userID] = append(pending, entry)
	return entry
}

// Flush sends every queued message for userID as one queued_messages frame.
// It reports whether anything was sent. On send failure the queue is left untouched.
func (q *OfflineQueue) Flush(ctx context.Context, userID string, sender Sender) (bool, error) {
	q.mu.Lock()
	snapshot := append([]QueuedMessage(nil), q.items[userID]...)
	q.mu.Unlock()

	if len(snapshot) == 0 {
		return false, nil
	}

	if err := sender.Send(ctx, protocol.QueuedMessages(group(snapshot))); err != nil {
		log.Printf("[QUEUE] ⚠️ Flush to %s failed, keeping %d messages: %v", userID, len(snapshot), err)
		return false, err
	}

	flushed := make(map[string]struct{}, len(snapshot))
	for _, m := range snapshot {
		flushed[m.ID] = struct{}{}
	}

	q.mu.Lock()
	remaining := q.items[userID][:0:0]
	for _, m := range q.items[userID] {
		if _, ok := flushed[m.ID]; !ok {
			remaining = append(remaining, m)
		}
	}
	if len(remaining) == 0 {
		delete(q.items, userID)
	} else {
		q.items[userID] = remaining
	}
	q.mu.Unlock()

	log.Printf("[QUEUE] 📤 Flushed %d queued messages to %s", len(snapshot), userID)
	return true, nil
}

// Pending returns a copy of the messages buffered for userID.
func (q *OfflineQueue) Pending(userID string) []QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]QueuedMessage(nil), q.items[userID]...)
}

// Len returns the number of messages buffered for userID.
func (q *OfflineQueue) Len(userID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items[userID])
}

// Capacity returns the per-user bound
func (q *OfflineQueue) Capacity() int {
	return q.capacity
}

// Stats returns totals across all users.
func (q *OfflineQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{Users: len(q.items), Dropped: q.dropped}
	for _, pending := range q.items {
		s.Messages += len(pending)
	}
	return s
}

// Reset discards all buffered messages.
func (q *OfflineQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = make(map[string][]QueuedMessage)
	q.dropped = 0
}

// group builds the summary payload, keeping conversations in first-seen order.
func group(pending []QueuedMessage) protocol.QueuedMessagesData {
	data := protocol.QueuedMessagesData{Count: len(pending)}
	index := make(map[string]int)

	for _, m := range pending {
		i, ok := index[m.ConversationID]
		if !ok {
			i = len(data.Conversations)
			index[m.ConversationID] = i
			data.Conversations = append(data.Conversations, protocol.QueuedConversation{
				ConversationID: m.ConversationID,
			})
		}
		data.Conversations[i].Count++
		data.Conversations[i].Messages = append(data.Conversations[i].Messages, m.Message)
	}
	return data
}
