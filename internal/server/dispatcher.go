package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/adcondev/convo-daemon/internal/protocol"
	"github.com/adcondev/convo-daemon/internal/queue"
	"github.com/adcondev/convo-daemon/internal/store"
)

// Outcome is how a broadcast reached one participant
type Outcome string

// Delivery outcomes
const (
	Delivered Outcome = "delivered"
	Queued    Outcome = "queued"
)

// DeliveryResult records the outcome for one participant
type DeliveryResult struct {
	UserID  string  `json:"userId"`
	Outcome Outcome `json:"outcome"`
	// Err is the send error that caused a fallback to the queue, if any.
	Err error `json:"-"`
}

// BroadcastReport aggregates a fan-out
type BroadcastReport struct {
	ConversationID string           `json:"conversationId"`
	Results        []DeliveryResult `json:"results"`
}

// Delivered counts direct sends
func (r BroadcastReport) Delivered() int { return r.count(Delivered) }

// Queued counts offline-queue fallbacks
func (r BroadcastReport) Queued() int { return r.count(Queued) }

func (r BroadcastReport) count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Dispatcher routes inbound frames and fans messages out to conversation participants.
type Dispatcher struct {
	registry     *Registry
	queue        *queue.OfflineQueue
	participants store.ParticipantStore
	users        store.UserStore
	typing       *FrameRateLimiter
	now          func() time.Time
}

// NewDispatcher wires the dispatcher. typing may be nil to disable typing rate limiting.
func NewDispatcher(registry *Registry, q *queue.OfflineQueue, participants store.ParticipantStore, users store.UserStore, typing *FrameRateLimiter) *Dispatcher {
	if typing == nil {
		typing = NewFrameRateLimiter(0)
	}
	return &Dispatcher{
		registry:     registry,
		queue:        q,
		participants: participants,
		users:        users,
		typing:       typing,
		now:          time.Now,
	}
}

// Registry exposes the connection registry
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Queue exposes the offline queue
func (d *Dispatcher) Queue() *queue.OfflineQueue { return d.queue }

// Connect admits an authenticated user, announces the session and flushes queued messages.
func (d *Dispatcher) Connect(ctx context.Context, userID string, t Transport) (*ConnectedClient, error) {
	client, err := d.registry.Admit(ctx, userID, t)
	if err != nil {
		return nil, err
	}

	if err := client.Send(ctx, protocol.Connected(userID, d.registry.Conversations(userID))); err != nil {
		d.registry.EvictClient(client)
		return nil, fmt.Errorf("send connected frame: %w", err)
	}

	if _, err := d.queue.Flush(ctx, userID, client); err != nil {
		log.Printf("[QUEUE] ⚠️ Queued messages for %s kept for next connection", userID)
	}
	return client, nil
}

// Disconnect evicts the client if it is still the user's current connection.
func (d *Dispatcher) Disconnect(client *ConnectedClient) {
	if d.registry.EvictClient(client) {
		d.typing.Forget(client.UserID)
	}
}

// BroadcastToConversation delivers msg to every active participant except excludeUserID.
// Online participants get a direct send; offline ones, or failed sends, are queued.
// Only a participant lookup failure is returned as an error.
func (d *Dispatcher) BroadcastToConversation(ctx context.Context, conversationID string, msg protocol.BroadcastMessage, excludeUserID string) (BroadcastReport, error) {
	report := BroadcastReport{ConversationID: conversationID}

	participants, err := d.participants.FindParticipants(ctx, conversationID)
	if err != nil {
		return report, fmt.Errorf("load participants of %s: %w", conversationID, err)
	}

	frame := protocol.Message(msg)
	for _, userID := range participants {
		if userID == excludeUserID {
			continue
		}

		result := DeliveryResult{UserID: userID, Outcome: Queued}
		if client, online := d.registry.Client(userID); online {
			if err := client.Send(ctx, frame); err != nil {
				result.Err = err
				log.Printf("[BROADCAST] ⚠️ Send to %s failed, queueing: %v", userID, err)
			} else {
				result.Outcome = Delivered
			}
		}
		if result.Outcome == Queued {
			d.queue.Enqueue(userID, conversationID, msg)
		}
		report.Results = append(report.Results, result)
	}

	log.Printf("[BROADCAST] 📣 %s message %s: %d delivered, %d queued",
		conversationID, msg.ID, report.Delivered(), report.Queued())
	return report, nil
}

// BroadcastTypingIndicator notifies the other online members of the conversation. Returns the number of frames delivered.
func (d *Dispatcher) BroadcastTypingIndicator(ctx context.Context, conversationID, userID string, isTyping bool) int {
	name, err := d.users.GetDisplayName(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[BROADCAST] ⚠️ Display name lookup for %s failed: %v", userID, err)
		}
		name = userID
	}
	return d.fanOutOnline(ctx, conversationID, userID, protocol.Typing(conversationID, userID, name, isTyping))
}

// BroadcastReadReceipt notifies the other online members that userID read the conversation.
func (d *Dispatcher) BroadcastReadReceipt(ctx context.Context, conversationID, userID string) int {
	return d.fanOutOnline(ctx, conversationID, userID, protocol.Read(conversationID, userID, d.now().UTC()))
}

// fanOutOnline sends to online room members except the actor. Failures are dropped, never queued.
func (d *Dispatcher) fanOutOnline(ctx context.Context, conversationID, actorID string, frame protocol.Frame) int {
	sent := 0
	for _, userID := range d.registry.OnlineParticipants(conversationID) {
		if userID == actorID {
			continue
		}
		client, ok := d.registry.Client(userID)
		if !ok {
			continue
		}
		if err := client.Send(ctx, frame); err != nil {
			log.Printf("[BROADCAST] %s to %s dropped: %v", frame.Type, userID, err)
			continue
		}
		sent++
	}
	return sent
}

// HandleMessage parses and routes one inbound frame. Protocol errors are answered on the same connection.
func (d *Dispatcher) HandleMessage(ctx context.Context, client *ConnectedClient, raw []byte) {
	frame, err := protocol.ParseInbound(raw)
	if err != nil {
		var unknown *protocol.UnknownTypeError
		if errors.As(err, &unknown) {
			log.Printf("[WS] ⚠️ Unknown message type from %s: %s", client.UserID, unknown.Type)
			d.sendError(ctx, client, protocol.CodeUnknownMessageType, "Unknown message type: "+unknown.Type)
			return
		}
		log.Printf("[WS] ⚠️ Invalid frame from %s: %v", client.UserID, err)
		d.sendError(ctx, client, protocol.CodeInvalidMessage, "Invalid message format")
		return
	}

	switch f := frame.(type) {
	case protocol.TypingFrame:
		if !d.registry.InRoom(client.UserID, f.ConversationID) {
			return
		}
		if !d.typing.Allow(client.UserID) {
			return
		}
		d.BroadcastTypingIndicator(ctx, f.ConversationID, client.UserID, f.IsTyping)
	case protocol.ReadFrame:
		if !d.registry.InRoom(client.UserID, f.ConversationID) {
			return
		}
		d.BroadcastReadReceipt(ctx, f.ConversationID, client.UserID)
	case protocol.JoinFrame:
		d.handleJoin(ctx, client, f.ConversationID)
	case protocol.LeaveFrame:
		d.registry.Leave(client.UserID, f.ConversationID)
	}
}

func (d *Dispatcher) handleJoin(ctx context.Context, client *ConnectedClient, conversationID string) {
	ok, err := d.participants.IsActiveParticipant(ctx, client.UserID, conversationID)
	if err != nil {
		log.Printf("[WS] ⚠️ Participation check for %s in %s failed: %v", client.UserID, conversationID, err)
		return
	}
	if !ok {
		log.Printf("[AUDIT] JOIN_DENIED | user=%s | conversation=%s", client.UserID, conversationID)
		return
	}
	d.registry.Join(client.UserID, conversationID)
}

func (d *Dispatcher) sendError(ctx context.Context, client *ConnectedClient, code protocol.ErrorCode, message string) {
	_ = client.Send(ctx, protocol.Error(code, message))
}

// Reset clears connections, rooms and queued messages.
func (d *Dispatcher) Reset() {
	d.registry.Reset()
	d.queue.Reset()
}
