package queue

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/adcondev/convo-daemon/internal/protocol"
)

type recordingSender struct {
	frames []protocol.Frame
	err    error
}

func (s *recordingSender) Send(_ context.Context, frame protocol.Frame) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func msg(id, conv string) protocol.BroadcastMessage {
	return protocol.BroadcastMessage{ID: id, ConversationID: conv, SenderID: "sender", Content: "hi " + id}
}

func TestEnqueueEvictsOldest(t *testing.T) {
	q := NewOfflineQueue(100)

	for i := 0; i < 101; i++ {
		q.Enqueue("u1", "c1", msg(fmt.Sprintf("m%d", i), "c1"))
	}

	pending := q.Pending("u1")
	if len(pending) != 100 {
		t.Fatalf("Len = %d; want 100", len(pending))
	}
	for _, p := range pending {
		if p.Message.ID == "m0" {
			t.Fatal("oldest message m0 should have been dropped")
		}
	}
	if pending[0].Message.ID != "m1" || pending[99].Message.ID != "m100" {
		t.Errorf("unexpected order: first=%s last=%s", pending[0].Message.ID, pending[99].Message.ID)
	}
	if s := q.Stats(); s.Dropped != 1 {
		t.Errorf("Stats().Dropped = %d; want 1", s.Dropped)
	}
}

func TestEnqueueGeneratesUniqueIDs(t *testing.T) {
	q := NewOfflineQueue(0)
	if q.Capacity() != DefaultCapacity {
		t.Fatalf("Capacity() = %d; want %d", q.Capacity(), DefaultCapacity)
	}

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		e := q.Enqueue("u1", "c1", msg("same", "c1"))
		if seen[e.ID] {
			t.Fatalf("duplicate queued id %s", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestFlushGroupsByConversation(t *testing.T) {
	q := NewOfflineQueue(DefaultCapacity)
	q.Enqueue("u3", "c1", msg("m1", "c1"))
	q.Enqueue("u3", "c2", msg("m2", "c2"))
	q.Enqueue("u3", "c1", msg("m3", "c1"))

	sender := &recordingSender{}
	sent, err := q.Flush(context.Background(), "u3", sender)
	if err != nil || !sent {
		t.Fatalf("Flush() = %v, %v; want true, nil", sent, err)
	}

	if len(sender.frames) != 1 {
		t.Fatalf("frames sent = %d; want 1", len(sender.frames))
	}
	f := sender.frames[0]
	if f.Type != protocol.TypeQueuedMessages {
		t.Fatalf("frame type = %s; want queued_messages", f.Type)
	}
	data := f.Data.(protocol.QueuedMessagesData)
	if data.Count != 3 || len(data.Conversations) != 2 {
		t.Fatalf("count=%d groups=%d; want 3 and 2", data.Count, len(data.Conversations))
	}
	if data.Conversations[0].ConversationID != "c1" || data.Conversations[0].Count != 2 {
		t.Errorf("first group = %+v", data.Conversations[0])
	}
	if data.Conversations[1].ConversationID != "c2" || data.Conversations[1].Count != 1 {
		t.Errorf("second group = %+v", data.Conversations[1])
	}
	if q.Len("u3") != 0 {
		t.Errorf("queue not empty after flush: %d", q.Len("u3"))
	}
	if s := q.Stats(); s.Users != 0 {
		t.Errorf("Stats().Users = %d; want 0", s.Users)
	}
}

func TestFlushFailureKeepsQueue(t *testing.T) {
	q := NewOfflineQueue(DefaultCapacity)
	q.Enqueue("u1", "c1", msg("m1", "c1"))
	q.Enqueue("u1", "c2", msg("m2", "c2"))
	before := q.Pending("u1")

	sendErr := errors.New("socket closed")
	sent, err := q.Flush(context.Background(), "u1", &recordingSender{err: sendErr})
	if sent || !errors.Is(err, sendErr) {
		t.Fatalf("Flush() = %v, %v; want false, %v", sent, err, sendErr)
	}

	if after := q.Pending("u1"); !reflect.DeepEqual(before, after) {
		t.Errorf("queue changed after failed flush:\nbefore=%+v\nafter=%+v", before, after)
	}
}

func TestFlushEmptyQueueSendsNothing(t *testing.T) {
	q := NewOfflineQueue(DefaultCapacity)
	sender := &recordingSender{}

	sent, err := q.Flush(context.Background(), "nobody", sender)
	if sent || err != nil {
		t.Fatalf("Flush() = %v, %v; want false, nil", sent, err)
	}
	if len(sender.frames) != 0 {
		t.Errorf("frames sent = %d; want 0", len(sender.frames))
	}
}

// enqueuingSender adds a message while the flush is in flight.
type enqueuingSender struct {
	q *OfflineQueue
}

func (s *enqueuingSender) Send(_ context.Context, _ protocol.Frame) error {
	s.q.Enqueue("u1", "c1", msg("late", "c1"))
	return nil
}

func TestFlushKeepsMessagesEnqueuedDuringSend(t *testing.T) {
	q := NewOfflineQueue(DefaultCapacity)
	q.Enqueue("u1", "c1", msg("early", "c1"))

	if _, err := q.Flush(context.Background(), "u1", &enqueuingSender{q: q}); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	pending := q.Pending("u1")
	if len(pending) != 1 || pending[0].Message.ID != "late" {
		t.Errorf("pending = %+v; want only the late message", pending)
	}
}

func TestReset(t *testing.T) {
	q := NewOfflineQueue(DefaultCapacity)
	q.Enqueue("u1", "c1", msg("m1", "c1"))
	q.Enqueue("u2", "c1", msg("m1", "c1"))

	q.Reset()

	if s := q.Stats(); s.Users != 0 || s.Messages != 0 {
		t.Errorf("Stats() after Reset = %+v", s)
	}
}
