package server

import (
	"context"
	"errors"
	"sync"

	"github.com/adcondev/convo-daemon/internal/protocol"
	"github.com/adcondev/convo-daemon/internal/queue"
	"github.com/adcondev/convo-daemon/internal/store"
)

var errSendFailed = errors.New("send failed")

// fakeTransport records frames in memory
type fakeTransport struct {
	mu       sync.Mutex
	frames   []protocol.Frame
	closed   bool
	reason   string
	failSend bool
}

func (f *fakeTransport) Send(_ context.Context, frame protocol.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend || f.closed {
		return errSendFailed
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeTransport) Close(reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.reason = reason
	return nil
}

func (f *fakeTransport) Frames() []protocol.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Frame(nil), f.frames...)
}

func (f *fakeTransport) FramesOfType(t protocol.FrameType) []protocol.Frame {
	var out []protocol.Frame
	for _, fr := range f.Frames() {
		if fr.Type == t {
			out = append(out, fr)
		}
	}
	return out
}

func (f *fakeTransport) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// failingParticipants returns errors for every lookup
type failingParticipants struct{}

func (failingParticipants) FindActiveParticipations(context.Context, string) ([]string, error) {
	return nil, errors.New("db down")
}

func (failingParticipants) FindParticipants(context.Context, string) ([]string, error) {
	return nil, errors.New("db down")
}

func (failingParticipants) IsActiveParticipant(context.Context, string, string) (bool, error) {
	return false, errors.New("db down")
}

type harness struct {
	store      *store.Memory
	registry   *Registry
	queue      *queue.OfflineQueue
	dispatcher *Dispatcher
}

func newHarness() *harness {
	mem := store.NewMemory()
	reg := NewRegistry(mem)
	q := queue.NewOfflineQueue(queue.DefaultCapacity)
	return &harness{
		store:      mem,
		registry:   reg,
		queue:      q,
		dispatcher: NewDispatcher(reg, q, mem, mem, nil),
	}
}

func (h *harness) connect(userID string) (*ConnectedClient, *fakeTransport) {
	t := &fakeTransport{}
	c, err := h.dispatcher.Connect(context.Background(), userID, t)
	if err != nil {
		panic(err)
	}
	return c, t
}
