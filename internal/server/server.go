package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/adcondev/convo-daemon/internal/auth"
	"github.com/adcondev/convo-daemon/internal/protocol"
)

// Authenticator resolves a bearer token to a user id
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// Config holds server configuration
type Config struct {
	QueueSize      int
	AllowedOrigins []string
	SendTimeout    time.Duration
	// AuthToken guards POST /internal/broadcast; empty accepts any caller.
	AuthToken string
}

// BroadcastJob is a fan-out request waiting for the worker
type BroadcastJob struct {
	ID             string                    `json:"id"`
	ConversationID string                    `json:"conversationId"`
	ExcludeUserID  string                    `json:"excludeUserId,omitempty"`
	Message        protocol.BroadcastMessage `json:"message"`
	ReceivedAt     time.Time                 `json:"receivedAt"`
}

// BroadcastRequest is the body of POST /internal/broadcast
type BroadcastRequest struct {
	ConversationID string                    `json:"conversationId"`
	ExcludeUserID  string                    `json:"excludeUserId,omitempty"`
	Message        protocol.BroadcastMessage `json:"message"`
}

// Response is the JSON body of the internal HTTP endpoints
type Response struct {
	ID       string `json:"id,omitempty"`
	Status   string `json:"status"`
	Mensaje  string `json:"mensaje,omitempty"`
	Current  int    `json:"current,omitempty"`
	Capacity int    `json:"capacity,omitempty"`
}

// Server accepts WebSocket clients and broadcast requests
type Server struct {
	dispatcher     *Dispatcher
	gate           Authenticator
	jobQueue       chan *BroadcastJob
	allowedOrigins []string
	sendTimeout    time.Duration
	authToken      string
	shutdownOnce   sync.Once
	shutdownChan   chan struct{}
}

// NewServer creates a new WebSocket server
func NewServer(cfg Config, dispatcher *Dispatcher, gate Authenticator) *Server {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	return &Server{
		dispatcher:     dispatcher,
		gate:           gate,
		jobQueue:       make(chan *BroadcastJob, cfg.QueueSize),
		allowedOrigins: cfg.AllowedOrigins,
		sendTimeout:    cfg.SendTimeout,
		authToken:      cfg.AuthToken,
		shutdownChan:   make(chan struct{}),
	}
}

// Dispatcher returns the dispatcher serving this server
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// QueueStatus returns current and max broadcast job queue size
func (s *Server) QueueStatus() (current, capacity int) {
	return len(s.jobQueue), cap(s.jobQueue)
}

// JobQueue returns the job queue channel (for worker consumption)
func (s *Server) JobQueue() <-chan *BroadcastJob {
	return s.jobQueue
}

// HandleWebSocket runs one connection from handshake to disconnect.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.allowedOrigins,
	})
	if err != nil {
		log.Printf("[WS] ❌ Error accepting client: %v", err)
		return
	}

	ctx := r.Context()

	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	userID, err := s.gate.Authenticate(ctx, token)
	if err != nil {
		code, msg := protocol.CodeInvalidToken, "Invalid or expired token"
		if errors.Is(err, auth.ErrTokenRevoked) {
			code, msg = protocol.CodeTokenRevoked, "Token has been revoked"
		}
		log.Printf("[AUTH] 🚫 Handshake rejected from %s: %v", r.RemoteAddr, err)
		s.reject(ctx, conn, code, msg)
		return
	}

	client, err := s.dispatcher.Connect(ctx, userID, newWSTransport(conn, s.sendTimeout))
	if err != nil {
		log.Printf("[WS] ❌ Admission failed for %s: %v", userID, err)
		_ = conn.Close(websocket.StatusInternalError, "admission failed")
		return
	}
	log.Printf("[WS] ➕ Client connected: %s (total: %d) from %s",
		userID, s.dispatcher.Registry().OnlineCount(), r.RemoteAddr)

	s.handleMessages(ctx, conn, client)

	s.dispatcher.Disconnect(client)
	_ = conn.Close(websocket.StatusNormalClosure, "disconnected")
	log.Printf("[WS] ➖ Client disconnected: %s (remaining: %d)", userID, s.dispatcher.Registry().OnlineCount())
}

// handleMessages processes incoming frames until the connection ends
func (s *Server) handleMessages(ctx context.Context, conn *websocket.Conn, client *ConnectedClient) {
	for {
		select {
		case <-s.shutdownChan:
			return
		default:
		}

		typ, data, err := conn.Read(ctx)
		if err != nil {
			// Normal closure or context cancelled
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway ||
				ctx.Err() != nil {
				return
			}
			log.Printf("[WS] Read ended for %s: %v", client.UserID, err)
			return
		}

		if typ != websocket.MessageText {
			_ = client.Send(ctx, protocol.Error(protocol.CodeInvalidMessage, "Binary frames are not supported"))
			continue
		}

		s.dispatcher.HandleMessage(ctx, client, data)
	}
}

// reject sends an auth error frame and terminates the handshake
func (s *Server) reject(ctx context.Context, conn *websocket.Conn, code protocol.ErrorCode, msg string) {
	writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = wsjson.Write(writeCtx, conn, protocol.Error(code, msg))
	_ = conn.Close(websocket.StatusPolicyViolation, string(code))
}

// HandleBroadcast accepts fan-out requests from the message-send workflow.
func (s *Server) HandleBroadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		log.Printf("[AUDIT] BROADCAST_UNAUTHORIZED | IP=%s", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, Response{Status: "error", Mensaje: "Unauthorized"})
		return
	}

	var req BroadcastRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Status: "error", Mensaje: "Invalid JSON body"})
		return
	}
	if msg := validateBroadcast(&req); msg != "" {
		writeJSON(w, http.StatusBadRequest, Response{Status: "error", Mensaje: msg})
		return
	}

	job := &BroadcastJob{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		ExcludeUserID:  req.ExcludeUserID,
		Message:        req.Message,
		ReceivedAt:     time.Now(),
	}

	// Try to enqueue (non-blocking)
	select {
	case s.jobQueue <- job:
		current, capacity := s.QueueStatus()
		log.Printf("[QUEUE] 📥 Broadcast queued: %s for %s (queue: %d/%d)", job.ID, job.ConversationID, current, capacity)
		writeJSON(w, http.StatusAccepted, Response{
			ID:       job.ID,
			Status:   "queued",
			Current:  current,
			Capacity: capacity,
		})
	default:
		current, capacity := s.QueueStatus()
		log.Printf("[QUEUE] 🚫 Queue full, rejecting broadcast for %s (%d/%d)", job.ConversationID, current, capacity)
		writeJSON(w, http.StatusServiceUnavailable, Response{
			Status:   "error",
			Mensaje:  "Queue full, please retry in a few seconds",
			Current:  current,
			Capacity: capacity,
		})
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	got := auth.BearerToken(r.Header.Get("Authorization"))
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.authToken)) == 1
}

func validateBroadcast(req *BroadcastRequest) string {
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	if req.ConversationID == "" {
		return "Field 'conversationId' is required"
	}
	if req.Message.ID == "" {
		return "Field 'message.id' is required"
	}
	if req.Message.ConversationID == "" {
		req.Message.ConversationID = req.ConversationID
	}
	if req.Message.ConversationID != req.ConversationID {
		return "Field 'message.conversationId' does not match 'conversationId'"
	}
	if req.Message.Attachments == nil {
		req.Message.Attachments = []protocol.Attachment{}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)

		registry := s.dispatcher.Registry()
		log.Printf("[WS] 🛑 Shutting down, disconnecting %d clients", registry.OnlineCount())

		registry.ForEach(func(c *ConnectedClient) {
			if ws, ok := c.transport.(*wsTransport); ok {
				_ = ws.conn.Close(websocket.StatusGoingAway, "Server shutting down")
				return
			}
			_ = c.Close("Server shutting down")
		})
	})
}
