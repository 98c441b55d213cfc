// Package protocol define los frames JSON intercambiados por WebSocket.
package protocol

import (
	"time"
)

// FrameType identifies the envelope variant
type FrameType string

// Frame types
const (
	TypeMessage        FrameType = "message"
	TypeTyping         FrameType = "typing"
	TypeRead           FrameType = "read"
	TypeJoin           FrameType = "join"
	TypeLeave          FrameType = "leave"
	TypeError          FrameType = "error"
	TypeConnected      FrameType = "connected"
	TypeQueuedMessages FrameType = "queued_messages"
)

// ErrorCode is the machine-readable code carried by error frames
type ErrorCode string

// Error codes
const (
	CodeInvalidToken       ErrorCode = "AUTH_INVALID_TOKEN"
	CodeTokenRevoked       ErrorCode = "AUTH_TOKEN_REVOKED"
	CodeUnknownMessageType ErrorCode = "UNKNOWN_MESSAGE_TYPE"
	CodeInvalidMessage     ErrorCode = "INVALID_MESSAGE"
)

// Frame is the outgoing envelope
type Frame struct {
	Type           FrameType `json:"type"`
	ConversationID string    `json:"conversationId,omitempty"`
	Data           any       `json:"data,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// Attachment is a file reference attached to a message
type Attachment struct {
	ID       string `json:"id,omitempty"`
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// BroadcastMessage is an immutable snapshot of a persisted message
type BroadcastMessage struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	SenderID       string       `json:"senderId"`
	SenderName     string       `json:"senderName"`
	Content        string       `json:"content"`
	Type           string       `json:"type"`
	Attachments    []Attachment `json:"attachments"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// ConnectedData is the payload of the connected frame
type ConnectedData struct {
	UserID          string   `json:"userId"`
	ConversationIDs []string `json:"conversationIds"`
}

// TypingData is the payload of an outgoing typing frame
type TypingData struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	IsTyping       bool   `json:"isTyping"`
}

// ReadData is the payload of an outgoing read receipt
type ReadData struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// ErrorData is the payload of an error frame
type ErrorData struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// QueuedConversation groups the buffered messages of one conversation
type QueuedConversation struct {
	ConversationID string             `json:"conversationId"`
	Count          int                `json:"count"`
	Messages       []BroadcastMessage `json:"messages"`
}

// QueuedMessagesData is the payload of the queued_messages summary frame
type QueuedMessagesData struct {
	Count         int                  `json:"count"`
	Conversations []QueuedConversation `json:"conversations"`
}

// Connected builds the frame sent once after admission.
func Connected(userID string, conversationIDs []string) Frame {
	if conversationIDs == nil {
		conversationIDs = []string{}
	}
	return Frame{
		Type: TypeConnected,
		Data: ConnectedData{UserID: userID, ConversationIDs: conversationIDs},
	}
}

// Message wraps a broadcast message.
func Message(msg BroadcastMessage) Frame {
	return Frame{Type: TypeMessage, ConversationID: msg.ConversationID, Data: msg}
}

// Typing builds a typing indicator frame.
func Typing(conversationID, userID, userName string, isTyping bool) Frame {
	return Frame{
		Type:           TypeTyping,
		ConversationID: conversationID,
		Data: TypingData{
			ConversationID: conversationID,
			UserID:         userID,
			UserName:       userName,
			IsTyping:       isTyping,
		},
	}
}

// Read builds a read receipt frame.
func Read(conversationID, userID string, readAt time.Time) Frame {
	return Frame{
		Type:           TypeRead,
		ConversationID: conversationID,
		Data:           ReadData{UserID: userID, ReadAt: readAt},
	}
}

// QueuedMessages builds the offline summary frame.
func QueuedMessages(data QueuedMessagesData) Frame {
	return Frame{Type: TypeQueuedMessages, Data: data}
}

// Error builds an error frame.
func Error(code ErrorCode, message string) Frame {
	return Frame{
		Type:  TypeError,
		Data:  ErrorData{Code: code, Message: message},
		Error: message,
	}
}
