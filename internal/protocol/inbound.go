package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound is one of TypingFrame, ReadFrame, JoinFrame or LeaveFrame.
type Inbound interface {
	Conversation() string
	inbound()
}

// TypingFrame reports that the sender started or stopped typing
type TypingFrame struct {
	ConversationID string
	IsTyping       bool
}

// ReadFrame marks a conversation as read by the sender
type ReadFrame struct {
	ConversationID string
}

// JoinFrame asks to receive realtime traffic for a conversation
type JoinFrame struct {
	ConversationID string
}

// LeaveFrame stops realtime traffic for a conversation
type LeaveFrame struct {
	ConversationID string
}

func (f TypingFrame) Conversation() string { return f.ConversationID }
func (f ReadFrame) Conversation() string   { return f.ConversationID }
func (f JoinFrame) Conversation() string   { return f.ConversationID }
func (f LeaveFrame) Conversation() string  { return f.ConversationID }

func (TypingFrame) inbound() {}
func (ReadFrame) inbound()   {}
func (JoinFrame) inbound()   {}
func (LeaveFrame) inbound()  {}

// ParseError is returned for frames that are not valid JSON envelopes
// or lack required fields.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "invalid frame: " + e.Reason + ": " + e.Err.Error()
	}
	return "invalid frame: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// UnknownTypeError is returned for well-formed frames of a type the server does not accept.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type: %q", e.Type)
}

type envelope struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversationId"`
	Data           json.RawMessage `json:"data"`
}

type typingData struct {
	IsTyping *bool `json:"isTyping"`
}

// ParseInbound decodes a raw client frame into its variant.
func ParseInbound(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ParseError{Reason: "malformed JSON", Err: err}
	}
	if env.Type == "" {
		return nil, &ParseError{Reason: "missing type"}
	}

	switch FrameType(env.Type) {
	case TypeTyping, TypeRead, TypeJoin, TypeLeave:
	default:
		return nil, &UnknownTypeError{Type: env.Type}
	}

	convID := strings.TrimSpace(env.ConversationID)
	if convID == "" {
		return nil, &ParseError{Reason: "missing conversationId"}
	}

	switch FrameType(env.Type) {
	case TypeTyping:
		var d typingData
		if len(env.Data) > 0 && string(env.Data) != "null" {
			if err := json.Unmarshal(env.Data, &d); err != nil {
				return nil, &ParseError{Reason: "malformed typing data", Err: err}
			}
		}
		if d.IsTyping == nil {
			return nil, &ParseError{Reason: "typing frame requires data.isTyping"}
		}
		return TypingFrame{ConversationID: convID, IsTyping: *d.IsTyping}, nil
	case TypeRead:
		return ReadFrame{ConversationID: convID}, nil
	case TypeJoin:
		return JoinFrame{ConversationID: convID}, nil
	default:
		return LeaveFrame{ConversationID: convID}, nil
	}
}
