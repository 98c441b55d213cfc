// Package store provides read access to conversation participants and user profiles.
package store

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a user has no profile
var ErrNotFound = errors.New("not found")

// ParticipantStore answers membership questions about conversations
type ParticipantStore interface {
	// FindActiveParticipations lists the conversations a user actively participates in.
	FindActiveParticipations(ctx context.Context, userID string) ([]string, error)
	// FindParticipants lists the active participants of a conversation.
	FindParticipants(ctx context.Context, conversationID string) ([]string, error)
	IsActiveParticipant(ctx context.Context, userID, conversationID string) (bool, error)
}

// UserStore resolves display names
type UserStore interface {
	GetDisplayName(ctx context.Context, userID string) (string, error)
}
