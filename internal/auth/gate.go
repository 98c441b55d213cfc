package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

var (
	// ErrInvalidToken covers missing, malformed, expired or badly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked is returned for well-formed tokens on the revocation list.
	ErrTokenRevoked = errors.New("token revoked")
)

// TokenVerifier validates a bearer token and returns its claims
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// RevocationList reports tokens that were revoked before expiry
type RevocationList interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// Gate authenticates the bearer credential presented during the WebSocket handshake.
type Gate struct {
	verifier TokenVerifier
	revoked  RevocationList
}

// NewGate creates a gate. A nil revocation list disables revocation checks.
func NewGate(verifier TokenVerifier, revoked RevocationList) *Gate {
	return &Gate{verifier: verifier, revoked: revoked}
}

// Authenticate returns the user id carried by token.
// Errors wrap ErrInvalidToken or ErrTokenRevoked.
func (g *Gate) Authenticate(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: missing bearer token", ErrInvalidToken)
	}

	claims, err := g.verifier.Verify(ctx, token)
	if err != nil {
		if !errors.Is(err, ErrInvalidToken) {
			err = fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return "", err
	}
	if claims == nil || claims.Identity() == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	if g.revoked != nil {
		revoked, err := g.revoked.IsRevoked(ctx, token)
		if err != nil {
			// Fail closed when the revocation list is unreachable.
			log.Printf("[AUTH] ❌ Revocation check failed for %s: %v", claims.Identity(), err)
			return "", fmt.Errorf("%w: revocation check failed", ErrInvalidToken)
		}
		if revoked {
			return "", ErrTokenRevoked
		}
	}

	return claims.Identity(), nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
