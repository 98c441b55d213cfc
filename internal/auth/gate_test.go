package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

type failingRevocationList struct{}

func (failingRevocationList) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestGateAuthenticate(t *testing.T) {
	ctx := context.Background()

	valid, _, err := IssueToken(testSecret, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	revoked, _, _ := IssueToken(testSecret, "user-2", time.Hour)
	otherKey, _, _ := IssueToken("another-secret", "user-3", time.Hour)

	expiredClaims := Claims{
		UserID: "user-4",
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	expired, _ := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, expiredClaims).SignedString([]byte(testSecret))

	noExpiry, _ := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, Claims{UserID: "user-5"}).SignedString([]byte(testSecret))

	list := NewMemoryRevocationList()
	_ = list.Revoke(ctx, revoked, 0)
	gate := NewGate(NewJWTVerifier(testSecret), list)

	tests := []struct {
		name     string
		token    string
		wantUser string
		wantErr  error
	}{
		{name: "Valid token", token: valid, wantUser: "user-1"},
		{name: "Empty token", token: "", wantErr: ErrInvalidToken},
		{name: "Garbage token", token: "not-a-jwt", wantErr: ErrInvalidToken},
		{name: "Wrong signing key", token: otherKey, wantErr: ErrInvalidToken},
		{name: "Expired token", token: expired, wantErr: ErrInvalidToken},
		{name: "Token without expiry", token: noExpiry, wantErr: ErrInvalidToken},
		{name: "Revoked token", token: revoked, wantErr: ErrTokenRevoked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := gate.Authenticate(ctx, tt.token)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Authenticate() error = %v; want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() unexpected error: %v", err)
			}
			if user != tt.wantUser {
				t.Errorf("Authenticate() = %q; want %q", user, tt.wantUser)
			}
		})
	}
}

func TestGateFailsClosedWhenRevocationUnavailable(t *testing.T) {
	token, _, _ := IssueToken(testSecret, "user-1", time.Hour)
	gate := NewGate(NewJWTVerifier(testSecret), failingRevocationList{})

	if _, err := gate.Authenticate(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Authenticate() error = %v; want ErrInvalidToken", err)
	}
}

func TestGateWithoutRevocationList(t *testing.T) {
	token, _, _ := IssueToken(testSecret, "user-1", time.Hour)
	gate := NewGate(NewJWTVerifier(testSecret), nil)

	if user, err := gate.Authenticate(context.Background(), token); err != nil || user != "user-1" {
		t.Errorf("Authenticate() = %q, %v", user, err)
	}
}

func TestMemoryRevocationExpires(t *testing.T) {
	ctx := context.Background()
	list := NewMemoryRevocationList()
	_ = list.Revoke(ctx, "tok", time.Nanosecond)
	time.Sleep(time.Millisecond)

	if revoked, _ := list.IsRevoked(ctx, "tok"); revoked {
		t.Error("revocation should have expired")
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer  xyz ": "xyz",
		"Basic abc":    "",
		"Bearer ":      "",
		"":             "",
	}
	for header, want := range tests {
		if got := BearerToken(header); got != want {
			t.Errorf("BearerToken(%q) = %q; want %q", header, got, want)
		}
	}
}
