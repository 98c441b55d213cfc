// Package auth provides bearer token verification for WebSocket clients and
// password-based operator sessions for the admin endpoints.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	SessionCookieName = "convo_admin"
	SessionDuration   = 15 * time.Minute
	MaxLoginAttempts  = 5
	LockoutDuration   = 5 * time.Minute
	CleanupInterval   = 5 * time.Minute
)

var (
	// ErrLockedOut is returned while an address is throttled after repeated failures.
	ErrLockedOut = errors.New("too many failed logins")
	// ErrBadPassword is returned for a wrong operator password.
	ErrBadPassword = errors.New("invalid password")
)

// OperatorSession is one logged-in admin console session
type OperatorSession struct {
	id        string
	RemoteIP  string    `json:"remoteIp"`
	StartedAt time.Time `json:"startedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// loginThrottle counts failed logins from one address
type loginThrottle struct {
	failures    int
	lockedUntil time.Time
}

// OperatorAuth guards the admin endpoints with a bcrypt password,
// cookie sessions and per-address login throttling.
type OperatorAuth struct {
	passwordHash []byte

	mu       sync.RWMutex
	sessions map[string]OperatorSession
	throttle map[string]loginThrottle
	now      func() time.Time
}

// NewOperatorAuth decodes passwordHashB64 (base64 bcrypt) and starts the expiry sweep bound to ctx.
// An empty hash disables operator authentication.
func NewOperatorAuth(ctx context.Context, passwordHashB64 string) *OperatorAuth {
	a := &OperatorAuth{
		sessions: make(map[string]OperatorSession),
		throttle: make(map[string]loginThrottle),
		now:      time.Now,
	}
	if passwordHashB64 != "" {
		hash, err := base64.StdEncoding.DecodeString(passwordHashB64)
		if err != nil {
			// Undecodable hash: stay enabled with a hash nothing matches.
			log.Printf("[AUTH] ❌ Failed to decode admin password hash: %v", err)
			hash = []byte("invalid")
		}
		a.passwordHash = hash
	}
	go a.sweepLoop(ctx)
	log.Printf("[AUTH] Operator auth initialized (enabled=%v)", a.Enabled())
	return a
}

// Enabled reports whether an operator password is configured.
func (a *OperatorAuth) Enabled() bool {
	return len(a.passwordHash) > 0
}

// Login checks the password for a request coming from remoteAddr and, on
// success, opens a session and writes its cookie to w.
func (a *OperatorAuth) Login(w http.ResponseWriter, remoteAddr, password string) (OperatorSession, error) {
	ip := RemoteIP(remoteAddr)
	if a.lockedOut(ip) {
		return OperatorSession{}, ErrLockedOut
	}
	if a.Enabled() && bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) != nil {
		a.recordFailure(ip)
		return OperatorSession{}, ErrBadPassword
	}

	a.mu.Lock()
	delete(a.throttle, ip)
	a.mu.Unlock()

	s := a.open(ip)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.id,
		Path:     "/admin",
		MaxAge:   int(SessionDuration.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	return s, nil
}

// Logout closes the request's session and expires its cookie.
func (a *OperatorAuth) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		a.mu.Lock()
		delete(a.sessions, cookie.Value)
		a.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/admin",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// Session returns the live session carried by the request cookie.
func (a *OperatorAuth) Session(r *http.Request) (OperatorSession, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return OperatorSession{}, false
	}

	a.mu.RLock()
	s, ok := a.sessions[cookie.Value]
	a.mu.RUnlock()
	if !ok || !a.now().Before(s.ExpiresAt) {
		return OperatorSession{}, false
	}
	return s, true
}

// Sessions lists live sessions, oldest first.
func (a *OperatorAuth) Sessions() []OperatorSession {
	now := a.now()
	a.mu.RLock()
	out := make([]OperatorSession, 0, len(a.sessions))
	for _, s := range a.sessions {
		if now.Before(s.ExpiresAt) {
			out = append(out, s)
		}
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (a *OperatorAuth) open(ip string) OperatorSession {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Printf("[AUTH] crypto/rand failed: %v", err)
		b = []byte(a.now().String())
	}
	now := a.now()
	s := OperatorSession{
		id:        hex.EncodeToString(b),
		RemoteIP:  ip,
		StartedAt: now,
		ExpiresAt: now.Add(SessionDuration),
	}
	a.mu.Lock()
	a.sessions[s.id] = s
	a.mu.Unlock()
	return s
}

func (a *OperatorAuth) lockedOut(ip string) bool {
	a.mu.RLock()
	t, ok := a.throttle[ip]
	a.mu.RUnlock()
	return ok && t.failures >= MaxLoginAttempts && a.now().Before(t.lockedUntil)
}

func (a *OperatorAuth) recordFailure(ip string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	t := a.throttle[ip]
	t.failures++
	if t.failures >= MaxLoginAttempts {
		t.lockedUntil = a.now().Add(LockoutDuration)
		log.Printf("[AUDIT] IP %s locked out for %v after %d failed attempts", ip, LockoutDuration, t.failures)
	}
	a.throttle[ip] = t
}

// sweep drops expired sessions and finished lockouts
func (a *OperatorAuth) sweep() {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, s := range a.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(a.sessions, id)
		}
	}
	for ip, t := range a.throttle {
		if t.failures >= MaxLoginAttempts && now.After(t.lockedUntil) {
			delete(a.throttle, ip)
		}
	}
}

func (a *OperatorAuth) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("[AUTH] Session sweep stopped")
			return
		case <-ticker.C:
			a.sweep()
		}
	}
}

// RemoteIP strips the port from an http.Request RemoteAddr.
func RemoteIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
