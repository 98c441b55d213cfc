package server

import (
	"sync"
	"time"
)

// FrameRateLimiter restricts how frequently a single user
// can send a given kind of frame (typing indicators).
type FrameRateLimiter struct {
	mu        sync.Mutex
	attempts  map[string][]time.Time
	maxPerMin int
	now       func() time.Time
}

// NewFrameRateLimiter creates a limiter allowing maxPerMinute frames per user.
// A non-positive limit disables limiting.
func NewFrameRateLimiter(maxPerMinute int) *FrameRateLimiter {
	return &FrameRateLimiter{
		attempts:  make(map[string][]time.Time),
		maxPerMin: maxPerMinute,
		now:       time.Now,
	}
}

// Allow returns true if the user has not exceeded the rate limit.
func (rl *FrameRateLimiter) Allow(userID string) bool {
	if rl.maxPerMin <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-time.Minute)

	recent := make([]time.Time, 0, rl.maxPerMin)
	for _, t := range rl.attempts[userID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= rl.maxPerMin {
		rl.attempts[userID] = recent
		return false
	}

	rl.attempts[userID] = append(recent, now)
	return true
}

// Forget drops the history of a disconnected user.
func (rl *FrameRateLimiter) Forget(userID string) {
	rl.mu.Lock()
	delete(rl.attempts, userID)
	rl.mu.Unlock()
}
