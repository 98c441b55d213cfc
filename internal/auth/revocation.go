package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// HashToken returns the key under which a token is revoked, so raw tokens are never stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// RedisRevocationList stores revoked token hashes with a TTL matching the token expiry.
type RedisRevocationList struct {
	client *redis.Client
	prefix string
}

// RedisConfig points at the revocation redis
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisRevocationList connects and pings redis.
func NewRedisRevocationList(ctx context.Context, c RedisConfig) (*RedisRevocationList, error) {
	rdb := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return &RedisRevocationList{client: rdb, prefix: "convo:revoked:"}, nil
}

func (l *RedisRevocationList) key(token string) string {
	return l.prefix + HashToken(token)
}

// IsRevoked reports whether the token hash is present.
func (l *RedisRevocationList) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(token)).Result()
	if err != nil {
		return false, errors.Wrap(err, "check revocation")
	}
	return n > 0, nil
}

// Revoke adds the token for ttl.
func (l *RedisRevocationList) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	return errors.Wrap(l.client.Set(ctx, l.key(token), time.Now().Unix(), ttl).Err(), "revoke token")
}

// Close releases the redis client
func (l *RedisRevocationList) Close() error {
	return l.client.Close()
}

// MemoryRevocationList is an in-process revocation list for dev mode and tests
type MemoryRevocationList struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
}

// NewMemoryRevocationList creates an empty list
func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{revoked: make(map[string]time.Time)}
}

func (l *MemoryRevocationList) IsRevoked(_ context.Context, token string) (bool, error) {
	l.mu.RLock()
	until, ok := l.revoked[HashToken(token)]
	l.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return until.IsZero() || time.Now().Before(until), nil
}

// Revoke adds the token; ttl <= 0 revokes forever.
func (l *MemoryRevocationList) Revoke(_ context.Context, token string, ttl time.Duration) error {
	var until time.Time
	if ttl > 0 {
		until = time.Now().Add(ttl)
	}
	l.mu.Lock()
	l.revoked[HashToken(token)] = until
	l.mu.Unlock()
	return nil
}
