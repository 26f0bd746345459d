package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/filegate/filegate/core/gate"
	"github.com/filegate/filegate/core/infra/redisutil"
)

const (
	defaultRedisURL = "redis://localhost:6379"
	// session TTL bounds retention of transfers whose metadata never
	// completes.
	defaultSessionTTL     = 12 * time.Hour
	defaultRedisOpTimeout = 2 * time.Second

	transferIndexKey = "transfers:index"
)

// SessionStore implements gate.Store over Redis: plain string keys with a
// session TTL, plus an insertion-ordered list of transfer guids backing the
// heuristic binding scan. Writes are last-writer-wins per key.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore constructs a Redis-backed store from a redis:// URL. A
// non-positive ttl falls back to the default session retention.
func NewSessionStore(url string, ttl time.Duration) (*SessionStore, error) {
	if url == "" {
		url = defaultRedisURL
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	client, err := redisutil.NewClient(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &SessionStore{client: client, ttl: ttl}, nil
}

// Get returns the value at key, or gate.ErrNotFound when absent.
func (s *SessionStore) Get(ctx context.Context, key string) ([]byte, error) {
	cctx, cancel := s.opContext(ctx)
	defer cancel()
	val, err := s.client.Get(cctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, gate.ErrNotFound
		}
		return nil, err
	}
	return val, nil
}

// Set stores the value at key with the session TTL.
func (s *SessionStore) Set(ctx context.Context, key string, value []byte) error {
	cctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.client.Set(cctx, key, value, s.ttl).Err()
}

// IndexAppend appends a guid to the insertion-ordered transfer index.
// Concurrent first-fragment races can append a guid twice; the scan
// tolerates duplicates because the first match wins either way.
func (s *SessionStore) IndexAppend(ctx context.Context, member string) error {
	cctx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.client.RPush(cctx, transferIndexKey, member).Err(); err != nil {
		return err
	}
	return s.client.Expire(cctx, transferIndexKey, s.ttl).Err()
}

// IndexScan returns the transfer guids in insertion order.
func (s *SessionStore) IndexScan(ctx context.Context) ([]string, error) {
	cctx, cancel := s.opContext(ctx)
	defer cancel()
	members, err := s.client.LRange(cctx, transferIndexKey, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return members, nil
}

// Close closes the underlying Redis client.
func (s *SessionStore) Close() error {
	return s.client.Close()
}

func (s *SessionStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(ctx), defaultRedisOpTimeout)
}
