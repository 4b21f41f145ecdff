package redis

// Package redis provides Redis-based adapters for the portal.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/target/mmk-portal/internal/errors"
	"github.com/target/mmk-portal/internal/ports"
)

// DefaultSessionTTL bounds how long an idle browser session keeps its storage.
const DefaultSessionTTL = 8 * time.Hour

// ErrNotFound is returned when a key is missing from a session scope.
var ErrNotFound = apperrors.NotFound("session key not found")

var errEmptySessionID = errors.New("session ID cannot be empty")

// SessionStore keeps per-browser-session key/value data in one Redis hash per session.
// Every write refreshes the hash TTL.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ ports.SessionStorage = (*SessionStore)(nil)

// NewSessionStore creates a new Redis-based session store.
func NewSessionStore(client redis.UniversalClient, ttl time.Duration) *SessionStore {
	return NewSessionStoreWithPrefix(client, "session:", ttl)
}

// NewSessionStoreWithPrefix creates a Redis session store with a custom key prefix.
func NewSessionStoreWithPrefix(client redis.UniversalClient, prefix string, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Scope returns the key/value view of one browser session.
func (s *SessionStore) Scope(sessionID string) ports.KeyValueStore {
	return scopedStore{store: s, sessionID: sessionID}
}

// Destroy removes every key of sessionID.
func (s *SessionStore) Destroy(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil // Nothing to delete
	}
	if err := s.client.Del(ctx, s.prefix+sessionID).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

type scopedStore struct {
	store     *SessionStore
	sessionID string
}

func (c scopedStore) key() (string, error) {
	if c.sessionID == "" {
		return "", errEmptySessionID
	}
	return c.store.prefix + c.sessionID, nil
}

func (c scopedStore) Set(ctx context.Context, field, value string) error {
	key, err := c.key()
	if err != nil {
		return err
	}
	_, err = c.store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, field, value)
		pipe.Expire(ctx, key, c.store.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (c scopedStore) Get(ctx context.Context, field string) (string, error) {
	key, err := c.key()
	if err != nil {
		return "", ErrNotFound
	}
	value, err := c.store.client.HGet(ctx, key, field).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("redis hget: %w", err)
	}
	return value, nil
}

func (c scopedStore) Delete(ctx context.Context, field string) error {
	key, err := c.key()
	if err != nil {
		return nil // Nothing to delete
	}
	if err := c.store.client.HDel(ctx, key, field).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}
