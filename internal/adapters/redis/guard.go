package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-portal/internal/ports"
)

// DefaultGuardTTL outlives any authorization code a provider would still accept.
const DefaultGuardTTL = 10 * time.Minute

// GuardKeyPrefix namespaces callback guard claims.
const GuardKeyPrefix = "callback-guard:"

// Guard claims keys once across processes with SET NX.
type Guard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

var _ ports.ExecutionGuard = (*Guard)(nil)

// NewGuard creates a guard whose claims expire after ttl.
func NewGuard(client redis.UniversalClient, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	return &Guard{
		client: client,
		prefix: GuardKeyPrefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Acquire reports whether this call claimed key first.
func (g *Guard) Acquire(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("guard key cannot be empty")
	}
	ok, err := g.client.SetNX(ctx, g.prefix+key, g.now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// WithPrefix returns a copy of g that claims keys under prefix and expires them after ttl.
// A non-positive ttl keeps g's.
func (g *Guard) WithPrefix(prefix string, ttl time.Duration) *Guard {
	cp := *g
	cp.prefix = prefix
	if ttl > 0 {
		cp.ttl = ttl
	}
	return &cp
}
