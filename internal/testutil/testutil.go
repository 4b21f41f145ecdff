// Package testutil provides testing helpers shared across packages.
package testutil

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// SetupMiniRedis starts an in-process Redis server for the test and returns a client bound to it.
// Both are closed when the test ends.
func SetupMiniRedis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("warning: failed to close redis client: %v", err)
		}
	})
	return client, mr
}

// SetupTestRedis returns a Redis client for tests.
//
// When REDIS_ADDR is set the tests run against that server (DB from TEST_REDIS_DB,
// default 1) and the DB is flushed first; otherwise an in-process miniredis is used.
// With TEST_REQUIRE_REDIS set, an unreachable REDIS_ADDR fails the test instead of
// skipping it.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		client, _ := SetupMiniRedis(t)
		return client
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: testRedisDB(t)})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if cerr := client.Close(); cerr != nil {
			t.Logf("warning: failed to close redis client after ping error: %v", cerr)
		}
		if requireRedis() {
			t.Fatalf("Redis not available for testing at %s: %v", addr, err)
		}
		t.Skipf("Redis not available for testing at %s: %v", addr, err)
	}

	// Clean up any existing test data
	client.FlushDB(ctx)
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("warning: failed to close redis client: %v", err)
		}
	})
	return client
}

func testRedisDB(t testing.TB) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
		t.Logf("Invalid TEST_REDIS_DB=%q, using DB=1", v)
	}
	return 1
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }

// FixedTimeFunc returns a time function that always returns the given time.
func FixedTimeFunc(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// TestTime returns a fixed, second-aligned time for deterministic tests.
func TestTime() time.Time {
	return time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
}
