package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/mmk-portal/internal/errors"
	"github.com/target/mmk-portal/internal/testutil"
)

func TestSessionStore_SetAndGet(t *testing.T) {
	client, _ := testutil.SetupMiniRedis(t)
	store := NewSessionStore(client, time.Hour)
	ctx := context.Background()

	scope := store.Scope("sess-1")
	require.NoError(t, scope.Set(ctx, "user", `{"id":"1"}`))

	got, err := scope.Get(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1"}`, got)
}

func TestSessionStore_ScopesAreIsolated(t *testing.T) {
	client, _ := testutil.SetupMiniRedis(t)
	store := NewSessionStore(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Scope("a").Set(ctx, "user", "alice"))

	_, err := store.Scope("b").Get(ctx, "user")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSessionStore_GetNonExistent(t *testing.T) {
	client, _ := testutil.SetupMiniRedis(t)
	store := NewSessionStore(client, time.Hour)

	_, err := store.Scope("nobody").Get(context.Background(), "user")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Scope("").Get(context.Background(), "user")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_EmptySessionIDRejectsWrites(t *testing.T) {
	client, _ := testutil.SetupMiniRedis(t)
	store := NewSessionStore(client, time.Hour)

	err := store.Scope("").Set(context.Background(), "user", "x")
	assert.Error(t, err)
}

func TestSessionStore_TTLRefreshedOnWrite(t *testing.T) {
	client, mr := testutil.SetupMiniRedis(t)
	store := NewSessionStoreWithPrefix(client, "test:", 30*time.Minute)
	ctx := context.Background()
	scope := store.Scope("s")

	require.NoError(t, scope.Set(ctx, "provider_session", "p"))
	assert.Equal(t, 30*time.Minute, mr.TTL("test:s"))

	mr.FastForward(20 * time.Minute)
	require.NoError(t, scope.Set(ctx, "user", "u"))
	assert.Equal(t, 30*time.Minute, mr.TTL("test:s"))

	mr.FastForward(31 * time.Minute)
	_, err := scope.Get(ctx, "user")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_DeleteAndDestroy(t *testing.T) {
	client, mr := testutil.SetupMiniRedis(t)
	store := NewSessionStore(client, time.Hour)
	ctx := context.Background()
	scope := store.Scope("s")

	require.NoError(t, scope.Set(ctx, "user", "u"))
	require.NoError(t, scope.Set(ctx, "provider_session", "p"))

	require.NoError(t, scope.Delete(ctx, "user"))
	_, err := scope.Get(ctx, "user")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Destroy(ctx, "s"))
	assert.False(t, mr.Exists("session:s"))
	require.NoError(t, store.Destroy(ctx, ""))
	require.NoError(t, store.Scope("").Delete(ctx, "user"))
}

func TestSessionStore_DefaultTTL(t *testing.T) {
	client, mr := testutil.SetupMiniRedis(t)
	store := NewSessionStore(client, 0)

	require.NoError(t, store.Scope("s").Set(context.Background(), "k", "v"))
	assert.Equal(t, DefaultSessionTTL, mr.TTL("session:s"))
}

func TestSessionStore_RedisUnavailable(t *testing.T) {
	client, mr := testutil.SetupMiniRedis(t)
	store := NewSessionStore(client, time.Hour)
	mr.Close()

	err := store.Scope("s").Set(context.Background(), "user", "u")
	require.Error(t, err)
	_, err = store.Scope("s").Get(context.Background(), "user")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
