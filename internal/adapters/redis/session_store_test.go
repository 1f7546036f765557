package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	apperrors "github.com/dealshub/dealshub-go/internal/errors"
	"github.com/dealshub/dealshub-go/internal/testutil"
)

func browserSession(id string) domainauth.BrowserSession {
	return domainauth.BrowserSession{
		ID: id,
		Backend: &domainauth.Session{
			AccessToken:  "access",
			RefreshToken: "refresh",
			ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
			User:         domainauth.Principal{ID: "user-123", Email: "user@example.com"},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		ExpiresAt: time.Now().Add(30 * time.Minute),
	}
}

func TestSessionStore_SaveAndGet(t *testing.T) {
	client := testutil.SetupTestRedis(t)

	store := NewSessionStore(client, WithKeyPrefix("test:session:"))
	ctx := context.Background()

	session := browserSession("test-session-1")
	require.NoError(t, store.Save(ctx, session))

	retrieved, err := store.Get(ctx, "test-session-1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, retrieved.ID)
	assert.Equal(t, "user-123", retrieved.UserID())
	assert.Equal(t, session.Backend.AccessToken, retrieved.Backend.AccessToken)
	assert.WithinDuration(t, session.ExpiresAt, retrieved.ExpiresAt, time.Second)

	ttl, err := client.TTL(ctx, "test:session:test-session-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 29*time.Minute)
}

func TestSessionStore_GetNonExistent(t *testing.T) {
	client := testutil.SetupTestRedis(t)

	store := NewSessionStore(client)
	_, err := store.Get(context.Background(), "non-existent")
	assert.Equal(t, ErrNotFound, err)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = store.Get(context.Background(), "")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSessionStore_Delete(t *testing.T) {
	client := testutil.SetupTestRedis(t)

	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, browserSession("test-session-delete")))
	require.NoError(t, store.Delete(ctx, "test-session-delete"))
	require.NoError(t, store.Delete(ctx, ""))

	_, err := store.Get(ctx, "test-session-delete")
	assert.Equal(t, ErrNotFound, err)
}

func TestSessionStore_SaveRejectsInvalid(t *testing.T) {
	client := testutil.SetupTestRedis(t)

	store := NewSessionStore(client)
	ctx := context.Background()

	err := store.Save(ctx, domainauth.BrowserSession{ExpiresAt: time.Now().Add(time.Hour)})
	assert.True(t, apperrors.IsValidation(err))

	expired := browserSession("expired")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	err = store.Save(ctx, expired)
	assert.True(t, apperrors.IsValidation(err))
}

func TestSessionStore_GetDropsExpiredRecord(t *testing.T) {
	client := testutil.SetupTestRedis(t)

	store := NewSessionStore(client)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, browserSession("stale")))

	store.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err := store.Get(ctx, "stale")
	assert.Equal(t, ErrNotFound, err)

	exists, err := client.Exists(ctx, defaultSessionPrefix+"stale").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestSessionStore_List(t *testing.T) {
	client := testutil.SetupTestRedis(t)

	store := NewSessionStore(client, WithKeyPrefix("test:list:"))
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, browserSession("a")))
	require.NoError(t, store.Save(ctx, browserSession("b")))

	require.NoError(t, client.Set(ctx, "test:list:garbage", "not json", time.Minute).Err())
	require.NoError(t, client.Set(ctx, "test:other:c", "{}", time.Minute).Err())

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestSessionStore_ListSpansBatches(t *testing.T) {
	client := testutil.SetupTestRedis(t)

	store := NewSessionStore(client, WithKeyPrefix("test:batch:"))
	ctx := context.Background()
	for i := range listBatchSize + 5 {
		require.NoError(t, store.Save(ctx, browserSession(fmt.Sprintf("s-%03d", i))))
	}

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, listBatchSize+5)
}
