//go:build integration

package board

import (
	"context"
	"testing"
	"time"

	"github.com/Sternrassler/bbs-client/internal/testutil"
	"github.com/Sternrassler/bbs-client/pkg/aggregate"
	"github.com/Sternrassler/bbs-client/pkg/client"
	"github.com/Sternrassler/bbs-client/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "start redis container")

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	rc := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() {
		rc.Close()
		container.Terminate(ctx)
	})
	return rc
}

// newSharedClient builds one "process" on top of a Redis-backed session.
func newSharedClient(t *testing.T, mock *testutil.MockBackend, rc *redis.Client) (*Client, credentials.Store) {
	t.Helper()
	store := credentials.NewRedisStore(rc, "bbs:it", 0)
	cfg := client.DefaultConfig(mock.URL(), store)
	cfg.Retry = client.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	api, err := client.New(cfg)
	require.NoError(t, err)
	return New(api, aggregate.DefaultConfig()), store
}

func TestSharedRedisSession_Integration(t *testing.T) {
	rc := setupRedis(t)
	mock := testutil.NewMockBackend()
	defer mock.Close()
	ctx := context.Background()

	first, _ := newSharedClient(t, mock, rc)
	second, store := newSharedClient(t, mock, rc)

	require.NoError(t, first.Login(ctx, "alice", "secret"))

	me, err := second.Me(ctx)
	require.NoError(t, err, "second process uses the session the first one stored")
	assert.Equal(t, "alice", me.Username)

	mock.ExpireAccessTokens()
	_, err = first.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, mock.GetRefreshCount())

	_, err = second.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, mock.GetRefreshCount(), "refreshed pair is read back from redis")

	mock.ExpireAccessTokens()
	mock.RevokeRefreshTokens()

	_, err = second.Me(ctx)
	require.Error(t, err)
	assert.True(t, client.IsKind(err, client.KindUnauthorized))

	creds, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, creds, "terminated session is cleared for every process")

	refreshes := mock.GetRefreshCount()
	_, err = first.Me(ctx)
	assert.True(t, client.IsKind(err, client.KindUnauthorized))
	assert.Equal(t, refreshes, mock.GetRefreshCount(), "no exchange without a refresh token")
}
