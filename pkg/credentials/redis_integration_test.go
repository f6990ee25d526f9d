//go:build integration

package credentials

import (
	"context"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer starts a Redis container and returns a client.
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}
	return client, cleanup
}

func TestRedisStore_Integration_Contract(t *testing.T) {
	client, cleanup := setupRedisContainer(t)
	defer cleanup()

	storeContract(t, NewRedisStore(client, "it", 0))
}

func TestRedisStore_Integration_SharedAcrossInstances(t *testing.T) {
	client, cleanup := setupRedisContainer(t)
	defer cleanup()
	ctx := context.Background()

	writer := NewRedisStore(client, "shared", 0)
	reader := NewRedisStore(client, "shared", 0)

	if err := writer.Set(ctx, Credentials{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := reader.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.AccessToken != "a" || got.RefreshToken != "r" {
		t.Fatalf("Get() = %+v, want a/r", got)
	}
}

func TestRedisStore_Integration_NoTornPairs(t *testing.T) {
	client, cleanup := setupRedisContainer(t)
	defer cleanup()
	ctx := context.Background()
	store := NewRedisStore(client, "torn", 0)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				n := (i + j) % 2
				creds := Credentials{AccessToken: []string{"a0", "a1"}[n], RefreshToken: []string{"r0", "r1"}[n]}
				if err := store.Set(ctx, creds); err != nil {
					t.Errorf("Set() error = %v", err)
					return
				}
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c, err := store.Get(ctx)
				if err != nil {
					t.Errorf("Get() error = %v", err)
					return
				}
				if c != nil && c.AccessToken[1:] != c.RefreshToken[1:] {
					t.Errorf("torn read: %+v", *c)
					return
				}
			}
		}()
	}
	wg.Wait()
}
