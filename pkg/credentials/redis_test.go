package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis and skips when none is running.
// The integration build tag covers the same store against a container.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestNewRedisStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisStore should panic with nil redis client")
		}
	}()
	NewRedisStore(nil, "", 0)
}

func TestRedisStore_Keys(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	tests := []struct {
		prefix      string
		wantAccess  string
		wantRefresh string
	}{
		{"", "bbs:session:access_token", "bbs:session:refresh_token"},
		{"tenant:alice:", "tenant:alice:access_token", "tenant:alice:refresh_token"},
	}

	for _, tt := range tests {
		store := NewRedisStore(client, tt.prefix, 0)
		if got := store.AccessKey(); got != tt.wantAccess {
			t.Errorf("AccessKey() = %q, want %q", got, tt.wantAccess)
		}
		if got := store.RefreshKey(); got != tt.wantRefresh {
			t.Errorf("RefreshKey() = %q, want %q", got, tt.wantRefresh)
		}
	}
}

func TestRedisStore_Contract(t *testing.T) {
	client := setupTestRedis(t)
	storeContract(t, NewRedisStore(client, "", 0))
}

func TestRedisStore_TTL(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client, "ttl", time.Minute)
	ctx := context.Background()

	if err := store.Set(ctx, Credentials{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	ttl, err := client.TTL(ctx, store.AccessKey()).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want (0, 1m]", ttl)
	}
}
