package credentials

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": exp.Unix(),
	})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestAccessExpiry(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	got, ok := AccessExpiry(signedToken(t, exp))
	require.True(t, ok)
	assert.True(t, got.Equal(exp), "exp = %v, want %v", got, exp)

	_, ok = AccessExpiry("opaque-token")
	assert.False(t, ok)

	_, ok = AccessExpiry("")
	assert.False(t, ok)
}

func TestCredentialsExpiresWithin(t *testing.T) {
	t.Parallel()

	soon := Credentials{AccessToken: signedToken(t, time.Now().Add(10*time.Second))}
	later := Credentials{AccessToken: signedToken(t, time.Now().Add(time.Hour))}
	opaque := Credentials{AccessToken: "abc"}

	assert.True(t, soon.ExpiresWithin(30*time.Second))
	assert.False(t, later.ExpiresWithin(30*time.Second))
	assert.False(t, opaque.ExpiresWithin(30*time.Second))
}

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "new store should be anonymous")

	require.NoError(t, store.Set(ctx, Credentials{AccessToken: "a1", RefreshToken: "r1"}))
	got, err = store.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, Credentials{AccessToken: "a1", RefreshToken: "r1"}, *got)

	// wholesale overwrite, no merge of the old refresh token
	require.NoError(t, store.Set(ctx, Credentials{AccessToken: "a2"}))
	got, err = store.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, Credentials{AccessToken: "a2"}, *got)

	require.NoError(t, store.Clear(ctx))
	got, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Clear(ctx), "clearing twice is fine")
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	storeContract(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, Credentials{AccessToken: "a", RefreshToken: "r"}))

	got, err := store.Get(ctx)
	require.NoError(t, err)
	got.AccessToken = "mutated"

	again, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", again.AccessToken)
}

func TestMemoryStoreConcurrentNoTornReads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	pairs := []Credentials{
		{AccessToken: "a1", RefreshToken: "r1"},
		{AccessToken: "a2", RefreshToken: "r2"},
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				_ = store.Set(ctx, pairs[(i+j)%2])
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				c, err := store.Get(ctx)
				if err != nil || c == nil {
					continue
				}
				if c.AccessToken[1:] != c.RefreshToken[1:] {
					t.Errorf("torn read: %+v", *c)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestMemoryStoreRespectsContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryStore()
	assert.ErrorIs(t, store.Set(ctx, Credentials{AccessToken: "a"}), context.Canceled)
	_, err := store.Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	storeContract(t, NewFileStore(filepath.Join(t.TempDir(), "nested", "session.json")))
}

func TestFileStoreSurvivesReopenAndPermissions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")

	require.NoError(t, NewFileStore(path).Set(ctx, Credentials{AccessToken: "a", RefreshToken: "r"}))

	reopened := NewFileStore(path)
	got, err := reopened.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "r", got.RefreshToken)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(fileMode), info.Mode().Perm())
}

func TestFileStoreCorruptFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Get(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)
}
