package kvstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStore_GetPut(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close() //nolint:errcheck // test cleanup

	_, err := store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, store.Put(ctx, "k", []byte("v1"), time.Minute))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))

	// overwrite, not append
	require.NoError(t, store.Put(ctx, "k", []byte("v2"), time.Minute))
	got, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(WithClock(clock.Now))
	defer store.Close() //nolint:errcheck // test cleanup

	require.NoError(t, store.Put(ctx, "short", []byte("x"), time.Minute))
	require.NoError(t, store.Put(ctx, "forever", []byte("y"), 0))

	clock.Advance(59 * time.Second)
	_, err := store.Get(ctx, "short")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = store.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)

	clock.Advance(365 * 24 * time.Hour)
	_, err = store.Get(ctx, "forever")
	assert.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_ValueIsCopied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close() //nolint:errcheck // test cleanup

	value := []byte("abc")
	require.NoError(t, store.Put(ctx, "k", value, 0))
	value[0] = 'z'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestMemoryStore_IncrConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close() //nolint:errcheck // test cleanup

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Incr(ctx, "n", time.Hour)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := store.Incr(ctx, "n", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(51), n)
}

func TestMemoryStore_CloseTwice(t *testing.T) {
	store := NewMemoryStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Options{Backend: "etcd"})
	assert.Error(t, err)

	_, err = Open(context.Background(), Options{Backend: BackendRedis})
	assert.Error(t, err)

	store, err := Open(context.Background(), Options{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	store.Close() //nolint:errcheck,gosec // test cleanup
}
