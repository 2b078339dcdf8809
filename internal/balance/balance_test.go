package balance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"codeberg.org/freetier/gateway/internal/failpolicy"
	"codeberg.org/freetier/gateway/internal/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu        sync.Mutex
	calls     int
	remaining float64
	err       error
	now       func() time.Time
}

func (f *fakeFetcher) FetchBalance(context.Context) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	return &Snapshot{Remaining: f.remaining, Limit: 10, Usage: 10 - f.remaining, CheckedAt: f.now()}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setup(t *testing.T, remaining float64) (*Checker, *fakeFetcher, *clock) {
	t.Helper()

	clk := &clock{now: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)}
	store := kvstore.NewMemoryStore(kvstore.WithClock(clk.Now))
	t.Cleanup(func() { store.Close() }) //nolint:errcheck,gosec // test cleanup

	fetcher := &fakeFetcher{remaining: remaining, now: clk.Now}
	checker := NewChecker(store, fetcher, DefaultConfig(), WithClock(clk.Now))

	return checker, fetcher, clk
}

func TestCheck_CacheHitWithinTTL(t *testing.T) {
	checker, fetcher, clk := setup(t, 5)
	ctx := context.Background()

	first := checker.Check(ctx)
	assert.False(t, first.Cached)
	assert.True(t, first.Available)
	assert.Equal(t, 1, fetcher.calls)

	clk.Advance(DefaultTTL - time.Second)

	for i := 0; i < 10; i++ {
		res := checker.Check(ctx)
		assert.True(t, res.Cached)
		assert.Equal(t, 5.0, res.Remaining)
	}

	assert.Equal(t, 1, fetcher.calls, "cache hits must not call the account API")
}

func TestCheck_RefreshAfterTTL(t *testing.T) {
	checker, fetcher, clk := setup(t, 5)
	ctx := context.Background()

	checker.Check(ctx)
	clk.Advance(DefaultTTL)

	fetcher.remaining = 4
	res := checker.Check(ctx)

	assert.False(t, res.Cached)
	assert.Equal(t, 4.0, res.Remaining)
	assert.Equal(t, 2, fetcher.calls)
	assert.Equal(t, clk.Now(), res.CheckedAt)
}

func TestCheck_SafetyMarginBoundary(t *testing.T) {
	tests := []struct {
		name      string
		remaining float64
		available bool
	}{
		{"well above", 3, true},
		{"just above", DefaultSafetyMargin + 0.01, true},
		{"exactly at margin", DefaultSafetyMargin, false},
		{"below", 0.10, false},
		{"negative", -2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker, _, _ := setup(t, tt.remaining)
			res := checker.Check(context.Background())
			assert.Equal(t, tt.available, res.Available)
			assert.True(t, res.Known)
		})
	}
}

func TestCheck_UpstreamDownServesStaleCache(t *testing.T) {
	checker, fetcher, clk := setup(t, 7)
	ctx := context.Background()

	checker.Check(ctx)

	// far past the TTL
	clk.Advance(6 * time.Hour)
	fetcher.err = errors.New("dial tcp: i/o timeout")

	res := checker.Check(ctx)
	assert.True(t, res.Cached)
	assert.True(t, res.Available)
	assert.Equal(t, 7.0, res.Remaining)
	assert.Equal(t, 2, fetcher.calls)
}

func TestCheck_LongOutageKeepsExhaustedBalance(t *testing.T) {
	checker, fetcher, clk := setup(t, 0.10)
	ctx := context.Background()

	first := checker.Check(ctx)
	require.False(t, first.Available)

	fetcher.err = errors.New("dial tcp: connection refused")

	for _, outage := range []time.Duration{25 * time.Hour, 7 * 24 * time.Hour} {
		clk.Advance(outage)

		res := checker.Check(ctx)
		assert.False(t, res.Available, "an exhausted budget must not reopen during an outage")
		assert.True(t, res.Known)
		assert.True(t, res.Cached)
		assert.Equal(t, 0.10, res.Remaining)
	}
}

func TestCheck_UpstreamDownNoCacheFailsOpen(t *testing.T) {
	checker, fetcher, _ := setup(t, 0)
	fetcher.err = &StatusError{StatusCode: 503}

	res := checker.Check(context.Background())
	assert.True(t, res.Available)
	assert.False(t, res.Known)
	assert.False(t, res.Cached)
	assert.Equal(t, DefaultPlaceholderRemaining, res.Remaining)
}

func TestCheck_UpstreamDownNoCacheFailClosed(t *testing.T) {
	clk := &clock{now: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)}
	store := kvstore.NewMemoryStore()
	defer store.Close() //nolint:errcheck // test cleanup

	config := DefaultConfig()
	config.Policy = failpolicy.FailClosed

	checker := NewChecker(store, &fakeFetcher{err: errors.New("boom"), now: clk.Now}, config, WithClock(clk.Now))

	res := checker.Check(context.Background())
	assert.False(t, res.Available)
	assert.False(t, res.Known)
}

func TestCheck_ConcurrentRefreshLastWriteWins(t *testing.T) {
	checker, fetcher, _ := setup(t, 2)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := checker.Check(ctx)
			assert.Equal(t, 2.0, res.Remaining)
		}()
	}
	wg.Wait()

	require.GreaterOrEqual(t, fetcher.calls, 1)
	assert.True(t, checker.Check(ctx).Cached)
}
