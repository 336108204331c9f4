package bulkmail

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRelays(n int) []Relay {
	relays := make([]Relay, n)
	for i := range relays {
		relays[i] = Relay{
			Host:     fmt.Sprintf("smtp-%d.example.com", i),
			Port:     587,
			Username: fmt.Sprintf("user-%d", i),
			Password: "secret",
			Region:   "us-east-1",
		}
	}
	return relays
}

// fakeClock fires every After immediately and records the requested delays.
type fakeClock struct {
	mu     sync.Mutex
	afters []time.Duration
}

func (c *fakeClock) Now() time.Time { return time.Unix(0, 0) }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.afters = append(c.afters, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func (c *fakeClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.afters...)
}

// blockedClock never fires, forcing Acquire to wait on its context.
type blockedClock struct{}

func (blockedClock) Now() time.Time                       { return time.Unix(0, 0) }
func (blockedClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

func TestNewRelayPoolRequiresRelays(t *testing.T) {
	_, err := NewRelayPool(nil, PoolConfig{}, nil)
	require.ErrorIs(t, err, ErrNoRelays)
}

func TestAcquireRotatesInBursts(t *testing.T) {
	relays := testRelays(3)
	pool, err := NewRelayPool(relays, PoolConfig{BurstThreshold: 3}, nil)
	require.NoError(t, err)

	// The cursor stays on a relay until its burst is spent, then moves on.
	want := []string{
		relays[0].Identity(), relays[0].Identity(), relays[0].Identity(),
		relays[1].Identity(), relays[1].Identity(), relays[1].Identity(),
		relays[2].Identity(), relays[2].Identity(), relays[2].Identity(),
	}
	for i, expected := range want {
		relay, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		assert.Equal(t, expected, relay.Identity(), "acquire %d", i)
	}
}

func TestAcquireCountsAreBalanced(t *testing.T) {
	relays := testRelays(3)
	pool, err := NewRelayPool(relays, PoolConfig{BurstThreshold: 3}, nil,
		WithPoolClock(&fakeClock{}))
	require.NoError(t, err)

	counts := make(map[string]int)
	for i := 0; i < 90; i++ {
		relay, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		counts[relay.Identity()]++
	}

	for _, r := range relays {
		assert.Equal(t, 30, counts[r.Identity()], "relay %s", r.Identity())
	}
}

func TestAcquireSkipsDisabledRelays(t *testing.T) {
	relays := testRelays(3)
	pool, err := NewRelayPool(relays, PoolConfig{BurstThreshold: 2}, nil)
	require.NoError(t, err)

	pool.Disable(relays[1])

	for i := 0; i < 4; i++ {
		relay, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		assert.NotEqual(t, relays[1].Identity(), relay.Identity(), "acquire %d", i)
	}
}

func TestDisableIsIdempotent(t *testing.T) {
	relays := testRelays(2)
	pool, err := NewRelayPool(relays, PoolConfig{}, nil)
	require.NoError(t, err)

	pool.Disable(relays[0])
	pool.Disable(relays[0])
	assert.Equal(t, 1, pool.Disabled())
}

func TestDisableMatchesIdentityNotPassword(t *testing.T) {
	relays := testRelays(2)
	pool, err := NewRelayPool(relays, PoolConfig{}, nil)
	require.NoError(t, err)

	// The pause notice carries the identity but never the secret.
	reported := relays[0]
	reported.Password = ""
	pool.Disable(reported)

	assert.Equal(t, 1, pool.Disabled())
	relay, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, relays[1].Identity(), relay.Identity())
}

func TestAcquireFailsWhenAllRelaysDisabled(t *testing.T) {
	relays := testRelays(2)
	pool, err := NewRelayPool(relays, PoolConfig{}, nil)
	require.NoError(t, err)

	pool.Disable(relays[0])
	pool.Disable(relays[1])

	_, err = pool.Acquire(context.Background())
	require.ErrorIs(t, err, ErrRelaysExhausted)
}

func TestAcquireFailsWhenSendingPaused(t *testing.T) {
	gate := NewGate(&stubChecker{enabled: false}, nopLogger())
	pool, err := NewRelayPool(testRelays(2), PoolConfig{}, gate)
	require.NoError(t, err)

	_, err = pool.Acquire(context.Background())
	require.ErrorIs(t, err, ErrSendingPaused)
}

func TestAcquireBacksOffAfterFruitlessPass(t *testing.T) {
	clock := &fakeClock{}
	pool, err := NewRelayPool(testRelays(1),
		PoolConfig{BurstThreshold: 2, RetryDelay: 250 * time.Millisecond}, nil,
		WithPoolClock(clock))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := pool.Acquire(ctx)
		require.NoError(t, err)
	}

	// The single relay sits at its threshold now: the next acquisition has
	// to take a fruitless pass (which resets the counter), wait out the
	// retry delay, then succeed on the rescan.
	relay, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-0@smtp-0.example.com:587/us-east-1", relay.Identity())
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, clock.delays())
}

func TestAcquireHonorsContextDuringBackoff(t *testing.T) {
	pool, err := NewRelayPool(testRelays(1), PoolConfig{BurstThreshold: 1}, nil,
		WithPoolClock(blockedClock{}))
	require.NoError(t, err)

	_, err = pool.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pool.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentAcquireNeverOversellsBurst(t *testing.T) {
	relays := testRelays(3)
	pool, err := NewRelayPool(relays, PoolConfig{BurstThreshold: 3}, nil,
		WithPoolClock(&fakeClock{}))
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		counts = make(map[string]int)
		wg     sync.WaitGroup
	)
	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay, err := pool.Acquire(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			counts[relay.Identity()]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Nine acquisitions against three relays with burst three: every relay
	// hands out exactly its burst, no matter how the goroutines interleave.
	for _, r := range relays {
		assert.Equal(t, 3, counts[r.Identity()], "relay %s", r.Identity())
	}
}
