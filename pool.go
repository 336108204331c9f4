package bulkmail

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// relayState pairs a relay identity with its mutable runtime state. All
// access happens under the pool mutex.
type relayState struct {
	relay    Relay
	usage    int
	disabled bool
}

// RelayPool owns the relay list, the rotation cursor and the burst
// throttle. All methods are safe for concurrent use; cursor, usage counts
// and disabled flags only ever change under a single mutex, so acquisition
// and disablement never interleave partially.
type RelayPool struct {
	mu     sync.Mutex
	relays []*relayState
	cursor int

	burst      int
	retryDelay time.Duration

	gate  *Gate
	clock Clock
	log   zerolog.Logger
}

// PoolOption configures a RelayPool beyond its PoolConfig.
type PoolOption func(*RelayPool)

// WithPoolClock replaces the pool's clock. Tests use this to observe the
// exhaustion backoff without real sleeps.
func WithPoolClock(c Clock) PoolOption {
	return func(p *RelayPool) {
		p.clock = c
	}
}

// WithPoolLogger sets the pool's structured logger.
func WithPoolLogger(log zerolog.Logger) PoolOption {
	return func(p *RelayPool) {
		p.log = log
	}
}

// NewRelayPool creates a pool over the given relay credentials. gate may be
// nil, in which case acquisition is not gated on provider status. An empty
// relay list is a hard error: no valid run is possible without relays.
func NewRelayPool(relays []Relay, cfg PoolConfig, gate *Gate, opts ...PoolOption) (*RelayPool, error) {
	if len(relays) == 0 {
		return nil, ErrNoRelays
	}

	burst := cfg.BurstThreshold
	if burst <= 0 {
		burst = DefaultBurstThreshold
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	p := &RelayPool{
		relays:     make([]*relayState, len(relays)),
		burst:      burst,
		retryDelay: delay,
		gate:       gate,
		clock:      systemClock{},
		log:        zerolog.Nop(),
	}
	for i, r := range relays {
		p.relays[i] = &relayState{relay: r}
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Acquire selects the next relay allowed to send. The provider gate is
// consulted before every scan; a paused account surfaces as
// ErrSendingPaused. When every enabled relay sits at its burst threshold,
// a full pass resets their counters and the pool pauses for the retry
// delay before scanning again. When no enabled relay remains at all,
// acquisition fails with ErrRelaysExhausted instead of spinning.
func (p *RelayPool) Acquire(ctx context.Context) (Relay, error) {
	for {
		if p.gate != nil && !p.gate.SendingEnabled(ctx) {
			return Relay{}, ErrSendingPaused
		}

		p.mu.Lock()
		selected, enabled := p.next()
		p.mu.Unlock()

		if selected != nil {
			return *selected, nil
		}
		if enabled == 0 {
			return Relay{}, ErrRelaysExhausted
		}

		select {
		case <-ctx.Done():
			return Relay{}, ctx.Err()
		case <-p.clock.After(p.retryDelay):
		}
	}
}

// next performs one full round-robin pass starting at the cursor. It
// returns the selected relay, or nil if none was eligible, along with the
// number of enabled relays seen. The cursor stays on a selected relay;
// it only advances past disabled relays and past relays whose counter has
// reached the burst threshold. Passing a relay at threshold resets its
// counter, so a fruitless pass leaves every enabled relay ready for the
// next one. Callers must hold p.mu.
func (p *RelayPool) next() (*Relay, int) {
	n := len(p.relays)
	enabled := 0
	for i := 0; i < n; i++ {
		rs := p.relays[p.cursor]
		if rs.disabled {
			p.cursor = (p.cursor + 1) % n
			continue
		}
		enabled++
		if rs.usage < p.burst {
			rs.usage++
			relay := rs.relay
			return &relay, enabled
		}
		p.cursor = (p.cursor + 1) % n
		rs.usage = 0
	}
	return nil, enabled
}

// Disable marks the relay matching the given identity as disabled. The
// flag is monotonic: a disabled relay is never selected again for the
// lifetime of the pool. Calling Disable twice for the same identity is a
// no-op the second time.
func (p *RelayPool) Disable(relay Relay) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, rs := range p.relays {
		if !rs.relay.SameIdentity(relay) {
			continue
		}
		if !rs.disabled {
			rs.disabled = true
			p.log.Warn().
				Str("relay", rs.relay.Identity()).
				Msg("relay disabled after provider pause")
		}
		return
	}
}

// Len returns the number of relays in the pool, disabled ones included.
func (p *RelayPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.relays)
}

// Disabled returns how many relays have been disabled.
func (p *RelayPool) Disabled() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, rs := range p.relays {
		if rs.disabled {
			count++
		}
	}
	return count
}

// Usage returns a snapshot of each relay's current usage counter, in the
// pool's relay order.
func (p *RelayPool) Usage() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	usage := make([]int, len(p.relays))
	for i, rs := range p.relays {
		usage[i] = rs.usage
	}
	return usage
}
