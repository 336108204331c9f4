package bulkmail

import (
	"time"

	"github.com/rs/zerolog"
)

// Option is a functional option for configuring the dispatch client.
type Option func(*Config)

// WithRelays sets the relay credential list for the run.
func WithRelays(relays []Relay) Option {
	return func(c *Config) {
		c.Relays = relays
	}
}

// WithMessage sets the message delivered to every recipient.
func WithMessage(msg Message) Option {
	return func(c *Config) {
		c.Message = msg
	}
}

// WithTransport sets the delivery transport.
func WithTransport(t Transport) Option {
	return func(c *Config) {
		c.Transport = t
	}
}

// WithStatusChecker sets the provider-level sending status oracle that
// gates every relay acquisition.
func WithStatusChecker(sc StatusChecker) Option {
	return func(c *Config) {
		c.Status = sc
	}
}

// WithLogger sets the structured logger for the client and its pool.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = &log
	}
}

// WithBurstThreshold sets the maximum messages a relay sends before it is
// skipped until the next collective reset.
func WithBurstThreshold(n int) Option {
	return func(c *Config) {
		c.Pool.BurstThreshold = n
	}
}

// WithRetryDelay sets the pause between full-pool rescan passes when every
// relay is at its burst threshold.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) {
		c.Pool.RetryDelay = d
	}
}

// WithWorkers sets the number of concurrent dispatch workers.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Dispatch.Workers = n
	}
}

// WithProgressInterval sets the poll interval for progress watch loops.
func WithProgressInterval(d time.Duration) Option {
	return func(c *Config) {
		c.Progress.Interval = d
	}
}

// WithRateLimit enables a global sends-per-second limit across all relays.
func WithRateLimit(perSecond, burst int) Option {
	return func(c *Config) {
		c.RateLimit.Enabled = true
		c.RateLimit.PerSecond = perSecond
		c.RateLimit.Burst = burst
	}
}

// WithoutRateLimit disables global rate limiting.
func WithoutRateLimit() Option {
	return func(c *Config) {
		c.RateLimit.Enabled = false
	}
}
