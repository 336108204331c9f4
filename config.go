package bulkmail

import (
	"time"

	"github.com/rs/zerolog"
)

// Config holds the complete dispatcher configuration.
type Config struct {
	// Relays is the static list of relay credentials for this run.
	// At least one relay is required.
	Relays []Relay

	// Message is the content delivered to every recipient.
	Message Message

	// Pool contains relay rotation and throttling configuration.
	Pool PoolConfig

	// Dispatch contains worker pool configuration.
	Dispatch DispatchConfig

	// Progress contains progress reporting configuration.
	Progress ProgressConfig

	// RateLimit contains optional global rate limiting configuration,
	// applied on top of the pool's per-relay burst throttle.
	RateLimit RateLimitConfig

	// Transport performs deliveries. Required.
	Transport Transport

	// Status is the provider-level sending status oracle. Optional; when
	// nil the gate is skipped and acquisition proceeds unconditionally.
	Status StatusChecker

	// Logger receives structured logs. Nil logs nothing.
	Logger *zerolog.Logger
}

// PoolConfig contains relay rotation settings.
type PoolConfig struct {
	// BurstThreshold is the maximum number of messages a relay sends
	// before it is skipped until the next collective reset (default: 3).
	BurstThreshold int

	// RetryDelay is how long acquisition pauses after a full pass finds
	// every relay at threshold, before rescanning (default: 1s).
	RetryDelay time.Duration
}

// DispatchConfig contains worker pool settings.
type DispatchConfig struct {
	// Workers is the number of concurrent dispatch workers (default: 5).
	Workers int
}

// ProgressConfig contains progress reporting settings.
type ProgressConfig struct {
	// Interval is how often a progress watch loop polls (default: 500ms).
	Interval time.Duration
}

// RateLimitConfig contains global rate limiting configuration.
type RateLimitConfig struct {
	// Enabled indicates whether global rate limiting is enabled.
	Enabled bool

	// PerSecond is the number of sends allowed per second.
	PerSecond int

	// Burst is the maximum number of sends that can be made immediately.
	Burst int
}

// Default values applied by New for zero-valued configuration fields.
const (
	DefaultBurstThreshold   = 3
	DefaultRetryDelay       = time.Second
	DefaultWorkers          = 5
	DefaultProgressInterval = 500 * time.Millisecond
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Pool: PoolConfig{
			BurstThreshold: DefaultBurstThreshold,
			RetryDelay:     DefaultRetryDelay,
		},
		Dispatch: DispatchConfig{
			Workers: DefaultWorkers,
		},
		Progress: ProgressConfig{
			Interval: DefaultProgressInterval,
		},
		RateLimit: RateLimitConfig{
			Enabled: false,
		},
	}
}

// Validate checks if the configuration is valid and complete.
func (c *Config) Validate() error {
	if c.Transport == nil {
		return &ValidationError{
			Field:   "transport",
			Message: "a delivery transport is required",
		}
	}

	if len(c.Relays) == 0 {
		return ErrNoRelays
	}

	if err := c.Message.Validate(); err != nil {
		return err
	}

	if c.Pool.BurstThreshold < 0 {
		return &ValidationError{
			Field:   "pool.burst_threshold",
			Message: "burst threshold must not be negative",
		}
	}

	if c.Pool.RetryDelay < 0 {
		return &ValidationError{
			Field:   "pool.retry_delay",
			Message: "retry delay must not be negative",
		}
	}

	if c.Dispatch.Workers < 0 {
		return &ValidationError{
			Field:   "dispatch.workers",
			Message: "worker count must not be negative",
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.PerSecond <= 0 {
		return &ValidationError{
			Field:   "rate_limit.per_second",
			Message: "rate must be greater than 0",
		}
	}

	return nil
}

// normalize fills zero-valued knobs with defaults. Called by New after
// validation so explicit invalid values still fail loudly.
func (c *Config) normalize() {
	if c.Pool.BurstThreshold == 0 {
		c.Pool.BurstThreshold = DefaultBurstThreshold
	}
	if c.Pool.RetryDelay == 0 {
		c.Pool.RetryDelay = DefaultRetryDelay
	}
	if c.Dispatch.Workers == 0 {
		c.Dispatch.Workers = DefaultWorkers
	}
	if c.Progress.Interval == 0 {
		c.Progress.Interval = DefaultProgressInterval
	}
	if c.RateLimit.Enabled && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = c.RateLimit.PerSecond
	}
}
