package bulkmail

import (
	"context"
	"time"
)

// Public interfaces for the bulkmail library
type (
	// Transport performs the actual delivery of one message to one
	// recipient using a specific relay credential. Implementations must be
	// safe for concurrent use; a provider-side sending pause must be
	// reported as a *TransportError whose Paused method returns true.
	Transport interface {
		// Deliver sends msg to recipient through relay.
		Deliver(ctx context.Context, relay Relay, msg *Message, recipient string) error

		// Name returns the transport's name for identification and logging.
		Name() string
	}

	// StatusChecker answers whether the provider currently allows the
	// account to send at all. It is consulted before every relay
	// acquisition; errors are treated as "sending disabled" by the gate.
	StatusChecker interface {
		SendingEnabled(ctx context.Context) (bool, error)
	}

	// Clock abstracts time for the pool's exhaustion backoff so tests can
	// run without real sleeps.
	Clock interface {
		Now() time.Time
		After(d time.Duration) <-chan time.Time
	}
)

// systemClock is the Clock used outside of tests.
type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
