package bulkmail

import (
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/lattiq/bulkmail/internal/core"
)

// Type aliases to re-export core types for the public API.
// This allows users to access types like bulkmail.Relay instead of
// core.Relay, maintaining a clean public interface while keeping
// implementation details internal.
type (
	Relay           = core.Relay
	Message         = core.Message
	Outcome         = core.Outcome
	TransportError  = core.TransportError
	ValidationError = core.ValidationError
)

// Error constructor functions
var (
	NewTransportError  = core.NewTransportError
	NewValidationError = core.NewValidationError
	IsPaused           = core.IsPaused
)

// CodeSendingPaused is the SMTP reply code for a provider-side sending pause.
const CodeSendingPaused = core.CodeSendingPaused

// Client dispatches one message to many recipients, rotating sends across
// a pool of relay credentials. All methods are safe for concurrent use,
// but only one Run may be active at a time.
type Client struct {
	cfg       Config
	pool      *RelayPool
	transport Transport
	limiter   *rate.Limiter
	log       zerolog.Logger
	tracer    trace.Tracer

	mu       sync.RWMutex
	progress *Progress
	running  bool
	closed   bool
}

// New creates a new dispatch client with the given configuration.
func New(config Config, opts ...Option) (*Client, error) {
	// Apply functional options
	for _, opt := range opts {
		opt(&config)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.normalize()

	log := zerolog.Nop()
	if config.Logger != nil {
		log = *config.Logger
	}

	client := &Client{
		cfg:       config,
		transport: config.Transport,
		log:       log,
		tracer:    otel.Tracer("github.com/lattiq/bulkmail"),
	}

	// Initialize the provider gate when a status checker is configured.
	var gate *Gate
	if config.Status != nil {
		gate = NewGate(config.Status, log)
	}

	// Initialize the relay pool
	pool, err := NewRelayPool(config.Relays, config.Pool, gate, WithPoolLogger(log))
	if err != nil {
		return nil, err
	}
	client.pool = pool

	// Initialize the optional global rate limiter
	if config.RateLimit.Enabled {
		client.limiter = rate.NewLimiter(
			rate.Limit(config.RateLimit.PerSecond),
			config.RateLimit.Burst,
		)
	}

	return client, nil
}

// Pool returns the client's relay pool for inspection.
func (c *Client) Pool() *RelayPool {
	return c.pool
}

// Progress returns a snapshot of the active (or most recent) run. Before
// any run has started it reports zeros.
func (c *Client) Progress() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.progress == nil {
		return Snapshot{}
	}
	return c.progress.Snapshot()
}

// Close closes the client. A closed client rejects further runs.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return nil
}
