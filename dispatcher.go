package bulkmail

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Report summarizes a completed (or aborted) run.
type Report struct {
	// RunID uniquely identifies the run in logs and traces.
	RunID string

	// Started is when dispatch began.
	Started time.Time

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration

	// Success and Failure are the final counter values. On a normal
	// completion Success+Failure equals the recipient count; an aborted
	// run stops counting at the abort point.
	Success int
	Failure int

	// Failures lists every failed recipient with its error detail.
	Failures []Outcome
}

// Run dispatches the configured message to every recipient using the
// bounded worker pool. Each recipient is attempted exactly once on exactly
// one relay; per-recipient delivery failures are recorded and the run
// continues. A provider-side sending pause or pool exhaustion stops the
// run: no new sends are issued, in-flight sends finish, and the fatal
// error is returned alongside the partial report.
func (c *Client) Run(ctx context.Context, recipients []string) (*Report, error) {
	ctx, span := c.tracer.Start(ctx, "bulkmail.Client.Run")
	defer span.End()

	runID := uuid.NewString()
	progress := NewProgress(len(recipients))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		span.RecordError(ErrClientClosed)
		span.SetStatus(codes.Error, ErrClientClosed.Error())
		return nil, ErrClientClosed
	}
	if c.running {
		c.mu.Unlock()
		err := NewValidationError("run", "another run is already active")
		span.RecordError(err)
		span.SetStatus(codes.Error, "run already active")
		return nil, err
	}
	c.running = true
	c.progress = progress
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	span.SetAttributes(
		attribute.String("bulkmail.run_id", runID),
		attribute.Int("bulkmail.recipients", len(recipients)),
		attribute.Int("bulkmail.relays", c.pool.Len()),
		attribute.Int("bulkmail.workers", c.cfg.Dispatch.Workers),
		attribute.String("bulkmail.transport", c.transport.Name()),
	)

	report := &Report{RunID: runID, Started: time.Now()}
	if len(recipients) == 0 {
		span.SetStatus(codes.Ok, "no recipients")
		return report, nil
	}

	c.log.Info().
		Str("run_id", runID).
		Int("recipients", len(recipients)).
		Int("relays", c.pool.Len()).
		Int("workers", c.cfg.Dispatch.Workers).
		Str("transport", c.transport.Name()).
		Msg("dispatch started")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		resMu sync.Mutex
		fatal error
	)
	abort := func(err error) {
		resMu.Lock()
		if fatal == nil {
			fatal = err
			cancel()
		}
		resMu.Unlock()
	}

	queue := make(chan string)
	go func() {
		defer close(queue)
		for _, r := range recipients {
			select {
			case queue <- r:
			case <-runCtx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(c.cfg.Dispatch.Workers)
	for i := 0; i < c.cfg.Dispatch.Workers; i++ {
		go func() {
			defer wg.Done()
			for {
				// fast-exit so an abort wins over queued work
				select {
				case <-runCtx.Done():
					return
				default:
				}

				select {
				case <-runCtx.Done():
					return
				case recipient, ok := <-queue:
					if !ok {
						return
					}
					outcome, err := c.send(runCtx, runID, recipient)
					if err != nil {
						// Run-fatal: the recipient was never attempted,
						// so no outcome is recorded for it.
						abort(err)
						return
					}
					progress.Record(outcome)
					if !outcome.Success {
						resMu.Lock()
						report.Failures = append(report.Failures, outcome)
						resMu.Unlock()
					}
				}
			}
		}()
	}

	wg.Wait()

	report.Elapsed = time.Since(report.Started)
	snap := progress.Snapshot()
	report.Success = snap.Success
	report.Failure = snap.Failure

	resMu.Lock()
	err := fatal
	resMu.Unlock()
	if err == nil {
		// Caller cancellation stops the workers without going through
		// abort; surface it rather than reporting a clean finish.
		err = ctx.Err()
	}

	if err != nil {
		c.log.Error().
			Str("run_id", runID).
			Err(err).
			Int("success", report.Success).
			Int("failure", report.Failure).
			Dur("elapsed", report.Elapsed).
			Msg("dispatch aborted")
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch aborted")
		return report, err
	}

	c.log.Info().
		Str("run_id", runID).
		Int("success", report.Success).
		Int("failure", report.Failure).
		Dur("elapsed", report.Elapsed).
		Msg("dispatch completed")
	span.SetAttributes(
		attribute.Int("bulkmail.success", report.Success),
		attribute.Int("bulkmail.failure", report.Failure),
	)
	span.SetStatus(codes.Ok, "dispatch completed")
	return report, nil
}

// send attempts delivery to one recipient on one relay. A non-nil error
// aborts the whole run (gate pause, pool exhaustion, cancellation); every
// other failure is terminal for the recipient only and comes back as a
// failure outcome.
func (c *Client) send(ctx context.Context, runID, recipient string) (Outcome, error) {
	ctx, span := c.tracer.Start(ctx, "bulkmail.Client.send",
		trace.WithAttributes(
			attribute.String("bulkmail.run_id", runID),
			attribute.String("bulkmail.recipient", recipient),
		),
	)
	defer span.End()

	relay, err := c.pool.Acquire(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "relay acquisition failed")
		return Outcome{}, err
	}
	span.SetAttributes(attribute.String("bulkmail.relay", relay.Identity()))

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rate limiter wait cancelled")
			return Outcome{}, err
		}
	}

	start := time.Now()
	err = c.transport.Deliver(ctx, relay, &c.cfg.Message, recipient)
	span.SetAttributes(attribute.Int64("bulkmail.deliver_ms", time.Since(start).Milliseconds()))

	if err == nil {
		span.SetStatus(codes.Ok, "delivered")
		return Outcome{Recipient: recipient, Success: true}, nil
	}

	if IsPaused(err) {
		// Only this relay is paused; the run keeps going on the rest.
		c.pool.Disable(relay)
	}

	c.log.Debug().
		Str("run_id", runID).
		Str("recipient", recipient).
		Str("relay", relay.Identity()).
		Err(err).
		Msg("delivery failed")
	span.RecordError(err)
	span.SetStatus(codes.Error, "delivery failed")
	return Outcome{Recipient: recipient, Success: false, Err: err}, nil
}
