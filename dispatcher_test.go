package bulkmail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records deliveries and fails on demand.
type fakeTransport struct {
	mu        sync.Mutex
	byRelay   map[string]int
	delivered []string

	// fail, when set, decides the outcome of each delivery.
	fail func(relay Relay, recipient string) error

	// block, when set, stalls every delivery until closed.
	block chan struct{}
	// started is closed once the first delivery begins.
	started   chan struct{}
	startOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{byRelay: make(map[string]int)}
}

func (t *fakeTransport) Deliver(ctx context.Context, relay Relay, _ *Message, recipient string) error {
	if t.started != nil {
		t.startOnce.Do(func() { close(t.started) })
	}
	if t.block != nil {
		select {
		case <-t.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if t.fail != nil {
		if err := t.fail(relay, recipient); err != nil {
			return err
		}
	}
	t.mu.Lock()
	t.byRelay[relay.Identity()]++
	t.delivered = append(t.delivered, recipient)
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Name() string { return "fake" }

func (t *fakeTransport) relayCounts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	counts := make(map[string]int, len(t.byRelay))
	for k, v := range t.byRelay {
		counts[k] = v
	}
	return counts
}

func testRecipients(n int) []string {
	recipients := make([]string, n)
	for i := range recipients {
		recipients[i] = fmt.Sprintf("user%d@example.com", i)
	}
	return recipients
}

func pausedError() error {
	return NewTransportError("smtp", CodeSendingPaused,
		"Sending paused for this account", nil)
}

func newTestClient(t *testing.T, transport Transport, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithRelays(testRelays(3)),
		WithMessage(Message{
			From:     "Sender <sender@example.com>",
			Subject:  "hello",
			TextBody: "hello world",
		}),
		WithTransport(transport),
		WithRetryDelay(time.Millisecond),
	}
	client, err := New(DefaultConfig(), append(base, opts...)...)
	require.NoError(t, err)
	return client
}

func TestRunDeliversToEveryRecipient(t *testing.T) {
	ft := newFakeTransport()
	client := newTestClient(t, ft, WithWorkers(8))

	report, err := client.Run(context.Background(), testRecipients(100))
	require.NoError(t, err)

	assert.Equal(t, 100, report.Success)
	assert.Equal(t, 0, report.Failure)
	assert.Empty(t, report.Failures)
	assert.NotEmpty(t, report.RunID)
	assert.Len(t, ft.delivered, 100)

	snap := client.Progress()
	assert.True(t, snap.Done())
	assert.Equal(t, 100, snap.Success)
}

func TestRunSpreadsLoadAcrossRelays(t *testing.T) {
	ft := newFakeTransport()
	client := newTestClient(t, ft, WithWorkers(1), WithBurstThreshold(3))

	report, err := client.Run(context.Background(), testRecipients(9))
	require.NoError(t, err)
	require.Equal(t, 9, report.Success)

	// Nine sends over three relays with burst three: three each.
	counts := ft.relayCounts()
	require.Len(t, counts, 3)
	for identity, n := range counts {
		assert.Equal(t, 3, n, "relay %s", identity)
	}
}

func TestRunContinuesAfterRecipientFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.fail = func(_ Relay, recipient string) error {
		if recipient == "user3@example.com" {
			return NewTransportError("smtp", 554, "mailbox unavailable", nil)
		}
		return nil
	}
	client := newTestClient(t, ft, WithWorkers(2))

	report, err := client.Run(context.Background(), testRecipients(10))
	require.NoError(t, err)

	assert.Equal(t, 9, report.Success)
	assert.Equal(t, 1, report.Failure)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "user3@example.com", report.Failures[0].Recipient)

	// An ordinary delivery failure never disables the relay.
	assert.Equal(t, 0, client.Pool().Disabled())
}

func TestRunDisablesRelayOnProviderPause(t *testing.T) {
	relays := testRelays(3)
	ft := newFakeTransport()
	ft.fail = func(relay Relay, _ string) error {
		if relay.Identity() == relays[0].Identity() {
			return pausedError()
		}
		return nil
	}
	client := newTestClient(t, ft, WithWorkers(1), WithBurstThreshold(2))

	report, err := client.Run(context.Background(), testRecipients(8))
	require.NoError(t, err)

	// The first delivery lands on relay 0, gets the pause notice and
	// disables it; every later send uses the remaining two relays.
	assert.Equal(t, 7, report.Success)
	assert.Equal(t, 1, report.Failure)
	assert.Equal(t, 1, client.Pool().Disabled())

	counts := ft.relayCounts()
	assert.NotContains(t, counts, relays[0].Identity())
}

func TestRunAbortsWhenEveryRelayIsPaused(t *testing.T) {
	ft := newFakeTransport()
	ft.fail = func(Relay, string) error { return pausedError() }
	client := newTestClient(t, ft, WithWorkers(1), WithBurstThreshold(3))

	report, err := client.Run(context.Background(), testRecipients(10))
	require.ErrorIs(t, err, ErrRelaysExhausted)

	// Each of the first three sends burns one relay; the fourth recipient
	// finds the pool empty and aborts the run before being attempted.
	assert.Equal(t, 0, report.Success)
	assert.Equal(t, 3, report.Failure)
	assert.Equal(t, 3, client.Pool().Disabled())
}

func TestRunStopsWhenAccountSendingIsPaused(t *testing.T) {
	ft := newFakeTransport()
	client := newTestClient(t, ft,
		WithStatusChecker(&stubChecker{enabled: false}))

	report, err := client.Run(context.Background(), testRecipients(5))
	require.ErrorIs(t, err, ErrSendingPaused)

	assert.Equal(t, 0, report.Success)
	assert.Equal(t, 0, report.Failure)
	assert.Empty(t, ft.delivered)
}

func TestRunWithNoRecipients(t *testing.T) {
	client := newTestClient(t, newFakeTransport())

	report, err := client.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Success)
	assert.Equal(t, 0, report.Failure)
}

func TestRunAfterCloseFails(t *testing.T) {
	client := newTestClient(t, newFakeTransport())
	require.NoError(t, client.Close())

	_, err := client.Run(context.Background(), testRecipients(1))
	require.ErrorIs(t, err, ErrClientClosed)
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	ft := newFakeTransport()
	ft.block = make(chan struct{})
	ft.started = make(chan struct{})
	client := newTestClient(t, ft)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := client.Run(context.Background(), testRecipients(3))
		assert.NoError(t, err)
	}()

	<-ft.started
	_, err := client.Run(context.Background(), testRecipients(1))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	close(ft.block)
	<-done
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ft := newFakeTransport()
	ft.block = make(chan struct{})
	ft.started = make(chan struct{})
	defer close(ft.block)
	client := newTestClient(t, ft, WithWorkers(1))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-ft.started
		cancel()
	}()

	_, err := client.Run(ctx, testRecipients(5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) ||
		IsFatal(err), "unexpected error: %v", err)
}

func TestNewValidatesConfiguration(t *testing.T) {
	_, err := New(DefaultConfig())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "transport", verr.Field)

	_, err = New(DefaultConfig(), WithTransport(newFakeTransport()))
	require.ErrorIs(t, err, ErrNoRelays)

	_, err = New(DefaultConfig(),
		WithTransport(newFakeTransport()),
		WithRelays(testRelays(1)),
		WithMessage(Message{From: "not-an-address", Subject: "s", TextBody: "b"}),
	)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "from", verr.Field)
}
