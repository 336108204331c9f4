package bulkmail

import (
	"context"
	"errors"
)

// Predefined sentinel errors for common cases.
var (
	// ErrNoRelays indicates the relay list was empty at pool construction.
	ErrNoRelays = errors.New("no relays configured")

	// ErrSendingPaused indicates the provider reports sending disabled for
	// the whole account. No further sends are issued once this surfaces.
	ErrSendingPaused = errors.New("provider sending paused for account")

	// ErrRelaysExhausted indicates every relay in the pool has been
	// disabled, so no acquisition can ever succeed again.
	ErrRelaysExhausted = errors.New("all relays disabled")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("client closed")
)

// IsFatal reports whether err aborts a run rather than failing a single
// recipient. Context cancellation is fatal by definition: the caller asked
// the run to stop.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSendingPaused) ||
		errors.Is(err, ErrRelaysExhausted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
