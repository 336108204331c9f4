package bulkmail

import (
	"context"
	"sync/atomic"
	"time"
)

// Progress aggregates success/failure counters for one run. It is purely
// observational: recording an outcome never influences dispatch. All
// methods are safe for concurrent use.
type Progress struct {
	total   int64
	success atomic.Int64
	failure atomic.Int64
}

// NewProgress creates a progress aggregator for a run of total recipients.
func NewProgress(total int) *Progress {
	return &Progress{total: int64(total)}
}

// Record counts one completed outcome. Callers must invoke it exactly once
// per recipient, whichever branch the outcome took.
func (p *Progress) Record(o Outcome) {
	if o.Success {
		p.success.Add(1)
	} else {
		p.failure.Add(1)
	}
}

// Snapshot is a consistent point-in-time view of the counters.
type Snapshot struct {
	Success int
	Failure int
	Total   int
}

// Completed returns how many recipients have a recorded outcome.
func (s Snapshot) Completed() int {
	return s.Success + s.Failure
}

// Done reports whether every recipient has a recorded outcome.
func (s Snapshot) Done() bool {
	return s.Completed() >= s.Total
}

// Snapshot returns the current counter values.
func (p *Progress) Snapshot() Snapshot {
	// Two independent atomic loads: the sum may transiently lag a
	// concurrent Record, never lead it.
	return Snapshot{
		Success: int(p.success.Load()),
		Failure: int(p.failure.Load()),
		Total:   int(p.total),
	}
}

// Watch invokes fn with a fresh snapshot every interval until every
// outcome is recorded or ctx is cancelled. The final completed snapshot is
// always delivered to fn before Watch returns normally.
func (p *Progress) Watch(ctx context.Context, interval time.Duration, fn func(Snapshot)) {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if snap := p.Snapshot(); snap.Done() {
			fn(snap)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(p.Snapshot())
		}
	}
}
