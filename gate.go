package bulkmail

import (
	"context"

	"github.com/rs/zerolog"
)

// Gate wraps a StatusChecker with fail-closed semantics: a status check
// that errors is reported as "sending disabled" rather than crashing the
// caller. The pool treats a closed gate as fatal for the run.
type Gate struct {
	checker StatusChecker
	log     zerolog.Logger
}

// NewGate creates a gate over the given checker.
func NewGate(checker StatusChecker, log zerolog.Logger) *Gate {
	return &Gate{checker: checker, log: log}
}

// SendingEnabled reports whether the provider currently allows sending.
func (g *Gate) SendingEnabled(ctx context.Context) bool {
	enabled, err := g.checker.SendingEnabled(ctx)
	if err != nil {
		g.log.Error().Err(err).Msg("provider status check failed, treating sending as paused")
		return false
	}
	return enabled
}
