package app

import (
	"context"
	"time"

	"wordfall-service/internal/logging"
)

// DefaultTickInterval matches a 60Hz frame.
const DefaultTickInterval = 16 * time.Millisecond

// Runner drives a session's clock from a ticker. Each tick advances the
// session by the real time elapsed since the previous one.
type Runner struct {
	session  *Session
	interval time.Duration
}

func NewRunner(session *Session, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Runner{session: session, interval: interval}
}

// Run blocks until ctx is canceled or the session is over.
func (r *Runner) Run(ctx context.Context) {
	logger := logging.FromContext(ctx).Named("app.runner").With("session", r.session.ID())
	logger.Debugw("runner started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			logger.Debugw("runner canceled")
			return
		case <-r.session.Done():
			logger.Debugw("session over, runner stopped")
			return
		case now := <-ticker.C:
			r.session.Advance(now.Sub(last))
			last = now
		}
	}
}
