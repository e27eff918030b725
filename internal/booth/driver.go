package booth

import (
	"context"
	"time"
)

// TickInterval is the countdown granularity
const TickInterval = time.Second

// Run drives the sequencer from the wall clock until ctx is done. Each
// Start arms a fresh ticker so the first countdown step lands a full
// interval after the press. Cancelling ctx cancels any run in flight.
func (s *Sequencer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = TickInterval
	}
	defer s.Cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.kick:
		}

		s.log.Debug().Dur("interval", interval).Msg("Driver armed")
		if !s.drive(ctx, interval) {
			return
		}
	}
}

// drive ticks until the run ends; false means ctx ended first
func (s *Sequencer) drive(ctx context.Context, interval time.Duration) bool {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			s.Tick()
			if !s.Running() {
				return true
			}
		}
	}
}
