package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const failurePause = 5 * time.Second

// Scheduler repeats cycles at a fixed interval until its context is
// cancelled. Cycles never overlap and an in-flight cycle always finishes
// before shutdown is honored.
type Scheduler struct {
	orchestrator *Orchestrator
	pollInterval time.Duration

	doneCh chan struct{}
}

func NewScheduler(orchestrator *Orchestrator, pollInterval time.Duration) *Scheduler {
	return &Scheduler{
		orchestrator: orchestrator,
		pollInterval: pollInterval,
		doneCh:       make(chan struct{}),
	}
}

// Run polls until ctx is cancelled. It returns after the in-flight cycle
// has finished.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.doneCh)

	log.Info().
		Dur("poll_interval", s.pollInterval).
		Msg("Scheduler started")

	// Cycles run detached from the shutdown signal: a cycle that has
	// already dispatched to the bus must still reach the checkpoint write,
	// otherwise confirmed deliveries would go unrecorded. Shutdown is
	// honored at the cycle boundary, in the sleeps below.
	cycleCtx := context.WithoutCancel(ctx)

	for {
		if err := s.orchestrator.RunCycle(cycleCtx); err != nil {
			if ctx.Err() != nil {
				break
			}
			// Back off briefly before polling again so a broken
			// dependency is not hammered at full poll rate.
			if !s.sleep(ctx, failurePause) {
				break
			}
			continue
		}

		if !s.sleep(ctx, s.pollInterval) {
			break
		}
	}

	log.Info().Msg("Scheduler stopped")
}

// Wait blocks until Run has returned.
func (s *Scheduler) Wait() {
	<-s.doneCh
}

// sleep waits for d in one second slices so cancellation is honored
// promptly even with long poll intervals. Returns false when ctx was
// cancelled before the full duration elapsed.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		slice := remaining
		if slice > time.Second {
			slice = time.Second
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(slice):
		}
	}
}
