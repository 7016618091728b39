// Package scheduler implements the periodic trigger spec.md §4.10 and §9
// describe: a ticker sending onto a single-consumer channel, so at most one
// tick runs at a time (max_instances=1). A manual trigger that arrives while
// a tick is running is buffered (one at most) and runs once that tick
// returns; only triggers beyond that one are dropped.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Runner executes one tick. In production this is Orchestrator.RunTick;
// narrowed to a function type so the scheduler doesn't need to import the
// orchestrator package.
type Runner func(ctx context.Context)

// Scheduler fires Runner at Interval. It does not auto-fire on Start; the
// first tick fires at now+interval, matching spec.md §4.10.
//
// max_instances=1 falls out of the single-consumer loop in Start rather
// than needing an explicit lock: ticker.C and trigger are both drained by
// the same goroutine, so a second source can never invoke run while the
// first is still in it. time.Ticker itself drops ticks that arrive while
// the receiver is busy (it never buffers more than one), and Trigger below
// treats manual requests the same way: one is queued, further ones dropped.
type Scheduler struct {
	interval time.Duration
	run      Runner
	log      *zap.Logger

	trigger chan struct{}
	missed  int
}

func New(interval time.Duration, run Runner, log *zap.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		run:      run,
		log:      log,
		trigger:  make(chan struct{}, 1),
	}
}

// Start blocks, driving the ticker and the manual-trigger channel into the
// single consumer loop, until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx)
		case <-s.trigger:
			s.run(ctx)
		}
	}
}

// Trigger requests an immediate tick. If one is already queued (a previous
// manual trigger hasn't been consumed yet, meaning a tick is likely still
// running), the request is dropped rather than queued, per spec.md §4.10's
// max_instances=1.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
		s.missed++
		s.log.Warn("manual trigger dropped: a tick is already queued or running")
	}
}

// MissedTicks reports how many manual triggers were dropped because a tick
// was already queued or running.
func (s *Scheduler) MissedTicks() int {
	return s.missed
}
