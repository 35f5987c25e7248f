package noshow

import (
	"context"
	"log"
	"time"

	"gamecenter-reservation-backend/internal/clock"
)

// Scheduler runs the daily sweep at each business day boundary.
type Scheduler struct {
	detector *Detector
	clk      clock.Clock
	enabled  bool
}

// NewScheduler creates a Scheduler around the detector.
func NewScheduler(detector *Detector, clk clock.Clock, enabled bool) *Scheduler {
	return &Scheduler{detector: detector, clk: clk, enabled: enabled}
}

// Run sleeps until the next boundary, sweeps, and repeats until the context
// is cancelled. A catch-up sweep runs immediately on start so a process that
// was down across a boundary still settles the missed day.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.enabled {
		log.Println("No-show sweep is disabled. Not starting.")
		return
	}
	log.Println("Starting no-show sweep scheduler...")

	s.sweep(ctx)

	timer := time.NewTimer(s.untilNextBoundary())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("No-show sweep scheduler shutting down.")
			return
		case <-timer.C:
			s.sweep(ctx)
			timer.Reset(s.untilNextBoundary())
		}
	}
}

func (s *Scheduler) untilNextBoundary() time.Duration {
	now := s.clk.Now()
	next := clock.NextBusinessDayStart(now, s.detector.policy.BoundaryHour)
	return next.Sub(now)
}

func (s *Scheduler) sweep(ctx context.Context) {
	if _, err := s.detector.RunDailySweep(ctx); err != nil {
		log.Printf("Error running no-show sweep: %v", err)
	}
}
