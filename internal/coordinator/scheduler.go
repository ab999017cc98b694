package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Martyparty1988/Martyai/internal/logging"
)

// Scheduler runs the periodic sync cycle and connectivity probe. Both jobs
// retry queued changes while online.
type Scheduler struct {
	cron        *cron.Cron
	coordinator *Coordinator
	pinger      Pinger
	log         logging.Logger

	refresh       string
	probeInterval time.Duration
	cycleEntry    cron.EntryID
}

// NewScheduler creates a scheduler. An empty refresh spec disables the
// periodic cycle; a nil pinger or zero interval disables probing.
func NewScheduler(c *Coordinator, pinger Pinger, refresh string, probeInterval time.Duration, log logging.Logger) *Scheduler {
	return &Scheduler{
		cron:          cron.New(),
		coordinator:   c,
		pinger:        pinger,
		log:           log,
		refresh:       refresh,
		probeInterval: probeInterval,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.refresh != "" {
		id, err := s.cron.AddFunc(s.refresh, func() {
			s.runCycle(ctx)
		})
		if err != nil {
			return fmt.Errorf("scheduling sync cycle %q: %w", s.refresh, err)
		}
		s.cycleEntry = id
	}

	if s.pinger != nil && s.probeInterval > 0 {
		_, err := s.cron.AddFunc("@every "+s.probeInterval.String(), func() {
			if s.coordinator.Monitor().Probe(ctx, s.pinger) {
				s.coordinator.DrainPending(ctx)
			}
		})
		if err != nil {
			return fmt.Errorf("scheduling connectivity probe: %w", err)
		}
	}

	s.cron.Start()
	s.log.Info(ctx, "sync scheduler started", "refresh", s.refresh, "probe_interval", s.probeInterval)
	return nil
}

// Stop waits for running jobs and stops the cron loop.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// NextRun returns the next scheduled sync cycle, or nil.
func (s *Scheduler) NextRun() *time.Time {
	if s.cycleEntry == 0 {
		return nil
	}
	entry := s.cron.Entry(s.cycleEntry)
	if entry.Next.IsZero() {
		return nil
	}
	next := entry.Next
	return &next
}

func (s *Scheduler) runCycle(ctx context.Context) {
	s.coordinator.DrainPending(ctx)
	if _, err := s.coordinator.RunCycle(ctx); err != nil {
		if errors.Is(err, ErrCycleInProgress) {
			s.log.Debug(ctx, "skipping scheduled sync, cycle in progress")
			return
		}
		s.log.Error(ctx, "scheduled sync failed", "error", err)
	}
}
