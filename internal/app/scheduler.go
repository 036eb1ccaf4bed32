/**
 * @description
 * Cron scheduler for the pending payment sweep.
 */
package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

const sweepRunTimeout = 2 * time.Minute

// Scheduler runs the pending sweep on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	service  *Service
	schedule string
	after    time.Duration
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(service *Service, schedule string, after time.Duration) *Scheduler {
	cronLogger := cron.PrintfLogger(log.Default())
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:     c,
		service:  service,
		schedule: schedule,
		after:    after,
	}
}

// Start registers the sweep job and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.runSweep); err != nil {
		log.Printf("level=error component=scheduler msg=\"failed to schedule pending sweep\" schedule=%q err=%v", s.schedule, err)
		return err
	}
	log.Printf("level=info component=scheduler msg=\"scheduled pending sweep\" schedule=%q older_than=%s", s.schedule, s.after)
	s.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepRunTimeout)
	defer cancel()

	report, err := s.service.SweepPending(ctx, s.after, defaultSweepBatch)
	if err != nil {
		log.Printf("level=error component=scheduler msg=\"pending sweep failed\" checked=%d err=%v", report.Checked, err)
		return
	}
	if report.Checked > 0 {
		log.Printf("level=info component=scheduler msg=\"pending sweep finished\" checked=%d applied=%d still_pending=%d provider_errors=%d skipped=%d",
			report.Checked, report.Applied, report.StillPending, report.ProviderError, report.Skipped)
	}
}
