// Package scheduler wraps robfig/cron/v3 for the planner's periodic
// maintenance tasks (cache cleanup and archive rotation), the way the teacher's trader-go
// internal/scheduler package wraps it for its own background jobs.
package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one periodic maintenance task.
type Job interface {
	Run() error
	Name() string
}

// Scheduler drives registered Jobs on their cron schedules.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a Scheduler. Schedules use the standard 5-field cron syntax
// plus "@every" / "@hourly"-style descriptors (no seconds field).
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins running registered jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop waits for any in-flight job run to finish, then returns.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// AddJob registers job on schedule (e.g. "@every 1h", "0 3 * * *").
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := job.Run(); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("maintenance job failed")
			return
		}
		s.log.Debug().Str("job", job.Name()).Msg("maintenance job completed")
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("schedule", schedule).Str("job", job.Name()).Msg("maintenance job registered")
	return nil
}
