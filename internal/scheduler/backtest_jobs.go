package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SessionManager is the part of the backtest manager the jobs drive
type SessionManager interface {
	HibernateIdle(idle time.Duration) int
	AutoStep(ctx context.Context, days int) int
	SessionCount() int
}

// HibernateIdleJob evicts backtests that have not been touched for a while.
// Their last committed snapshot is reloaded on the next request.
type HibernateIdleJob struct {
	manager SessionManager
	idle    time.Duration
	log     zerolog.Logger
}

// NewHibernateIdleJob creates a new HibernateIdleJob
func NewHibernateIdleJob(manager SessionManager, idle time.Duration, log zerolog.Logger) *HibernateIdleJob {
	return &HibernateIdleJob{
		manager: manager,
		idle:    idle,
		log:     log.With().Str("job", "hibernate_idle_backtests").Logger(),
	}
}

// Name returns the job name
func (j *HibernateIdleJob) Name() string {
	return "hibernate_idle_backtests"
}

// Run executes the hibernate job
func (j *HibernateIdleJob) Run() error {
	evicted := j.manager.HibernateIdle(j.idle)
	if evicted > 0 {
		j.log.Info().
			Int("hibernated", evicted).
			Int("remaining", j.manager.SessionCount()).
			Msg("Hibernated idle backtests")
	}
	return nil
}

// AutoStepJob advances every unfinished in-memory backtest by a fixed
// number of calendar days
type AutoStepJob struct {
	manager SessionManager
	days    int
	timeout time.Duration
	log     zerolog.Logger
}

// NewAutoStepJob creates a new AutoStepJob
func NewAutoStepJob(manager SessionManager, days int, timeout time.Duration, log zerolog.Logger) *AutoStepJob {
	return &AutoStepJob{
		manager: manager,
		days:    days,
		timeout: timeout,
		log:     log.With().Str("job", "auto_step_backtests").Logger(),
	}
}

// Name returns the job name
func (j *AutoStepJob) Name() string {
	return "auto_step_backtests"
}

// Run executes the auto-step job
func (j *AutoStepJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	stepped := j.manager.AutoStep(ctx, j.days)
	j.log.Debug().Int("stepped", stepped).Int("days", j.days).Msg("Auto-step completed")
	return nil
}
