package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SessionSweepJobName is the name of the idle chart session sweep
const SessionSweepJobName = "session_sweep"

// SessionSweeper evicts idle chart sessions. Implemented by service.ChartService.
type SessionSweeper interface {
	SweepIdle(ctx context.Context) int
	Count(ctx context.Context) int
}

// SessionSweepJob removes chart sessions that have been idle past their TTL
type SessionSweepJob struct {
	sweeper SessionSweeper
	logger  *zap.Logger
	timeout time.Duration
}

// NewSessionSweepJob creates a sweep job bounded by timeout per run
func NewSessionSweepJob(sweeper SessionSweeper, logger *zap.Logger, timeout time.Duration) *SessionSweepJob {
	return &SessionSweepJob{
		sweeper: sweeper,
		logger:  logger,
		timeout: timeout,
	}
}

// Run performs one sweep
func (j *SessionSweepJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	evicted := j.sweeper.SweepIdle(ctx)
	if evicted == 0 {
		return
	}

	j.logger.Info("idle chart sessions evicted",
		zap.Int("evicted", evicted),
		zap.Int("remaining", j.sweeper.Count(ctx)),
		zap.Duration("duration", time.Since(start)))
}

// RegisterSessionSweepJob registers the sweep with the scheduler
func RegisterSessionSweepJob(scheduler *Scheduler, sweeper SessionSweeper, logger *zap.Logger, cronExpr string) error {
	job := NewSessionSweepJob(sweeper, logger, time.Minute)
	return scheduler.AddJob(SessionSweepJobName, cronExpr, job.Run)
}
