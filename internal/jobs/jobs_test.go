package jobs_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/straye-as/chart-api/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSweeper struct {
	sweeps  int32
	evicted int
}

func (f *fakeSweeper) SweepIdle(ctx context.Context) int {
	atomic.AddInt32(&f.sweeps, 1)
	return f.evicted
}

func (f *fakeSweeper) Count(ctx context.Context) int { return 0 }

func TestParseSchedule(t *testing.T) {
	for _, expr := range []string{"@every 5m", "*/5 * * * *", "0 */5 * * * *", "@hourly"} {
		assert.NoError(t, jobs.ParseSchedule(expr), expr)
	}
	for _, expr := range []string{"", "every five minutes", "* * *"} {
		assert.Error(t, jobs.ParseSchedule(expr), expr)
	}
}

func TestScheduler_AddRemove(t *testing.T) {
	s := jobs.NewScheduler(zap.NewNop())

	require.NoError(t, s.AddJob("b", "@every 1h", func() {}))
	require.NoError(t, s.AddJob("a", "@every 1h", func() {}))
	assert.Error(t, s.AddJob("a", "@every 1h", func() {}))
	assert.Error(t, s.AddJob("c", "nonsense", func() {}))
	assert.Equal(t, []string{"a", "b"}, s.JobNames())

	require.NoError(t, s.RemoveJob("a"))
	assert.Error(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, s.JobNames())
}

func TestScheduler_RunsSweep(t *testing.T) {
	s := jobs.NewScheduler(zap.NewNop())
	sweeper := &fakeSweeper{evicted: 2}

	require.NoError(t, jobs.RegisterSessionSweepJob(s, sweeper, zap.NewNop(), "@every 1s"))
	assert.Equal(t, []string{jobs.SessionSweepJobName}, s.JobNames())

	s.Start()
	defer func() { <-s.Stop().Done() }()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&sweeper.sweeps) > 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestSessionSweepJob_Run(t *testing.T) {
	sweeper := &fakeSweeper{}
	job := jobs.NewSessionSweepJob(sweeper, zap.NewNop(), time.Second)

	job.Run()
	job.Run()
	assert.Equal(t, int32(2), atomic.LoadInt32(&sweeper.sweeps))
}
