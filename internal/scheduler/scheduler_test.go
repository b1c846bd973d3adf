package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/pkg/logger"
)

type fakeJob struct {
	name     string
	schedule string
	calls    atomic.Int32
	errs     []error
}

func (j *fakeJob) Name() string     { return j.name }
func (j *fakeJob) Schedule() string { return j.schedule }

func (j *fakeJob) Run(ctx context.Context) error {
	n := int(j.calls.Add(1)) - 1
	if n < len(j.errs) {
		return j.errs[n]
	}
	return nil
}

func newJob(name string, errs ...error) *fakeJob {
	return &fakeJob{name: name, schedule: "0 0 2 * * *", errs: errs}
}

func TestAddRemoveJob(t *testing.T) {
	s := New(logger.Nop())

	require.NoError(t, s.AddJob(newJob("b")))
	require.NoError(t, s.AddJob(newJob("a")))
	assert.Error(t, s.AddJob(newJob("a")))
	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())

	bad := newJob("bad")
	bad.schedule = "not a schedule"
	assert.Error(t, s.AddJob(bad))

	require.NoError(t, s.RemoveJob("a"))
	assert.Error(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, s.GetAllJobs())
}

func TestRunNowRetries(t *testing.T) {
	s := New(logger.Nop(), WithRetry(2, time.Millisecond))
	job := newJob("flaky", errors.New("db down"), errors.New("db down"))
	require.NoError(t, s.AddJob(job))

	result, err := s.RunNow(context.Background(), "flaky")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, int32(3), job.calls.Load())

	_, err = s.RunNow(context.Background(), "missing")
	assert.Error(t, err)
}

func TestRunNowGivesUp(t *testing.T) {
	s := New(logger.Nop(), WithRetry(1, time.Millisecond))
	job := newJob("broken", errors.New("a"), errors.New("b"), errors.New("c"))
	require.NoError(t, s.AddJob(job))

	result, err := s.RunNow(context.Background(), "broken")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, "b", result.Error)
}

func TestRunNowSkipsRetryForPermanentErrors(t *testing.T) {
	for _, perm := range []error{
		fmt.Errorf("S1 failed: %w", contracts.ErrInsufficientHistory),
		contracts.NewValidationError("budget_eur", "must be >= 0"),
	} {
		s := New(logger.Nop(), WithRetry(3, time.Millisecond))
		job := newJob("pipeline", perm)
		require.NoError(t, s.AddJob(job))

		result, err := s.RunNow(context.Background(), "pipeline")
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, 1, result.Attempts, perm.Error())
	}
}

func TestRunNowCancelledDuringBackoff(t *testing.T) {
	s := New(logger.Nop(), WithRetry(3, time.Hour))
	require.NoError(t, s.AddJob(newJob("slow", errors.New("a"))))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := s.RunNow(ctx, "slow")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, context.Canceled.Error(), result.Error)
}

func TestJobStats(t *testing.T) {
	s := New(logger.Nop(), WithRetry(0, 0))
	require.NoError(t, s.AddJob(newJob("nightly", errors.New("boom"))))

	_, err := s.RunNow(context.Background(), "nightly")
	require.NoError(t, err)
	_, err = s.RunNow(context.Background(), "nightly")
	require.NoError(t, err)

	stats := s.GetJobStats()["nightly"]
	assert.Equal(t, 2, stats.TotalRuns)
	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 1, stats.FailureCount)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-12)
	require.NotNil(t, stats.LastSuccess)
	assert.Nil(t, stats.LastFailure)
	assert.Nil(t, stats.NextRun)

	s.Start()
	defer s.Stop()
	assert.NotNil(t, s.GetJobStats()["nightly"].NextRun)
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < historyLimit+5; i++ {
		h.AddResult(JobResult{Success: i%2 == 0})
	}
	assert.Len(t, h.Results, historyLimit)
	assert.Len(t, h.GetLatestResults(3), 3)
	assert.Empty(t, h.GetLatestResults(0))
	assert.Len(t, h.GetFailedResults(), historyLimit/2)
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 1e-12)
	assert.Zero(t, (&JobHistory{}).GetSuccessRate())
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(contracts.ErrInsufficientHistory))
	assert.False(t, Retryable(contracts.NewValidationError("x", "bad")))
	assert.True(t, Retryable(errors.New("connection reset")))
	assert.True(t, Retryable(contracts.NewIntegrityError("latest_pointer", "missing")))
}
