package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/clv-retention/internal/brain"
	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/scoring"
	"github.com/wonny/clv-retention/pkg/logger"
)

type fakeRunner struct {
	got brain.RunConfig
	err error
}

func (f *fakeRunner) Run(_ context.Context, cfg brain.RunConfig) (*brain.RunResult, error) {
	f.got = cfg
	if f.err != nil {
		return &brain.RunResult{RunID: "r1"}, f.err
	}
	return &brain.RunResult{
		RunID:           "r1",
		Success:         true,
		CompletedStages: contracts.AllStages(),
		Publish:         &scoring.PublishResult{Latest: time.Date(2011, 6, 1, 0, 0, 0, 0, time.UTC), Rows: 12},
	}, nil
}

type fakeCache struct {
	calls int
	err   error
}

func (f *fakeCache) Invalidate(context.Context) error {
	f.calls++
	return f.err
}

func TestPipelineJob(t *testing.T) {
	runner := &fakeRunner{}
	cache := &fakeCache{}
	job := NewPipelineJob(runner, cache, "data/ledger.csv", "", logger.Nop())

	assert.Equal(t, "clv_pipeline", job.Name())
	assert.Equal(t, DefaultPipelineSchedule, job.Schedule())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, "data/ledger.csv", runner.got.LedgerCSV)
	assert.Equal(t, 1, cache.calls)
}

func TestPipelineJobFailure(t *testing.T) {
	runner := &fakeRunner{err: contracts.ErrInsufficientHistory}
	cache := &fakeCache{}
	job := NewPipelineJob(runner, cache, "", "0 30 1 * * *", logger.Nop())

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrInsufficientHistory)
	assert.Zero(t, cache.calls)
	assert.Equal(t, "0 30 1 * * *", job.Schedule())
}

func TestPipelineJobCacheErrorIsNotFatal(t *testing.T) {
	job := NewPipelineJob(&fakeRunner{}, &fakeCache{err: errors.New("redis down")}, "", "", logger.Nop())
	assert.NoError(t, job.Run(context.Background()))

	assert.NoError(t, NewPipelineJob(&fakeRunner{}, nil, "", "", logger.Nop()).Run(context.Background()))
}

func TestReportRetentionJob(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	touch := func(name string, age time.Duration) {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		mt := now.Add(-age)
		require.NoError(t, os.Chtimes(path, mt, mt))
	}
	touch("run_report_2011-01-01_20240101_000000.json", 60*24*time.Hour)
	touch("top_loss_2011-01-01_20240101_000000.csv", 60*24*time.Hour)
	touch("run_report_2011-02-01_20240220_000000.json", 10*24*time.Hour)
	touch("notes.txt", 90*24*time.Hour)

	job := NewReportRetentionJob(dir, 30*24*time.Hour, logger.Nop())
	job.now = func() time.Time { return now }
	require.NoError(t, job.Run(context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"run_report_2011-02-01_20240220_000000.json", "notes.txt"}, names)
}

func TestReportRetentionKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run_report_2011-01-01_20240101_000000.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	old := time.Now().Add(-365 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	job := NewReportRetentionJob(dir, time.Hour, logger.Nop())
	require.NoError(t, job.Run(context.Background()))
	assert.FileExists(t, path)
}
