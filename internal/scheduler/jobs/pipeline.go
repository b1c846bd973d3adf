package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/clv-retention/internal/brain"
	"github.com/wonny/clv-retention/pkg/logger"
)

// Runner executes one pipeline run
type Runner interface {
	Run(ctx context.Context, config brain.RunConfig) (*brain.RunResult, error)
}

// Invalidator drops cached API projections after a new partition is published
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// PipelineJob runs the full pipeline nightly against the stored ledger,
// or re-ingests LedgerCSV first when it is set.
type PipelineJob struct {
	runner    Runner
	cache     Invalidator
	ledgerCSV string
	schedule  string
	logger    *logger.Logger
}

// DefaultPipelineSchedule is 2 AM daily (with seconds)
const DefaultPipelineSchedule = "0 0 2 * * *"

// NewPipelineJob creates a new pipeline job. cache may be nil.
func NewPipelineJob(runner Runner, cache Invalidator, ledgerCSV, schedule string, log *logger.Logger) *PipelineJob {
	if schedule == "" {
		schedule = DefaultPipelineSchedule
	}
	return &PipelineJob{
		runner:    runner,
		cache:     cache,
		ledgerCSV: ledgerCSV,
		schedule:  schedule,
		logger:    log,
	}
}

// Name returns the job name
func (j *PipelineJob) Name() string {
	return "clv_pipeline"
}

// Schedule returns the cron schedule
func (j *PipelineJob) Schedule() string {
	return j.schedule
}

// Run executes the pipeline
func (j *PipelineJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled pipeline run")

	result, err := j.runner.Run(ctx, brain.RunConfig{LedgerCSV: j.ledgerCSV})
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	if j.cache != nil {
		if err := j.cache.Invalidate(ctx); err != nil {
			// stale entries expire on their own TTL
			j.logger.WithError(err).Warn("Failed to invalidate prediction cache")
		}
	}

	fields := map[string]interface{}{
		"run_id": result.RunID,
		"stages": len(result.CompletedStages),
	}
	if result.Publish != nil {
		fields["latest_cutoff"] = result.Publish.Latest
		fields["rows"] = result.Publish.Rows
	}
	j.logger.WithFields(fields).Info("Scheduled pipeline run completed")

	return nil
}
