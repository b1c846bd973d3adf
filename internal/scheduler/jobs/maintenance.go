package jobs

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/wonny/clv-retention/internal/report"
	"github.com/wonny/clv-retention/pkg/logger"
)

// ReportRetentionJob removes report artifacts older than the retention window
type ReportRetentionJob struct {
	dir       string
	retention time.Duration
	logger    *logger.Logger
	now       func() time.Time
}

// NewReportRetentionJob creates a new retention job
func NewReportRetentionJob(dir string, retention time.Duration, log *logger.Logger) *ReportRetentionJob {
	return &ReportRetentionJob{
		dir:       dir,
		retention: retention,
		logger:    log,
		now:       time.Now,
	}
}

// Name returns the job name
func (j *ReportRetentionJob) Name() string {
	return "report_retention"
}

// Schedule returns the cron schedule (Sunday 3 AM)
func (j *ReportRetentionJob) Schedule() string {
	return "0 0 3 * * 0"
}

// Run deletes expired artifacts. The newest artifact is always kept.
func (j *ReportRetentionJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled report cleanup")

	files, err := report.List(j.dir)
	if err != nil {
		return err
	}

	cutoff := j.now().Add(-j.retention)
	removed := 0
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		// files are newest first
		if i == 0 || !f.ModTime.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, f.Name)); err != nil {
			j.logger.WithError(err).WithField("file", f.Name).Warn("Failed to remove report artifact")
			continue
		}
		removed++
	}

	if removed > 0 {
		j.logger.WithField("removed", removed).Info("Report cleanup completed")
	}

	return nil
}
