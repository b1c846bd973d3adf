package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: Repository 인터페이스 정의는 여기서만

// LedgerReader reads the cleaned transaction ledger
type LedgerReader interface {
	Span(ctx context.Context) (LedgerSpan, error)
	// LoadRange returns transactions with from <= ts < to, ordered by timestamp
	LoadRange(ctx context.Context, from, to time.Time) ([]Transaction, error)
}

// LedgerWriter replaces the stored ledger
type LedgerWriter interface {
	ReplaceAll(ctx context.Context, txns []Transaction) (int64, error)
}

// DatasetWriter persists one cutoff partition of the rolling dataset.
// The partition is replaced atomically.
type DatasetWriter interface {
	ReplacePartition(ctx context.Context, cutoff time.Time, rows []RollingDatasetRow) error
}

// DatasetReader reads the persisted rolling dataset
type DatasetReader interface {
	LoadAll(ctx context.Context) ([]RollingDatasetRow, error)
	LoadCutoff(ctx context.Context, cutoff time.Time) ([]RollingDatasetRow, error)
	Cutoffs(ctx context.Context) ([]time.Time, error)
}

// PredictionWriter publishes prediction partitions and the "latest" alias
type PredictionWriter interface {
	ReplacePartition(ctx context.Context, cutoff time.Time, rows []PredictionRow) error
	SetLatest(ctx context.Context, cutoff time.Time) error
}

// PredictionReader is the read-only query surface over published predictions
type PredictionReader interface {
	LatestCutoff(ctx context.Context) (time.Time, error)
	Latest(ctx context.Context) ([]PredictionRow, error)
	// TopN orders by metric, which must be one of RankingMetrics()
	TopN(ctx context.Context, metric string, n int) ([]PredictionRow, error)
	Summary(ctx context.Context) (*PredictionSummary, error)
}

// ReportSink persists run report artifacts
type ReportSink interface {
	Save(ctx context.Context, report *RunReport) (*ArtifactPaths, error)
}

// RunRecorder keeps run metadata
type RunRecorder interface {
	StartRun(ctx context.Context, run *RunRecord) error
	FinishRun(ctx context.Context, run *RunRecord) error
}
