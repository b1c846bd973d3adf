package brain

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/ledger"
	"github.com/wonny/clv-retention/internal/model"
	"github.com/wonny/clv-retention/internal/params"
	"github.com/wonny/clv-retention/internal/quality"
	"github.com/wonny/clv-retention/internal/rolling"
	"github.com/wonny/clv-retention/internal/scoring"
	"github.com/wonny/clv-retention/internal/targeting"
	"github.com/wonny/clv-retention/internal/window"
	"github.com/wonny/clv-retention/pkg/logger"
	"github.com/wonny/clv-retention/pkg/metrics"
)

// LedgerStore reads and replaces the transaction ledger
type LedgerStore interface {
	contracts.LedgerReader
	contracts.LedgerWriter
}

// DatasetStore reads and writes rolling dataset partitions
type DatasetStore interface {
	contracts.DatasetReader
	contracts.DatasetWriter
}

// PredictionStore publishes and serves predictions
type PredictionStore interface {
	contracts.PredictionReader
	contracts.PredictionWriter
	quality.ColumnLister
}

// Stores are the storage backends of one pipeline
type Stores struct {
	Ledger      LedgerStore
	Dataset     DatasetStore
	Predictions PredictionStore
	Runs        contracts.RunRecorder
}

// Orchestrator coordinates the entire 9-stage pipeline
// ⭐ SSOT: 파이프라인 조율은 여기서만
type Orchestrator struct {
	stores     Stores
	params     *params.Document
	paramsHash string

	// optional
	artifacts *model.ArtifactStore
	sink      contracts.ReportSink
	progress  io.Writer

	logger  *logger.Logger
	metrics *metrics.Registry
	now     func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithArtifacts saves every trained bundle into store
func WithArtifacts(store *model.ArtifactStore) Option {
	return func(o *Orchestrator) { o.artifacts = store }
}

// WithReportSink enables S8
func WithReportSink(sink contracts.ReportSink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithMetrics records stage durations and run outcomes
func WithMetrics(reg *metrics.Registry) Option {
	return func(o *Orchestrator) { o.metrics = reg }
}

// WithProgress renders the rolling build progress on w
func WithProgress(w io.Writer) Option {
	return func(o *Orchestrator) { o.progress = w }
}

// RunConfig holds configuration for a pipeline run
type RunConfig struct {
	RunID string
	// LedgerCSV is ingested in S0; empty reuses the stored ledger
	LedgerCSV  string
	SkipReport bool
}

// RunResult holds the results of a complete pipeline run
type RunResult struct {
	RunID           string
	Success         bool
	Error           error
	CompletedStages []contracts.Stage
	Ingest          *ledger.IngestResult
	Cutoffs         []time.Time
	Rolling         *rolling.Stats
	Bundle          *model.Bundle
	BundlePath      string
	Publish         *scoring.PublishResult
	Simulation      *targeting.Simulation
	Quality         *quality.Report
	Report          *contracts.RunReport
	Artifacts       *contracts.ArtifactPaths
	Duration        time.Duration
}

// NewOrchestrator creates a new orchestrator. The params document must be valid.
func NewOrchestrator(stores Stores, doc *params.Document, log *logger.Logger, opts ...Option) (*Orchestrator, error) {
	if err := params.Validate(doc); err != nil {
		return nil, err
	}
	hash, err := params.Hash(doc)
	if err != nil {
		return nil, fmt.Errorf("hash params: %w", err)
	}

	o := &Orchestrator{
		stores:     stores,
		params:     doc,
		paramsHash: hash,
		logger:     log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ParamsHash identifies the params document used by every run
func (o *Orchestrator) ParamsHash() string {
	return o.paramsHash
}

// Run executes the complete pipeline
// S0 → S1 → S2 → S3 → S4 → S5 → S6 → S7 → S8
func (o *Orchestrator) Run(ctx context.Context, config RunConfig) (*RunResult, error) {
	startTime := o.now()
	if config.RunID == "" {
		config.RunID = GenerateRunID()
	}

	result := &RunResult{
		RunID:           config.RunID,
		CompletedStages: make([]contracts.Stage, 0, len(contracts.AllStages())),
	}
	record := &contracts.RunRecord{
		RunID:      config.RunID,
		ParamsHash: o.paramsHash,
		Status:     contracts.RunStatusRunning,
		StartedAt:  startTime.UTC(),
	}
	if o.stores.Runs != nil {
		if err := o.stores.Runs.StartRun(ctx, record); err != nil {
			return result, fmt.Errorf("record run start: %w", err)
		}
	}

	o.logger.WithFields(map[string]interface{}{
		"run_id":      config.RunID,
		"params_hash": o.paramsHash,
		"ledger_csv":  config.LedgerCSV,
		"skip_report": config.SkipReport,
	}).Info("Starting pipeline run")

	err := o.runStages(ctx, config, result)
	result.Duration = o.now().Sub(startTime)
	result.Success = err == nil
	result.Error = err

	o.finish(ctx, record, result)

	if err != nil {
		o.logger.WithError(err).WithField("run_id", config.RunID).Error("Pipeline run failed")
		return result, err
	}

	o.logger.WithFields(map[string]interface{}{
		"run_id":   config.RunID,
		"duration": result.Duration.Seconds(),
		"stages":   len(result.CompletedStages),
	}).Info("Pipeline run completed successfully")

	return result, nil
}

func (o *Orchestrator) runStages(ctx context.Context, config RunConfig, result *RunResult) error {
	// S0: Ingest
	if err := o.stage(ctx, config, result, contracts.StageIngest, func(log *logger.Logger) error {
		return o.runS0(ctx, config, result, log)
	}); err != nil {
		return err
	}

	// S1: Windows
	if err := o.stage(ctx, config, result, contracts.StageWindows, func(log *logger.Logger) error {
		return o.runS1(ctx, result, log)
	}); err != nil {
		return err
	}

	// S2 + S3: features are built per cutoff inside the rolling worker pool
	var rows []contracts.RollingDatasetRow
	if err := o.stage(ctx, config, result, contracts.StageRolling, func(log *logger.Logger) error {
		var err error
		rows, err = o.runS3(ctx, result, log)
		return err
	}); err != nil {
		return err
	}

	// S4: Training
	if err := o.stage(ctx, config, result, contracts.StageTraining, func(log *logger.Logger) error {
		return o.runS4(ctx, rows, result, log)
	}); err != nil {
		return err
	}

	// S5: Scoring
	var latest []contracts.PredictionRow
	if err := o.stage(ctx, config, result, contracts.StageScoring, func(log *logger.Logger) error {
		var err error
		latest, err = o.runS5(ctx, rows, result, log)
		return err
	}); err != nil {
		return err
	}

	// S6: Targeting
	if err := o.stage(ctx, config, result, contracts.StageTargeting, func(log *logger.Logger) error {
		opt := targeting.NewOptimizer(o.params.Targeting(), o.params.Weights(), log, o.metrics)
		sim, err := opt.Run(ctx, latest)
		result.Simulation = sim
		return err
	}); err != nil {
		return err
	}

	// S7: Quality
	if err := o.stage(ctx, config, result, contracts.StageQuality, func(log *logger.Logger) error {
		checker := quality.NewChecker(o.params.Quality, log, o.metrics)
		src := quality.Sources{Columns: o.stores.Predictions, Predictions: o.stores.Predictions, Dataset: o.stores.Dataset}
		rep, err := checker.Run(ctx, src, result.Bundle.TrainCutoffs)
		result.Quality = rep
		return err
	}); err != nil {
		return err
	}

	// S8: Report (skip if requested or no sink)
	result.Report = o.buildReport(config.RunID, result)
	if config.SkipReport || o.sink == nil {
		o.logger.Info("Skipping S8:Report")
		return nil
	}
	return o.stage(ctx, config, result, contracts.StageReport, func(log *logger.Logger) error {
		paths, err := o.sink.Save(ctx, result.Report)
		result.Artifacts = paths
		return err
	})
}

// stage runs fn with a stage-scoped logger and records its outcome
func (o *Orchestrator) stage(ctx context.Context, config RunConfig, result *RunResult, s contracts.Stage, fn func(log *logger.Logger) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := o.logger.WithStage(s.String(), config.RunID)
	log.Infof("Running %s: %s", s.ShortName(), s.Description())

	started := o.now()
	err := fn(log)
	if o.metrics != nil {
		o.metrics.ObserveStage(s.String(), started, err)
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", s.ShortName(), err)
	}

	if s == contracts.StageRolling {
		result.CompletedStages = append(result.CompletedStages, contracts.StageFeatures)
	}
	result.CompletedStages = append(result.CompletedStages, s)
	log.WithField("duration_ms", o.now().Sub(started).Milliseconds()).Infof("%s completed", s.ShortName())
	return nil
}

// runS0 ingests the ledger CSV, or checks that a stored ledger exists
func (o *Orchestrator) runS0(ctx context.Context, config RunConfig, result *RunResult, log *logger.Logger) error {
	if config.LedgerCSV == "" {
		span, err := o.stores.Ledger.Span(ctx)
		if err != nil {
			return fmt.Errorf("read stored ledger: %w", err)
		}
		log.WithFields(map[string]interface{}{
			"min_date": contracts.FormatDate(span.Min),
			"max_date": contracts.FormatDate(span.Max),
		}).Info("Using stored ledger")
		return nil
	}

	res, err := ledger.NewIngester(o.stores.Ledger, log).IngestFile(ctx, config.LedgerCSV)
	if err != nil {
		return err
	}
	result.Ingest = res
	return nil
}

// runS1 enumerates cutoffs; an empty list ends the run with ErrInsufficientHistory
func (o *Orchestrator) runS1(ctx context.Context, result *RunResult, log *logger.Logger) error {
	span, err := o.stores.Ledger.Span(ctx)
	if err != nil {
		return fmt.Errorf("read ledger span: %w", err)
	}
	cutoffs, err := window.EnumerateCutoffs(span.Min, span.Max, o.params.Data, o.params.Rolling.StepDays)
	if err != nil {
		return err
	}
	if len(cutoffs) == 0 {
		return fmt.Errorf("%w: ledger %s..%s", contracts.ErrInsufficientHistory,
			contracts.FormatDate(span.Min), contracts.FormatDate(span.Max))
	}
	result.Cutoffs = cutoffs

	log.WithFields(map[string]interface{}{
		"cutoffs": len(cutoffs),
		"first":   contracts.FormatDate(cutoffs[0]),
		"last":    contracts.FormatDate(cutoffs[len(cutoffs)-1]),
	}).Info("Cutoffs enumerated")
	return nil
}

// runS3 builds features and labels for every cutoff and persists the union
func (o *Orchestrator) runS3(ctx context.Context, result *RunResult, log *logger.Logger) ([]contracts.RollingDatasetRow, error) {
	var opts []rolling.Option
	if o.metrics != nil {
		opts = append(opts, rolling.WithMetrics(o.metrics))
	}
	if o.progress != nil {
		opts = append(opts, rolling.WithProgress(o.progress))
	}

	res, err := rolling.NewAssembler(o.stores.Ledger, o.stores.Dataset, log, opts...).Build(ctx, o.params.RollingParams())
	if err != nil {
		return nil, err
	}
	result.Rolling = &res.Stats
	return res.Rows, nil
}

// runS4 trains the three models and saves the bundle
func (o *Orchestrator) runS4(ctx context.Context, rows []contracts.RollingDatasetRow, result *RunResult, log *logger.Logger) error {
	b, err := model.NewTrainer(o.params.Models, log).Train(ctx, rows)
	if err != nil {
		return err
	}
	b.ParamsHash = o.paramsHash
	result.Bundle = b

	if o.artifacts != nil {
		path, err := o.artifacts.Save(b)
		if err != nil {
			return fmt.Errorf("save model bundle: %w", err)
		}
		result.BundlePath = path
		log.WithField("path", path).Info("Model bundle saved")
	}
	return nil
}

// runS5 scores every cutoff, publishes all partitions and returns the latest one
func (o *Orchestrator) runS5(ctx context.Context, rows []contracts.RollingDatasetRow, result *RunResult, log *logger.Logger) ([]contracts.PredictionRow, error) {
	engine := scoring.NewEngine(o.stores.Predictions, log)
	preds, err := engine.Score(rows, scoring.InputColumns(rows), result.Bundle)
	if err != nil {
		return nil, err
	}
	pub, err := engine.Publish(ctx, preds)
	if err != nil {
		return nil, err
	}
	result.Publish = pub
	return scoring.LatestOnly(preds), nil
}

func (o *Orchestrator) buildReport(runID string, result *RunResult) *contracts.RunReport {
	return NewRunReport(runID, result.Publish.Latest, o.params, o.paramsHash, result.Simulation, o.now())
}

// NewRunReport assembles the report of one targeting pass over the latest cutoff
func NewRunReport(runID string, cutoff time.Time, doc *params.Document, paramsHash string, sim *targeting.Simulation, generatedAt time.Time) *contracts.RunReport {
	tp, w := doc.Targeting(), doc.Weights()
	return &contracts.RunReport{
		RunID:       runID,
		CutoffDate:  cutoff,
		GeneratedAt: generatedAt,
		Assumptions: contracts.Assumptions{
			BudgetEUR:       tp.BudgetEUR,
			CostPerCustomer: tp.CostPerCustomer,
			MaxCustomers:    tp.MaxCustomers,
			SaveRate:        tp.SaveRate,
			WLoss:           w.WLoss,
			WCLV:            w.WCLV,
			ParamsHash:      paramsHash,
		},
		LossOnly:    sim.LossOnly,
		Blended:     sim.Blended,
		OverlapPct:  sim.OverlapPct,
		TopNPreview: doc.Decisioning.TopNPreview,
	}
}

func (o *Orchestrator) finish(ctx context.Context, record *contracts.RunRecord, result *RunResult) {
	status := contracts.RunStatusSuccess
	if result.Error != nil {
		status = contracts.RunStatusFailed
		record.Error = result.Error.Error()
	}
	if o.metrics != nil {
		o.metrics.PipelineRuns.WithLabelValues(status).Inc()
	}
	if o.stores.Runs == nil {
		return
	}

	finished := o.now().UTC()
	record.Status = status
	record.FinishedAt = &finished
	record.Stages = result.CompletedStages
	if result.Publish != nil {
		c := result.Publish.Latest
		record.CutoffDate = &c
	}
	if result.Success {
		record.Report = result.Report
	}

	// a cancelled run still gets its final status
	if err := o.stores.Runs.FinishRun(context.WithoutCancel(ctx), record); err != nil {
		o.logger.WithError(err).WithField("run_id", record.RunID).Warn("Failed to record run outcome")
	}
}

// GenerateRunID generates a unique run ID
func GenerateRunID() string {
	return uuid.NewString()
}
