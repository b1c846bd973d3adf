package commands

import (
	"context"
	"fmt"

	"github.com/wonny/clv-retention/internal/brain"
	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/ledger"
	"github.com/wonny/clv-retention/internal/memstore"
	"github.com/wonny/clv-retention/internal/model"
	"github.com/wonny/clv-retention/internal/params"
	"github.com/wonny/clv-retention/internal/report"
	"github.com/wonny/clv-retention/internal/rolling"
	"github.com/wonny/clv-retention/internal/scoring"
	"github.com/wonny/clv-retention/pkg/config"
	"github.com/wonny/clv-retention/pkg/database"
	"github.com/wonny/clv-retention/pkg/logger"
	"github.com/wonny/clv-retention/pkg/metrics"
	"github.com/wonny/clv-retention/pkg/redis"
)

// app holds what every pipeline command needs
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	params     *params.Document
	paramsHash string
	metrics    *metrics.Registry

	// nil in offline mode
	db    *database.DB
	redis *redis.Client

	stores brain.Stores
	runs   *report.RunRepository
}

// appOptions selects the storage backend
type appOptions struct {
	offline bool
}

// newApp loads config and params and opens the stores.
// Offline mode keeps every table in memory for one process.
func newApp(opts appOptions) (*app, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.offline {
		cfg, err = config.LoadOffline()
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if paramsFile != "" {
		cfg.Paths.ParamsFile = paramsFile
	}

	log := logger.New(cfg)

	doc, raw, err := params.LoadOrDefault(cfg.Paths.ParamsFile)
	if err != nil {
		return nil, fmt.Errorf("load params: %w", err)
	}
	snap, err := params.NewSnapshot(doc, raw, cfg.Paths.ParamsFile)
	if err != nil {
		return nil, err
	}
	log.WithFields(map[string]interface{}{
		"path":        snap.Path,
		"params_hash": snap.Hash,
		"defaults":    len(snap.YAML) == 0,
	}).Debug("Params loaded")
	for _, w := range params.Warn(doc) {
		log.WithField("code", w.Code).Warn(w.Message)
	}

	a := &app{
		cfg:        cfg,
		log:        log,
		params:     doc,
		paramsHash: snap.Hash,
		metrics:    metrics.New(),
	}

	if opts.offline {
		store := memstore.New()
		a.stores = brain.Stores{
			Ledger:      store.Ledger(),
			Dataset:     store.Dataset(),
			Predictions: store.Predictions(),
			Runs:        store.Runs(),
		}
		return a, nil
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.db = db
	a.runs = report.NewRunRepository(db)
	a.stores = brain.Stores{
		Ledger:      ledger.NewRepository(db),
		Dataset:     rolling.NewRepository(db),
		Predictions: scoring.NewRepository(db),
		Runs:        a.runs,
	}

	rc, err := redis.New(cfg)
	if err != nil {
		// the API and pipeline work without the cache
		log.WithError(err).Warn("Redis unavailable, continuing without cache")
		rc = redis.Wrap(nil)
	}
	a.redis = rc

	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// artifacts is the model bundle store
func (a *app) artifacts() *model.ArtifactStore {
	return model.NewArtifactStore(a.cfg.Paths.ModelsDir())
}

// reportSink writes report files and mirrors them to S3 when a bucket is set
func (a *app) reportSink(ctx context.Context) (contracts.ReportSink, error) {
	var sink contracts.ReportSink = report.NewFileWriter(a.cfg.Paths.ReportsDir, a.log)
	if !a.cfg.S3.Enabled() {
		return sink, nil
	}

	client, err := report.NewS3Client(ctx, a.cfg.S3)
	if err != nil {
		return nil, err
	}
	a.log.WithField("bucket", a.cfg.S3.Bucket).Info("Mirroring reports to S3")
	return report.NewS3Mirror(sink, client, a.cfg.S3.Bucket, a.cfg.S3.Prefix, a.log), nil
}

// predictionReader wraps the prediction store for reads when Redis is enabled.
// The second result is nil without Redis.
func (a *app) predictionReader() (contracts.PredictionReader, *scoring.CachedReader) {
	if a.redis == nil || !a.redis.Enabled() {
		return a.stores.Predictions, nil
	}
	cached := scoring.NewCachedReader(a.stores.Predictions, redis.NewCache(a.redis, redis.Namespace))
	return cached, cached
}

// invalidateCache drops cached projections after a publish
func (a *app) invalidateCache(ctx context.Context) {
	if _, cached := a.predictionReader(); cached != nil {
		if err := cached.Invalidate(ctx); err != nil {
			a.log.WithError(err).Warn("Failed to invalidate prediction cache")
		}
	}
}

// orchestrator wires every stage with the app's stores
func (a *app) orchestrator(ctx context.Context, withReport bool) (*brain.Orchestrator, error) {
	opts := []brain.Option{
		brain.WithArtifacts(a.artifacts()),
		brain.WithMetrics(a.metrics),
		brain.WithProgress(progressWriter()),
	}
	if withReport {
		sink, err := a.reportSink(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, brain.WithReportSink(sink))
	}
	return brain.NewOrchestrator(a.stores, a.params, a.log, opts...)
}
