package brain

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/ledger"
	"github.com/wonny/clv-retention/internal/memstore"
	"github.com/wonny/clv-retention/internal/model"
	"github.com/wonny/clv-retention/internal/params"
	"github.com/wonny/clv-retention/internal/report"
	"github.com/wonny/clv-retention/pkg/logger"
	"github.com/wonny/clv-retention/pkg/metrics"
)

var start = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

// writeLedger writes 30 regular customers over days [0, days); every third
// customer stops buying after day 110.
func writeLedger(t *testing.T, days int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := csv.NewWriter(f)
	require.NoError(t, w.Write([]string{
		ledger.ColInvoiceNo, ledger.ColStockCode, ledger.ColQuantity,
		ledger.ColInvoiceDate, ledger.ColUnitPrice, ledger.ColCustomerID,
	}))

	invoice := 1000
	for d := 0; d < days; d++ {
		ts := start.AddDate(0, 0, d).Add(10 * time.Hour).Format("02-01-2006 15:04")
		for i := 1; i <= 30; i++ {
			if d%(i%5+2) != 0 || (i%3 == 0 && d > 110) {
				continue
			}
			qty := strconv.Itoa(1 + i%4)
			require.NoError(t, w.Write([]string{strconv.Itoa(invoice), "SKU1", qty, ts, fmt.Sprintf("%d.50", 2+i%7), strconv.Itoa(i)}))
			invoice++
		}
	}
	// pins the ledger end
	last := start.AddDate(0, 0, days-1).Add(12 * time.Hour).Format("02-01-2006 15:04")
	require.NoError(t, w.Write([]string{"END", "SKU1", "1", last, "1.00", "999"}))
	w.Flush()
	require.NoError(t, w.Error())
	return path
}

func testParams() *params.Document {
	d := params.Default()
	d.Data.ObservationDays = 60
	d.Data.GapDays = 0
	d.Data.PredictionDays = 30
	d.Rolling.StepDays = 20
	d.Rolling.Workers = 2
	d.Models.Churn.NEstimators = 10
	d.Models.Revenue.NEstimators = 10
	d.Models.Revenue.MinSamplesLeaf = 2
	d.Decisioning.BudgetEUR = 10
	d.Decisioning.TopNPreview = 5
	return d
}

func newOrchestrator(t *testing.T, store *memstore.Store, reg *metrics.Registry, opts ...Option) *Orchestrator {
	t.Helper()
	stores := Stores{
		Ledger:      store.Ledger(),
		Dataset:     store.Dataset(),
		Predictions: store.Predictions(),
		Runs:        store.Runs(),
	}
	opts = append(opts, WithMetrics(reg))
	o, err := NewOrchestrator(stores, testParams(), logger.Nop(), opts...)
	require.NoError(t, err)
	return o
}

func TestRun(t *testing.T) {
	store := memstore.New()
	reg := metrics.New()
	modelsDir := t.TempDir()
	reportsDir := t.TempDir()
	o := newOrchestrator(t, store, reg,
		WithArtifacts(model.NewArtifactStore(modelsDir)),
		WithReportSink(report.NewFileWriter(reportsDir, logger.Nop())),
	)

	res, err := o.Run(context.Background(), RunConfig{RunID: "run-a", LedgerCSV: writeLedger(t, 200)})
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, contracts.AllStages(), res.CompletedStages)
	require.Len(t, res.Cutoffs, 6)
	assert.Equal(t, start.AddDate(0, 0, 60), res.Cutoffs[0])
	assert.Equal(t, start.AddDate(0, 0, 160), res.Publish.Latest)
	assert.Len(t, res.Publish.Partitions, 6)
	assert.Equal(t, o.ParamsHash(), res.Bundle.ParamsHash)
	assert.Greater(t, res.Rolling.ChurnRate, 0.0)

	// the latest alias points at the newest partition
	latest, err := store.Predictions().LatestCutoff(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.Publish.Latest, latest)

	assert.Equal(t, 10, res.Simulation.LossOnly.Summary.TargetedCustomers)
	assert.LessOrEqual(t, res.Simulation.LossOnly.Summary.TotalCost, 10.0)
	assert.Len(t, res.Quality.Drift, 3)

	require.NotNil(t, res.Artifacts)
	for _, p := range []string{res.Artifacts.ReportJSON, res.Artifacts.LossCSV, res.Artifacts.BlendedCSV} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
	_, err = os.Stat(res.BundlePath)
	assert.NoError(t, err)

	run, ok := store.Runs().Get("run-a")
	require.True(t, ok)
	assert.Equal(t, contracts.RunStatusSuccess, run.Status)
	assert.Equal(t, o.ParamsHash(), run.ParamsHash)
	require.NotNil(t, run.CutoffDate)
	assert.Equal(t, res.Publish.Latest, *run.CutoffDate)
	require.NotNil(t, run.Report)
	assert.Equal(t, o.ParamsHash(), run.Report.Assumptions.ParamsHash)

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.PipelineRuns.WithLabelValues(contracts.RunStatusSuccess)))
}

func TestRunSkipReportReusesStoredLedger(t *testing.T) {
	store := memstore.New()
	reportsDir := t.TempDir()
	o := newOrchestrator(t, store, metrics.New(), WithReportSink(report.NewFileWriter(reportsDir, logger.Nop())))

	_, err := o.Run(context.Background(), RunConfig{LedgerCSV: writeLedger(t, 200), SkipReport: true})
	require.NoError(t, err)

	res, err := o.Run(context.Background(), RunConfig{SkipReport: true})
	require.NoError(t, err)
	assert.Nil(t, res.Ingest)
	assert.NotContains(t, res.CompletedStages, contracts.StageReport)
	assert.NotNil(t, res.Report)
	assert.Nil(t, res.Artifacts)

	files, err := report.List(reportsDir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRunInsufficientHistory(t *testing.T) {
	store := memstore.New()
	reg := metrics.New()
	o := newOrchestrator(t, store, reg)

	res, err := o.Run(context.Background(), RunConfig{RunID: "run-short", LedgerCSV: writeLedger(t, 50)})
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrInsufficientHistory)
	assert.False(t, res.Success)
	assert.Equal(t, []contracts.Stage{contracts.StageIngest}, res.CompletedStages)

	// nothing was published
	_, err = store.Predictions().LatestCutoff(context.Background())
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	run, ok := store.Runs().Get("run-short")
	require.True(t, ok)
	assert.Equal(t, contracts.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "S1")
	assert.Nil(t, run.Report)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.PipelineRuns.WithLabelValues(contracts.RunStatusFailed)))
}

func TestRunWithoutLedger(t *testing.T) {
	o := newOrchestrator(t, memstore.New(), metrics.New())
	_, err := o.Run(context.Background(), RunConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S0")
}

func TestRunCancelled(t *testing.T) {
	store := memstore.New()
	o := newOrchestrator(t, store, metrics.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := o.Run(ctx, RunConfig{RunID: "run-cancel", LedgerCSV: writeLedger(t, 200)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.CompletedStages)

	run, ok := store.Runs().Get("run-cancel")
	require.True(t, ok)
	assert.Equal(t, contracts.RunStatusFailed, run.Status)
}

func TestNewOrchestratorRejectsInvalidParams(t *testing.T) {
	d := testParams()
	d.Rolling.StepDays = 0
	_, err := NewOrchestrator(Stores{}, d, logger.Nop())
	assert.True(t, contracts.IsValidation(err))
}

func TestGenerateRunID(t *testing.T) {
	a, b := GenerateRunID(), GenerateRunID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
