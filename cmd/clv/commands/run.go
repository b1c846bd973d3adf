package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/clv-retention/internal/brain"
	"github.com/wonny/clv-retention/internal/contracts"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "전체 파이프라인 실행 (S0-S8)",
	Long: `Runs the complete pipeline:

  S0 ingest → S1 windows → S2/S3 rolling features and labels
  → S4 training → S5 scoring → S6 targeting → S7 quality → S8 report

Without --csv the stored ledger is reused. --offline keeps every table
in memory for this process only, so it needs --csv and no database.

Example:
  go run ./cmd/clv run --csv data/online_retail_II.csv
  go run ./cmd/clv run --skip-report
  go run ./cmd/clv run --offline --csv data/demo_online_retail.csv`,
	RunE: runPipeline,
}

var (
	runLedgerCSV  string
	runSkipReport bool
	runOffline    bool
	runID         string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runLedgerCSV, "csv", "", "ledger CSV to ingest in S0 (default: reuse stored ledger)")
	runCmd.Flags().BoolVar(&runSkipReport, "skip-report", false, "skip S8 report artifacts")
	runCmd.Flags().BoolVar(&runOffline, "offline", false, "run against an in-memory store (requires --csv)")
	runCmd.Flags().StringVar(&runID, "run-id", "", "run identifier (default: random UUID)")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if runOffline && runLedgerCSV == "" {
		return contracts.NewValidationError("csv", "--offline needs a ledger CSV")
	}

	a, err := newApp(appOptions{offline: runOffline})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	orch, err := a.orchestrator(ctx, !runSkipReport)
	if err != nil {
		return err
	}

	PrintHeader("CLV Retention Pipeline")
	PrintKeyValue("Params", a.cfg.Paths.ParamsFile+" ("+orch.ParamsHash()[:12]+")", 10)
	if runOffline {
		PrintInfo("Offline mode: nothing is persisted except model and report files")
	}

	result, err := orch.Run(ctx, brain.RunConfig{
		RunID:      runID,
		LedgerCSV:  runLedgerCSV,
		SkipReport: runSkipReport,
	})
	printRunResult(result)
	if err != nil {
		return err
	}

	a.invalidateCache(ctx)
	PrintSuccess(fmt.Sprintf("Pipeline completed in %.1fs", result.Duration.Seconds()))
	return nil
}

func printRunResult(r *brain.RunResult) {
	if r == nil {
		return
	}
	fmt.Println()
	PrintKeyValue("Run ID", r.RunID, 10)

	names := make([]string, len(r.CompletedStages))
	for i, s := range r.CompletedStages {
		names[i] = s.ShortName()
	}
	PrintKeyValue("Stages", strings.Join(names, " → "), 10)

	if r.Ingest != nil {
		PrintKeyValue("Ledger", fmt.Sprintf("%d rows kept of %d (%s ~ %s)",
			r.Ingest.Clean.Kept, r.Ingest.Clean.Input,
			contracts.FormatDate(r.Ingest.Span.Min), contracts.FormatDate(r.Ingest.Span.Max)), 10)
	}
	if r.Rolling != nil {
		PrintKeyValue("Dataset", fmt.Sprintf("%d rows over %d cutoffs, churn rate %.1f%%",
			r.Rolling.Rows, r.Rolling.DistinctCutoffs, r.Rolling.ChurnRate*100), 10)
	}
	if r.Bundle != nil {
		printBundle(r.Bundle)
	}
	if r.Publish != nil && r.Simulation != nil {
		printSimulation(r.Publish.Latest, r.Simulation)
	}
	if r.Quality != nil {
		printQuality(r.Quality)
	}
	if r.Artifacts != nil {
		fmt.Println()
		PrintKeyValue("Report", r.Artifacts.ReportJSON, 12)
		PrintKeyValue("Loss CSV", r.Artifacts.LossCSV, 12)
		PrintKeyValue("Blended CSV", r.Artifacts.BlendedCSV, 12)
		for _, remote := range r.Artifacts.Remote {
			PrintKeyValue("Mirrored", remote, 12)
		}
	}
}
