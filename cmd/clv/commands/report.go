package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/clv-retention/internal/brain"
	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/targeting"
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "S6+S8: 타겟팅 시뮬레이션 및 리포트 저장",
	Long: `Runs the loss-only and blended targeting strategies on the latest
published predictions with the params' budget assumptions, then writes
run_report_<cutoff>_<ts>.json plus top_loss / top_blended CSVs to
REPORTS_DIR (mirrored to S3 when S3_BUCKET is set).

Example:
  go run ./cmd/clv report`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	cutoff, err := a.stores.Predictions.LatestCutoff(ctx)
	if err != nil {
		return fmt.Errorf("latest predictions: %w", err)
	}
	preds, err := a.stores.Predictions.Latest(ctx)
	if err != nil {
		return fmt.Errorf("latest predictions: %w", err)
	}

	opt := targeting.NewOptimizer(a.params.Targeting(), a.params.Weights(), a.log, a.metrics)
	sim, err := opt.Run(ctx, preds)
	if err != nil {
		return err
	}

	sink, err := a.reportSink(ctx)
	if err != nil {
		return err
	}
	rep := brain.NewRunReport(brain.GenerateRunID(), cutoff, a.params, a.paramsHash, sim, time.Now().UTC())
	paths, err := sink.Save(ctx, rep)
	if err != nil {
		return err
	}

	printSimulation(cutoff, sim)
	fmt.Println()
	PrintKeyValue("Report", paths.ReportJSON, 12)
	PrintKeyValue("Loss CSV", paths.LossCSV, 12)
	PrintKeyValue("Blended CSV", paths.BlendedCSV, 12)
	for _, r := range paths.Remote {
		PrintKeyValue("Mirrored", r, 12)
	}
	PrintSuccess("Report saved")
	return nil
}

func printSimulation(cutoff time.Time, sim *targeting.Simulation) {
	PrintHeader("Targeting Simulation · " + contracts.FormatDate(cutoff))
	PrintSummary("Loss-only", sim.LossOnly.Summary)
	PrintSummary(fmt.Sprintf("Blended (%s)", sim.Blended.ScoreColumn), sim.Blended.Summary)
	fmt.Println()
	PrintKeyValue("Overlap", fmt.Sprintf("%.1f%%", sim.OverlapPct*100), 16)
}
