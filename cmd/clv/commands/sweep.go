package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/targeting"
)

var sweepWeights string

// sweepCmd represents the sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "손실/CLV 가중치 프런티어 계산",
	Long: `Re-targets the latest predictions for every w_loss (w_clv = 1 - w_loss)
and prints each weighting's budget outcome and overlap with the
loss-only selection.

Example:
  go run ./cmd/clv sweep
  go run ./cmd/clv sweep --weights 1,0.75,0.5,0.25,0`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepWeights, "weights", "", "comma-separated w_loss values (default: params decisioning.sweep_weights)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	wLosses := a.params.Decisioning.SweepWeights
	if sweepWeights != "" {
		if wLosses, err = parseWeights(sweepWeights); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	cutoff, err := a.stores.Predictions.LatestCutoff(ctx)
	if err != nil {
		return fmt.Errorf("latest predictions: %w", err)
	}
	preds, err := a.stores.Predictions.Latest(ctx)
	if err != nil {
		return fmt.Errorf("latest predictions: %w", err)
	}

	points, err := targeting.WeightSweep(preds, wLosses, a.params.Targeting())
	if err != nil {
		return err
	}

	PrintHeader("Weight Sweep · " + contracts.FormatDate(cutoff))
	widths := []int{7, 7, 9, 14, 12, 8, 8}
	PrintTableHeader([]string{"w_loss", "w_clv", "Targeted", "Prevented", "Net uplift", "ROI", "Overlap"}, widths)
	for _, p := range points {
		PrintTableRow([]string{
			fmt.Sprintf("%.2f", p.WLoss),
			fmt.Sprintf("%.2f", p.WCLV),
			fmt.Sprintf("%d", p.Summary.TargetedCustomers),
			fmt.Sprintf("€%.2f", p.Summary.ExpectedPreventedLoss),
			fmt.Sprintf("€%.2f", p.Summary.NetUplift),
			formatROI(p.Summary.ROI),
			fmt.Sprintf("%.1f%%", p.OverlapVsBaseline*100),
		}, widths)
	}
	return nil
}

func parseWeights(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, contracts.NewValidationError("weights", "%q is not a number", p)
		}
		out = append(out, v)
	}
	return out, nil
}
