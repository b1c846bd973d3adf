package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/quality"
)

// qualityCmd represents the quality command
var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "S7: 예측 품질 점검 (드리프트/캘리브레이션)",
	Long: `Checks the published predictions (required columns, probability
bounds, key uniqueness), then reports feature drift (PSI) of the latest
cutoff against the training cutoffs and the calibration of churn
probabilities on labelled cutoffs.

Example:
  go run ./cmd/clv quality`,
	RunE: runQuality,
}

func init() {
	rootCmd.AddCommand(qualityCmd)
}

func runQuality(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	// without a bundle every earlier cutoff is the reference
	var trainCutoffs []time.Time
	if b, err := a.artifacts().Latest(); err == nil {
		trainCutoffs = b.TrainCutoffs
	} else {
		PrintWarning("No model bundle found, using every earlier cutoff as drift reference")
	}

	checker := quality.NewChecker(a.params.Quality, a.log, a.metrics)
	rep, err := checker.Run(cmd.Context(), quality.Sources{
		Columns:     a.stores.Predictions,
		Predictions: a.stores.Predictions,
		Dataset:     a.stores.Dataset,
	}, trainCutoffs)
	if err != nil {
		return err
	}

	printQuality(rep)
	return nil
}

// psiShift marks a feature whose distribution moved materially
const psiShift = 0.2

func printQuality(rep *quality.Report) {
	PrintHeader("Quality Report")
	PrintKeyValue("Cutoff", contracts.FormatDate(rep.CutoffDate), 10)
	PrintKeyValue("Rows", fmt.Sprintf("%d", rep.Rows), 10)

	fmt.Println()
	fmt.Println("Feature drift (PSI)")
	PrintTableHeader([]string{"Feature", "PSI"}, []int{28, 10})
	features := make([]string, 0, len(rep.Drift))
	for f := range rep.Drift {
		features = append(features, f)
	}
	sort.Slice(features, func(i, j int) bool { return rep.Drift[features[i]] > rep.Drift[features[j]] })
	for _, f := range features {
		flag := ""
		if rep.Drift[f] > psiShift {
			flag = "  ⚠️"
		}
		PrintTableRow([]string{f, fmt.Sprintf("%.4f%s", rep.Drift[f], flag)}, []int{28, 10})
	}

	fmt.Println()
	if rep.Calibration == nil || rep.Calibration.Rows == 0 {
		PrintInfo("Calibration skipped: no labelled cutoff among the scored partitions")
	} else {
		fmt.Printf("Calibration (Brier %.4f, n=%d)\n", rep.Calibration.Brier, rep.Calibration.Rows)
		PrintTableHeader([]string{"Mean pred", "Frac pos", "Count"}, []int{12, 12, 8})
		for _, bin := range rep.Calibration.Curve {
			PrintTableRow([]string{
				fmt.Sprintf("%.3f", bin.MeanPredicted),
				fmt.Sprintf("%.3f", bin.FractionPos),
				fmt.Sprintf("%d", bin.Count),
			}, []int{12, 12, 8})
		}
	}

	fmt.Println()
	fmt.Println("Churn probability thresholds")
	qs := make([]string, 0, len(rep.Thresholds.Quantiles))
	for q := range rep.Thresholds.Quantiles {
		qs = append(qs, q)
	}
	sort.Strings(qs)
	for _, q := range qs {
		PrintKeyValue(q, fmt.Sprintf("%.3f", rep.Thresholds.Quantiles[q]), 10)
	}
	PrintKeyValue("> 0.5", fmt.Sprintf("%.1f%%", rep.Thresholds.PctAbove05*100), 10)
	PrintKeyValue("> 0.7", fmt.Sprintf("%.1f%%", rep.Thresholds.PctAbove07*100), 10)
}
