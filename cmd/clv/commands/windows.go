package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/window"
)

// windowsCmd represents the windows command
var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "S1: 컷오프별 관측/갭/예측 윈도우 조회",
	Long: `Prints the observation, gap and prediction windows of every cutoff
the stored ledger supports, or of a single --cutoff.

Example:
  go run ./cmd/clv windows
  go run ./cmd/clv windows --cutoff 2011-06-01`,
	RunE: runWindows,
}

var windowsCutoff string

func init() {
	rootCmd.AddCommand(windowsCmd)
	windowsCmd.Flags().StringVar(&windowsCutoff, "cutoff", "", "single cutoff date (YYYY-MM-DD)")
}

func runWindows(cmd *cobra.Command, args []string) error {
	var (
		cutoffs []time.Time
		a       *app
		err     error
	)

	if windowsCutoff != "" {
		// no ledger needed for a single cutoff
		a, err = newApp(appOptions{offline: true})
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := contracts.ParseDate(windowsCutoff)
		if err != nil {
			return err
		}
		cutoffs = []time.Time{c}
	} else {
		a, err = newApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		span, err := a.stores.Ledger.Span(cmd.Context())
		if err != nil {
			return fmt.Errorf("ledger span: %w", err)
		}
		if cutoffs, err = window.EnumerateCutoffs(span.Min, span.Max, a.params.Data, a.params.Rolling.StepDays); err != nil {
			return err
		}
		if len(cutoffs) == 0 {
			return fmt.Errorf("ledger %s ~ %s: %w", contracts.FormatDate(span.Min), contracts.FormatDate(span.Max), contracts.ErrInsufficientHistory)
		}
	}

	ws, err := window.Windows(cutoffs, a.params.Data)
	if err != nil {
		return err
	}

	d := a.params.Data
	PrintHeader(fmt.Sprintf("Windows · obs %dd / gap %dd / pred %dd", d.ObservationDays, d.GapDays, d.PredictionDays))
	PrintKeyValue("Label horizon", fmt.Sprintf("%d days after each cutoff", int(d.Horizon().Hours()/24)), 14)
	fmt.Println()

	widths := []int{10, 23, 23, 23}
	PrintTableHeader([]string{"Cutoff", "Observation", "Gap", "Prediction"}, widths)
	for _, w := range ws {
		PrintTableRow([]string{
			contracts.FormatDate(w.CutoffDate),
			interval(w.ObsStart, w.ObsEnd),
			interval(w.GapStart, w.GapEnd),
			interval(w.PredStart, w.PredEnd),
		}, widths)
	}
	return nil
}

func interval(from, to time.Time) string {
	if from.Equal(to) {
		return "-"
	}
	return contracts.FormatDate(from) + " ~ " + contracts.FormatDate(to)
}
