package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/rolling"
)

// buildRollingCmd represents the build-rolling command
var buildRollingCmd = &cobra.Command{
	Use:   "build-rolling",
	Short: "S1-S3: 롤링 컷오프 데이터셋 생성",
	Long: `Enumerates cutoffs over the stored ledger, builds features and
labels for each cutoff in a bounded worker pool and replaces the
rolling dataset partitions.

Windows, step and workers come from the params file (data, rolling).

Example:
  go run ./cmd/clv build-rolling
  go run ./cmd/clv build-rolling --params configs/params.yaml`,
	RunE: runBuildRolling,
}

func init() {
	rootCmd.AddCommand(buildRollingCmd)
}

func runBuildRolling(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	assembler := rolling.NewAssembler(a.stores.Ledger, a.stores.Dataset, a.log,
		rolling.WithMetrics(a.metrics),
		rolling.WithProgress(progressWriter()),
	)
	res, err := assembler.Build(cmd.Context(), a.params.RollingParams())
	if err != nil {
		return err
	}

	PrintHeader("Rolling Dataset")
	PrintKeyValue("Cutoffs", fmt.Sprintf("%d (%s ~ %s)", len(res.Cutoffs),
		contracts.FormatDate(res.Cutoffs[0]), contracts.FormatDate(res.Cutoffs[len(res.Cutoffs)-1])), 18)
	PrintKeyValue("Rows", fmt.Sprintf("%d", res.Stats.Rows), 18)
	PrintKeyValue("Latest customers", fmt.Sprintf("%d", res.Stats.LatestCustomers), 18)
	PrintKeyValue("Churn rate", fmt.Sprintf("%.1f%%", res.Stats.ChurnRate*100), 18)
	PrintKeyValue("Duplicates dropped", fmt.Sprintf("%d", res.Stats.DuplicatesDropped), 18)
	PrintSuccess("Rolling dataset stored")
	return nil
}
