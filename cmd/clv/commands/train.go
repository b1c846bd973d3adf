package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/model"
)

// trainCmd represents the train command
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "S4: 이탈/구매/매출 모델 학습",
	Long: `Trains the churn, spend and revenue models on the stored rolling
dataset with a time-based split (earliest 80% of cutoffs train, the rest
test) and saves the bundle under ARTIFACTS_DIR/models.

Example:
  go run ./cmd/clv train`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	rows, err := a.stores.Dataset.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load rolling dataset: %w", err)
	}

	b, err := model.NewTrainer(a.params.Models, a.log).Train(ctx, rows)
	if err != nil {
		return err
	}
	b.ParamsHash = a.paramsHash

	path, err := a.artifacts().Save(b)
	if err != nil {
		return fmt.Errorf("save model bundle: %w", err)
	}

	printBundle(b)
	PrintSuccess("Model bundle saved to " + path)
	return nil
}

func printBundle(b *model.Bundle) {
	PrintHeader("Model Bundle")
	PrintKeyValue("Params hash", b.ParamsHash, 14)
	PrintKeyValue("Features", strings.Join(b.FeatureSet.Columns, ", "), 14)
	PrintKeyValue("Train cutoffs", cutoffRange(b.TrainCutoffs), 14)
	PrintKeyValue("Test cutoffs", cutoffRange(b.TestCutoffs), 14)
	PrintSeparator()
	PrintKeyValue("Churn", fmt.Sprintf("ROC-AUC %.3f  PR-AUC %.3f  (n=%d)", b.Metrics.Churn.ROCAUC, b.Metrics.Churn.PRAUC, b.Metrics.Churn.Rows), 14)
	PrintKeyValue("Spend", fmt.Sprintf("ROC-AUC %.3f  PR-AUC %.3f  (n=%d)", b.Metrics.Spend.ROCAUC, b.Metrics.Spend.PRAUC, b.Metrics.Spend.Rows), 14)
	PrintKeyValue("Revenue", fmt.Sprintf("MAE %.2f  R² %.3f  (n=%d)", b.Metrics.Revenue.MAE, b.Metrics.Revenue.R2, b.Metrics.Revenue.Rows), 14)
}

func cutoffRange(cutoffs []time.Time) string {
	if len(cutoffs) == 0 {
		return "-"
	}
	return fmt.Sprintf("%d (%s ~ %s)", len(cutoffs),
		contracts.FormatDate(cutoffs[0]), contracts.FormatDate(cutoffs[len(cutoffs)-1]))
}
