package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/scoring"
)

// scoreCmd represents the score command
var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "S5: 예측 생성 및 게시",
	Long: `Scores every cutoff of the stored rolling dataset with the latest
model bundle, replaces the prediction partitions and moves the "latest"
pointer to the newest cutoff.

Example:
  go run ./cmd/clv score`,
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	b, err := a.artifacts().Latest()
	if err != nil {
		return fmt.Errorf("load latest model bundle (run `clv train` first): %w", err)
	}
	if b.ParamsHash != a.paramsHash {
		PrintWarning("Model bundle was trained with different params (" + b.ParamsHash[:min(12, len(b.ParamsHash))] + ")")
	}

	rows, err := a.stores.Dataset.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load rolling dataset: %w", err)
	}

	engine := scoring.NewEngine(a.stores.Predictions, a.log)
	preds, err := engine.Score(rows, scoring.InputColumns(rows), b)
	if err != nil {
		return err
	}
	pub, err := engine.Publish(ctx, preds)
	if err != nil {
		return err
	}
	a.invalidateCache(ctx)

	PrintHeader("Predictions Published")
	PrintKeyValue("Partitions", fmt.Sprintf("%d", len(pub.Partitions)), 12)
	PrintKeyValue("Rows", fmt.Sprintf("%d", pub.Rows), 12)
	PrintKeyValue("Latest", contracts.FormatDate(pub.Latest), 12)
	PrintSuccess("Latest pointer updated")
	return nil
}
