package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/wonny/clv-retention/internal/contracts"
)

var (
	// Global flags
	paramsFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "clv",
	Short: "CLV retention decision engine",
	Long: `clv - churn-loss retention decisioning

Rolling-cutoff pipeline from a transaction ledger to a budgeted
retention target list:
  ingest → cutoffs → features → rolling dataset → train → score
  → targeting → quality → report

Usage:
  go run ./cmd/clv [command]

Examples:
  go run ./cmd/clv seed-demo --out data/demo.csv
  go run ./cmd/clv run --offline --csv data/demo.csv
  go run ./cmd/clv migrate up
  go run ./cmd/clv run --csv data/online_retail.csv
  go run ./cmd/clv api`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// Describe turns a command error into the line printed before exiting
func Describe(err error) string {
	switch {
	case errors.Is(err, contracts.ErrInsufficientHistory):
		return "❌ Not enough ledger history for a single cutoff. " +
			"Provide a longer ledger or shorten data.observation_days / prediction_days in the params file.\n   " + err.Error()
	case contracts.IsValidation(err):
		return "❌ Invalid input: " + err.Error()
	}
	return "❌ " + err.Error()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&paramsFile, "params", "", "params YAML (default PARAMS_PATH or configs/params.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
