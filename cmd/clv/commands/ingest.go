package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/ledger"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "S0: 거래 원장 CSV 적재",
	Long: `Parses, cleans and stores a transaction ledger CSV, replacing the
stored ledger.

Required columns: InvoiceNo, StockCode, Quantity, InvoiceDate,
UnitPrice, CustomerID. Rows without a customer are dropped.

Example:
  go run ./cmd/clv ingest --csv data/online_retail.csv`,
	RunE: runIngest,
}

var ingestCSV string

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestCSV, "csv", "", "ledger CSV path")
	ingestCmd.MarkFlagRequired("csv")
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := ledger.NewIngester(a.stores.Ledger, a.log).IngestFile(cmd.Context(), ingestCSV)
	if err != nil {
		return err
	}

	PrintHeader("Ledger Ingest")
	PrintKeyValue("File", res.Path, 14)
	PrintKeyValue("Input lines", fmt.Sprintf("%d", res.Clean.Input), 14)
	PrintKeyValue("Kept", fmt.Sprintf("%d", res.Clean.Kept), 14)
	PrintKeyValue("Zero quantity", fmt.Sprintf("%d", res.Clean.ZeroQuantity), 14)
	PrintKeyValue("Bad price", fmt.Sprintf("%d", res.Clean.BadPrice), 14)
	PrintKeyValue("Returns kept", fmt.Sprintf("%d", res.Clean.Cancelled), 14)
	PrintKeyValue("Span", contracts.FormatDate(res.Span.Min)+" ~ "+contracts.FormatDate(res.Span.Max), 14)
	PrintSuccess(fmt.Sprintf("Stored %d transactions in %s", res.Inserted, res.Duration.Round(time.Millisecond)))
	return nil
}
