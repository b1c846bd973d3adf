package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"time"
)

// SeedOptions shapes the synthetic demo ledger
type SeedOptions struct {
	Start     time.Time
	Customers int
	Days      int
	Seed      uint64
}

// DefaultSeedOptions mirrors the demo dataset: 120 customers over 260 days from 2010-01-01
func DefaultSeedOptions() SeedOptions {
	return SeedOptions{
		Start:     time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC),
		Customers: 120,
		Days:      260,
		Seed:      42,
	}
}

var seedQuantities = []float64{1, 2, 3, 4, 5, -1}
var seedWeights = []int{20, 20, 20, 20, 18, 2}

func weightedQuantity(r *rand.Rand) float64 {
	total := 0
	for _, w := range seedWeights {
		total += w
	}
	pick := r.IntN(total)
	for i, w := range seedWeights {
		if pick < w {
			return seedQuantities[i]
		}
		pick -= w
	}
	return seedQuantities[0]
}

// WriteDemoCSV writes a synthetic retail ledger in the ingestion format.
// Every day a random subset of customers places one invoice of 1-4 lines.
func WriteDemoCSV(w io.Writer, opts SeedOptions) (int, error) {
	if opts.Customers <= 0 || opts.Days <= 0 {
		return 0, fmt.Errorf("seed: customers and days must be positive")
	}

	r := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	cw := csv.NewWriter(w)

	header := []string{ColInvoiceNo, ColStockCode, "Description", ColQuantity, ColInvoiceDate, ColUnitPrice, ColCustomerID, "Country"}
	if err := cw.Write(header); err != nil {
		return 0, err
	}

	customers := make([]int, opts.Customers)
	for i := range customers {
		customers[i] = 10000 + i
	}

	invoice := 530000
	rows := 0
	for d := 0; d < opts.Days; d++ {
		date := opts.Start.AddDate(0, 0, d)
		lo, hi := min(20, opts.Customers), min(60, opts.Customers)
		activeN := lo + r.IntN(hi-lo+1)

		r.Shuffle(len(customers), func(i, j int) { customers[i], customers[j] = customers[j], customers[i] })
		for _, cid := range customers[:activeN] {
			lines := 1 + r.IntN(4)
			for l := 0; l < lines; l++ {
				price := float64(int((0.5+r.Float64()*19.5)*100)) / 100
				rec := []string{
					strconv.Itoa(invoice),
					fmt.Sprintf("SKU%d", 100+r.IntN(900)),
					"Synthetic Item",
					strconv.FormatFloat(weightedQuantity(r), 'f', -1, 64),
					date.Format("02-01-2006 15:04"),
					strconv.FormatFloat(price, 'f', 2, 64),
					strconv.Itoa(cid),
					"United Kingdom",
				}
				if err := cw.Write(rec); err != nil {
					return rows, err
				}
				rows++
			}
			invoice++
		}
	}

	cw.Flush()
	return rows, cw.Error()
}
