package commands

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/targeting"
	"github.com/wonny/clv-retention/pkg/config"
	"github.com/wonny/clv-retention/pkg/httputil"
	"github.com/wonny/clv-retention/pkg/logger"
)

// queryCmd talks to a running API server
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "실행 중인 API 서버 조회",
	Long: `Queries a running API server (API_URL, or --url).

Subcommands:
  summary   - 최신 예측 요약
  top       - 지표별 상위 고객
  simulate  - 예산 what-if

Example:
  go run ./cmd/clv query summary
  go run ./cmd/clv query top --by expected_clv -n 20
  go run ./cmd/clv query simulate --budget 2500 --w-loss 0.7`,
}

// healthcheckCmd is meant for container probes
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "API 서버 상태 확인",
	RunE:  runHealthcheck,
}

var (
	queryURL string

	topBy string
	topN  int

	simBudget   float64
	simCost     float64
	simMax      int
	simSaveRate float64
	simWLoss    float64
	simWCLV     float64
	simTopN     int
)

func init() {
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(healthcheckCmd)

	summaryCmd := &cobra.Command{Use: "summary", Short: "최신 예측 요약", RunE: runQuerySummary}
	topCmd := &cobra.Command{Use: "top", Short: "지표별 상위 고객", RunE: runQueryTop}
	simulateCmd := &cobra.Command{Use: "simulate", Short: "예산 what-if 시뮬레이션", RunE: runQuerySimulate}
	queryCmd.AddCommand(summaryCmd, topCmd, simulateCmd)

	queryCmd.PersistentFlags().StringVar(&queryURL, "url", "", "API base URL (default: API_URL)")
	healthcheckCmd.Flags().StringVar(&queryURL, "url", "", "API base URL (default: API_URL)")

	topCmd.Flags().StringVar(&topBy, "by", contracts.MetricExpectedLoss, "ranking metric")
	topCmd.Flags().IntVarP(&topN, "count", "n", 20, "number of customers")

	// unset flags fall back to the server's params defaults
	simulateCmd.Flags().Float64Var(&simBudget, "budget", 0, "campaign budget in EUR")
	simulateCmd.Flags().Float64Var(&simCost, "cost", 0, "cost per contacted customer")
	simulateCmd.Flags().IntVar(&simMax, "max-customers", 0, "headcount cap")
	simulateCmd.Flags().Float64Var(&simSaveRate, "save-rate", 0, "share of expected loss a contact prevents")
	simulateCmd.Flags().Float64Var(&simWLoss, "w-loss", 0, "blended weight of expected loss")
	simulateCmd.Flags().Float64Var(&simWCLV, "w-clv", 0, "blended weight of expected CLV")
	simulateCmd.Flags().IntVar(&simTopN, "top-n", 0, "customers listed per strategy")
}

func newAPIClient() (*httputil.Client, error) {
	cfg, err := config.LoadOffline()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	client := httputil.New(cfg, logger.New(cfg))
	if queryURL != "" {
		client = client.WithBaseURL(queryURL)
	}
	return client, nil
}

type healthResponse struct {
	Status       string  `json:"status"`
	Service      string  `json:"service"`
	LatestCutoff *string `json:"latest_cutoff"`
	Rows         int     `json:"rows"`
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	var health healthResponse
	if err := client.DisableRetry().GetJSON(ctx, "/health", &health); err != nil {
		return fmt.Errorf("healthcheck: %w", err)
	}
	if health.Status != "ok" {
		return fmt.Errorf("healthcheck: service is %s", health.Status)
	}

	latest := "none published"
	if health.LatestCutoff != nil {
		latest = *health.LatestCutoff
	}
	PrintSuccess(fmt.Sprintf("%s is healthy (latest cutoff: %s, %d rows)", health.Service, latest, health.Rows))
	return nil
}

func runQuerySummary(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	var s contracts.PredictionSummary
	if err := client.GetJSON(cmd.Context(), "/api/predictions/latest/summary", &s); err != nil {
		return err
	}

	PrintHeader("Latest Predictions · " + contracts.FormatDate(s.CutoffDate))
	PrintKeyValue("Customers", fmt.Sprintf("%d", s.Rows), 22)
	PrintKeyValue("Avg churn prob", fmt.Sprintf("%.3f", s.AvgChurnProb), 22)
	PrintKeyValue("Avg spend prob", fmt.Sprintf("%.3f", s.AvgSpendProb), 22)
	PrintKeyValue("Expected revenue", fmt.Sprintf("€%.2f", s.SumExpectedRevenue), 22)
	PrintKeyValue("Expected CLV", fmt.Sprintf("€%.2f", s.SumExpectedCLV), 22)
	PrintKeyValue("Expected loss", fmt.Sprintf("€%.2f", s.SumExpectedLoss), 22)
	return nil
}

type topResponse struct {
	By   string                    `json:"by"`
	N    int                       `json:"n"`
	Rows []contracts.PredictionRow `json:"rows"`
}

func runQueryTop(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("by", topBy)
	q.Set("n", strconv.Itoa(topN))

	var top topResponse
	if err := client.GetJSON(cmd.Context(), "/api/predictions/latest/top?"+q.Encode(), &top); err != nil {
		return err
	}

	PrintHeader(fmt.Sprintf("Top %d by %s", top.N, top.By))
	widths := []int{10, 8, 8, 12, 12, 12}
	PrintTableHeader([]string{"Customer", "Churn", "Spend", "Exp. rev", "Exp. CLV", "Exp. loss"}, widths)
	for _, r := range top.Rows {
		PrintTableRow([]string{
			strconv.FormatInt(r.CustomerID, 10),
			fmt.Sprintf("%.3f", r.ChurnProb),
			fmt.Sprintf("%.3f", r.SpendProb),
			fmt.Sprintf("€%.2f", r.ExpectedRevenue),
			fmt.Sprintf("€%.2f", r.ExpectedCLV),
			fmt.Sprintf("€%.2f", r.ExpectedLoss),
		}, widths)
	}
	return nil
}

type simulateResponse struct {
	CutoffDate string                   `json:"cutoff_date"`
	Params     targeting.SimulateParams `json:"params"`
	Result     targeting.Simulation     `json:"result"`
}

func runQuerySimulate(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	body := map[string]interface{}{}
	flags := cmd.Flags()
	for name, field := range map[string]struct {
		key   string
		value interface{}
	}{
		"budget":        {"budget_eur", simBudget},
		"cost":          {"cost_per_customer", simCost},
		"max-customers": {"max_customers", simMax},
		"save-rate":     {"save_rate", simSaveRate},
		"w-loss":        {"w_loss", simWLoss},
		"w-clv":         {"w_clv", simWCLV},
		"top-n":         {"top_n", simTopN},
	} {
		if flags.Changed(name) {
			body[field.key] = field.value
		}
	}

	var res simulateResponse
	if err := client.PostJSONInto(cmd.Context(), "/api/decisioning/simulate", body, &res); err != nil {
		return err
	}

	p := res.Params
	PrintHeader("What-if · " + res.CutoffDate)
	PrintKeyValue("Budget", fmt.Sprintf("€%.2f at €%.2f per customer", p.BudgetEUR, p.CostPerCustomer), 12)
	PrintKeyValue("Capacity", fmt.Sprintf("%d customers", p.MaxCustomers), 12)
	PrintKeyValue("Save rate", fmt.Sprintf("%.0f%%", p.SaveRate*100), 12)
	PrintKeyValue("Weights", fmt.Sprintf("loss %.2f / clv %.2f", p.WLoss, p.WCLV), 12)
	if res.Result.LossOnly != nil {
		PrintSummary("Loss-only", res.Result.LossOnly.Summary)
	}
	if res.Result.Blended != nil {
		PrintSummary("Blended", res.Result.Blended.Summary)
	}
	fmt.Println()
	PrintKeyValue("Overlap", fmt.Sprintf("%.1f%%", res.Result.OverlapPct*100), 16)
	return nil
}
