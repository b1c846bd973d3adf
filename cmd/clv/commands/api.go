package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/clv-retention/internal/api"
	"github.com/wonny/clv-retention/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `Starts the read-only query API over the published predictions.

Endpoints:
  GET  /health                        - Health check
  GET  /metrics                       - Prometheus metrics
  GET  /api/predictions/latest        - Latest prediction partition
  GET  /api/predictions/latest/summary
  GET  /api/predictions/latest/top    - ?by=expected_loss&n=50
  POST /api/decisioning/simulate      - Budget what-if
  POST /api/decisioning/sweep         - Weight frontier
  GET  /api/reports                   - Report artifacts
  GET  /api/reports/{name}

Example:
  go run ./cmd/clv api
  go run ./cmd/clv api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== CLV Retention API Server ===")

	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	// Override port if flag is set
	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	a.log.WithFields(map[string]interface{}{
		"port":  a.cfg.Port,
		"env":   a.cfg.Env,
		"redis": a.redis.Enabled(),
	}).Info("Initializing API server")

	reader, _ := a.predictionReader()
	deps := api.Deps{
		Predictions: reader,
		Defaults: handlers.DecisioningDefaults{
			Params:       a.params.Targeting(),
			Weights:      a.params.Weights(),
			TopN:         a.params.Decisioning.TopNPreview,
			SweepWeights: a.params.Decisioning.SweepWeights,
		},
		ReportsDir: a.cfg.Paths.ReportsDir,
		Limiter:    api.NewLimiter(a.cfg, a.redis),
	}
	if a.cfg.MetricsEnabled {
		deps.Metrics = a.metrics
	}

	server := api.New(a.cfg, a.log, api.NewRouter(deps, a.log))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	a.log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}
