package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/clv-retention/pkg/config"
	"github.com/wonny/clv-retention/pkg/database"
)

// checkDBCmd represents the check-db command
var checkDBCmd = &cobra.Command{
	Use:   "check-db",
	Short: "PostgreSQL 연결 테스트",
	Long: `데이터베이스 연결을 테스트하고 풀 통계를 표시합니다.

이 명령어는:
- config에서 DATABASE_URL 로드
- Ping 테스트
- Health Check 실행
- Connection Pool 통계 표시

Example:
  go run ./cmd/clv check-db`,
	RunE: runCheckDB,
}

func init() {
	rootCmd.AddCommand(checkDBCmd)
}

func runCheckDB(cmd *cobra.Command, args []string) error {
	PrintHeader("Database Connection Check")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	PrintKeyValue("ENV", cfg.Env, 12)
	PrintKeyValue("Database", maskPassword(cfg.Database.URL), 12)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	PrintSuccess("Database connection established")

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	status, err := db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	PrintSuccess("Health check passed")
	PrintKeyValue("Healthy", fmt.Sprintf("%v", status.Healthy), 20)
	PrintKeyValue("Response Time", status.ResponseTime.String(), 20)

	fmt.Println("\n📊 Connection Pool Statistics:")
	PrintKeyValue("Max Connections", fmt.Sprintf("%d", status.Stats.MaxConns), 20)
	PrintKeyValue("Total Connections", fmt.Sprintf("%d", status.Stats.TotalConns), 20)
	PrintKeyValue("Idle Connections", fmt.Sprintf("%d", status.Stats.IdleConns), 20)
	PrintKeyValue("Acquire Count", fmt.Sprintf("%d", status.Stats.AcquireCount), 20)

	m, err := db.Migrator(nil)
	if err != nil {
		return err
	}
	defer m.Close()
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	PrintKeyValue("Schema Version", fmt.Sprintf("%d (dirty=%v)", v, dirty), 20)
	if v == 0 {
		PrintWarning("No migrations applied yet; run `clv migrate up`")
	}

	return nil
}

// maskPassword hides the password of a database URL for display
func maskPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
