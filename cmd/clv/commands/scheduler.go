package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/scheduler"
	"github.com/wonny/clv-retention/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행
  status  - 작업 스케줄과 최근 파이프라인 실행 조회

Example:
  go run ./cmd/clv scheduler start
  go run ./cmd/clv scheduler list
  go run ./cmd/clv scheduler run clv_pipeline`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- clv_pipeline: 매일 02:00 (전체 파이프라인, 실행 중이면 건너뜀)
- report_retention: 매주 일요일 03:00 (오래된 리포트 삭제)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "작업 실행 상태 조회",
		RunE:  showStatus,
	}
)

var (
	schedLedgerCSV    string
	schedPipelineCron string
	schedReportMaxAge time.Duration
	schedRecentRuns   int
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)

	schedulerCmd.PersistentFlags().StringVar(&schedLedgerCSV, "csv", "", "ledger CSV re-ingested by every pipeline run")
	schedulerCmd.PersistentFlags().StringVar(&schedPipelineCron, "pipeline-cron", jobs.DefaultPipelineSchedule, "pipeline schedule (cron with seconds)")
	schedulerCmd.PersistentFlags().DurationVar(&schedReportMaxAge, "report-retention", 90*24*time.Hour, "delete report artifacts older than this")
	schedulerStatusCmd.Flags().IntVar(&schedRecentRuns, "runs", 10, "number of recent pipeline runs to show")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== CLV Retention Scheduler ===")

	a, sched, err := initScheduler(cmd)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler(cmd)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	stats := sched.GetJobStats()
	fmt.Println("Registered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %-18s %s\n", jobName, stats[jobName].Schedule)
	}

	return nil
}

// runJob executes one job in the foreground with the scheduler's retry policy
func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	fmt.Printf("Running job: %s\n", jobName)

	a, sched, err := initScheduler(cmd)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	res, err := sched.RunNow(cmd.Context(), jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("job %s failed after %d attempt(s): %s", jobName, res.Attempts, res.Error)
	}

	PrintSuccess(fmt.Sprintf("Job %s finished in %.1fs", jobName, res.Duration.Seconds()))
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler(cmd)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	// next fire times are only known once cron has the entries
	sched.Start()
	stats := sched.GetJobStats()
	sched.Stop()

	fmt.Println("Job Schedules:")
	fmt.Println()
	for _, jobName := range sched.GetAllJobs() {
		stat := stats[jobName]
		fmt.Printf("📊 %s\n", jobName)
		fmt.Printf("   Schedule: %s\n", stat.Schedule)
		if stat.NextRun != nil {
			fmt.Printf("   Next Run: %s\n", stat.NextRun.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}

	recent, err := a.runs.Recent(cmd.Context(), schedRecentRuns)
	if err != nil {
		return fmt.Errorf("load recent runs: %w", err)
	}

	fmt.Println("Recent pipeline runs:")
	widths := []int{36, 8, 10, 19, 9}
	PrintTableHeader([]string{"Run ID", "Status", "Cutoff", "Started", "Duration"}, widths)
	for _, r := range recent {
		cutoff, took := "-", "-"
		if r.CutoffDate != nil {
			cutoff = contracts.FormatDate(*r.CutoffDate)
		}
		if r.FinishedAt != nil {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		PrintTableRow([]string{r.RunID, r.Status, cutoff, r.StartedAt.Local().Format("2006-01-02 15:04:05"), took}, widths)
	}
	return nil
}

// initScheduler registers the pipeline and maintenance jobs against the
// database-backed stores. The caller closes the returned app.
func initScheduler(cmd *cobra.Command) (*app, *scheduler.Scheduler, error) {
	a, err := newApp(appOptions{})
	if err != nil {
		return nil, nil, err
	}

	orch, err := a.orchestrator(cmd.Context(), true)
	if err != nil {
		a.Close()
		return nil, nil, err
	}

	var cache jobs.Invalidator
	if _, cached := a.predictionReader(); cached != nil {
		cache = cached
	}

	sched := scheduler.New(a.log)
	for _, job := range []scheduler.Job{
		jobs.NewPipelineJob(orch, cache, schedLedgerCSV, schedPipelineCron, a.log),
		jobs.NewReportRetentionJob(a.cfg.Paths.ReportsDir, schedReportMaxAge, a.log),
	} {
		if err := sched.AddJob(job); err != nil {
			a.Close()
			return nil, nil, err
		}
	}
	return a, sched, nil
}
