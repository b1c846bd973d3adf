package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wonny/clv-retention/pkg/config"
	"github.com/wonny/clv-retention/pkg/database"
	"github.com/wonny/clv-retention/pkg/logger"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "데이터베이스 스키마 마이그레이션",
	Long: `Applies the embedded schema migrations to DATABASE_URL.

Subcommands:
  up        - apply every pending migration
  down [n]  - roll back n migrations (default 1)
  version   - print the applied version

Example:
  go run ./cmd/clv migrate up
  go run ./cmd/clv migrate down 1`,
}

var (
	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: withMigrator(func(m *database.Migrator, _ []string) error {
			if err := m.Up(); err != nil {
				return err
			}
			PrintSuccess("Schema is up to date")
			return nil
		}),
	}

	migrateDownCmd = &cobra.Command{
		Use:   "down [n]",
		Short: "Roll back migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: withMigrator(func(m *database.Migrator, args []string) error {
			n := 1
			if len(args) == 1 {
				parsed, err := strconv.Atoi(args[0])
				if err != nil || parsed < 1 {
					return fmt.Errorf("down expects a positive step count, got %q", args[0])
				}
				n = parsed
			}
			if err := m.Down(n); err != nil {
				return err
			}
			PrintSuccess(fmt.Sprintf("Rolled back %d migration(s)", n))
			return nil
		}),
	}

	migrateVersionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: withMigrator(func(m *database.Migrator, _ []string) error {
			v, dirty, err := m.Version()
			if err != nil {
				return err
			}
			PrintKeyValue("Version", strconv.FormatUint(uint64(v), 10), 8)
			PrintKeyValue("Dirty", strconv.FormatBool(dirty), 8)
			return nil
		}),
	}
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}

// withMigrator opens a migrator for the duration of fn
func withMigrator(fn func(m *database.Migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.LogLevel = "debug"
		}

		m, err := database.NewMigrator(cfg.Database.URL, logger.New(cfg))
		if err != nil {
			return err
		}
		defer m.Close()

		return fn(m, args)
	}
}
