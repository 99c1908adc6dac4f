package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/liteorm/cli/internal/config"
	"github.com/satishbabariya/liteorm/cli/internal/ui"
	"github.com/satishbabariya/liteorm/cli/internal/watch"
	"github.com/satishbabariya/liteorm/migrate"
	"github.com/satishbabariya/liteorm/runtime/client"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
	Long: `Apply and inspect SQL migrations.

Each file in the migrations directory is one job named after the file. The
prefix before the first underscore is its version:

  0001_create_users.sql
  0002_add_email.sql

A file holds an "-- +up" section and an optional "-- +down" section run
when the up section fails.`,
}

var (
	migrateUpCmd     *cobra.Command
	migrateStatusCmd *cobra.Command
	migrateNewCmd    *cobra.Command

	migrateWatch bool
)

func init() {
	initMigrateCommands()

	migrateCmd.PersistentFlags().String("dir", "", "migrations directory")
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(migrateNewCmd)

	rootCmd.AddCommand(migrateCmd)
}

func initMigrateCommands() {
	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if migrateWatch {
				return migrateWatchCommand(cmd.Context())
			}
			return migrateUpCommand(cmd.Context())
		},
	}
	migrateUpCmd.Flags().BoolVar(&migrateWatch, "watch", false, "re-run when migration files change")

	migrateStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show which migrations have been applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrateStatusCommand(cmd.Context())
		},
	}

	migrateNewCmd = &cobra.Command{
		Use:   "new <name>",
		Short: "Create an empty migration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrateNewCommand(args[0])
		},
	}
}

func loadMigrator(c *client.Client) (*migrate.Migrator, error) {
	jobs, err := migrate.LoadDir(config.AppFs, cfg.MigrationsDir)
	if err != nil {
		return nil, err
	}
	return migrate.New(c, jobs...), nil
}

func migrateUpCommand(ctx context.Context) error {
	return withClient(ctx, func(c *client.Client) error {
		m, err := loadMigrator(c)
		if err != nil {
			return err
		}
		applied, err := m.Run(ctx)
		for _, name := range applied {
			ui.PrintSuccess("Applied %s", name)
		}
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			ui.PrintInfo("Database is up to date")
		}
		return nil
	})
}

func migrateWatchCommand(ctx context.Context) error {
	w, err := watch.NewWatcher(cfg.MigrationsDir, "*.sql", func() error {
		return migrateUpCommand(ctx)
	}, func(err error) {
		ui.PrintError("%v", err)
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	ui.PrintInfo("Watching %s for changes (Ctrl+C to stop)", cfg.MigrationsDir)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

func migrateStatusCommand(ctx context.Context) error {
	return withClient(ctx, func(c *client.Client) error {
		m, err := loadMigrator(c)
		if err != nil {
			return err
		}
		statuses, err := m.Status(ctx)
		if err != nil {
			return err
		}
		if len(statuses) == 0 {
			ui.PrintInfo("No migrations in %s", cfg.MigrationsDir)
			return nil
		}

		rows := make([][]string, 0, len(statuses))
		pending := 0
		for _, s := range statuses {
			state := "applied"
			switch {
			case !s.Applied:
				state = "pending"
				pending++
			case s.Modified:
				state = "modified"
			}
			rows = append(rows, []string{s.Name, state, s.AppliedAt})
		}
		if err := ui.PrintTable([]string{"Migration", "State", "Applied At"}, rows); err != nil {
			return err
		}
		if pending > 0 {
			ui.PrintWarning("%d pending migration(s)", pending)
		}
		return nil
	})
}

const migrationTemplate = `-- +up

-- +down
`

func migrateNewCommand(name string) error {
	fs := config.AppFs
	if err := fs.MkdirAll(cfg.MigrationsDir, 0o755); err != nil {
		return err
	}
	file := filepath.Join(cfg.MigrationsDir, fmt.Sprintf("%s_%s.sql", time.Now().UTC().Format("20060102150405"), name))
	if err := afero.WriteFile(fs, file, []byte(migrationTemplate), 0o644); err != nil {
		return err
	}
	ui.PrintSuccess("Created %s", file)
	return nil
}
