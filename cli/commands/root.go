package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/liteorm/cli/internal/config"
	"github.com/satishbabariya/liteorm/cli/internal/version"
	"github.com/satishbabariya/liteorm/internal/debug"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "liteorm",
	Short: "Query and migrate SQLite databases",
	Long: `liteorm runs migrations and ad-hoc queries against a SQLite database.

Conditions are given either as JSON (--where) or as a filter expression
(--filter), and are compiled into parameterized SQL.`,
	Version:       version.Current().Short(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		cfg = loaded
		debug.Init(cfg.Debug)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.liteorm.yaml or ~/.liteorm.yaml)")
	rootCmd.PersistentFlags().String("db", "", "database file")
	rootCmd.PersistentFlags().Bool("debug", false, "log every statement")
}

// Execute is the main entry point for the CLI
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}
