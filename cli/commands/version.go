package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/liteorm/cli/internal/ui"
	"github.com/satishbabariya/liteorm/cli/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(ui.Out, version.Current().String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
