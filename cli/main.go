package main

import (
	"os"

	"github.com/satishbabariya/liteorm/cli/commands"
	"github.com/satishbabariya/liteorm/cli/internal/ui"
)

func main() {
	if err := commands.Execute(); err != nil {
		ui.PrintError("%v", err)
		os.Exit(1)
	}
}
