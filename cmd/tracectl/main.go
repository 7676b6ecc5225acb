package main

import (
	"fmt"
	"os"

	"github.com/danmuck/snestrace/internal/logging"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	logging.ConfigureRuntime()

	rootCmd := &cobra.Command{
		Use:   "tracectl",
		Short: "Stream emulator traces into ROM annotations",
		Long: `tracectl connects to a running SNES emulator's trace server, applies
executed-code and CDL events to an in-memory annotation store, and prints
a session report on exit.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		connectCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tracectl: %v\n", err)
		os.Exit(1)
	}
}
