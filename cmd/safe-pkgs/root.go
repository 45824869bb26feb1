package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var logger *zap.Logger

// rootCmd is the application entry point.
var rootCmd = &cobra.Command{
	Use:   "safe-pkgs",
	Short: "Package-safety policy engine and MCP server",
	Long: `safe-pkgs evaluates packages and lockfiles against registry metadata,
OSV advisories, and a local configuration, returning an allow/deny
decision with a risk level and human-readable reasons.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command, exiting 1 on any error (spec §6).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: failed to initialize logger:", err)
		os.Exit(1)
	}
}
