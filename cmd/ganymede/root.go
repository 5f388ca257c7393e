package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ganymede",
	Short: "Ganymede - admission control core for LLM API traffic",
	Long: `Ganymede is an admission control library and toolkit for LLM API traffic.

It provides:
  - Dual-mechanism rate limiting (sliding window quotas + token bucket bursts)
  - Per-provider and global limits with global-first ordering
  - A priority request queue with retries, timeouts, and backpressure
  - A circuit breaker for failing upstreams
  - Admission decision history with configurable retention

For more information, visit: https://github.com/mercator-hq/ganymede`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "ganymede.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
