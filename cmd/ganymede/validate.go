package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load a configuration file, apply defaults, and report every
validation error it contains.

Examples:
  # Validate the default config file
  ganymede validate

  # Validate a specific file
  ganymede validate --config /etc/ganymede/ganymede.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		var vErr config.ValidationError
		if errors.As(err, &vErr) {
			fmt.Printf("✗ %s is invalid:\n", cfgFile)
			for _, fe := range vErr.Errors {
				fmt.Printf("  - %s\n", fe.Error())
			}
			return fmt.Errorf("%d validation error(s)", len(vErr.Errors))
		}
		return err
	}

	fmt.Printf("✓ %s is valid\n\n", cfgFile)

	ids := make([]string, 0, len(cfg.Providers))
	for id := range cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Printf("Providers (%d):\n", len(ids))
	for _, id := range ids {
		limits := cfg.Providers[id]
		fmt.Printf("  %-16s %6d req/min  %9d tok/min  burst %d\n",
			id, limits.RequestsPerMinute, limits.TokensPerMinute, limits.BurstLimit)
	}
	if cfg.Global != nil {
		fmt.Printf("Global:            %6d req/min  %9d tok/min\n",
			cfg.Global.RequestsPerMinute, cfg.Global.TokensPerMinute)
	}

	fmt.Printf("Queue:             size %d, concurrency %d, %d priority levels\n",
		cfg.Queue.MaxSize, cfg.Queue.Concurrency, cfg.Queue.PriorityLevels)
	fmt.Printf("Circuit:           threshold %d, timeout %s\n",
		cfg.Circuit.Threshold, cfg.Circuit.Timeout)
	if cfg.History.Enabled {
		fmt.Printf("History:           %s backend, retention %s\n",
			cfg.History.Backend, cfg.History.Retention)
	} else {
		fmt.Println("History:           disabled")
	}

	return nil
}
