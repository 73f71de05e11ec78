// Package main implements the heaplens CLI: analyze, batch, serve and
// quickscan over Go runtime and HPROF-family heap dumps.
package main

import (
	"os"

	"github.com/spf13/cobra"

	_ "github.com/prateek/heaplens/heapdump/hprof"
)

var catalogPathFlag string

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heaplens",
		Short: "Retained-path leak diagnostic for heap dumps",
		Long: `heaplens finds the shortest GC-root-retaining path to a set of
weakly-referenced objects expected to have been collected, applying a
catalog of known-benign reference exclusions along the way, and optionally
computes each leak's retained heap size.`,
	}
	cmd.PersistentFlags().StringVar(&catalogPathFlag, "exclusions", "", "path to YAML exclusion catalog (optional)")
	return cmd
}

// Execute runs the root command. Called by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
