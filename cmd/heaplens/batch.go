package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/go-kit/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/prateek/heaplens/analyzer"
	"github.com/prateek/heaplens/heapdump"
	"github.com/prateek/heaplens/report"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <dumps-dir>",
		Short: "Analyze every dump in a directory concurrently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), args[0])
		},
	}
	cmd.Flags().BoolVar(&analyzeRetainedFlag, "retained-size", false, "also compute retained heap size per leak")
	return cmd
}

// runBatch analyzes every dump file in dir concurrently, one goroutine per
// dump, capped at runtime.NumCPU(). Legitimate because whole dumps are
// processed in parallel; each individual FindPaths call stays
// single-threaded (spec section 5).
func runBatch(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading dump directory: %w", err)
	}

	factory, err := exclusionsFactory()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	summaries := make([]string, len(entries))
	for i, entry := range entries {
		if entry.IsDir() {
			continue
		}
		i, entry := i, entry
		g.Go(func() error {
			summary, err := analyzeOneDump(gctx, filepath.Join(dir, entry.Name()), factory)
			if err != nil {
				return fmt.Errorf("%s: %w", entry.Name(), err)
			}
			summaries[i] = summary
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	for _, s := range summaries {
		if s != "" {
			fmt.Fprintln(os.Stdout, s)
		}
	}
	return nil
}

func analyzeOneDump(ctx context.Context, path string, factory analyzer.ExclusionsFactory) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	snapshot, err := heapdump.Open(f)
	if err != nil {
		return "", err
	}
	fixture, ok := snapshot.(*heapdump.JSONSnapshot)
	if !ok {
		return "", fmt.Errorf("dump does not carry embedded roots/weak refs")
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	listener := analyzer.NewLoggingProgressListener(logger, uuid.New())
	results, err := analyzer.FindPaths(ctx, snapshot, factory, fixture.WeakRefs(), fixture.Roots(), analyzeRetainedFlag, listener)
	if err != nil {
		return "", err
	}
	return report.Summary(filepath.Base(path), results), nil
}

func init() {
	rootCmd.AddCommand(newBatchCmd())
}
