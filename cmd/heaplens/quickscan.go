package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/prateek/heaplens/analyzer"
	"github.com/prateek/heaplens/graph"
	"github.com/prateek/heaplens/heapdump/goheap"
	"github.com/prateek/heaplens/report"
)

var (
	quickscanStreamFlag bool
)

func newQuickscanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quickscan <go-heap-dump>",
		Short: "Fast paths-to-roots and retained-size scan of a Go runtime heap dump, without exclusions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuickscan(cmd.Context(), args[0], cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&quickscanStreamFlag, "stream", false, "parse with the streaming parser, reporting progress to stderr")
	return cmd
}

func runQuickscan(ctx context.Context, dumpPath string, out io.Writer) error {
	f, err := os.Open(dumpPath)
	if err != nil {
		return fmt.Errorf("opening dump: %w", err)
	}
	defer f.Close()

	var snapshot *goheap.Snapshot
	var diag *goheap.Diagnostics

	if quickscanStreamFlag {
		snap, err := goheap.BuildSnapshot(f, func(bytesRead, records int64, elapsed time.Duration) {
			fmt.Fprintf(os.Stderr, "quickscan --stream: %s read, %d records, %s elapsed\n",
				humanize.Bytes(uint64(bytesRead)), records, elapsed.Round(time.Millisecond))
		})
		if err != nil {
			return fmt.Errorf("streaming parse: %w", err)
		}
		snapshot = snap.(*goheap.Snapshot)
	} else {
		parser := &goheap.GoHeapParser{}
		snap, d, err := parser.ParseWithDiagnostics(f)
		if err != nil {
			return fmt.Errorf("parsing dump: %w", err)
		}
		snapshot = snap.(*goheap.Snapshot)
		diag = d
	}

	if err := renderQuickscan(ctx, out, dumpPath, snapshot); err != nil {
		return err
	}

	if diag != nil {
		fmt.Fprintf(out, "\n%d goroutines, %d stack frames, %d finalizers, %d referenced pointers\n",
			len(diag.Goroutines), len(diag.StackFrames), len(diag.Finalizers), len(diag.ReferencedPointers()))
		if diag.MemStats != nil {
			fmt.Fprintf(out, "runtime heap alloc: %s, sys: %s\n",
				humanize.Bytes(diag.MemStats.HeapAlloc), humanize.Bytes(diag.MemStats.Sys))
		}
	}
	return nil
}

// renderQuickscan treats every non-root object in the dump as its own
// leaking candidate, so analyzer.FindPaths reports the shortest retaining
// path and retained size for the whole reachable graph rather than a
// fixed weak-reference set. A Go runtime heap dump carries no concept of
// a "leaking" weak reference the way an HPROF dump does; objects
// unreachable from any GC root simply produce no result, unlike the
// original whole-graph BFS this replaces.
func renderQuickscan(ctx context.Context, out io.Writer, dumpPath string, snapshot *goheap.Snapshot) error {
	rootSet := make(map[graph.ObjectId]bool)
	for _, id := range snapshot.Roots() {
		rootSet[id] = true
	}

	var weakRefs []graph.WeakRefMirror
	for _, id := range snapshot.AllObjectIDs() {
		if rootSet[id] {
			continue
		}
		weakRefs = append(weakRefs, graph.WeakRefMirror{
			Referent:  id,
			ClassName: snapshot.ClassName(id),
		})
	}

	noExclusions := func(graph.Snapshot) ([]graph.Exclusion, error) { return nil, nil }
	listener, _ := analyzer.NewDefaultProgressListener()

	results, err := analyzer.FindPaths(ctx, snapshot, noExclusions, weakRefs, snapshot.Roots(), true, listener)
	if err != nil {
		return fmt.Errorf("scanning: %w", err)
	}

	report.WriteTable(out, snapshot, results)
	fmt.Fprintln(out, report.Summary(dumpPath, results))
	return nil
}

func init() {
	rootCmd.AddCommand(newQuickscanCmd())
}
