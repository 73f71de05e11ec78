package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-kit/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/prateek/heaplens/analyzer"
	"github.com/prateek/heaplens/exclusions"
	"github.com/prateek/heaplens/graph"
	"github.com/prateek/heaplens/heapdump"
	"github.com/prateek/heaplens/report"
)

var (
	analyzeRetainedFlag bool
	analyzeJSONFlag     bool
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <dump>",
		Short: "Find retaining paths to leaking candidates in a single heap dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), args[0], os.Stdout)
		},
	}
	cmd.Flags().BoolVar(&analyzeRetainedFlag, "retained-size", false, "also compute retained heap size per leak")
	cmd.Flags().BoolVar(&analyzeJSONFlag, "json", false, "emit results as JSON instead of a table")
	return cmd
}

func runAnalyze(ctx context.Context, dumpPath string, out *os.File) error {
	f, err := os.Open(dumpPath)
	if err != nil {
		return fmt.Errorf("opening dump: %w", err)
	}
	defer f.Close()

	snapshot, err := heapdump.Open(f)
	if err != nil {
		return fmt.Errorf("parsing dump: %w", err)
	}

	fixture, ok := snapshot.(*heapdump.JSONSnapshot)
	if !ok {
		return fmt.Errorf("analyze: %s does not carry embedded roots/weak refs; use a JSON fixture or wire a hprof-side-channel policy file", dumpPath)
	}

	factory, err := exclusionsFactory()
	if err != nil {
		return err
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	listener := analyzer.NewLoggingProgressListener(logger, uuid.New())
	results, err := analyzer.FindPaths(ctx, snapshot, factory, fixture.WeakRefs(), fixture.Roots(), analyzeRetainedFlag, listener)
	if err != nil {
		return fmt.Errorf("analyzing: %w", err)
	}

	if analyzeJSONFlag {
		return json.NewEncoder(out).Encode(resultsToJSON(results))
	}
	report.WriteTable(out, snapshot, results)
	return nil
}

func exclusionsFactory() (analyzer.ExclusionsFactory, error) {
	if catalogPathFlag == "" {
		return func(graph.Snapshot) ([]graph.Exclusion, error) { return nil, nil }, nil
	}
	cat, err := exclusions.Load(catalogPathFlag)
	if err != nil {
		return nil, fmt.Errorf("loading exclusion catalog: %w", err)
	}
	return exclusions.Factory(cat), nil
}

type jsonResult struct {
	ClassName        string  `json:"className"`
	Path             string  `json:"path"`
	ExclusionStatus  *string `json:"exclusionStatus,omitempty"`
	RetainedHeapSize *uint64 `json:"retainedHeapSize,omitempty"`
}

func resultsToJSON(results []graph.Result) []jsonResult {
	out := make([]jsonResult, len(results))
	for i, r := range results {
		var status *string
		if r.ExclusionStatus != nil {
			s := r.ExclusionStatus.String()
			status = &s
		}
		out[i] = jsonResult{
			ClassName:        r.WeakReference.ClassName,
			Path:             pathIDs(r.LeakingNode),
			ExclusionStatus:  status,
			RetainedHeapSize: r.RetainedHeapSize,
		}
	}
	return out
}

func pathIDs(node *graph.LeakNode) string {
	ids := node.Path()
	return fmt.Sprint(ids)
}

func init() {
	rootCmd.AddCommand(newAnalyzeCmd())
}
