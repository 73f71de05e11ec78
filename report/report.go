// ABOUTME: Renders analyzer.FindPaths results as a human-readable retaining-path
// ABOUTME: string and a tablewriter summary table, the leak-report renderer collaborator

package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/prateek/heaplens/graph"
)

var (
	reachableClr = color.New(color.FgRed, color.Bold)
	weakClr      = color.New(color.FgYellow)
	excludedClr  = color.New(color.FgGreen)
)

func colorizeStatus(status *graph.ExclusionStatus) string {
	if status == nil {
		return reachableClr.Sprint("REACHABLE")
	}
	switch *status {
	case graph.WeaklyReachable:
		return weakClr.Sprint(status.String())
	case graph.NeverReachable:
		return excludedClr.Sprint(status.String())
	default:
		return status.String()
	}
}

// PathString renders a LeakNode chain as "RootType → field.Holder → [3].Leak",
// each hop being the reference label followed by the class it reaches,
// walking from root to leak (the reverse of the node's own Parent linkage).
func PathString(snapshot graph.Snapshot, node *graph.LeakNode) string {
	if node == nil {
		return ""
	}
	var chain []*graph.LeakNode
	for cur := node; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	var b strings.Builder
	for i, n := range chain {
		if i > 0 {
			b.WriteString(" → ")
			if n.Reference != nil {
				b.WriteString(referenceLabel(*n.Reference))
			}
		}
		b.WriteString(className(snapshot, n.Instance))
	}
	return b.String()
}

func referenceLabel(ref graph.LeakReference) string {
	switch ref.Kind {
	case graph.ArrayEntry:
		return "[" + ref.Name + "]."
	default:
		return ref.Name + "."
	}
}

func className(snapshot graph.Snapshot, id graph.ObjectId) string {
	rec, err := snapshot.RetrieveRecordById(id)
	if err != nil {
		return "id#" + strconv.FormatUint(uint64(id), 10)
	}
	switch r := rec.(type) {
	case graph.InstanceRecord:
		hydrated, err := snapshot.HydrateInstance(r)
		if err != nil || len(hydrated.ClassHierarchy) == 0 {
			return "id#" + strconv.FormatUint(uint64(id), 10)
		}
		return hydrated.ClassHierarchy[0].ClassName
	case graph.ClassRecord:
		return r.ClassName
	default:
		return "id#" + strconv.FormatUint(uint64(id), 10)
	}
}

// WriteTable renders results as a summary table: leaking class, retaining
// path, exclusion status and retained size (formatted via humanize.Bytes),
// to w.
func WriteTable(w io.Writer, snapshot graph.Snapshot, results []graph.Result) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Leak", "Retaining Path", "Status", "Retained Size"})
	table.SetAutoWrapText(false)

	for _, res := range results {
		status := colorizeStatus(res.ExclusionStatus)
		size := "-"
		if res.RetainedHeapSize != nil {
			size = humanize.Bytes(*res.RetainedHeapSize)
		}
		table.Append([]string{
			className(snapshot, res.WeakReference.Referent),
			PathString(snapshot, res.LeakingNode),
			status,
			size,
		})
	}
	table.Render()
}

// Summary is a single line describing a run's outcome, for logging or CLI
// output outside the full table (e.g. batch mode's per-dump progress line).
func Summary(dumpName string, results []graph.Result) string {
	var totalRetained uint64
	for _, r := range results {
		if r.RetainedHeapSize != nil {
			totalRetained += *r.RetainedHeapSize
		}
	}
	if totalRetained == 0 {
		return fmt.Sprintf("%s: %d leak(s) found", dumpName, len(results))
	}
	return fmt.Sprintf("%s: %d leak(s) found, %s retained", dumpName, len(results), humanize.Bytes(totalRetained))
}
