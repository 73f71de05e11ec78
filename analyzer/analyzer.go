// ABOUTME: Path Finder driver orchestrating the two-phase retained-path search (spec section 4.5)
// ABOUTME: The seam between the pure graph core and the ambient stack: logging, run ids, cancellation

package analyzer

import (
	"context"
	"fmt"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/prateek/heaplens/graph"
)

// ExclusionsFactory is the external collaborator that yields the exclusion
// sequence for one findPaths call, evaluated once (spec section 6).
type ExclusionsFactory func(snapshot graph.Snapshot) ([]graph.Exclusion, error)

// CandidateLogger is an optional capability a graph.ProgressListener can
// implement to receive one call per leaking candidate FindPaths records, in
// addition to the step-transition calls every listener gets through
// OnProgressUpdate. graph.ProgressListener itself stays log-free; this
// interface lives in the driver package so the graph core never needs to
// know logging exists.
type CandidateLogger interface {
	LogCandidateFound(id graph.ObjectId, className string, exclusionStatus *graph.ExclusionStatus)
}

// FindPaths orchestrates the two-phase search described in spec section
// 4.5: shortest retaining paths to every leaking candidate, then
// (optionally) a continuation phase to safely compute retained heap sizes.
//
// ctx is checked once per main-loop iteration and once per retained-size
// loop iteration (spec section 5's cancellation extension point); the
// search itself remains synchronous and single-threaded.
func FindPaths(
	ctx context.Context,
	snapshot graph.Snapshot,
	exclusionsFactory ExclusionsFactory,
	leakingWeakRefs []graph.WeakRefMirror,
	gcRootIds []graph.ObjectId,
	computeRetainedHeapSize bool,
	listener graph.ProgressListener,
) ([]graph.Result, error) {
	if listener == nil {
		listener = graph.NoopProgressListener{}
	}

	listener.OnProgressUpdate(graph.FindingShortestPaths)

	exclusions, err := exclusionsFactory(snapshot)
	if err != nil {
		return nil, fmt.Errorf("analyzer: building exclusions: %w", err)
	}
	exclusionIndex := graph.BuildExclusionIndex(exclusions)

	referentMap := make(map[graph.ObjectId]graph.WeakRefMirror, len(leakingWeakRefs))
	for _, ref := range leakingWeakRefs {
		referentMap[ref.Referent] = ref
	}
	isLeaking := func(id graph.ObjectId) bool {
		_, ok := referentMap[id]
		return ok
	}

	frontier := graph.NewFrontier(isLeaking, snapshot.ObjectIdMetadata)
	dominator := graph.NewDominatorTracker(isLeaking)

	for _, rootID := range gcRootIds {
		dominator.Undominate(rootID)
		frontier.Enqueue(graph.NewRootNode(rootID), nil)
	}

	visitCtx := &graph.VisitContext{
		Snapshot:            snapshot,
		Frontier:            frontier,
		Exclusions:          exclusionIndex,
		Dominator:           dominator,
		ComputeRetainedSize: computeRetainedHeapSize,
	}

	lowestPriority := graph.AlwaysReachable
	var results []graph.Result
	dominatorsSignaled := false
	candidateLogger, _ := listener.(CandidateLogger)

	for frontier.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("analyzer: cancelled during search: %w", err)
		}

		node, priority, ok := frontier.Pop()
		if !ok {
			break
		}
		if priority > lowestPriority {
			lowestPriority = priority
		}

		if ref, found := referentMap[node.Instance]; found {
			var status *graph.ExclusionStatus
			if priority != graph.AlwaysReachable {
				p := priority
				status = &p
			}
			results = append(results, graph.Result{
				LeakingNode:     node,
				ExclusionStatus: status,
				WeakReference:   ref,
			})
			if candidateLogger != nil {
				candidateLogger.LogCandidateFound(node.Instance, ref.ClassName, status)
			}
		}

		if len(results) == len(leakingWeakRefs) {
			if !computeRetainedHeapSize || lowestPriority >= graph.WeaklyReachable {
				break
			}
			// Keep discovering dominated children until the frontier
			// degrades past weakly reachable; further discoveries beyond
			// that point cannot tighten dominator chains for weak leaks.
			if !dominatorsSignaled {
				listener.OnProgressUpdate(graph.FindingDominators)
				dominatorsSignaled = true
			}
		}

		if err := graph.Visit(visitCtx, node); err != nil {
			return nil, wrapFatal(node.Instance, err)
		}
	}

	if computeRetainedHeapSize {
		listener.OnProgressUpdate(graph.CalculatingRetainedSize)
		if err := computeRetainedSizes(ctx, snapshot, dominator, results); err != nil {
			return nil, err
		}
	}

	return results, nil
}

func computeRetainedSizes(ctx context.Context, snapshot graph.Snapshot, dominator *graph.DominatorTracker, results []graph.Result) error {
	retainedSizes := make(map[graph.ObjectId]uint64)

	for instanceID, dominatorID := range dominator.Dominated() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("analyzer: cancelled during retained-size accounting: %w", err)
		}
		size, err := shallowSize(snapshot, instanceID)
		if err != nil {
			return wrapFatal(instanceID, err)
		}
		retainedSizes[dominatorID] += size
	}

	for i := range results {
		size, err := shallowSize(snapshot, results[i].LeakingNode.Instance)
		if err != nil {
			return wrapFatal(results[i].LeakingNode.Instance, err)
		}
		retainedSizes[results[i].LeakingNode.Instance] += size
	}

	for i := range results {
		size := retainedSizes[results[i].LeakingNode.Instance]
		results[i].RetainedHeapSize = &size
	}
	return nil
}

// shallowSize computes an id's own shallow byte size from its record kind,
// per spec section 4.5 step 6.3. Any record kind outside the expected set
// here is a hard error (spec section 7).
func shallowSize(snapshot graph.Snapshot, id graph.ObjectId) (uint64, error) {
	rec, err := snapshot.RetrieveRecordById(id)
	if err != nil {
		return 0, fmt.Errorf("%w: retrieving record for %d: %v", graph.ErrMalformedRecord, id, err)
	}
	switch r := rec.(type) {
	case graph.InstanceRecord:
		hydrated, err := snapshot.HydrateInstance(r)
		if err != nil {
			return 0, fmt.Errorf("%w: hydrating instance %d: %v", graph.ErrMalformedRecord, id, err)
		}
		return hydrated.InstanceSize, nil
	case graph.ObjectArrayRecord:
		return uint64(len(r.Elements) * snapshot.IdSize()), nil
	case graph.PrimitiveArrayRecord:
		return uint64(r.Length * graph.PrimitiveSize(r.PrimitiveKind)), nil
	default:
		return 0, fmt.Errorf("%w: id %d has no shallow-size-eligible record", graph.ErrMalformedRecord, id)
	}
}

func wrapFatal(id graph.ObjectId, err error) *AnalysisError {
	return &AnalysisError{ObjectID: id, Reason: "fatal condition during findPaths", Err: err}
}

// defaultLogger is used by callers that want a LoggingProgressListener
// without wiring their own go-kit/log.Logger (e.g. quick CLI invocations).
func defaultLogger() log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	return level.NewFilter(logger, level.AllowInfo())
}

// NewDefaultProgressListener builds a run-scoped listener with a fresh
// correlation id, suitable when the caller has no logger of its own.
func NewDefaultProgressListener() (*LoggingProgressListener, uuid.UUID) {
	runID := uuid.New()
	return NewLoggingProgressListener(defaultLogger(), runID), runID
}
