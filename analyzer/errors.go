// ABOUTME: Distinguished fatal error type surfaced by FindPaths (spec section 7 / SPEC_FULL 2.2)

package analyzer

import (
	"fmt"

	"github.com/prateek/heaplens/graph"
)

// AnalysisError wraps a fatal condition identified during findPaths
// (malformed record during retained-size accounting, dominator-tracker
// invariant violation) with the offending object id, so callers can render
// a clean message instead of a stack trace.
type AnalysisError struct {
	ObjectID graph.ObjectId
	Reason   string
	Err      error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analyzer: object %d: %s: %v", e.ObjectID, e.Reason, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}
