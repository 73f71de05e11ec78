// ABOUTME: Sentinel errors for the core's fatal error taxonomy (spec section 7)

package graph

import "errors"

var (
	// ErrMalformedRecord is returned during retained-size accounting when a
	// dominated id's record kind is not among the expected set. Indicates
	// parser/analyzer disagreement; the caller should abort without partial
	// results.
	ErrMalformedRecord = errors.New("malformed record during retained-size accounting")

	// ErrDominatorInvariant is returned by UpdateDominator when parent is
	// missing from both dominator chains and the undominated set.
	ErrDominatorInvariant = errors.New("dominator tracker invariant violation")
)
