// ABOUTME: Tests for the incremental dominator tracker's merge and invariant behaviour

package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leakingSet(ids ...ObjectId) func(ObjectId) bool {
	set := make(map[ObjectId]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(id ObjectId) bool {
		_, ok := set[id]
		return ok
	}
}

func TestDominatorSingleLeakingAncestor(t *testing.T) {
	d := NewDominatorTracker(leakingSet(1))
	require.NoError(t, d.UpdateDominator(1, 2))
	dom, ok := d.DominatorOf(2)
	require.True(t, ok)
	assert.Equal(t, ObjectId(1), dom)
}

func TestDominatorTwoLeakingCandidatesShareChildBecomesUndominated(t *testing.T) {
	// L1 -> C, L2 -> C: after the merge C has no single leaking ancestor (S6).
	d := NewDominatorTracker(leakingSet(1, 2))
	require.NoError(t, d.UpdateDominator(1, 3))
	require.NoError(t, d.UpdateDominator(2, 3))

	_, ok := d.DominatorOf(3)
	assert.False(t, ok)
	assert.True(t, d.IsUndominated(3))
}

func TestDominatorPropagatesThroughChain(t *testing.T) {
	d := NewDominatorTracker(leakingSet(1))
	require.NoError(t, d.UpdateDominator(1, 2))
	require.NoError(t, d.UpdateDominator(2, 3))

	dom, ok := d.DominatorOf(3)
	require.True(t, ok)
	assert.Equal(t, ObjectId(1), dom)
}

func TestDominatorUndominateRemovesAndMarks(t *testing.T) {
	d := NewDominatorTracker(leakingSet(1))
	require.NoError(t, d.UpdateDominator(1, 2))
	d.Undominate(2)

	_, ok := d.DominatorOf(2)
	assert.False(t, ok)
	assert.True(t, d.IsUndominated(2))
}

func TestDominatorInvariantViolationWhenParentUnseen(t *testing.T) {
	d := NewDominatorTracker(leakingSet(1))
	err := d.UpdateDominator(99, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDominatorInvariant))
}

func TestDominatorNoopOnceUndominated(t *testing.T) {
	d := NewDominatorTracker(leakingSet(1))
	d.Undominate(2)
	require.NoError(t, d.UpdateDominator(1, 2))

	assert.True(t, d.IsUndominated(2))
	_, ok := d.DominatorOf(2)
	assert.False(t, ok)
}
