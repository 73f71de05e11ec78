// ABOUTME: Incremental best-effort dominator tracker (spec section 4.4)
// ABOUTME: Streaming approximation of the dominator tree restricted to leaking roots

package graph

import "fmt"

// DominatorTracker maintains, during traversal, a partial mapping from
// each visited non-leaking id to the nearest ancestor that is a leaking
// candidate. It is not a true dominator computation; ambiguous ids default
// to undominated, so retained-size totals are lower bounds.
type DominatorTracker struct {
	dominatedInstances map[ObjectId]ObjectId
	undominatedSet     map[ObjectId]struct{}
	isLeaking          func(ObjectId) bool
}

// NewDominatorTracker constructs an empty tracker.
func NewDominatorTracker(isLeaking func(ObjectId) bool) *DominatorTracker {
	return &DominatorTracker{
		dominatedInstances: make(map[ObjectId]ObjectId),
		undominatedSet:     make(map[ObjectId]struct{}),
		isLeaking:          isLeaking,
	}
}

// Undominate removes id from dominatedInstances and inserts it into
// undominatedSet. Applied to GC roots, to class references, and when two
// observed paths to id disagree on dominator.
func (d *DominatorTracker) Undominate(id ObjectId) {
	delete(d.dominatedInstances, id)
	d.undominatedSet[id] = struct{}{}
}

// DominatorOf returns the recorded dominator for id, if any.
func (d *DominatorTracker) DominatorOf(id ObjectId) (ObjectId, bool) {
	dom, ok := d.dominatedInstances[id]
	return dom, ok
}

// IsUndominated reports whether id is known to lie outside every leaking
// subtree.
func (d *DominatorTracker) IsUndominated(id ObjectId) bool {
	_, ok := d.undominatedSet[id]
	return ok
}

// Dominated returns the tracker's own child -> dominating leaking ancestor
// map (not a copy), for the retained-size phase to range over.
func (d *DominatorTracker) Dominated() map[ObjectId]ObjectId {
	return d.dominatedInstances
}

// UpdateDominator implements spec section 4.4's algorithm. It returns a
// wrapped ErrDominatorInvariant when parent is missing from both dominator
// chains and the undominated set, which the invariant says can only be an
// internal bug (parent must already have been visited).
func (d *DominatorTracker) UpdateDominator(parent, child ObjectId) error {
	if d.isLeaking(child) {
		// Leaking candidates are dominators of their own subtrees; they are
		// never added to dominatedInstances or undominatedSet by visitation.
		return nil
	}
	if _, ok := d.undominatedSet[child]; ok {
		return nil
	}
	currentDom, hasCurrent := d.dominatedInstances[child]

	var nextDom ObjectId
	hasNextDom := false
	if d.isLeaking(parent) {
		nextDom = parent
		hasNextDom = true
	} else if parentDom, ok := d.dominatedInstances[parent]; ok {
		nextDom = parentDom
		hasNextDom = true
	}

	if !hasNextDom {
		if _, ok := d.undominatedSet[parent]; !ok {
			return fmt.Errorf("%w: parent %d absent from dominator chains and undominated set while updating child %d", ErrDominatorInvariant, parent, child)
		}
		delete(d.dominatedInstances, child)
		d.undominatedSet[child] = struct{}{}
		return nil
	}

	if !hasCurrent {
		d.dominatedInstances[child] = nextDom
		return nil
	}

	if shared, found := d.sharedAncestor(currentDom, nextDom); found {
		d.dominatedInstances[child] = shared
		return nil
	}
	delete(d.dominatedInstances, child)
	d.undominatedSet[child] = struct{}{}
	return nil
}

// sharedAncestor finds the first id common to the ancestor chains of a and
// b, each formed by repeatedly following dominatedInstances until a
// leaking candidate (absent from the map) is reached.
func (d *DominatorTracker) sharedAncestor(a, b ObjectId) (ObjectId, bool) {
	seen := make(map[ObjectId]struct{})
	for _, id := range d.chain(a) {
		seen[id] = struct{}{}
	}
	for _, id := range d.chain(b) {
		if _, ok := seen[id]; ok {
			return id, true
		}
	}
	return 0, false
}

func (d *DominatorTracker) chain(start ObjectId) []ObjectId {
	chain := []ObjectId{start}
	cur := start
	for {
		next, ok := d.dominatedInstances[cur]
		if !ok {
			return chain
		}
		chain = append(chain, next)
		cur = next
	}
}
