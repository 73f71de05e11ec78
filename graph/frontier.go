// ABOUTME: Priority-ordered, deduplicated BFS frontier keyed by object id
// ABOUTME: Mutable-key semantics via container/heap with index-tracked decrease-key

package graph

import "container/heap"

// frontierEntry is one live slot in the frontier heap. index is maintained
// by the heap.Interface implementation so Enqueue can call heap.Fix
// directly instead of removing and reinserting on an improved priority.
type frontierEntry struct {
	node     *LeakNode
	priority ExclusionStatus
	index    int
}

type frontierHeap []*frontierEntry

func (h frontierHeap) Len() int { return len(h) }

func (h frontierHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].node.VisitOrder < h[j].node.VisitOrder
}

func (h frontierHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *frontierHeap) Push(x interface{}) {
	e := x.(*frontierEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *frontierHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Frontier is the priority-ordered, deduplicated BFS frontier described in
// spec section 4.1. isLeaking and metadata are supplied by the driver so
// the frontier can apply the skip filter without importing a Snapshot.
type Frontier struct {
	h              frontierHeap
	byID           map[ObjectId]*frontierEntry
	visited        map[ObjectId]struct{}
	isLeaking      func(ObjectId) bool
	metadata       func(ObjectId) ObjectIdMetadata
	nextVisitOrder int
}

// NewFrontier constructs an empty frontier.
func NewFrontier(isLeaking func(ObjectId) bool, metadata func(ObjectId) ObjectIdMetadata) *Frontier {
	return &Frontier{
		byID:      make(map[ObjectId]*frontierEntry),
		visited:   make(map[ObjectId]struct{}),
		isLeaking: isLeaking,
		metadata:  metadata,
	}
}

// Len returns the number of ids currently in the frontier.
func (f *Frontier) Len() int { return len(f.h) }

// MarkVisited records id as visited so future Enqueue calls drop it. Pop
// does this automatically for popped nodes; callers use this directly only
// to seed pre-visited state (none in the driver as specified).
func (f *Frontier) MarkVisited(id ObjectId) {
	f.visited[id] = struct{}{}
}

// Visited reports whether id has already been popped.
func (f *Frontier) Visited(id ObjectId) bool {
	_, ok := f.visited[id]
	return ok
}

// Enqueue implements spec section 4.1's enqueue operation. priority == nil
// means ALWAYS_REACHABLE (used for GC roots). Returns true if the node was
// inserted or improved an existing entry.
func (f *Frontier) Enqueue(node *LeakNode, priority *ExclusionStatus) bool {
	id := node.Instance
	if id == 0 {
		return false
	}
	if _, ok := f.visited[id]; ok {
		return false
	}
	p := AlwaysReachable
	if priority != nil {
		p = *priority
	}
	if p == NeverReachable {
		return false
	}
	if existing, ok := f.byID[id]; ok {
		if existing.priority <= p {
			return false
		}
		existing.node = node
		existing.priority = p
		node.VisitOrder = f.nextVisitOrder
		f.nextVisitOrder++
		heap.Fix(&f.h, existing.index)
		return true
	}
	if !f.isLeaking(id) && f.metadata(id).skip() {
		return false
	}
	node.VisitOrder = f.nextVisitOrder
	f.nextVisitOrder++
	entry := &frontierEntry{node: node, priority: p}
	f.byID[id] = entry
	heap.Push(&f.h, entry)
	return true
}

// Pop returns the node with the smallest priority, ties broken by smallest
// VisitOrder, and marks its id visited. Returns ok == false when the
// frontier is empty.
func (f *Frontier) Pop() (node *LeakNode, priority ExclusionStatus, ok bool) {
	if f.h.Len() == 0 {
		return nil, AlwaysReachable, false
	}
	e := heap.Pop(&f.h).(*frontierEntry)
	delete(f.byID, e.node.Instance)
	f.visited[e.node.Instance] = struct{}{}
	return e.node, e.priority, true
}
