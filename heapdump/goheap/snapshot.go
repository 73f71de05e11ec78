// ABOUTME: graph.Snapshot backed by the objects and roots parsed from a Go runtime heap dump
// ABOUTME: synthesizes instance records from raw pointer slices, since Go heap dumps carry no field names

package goheap

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/prateek/heaplens/graph"
)

// goHeapObject is one parsed object: its best-effort Go type name, its
// size in bytes, and the addresses of the objects it points to. A raw
// heap dump records only field offsets and kinds, never field names, so
// this is the only per-object detail either parser (blocking or
// streaming) can recover.
type goHeapObject struct {
	typeName string
	size     uint64
	ptrs     []uint64
}

// Snapshot presents the objects and roots recovered from a Go runtime
// heap dump as a graph.Snapshot for analyzer.FindPaths. A raw memory
// address doubles as the object's graph.ObjectId; unlike an HPROF dump
// there is no separate id space to maintain, since the runtime already
// hands out unique addresses. Every object is treated as an
// InstanceRecord: there is no class metadata or interned string table
// in this format, so ClassName and HprofStringById degrade to
// best-effort or empty values.
type Snapshot struct {
	objects map[uint64]*goHeapObject
	roots   []uint64
}

func newSnapshot(objects map[uint64]*goHeapObject, roots []uint64) *Snapshot {
	return &Snapshot{objects: objects, roots: roots}
}

// Roots exposes the GC roots discovered while parsing, for callers that
// drive analyzer.FindPaths directly against a Go heap dump.
func (s *Snapshot) Roots() []graph.ObjectId {
	out := make([]graph.ObjectId, len(s.roots))
	for i, addr := range s.roots {
		out[i] = graph.ObjectId(addr)
	}
	return out
}

// AllObjectIDs returns every parsed object's id in ascending address
// order, for callers (quickscan) that want to treat the whole dump as
// leak-candidate input rather than a fixed weak-reference set.
func (s *Snapshot) AllObjectIDs() []graph.ObjectId {
	out := make([]graph.ObjectId, 0, len(s.objects))
	for addr := range s.objects {
		out = append(out, graph.ObjectId(addr))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Snapshot) RetrieveRecordById(id graph.ObjectId) (graph.Record, error) {
	if _, ok := s.objects[uint64(id)]; !ok {
		return nil, fmt.Errorf("goheap: no object for id %d", id)
	}
	return graph.InstanceRecord{InstanceId: id}, nil
}

// ObjectIdMetadata always reports Instance: a raw Go heap dump does not
// distinguish arrays, strings or wrapper types from ordinary objects at
// the object-record level, so every node is visited as an instance and
// its pointers walked as fields.
func (s *Snapshot) ObjectIdMetadata(id graph.ObjectId) graph.ObjectIdMetadata {
	return graph.Instance
}

func (s *Snapshot) ClassName(classId graph.ObjectId) string {
	obj, ok := s.objects[uint64(classId)]
	if !ok {
		return ""
	}
	return obj.typeName
}

func (s *Snapshot) HprofStringById(stringId graph.ObjectId) string { return "" }

// HydrateInstance synthesizes field names for the object's pointer slice
// as "ptr@<index>", since the runtime heap dump format records only
// field offsets and kinds, not names, by the time they reach this point.
func (s *Snapshot) HydrateInstance(rec graph.InstanceRecord) (graph.HydratedInstance, error) {
	obj, ok := s.objects[uint64(rec.InstanceId)]
	if !ok {
		return graph.HydratedInstance{}, fmt.Errorf("goheap: no object for id %d", rec.InstanceId)
	}

	names := make([]string, len(obj.ptrs))
	values := make([]graph.HeapValue, len(obj.ptrs))
	for i, ptr := range obj.ptrs {
		names[i] = "ptr@" + strconv.Itoa(i)
		values[i] = graph.HeapValue{
			IsObjectRef:  true,
			ObjectRef:    graph.ObjectId(ptr),
			DisplayValue: strconv.FormatUint(ptr, 10),
		}
	}

	return graph.HydratedInstance{
		ClassHierarchy: []graph.ClassInfo{{ClassName: obj.typeName, FieldNames: names, InstanceSize: obj.size}},
		FieldValues:    [][]graph.HeapValue{values},
		InstanceSize:   obj.size,
	}, nil
}

func (s *Snapshot) IdSize() int { return 8 }
