// ABOUTME: In-memory Snapshot fixture used to drive the end-to-end scenario tests

package analyzer

import (
	"fmt"
	"sort"

	"github.com/prateek/heaplens/graph"
)

type fakeSnapshot struct {
	instances       map[graph.ObjectId]graph.HydratedInstance
	classes         map[graph.ObjectId]graph.ClassRecord
	objectArrays    map[graph.ObjectId]graph.ObjectArrayRecord
	primitiveArrays map[graph.ObjectId]graph.PrimitiveArrayRecord
	metadata        map[graph.ObjectId]graph.ObjectIdMetadata
	idSize          int
}

func newFakeSnapshot() *fakeSnapshot {
	return &fakeSnapshot{
		instances:       make(map[graph.ObjectId]graph.HydratedInstance),
		classes:         make(map[graph.ObjectId]graph.ClassRecord),
		objectArrays:    make(map[graph.ObjectId]graph.ObjectArrayRecord),
		primitiveArrays: make(map[graph.ObjectId]graph.PrimitiveArrayRecord),
		metadata:        make(map[graph.ObjectId]graph.ObjectIdMetadata),
		idSize:          8,
	}
}

func (s *fakeSnapshot) instance(id graph.ObjectId, className string, instanceSize uint64, fields map[string]graph.ObjectId) *fakeSnapshot {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	values := make([]graph.HeapValue, len(names))
	for i, name := range names {
		values[i] = graph.HeapValue{IsObjectRef: true, ObjectRef: fields[name]}
	}
	s.instances[id] = graph.HydratedInstance{
		ClassHierarchy: []graph.ClassInfo{{ClassName: className, FieldNames: names, InstanceSize: instanceSize}},
		FieldValues:    [][]graph.HeapValue{values},
		InstanceSize:   instanceSize,
	}
	if _, ok := s.metadata[id]; !ok {
		s.metadata[id] = graph.Instance
	}
	return s
}

func (s *fakeSnapshot) class(id graph.ObjectId, className string, staticFields map[string]graph.ObjectId) *fakeSnapshot {
	names := make([]string, 0, len(staticFields))
	for name := range staticFields {
		names = append(names, name)
	}
	sort.Strings(names)
	fields := make([]graph.StaticFieldValue, len(names))
	for i, name := range names {
		fields[i] = graph.StaticFieldValue{Name: name, IsObjectRef: true, ObjectRef: staticFields[name]}
	}
	s.classes[id] = graph.ClassRecord{ClassId: id, ClassName: className, StaticFields: fields}
	s.metadata[id] = graph.Class
	return s
}

func (s *fakeSnapshot) primitiveArray(id graph.ObjectId, kind graph.PrimitiveKind, length int) *fakeSnapshot {
	s.primitiveArrays[id] = graph.PrimitiveArrayRecord{ArrayId: id, PrimitiveKind: kind, Length: length}
	s.metadata[id] = graph.PrimitiveArrayOrWrapperArray
	return s
}

func (s *fakeSnapshot) asString(id graph.ObjectId) *fakeSnapshot {
	s.metadata[id] = graph.String
	return s
}

func (s *fakeSnapshot) RetrieveRecordById(id graph.ObjectId) (graph.Record, error) {
	if _, ok := s.instances[id]; ok {
		return graph.InstanceRecord{InstanceId: id}, nil
	}
	if r, ok := s.classes[id]; ok {
		return r, nil
	}
	if r, ok := s.objectArrays[id]; ok {
		return r, nil
	}
	if r, ok := s.primitiveArrays[id]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("fake snapshot: no record for id %d", id)
}

func (s *fakeSnapshot) ObjectIdMetadata(id graph.ObjectId) graph.ObjectIdMetadata {
	if m, ok := s.metadata[id]; ok {
		return m
	}
	return graph.Instance
}

func (s *fakeSnapshot) ClassName(classId graph.ObjectId) string {
	if r, ok := s.classes[classId]; ok {
		return r.ClassName
	}
	return ""
}

func (s *fakeSnapshot) HprofStringById(stringId graph.ObjectId) string { return "" }

func (s *fakeSnapshot) HydrateInstance(rec graph.InstanceRecord) (graph.HydratedInstance, error) {
	h, ok := s.instances[rec.InstanceId]
	if !ok {
		return graph.HydratedInstance{}, fmt.Errorf("fake snapshot: no hydration for id %d", rec.InstanceId)
	}
	return h, nil
}

func (s *fakeSnapshot) IdSize() int { return s.idSize }

func noExclusions(graph.Snapshot) ([]graph.Exclusion, error) { return nil, nil }
