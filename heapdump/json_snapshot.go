// ABOUTME: In-memory graph.Snapshot backing JSONStub, plus accessors for its fixture-only fields

package heapdump

import (
	"fmt"
	"strconv"

	"github.com/prateek/heaplens/graph"
)

// JSONSnapshot is the graph.Snapshot produced by JSONStub. Roots, WeakRefs
// and Exclusions are fixture-only conveniences beyond the Snapshot
// contract, used by tests and cmd/heaplens to drive analyzer.FindPaths
// without a separate exclusions catalog file.
type JSONSnapshot struct {
	instances       map[graph.ObjectId]jsonInstance
	classes         map[graph.ObjectId]graph.ClassRecord
	objectArrays    map[graph.ObjectId]graph.ObjectArrayRecord
	primitiveArrays map[graph.ObjectId]graph.PrimitiveArrayRecord
	metadata        map[graph.ObjectId]graph.ObjectIdMetadata

	roots      []graph.ObjectId
	weakRefs   []graph.WeakRefMirror
	exclusions []graph.Exclusion
}

type jsonInstance struct {
	className    string
	instanceSize uint64
	fieldNames   []string
	fieldValues  []graph.HeapValue
}

// NewJSONSnapshot returns an empty snapshot ready to have objects added.
func NewJSONSnapshot() *JSONSnapshot {
	return &JSONSnapshot{
		instances:       make(map[graph.ObjectId]jsonInstance),
		classes:         make(map[graph.ObjectId]graph.ClassRecord),
		objectArrays:    make(map[graph.ObjectId]graph.ObjectArrayRecord),
		primitiveArrays: make(map[graph.ObjectId]graph.PrimitiveArrayRecord),
		metadata:        make(map[graph.ObjectId]graph.ObjectIdMetadata),
	}
}

func (s *JSONSnapshot) addObject(obj jsonObject) error {
	switch obj.Kind {
	case "instance", "":
		names := make([]string, 0, len(obj.Fields))
		for name := range obj.Fields {
			names = append(names, name)
		}
		values := make([]graph.HeapValue, len(names))
		for i, name := range names {
			values[i] = graph.HeapValue{IsObjectRef: true, ObjectRef: obj.Fields[name], DisplayValue: strconv.FormatUint(uint64(obj.Fields[name]), 10)}
		}
		s.instances[obj.ID] = jsonInstance{className: obj.Class, instanceSize: obj.Size, fieldNames: names, fieldValues: values}
		if len(names) == 0 {
			s.metadata[obj.ID] = graph.EmptyInstance
		} else {
			s.metadata[obj.ID] = graph.Instance
		}
	case "class":
		names := make([]string, 0, len(obj.StaticFields))
		for name := range obj.StaticFields {
			names = append(names, name)
		}
		fields := make([]graph.StaticFieldValue, len(names))
		for i, name := range names {
			fields[i] = graph.StaticFieldValue{Name: name, IsObjectRef: true, ObjectRef: obj.StaticFields[name]}
		}
		s.classes[obj.ID] = graph.ClassRecord{ClassId: obj.ID, ClassName: obj.Class, StaticFields: fields}
		s.metadata[obj.ID] = graph.Class
	case "objectArray":
		s.objectArrays[obj.ID] = graph.ObjectArrayRecord{ArrayId: obj.ID, Elements: obj.Elements}
		s.metadata[obj.ID] = graph.ObjectArray
	case "primitiveArray":
		kind, err := decodePrimitiveKind(obj.Primitive)
		if err != nil {
			return fmt.Errorf("heapdump: object %d: %w", obj.ID, err)
		}
		s.primitiveArrays[obj.ID] = graph.PrimitiveArrayRecord{ArrayId: obj.ID, PrimitiveKind: kind, Length: obj.Length}
		s.metadata[obj.ID] = graph.PrimitiveArrayOrWrapperArray
	case "string":
		s.metadata[obj.ID] = graph.String
	case "primitiveWrapper":
		s.metadata[obj.ID] = graph.PrimitiveWrapper
	case "emptyInstance":
		s.metadata[obj.ID] = graph.EmptyInstance
	default:
		return fmt.Errorf("heapdump: object %d: unknown kind %q", obj.ID, obj.Kind)
	}
	return nil
}

func decodePrimitiveKind(name string) (graph.PrimitiveKind, error) {
	switch name {
	case "boolean":
		return graph.Boolean, nil
	case "byte":
		return graph.Byte, nil
	case "short":
		return graph.Short, nil
	case "char":
		return graph.Char, nil
	case "int":
		return graph.Int, nil
	case "float":
		return graph.Float, nil
	case "long":
		return graph.Long, nil
	case "double":
		return graph.Double, nil
	default:
		return 0, fmt.Errorf("unknown primitive kind %q", name)
	}
}

// Roots returns the GC root ids declared by the fixture.
func (s *JSONSnapshot) Roots() []graph.ObjectId { return s.roots }

// WeakRefs returns the leaking-candidate weak references declared by the fixture.
func (s *JSONSnapshot) WeakRefs() []graph.WeakRefMirror { return s.weakRefs }

// Exclusions returns the exclusion rules declared by the fixture.
func (s *JSONSnapshot) Exclusions() []graph.Exclusion { return s.exclusions }

// NumObjects reports how many objects of any kind were loaded.
func (s *JSONSnapshot) NumObjects() int {
	return len(s.instances) + len(s.classes) + len(s.objectArrays) + len(s.primitiveArrays)
}

func (s *JSONSnapshot) RetrieveRecordById(id graph.ObjectId) (graph.Record, error) {
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
	return nil, fmt.Errorf("heapdump: no record for id %d", id)
}

func (s *JSONSnapshot) ObjectIdMetadata(id graph.ObjectId) graph.ObjectIdMetadata {
	if m, ok := s.metadata[id]; ok {
		return m
	}
	return graph.Instance
}

func (s *JSONSnapshot) ClassName(classId graph.ObjectId) string {
	if r, ok := s.classes[classId]; ok {
		return r.ClassName
	}
	return ""
}

func (s *JSONSnapshot) HprofStringById(stringId graph.ObjectId) string { return "" }

func (s *JSONSnapshot) HydrateInstance(rec graph.InstanceRecord) (graph.HydratedInstance, error) {
	inst, ok := s.instances[rec.InstanceId]
	if !ok {
		return graph.HydratedInstance{}, fmt.Errorf("heapdump: no instance for id %d", rec.InstanceId)
	}
	return graph.HydratedInstance{
		ClassHierarchy: []graph.ClassInfo{{ClassName: inst.className, FieldNames: inst.fieldNames, InstanceSize: inst.instanceSize}},
		FieldValues:    [][]graph.HeapValue{inst.fieldValues},
		InstanceSize:   inst.instanceSize,
	}, nil
}

func (s *JSONSnapshot) IdSize() int { return 8 }
