// ABOUTME: Parser contract consumed by the core (spec section 6)
// ABOUTME: Snapshot, Record kinds and the primitive-size table

package graph

// Snapshot is the external collaborator the core consumes: a parsed heap
// dump exposed by object id. Implementations must be idempotent and
// side-effect-free; the core never mutates the snapshot.
type Snapshot interface {
	// RetrieveRecordById returns the record for id: a ClassRecord,
	// InstanceRecord, ObjectArrayRecord or PrimitiveArrayRecord.
	RetrieveRecordById(id ObjectId) (Record, error)
	// ObjectIdMetadata is a constant-time tag lookup.
	ObjectIdMetadata(id ObjectId) ObjectIdMetadata
	// ClassName resolves a class object id to its fully-qualified name.
	ClassName(classId ObjectId) string
	// HprofStringById resolves a string record id to its value.
	HprofStringById(stringId ObjectId) string
	// HydrateInstance expands an InstanceRecord into its class hierarchy
	// and parallel field values.
	HydrateInstance(rec InstanceRecord) (HydratedInstance, error)
	// IdSize is 4 or 8, the dump's reference width in bytes.
	IdSize() int
}

// Record is the closed set of record kinds the visitor dispatches on, plus
// PrimitiveArrayRecord which contributes only to retained size. Any other
// concrete type returned by a Snapshot is treated as a leaf.
type Record interface {
	isRecord()
}

// StaticFieldValue is one static field slot of a ClassRecord.
type StaticFieldValue struct {
	Name         string
	IsObjectRef  bool
	ObjectRef    ObjectId
	DisplayValue string
}

// ClassRecord is a class object: its static fields.
type ClassRecord struct {
	ClassId      ObjectId
	ClassName    string
	StaticFields []StaticFieldValue
}

func (ClassRecord) isRecord() {}

// InstanceRecord is an instance object; its fields require HydrateInstance.
type InstanceRecord struct {
	InstanceId ObjectId
	ClassId    ObjectId
}

func (InstanceRecord) isRecord() {}

// ObjectArrayRecord is an array of object references.
type ObjectArrayRecord struct {
	ArrayId  ObjectId
	Elements []ObjectId
}

func (ObjectArrayRecord) isRecord() {}

// PrimitiveKind is one of the eight HPROF primitive element types.
type PrimitiveKind int

const (
	Boolean PrimitiveKind = iota
	Byte
	Short
	Char
	Int
	Float
	Long
	Double
)

// PrimitiveSize returns the fixed byte width for a primitive kind (spec
// section 6): boolean/byte=1, short/char=2, int/float=4, long/double=8.
func PrimitiveSize(k PrimitiveKind) int {
	switch k {
	case Boolean, Byte:
		return 1
	case Short, Char:
		return 2
	case Int, Float:
		return 4
	case Long, Double:
		return 8
	default:
		return 0
	}
}

// PrimitiveArrayRecord is an array of primitive values. It has no outbound
// references; it contributes only to retained-size accounting.
type PrimitiveArrayRecord struct {
	ArrayId       ObjectId
	PrimitiveKind PrimitiveKind
	Length        int
}

func (PrimitiveArrayRecord) isRecord() {}

// ClassInfo names one level of an instance's class hierarchy.
type ClassInfo struct {
	ClassName    string
	FieldNames   []string
	InstanceSize uint64 // cumulative shallow size over the hierarchy, class-object relative
}

// HeapValue is one field slot's value: either an object reference or a
// primitive rendered as a display string.
type HeapValue struct {
	IsObjectRef  bool
	ObjectRef    ObjectId
	DisplayValue string
}

// HydratedInstance is the parallel-array expansion of an instance's fields
// across its class hierarchy: FieldValues[i][j] corresponds to
// ClassHierarchy[i].FieldNames[j]. InstanceSize is the instance's own
// shallow size, already cumulative over the hierarchy.
type HydratedInstance struct {
	ClassHierarchy []ClassInfo
	FieldValues    [][]HeapValue
	InstanceSize   uint64
}
