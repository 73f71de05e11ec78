// ABOUTME: Tests for the HPROF binary parser: format detection and a
// ABOUTME: hand-built minimal dump exercising classes, instances and GC roots

package hprof

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/prateek/heaplens/graph"
)

func TestCanParse(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"valid 1.0.1 header", append([]byte("JAVA PROFILE 1.0.1"), 0), true},
		{"valid 1.0.2 header", append([]byte("JAVA PROFILE 1.0.2"), 0), true},
		{"go heap dump header", []byte("go1.7 heap dump\n"), false},
		{"too short", []byte("JAVA"), false},
		{"empty", []byte{}, false},
	}
	p := &HprofParser{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.CanParse(bytes.NewReader(tt.data)); got != tt.want {
				t.Errorf("CanParse() = %v, want %v", got, tt.want)
			}
		})
	}
}

// hprofBuilder assembles a minimal well-formed HPROF stream by hand: a
// string table entry, one LOAD_CLASS record, and a single HEAP_DUMP segment
// containing a CLASS_DUMP, one INSTANCE_DUMP referencing it, and a
// ROOT_UNKNOWN pointing at that instance.
type hprofBuilder struct {
	buf    bytes.Buffer
	idSize uint64
}

func newHprofBuilder(idSize uint64) *hprofBuilder {
	b := &hprofBuilder{idSize: idSize}
	b.buf.WriteString("JAVA PROFILE 1.0.2")
	b.buf.WriteByte(0)
	b.putU4(uint32(idSize))
	b.putN(8) // timestamp
	return b
}

func (b *hprofBuilder) putU4(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.buf.Write(tmp[:])
}

func (b *hprofBuilder) putU2(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.buf.Write(tmp[:])
}

func (b *hprofBuilder) putId(v uint64) {
	if b.idSize == 4 {
		b.putU4(uint32(v))
		return
	}
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.buf.Write(tmp[:])
}

func (b *hprofBuilder) putN(n int) {
	b.buf.Write(make([]byte, n))
}

// record appends a top-level record: tag, zeroed timestamp, then body.
func (b *hprofBuilder) record(tag byte, body []byte) {
	b.buf.WriteByte(tag)
	b.putN(4)
	b.putU4(uint32(len(body)))
	b.buf.Write(body)
}

func (b *hprofBuilder) utf8(id uint64, s string) []byte {
	var body bytes.Buffer
	tmp := &hprofBuilder{idSize: b.idSize}
	tmp.putId(id)
	body.Write(tmp.buf.Bytes())
	body.WriteString(s)
	return body.Bytes()
}

func (b *hprofBuilder) loadClass(classId, nameId uint64) []byte {
	var body bytes.Buffer
	tmp := &hprofBuilder{idSize: b.idSize}
	tmp.putU4(1) // class serial
	tmp.putId(classId)
	tmp.putU4(0) // stack trace serial
	tmp.putId(nameId)
	body.Write(tmp.buf.Bytes())
	return body.Bytes()
}

func TestParseMinimalDump(t *testing.T) {
	const idSize = 8
	const classId = 100
	const classNameId = 200
	const fieldNameId = 201
	const rootInstanceId = 300
	const referentInstanceId = 301

	b := newHprofBuilder(idSize)

	b.record(tagUTF8, b.utf8(classNameId, "com.example.Root"))
	b.record(tagUTF8, b.utf8(fieldNameId, "next"))
	b.record(tagLoadClass, b.loadClass(classId, classNameId))

	// Build the HEAP_DUMP segment body directly.
	var seg bytes.Buffer

	// CLASS_DUMP
	seg.WriteByte(subClassDump)
	cls := &hprofBuilder{idSize: idSize}
	cls.putId(classId)
	cls.putU4(0)      // stack trace serial
	cls.putId(0)      // super class id
	cls.putN(5 * idSize) // loader, signers, protection domain, 2 reserved
	cls.putU4(16)     // instance size
	cls.putU2(0)      // constant pool count
	cls.putU2(0)      // static field count
	cls.putU2(1)      // instance field count
	cls.putId(fieldNameId)
	cls.buf.WriteByte(typeObject)
	seg.Write(cls.buf.Bytes())

	// INSTANCE_DUMP for the root instance, whose "next" field points at
	// referentInstanceId.
	seg.WriteByte(subInstanceDump)
	inst := &hprofBuilder{idSize: idSize}
	inst.putId(rootInstanceId)
	inst.putU4(0) // stack trace serial
	inst.putId(classId)
	fieldBytes := &hprofBuilder{idSize: idSize}
	fieldBytes.putId(referentInstanceId)
	inst.putU4(uint32(len(fieldBytes.buf.Bytes())))
	inst.buf.Write(fieldBytes.buf.Bytes())
	seg.Write(inst.buf.Bytes())

	// A second, childless instance of the same class as the referent.
	seg.WriteByte(subInstanceDump)
	leaf := &hprofBuilder{idSize: idSize}
	leaf.putId(referentInstanceId)
	leaf.putU4(0)
	leaf.putId(classId)
	leafFields := &hprofBuilder{idSize: idSize}
	leafFields.putId(0)
	leaf.putU4(uint32(len(leafFields.buf.Bytes())))
	leaf.buf.Write(leafFields.buf.Bytes())
	seg.Write(leaf.buf.Bytes())

	// GC root pointing at the root instance.
	seg.WriteByte(subRootUnknown)
	rootId := &hprofBuilder{idSize: idSize}
	rootId.putId(rootInstanceId)
	seg.Write(rootId.buf.Bytes())

	b.record(tagHeapDump, seg.Bytes())

	parser := &HprofParser{}
	snap, err := parser.Parse(bytes.NewReader(b.buf.Bytes()))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	hs, ok := snap.(*hprofSnapshot)
	if !ok {
		t.Fatalf("Parse() returned %T, want *hprofSnapshot", snap)
	}

	if hs.IdSize() != idSize {
		t.Errorf("IdSize() = %d, want %d", hs.IdSize(), idSize)
	}

	roots := hs.Roots()
	if len(roots) != 1 || roots[0] != graph.ObjectId(rootInstanceId) {
		t.Fatalf("Roots() = %v, want [%d]", roots, rootInstanceId)
	}

	if got := hs.ClassName(graph.ObjectId(classId)); got != "com.example.Root" {
		t.Errorf("ClassName() = %q, want %q", got, "com.example.Root")
	}

	if meta := hs.ObjectIdMetadata(graph.ObjectId(rootInstanceId)); meta != graph.Instance {
		t.Errorf("ObjectIdMetadata(root) = %v, want Instance", meta)
	}

	rec, err := hs.RetrieveRecordById(graph.ObjectId(rootInstanceId))
	if err != nil {
		t.Fatalf("RetrieveRecordById() error = %v", err)
	}
	instRec, ok := rec.(graph.InstanceRecord)
	if !ok {
		t.Fatalf("RetrieveRecordById() = %T, want graph.InstanceRecord", rec)
	}

	hydrated, err := hs.HydrateInstance(instRec)
	if err != nil {
		t.Fatalf("HydrateInstance() error = %v", err)
	}
	if len(hydrated.ClassHierarchy) != 1 || hydrated.ClassHierarchy[0].ClassName != "com.example.Root" {
		t.Fatalf("HydrateInstance() hierarchy = %+v", hydrated.ClassHierarchy)
	}
	if len(hydrated.FieldValues) != 1 || len(hydrated.FieldValues[0]) != 1 {
		t.Fatalf("HydrateInstance() field values = %+v", hydrated.FieldValues)
	}
	field := hydrated.FieldValues[0][0]
	if !field.IsObjectRef || field.ObjectRef != graph.ObjectId(referentInstanceId) {
		t.Errorf("field 'next' = %+v, want object ref %d", field, referentInstanceId)
	}
}
