// ABOUTME: Real Sun/Oracle HPROF binary dump parser implementing heapdump.Parser
// ABOUTME: Reads UTF8/LOAD_CLASS/HEAP_DUMP top-level records and their CLASS_DUMP/
// ABOUTME: INSTANCE_DUMP/OBJECT_ARRAY_DUMP/PRIMITIVE_ARRAY_DUMP/GC-root sub-records

package hprof

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/prateek/heaplens/graph"
	"github.com/prateek/heaplens/heapdump"
)

// HprofParser implements heapdump.Parser against the real Java HPROF binary
// dump format (as written by jmap/VisualVM/`jcmd GC.heap_dump`), distinct
// from the Go runtime's own heap dump format handled by package goheap.
type HprofParser struct{}

var _ heapdump.Parser = (*HprofParser)(nil)

var headerPrefixes = [][]byte{
	[]byte("JAVA PROFILE 1.0.1"),
	[]byte("JAVA PROFILE 1.0.2"),
}

// CanParse reports whether r starts with a recognized HPROF version header.
func (p *HprofParser) CanParse(r io.Reader) bool {
	buf := make([]byte, 19)
	n, err := io.ReadFull(r, buf)
	if err != nil || n < 19 {
		return false
	}
	for _, prefix := range headerPrefixes {
		if bytes.Equal(buf[:len(prefix)], prefix) {
			return true
		}
	}
	return false
}

// Parse reads a full HPROF dump into memory and wraps it as a graph.Snapshot.
func (p *HprofParser) Parse(r io.Reader) (graph.Snapshot, error) {
	parser := &hprofParser{
		r:           bufio.NewReaderSize(r, 1<<20),
		strings:     make(map[uint64]string),
		classNameId: make(map[uint64]uint64),
		classes:     make(map[uint64]*classDef),
		instances:   make(map[uint64]*instanceDump),
		objArrays:   make(map[uint64]*objArrayDump),
		primArrays:  make(map[uint64]*primArrayDump),
	}
	if err := parser.parse(); err != nil {
		return nil, fmt.Errorf("parsing hprof dump: %w", err)
	}
	return newSnapshot(parser), nil
}

func init() {
	heapdump.Register(&HprofParser{})
}

// Top-level record tags (HPROF binary format spec).
const (
	tagUTF8            = 0x01
	tagLoadClass       = 0x02
	tagUnloadClass     = 0x03
	tagStackFrame      = 0x04
	tagStackTrace      = 0x05
	tagAllocSites      = 0x06
	tagHeapSummary     = 0x07
	tagStartThread     = 0x0a
	tagEndThread       = 0x0b
	tagHeapDump        = 0x0c
	tagCPUSamples      = 0x0d
	tagControlSettings = 0x0e
	tagHeapDumpSegment = 0x1c
	tagHeapDumpEnd     = 0x2c
)

// Sub-records nested inside HEAP_DUMP/HEAP_DUMP_SEGMENT.
const (
	subRootJNIGlobal    = 0x01
	subRootJNILocal     = 0x02
	subRootJavaFrame    = 0x03
	subRootNativeStack  = 0x04
	subRootStickyClass  = 0x05
	subRootThreadBlock  = 0x06
	subRootMonitorUsed  = 0x07
	subRootThreadObject = 0x08
	subClassDump        = 0x20
	subInstanceDump     = 0x21
	subObjectArrayDump  = 0x22
	subPrimArrayDump    = 0x23
	subRootUnknown      = 0xff
)

// Basic type tags used in CLASS_DUMP field descriptors and
// PRIMITIVE_ARRAY_DUMP element types.
const (
	typeObject  = 2
	typeBoolean = 4
	typeChar    = 5
	typeFloat   = 6
	typeDouble  = 7
	typeByte    = 8
	typeShort   = 9
	typeInt     = 10
	typeLong    = 11
)

func typeSize(tag byte, idSize uint64) uint64 {
	switch tag {
	case typeObject:
		return idSize
	case typeBoolean, typeByte:
		return 1
	case typeChar, typeShort:
		return 2
	case typeFloat, typeInt:
		return 4
	case typeDouble, typeLong:
		return 8
	default:
		return 0
	}
}

func primitiveKindForTag(tag byte) graph.PrimitiveKind {
	switch tag {
	case typeBoolean:
		return graph.Boolean
	case typeByte:
		return graph.Byte
	case typeShort:
		return graph.Short
	case typeChar:
		return graph.Char
	case typeInt:
		return graph.Int
	case typeFloat:
		return graph.Float
	case typeLong:
		return graph.Long
	case typeDouble:
		return graph.Double
	default:
		return graph.Byte
	}
}

type instanceFieldDef struct {
	nameId  uint64
	typeTag byte
}

type classDef struct {
	id           uint64
	superId      uint64
	instanceSize uint64
	staticFields []graph.StaticFieldValue
	fields       []instanceFieldDef // own instance fields only, dump order
}

type instanceDump struct {
	id      uint64
	classId uint64
	data    []byte
}

type objArrayDump struct {
	id       uint64
	elements []uint64
}

type primArrayDump struct {
	id     uint64
	kind   graph.PrimitiveKind
	length int
}

// hprofParser accumulates the record tables a Snapshot needs to answer
// RetrieveRecordById/HydrateInstance/ObjectIdMetadata queries. Unlike the
// teacher's goheap parser it never builds a traversal graph directly; the
// resulting hprofSnapshot walks these tables lazily, the way spec section 6's
// external-parser contract expects.
type hprofParser struct {
	r      *bufio.Reader
	idSize uint64

	strings     map[uint64]string
	classNameId map[uint64]uint64 // class object id -> name string id
	classes     map[uint64]*classDef
	instances   map[uint64]*instanceDump
	objArrays   map[uint64]*objArrayDump
	primArrays  map[uint64]*primArrayDump
	roots       []uint64
}

func (p *hprofParser) parse() error {
	if err := p.readHeader(); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	for {
		tag, err := p.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := p.skipN(4); err != nil { // timestamp, unused
			return err
		}
		length, err := p.readUint32()
		if err != nil {
			return err
		}
		body := make([]byte, length)
		if _, err := io.ReadFull(p.r, body); err != nil {
			return fmt.Errorf("reading record body: %w", err)
		}

		switch tag {
		case tagUTF8:
			if err := p.parseUTF8(body); err != nil {
				return err
			}
		case tagLoadClass:
			if err := p.parseLoadClass(body); err != nil {
				return err
			}
		case tagHeapDump, tagHeapDumpSegment:
			if err := p.parseHeapDumpSegment(body); err != nil {
				return err
			}
		default:
			// Unload/stack-frame/stack-trace/alloc-sites/heap-summary/thread
			// life-cycle/control-settings/heap-dump-end records carry no
			// data the retained-path search or reporting needs.
		}
	}
}

func (p *hprofParser) readHeader() error {
	version, err := p.r.ReadString(0)
	if err != nil {
		return err
	}
	if len(version) < 1 || version[len(version)-1] != 0 {
		return fmt.Errorf("missing NUL-terminated version string")
	}
	idSize, err := p.readUint32()
	if err != nil {
		return err
	}
	if idSize != 4 && idSize != 8 {
		return fmt.Errorf("unsupported id size %d", idSize)
	}
	p.idSize = idSize
	return p.skipN(8) // creation timestamp, unused
}

func (p *hprofParser) skipN(n int) error {
	_, err := io.CopyN(io.Discard, p.r, int64(n))
	return err
}

func (p *hprofParser) readUint32() (uint64, error) {
	var buf [4]byte
	if _, err := io.ReadFull(p.r, buf[:]); err != nil {
		return 0, err
	}
	return uint64(binary.BigEndian.Uint32(buf[:])), nil
}

func (p *hprofParser) parseUTF8(body []byte) error {
	if uint64(len(body)) < p.idSize {
		return fmt.Errorf("UTF8 record too short")
	}
	id := readId(body, p.idSize)
	p.strings[id] = string(body[p.idSize:])
	return nil
}

func (p *hprofParser) parseLoadClass(body []byte) error {
	c := newCursor(body, p.idSize)
	c.skip(4) // class serial number
	classId := c.readId()
	c.skip(4) // stack trace serial number
	nameId := c.readId()
	p.classNameId[classId] = nameId
	return c.err
}

func (p *hprofParser) parseHeapDumpSegment(body []byte) error {
	c := newCursor(body, p.idSize)
	for c.remaining() > 0 && c.err == nil {
		tag := c.readByte()
		switch tag {
		case subRootJNIGlobal:
			p.addRoot(c.readId())
			c.skip(int(c.idSize))
		case subRootJNILocal:
			p.addRoot(c.readId())
			c.skip(8)
		case subRootJavaFrame:
			p.addRoot(c.readId())
			c.skip(8)
		case subRootNativeStack:
			p.addRoot(c.readId())
			c.skip(4)
		case subRootStickyClass:
			p.addRoot(c.readId())
		case subRootThreadBlock:
			p.addRoot(c.readId())
			c.skip(4)
		case subRootMonitorUsed:
			p.addRoot(c.readId())
		case subRootThreadObject:
			p.addRoot(c.readId())
			c.skip(8)
		case subRootUnknown:
			p.addRoot(c.readId())
		case subClassDump:
			p.readClassDump(c)
		case subInstanceDump:
			p.readInstanceDump(c)
		case subObjectArrayDump:
			p.readObjectArrayDump(c)
		case subPrimArrayDump:
			p.readPrimArrayDump(c)
		default:
			return fmt.Errorf("unknown heap dump sub-record tag %#x at offset %d", tag, c.off)
		}
	}
	return c.err
}

func (p *hprofParser) addRoot(id uint64) {
	if id != 0 {
		p.roots = append(p.roots, id)
	}
}

func (p *hprofParser) readClassDump(c *cursor) {
	cd := &classDef{}
	cd.id = c.readId()
	c.skip(4) // stack trace serial number
	cd.superId = c.readId()
	c.skip(int(5 * c.idSize)) // class loader, signers, protection domain, 2 reserved fields
	cd.instanceSize = uint64(c.readUint32())

	numConstants := c.readUint16()
	for i := 0; i < int(numConstants); i++ {
		c.skip(2) // constant pool index
		tag := c.readByte()
		c.skip(int(typeSize(tag, c.idSize)))
	}

	numStatics := c.readUint16()
	cd.staticFields = make([]graph.StaticFieldValue, 0, numStatics)
	for i := 0; i < int(numStatics); i++ {
		nameId := c.readId()
		tag := c.readByte()
		field := graph.StaticFieldValue{Name: p.strings[nameId]}
		if tag == typeObject {
			ref := c.readId()
			field.IsObjectRef = true
			field.ObjectRef = graph.ObjectId(ref)
			field.DisplayValue = fmt.Sprintf("%d", ref)
		} else {
			field.DisplayValue = formatPrimitive(tag, c.readN(int(typeSize(tag, c.idSize))))
		}
		cd.staticFields = append(cd.staticFields, field)
	}

	numFields := c.readUint16()
	cd.fields = make([]instanceFieldDef, numFields)
	for i := 0; i < int(numFields); i++ {
		cd.fields[i] = instanceFieldDef{nameId: c.readId(), typeTag: c.readByte()}
	}

	p.classes[cd.id] = cd
}

func (p *hprofParser) readInstanceDump(c *cursor) {
	id := c.readId()
	c.skip(4) // stack trace serial number
	classId := c.readId()
	numBytes := c.readUint32()
	data := c.readN(int(numBytes))
	p.instances[id] = &instanceDump{id: id, classId: classId, data: data}
}

func (p *hprofParser) readObjectArrayDump(c *cursor) {
	id := c.readId()
	c.skip(4) // stack trace serial number
	numElements := c.readUint32()
	c.skip(int(c.idSize)) // array class id, unused: element identity carries the type
	elements := make([]uint64, numElements)
	for i := range elements {
		elements[i] = c.readId()
	}
	p.objArrays[id] = &objArrayDump{id: id, elements: elements}
}

func (p *hprofParser) readPrimArrayDump(c *cursor) {
	id := c.readId()
	c.skip(4) // stack trace serial number
	numElements := c.readUint32()
	elemType := c.readByte()
	c.skip(int(uint64(numElements) * typeSize(elemType, c.idSize)))
	p.primArrays[id] = &primArrayDump{id: id, kind: primitiveKindForTag(elemType), length: int(numElements)}
}

func formatPrimitive(tag byte, data []byte) string {
	switch tag {
	case typeBoolean:
		if len(data) > 0 && data[0] != 0 {
			return "true"
		}
		return "false"
	case typeByte:
		if len(data) > 0 {
			return fmt.Sprintf("%d", int8(data[0]))
		}
	case typeChar:
		if len(data) >= 2 {
			return fmt.Sprintf("%d", binary.BigEndian.Uint16(data))
		}
	case typeShort:
		if len(data) >= 2 {
			return fmt.Sprintf("%d", int16(binary.BigEndian.Uint16(data)))
		}
	case typeInt:
		if len(data) >= 4 {
			return fmt.Sprintf("%d", int32(binary.BigEndian.Uint32(data)))
		}
	case typeFloat:
		if len(data) >= 4 {
			return fmt.Sprintf("%d", binary.BigEndian.Uint32(data))
		}
	case typeLong:
		if len(data) >= 8 {
			return fmt.Sprintf("%d", int64(binary.BigEndian.Uint64(data)))
		}
	case typeDouble:
		if len(data) >= 8 {
			return fmt.Sprintf("%d", binary.BigEndian.Uint64(data))
		}
	}
	return fmt.Sprintf("%x", data)
}

func readId(data []byte, idSize uint64) uint64 {
	if idSize == 4 {
		if len(data) < 4 {
			return 0
		}
		return uint64(binary.BigEndian.Uint32(data))
	}
	if len(data) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

// cursor reads big-endian fields sequentially out of a fixed byte slice, the
// in-memory counterpart to the *bufio.Reader used for the top-level stream:
// HEAP_DUMP/HEAP_DUMP_SEGMENT bodies are read fully into memory up front
// (parse's ReadFull) since their sub-records can only be walked once the
// whole segment length is known.
type cursor struct {
	data   []byte
	off    int
	idSize uint64
	err    error
}

func newCursor(data []byte, idSize uint64) *cursor {
	return &cursor{data: data, idSize: idSize}
}

func (c *cursor) remaining() int { return len(c.data) - c.off }

func (c *cursor) readN(n int) []byte {
	if c.err != nil || n < 0 || c.off+n > len(c.data) {
		c.err = fmt.Errorf("cursor: short read at offset %d wanting %d bytes", c.off, n)
		return nil
	}
	b := c.data[c.off : c.off+n]
	c.off += n
	return b
}

func (c *cursor) skip(n int) { c.readN(n) }

func (c *cursor) readByte() byte {
	b := c.readN(1)
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

func (c *cursor) readUint16() uint16 {
	b := c.readN(2)
	if len(b) < 2 {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (c *cursor) readUint32() uint32 {
	b := c.readN(4)
	if len(b) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (c *cursor) readId() uint64 {
	b := c.readN(int(c.idSize))
	return readId(b, c.idSize)
}
