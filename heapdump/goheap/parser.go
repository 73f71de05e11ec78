// ABOUTME: Production Go heap dump parser implementing HeapLens parser interface
// ABOUTME: Parses binary heap dumps from debug.WriteHeapDump() into graph format

package goheap

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/prateek/heaplens/graph"
	"github.com/prateek/heaplens/heapdump"
)

// GoHeapParser implements the heapdump.Parser interface for Go heap dumps
type GoHeapParser struct{}

// Ensure GoHeapParser implements Parser interface
var _ heapdump.Parser = (*GoHeapParser)(nil)

// CanParse checks if the reader contains a Go heap dump
func (p *GoHeapParser) CanParse(r io.Reader) bool {
	// Read the header to check format
	header := make([]byte, 16)
	n, err := r.Read(header)
	if err != nil || n < 16 {
		return false
	}
	return string(header) == "go1.7 heap dump\n"
}

// Parse implements heapdump.Parser: it reads the heap dump and returns a
// Snapshot over the objects and roots it found, so analyzer.FindPaths can
// run the full retained-path search over a Go runtime heap dump exactly as
// it does over an HPROF dump.
func (p *GoHeapParser) Parse(r io.Reader) (graph.Snapshot, error) {
	snap, _, err := p.ParseWithDiagnostics(r)
	return snap, err
}

// ParseWithDiagnostics behaves like Parse but also returns the goroutine,
// stack frame, finalizer, defer/panic, OS thread, memory-profile and
// memstats records the dump carries alongside its objects. quickscan
// surfaces these; a plain Snapshot has no field for them.
func (p *GoHeapParser) ParseWithDiagnostics(r io.Reader) (graph.Snapshot, *Diagnostics, error) {
	parser := &parser{
		r:       bufio.NewReaderSize(r, 1024*1024), // 1MB buffer for performance
		objects: make(map[uint64]*goHeapObject),
		types:   make(map[uint64]*typeInfo),
		roots:   make([]uint64, 0),
	}

	if err := parser.parse(); err != nil {
		return nil, nil, fmt.Errorf("parsing heap dump: %w", err)
	}

	return newSnapshot(parser.objects, parser.roots), parser.Diagnostics(), nil
}

// Register registers the parser with the heapdump package
func init() {
	heapdump.Register(&GoHeapParser{})
}

// Internal parser state
type parser struct {
	r       *bufio.Reader
	objects map[uint64]*goHeapObject
	types   map[uint64]*typeInfo
	roots   []uint64

	// Dump parameters
	bigEndian   bool
	pointerSize uint64
	heapStart   uint64
	heapEnd     uint64
	arch        string
	goVersion   string
	numCPUs     uint64

	// Statistics for progress reporting
	stats struct {
		mu         sync.Mutex
		objects    int
		types      int
		roots      int
		goroutines int
	}

	// diag accumulates the runtime metadata records (goroutines, stack
	// frames, finalizers, and so on) that the object graph itself has
	// no field for but a fuller scan report can still surface.
	diag Diagnostics
}

// Diagnostics returns the runtime metadata records collected alongside
// the object graph during parse.
func (p *parser) Diagnostics() *Diagnostics {
	p.diag.PointerSize = p.pointerSize
	p.diag.BigEndian = p.bigEndian
	return &p.diag
}

// typeInfo stores type information
type typeInfo struct {
	address  uint64
	size     uint64
	name     string
	indirect bool
}

// Record type constants from runtime/heapdump.go
const (
	tagEOF             = 0
	tagObject          = 1
	tagOtherRoot       = 2
	tagType            = 3
	tagGoroutine       = 4
	tagStackFrame      = 5
	tagParams          = 6
	tagFinalizer       = 7
	tagItab            = 8
	tagOSThread        = 9
	tagMemStats        = 10
	tagQueuedFinalizer = 11
	tagData            = 12
	tagBSS             = 13
	tagDefer           = 14
	tagPanic           = 15
	tagMemProf         = 16
	tagAllocSample     = 17
)

// Field kinds
const (
	fieldKindEol   = 0
	fieldKindPtr   = 1
	fieldKindIface = 2
	fieldKindEface = 3
)

// parse performs the main parsing
func (p *parser) parse() error {
	// Read and verify header
	header := make([]byte, 16)
	if _, err := io.ReadFull(p.r, header); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if string(header) != "go1.7 heap dump\n" {
		return fmt.Errorf("invalid header: %q", header)
	}

	// Read records
	for {
		tag, err := p.readVarint()
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("reading tag: %w", err)
		}

		switch tag {
		case tagEOF:
			return nil

		case tagParams:
			if err := p.parseParams(); err != nil {
				return fmt.Errorf("parsing params: %w", err)
			}

		case tagType:
			if err := p.parseType(); err != nil {
				return fmt.Errorf("parsing type: %w", err)
			}

		case tagObject:
			if err := p.parseObject(); err != nil {
				return fmt.Errorf("parsing object: %w", err)
			}

		case tagOtherRoot:
			if err := p.parseOtherRoot(); err != nil {
				return fmt.Errorf("parsing root: %w", err)
			}

		case tagGoroutine:
			g, err := p.parseGoroutineFull()
			if err != nil {
				return fmt.Errorf("parsing goroutine: %w", err)
			}
			p.diag.Goroutines = append(p.diag.Goroutines, g)
			p.stats.mu.Lock()
			p.stats.goroutines++
			p.stats.mu.Unlock()

		case tagStackFrame:
			sf, err := p.parseStackFrameFull()
			if err != nil {
				return fmt.Errorf("parsing stack frame: %w", err)
			}
			p.diag.StackFrames = append(p.diag.StackFrames, sf)

		case tagMemStats:
			ms, err := p.parseMemStatsFull()
			if err != nil {
				return fmt.Errorf("parsing memstats: %w", err)
			}
			p.diag.MemStats = ms

		case tagItab:
			it, err := p.parseItabFull()
			if err != nil {
				return fmt.Errorf("parsing itab: %w", err)
			}
			p.diag.Itabs = append(p.diag.Itabs, it)

		case tagFinalizer, tagQueuedFinalizer:
			fin, err := p.parseFinalizerFull()
			if err != nil {
				return fmt.Errorf("parsing finalizer: %w", err)
			}
			p.diag.Finalizers = append(p.diag.Finalizers, fin)

		case tagData, tagBSS:
			ds, err := p.parseDataSegmentFull()
			if err != nil {
				return fmt.Errorf("parsing data segment: %w", err)
			}
			p.diag.DataSegments = append(p.diag.DataSegments, ds)

		case tagDefer:
			d, err := p.parseDeferFull()
			if err != nil {
				return fmt.Errorf("parsing defer: %w", err)
			}
			p.diag.Defers = append(p.diag.Defers, d)

		case tagPanic:
			pn, err := p.parsePanicFull()
			if err != nil {
				return fmt.Errorf("parsing panic: %w", err)
			}
			p.diag.Panics = append(p.diag.Panics, pn)

		case tagOSThread:
			t, err := p.parseOSThreadFull()
			if err != nil {
				return fmt.Errorf("parsing OS thread: %w", err)
			}
			p.diag.OSThreads = append(p.diag.OSThreads, t)

		case tagMemProf:
			mp, err := p.parseMemProfFull()
			if err != nil {
				return fmt.Errorf("parsing mem prof: %w", err)
			}
			p.diag.MemProfs = append(p.diag.MemProfs, mp)

		case tagAllocSample:
			as, err := p.parseAllocSampleFull()
			if err != nil {
				return fmt.Errorf("parsing alloc sample: %w", err)
			}
			p.diag.AllocSamples = append(p.diag.AllocSamples, as)

		default:
			return fmt.Errorf("unknown tag: %d", tag)
		}
	}

	return nil
}

// readVarint reads a variable-length integer
func (p *parser) readVarint() (uint64, error) {
	return binary.ReadUvarint(p.r)
}

// readString reads a length-prefixed string
func (p *parser) readString() (string, error) {
	length, err := p.readVarint()
	if err != nil {
		return "", err
	}
	if length > 1<<20 { // Sanity check: 1MB max string
		return "", fmt.Errorf("string too long: %d", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(p.r, data); err != nil {
		return "", err
	}
	return string(data), nil
}

// readBytes reads a length-prefixed byte slice
func (p *parser) readBytes() ([]byte, error) {
	length, err := p.readVarint()
	if err != nil {
		return nil, err
	}
	if length > 1<<30 { // Sanity check: 1GB max
		return nil, fmt.Errorf("byte slice too long: %d", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(p.r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// parseParams parses a parameters record
func (p *parser) parseParams() error {
	bigEndian, err := p.readVarint()
	if err != nil {
		return err
	}
	p.bigEndian = bigEndian != 0

	p.pointerSize, err = p.readVarint()
	if err != nil {
		return err
	}

	p.heapStart, err = p.readVarint()
	if err != nil {
		return err
	}

	p.heapEnd, err = p.readVarint()
	if err != nil {
		return err
	}

	p.arch, err = p.readString()
	if err != nil {
		return err
	}

	p.goVersion, err = p.readString()
	if err != nil {
		return err
	}

	p.numCPUs, err = p.readVarint()
	if err != nil {
		return err
	}

	return nil
}

// parseType parses a type record
func (p *parser) parseType() error {
	addr, err := p.readVarint()
	if err != nil {
		return err
	}

	size, err := p.readVarint()
	if err != nil {
		return err
	}

	name, err := p.readString()
	if err != nil {
		return err
	}

	indirect, err := p.readVarint()
	if err != nil {
		return err
	}

	p.types[addr] = &typeInfo{
		address:  addr,
		size:     size,
		name:     name,
		indirect: indirect != 0,
	}

	p.stats.mu.Lock()
	p.stats.types++
	p.stats.mu.Unlock()

	return nil
}

// parseObject parses an object record
func (p *parser) parseObject() error {
	addr, err := p.readVarint()
	if err != nil {
		return err
	}

	data, err := p.readBytes()
	if err != nil {
		return err
	}

	// Parse fields to extract pointers
	var pointers []uint64
	for {
		kind, err := p.readVarint()
		if err != nil {
			return err
		}
		if kind == fieldKindEol {
			break
		}

		offset, err := p.readVarint()
		if err != nil {
			return err
		}

		// Extract pointer value from data if it's a pointer field
		if kind == fieldKindPtr && offset <= uint64(len(data)) && p.pointerSize <= uint64(len(data))-offset {
			// Read pointer value from data at offset
			ptrData := data[offset : offset+p.pointerSize]
			var ptr uint64
			if p.pointerSize == 8 {
				if p.bigEndian {
					ptr = binary.BigEndian.Uint64(ptrData)
				} else {
					ptr = binary.LittleEndian.Uint64(ptrData)
				}
			} else if p.pointerSize == 4 {
				if p.bigEndian {
					ptr = uint64(binary.BigEndian.Uint32(ptrData))
				} else {
					ptr = uint64(binary.LittleEndian.Uint32(ptrData))
				}
			}
			if ptr != 0 {
				pointers = append(pointers, ptr)
			}
		}
	}

	// Determine type name
	typeName := "unknown"
	// Type address is usually stored at the beginning of the object
	if uint64(len(data)) >= p.pointerSize {
		typeAddrData := data[:p.pointerSize]
		var typeAddr uint64
		if p.pointerSize == 8 {
			if p.bigEndian {
				typeAddr = binary.BigEndian.Uint64(typeAddrData)
			} else {
				typeAddr = binary.LittleEndian.Uint64(typeAddrData)
			}
		} else if p.pointerSize == 4 {
			if p.bigEndian {
				typeAddr = uint64(binary.BigEndian.Uint32(typeAddrData))
			} else {
				typeAddr = uint64(binary.LittleEndian.Uint32(typeAddrData))
			}
		}

		if t, ok := p.types[typeAddr]; ok {
			typeName = t.name
		}
	}

	// The object's address doubles as its graph.ObjectId, so pointers
	// recovered here need no id-space translation.
	p.objects[addr] = &goHeapObject{
		typeName: typeName,
		size:     uint64(len(data)),
		ptrs:     pointers,
	}

	p.stats.mu.Lock()
	p.stats.objects++
	p.stats.mu.Unlock()

	return nil
}

// parseOtherRoot parses a root record
func (p *parser) parseOtherRoot() error {
	desc, err := p.readString()
	if err != nil {
		return err
	}
	_ = desc // We could store this for debugging

	ptr, err := p.readVarint()
	if err != nil {
		return err
	}

	p.roots = append(p.roots, ptr)

	p.stats.mu.Lock()
	p.stats.roots++
	p.stats.mu.Unlock()

	return nil
}

