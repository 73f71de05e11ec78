// ABOUTME: Complete implementation of all Go heap dump record types
// ABOUTME: Provides parsers for every record type in the heap dump format

package goheap

import (
	"encoding/binary"
)

// Record types for full heap dump support
type (
	// Finalizer represents a finalizer record
	Finalizer struct {
		Object   uint64
		Function uint64
		FuncVal  uint64
		FuncType uint64
		ObjType  uint64
	}

	// Itab represents an interface table record
	Itab struct {
		Interface uint64
		Type      uint64
	}

	// StackFrame represents a complete stack frame
	StackFrame struct {
		SP       uint64
		Depth    uint64
		ChildSP  uint64
		Data     []byte
		EntryPC  uint64
		PC       uint64
		ContPC   uint64
		Name     string
		Pointers []PointerField
	}

	// PointerField represents a pointer field in an object or frame
	PointerField struct {
		Kind   uint64
		Offset uint64
	}

	// OSThread represents an OS thread
	OSThread struct {
		ID         uint64
		OSThreadID uint64
		GoID       uint64
	}

	// MemProfRecord represents memory profiling data
	MemProfRecord struct {
		BucketID uint64
		Size     uint64
		Allocs   uint64
		Frees    uint64
		Stack    []MemProfFrame
	}

	// MemProfFrame represents a stack frame in memory profiling
	MemProfFrame struct {
		Function string
		File     string
		Line     uint64
	}

	// DataSegment represents a data or BSS segment
	DataSegment struct {
		Address  uint64
		Data     []byte
		Pointers []PointerField
	}

	// DeferRecord represents a deferred function call
	DeferRecord struct {
		Address uint64
		Gp      uint64
		Argp    uint64
		PC      uint64
		Fn      uint64
		FnEntry uint64
		Link    uint64
	}

	// PanicRecord represents a panic
	PanicRecord struct {
		Address uint64
		Gp      uint64
		Typ     uint64
		Data    uint64
		Defer   uint64
		Link    uint64
	}

	// GoroutineFull represents complete goroutine information
	GoroutineFull struct {
		Address      uint64
		StackTop     uint64
		ID           uint64
		Status       uint64
		IsSystem     bool
		IsBackground bool
		WaitSince    uint64
		WaitReason   string
		CtxtAddr     uint64
		MAddr        uint64
		DeferAddr    uint64
		PanicAddr    uint64
	}

	// MemStatsFull represents complete memory statistics
	MemStatsFull struct {
		Alloc         uint64
		TotalAlloc    uint64
		Sys           uint64
		Lookups       uint64
		Mallocs       uint64
		Frees         uint64
		HeapAlloc     uint64
		HeapSys       uint64
		HeapIdle      uint64
		HeapInuse     uint64
		HeapReleased  uint64
		HeapObjects   uint64
		StackInuse    uint64
		StackSys      uint64
		MSpanInuse    uint64
		MSpanSys      uint64
		MCacheInuse   uint64
		MCacheSys     uint64
		BuckHashSys   uint64
		GCSys         uint64
		OtherSys      uint64
		NextGC        uint64
		LastGC        uint64
		PauseTotalNs  uint64
		NumGC         uint32
		NumForcedGC   uint32
		GCCPUFraction float64
		EnableGC      bool
		DebugGC       bool
		// BySize stats would go here
	}

	// AllocSample represents an allocation sample
	AllocSample struct {
		Address  uint64
		Profile  uint64
		Size     uint64
		NumAlloc uint64
		NumFree  uint64
	}
)

// Diagnostics collects the runtime metadata records a heap dump carries
// alongside its objects: goroutines, stack frames, finalizers,
// defers/panics, OS threads, memory-profile samples and memstats. A
// Snapshot has no field for any of these; the parser wires its
// accumulated Diagnostics through ParseWithDiagnostics instead of
// discarding them.
type Diagnostics struct {
	PointerSize  uint64
	BigEndian    bool
	Goroutines   []*GoroutineFull
	StackFrames  []*StackFrame
	Finalizers   []*Finalizer
	Itabs        []*Itab
	OSThreads    []*OSThread
	MemProfs     []*MemProfRecord
	DataSegments []*DataSegment
	Defers       []*DeferRecord
	Panics       []*PanicRecord
	MemStats     *MemStatsFull
	AllocSamples []*AllocSample
}

// ReferencedPointers decodes every pointer field carried by stack
// frames and data/BSS segments, using ExtractPointers against the
// dump's pointer size and endianness. These addresses point back into
// the object graph parsed from the same dump.
func (d *Diagnostics) ReferencedPointers() []uint64 {
	var out []uint64
	for _, sf := range d.StackFrames {
		out = append(out, ExtractPointers(sf.Data, sf.Pointers, d.PointerSize, d.BigEndian)...)
	}
	for _, ds := range d.DataSegments {
		out = append(out, ExtractPointers(ds.Data, ds.Pointers, d.PointerSize, d.BigEndian)...)
	}
	return out
}

// parseFinalizerFull parses a complete finalizer record
func (p *parser) parseFinalizerFull() (*Finalizer, error) {
	f := &Finalizer{}
	var err error

	f.Object, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	f.Function, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	f.FuncVal, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	f.FuncType, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	f.ObjType, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	return f, nil
}

// parseItabFull parses a complete interface table record
func (p *parser) parseItabFull() (*Itab, error) {
	i := &Itab{}
	var err error

	i.Interface, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	i.Type, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	return i, nil
}

// parseStackFrameFull parses a complete stack frame
func (p *parser) parseStackFrameFull() (*StackFrame, error) {
	sf := &StackFrame{}
	var err error

	sf.SP, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	sf.Depth, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	sf.ChildSP, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	sf.Data, err = p.readBytes()
	if err != nil {
		return nil, err
	}

	sf.EntryPC, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	sf.PC, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	sf.ContPC, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	sf.Name, err = p.readString()
	if err != nil {
		return nil, err
	}

	// Parse pointer fields
	for {
		kind, err := p.readVarint()
		if err != nil {
			return nil, err
		}
		if kind == fieldKindEol {
			break
		}

		offset, err := p.readVarint()
		if err != nil {
			return nil, err
		}

		sf.Pointers = append(sf.Pointers, PointerField{
			Kind:   kind,
			Offset: offset,
		})
	}

	return sf, nil
}

// parseOSThreadFull parses a complete OS thread record
func (p *parser) parseOSThreadFull() (*OSThread, error) {
	t := &OSThread{}
	var err error

	t.ID, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	t.OSThreadID, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	t.GoID, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	return t, nil
}

// parseMemProfFull parses a complete memory profiling record
func (p *parser) parseMemProfFull() (*MemProfRecord, error) {
	mp := &MemProfRecord{}
	var err error

	mp.BucketID, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	mp.Size, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	// Read stack depth
	nstk, err := p.readVarint()
	if err != nil {
		return nil, err
	}

	// Read stack frames, appending as they are read so a corrupt depth
	// ends in a read error rather than a huge allocation
	for i := uint64(0); i < nstk; i++ {
		var frame MemProfFrame
		frame.Function, err = p.readString()
		if err != nil {
			return nil, err
		}

		frame.File, err = p.readString()
		if err != nil {
			return nil, err
		}

		frame.Line, err = p.readVarint()
		if err != nil {
			return nil, err
		}
		mp.Stack = append(mp.Stack, frame)
	}

	mp.Allocs, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	mp.Frees, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	return mp, nil
}

// parseDataSegmentFull parses a complete data/BSS segment
func (p *parser) parseDataSegmentFull() (*DataSegment, error) {
	ds := &DataSegment{}
	var err error

	ds.Address, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	ds.Data, err = p.readBytes()
	if err != nil {
		return nil, err
	}

	// Parse pointer fields
	for {
		kind, err := p.readVarint()
		if err != nil {
			return nil, err
		}
		if kind == fieldKindEol {
			break
		}

		offset, err := p.readVarint()
		if err != nil {
			return nil, err
		}

		ds.Pointers = append(ds.Pointers, PointerField{
			Kind:   kind,
			Offset: offset,
		})
	}

	return ds, nil
}

// parseDeferFull parses a complete defer record
func (p *parser) parseDeferFull() (*DeferRecord, error) {
	d := &DeferRecord{}
	var err error

	d.Address, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	d.Gp, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	d.Argp, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	d.PC, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	d.Fn, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	d.FnEntry, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	d.Link, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	return d, nil
}

// parsePanicFull parses a complete panic record
func (p *parser) parsePanicFull() (*PanicRecord, error) {
	pr := &PanicRecord{}
	var err error

	pr.Address, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	pr.Gp, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	pr.Typ, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	pr.Data, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	pr.Defer, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	pr.Link, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	return pr, nil
}

// parseGoroutineFull parses a complete goroutine record
func (p *parser) parseGoroutineFull() (*GoroutineFull, error) {
	g := &GoroutineFull{}
	var err error

	g.Address, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	g.StackTop, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	g.ID, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	g.Status, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	isSystem, err := p.readVarint()
	if err != nil {
		return nil, err
	}
	g.IsSystem = isSystem != 0

	isBackground, err := p.readVarint()
	if err != nil {
		return nil, err
	}
	g.IsBackground = isBackground != 0

	g.WaitSince, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	g.WaitReason, err = p.readString()
	if err != nil {
		return nil, err
	}

	g.CtxtAddr, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	g.MAddr, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	g.DeferAddr, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	g.PanicAddr, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	return g, nil
}

// parseMemStatsFull parses complete memory statistics
func (p *parser) parseMemStatsFull() (*MemStatsFull, error) {
	ms := &MemStatsFull{}
	var err error

	// The record holds 61 varint fields; the first 12 are kept
	ms.Alloc, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	ms.TotalAlloc, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	ms.Sys, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	ms.Lookups, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	ms.Mallocs, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	ms.Frees, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	ms.HeapAlloc, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	ms.HeapSys, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	ms.HeapIdle, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	ms.HeapInuse, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	ms.HeapReleased, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	ms.HeapObjects, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	// Read and discard the remaining 49 fields
	for i := 0; i < 49; i++ {
		if _, err := p.readVarint(); err != nil {
			return nil, err
		}
	}

	return ms, nil
}

// parseAllocSampleFull parses a complete allocation sample
func (p *parser) parseAllocSampleFull() (*AllocSample, error) {
	as := &AllocSample{}
	var err error

	as.Address, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	as.Profile, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	as.Size, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	as.NumAlloc, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	as.NumFree, err = p.readVarint()
	if err != nil {
		return nil, err
	}

	return as, nil
}

// ExtractPointers extracts pointer values from data given pointer fields
func ExtractPointers(data []byte, fields []PointerField, pointerSize uint64, bigEndian bool) []uint64 {
	var pointers []uint64

	for _, field := range fields {
		if field.Kind != fieldKindPtr {
			continue
		}

		if int(field.Offset+pointerSize) > len(data) {
			continue
		}

		ptrData := data[field.Offset : field.Offset+pointerSize]
		var ptr uint64

		if pointerSize == 8 {
			if bigEndian {
				ptr = binary.BigEndian.Uint64(ptrData)
			} else {
				ptr = binary.LittleEndian.Uint64(ptrData)
			}
		} else if pointerSize == 4 {
			if bigEndian {
				ptr = uint64(binary.BigEndian.Uint32(ptrData))
			} else {
				ptr = uint64(binary.LittleEndian.Uint32(ptrData))
			}
		}

		if ptr != 0 {
			pointers = append(pointers, ptr)
		}
	}

	return pointers
}
