package lochsemu

import "sync"

// Inst is the decoded-instruction record stored by the disassembly store:
// the raw decode (Instruction) plus its bookkeeping (EIP, derived
// branch/procedure targets, resolved import name, and the stable index
// assigned when its section's indices are rebuilt). Mirrors
// original_source/Prophet/static/disassembler.h's `Inst : public Instruction`.
type Inst struct {
	Instruction

	Eip              uint32
	Target           int64 // -1 when not a branch/call
	Entry            int64 // -1 until a terminator sets the owning procedure entry
	TargetModuleName string
	TargetFuncName   string
	Index            int // -1 until UpdateIndices assigns it
}

func newInst(eip uint32) *Inst {
	return &Inst{Eip: eip, Target: -1, Entry: -1, Index: -1}
}

// InstSection holds every instruction decoded so far within one contiguous
// host memory section. Dense parallel arrays (data/indices) mirror
// disassembler.h exactly; index -1 is the "no instruction here yet" /
// "this index not assigned yet" sentinel.
type InstSection struct {
	mu *sync.Mutex // the owning InstMem's lock; InstSection never locks alone

	base uint32
	size uint32

	data    []*Inst
	indices []uint32 // indices[i] is the Eip of the instruction with Index==i
	count   int
}

const noIndex = ^uint32(0)

func newInstSection(mu *sync.Mutex, base, size uint32) *InstSection {
	s := &InstSection{mu: mu, base: base, size: size}
	s.data = make([]*Inst, size)
	s.indices = make([]uint32, size)
	for i := range s.indices {
		s.indices[i] = noIndex
	}
	return s
}

// GetBase returns the section's starting address.
func (s *InstSection) GetBase() uint32 { return s.base }

// GetSize returns the section's byte length.
func (s *InstSection) GetSize() uint32 { return s.size }

// GetCount returns the number of instructions decoded so far.
func (s *InstSection) GetCount() int { return s.count }

// IsInRange reports whether addr falls within the section's span, decoded
// or not.
func (s *InstSection) IsInRange(addr uint32) bool {
	return addr >= s.base && addr < s.base+s.size
}

// Contains reports whether addr has already been decoded.
func (s *InstSection) Contains(addr uint32) bool {
	if !s.IsInRange(addr) {
		return false
	}
	return s.data[addr-s.base] != nil
}

// GetInst returns the decoded instruction at addr, or nil if undecoded.
func (s *InstSection) GetInst(addr uint32) *Inst {
	if !s.IsInRange(addr) {
		return nil
	}
	return s.data[addr-s.base]
}

// Alloc allocates (or returns the existing) Inst slot at addr. Caller must
// hold the InstMem lock.
func (s *InstSection) Alloc(addr uint32) *Inst {
	off := addr - s.base
	if s.data[off] != nil {
		return s.data[off]
	}
	inst := newInst(addr)
	s.data[off] = inst
	s.count++
	return inst
}

// Begin returns the lowest-address decoded instruction, or nil if empty.
func (s *InstSection) Begin() *Inst {
	for _, inst := range s.data {
		if inst != nil {
			return inst
		}
	}
	return nil
}

// Next returns the next decoded instruction after curr in address order, or
// nil at the end.
func (s *InstSection) Next(curr *Inst) *Inst {
	start := curr.Eip - s.base + 1
	for i := start; i < s.size; i++ {
		if s.data[i] != nil {
			return s.data[i]
		}
	}
	return nil
}

// UpdateIndices assigns Inst.Index = 0..count-1 in ascending-EIP order and
// rebuilds the reverse index->Eip table. Called once per recursive-decode
// round across every section touched during that round, not per
// instruction (original_source/Prophet/static/disassembler.cpp).
func (s *InstSection) UpdateIndices() {
	idx := uint32(0)
	for i, inst := range s.data {
		if inst == nil {
			continue
		}
		inst.Index = int(idx)
		s.indices[idx] = inst.Eip
		idx++
		_ = i
	}
}

// GetEipFromIndex returns the Eip of the instruction with the given Index,
// assuming UpdateIndices has been called since the last Alloc.
func (s *InstSection) GetEipFromIndex(index int) (uint32, bool) {
	if index < 0 || uint32(index) >= uint32(s.count) {
		return 0, false
	}
	eip := s.indices[index]
	return eip, eip != noIndex
}

// InstMem is the page-table of InstSections for the whole address space.
// Every mutation (allocating an Inst, updating indices, creating a section)
// is serialized by a single mutex; readers needing a stable view (GUI
// paint, trace back-queries) take the same lock.
type InstMem struct {
	mu    sync.Mutex
	pages map[uint32]*InstSection
}

// NewInstMem returns an empty disassembly store.
func NewInstMem() *InstMem {
	return &InstMem{pages: make(map[uint32]*InstSection)}
}

// Lock acquires the store-wide mutex.
func (m *InstMem) Lock() { m.mu.Lock() }

// Unlock releases the store-wide mutex.
func (m *InstMem) Unlock() { m.mu.Unlock() }

// GetSection returns the InstSection covering addr, if one has been
// created.
func (m *InstMem) GetSection(addr uint32) *InstSection {
	return m.pages[pageNum(addr)]
}

// CreateSection returns the existing section for (base,size) if one exists
// whose base matches, otherwise allocates a new one and registers it across
// every page the section spans. Idempotent, matching disassembler.cpp's
// CreateSection.
func (m *InstMem) CreateSection(base, size uint32) *InstSection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createSectionLocked(base, size)
}

// createSectionLocked is CreateSection's body for callers that already hold
// m.mu (recursiveDisassemble runs its whole pass under a single Lock/Unlock
// pair, so it must not recurse back into the locking CreateSection).
func (m *InstMem) createSectionLocked(base, size uint32) *InstSection {
	if existing := m.pages[pageNum(base)]; existing != nil && existing.base == base {
		return existing
	}

	sec := newInstSection(&m.mu, base, size)
	first, last := pageNum(base), pageNum(base+size-1)
	for pn := first; pn <= last; pn++ {
		m.pages[pn] = sec
	}
	return sec
}

// GetInst looks up the decoded instruction at addr, if any.
func (m *InstMem) GetInst(addr uint32) *Inst {
	sec := m.GetSection(addr)
	if sec == nil {
		return nil
	}
	return sec.GetInst(addr)
}
