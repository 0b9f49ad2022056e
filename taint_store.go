package lochsemu

// PageSize is the granularity at which MemoryTaint allocates per-byte taint
// storage, matching the host emulator's page size (LX_PAGE_SIZE = 4096).
const PageSize = 4096

// PageTaint holds per-byte taint for one page. Cells are allocated lazily:
// original_source/Prophet/protocol/taint/comptaint.cpp allocates a Taint
// pointer per offset only on first write, and reads of an unallocated cell
// return the zero Taint. This module keeps the same per-cell laziness with a
// plain slice of pointers rather than a fixed [PageSize]*Taint array field;
// newPageTaint allocates all PageSize pointers when the page is created.
type PageTaint struct {
	data []*Taint
}

func newPageTaint() *PageTaint {
	return &PageTaint{data: make([]*Taint, PageSize)}
}

// Get returns the taint at offset, or zero if never written.
func (p *PageTaint) Get(offset uint32) Taint {
	if c := p.data[offset]; c != nil {
		return *c
	}
	return 0
}

// Set writes the taint at offset, allocating the cell if needed.
func (p *PageTaint) Set(offset uint32, t Taint) {
	if c := p.data[offset]; c != nil {
		*c = t
		return
	}
	v := t
	p.data[offset] = &v
}

// Reset clears every allocated cell's value but keeps the allocations.
func (p *PageTaint) Reset() {
	for _, c := range p.data {
		if c != nil {
			*c = 0
		}
	}
}

// Clone deep-copies the page.
func (p *PageTaint) Clone() *PageTaint {
	n := newPageTaint()
	for i, c := range p.data {
		if c != nil {
			v := *c
			n.data[i] = &v
		}
	}
	return n
}

// CopyFrom makes the receiver equal to src.
func (p *PageTaint) CopyFrom(src *PageTaint) {
	for i, c := range src.data {
		if c == nil {
			p.data[i] = nil
			continue
		}
		if p.data[i] != nil {
			*p.data[i] = *c
		} else {
			v := *c
			p.data[i] = &v
		}
	}
}

func pageNum(addr uint32) uint32   { return addr / PageSize }
func pageOffset(addr uint32) uint32 { return addr % PageSize }

// MemoryTaint is the page-indexed per-byte taint store for an entire 32-bit
// address space: a page table of lazily-allocated pages rather than a naive
// map-by-address design. The page table itself is a Go map keyed by page
// number rather than a fixed 2^20-entry array, which keeps an empty
// MemoryTaint cheap while preserving the same lazy-page contract as the
// original's m_pagetable.
type MemoryTaint struct {
	pages map[uint32]*PageTaint
}

// NewMemoryTaint returns an empty taint store.
func NewMemoryTaint() *MemoryTaint {
	return &MemoryTaint{pages: make(map[uint32]*PageTaint)}
}

func (m *MemoryTaint) getPage(addr uint32, alloc bool) *PageTaint {
	pn := pageNum(addr)
	p, ok := m.pages[pn]
	if !ok {
		if !alloc {
			return nil
		}
		p = newPageTaint()
		m.pages[pn] = p
	}
	return p
}

// GetByte returns the taint of one byte, zero if its page was never touched.
func (m *MemoryTaint) GetByte(addr uint32) Taint {
	p := m.getPage(addr, false)
	if p == nil {
		return 0
	}
	return p.Get(pageOffset(addr))
}

// SetByte writes the taint of one byte, allocating its page if needed.
func (m *MemoryTaint) SetByte(addr uint32, t Taint) {
	m.getPage(addr, true).Set(pageOffset(addr), t)
}

// Get returns the OR of the taint of the n bytes starting at addr.
func (m *MemoryTaint) Get(addr uint32, n int) Taint {
	var t Taint
	for i := 0; i < n; i++ {
		t |= m.GetByte(addr + uint32(i))
	}
	return t
}

// Get4 returns the 4 individual byte lanes starting at addr, used by
// handlers operating on dword operands.
func (m *MemoryTaint) Get4(addr uint32) Taint4 {
	return Taint4{m.GetByte(addr), m.GetByte(addr + 1), m.GetByte(addr + 2), m.GetByte(addr + 3)}
}

// Get2 returns the 2 individual byte lanes starting at addr.
func (m *MemoryTaint) Get2(addr uint32) Taint2 {
	return Taint2{m.GetByte(addr), m.GetByte(addr + 1)}
}

// Set writes the same taint value to each of the n bytes starting at addr.
func (m *MemoryTaint) Set(addr uint32, n int, t Taint) {
	for i := 0; i < n; i++ {
		m.SetByte(addr+uint32(i), t)
	}
}

// Set4 writes 4 individual byte lanes starting at addr.
func (m *MemoryTaint) Set4(addr uint32, t Taint4) {
	for i, v := range t {
		m.SetByte(addr+uint32(i), v)
	}
}

// Set2 writes 2 individual byte lanes starting at addr.
func (m *MemoryTaint) Set2(addr uint32, t Taint2) {
	for i, v := range t {
		m.SetByte(addr+uint32(i), v)
	}
}

// Reset clears every byte's taint but keeps the allocated pages (and hence
// their page-table entries), matching the original's Reset semantics.
func (m *MemoryTaint) Reset() {
	for _, p := range m.pages {
		p.Reset()
	}
}

// Clone deep-copies the whole store.
func (m *MemoryTaint) Clone() *MemoryTaint {
	n := NewMemoryTaint()
	for pn, p := range m.pages {
		n.pages[pn] = p.Clone()
	}
	return n
}

// CopyFrom makes the receiver equal to src, releasing pages the receiver
// holds that src does not.
func (m *MemoryTaint) CopyFrom(src *MemoryTaint) {
	for pn := range m.pages {
		if _, ok := src.pages[pn]; !ok {
			delete(m.pages, pn)
		}
	}
	for pn, sp := range src.pages {
		if dp, ok := m.pages[pn]; ok {
			dp.CopyFrom(sp)
		} else {
			m.pages[pn] = sp.Clone()
		}
	}
}

// Each calls fn for every byte with non-zero taint, in unspecified order.
// Used by archival to serialize the sparse store without walking the full
// 32-bit address space.
func (m *MemoryTaint) Each(fn func(addr uint32, t Taint)) {
	for pn, p := range m.pages {
		base := pn * PageSize
		for off, c := range p.data {
			if c != nil && *c != 0 {
				fn(base+uint32(off), *c)
			}
		}
	}
}

// Flag bit indices into ProcessorTaint.Flags, in EFLAGS order for the bits
// the taint propagation rules reference.
const (
	FlagCF = iota
	FlagPF
	FlagAF
	FlagZF
	FlagSF
	FlagTF
	FlagIF
	FlagDF
	FlagOF
	FlagCount
)

// ProcessorTaint is the taint side of the processor register file: 8
// general-purpose registers, 8 MMX registers, 8 XMM registers, the flags
// bank, and EIP. Byte-lanes of an 8/16-bit sub-register alias the low bytes
// of the owning 32-bit register, enforced by always reading the
// GPRegs[idx] Taint4 through the Get/SetGPR helpers below rather than
// keeping separate storage per sub-register width.
type ProcessorTaint struct {
	GPRegs [8]Taint4
	MM     [8]Taint8
	XMM    [8]Taint16
	Flags  [FlagCount]Taint
	Eip    Taint4
}

// GPR register indices, x86 encoding order.
const (
	RegEAX = iota
	RegECX
	RegEDX
	RegEBX
	RegESP
	RegEBP
	RegESI
	RegEDI
)

// GetGPR32 returns the full 4-lane taint of a general-purpose register.
func (p *ProcessorTaint) GetGPR32(idx int) Taint4 { return p.GPRegs[idx] }

// SetGPR32 overwrites all 4 lanes.
func (p *ProcessorTaint) SetGPR32(idx int, t Taint4) { p.GPRegs[idx] = t }

// GetGPR16 returns the low 2 lanes (AX/CX/DX/BX/SP/BP/SI/DI).
func (p *ProcessorTaint) GetGPR16(idx int) Taint2 {
	return Taint2{p.GPRegs[idx][0], p.GPRegs[idx][1]}
}

// SetGPR16 overwrites the low 2 lanes, leaving the upper word untouched.
func (p *ProcessorTaint) SetGPR16(idx int, t Taint2) {
	p.GPRegs[idx][0] = t[0]
	p.GPRegs[idx][1] = t[1]
}

// GetGPR8Low returns AL/CL/DL/BL/SPL/BPL/SIL/DIL (lane 0).
func (p *ProcessorTaint) GetGPR8Low(idx int) Taint { return p.GPRegs[idx][0] }

// SetGPR8Low overwrites lane 0.
func (p *ProcessorTaint) SetGPR8Low(idx int, t Taint) { p.GPRegs[idx][0] = t }

// GetGPR8High returns AH/CH/DH/BH (lane 1), only meaningful for EAX..EBX.
func (p *ProcessorTaint) GetGPR8High(idx int) Taint { return p.GPRegs[idx][1] }

// SetGPR8High overwrites lane 1, only meaningful for EAX..EBX.
func (p *ProcessorTaint) SetGPR8High(idx int, t Taint) { p.GPRegs[idx][1] = t }

// Reset clears every register and flag's taint.
func (p *ProcessorTaint) Reset() {
	*p = ProcessorTaint{}
}

// Clone returns a bitwise-identical independent copy.
func (p *ProcessorTaint) Clone() *ProcessorTaint {
	c := *p
	return &c
}

// CopyFrom makes the receiver bitwise-equal to src.
func (p *ProcessorTaint) CopyFrom(src *ProcessorTaint) {
	*p = *src
}

// TSnapshot is an immutable capture of taint state, taken before analyzing
// a sub-procedure and restored to rewind (original_source's TSnapshot /
// TaintEngine::Dump / ApplySnapshot).
type TSnapshot struct {
	Count   int
	Desc    TaintDescTable
	Cpu     *ProcessorTaint
	Mem     *MemoryTaint
}
