package lochsemu

// Exec flag bits recorded on a TContext by whoever builds it (the engine
// does not set them; lochsdbg's replay copies them from the trace file) so
// taint handlers (CallAbs/JmpAbs) know to skip
// rewriting Eip taint themselves — the host's WinAPI simulation layer owns
// that instead.
const (
	ExecWinapiCall uint32 = 1 << iota
	ExecWinapiJmp
)

// MemAccess records a single memory read or write observed during one
// instruction's execution. Len is always one of {0,1,2,4} (0 meaning "no
// access this step").
type MemAccess struct {
	Addr uint32
	Len  int
	Val  uint32
}

// TContext is one step of execution trace: the smallest unit the
// protocol/hash analyzers consume.
type TContext struct {
	Seq       uint64
	Eip       uint32
	Inst      *Inst
	GPRegs    [8]uint32
	Flags     uint32
	Mr        MemAccess // Len==0 if no read happened this step
	Mw        MemAccess // Len==0 if no write happened this step
	ExecFlags uint32
	ProcEntry uint32
}

// RunTrace is a bounded array of TContext records with back-referential
// query operations, grounded on
// original_source/Prophet/protocol/runtrace.h.
type RunTrace struct {
	maxTraces    int
	mergeCallJmp bool
	traces       []TContext
	nextSeq      uint64
}

// NewRunTrace returns a trace buffer holding at most maxTraces records.
func NewRunTrace(maxTraces int, mergeCallJmp bool) *RunTrace {
	return &RunTrace{maxTraces: maxTraces, mergeCallJmp: mergeCallJmp}
}

// Begin clears the trace buffer.
func (r *RunTrace) Begin() {
	r.traces = r.traces[:0]
	r.nextSeq = 0
}

// End is a no-op placeholder matching the original's symmetric
// Begin/Trace/End API; kept so callers mirroring the host's lifecycle
// (ProcessPreRun/ProcessPostRun) have a clear point to call.
func (r *RunTrace) End() {}

// Trace appends a new record, evicting the oldest if the buffer is full.
// When mergeCallJmp is enabled and the previous record is a bare call/jmp
// (see isCallOrJmpOnly), the new record replaces it in place, keeping its
// sequence number, rather than being appended, so the visible trace
// reflects source-level flow rather than every intervening jump.
func (r *RunTrace) Trace(ctx TContext) {
	ctx.Seq = r.nextSeq
	r.nextSeq++

	if r.mergeCallJmp && len(r.traces) > 0 {
		prev := &r.traces[len(r.traces)-1]
		if isCallOrJmpOnly(prev, &ctx) {
			origSeq := prev.Seq
			*prev = ctx
			prev.Seq = origSeq // keep the earlier record's sequence number
			r.nextSeq--        // the collapsed step didn't consume a new slot
			return
		}
	}

	if len(r.traces) >= r.maxTraces {
		copy(r.traces, r.traces[1:])
		r.traces = r.traces[:len(r.traces)-1]
	}
	r.traces = append(r.traces, ctx)
}

// isCallOrJmpOnly reports whether prev was a bare call/jmp with no memory
// access (the data mergeCallJmp collapses); flags and ctx are not compared.
func isCallOrJmpOnly(prev, ctx *TContext) bool {
	if prev.Inst == nil || prev.Inst.TwoByte {
		return false
	}
	op := prev.Inst.Opcode
	isBranch := op == 0xE8 || op == 0xE9 || op == 0xEB ||
		(op >= 0xFF && prev.Inst.ModRMReg() == 2) || (op >= 0xFF && prev.Inst.ModRMReg() == 4)
	return isBranch && prev.Mr.Len == 0 && prev.Mw.Len == 0
}

// Count returns the number of records currently held.
func (r *RunTrace) Count() int { return len(r.traces) }

// Get returns the record at index n (0 == oldest currently held).
func (r *RunTrace) Get(n int) *TContext {
	if n < 0 || n >= len(r.traces) {
		return nil
	}
	return &r.traces[n]
}

// FindMostRecentMrAddr returns the highest i <= beforeIdx where the record's
// logged memory read covers addr, or -1 if none.
func (r *RunTrace) FindMostRecentMrAddr(addr uint32, beforeIdx int) int {
	if beforeIdx >= len(r.traces) {
		beforeIdx = len(r.traces) - 1
	}
	for i := beforeIdx; i >= 0; i-- {
		mr := r.traces[i].Mr
		if mr.Len > 0 && addr >= mr.Addr && addr < mr.Addr+uint32(mr.Len) {
			return i
		}
	}
	return -1
}

// FindMostRecentMwAddr is the write-side symmetric query.
func (r *RunTrace) FindMostRecentMwAddr(addr uint32, beforeIdx int) int {
	if beforeIdx >= len(r.traces) {
		beforeIdx = len(r.traces) - 1
	}
	for i := beforeIdx; i >= 0; i-- {
		mw := r.traces[i].Mw
		if mw.Len > 0 && addr >= mw.Addr && addr < mw.Addr+uint32(mw.Len) {
			return i
		}
	}
	return -1
}

// FindFirstReg returns the lowest i where any of the 8 GPRs equals val.
func (r *RunTrace) FindFirstReg(val uint32) int {
	for i := range r.traces {
		for _, g := range r.traces[i].GPRegs {
			if g == val {
				return i
			}
		}
	}
	return -1
}
