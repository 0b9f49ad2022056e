package lochsemu

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// TaintRule bits gate whether GetTaint/SetTaint mix the taint of a memory
// operand's base/index registers into the operand's own taint, mirroring
// TAINT_LOADADDRREG / TAINT_SAVEADDRREG from taintengine.cpp.
type TaintRule uint32

const (
	TaintRuleLoadAddrReg TaintRule = 1 << iota
	TaintRuleSaveAddrReg
)

// TaintEngine owns the processor and memory taint stores and applies the
// per-opcode propagation rules on every executed instruction. Grounded on
// original_source/Prophet/protocol/taint/taintengine.cpp.
type TaintEngine struct {
	Cpu   *ProcessorTaint
	Mem   *MemoryTaint
	desc  TaintDescTable
	count int
	rules TaintRule

	log *zap.SugaredLogger
}

// NewTaintEngine returns a fresh, untainted engine.
func NewTaintEngine(rules TaintRule, log *zap.SugaredLogger) *TaintEngine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &TaintEngine{
		Cpu:   &ProcessorTaint{},
		Mem:   NewMemoryTaint(),
		rules: rules,
		log:   log,
	}
}

// Reset clears all taint state and the introduced-source count, keeping the
// engine otherwise usable (matches TaintEngine::Reset).
func (e *TaintEngine) Reset() {
	e.Cpu.Reset()
	e.Mem.Reset()
	e.desc = TaintDescTable{}
	e.count = 0
}

// Count returns how many of the TaintWidth source bits have been consumed.
func (e *TaintEngine) Count() int { return e.count }

// TaintByte introduces a single fresh taint source bit at addr and returns
// it. Fatal once every source bit is already in use: exceeding the taint
// width is a precondition violation, not a recoverable error.
func (e *TaintEngine) TaintByte(addr uint32) Taint {
	if e.count >= TaintWidth {
		e.log.Fatalw("lochsemu: taint source exhausted", "width", TaintWidth, "addr", addr)
	}
	bit := e.count
	e.desc[bit] = TaintDesc{SourceAddr: addr}
	e.count++
	t := Taint(0).Set(bit)
	e.Mem.SetByte(addr, t)
	return t
}

// TaintMemRegion assigns a fresh taint source bit to each byte of region,
// in ascending address order, consuming region.Len source slots.
func (e *TaintEngine) TaintMemRegion(region MemRegion) {
	for i := uint32(0); i < region.Len; i++ {
		e.TaintByte(region.Addr + i)
	}
}

// TaintMemRegionValue paints region with an explicit taint value without
// consuming any fresh source slot (the two-argument TaintMemRegion
// overload in taintengine.cpp).
func (e *TaintEngine) TaintMemRegionValue(region MemRegion, t Taint) {
	e.Mem.Set(region.Addr, int(region.Len), t)
}

// TaintRegion is a contiguous run of taint source bit indices, as returned
// by Taint.GenerateRegions and consumed by TryGetMemRegion.
type TaintRegion = Region

// TryGetMemRegion reverses the source-bit-to-address mapping: given a
// contiguous run of bit indices, it succeeds iff their recorded
// SourceAddrs form an arithmetic progression with step 1 (i.e. they were
// introduced, in order, from one contiguous memory region), and returns
// that region. Grounded on taintengine.cpp's TryGetMemRegion.
func (e *TaintEngine) TryGetMemRegion(r TaintRegion) (MemRegion, bool) {
	if r.Lo < 0 || r.Hi >= TaintWidth || r.Lo > r.Hi {
		return MemRegion{}, false
	}
	delta := int64(e.desc[r.Lo].SourceAddr) - int64(r.Lo)
	for i := r.Lo + 1; i <= r.Hi; i++ {
		if int64(e.desc[i].SourceAddr)-int64(i) != delta {
			return MemRegion{}, false
		}
	}
	return MemRegion{Addr: e.desc[r.Lo].SourceAddr, Len: uint32(r.Hi - r.Lo + 1)}, true
}

// Snapshot captures the current taint state for later rewind. Mirrors
// TSnapshot's constructor (Dump): clones both stores, copies count and the
// descriptor table.
func (e *TaintEngine) Snapshot() *TSnapshot {
	return &TSnapshot{
		Count: e.count,
		Desc:  e.desc,
		Cpu:   e.Cpu.Clone(),
		Mem:   e.Mem.Clone(),
	}
}

// ApplySnapshot restores a previously captured TSnapshot.
func (e *TaintEngine) ApplySnapshot(s *TSnapshot) {
	e.count = s.Count
	e.desc = s.Desc
	e.Cpu.CopyFrom(s.Cpu)
	e.Mem.CopyFrom(s.Mem)
}

// --- operand taint read/write ---

// gprOperand maps an Arg addressing a GPR to its (index, size, highByte) triple.
func gprOperand(a *Arg) (idx, size int, high bool) {
	return a.Reg, a.Size, a.RegHigh
}

// GetTaintAddressingReg ORs the taint of a memory operand's base and index
// registers, used to optionally mix address-dependence into a load/store's
// effective taint (TAINT_LOADADDRREG/SAVEADDRREG).
func (e *TaintEngine) GetTaintAddressingReg(m MemOperand) Taint {
	var t Taint
	if m.HasBase {
		t |= Shrink4(e.Cpu.GetGPR32(m.Base))
	}
	if m.HasIndex {
		t |= Shrink4(e.Cpu.GetGPR32(m.Index))
	}
	return t
}

// GetTaint1 reads the 1-byte taint of an operand.
func (e *TaintEngine) GetTaint1(ctx *TContext, a *Arg) Taint {
	switch a.Type {
	case ArgConst:
		return 0
	case ArgReg:
		idx, _, high := gprOperand(a)
		if high {
			return e.Cpu.GetGPR8High(idx)
		}
		return e.Cpu.GetGPR8Low(idx)
	case ArgMem:
		addr := a.Mem.EffectiveAddr(ctx.GPRegs)
		t := e.Mem.GetByte(addr)
		if e.rules&TaintRuleLoadAddrReg != 0 {
			t |= e.GetTaintAddressingReg(a.Mem)
		}
		return t
	}
	return 0
}

// SetTaint1 writes a 1-byte taint to an operand.
func (e *TaintEngine) SetTaint1(ctx *TContext, a *Arg, t Taint) {
	switch a.Type {
	case ArgReg:
		idx, _, high := gprOperand(a)
		if high {
			e.Cpu.SetGPR8High(idx, t)
		} else {
			e.Cpu.SetGPR8Low(idx, t)
		}
	case ArgMem:
		addr := a.Mem.EffectiveAddr(ctx.GPRegs)
		if e.rules&TaintRuleSaveAddrReg != 0 {
			t |= e.GetTaintAddressingReg(a.Mem)
		}
		e.Mem.SetByte(addr, t)
	}
}

// GetTaint2 reads the 2-byte taint of an operand.
func (e *TaintEngine) GetTaint2(ctx *TContext, a *Arg) Taint2 {
	switch a.Type {
	case ArgConst:
		return Taint2{}
	case ArgReg:
		return e.Cpu.GetGPR16(a.Reg)
	case ArgMem:
		addr := a.Mem.EffectiveAddr(ctx.GPRegs)
		t := e.Mem.Get2(addr)
		if e.rules&TaintRuleLoadAddrReg != 0 {
			mix := e.GetTaintAddressingReg(a.Mem)
			t[0] |= mix
			t[1] |= mix
		}
		return t
	}
	return Taint2{}
}

// SetTaint2 writes a 2-byte taint to an operand.
func (e *TaintEngine) SetTaint2(ctx *TContext, a *Arg, t Taint2) {
	switch a.Type {
	case ArgReg:
		e.Cpu.SetGPR16(a.Reg, t)
	case ArgMem:
		addr := a.Mem.EffectiveAddr(ctx.GPRegs)
		if e.rules&TaintRuleSaveAddrReg != 0 {
			mix := e.GetTaintAddressingReg(a.Mem)
			t[0] |= mix
			t[1] |= mix
		}
		e.Mem.Set2(addr, t)
	}
}

// GetTaint4 reads the 4-byte (dword/GPR) taint of an operand: register,
// memory, or constant (always zero).
func (e *TaintEngine) GetTaint4(ctx *TContext, a *Arg) Taint4 {
	switch a.Type {
	case ArgConst:
		return Taint4{}
	case ArgReg:
		switch a.Bank {
		case BankGPR:
			return e.Cpu.GetGPR32(a.Reg)
		}
		return Taint4{}
	case ArgMem:
		addr := a.Mem.EffectiveAddr(ctx.GPRegs)
		t := e.Mem.Get4(addr)
		if e.rules&TaintRuleLoadAddrReg != 0 {
			mix := e.GetTaintAddressingReg(a.Mem)
			for i := range t {
				t[i] |= mix
			}
		}
		return t
	}
	return Taint4{}
}

// SetTaint4 writes a 4-byte taint to an operand.
func (e *TaintEngine) SetTaint4(ctx *TContext, a *Arg, t Taint4) {
	switch a.Type {
	case ArgReg:
		if a.Bank == BankGPR {
			e.Cpu.SetGPR32(a.Reg, t)
		}
	case ArgMem:
		addr := a.Mem.EffectiveAddr(ctx.GPRegs)
		if e.rules&TaintRuleSaveAddrReg != 0 {
			mix := e.GetTaintAddressingReg(a.Mem)
			for i := range t {
				t[i] |= mix
			}
		}
		e.Mem.Set4(addr, t)
	}
}

// GetTaintMem4 reads 4 bytes of memory taint at an arbitrary address, used
// by stack-relative handlers (PUSH/POP/CALL/RET) that don't go through an
// Arg.
func (e *TaintEngine) GetTaintMem4(addr uint32) Taint4 { return e.Mem.Get4(addr) }

// SetTaintMem4 writes 4 bytes of memory taint at an arbitrary address.
func (e *TaintEngine) SetTaintMem4(addr uint32, t Taint4) { e.Mem.Set4(addr, t) }

// SetFlagsFromShrink4 sets CF, PF, AF, ZF, SF, OF each to the shrunk lane
// taint of t, replacing their prior taint — the flag-update rule shared by every default ALU propagation
// family.
func (e *TaintEngine) SetFlagsFromShrink4(t Taint4) {
	s := Shrink4(t)
	e.setAluFlags(s)
}

func (e *TaintEngine) setAluFlags(s Taint) {
	e.Cpu.Flags[FlagCF] = s
	e.Cpu.Flags[FlagPF] = s
	e.Cpu.Flags[FlagAF] = s
	e.Cpu.Flags[FlagZF] = s
	e.Cpu.Flags[FlagSF] = s
	e.Cpu.Flags[FlagOF] = s
}

// GetTestedFlagTaint ORs the taint of whichever flags a CJMP/SETcc/CMOVcc
// condition code tests, keyed by the condition nibble (0x0..0xF of
// Jcc/SETcc/CMOVcc, same encoding across all three families).
func (e *TaintEngine) GetTestedFlagTaint(cond int) Taint {
	f := e.Cpu.Flags
	switch cond & 0xF {
	case 0x0, 0x1: // JO/JNO
		return f[FlagOF]
	case 0x2, 0x3: // JB/JNB (CF)
		return f[FlagCF]
	case 0x4, 0x5: // JE/JNE (ZF)
		return f[FlagZF]
	case 0x6, 0x7: // JBE/JA (CF or ZF)
		return f[FlagCF] | f[FlagZF]
	case 0x8, 0x9: // JS/JNS
		return f[FlagSF]
	case 0xA, 0xB: // JP/JNP
		return f[FlagPF]
	case 0xC, 0xD: // JL/JGE (SF xor OF)
		return f[FlagSF] | f[FlagOF]
	case 0xE, 0xF: // JLE/JG (ZF or (SF xor OF))
		return f[FlagZF] | f[FlagSF] | f[FlagOF]
	}
	return 0
}

// fatalf aborts with a diagnostic on a precondition violation a handler
// cannot recover from. Kept as a thin wrapper so handlers read naturally.
func (e *TaintEngine) fatalf(format string, args ...interface{}) {
	e.log.Fatalw(fmt.Sprintf(format, args...))
}

// taintEngineDoc is the archived form of a TaintEngine: the source-address
// array, the processor taint banks, and a sparse dump of every tainted
// memory byte. Not among the archived keys lochsdbg's run command registers
// (debugger/protocol) — a caller that wants taint state
// persisted across a run registers it explicitly.
type taintEngineDoc struct {
	Count int             `json:"count"`
	Desc  TaintDescTable  `json:"desc"`
	Cpu   *ProcessorTaint `json:"cpu"`
	Mem   []memTaintByte  `json:"mem"`
}

type memTaintByte struct {
	Addr  uint32 `json:"addr"`
	Taint Taint  `json:"taint"`
}

// Serialize captures the full taint state as JSON.
func (e *TaintEngine) Serialize() (json.RawMessage, error) {
	doc := taintEngineDoc{Count: e.count, Desc: e.desc, Cpu: e.Cpu}
	e.Mem.Each(func(addr uint32, t Taint) {
		doc.Mem = append(doc.Mem, memTaintByte{Addr: addr, Taint: t})
	})
	return json.Marshal(doc)
}

// Deserialize replaces the engine's taint state with data's contents.
func (e *TaintEngine) Deserialize(data json.RawMessage) error {
	var doc taintEngineDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("lochsemu: deserializing taint engine: %w", err)
	}
	e.count = doc.Count
	e.desc = doc.Desc
	e.Mem = NewMemoryTaint()
	for _, b := range doc.Mem {
		e.Mem.SetByte(b.Addr, b.Taint)
	}
	if doc.Cpu != nil {
		e.Cpu = doc.Cpu
	} else {
		e.Cpu = &ProcessorTaint{}
	}
	return nil
}
