package lochsemu

import (
	"fmt"

	"go.uber.org/zap"
)

// ArgType classifies an instruction operand.
type ArgType int

const (
	ArgNone ArgType = iota
	ArgReg
	ArgMem
	ArgConst
)

// RegBank selects which taint bank a register argument addresses.
type RegBank int

const (
	BankGPR RegBank = iota
	BankMMX
	BankXMM
)

// MemOperand describes a memory operand's addressing components, mirroring
// the host Instruction's ARGTYPE.Memory{Base,Index,Displacement} fields.
type MemOperand struct {
	HasBase  bool
	Base     int // GPR index
	HasIndex bool
	Index    int // GPR index
	Scale    int // 1,2,4,8
	Disp     int32
	Segment  byte // segment override prefix byte, 0 if none
}

// EffectiveAddr computes base + index*scale + disp given the current
// register file taint-irrelevant *values* (taken from the host Processor).
func (m MemOperand) EffectiveAddr(gpr [8]uint32) uint32 {
	var addr uint32
	if m.HasBase {
		addr += gpr[m.Base]
	}
	if m.HasIndex {
		addr += gpr[m.Index] * uint32(m.Scale)
	}
	return uint32(int64(addr) + int64(m.Disp))
}

// Arg is one decoded operand.
type Arg struct {
	Type    ArgType
	Size    int // bytes: 1,2,4,8,16
	Reg     int
	RegHigh bool // AH/CH/DH/BH addressing (lane 1 of an 8-bit GPR arg)
	Bank    RegBank
	Mem     MemOperand
	Const   uint64
}

// Prefix carries the x86 prefix bits the taint engine needs to see.
type Prefix struct {
	OperandSize bool // 0x66
	AddressSize bool // 0x67
	Lock        bool
	Rep         bool
	Repne       bool
	Segment     byte
}

// Instruction is the raw decoded-instruction record consumed from the host
// decoder: opcode, ModR/M, prefixes, up to three operands, and the derived
// constant branch/call target (AddrValue).
type Instruction struct {
	Opcode    uint16 // low byte; two-byte opcodes also carry TwoByte=true
	TwoByte   bool
	HasModRM  bool
	ModRM     byte
	Length    int
	Mnemonic  string
	Prefix    Prefix
	Args      [3]Arg
	AddrValue uint32 // resolved constant branch/call target, 0 if none
	Invalid   bool
}

// ModRMReg extracts the /reg field used to sub-dispatch group-encoded
// opcodes (80,81,83,8F,C0,C1,C6,C7,D0-D3,F6,F7,FE,FF,0F1F,0FAE,0FBA).
func (in *Instruction) ModRMReg() int {
	return int(in.ModRM>>3) & 0x7
}

// Section describes a host memory section, as returned by Processor's
// memory accessor.
type Section struct {
	Base        uint32
	Size        uint32
	Description string
}

// Processor is the read-only view of the emulated CPU the core consumes.
// The host emulator implements this; this module never simulates a CPU
// of its own.
type Processor struct {
	Eip    uint32
	GPR    [8]uint32
	Flags  uint32
	Memory MemorySectionLookup
}

// MemorySectionLookup resolves the host memory section containing an
// address, and whether that section is a "heap" region (recursive descent
// does not follow branches into heap memory, per disassembler.cpp).
type MemorySectionLookup interface {
	GetSection(addr uint32) (Section, bool)
	IsHeap(addr uint32) bool
}

// Decoder decodes one instruction at eip using the host's instruction
// decoder; the core only consumes its output, never reimplements it.
type Decoder interface {
	Decode(eip uint32, mem MemorySectionLookup) (Instruction, error)
}

// ApiInfoProvider resolves an address to the module/function name of a
// well-known import, mirroring the host's ApiInfo interface.
type ApiInfoProvider interface {
	Lookup(addr uint32) (moduleName, funcName string, ok bool)
}

// one-byte opcodes that terminate recursive descent without continuing to
// fall-through (ret/retf variants) and produce a procedure Entry.
var terminatorOpcodes = map[uint16]bool{
	0xC3: true, 0xCB: true, 0xC2: true, 0xCA: true,
}

// one-byte opcodes that terminate descent without setting Entry (int3, int
// imm8 — the original doesn't know what happens after a software interrupt).
var interruptOpcodes = map[uint16]bool{
	0xCC: true, 0xCD: true,
}

func isCallOpcode(op uint16, twoByte bool) bool {
	return !twoByte && op == 0xE8
}

// Disassembler performs recursive-descent decoding into an InstMem,
// resolving import names via AttachApiInfo. Mirrors
// original_source/Prophet/static/disassembler.{h,cpp}'s Disassembler.
type Disassembler struct {
	mem     *InstMem
	decoder Decoder
	apiInfo ApiInfoProvider
	log     *zap.SugaredLogger
}

// NewDisassembler constructs a Disassembler backed by a fresh InstMem.
func NewDisassembler(decoder Decoder, apiInfo ApiInfoProvider, log *zap.SugaredLogger) *Disassembler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Disassembler{mem: NewInstMem(), decoder: decoder, apiInfo: apiInfo, log: log}
}

// InstMem exposes the underlying disassembly store, e.g. for GUI/trace
// readers that need to share its lock.
func (d *Disassembler) InstMem() *InstMem { return d.mem }

// Disassemble ensures the instruction at eip is decoded (recursively
// populating its section and every section reachable from it in this
// round) and returns it.
func (d *Disassembler) Disassemble(mem MemorySectionLookup, eip uint32) (*Inst, error) {
	sec, ok := mem.GetSection(eip)
	if !ok {
		return nil, fmt.Errorf("lochsemu: no host section contains eip %#x", eip)
	}
	instSec := d.mem.CreateSection(sec.Base, sec.Size)

	if !instSec.Contains(eip) {
		d.mem.Lock()
		touched := map[*InstSection]bool{}
		d.recursiveDisassemble(mem, eip, instSec, int64(eip), touched)
		for s := range touched {
			s.UpdateIndices()
		}
		d.mem.Unlock()
	}

	inst := instSec.GetInst(eip)
	if inst == nil {
		return nil, fmt.Errorf("lochsemu: decode of eip %#x produced no instruction", eip)
	}
	return inst, nil
}

// recursiveDisassemble walks forward from eip within sec until a
// terminator, an invalid opcode, or previously-decoded territory is
// reached; when the walk runs past the end of sec it continues in the host
// section that holds eip, and stops only if no host section does. Constant
// call/jump targets are followed recursively as long as they do not land in
// heap memory. Grounded on disassembler.cpp's
// RecursiveDisassemble + AttachApiInfo.
func (d *Disassembler) recursiveDisassemble(mem MemorySectionLookup, eip uint32, sec *InstSection, entryEip int64, touched map[*InstSection]bool) {
	touched[sec] = true

	for {
		if !sec.IsInRange(eip) {
			hsec, ok := mem.GetSection(eip)
			if !ok {
				return
			}
			nsec := d.mem.createSectionLocked(hsec.Base, hsec.Size)
			if nsec.Contains(eip) {
				return
			}
			d.recursiveDisassemble(mem, eip, nsec, entryEip, touched)
			return
		}
		if sec.Contains(eip) {
			return
		}

		inst := sec.Alloc(eip)
		raw, err := d.decoder.Decode(eip, mem)
		if err != nil || raw.Invalid {
			inst.Instruction = Instruction{Invalid: true, Length: 1}
			d.log.Debugw("lochsemu: invalid opcode during recursive disassembly", "eip", eip)
			return
		}
		inst.Instruction = raw
		d.attachApiInfo(mem, inst, sec, touched, entryEip)

		op, two := raw.Opcode, raw.TwoByte
		if !two && terminatorOpcodes[op] {
			inst.Entry = entryEip
			return
		}
		if !two && interruptOpcodes[op] {
			return
		}

		if raw.AddrValue != 0 {
			target := raw.AddrValue
			nextEntry := entryEip
			if isCallOpcode(op, two) {
				nextEntry = int64(target)
			}
			if !mem.IsHeap(target) {
				if hsec, ok := mem.GetSection(target); ok {
					tsec := d.mem.createSectionLocked(hsec.Base, hsec.Size)
					d.recursiveDisassemble(mem, target, tsec, nextEntry, touched)
				}
			}
		}

		eip += uint32(raw.Length)
	}
}

// attachApiInfo resolves the branch/call target of inst (when it has one)
// to an import name, chasing exactly one `jmp [iat]` stub hop for CALL
// rel32 the way AttachApiInfo does.
func (d *Disassembler) attachApiInfo(mem MemorySectionLookup, inst *Inst, sec *InstSection, touched map[*InstSection]bool, entryEip int64) {
	if inst.AddrValue == 0 {
		return
	}
	target := inst.AddrValue
	inst.Target = int64(target)
	if d.apiInfo == nil {
		return
	}

	if isCallOpcode(inst.Opcode, inst.TwoByte) {
		if !mem.IsHeap(target) {
			if hsec, ok := mem.GetSection(target); ok {
				tsec := d.mem.createSectionLocked(hsec.Base, hsec.Size)
				if called := tsec.GetInst(target); called != nil && isIATJmpStub(called) {
					if real, ok := iatStubTarget(called); ok {
						target = real
					}
				}
			}
		}
	}

	if mod, fn, ok := d.apiInfo.Lookup(target); ok {
		inst.TargetModuleName = mod
		inst.TargetFuncName = fn
	}
}

// isIATJmpStub reports whether inst is a direct `jmp [imm32]` through the
// import address table: opcode FF/4 with no base/index register and no
// segment override, addressing a fixed displacement.
func isIATJmpStub(inst *Inst) bool {
	if inst.TwoByte || inst.Opcode != 0xFF {
		return false
	}
	if inst.ModRMReg() != 4 {
		return false
	}
	arg := inst.Args[0]
	if arg.Type != ArgMem {
		return false
	}
	return !arg.Mem.HasBase && !arg.Mem.HasIndex && arg.Mem.Segment == 0
}

// iatStubTarget returns the IAT slot address a `jmp [imm32]` stub reads its
// real target from.
func iatStubTarget(inst *Inst) (uint32, bool) {
	arg := inst.Args[0]
	if arg.Type != ArgMem {
		return 0, false
	}
	return uint32(arg.Mem.Disp), true
}
