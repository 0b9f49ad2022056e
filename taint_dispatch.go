package lochsemu

// HandlerOneByte and HandlerTwoBytes are opcode-indexed dispatch tables:
// function-value arrays rather than a type switch or map lookup, so
// dispatch cost is a single indexed load. Mirrors taintengine.cpp's
// HandlerOneByte[256]/HandlerTwoBytes[256] member-pointer tables. Entries
// left nil are opcodes with no taint effect worth modeling (pure control
// opcodes, NOP variants) or genuinely out of scope; Dispatch treats a nil
// entry as a no-op rather than a fault.
var (
	HandlerOneByte  [256]TaintHandler
	HandlerTwoBytes [256]TaintHandler
)

// groupHandler resolves one of the ModRM-/reg-extended opcodes
// (80,81,83,8F,C0,C1,C6,C7,D0-D3,F6,F7,FE,FF and the two-byte
// 0F1F,0FAE,0FBA group) to its sub-handler. Returns nil for sub-opcodes
// with no modeled taint effect.
type groupHandler func(reg int) TaintHandler

var oneByteGroups = map[uint16]groupHandler{
	0x80: group1Handler,
	0x81: group1Handler,
	0x83: group1Handler,
	0x8F: group1AHandler,
	0xC0: group2Handler,
	0xC1: group2Handler,
	0xC6: group11Handler,
	0xC7: group11Handler,
	0xD0: group2Handler,
	0xD1: group2Handler,
	0xD2: group2Handler,
	0xD3: group2Handler,
	0xF6: group3Handler,
	0xF7: group3Handler,
	0xFE: group4Handler,
	0xFF: group5Handler,
}

var twoByteGroups = map[uint16]groupHandler{
	0x1F: func(reg int) TaintHandler { return nil }, // multi-byte NOP
	0xAE: func(reg int) TaintHandler { return nil }, // FXSAVE/LDMXCSR/*FENCE
	0xBA: func(reg int) TaintHandler { return nil }, // BT/BTS/BTR/BTC imm8
}

// group1Handler: ADD/OR/ADC/SBB/AND/SUB/XOR/CMP by /reg (opcodes
// 80,81,83).
func group1Handler(reg int) TaintHandler {
	switch reg {
	case 0, 2, 3, 4, 5: // ADD, ADC, SBB, AND, SUB
		if reg == 2 || reg == 3 {
			return adcSbbHandler
		}
		return binopHandler
	case 1:
		return binopHandler // OR
	case 6:
		return xorHandler
	case 7:
		return cmpTestHandler // CMP
	}
	return nil
}

// group1AHandler: opcode 8F, /reg is always 0 (POP r/m).
func group1AHandler(reg int) TaintHandler {
	if reg == 0 {
		return popHandler
	}
	return nil
}

// group2Handler: ROL/ROR/RCL/RCR/SHL/SHR/SAL/SAR by /reg (opcodes
// C0,C1,D0,D1,D2,D3). All eight are modeled identically: dst taint mixes
// in the rotate/shift count's taint when it comes from CL.
func group2Handler(reg int) TaintHandler {
	return shiftRotateHandler
}

// group11Handler: opcode C6/C7, /reg is always 0 (MOV r/m, imm).
func group11Handler(reg int) TaintHandler {
	if reg == 0 {
		return movHandler
	}
	return nil
}

// group3Handler: TEST/NOT/NEG/MUL/IMUL/DIV/IDIV by /reg (opcodes F6,F7).
func group3Handler(reg int) TaintHandler {
	switch reg {
	case 0, 1:
		return cmpTestHandler // TEST r/m, imm
	case 2:
		return notHandler
	case 3:
		return negHandler
	case 4, 5:
		return imulMulHandler // MUL, IMUL
	case 6, 7:
		return divIdivHandler // DIV, IDIV
	}
	return nil
}

// group4Handler: INC/DEC r/m8 by /reg (opcode FE).
func group4Handler(reg int) TaintHandler {
	if reg == 0 || reg == 1 {
		return incDecHandler
	}
	return nil
}

// group5Handler: INC/DEC/CALL/CALLF/JMP/JMPF/PUSH r/m32 by /reg (opcode
// FF). Far call/jmp (/reg 3,5) are approximated with the same handler as
// their near counterparts — the taint rule doesn't distinguish segment
// changes.
func group5Handler(reg int) TaintHandler {
	switch reg {
	case 0, 1:
		return incDecHandler
	case 2, 3:
		return callAbsHandler
	case 4, 5:
		return jmpAbsHandler
	case 6:
		return pushHandler
	}
	return nil
}

// notHandler: NOT is a pure bitwise complement — taint is unaffected and
// no flags change.
func notHandler(e *TaintEngine, ctx *TContext, inst *Inst) {}

// negHandler: NEG sets every flag (including CF, unlike INC/DEC) from the
// operand's own taint.
func negHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	var s Taint
	switch inst.Args[0].Size {
	case 1:
		s = e.GetTaint1(ctx, &inst.Args[0])
	case 2:
		s = Shrink2(e.GetTaint2(ctx, &inst.Args[0]))
	default:
		s = Shrink4(e.GetTaint4(ctx, &inst.Args[0]))
	}
	e.setAluFlags(s)
}

func init() {
	add := func(t *[256]TaintHandler, h TaintHandler, ops ...uint16) {
		for _, op := range ops {
			t[op] = h
		}
	}
	rangeOf := func(lo, hi uint16) []uint16 {
		r := make([]uint16, 0, hi-lo+1)
		for op := lo; op <= hi; op++ {
			r = append(r, op)
		}
		return r
	}

	o := &HandlerOneByte
	add(o, binopHandler, rangeOf(0x00, 0x05)...) // ADD
	add(o, binopHandler, rangeOf(0x08, 0x0D)...) // OR
	add(o, adcSbbHandler, rangeOf(0x10, 0x15)...) // ADC
	add(o, adcSbbHandler, rangeOf(0x18, 0x1D)...) // SBB
	add(o, binopHandler, rangeOf(0x20, 0x25)...) // AND
	add(o, binopHandler, rangeOf(0x28, 0x2D)...) // SUB
	add(o, xorHandler, rangeOf(0x30, 0x35)...)   // XOR
	add(o, cmpTestHandler, rangeOf(0x38, 0x3D)...) // CMP
	add(o, incDecHandler, rangeOf(0x40, 0x4F)...)  // INC/DEC r32
	add(o, pushHandler, rangeOf(0x50, 0x57)...)    // PUSH r32
	add(o, popHandler, rangeOf(0x58, 0x5F)...)     // POP r32
	add(o, pushHandler, 0x68, 0x6A)                // PUSH imm
	add(o, imulMulHandler, 0x69, 0x6B)             // IMUL r,r/m,imm
	add(o, cjmpHandler, rangeOf(0x70, 0x7F)...)    // Jcc rel8
	add(o, cmpTestHandler, 0x84, 0x85)             // TEST
	add(o, xchgHandler, 0x86, 0x87)                // XCHG
	add(o, movHandler, rangeOf(0x88, 0x8B)...)     // MOV
	add(o, leaHandler, 0x8D)                       // LEA
	add(o, xchgHandler, rangeOf(0x91, 0x97)...)    // XCHG eAX,r32
	add(o, cbwHandler, 0x98)                       // CBW/CWDE
	add(o, cdqHandler, 0x99)                       // CWD/CDQ
	add(o, sahfHandler, 0x9E)                      // SAHF
	add(o, movHandler, rangeOf(0xA0, 0xA3)...)     // MOV moffs
	add(o, movsHandler, 0xA4, 0xA5)                // MOVS
	add(o, cmpsHandler, 0xA6, 0xA7)                // CMPS
	add(o, cmpTestHandler, 0xA8, 0xA9)             // TEST AL/eAX,imm
	add(o, stosHandler, 0xAA, 0xAB)                // STOS
	add(o, lodsHandler, 0xAC, 0xAD)                // LODS
	add(o, scasHandler, 0xAE, 0xAF)                // SCAS
	add(o, movHandler, rangeOf(0xB0, 0xBF)...)     // MOV r,imm
	add(o, retHandler, 0xC2, 0xC3)                 // RET
	// LOOP/LOOPE/LOOPNE/JECXZ: conservative ECX-taint branch, same shape
	// as cjmpHandler. Spec §4.4's CJMP/LOOP/JECXZ row lists E2/E3; E0/E1
	// (LOOPE/LOOPNE) test ZF in addition to ECX but the original taints
	// the branch off ECX alone for the whole 0xE0-0xE3 family, so they
	// share the same handler here too.
	add(o, loopJecxzHandler, 0xE0, 0xE1, 0xE2, 0xE3) // LOOPNE/LOOPE/LOOP/JECXZ
	add(o, callRelHandler, 0xE8)                     // CALL rel32
	add(o, jmpRelHandler, 0xE9, 0xEB)                // JMP rel
	add(o, clcStcHandler, 0xF8, 0xF9) // CLC/STC set CF to a constant
	// CMC (0xF5) complements CF's value but not its taint dependence, so it
	// is left unhandled (nil => no-op).

	t := &HandlerTwoBytes
	add(t, cjmpHandler, rangeOf(0x80, 0x8F)...)    // Jcc rel32
	add(t, cmovccHandler, rangeOf(0x40, 0x4F)...)  // CMOVcc
	add(t, setccHandler, rangeOf(0x90, 0x9F)...)   // SETcc
	add(t, shldShrdHandler, 0xA4, 0xA5, 0xAC, 0xAD) // SHLD/SHRD
	add(t, imulMulHandler, 0xAF)                   // IMUL r,r/m
	// CMPXCHG r/m32,r32 only: cmpxchgHandler operates at dword width via
	// GetTaint4/SetGPR32(RegEAX,...), which would mis-size the byte form
	// (0xB0, CMPXCHG r/m8,r8). Spec §4.4 lists only 0FB1, so the byte
	// opcode is left unhandled (nil => no-op) rather than wired wrong.
	add(t, cmpxchgHandler, 0xB1) // CMPXCHG
	add(t, movzxHandler, 0xB6, 0xB7)               // MOVZX
	add(t, movsxHandler, 0xBE, 0xBF)                // MOVSX
	add(t, xaddHandler, 0xC0, 0xC1)                // XADD
	add(t, bswapHandler, rangeOf(0xC8, 0xCF)...)   // BSWAP
	add(t, mmxSseMoveHandler, 0x10, 0x11, 0x28, 0x29, 0x6E, 0x6F, 0x7E, 0x7F) // MOVUPS/MOVAPS/MOVD/MOVQ
	add(t, movq0FD6Handler, 0xD6)                  // MOVQ store
	add(t, mmxSseBinopHandler, 0xDB, 0xEB, 0xEF)   // PAND/POR/PXOR
	add(t, punpckldqHandler, 0x62)                 // PUNPCKLDQ
	add(t, pshufwHandler, 0x70)                    // PSHUFW
	add(t, cpuidClearHandler, 0xA2, 0x31)          // CPUID, RDTSC
}

// Dispatch looks up and invokes the propagation handler for inst, resolving
// ModRM-/reg-extended group opcodes first. A nil resolution (genuinely
// unmodeled opcode) is a silent no-op rather than a fault: most of the x86
// instruction set carries no taint effect (control-flow bookkeeping,
// segment/privileged instructions), and process/PE/Win32 simulation is a
// different component's concern entirely.
func (e *TaintEngine) Dispatch(ctx *TContext) {
	inst := ctx.Inst
	if inst == nil {
		return
	}

	var table *[256]TaintHandler
	var groups map[uint16]groupHandler
	if inst.TwoByte {
		table, groups = &HandlerTwoBytes, twoByteGroups
	} else {
		table, groups = &HandlerOneByte, oneByteGroups
	}

	op := inst.Opcode
	var h TaintHandler
	if g, ok := groups[op]; ok {
		h = g(inst.ModRMReg())
	} else {
		h = table[op]
	}

	if h == nil {
		e.log.Debugw("lochsemu: no taint handler for opcode", "opcode", op, "twoByte", inst.TwoByte, "eip", ctx.Eip)
		return
	}
	h(e, ctx, inst)
}
