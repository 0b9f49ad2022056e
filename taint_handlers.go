package lochsemu

// TaintHandler is the signature every opcode dispatch table entry holds: it
// reads the current taint state plus ctx (register values, flags at entry)
// and updates CpuTaint/MemTaint in place. Mirrors taintengine.cpp's handler
// member-function-pointer signature `(ExecuteTraceEvent&, TContext*)`.
type TaintHandler func(e *TaintEngine, ctx *TContext, inst *Inst)

// --- default ALU binop family: ADD/OR/AND/XOR/ADC/SBB share this shape ---
// (dst |= src; flags := Shrink(dst))

func binopHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	switch inst.Args[0].Size {
	case 1:
		dst := e.GetTaint1(ctx, &inst.Args[0])
		src := e.GetTaint1(ctx, &inst.Args[1])
		r := dst | src
		e.SetTaint1(ctx, &inst.Args[0], r)
		e.setAluFlags(r)
	case 2:
		dst := e.GetTaint2(ctx, &inst.Args[0])
		src := e.GetTaint2(ctx, &inst.Args[1])
		r := Or2(dst, src)
		e.SetTaint2(ctx, &inst.Args[0], r)
		e.setAluFlags(Shrink2(r))
	default:
		dst := e.GetTaint4(ctx, &inst.Args[0])
		src := e.GetTaint4(ctx, &inst.Args[1])
		r := Or4(dst, src)
		e.SetTaint4(ctx, &inst.Args[0], r)
		e.SetFlagsFromShrink4(r)
	}
}

// xorHandler special-cases `xor r, r` (same register both operands): the
// result is always architecturally zero regardless of prior taint, so the
// destination taint is cleared outright rather than OR'd with itself.
func xorHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	a, b := &inst.Args[0], &inst.Args[1]
	if a.Type == ArgReg && b.Type == ArgReg && a.Bank == b.Bank && a.Reg == b.Reg && a.RegHigh == b.RegHigh {
		switch a.Size {
		case 1:
			e.SetTaint1(ctx, a, 0)
			e.setAluFlags(0)
		case 2:
			e.SetTaint2(ctx, a, Taint2{})
			e.setAluFlags(0)
		default:
			e.SetTaint4(ctx, a, Taint4{})
			e.SetFlagsFromShrink4(Taint4{})
		}
		return
	}
	binopHandler(e, ctx, inst)
}

// adcSbbHandler: dst := dst | src | CF.
func adcSbbHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	cf := e.Cpu.Flags[FlagCF]
	switch inst.Args[0].Size {
	case 1:
		r := e.GetTaint1(ctx, &inst.Args[0]) | e.GetTaint1(ctx, &inst.Args[1]) | cf
		e.SetTaint1(ctx, &inst.Args[0], r)
		e.setAluFlags(r)
	case 2:
		dst, src := e.GetTaint2(ctx, &inst.Args[0]), e.GetTaint2(ctx, &inst.Args[1])
		r := Taint2{dst[0] | src[0] | cf, dst[1] | src[1] | cf}
		e.SetTaint2(ctx, &inst.Args[0], r)
		e.setAluFlags(Shrink2(r))
	default:
		dst, src := e.GetTaint4(ctx, &inst.Args[0]), e.GetTaint4(ctx, &inst.Args[1])
		var r Taint4
		for i := range r {
			r[i] = dst[i] | src[i] | cf
		}
		e.SetTaint4(ctx, &inst.Args[0], r)
		e.SetFlagsFromShrink4(r)
	}
}

// cmpTestHandler: flags := Shrink(a|b); no destination write (CMP/TEST).
func cmpTestHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	switch inst.Args[0].Size {
	case 1:
		e.setAluFlags(e.GetTaint1(ctx, &inst.Args[0]) | e.GetTaint1(ctx, &inst.Args[1]))
	case 2:
		a, b := e.GetTaint2(ctx, &inst.Args[0]), e.GetTaint2(ctx, &inst.Args[1])
		e.setAluFlags(Shrink2(Or2(a, b)))
	default:
		a, b := e.GetTaint4(ctx, &inst.Args[0]), e.GetTaint4(ctx, &inst.Args[1])
		e.SetFlagsFromShrink4(Or4(a, b))
	}
}

// incDecHandler: dst unchanged; flags get dst's taint on every flag except
// CF (INC/DEC architecturally preserve CF).
func incDecHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	var s Taint
	switch inst.Args[0].Size {
	case 1:
		s = e.GetTaint1(ctx, &inst.Args[0])
	case 2:
		s = Shrink2(e.GetTaint2(ctx, &inst.Args[0]))
	default:
		s = Shrink4(e.GetTaint4(ctx, &inst.Args[0]))
	}
	e.Cpu.Flags[FlagPF] = s
	e.Cpu.Flags[FlagAF] = s
	e.Cpu.Flags[FlagZF] = s
	e.Cpu.Flags[FlagSF] = s
	e.Cpu.Flags[FlagOF] = s
}

// pushHandler: Mem[ESP-size] := src taint; ESP's own taint is unaffected
// (decrementing ESP by a constant does not depend on any tainted value).
func pushHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	esp := ctx.GPRegs[RegESP]
	switch inst.Args[0].Size {
	case 2:
		t := e.GetTaint2(ctx, &inst.Args[0])
		e.Mem.Set2(esp-2, t)
	default:
		t := e.GetTaint4(ctx, &inst.Args[0])
		e.SetTaintMem4(esp-4, t)
	}
}

// popHandler: dst := Mem[ESP] taint.
func popHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	esp := ctx.GPRegs[RegESP]
	switch inst.Args[0].Size {
	case 2:
		e.SetTaint2(ctx, &inst.Args[0], e.Mem.Get2(esp))
	default:
		e.SetTaint4(ctx, &inst.Args[0], e.GetTaintMem4(esp))
	}
}

// movHandler: dst := src, no flag effect.
func movHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	switch inst.Args[0].Size {
	case 1:
		e.SetTaint1(ctx, &inst.Args[0], e.GetTaint1(ctx, &inst.Args[1]))
	case 2:
		e.SetTaint2(ctx, &inst.Args[0], e.GetTaint2(ctx, &inst.Args[1]))
	default:
		e.SetTaint4(ctx, &inst.Args[0], e.GetTaint4(ctx, &inst.Args[1]))
	}
}

// xchgHandler swaps the taint of both operands.
func xchgHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	a, b := &inst.Args[0], &inst.Args[1]
	switch a.Size {
	case 1:
		ta, tb := e.GetTaint1(ctx, a), e.GetTaint1(ctx, b)
		e.SetTaint1(ctx, a, tb)
		e.SetTaint1(ctx, b, ta)
	case 2:
		ta, tb := e.GetTaint2(ctx, a), e.GetTaint2(ctx, b)
		e.SetTaint2(ctx, a, tb)
		e.SetTaint2(ctx, b, ta)
	default:
		ta, tb := e.GetTaint4(ctx, a), e.GetTaint4(ctx, b)
		e.SetTaint4(ctx, a, tb)
		e.SetTaint4(ctx, b, ta)
	}
}

// leaHandler: dst := Taint(base) | Taint(index); LEA never loads memory so
// the displacement-only/no-index case leaves dst untainted.
func leaHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	m := inst.Args[1].Mem
	var t Taint
	if m.HasBase {
		t |= Shrink4(e.Cpu.GetGPR32(m.Base))
	}
	if m.HasIndex {
		t |= Shrink4(e.Cpu.GetGPR32(m.Index))
	}
	e.SetTaint4(ctx, &inst.Args[0], Extend4(t))
}

// imulMulHandler: dst := Shrink(a|b), replicated across the result's lanes.
func imulMulHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	a := e.GetTaint4(ctx, &inst.Args[0])
	var b Taint4
	if len(inst.Args) > 1 && inst.Args[1].Type != ArgNone {
		b = e.GetTaint4(ctx, &inst.Args[1])
	}
	r := Extend4(Shrink4(a) | Shrink4(b))
	e.SetTaint4(ctx, &inst.Args[0], r)
	e.SetFlagsFromShrink4(r)
}

// divIdivHandler: EAX,EDX := Shrink(EAX|EDX|src), replicated (DIV/IDIV
// corrupt both halves of the dividend pair regardless of which bytes of
// the quotient/remainder actually depend on which input byte).
func divIdivHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	eax := e.Cpu.GetGPR32(RegEAX)
	edx := e.Cpu.GetGPR32(RegEDX)
	src := e.GetTaint4(ctx, &inst.Args[0])
	s := Extend4(Shrink4(eax) | Shrink4(edx) | Shrink4(src))
	e.Cpu.SetGPR32(RegEAX, s)
	e.Cpu.SetGPR32(RegEDX, s)
}

// shiftRotateHandler: dst |= dst | Taint(CL) when the shift count comes
// from CL rather than an immediate.
func shiftRotateHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	countTaint := Taint(0)
	if len(inst.Args) > 1 && inst.Args[1].Type == ArgReg {
		countTaint = e.GetTaint1(ctx, &inst.Args[1])
	}
	switch inst.Args[0].Size {
	case 1:
		d := e.GetTaint1(ctx, &inst.Args[0])
		r := d | countTaint
		e.SetTaint1(ctx, &inst.Args[0], r)
		e.setAluFlags(r)
	case 2:
		d := e.GetTaint2(ctx, &inst.Args[0])
		r := Taint2{d[0] | countTaint, d[1] | countTaint}
		e.SetTaint2(ctx, &inst.Args[0], r)
		e.setAluFlags(Shrink2(r))
	default:
		d := e.GetTaint4(ctx, &inst.Args[0])
		var r Taint4
		for i := range r {
			r[i] = d[i] | countTaint
		}
		e.SetTaint4(ctx, &inst.Args[0], r)
		e.SetFlagsFromShrink4(r)
	}
}

// bswapHandler reverses the byte-lane order of the destination register's
// taint. The original source (Bswap_Handler) computes this reversed value
// correctly but then writes back the unreversed taint instead — see
// DESIGN.md Open Question 1. This handler implements the documented
// *intended* behavior (the reversal is applied).
func bswapHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	t := e.GetTaint4(ctx, &inst.Args[0])
	e.SetTaint4(ctx, &inst.Args[0], Reverse4(t))
}

// movzxHandler: zero-extend — high lanes become untainted.
func movzxHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	var lo Taint
	if inst.Args[1].Size == 1 {
		lo = e.GetTaint1(ctx, &inst.Args[1])
	} else {
		lo = Shrink2(e.GetTaint2(ctx, &inst.Args[1]))
	}
	e.SetTaint4(ctx, &inst.Args[0], Taint4{lo, 0, 0, 0})
}

// movsxHandler: sign-extend, approximated by replicating the source's top
// lane across the destination's upper lanes rather than the top bit of
// that lane — kept per DESIGN.md Open Question 2.
func movsxHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	var top Taint
	var low Taint4
	if inst.Args[1].Size == 1 {
		top = e.GetTaint1(ctx, &inst.Args[1])
		low = Taint4{top, top, 0, 0}
	} else {
		src := e.GetTaint2(ctx, &inst.Args[1])
		top = src[1]
		low = Taint4{src[0], src[1], 0, 0}
	}
	low[2], low[3] = top, top
	e.SetTaint4(ctx, &inst.Args[0], low)
}

// cjmpHandler: Eip := Eip | taint(tested flags).
func cjmpHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	cond := inst.Opcode & 0xF
	t := e.GetTestedFlagTaint(int(cond))
	eip := e.Cpu.Eip
	eip[0] |= t
	eip[1] |= t
	eip[2] |= t
	eip[3] |= t
	e.Cpu.Eip = eip
}

// loopJecxzHandler: LOOP/LOOPE/LOOPNE/JECXZ test ECX (and possibly ZF) but
// the original treats the branch taint conservatively as depending on ECX's
// own taint, same shape as cjmpHandler keyed off ECX rather than a flag.
func loopJecxzHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	t := Shrink4(e.Cpu.GetGPR32(RegECX))
	eip := e.Cpu.Eip
	eip[0] |= t
	eip[1] |= t
	eip[2] |= t
	eip[3] |= t
	e.Cpu.Eip = eip
}

// setccHandler: dst := taint(tested flags).
func setccHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	cond := inst.Opcode & 0xF
	e.SetTaint1(ctx, &inst.Args[0], e.GetTestedFlagTaint(int(cond)))
}

// cmovccHandler: dst := dst | (src | taint(tested flags)).
func cmovccHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	cond := (inst.Opcode) & 0xF
	ft := e.GetTestedFlagTaint(int(cond))
	dst := e.GetTaint4(ctx, &inst.Args[0])
	src := e.GetTaint4(ctx, &inst.Args[1])
	var r Taint4
	for i := range r {
		r[i] = dst[i] | src[i] | ft
	}
	e.SetTaint4(ctx, &inst.Args[0], r)
}

// callRelHandler: Mem[ESP] := Eip taint; CALL rel32 never rewrites Eip's
// own taint since the host sets EIP to a compile-time constant.
func callRelHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	e.SetTaintMem4(ctx.GPRegs[RegESP], e.Cpu.Eip)
}

// callAbsHandler: Mem[ESP] := Eip taint; Eip := src taint, unless the call
// is a simulated WinAPI call (out of scope, the host owns EIP in that
// case).
func callAbsHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	e.SetTaintMem4(ctx.GPRegs[RegESP], e.Cpu.Eip)
	if ctx.ExecFlags&ExecWinapiCall != 0 {
		return
	}
	e.Cpu.Eip = e.GetTaint4(ctx, &inst.Args[0])
}

// jmpAbsHandler: Eip := src taint, unless a simulated WinAPI jmp.
func jmpAbsHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	if ctx.ExecFlags&ExecWinapiJmp != 0 {
		return
	}
	e.Cpu.Eip = e.GetTaint4(ctx, &inst.Args[0])
}

// jmpRelHandler: unconditional relative jump to a constant target — no-op.
func jmpRelHandler(e *TaintEngine, ctx *TContext, inst *Inst) {}

// retHandler: Eip := Mem[ESP + imm] taint (imm is the optional RETN
// operand, 0 for plain RET).
func retHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	imm := uint32(0)
	if len(inst.Args) > 0 && inst.Args[0].Type == ArgConst {
		imm = uint32(inst.Args[0].Const)
	}
	e.Cpu.Eip = e.GetTaintMem4(ctx.GPRegs[RegESP] + imm)
}

// sahfHandler: CF,PF,AF,ZF,SF := AH taint.
func sahfHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	ah := e.Cpu.GetGPR8High(RegEAX)
	e.Cpu.Flags[FlagCF] = ah
	e.Cpu.Flags[FlagPF] = ah
	e.Cpu.Flags[FlagAF] = ah
	e.Cpu.Flags[FlagZF] = ah
	e.Cpu.Flags[FlagSF] = ah
}

// cbwHandler: AX/EAX := sign-extension of AL/AX taint, honoring the operand
// size prefix the way Cbw_Handler does.
func cbwHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	if inst.Prefix.OperandSize {
		al := e.Cpu.GetGPR8Low(RegEAX)
		e.Cpu.SetGPR16(RegEAX, Taint2{al, al})
	} else {
		ax := e.Cpu.GetGPR16(RegEAX)
		e.Cpu.SetGPR32(RegEAX, Taint4{ax[0], ax[1], ax[1], ax[1]})
	}
}

// cdqHandler: EDX := EAX taint (sign-extension approximated as full
// replication, same approximation policy as MOVSX).
func cdqHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	if inst.Prefix.OperandSize {
		e.fatalf("cdq: 16-bit operand size (CWD) not implemented")
		return
	}
	e.Cpu.SetGPR32(RegEDX, e.Cpu.GetGPR32(RegEAX))
}

// cpuidClearHandler clears EAX/ECX/EDX/EBX taint; the dispatch table wires
// it for CPUID and RDTSC, which overwrite these with untainted values.
func cpuidClearHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	e.Cpu.SetGPR32(RegEAX, Taint4{})
	e.Cpu.SetGPR32(RegECX, Taint4{})
	e.Cpu.SetGPR32(RegEDX, Taint4{})
	e.Cpu.SetGPR32(RegEBX, Taint4{})
}

// shldShrdHandler: dst := dst | src | (CL taint if the count operand is a
// register rather than an immediate).
func shldShrdHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	dst := e.GetTaint4(ctx, &inst.Args[0])
	src := e.GetTaint4(ctx, &inst.Args[1])
	countTaint := Taint(0)
	if len(inst.Args) > 2 && inst.Args[2].Type == ArgReg {
		countTaint = e.GetTaint1(ctx, &inst.Args[2])
	}
	var r Taint4
	for i := range r {
		r[i] = dst[i] | src[i] | countTaint
	}
	e.SetTaint4(ctx, &inst.Args[0], r)
	e.SetFlagsFromShrink4(r)
}

// cmpxchgHandler: branches on the architectural ZF *value* (not its taint,
// ctx carries the pre-execution register/flag snapshot) to decide which
// path CMPXCHG took, then sets ZF's taint from the comparison.
func cmpxchgHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	dst := e.GetTaint4(ctx, &inst.Args[0])
	src := e.GetTaint4(ctx, &inst.Args[1])
	zfWasSet := ctx.Flags&(1<<6) != 0 // ZF bit in EFLAGS
	if zfWasSet {
		e.SetTaint4(ctx, &inst.Args[0], src)
	} else {
		e.Cpu.SetGPR32(RegEAX, dst)
	}
	e.SetFlagsFromShrink4(Or4(e.Cpu.GetGPR32(RegEAX), dst))
}

// xaddHandler: binop (dst |= src) then xchg (src gets dst's prior taint).
func xaddHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	dst := e.GetTaint4(ctx, &inst.Args[0])
	src := e.GetTaint4(ctx, &inst.Args[1])
	sum := Or4(dst, src)
	e.SetTaint4(ctx, &inst.Args[0], sum)
	e.SetTaint4(ctx, &inst.Args[1], dst)
	e.SetFlagsFromShrink4(sum)
}

// mmxSseMoveHandler: byte-wise copy, 8 lanes without the 0x66 prefix (MMX),
// 16 lanes with it (SSE/XMM).
func mmxSseMoveHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	if inst.Prefix.OperandSize {
		e.Cpu.XMM[inst.Args[0].Reg] = e.taint16Of(ctx, &inst.Args[1])
		return
	}
	e.Cpu.MM[inst.Args[0].Reg] = e.taint8Of(ctx, &inst.Args[1])
}

func (e *TaintEngine) taint8Of(ctx *TContext, a *Arg) Taint8 {
	if a.Type == ArgReg && a.Bank == BankMMX {
		return e.Cpu.MM[a.Reg]
	}
	if a.Type == ArgMem {
		addr := a.Mem.EffectiveAddr(ctx.GPRegs)
		var t Taint8
		for i := range t {
			t[i] = e.Mem.GetByte(addr + uint32(i))
		}
		return t
	}
	return Taint8{}
}

func (e *TaintEngine) taint16Of(ctx *TContext, a *Arg) Taint16 {
	if a.Type == ArgReg && a.Bank == BankXMM {
		return e.Cpu.XMM[a.Reg]
	}
	if a.Type == ArgMem {
		addr := a.Mem.EffectiveAddr(ctx.GPRegs)
		var t Taint16
		for i := range t {
			t[i] = e.Mem.GetByte(addr + uint32(i))
		}
		return t
	}
	return Taint16{}
}

// mmxSseBinopHandler: lane-wise a|b, with a `pxor r,r` self-op zeroing
// special case handled the same way xorHandler special-cases GPR XOR.
func mmxSseBinopHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	a, b := &inst.Args[0], &inst.Args[1]
	selfOp := a.Type == ArgReg && b.Type == ArgReg && a.Bank == b.Bank && a.Reg == b.Reg
	if inst.Prefix.OperandSize {
		if selfOp && inst.Opcode == 0xEF { // PXOR xmm,xmm
			e.Cpu.XMM[a.Reg] = Taint16{}
			return
		}
		av, bv := e.taint16Of(ctx, a), e.taint16Of(ctx, b)
		var r Taint16
		for i := range r {
			r[i] = av[i] | bv[i]
		}
		e.Cpu.XMM[a.Reg] = r
		return
	}
	if selfOp && inst.Opcode == 0xEF { // PXOR mm,mm
		e.Cpu.MM[a.Reg] = Taint8{}
		return
	}
	av, bv := e.taint8Of(ctx, a), e.taint8Of(ctx, b)
	var r Taint8
	for i := range r {
		r[i] = av[i] | bv[i]
	}
	e.Cpu.MM[a.Reg] = r
}

// punpckldqHandler interleaves the low dwords of both operands,
// byte-by-byte, at either MMX (8-byte) or XMM (16-byte) width.
func punpckldqHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	a, b := &inst.Args[0], &inst.Args[1]
	if inst.Prefix.OperandSize {
		av, bv := e.taint16Of(ctx, a), e.taint16Of(ctx, b)
		r := av
		r[4], r[5], r[6], r[7] = bv[0], bv[1], bv[2], bv[3]
		r[8], r[9], r[10], r[11] = av[4], av[5], av[6], av[7]
		r[12], r[13], r[14], r[15] = bv[4], bv[5], bv[6], bv[7]
		e.Cpu.XMM[a.Reg] = r
		return
	}
	av, bv := e.taint8Of(ctx, a), e.taint8Of(ctx, b)
	r := av
	r[4], r[5], r[6], r[7] = bv[0], bv[1], bv[2], bv[3]
	e.Cpu.MM[a.Reg] = r
}

// pshufwHandler permutes the four 16-bit lanes of an MMX register per the
// imm8 shuffle-control byte's 2-bit selector fields.
func pshufwHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	src := e.taint8Of(ctx, &inst.Args[1])
	imm := byte(inst.Args[2].Const)
	lane := func(i int) Taint { return src[2*i] | src[2*i+1] }
	var r Taint8
	for w := 0; w < 4; w++ {
		sel := int(imm>>(2*uint(w))) & 0x3
		l := lane(sel)
		r[2*w], r[2*w+1] = l, l
	}
	e.Cpu.MM[inst.Args[0].Reg] = r
}

// movq0FD6Handler: a memory destination receives the low 8 lanes only; a
// register destination zeroes the upper 8 lanes of the 128-bit register.
func movq0FD6Handler(e *TaintEngine, ctx *TContext, inst *Inst) {
	src := e.Cpu.XMM[inst.Args[1].Reg]
	low := Taint8{src[0], src[1], src[2], src[3], src[4], src[5], src[6], src[7]}
	if inst.Args[0].Type == ArgMem {
		addr := inst.Args[0].Mem.EffectiveAddr(ctx.GPRegs)
		for i, t := range low {
			e.Mem.SetByte(addr+uint32(i), t)
		}
		return
	}
	var r Taint16
	copy(r[:8], low[:])
	e.Cpu.XMM[inst.Args[0].Reg] = r
}

// clcStcHandler clears CF's taint (CLC/STC set CF to a compile-time
// constant, so its taint is always wiped regardless of prior state).
func clcStcHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	e.Cpu.Flags[FlagCF] = 0
}

// --- string instruction family: MOVS/STOS/LODS/SCAS/CMPS ---

func stringOpSize(inst *Inst) int {
	if inst.Prefix.OperandSize {
		return 2
	}
	if inst.Args[0].Size == 1 {
		return 1
	}
	return 4
}

// movsHandler: Mem[EDI] := Mem[ESI] taint (REP is treated as a single bulk
// copy by the host; each repetition the host re-executes this step, so the
// handler itself just performs one element's worth of propagation).
func movsHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	n := stringOpSize(inst)
	esi, edi := ctx.GPRegs[RegESI], ctx.GPRegs[RegEDI]
	switch n {
	case 1:
		e.Mem.SetByte(edi, e.Mem.GetByte(esi))
	case 2:
		e.Mem.Set2(edi, e.Mem.Get2(esi))
	default:
		e.Mem.Set4(edi, e.Mem.Get4(esi))
	}
}

// stosHandler: Mem[EDI] := EAX (or AX/AL) taint.
func stosHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	n := stringOpSize(inst)
	edi := ctx.GPRegs[RegEDI]
	switch n {
	case 1:
		e.Mem.SetByte(edi, e.Cpu.GetGPR8Low(RegEAX))
	case 2:
		e.Mem.Set2(edi, e.Cpu.GetGPR16(RegEAX))
	default:
		e.Mem.Set4(edi, e.Cpu.GetGPR32(RegEAX))
	}
}

// lodsHandler: EAX (or AX/AL) := Mem[ESI] taint.
func lodsHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	n := stringOpSize(inst)
	esi := ctx.GPRegs[RegESI]
	switch n {
	case 1:
		e.Cpu.SetGPR8Low(RegEAX, e.Mem.GetByte(esi))
	case 2:
		e.Cpu.SetGPR16(RegEAX, e.Mem.Get2(esi))
	default:
		e.Cpu.SetGPR32(RegEAX, e.Mem.Get4(esi))
	}
}

// scasHandler: flags := Shrink(EAX | Mem[EDI]); no destination write.
func scasHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	n := stringOpSize(inst)
	edi := ctx.GPRegs[RegEDI]
	switch n {
	case 1:
		e.setAluFlags(e.Cpu.GetGPR8Low(RegEAX) | e.Mem.GetByte(edi))
	case 2:
		e.setAluFlags(Shrink2(Or2(e.Cpu.GetGPR16(RegEAX), e.Mem.Get2(edi))))
	default:
		e.SetFlagsFromShrink4(Or4(e.Cpu.GetGPR32(RegEAX), e.Mem.Get4(edi)))
	}
}

// cmpsHandler is a dedicated CMPS rule (flags := Shrink(Mem[ESI] |
// Mem[EDI]); no destination write; both pointers conceptually advance),
// rather than reusing the generic binop-family constructor — per
// DESIGN.md Open Question 3.
func cmpsHandler(e *TaintEngine, ctx *TContext, inst *Inst) {
	n := stringOpSize(inst)
	esi, edi := ctx.GPRegs[RegESI], ctx.GPRegs[RegEDI]
	switch n {
	case 1:
		e.setAluFlags(e.Mem.GetByte(esi) | e.Mem.GetByte(edi))
	case 2:
		e.setAluFlags(Shrink2(Or2(e.Mem.Get2(esi), e.Mem.Get2(edi))))
	default:
		e.SetFlagsFromShrink4(Or4(e.Mem.Get4(esi), e.Mem.Get4(edi)))
	}
}
