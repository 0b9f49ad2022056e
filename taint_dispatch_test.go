package lochsemu

import "testing"

func TestDispatchResolvesPlainOpcode(t *testing.T) {
	e := NewTaintEngine(0, nil)
	e.Cpu.SetGPR32(RegEAX, Taint4{1, 0, 0, 0})
	e.Cpu.SetGPR32(RegEBX, Taint4{0, 1, 0, 0})

	inst := &Inst{Instruction: Instruction{
		Opcode: 0x01, // ADD r/m32, r32
		Args:   [3]Arg{regArg(4, RegEAX), regArg(4, RegEBX)},
	}}
	ctx := &TContext{Inst: inst}

	e.Dispatch(ctx)

	want := Taint4{1, 1, 0, 0}
	if got := e.Cpu.GetGPR32(RegEAX); got != want {
		t.Fatalf("Dispatch(ADD) dst taint = %v, want %v", got, want)
	}
}

func TestDispatchResolvesGroupOpcodeByModRMReg(t *testing.T) {
	e := NewTaintEngine(0, nil)
	e.Cpu.SetGPR32(RegEAX, Taint4{1, 0, 0, 0})

	// opcode 0xF7 /reg=2 is NOT r/m32: a pure complement, taint unaffected.
	inst := &Inst{Instruction: Instruction{
		Opcode: 0xF7,
		ModRM:  0x02 << 3,
		Args:   [3]Arg{regArg(4, RegEAX)},
	}}
	ctx := &TContext{Inst: inst}
	e.Dispatch(ctx)

	if got := e.Cpu.GetGPR32(RegEAX); got != (Taint4{1, 0, 0, 0}) {
		t.Fatalf("NOT should leave taint unaffected, got %v", got)
	}
}

func TestDispatchNilHandlerIsSilentNoOp(t *testing.T) {
	e := NewTaintEngine(0, nil)
	e.Cpu.SetGPR32(RegEAX, Taint4{1, 0, 0, 0})

	// 0xF5 (CMC) has no registered handler by design.
	inst := &Inst{Instruction: Instruction{Opcode: 0xF5}}
	ctx := &TContext{Inst: inst}

	e.Dispatch(ctx) // must not panic

	if got := e.Cpu.GetGPR32(RegEAX); got != (Taint4{1, 0, 0, 0}) {
		t.Fatalf("an unmodeled opcode should never mutate taint state, got %v", got)
	}
}

func TestDispatchNilInstIsNoOp(t *testing.T) {
	e := NewTaintEngine(0, nil)
	e.Dispatch(&TContext{Inst: nil}) // must not panic
}

func TestDispatchLoopAndJecxzOpcodesRouteEcxTaintIntoEip(t *testing.T) {
	for _, op := range []uint16{0xE0, 0xE1, 0xE2, 0xE3} {
		e := NewTaintEngine(0, nil)
		e.Cpu.SetGPR32(RegECX, Taint4{1, 0, 0, 0})

		inst := &Inst{Instruction: Instruction{Opcode: op}}
		ctx := &TContext{Inst: inst}
		e.Dispatch(ctx)

		want := Taint4{1, 1, 1, 1}
		if got := e.Cpu.Eip; got != want {
			t.Fatalf("opcode %#x: Dispatch Eip taint = %v, want %v", op, got, want)
		}
	}
}

func TestDispatchCmpxchgByteFormIsUnwired(t *testing.T) {
	e := NewTaintEngine(0, nil)
	e.Cpu.SetGPR8Low(RegEAX, 1)

	// 0xB0 (CMPXCHG r/m8,r8) has no registered handler: cmpxchgHandler
	// only operates at dword width, so wiring it here would mis-size it.
	inst := &Inst{Instruction: Instruction{Opcode: 0xB0, TwoByte: true}}
	ctx := &TContext{Inst: inst}
	e.Dispatch(ctx) // must not panic
}

func TestDispatchTwoByteOpcodeUsesTwoByteTable(t *testing.T) {
	e := NewTaintEngine(0, nil)
	e.Cpu.SetGPR8Low(RegEAX, 1)

	src := Arg{Type: ArgReg, Bank: BankGPR, Size: 1, Reg: RegEAX}
	dst := Arg{Type: ArgReg, Bank: BankGPR, Size: 4, Reg: RegEBX}
	inst := &Inst{Instruction: Instruction{
		Opcode:  0xB6, // MOVZX r32, r/m8
		TwoByte: true,
		Args:    [3]Arg{dst, src},
	}}
	ctx := &TContext{Inst: inst}
	e.Dispatch(ctx)

	want := Taint4{1, 0, 0, 0}
	if got := e.Cpu.GetGPR32(RegEBX); got != want {
		t.Fatalf("Dispatch(MOVZX) dst taint = %v, want %v", got, want)
	}
}
