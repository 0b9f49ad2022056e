package lochsemu

import (
	"fmt"
	"testing"
)

type fakeSection struct {
	base, size uint32
}

type fakeMem struct {
	sections []fakeSection
	heap     map[uint32]bool
}

func (m *fakeMem) GetSection(addr uint32) (Section, bool) {
	for _, s := range m.sections {
		if addr >= s.base && addr < s.base+s.size {
			return Section{Base: s.base, Size: s.size}, true
		}
	}
	return Section{}, false
}

func (m *fakeMem) IsHeap(addr uint32) bool { return m.heap[addr] }

type fakeDecoder struct {
	insts map[uint32]Instruction
}

func (d *fakeDecoder) Decode(eip uint32, mem MemorySectionLookup) (Instruction, error) {
	inst, ok := d.insts[eip]
	if !ok {
		return Instruction{}, fmt.Errorf("no fake instruction at %#x", eip)
	}
	return inst, nil
}

func TestDisassembleLinearRunUntilTerminator(t *testing.T) {
	mem := &fakeMem{sections: []fakeSection{{base: 0x1000, size: 0x100}}}
	dec := &fakeDecoder{insts: map[uint32]Instruction{
		0x1000: {Opcode: 0x90, Length: 1},           // NOP
		0x1001: {Opcode: 0xC3, Length: 1},           // RET, terminator
	}}
	d := NewDisassembler(dec, nil, nil)

	inst, err := d.Disassemble(mem, 0x1000)
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	if inst.Eip != 0x1000 {
		t.Fatalf("Eip = %#x, want 0x1000", inst.Eip)
	}

	ret := d.InstMem().GetInst(0x1001)
	if ret == nil {
		t.Fatalf("expected the RET at 0x1001 to have been decoded by recursive descent")
	}
	if ret.Entry != 0x1000 {
		t.Fatalf("terminator Entry = %#x, want procedure entry 0x1000", ret.Entry)
	}
}

func TestDisassembleFollowsCallIntoAnotherSection(t *testing.T) {
	mem := &fakeMem{sections: []fakeSection{
		{base: 0x1000, size: 0x100},
		{base: 0x2000, size: 0x100},
	}}
	dec := &fakeDecoder{insts: map[uint32]Instruction{
		0x1000: {Opcode: 0xE8, Length: 5, AddrValue: 0x2000}, // CALL rel32 -> 0x2000
		0x1005: {Opcode: 0xC3, Length: 1},
		0x2000: {Opcode: 0xC3, Length: 1},
	}}
	d := NewDisassembler(dec, nil, nil)

	if _, err := d.Disassemble(mem, 0x1000); err != nil {
		t.Fatalf("Disassemble: %v", err)
	}

	called := d.InstMem().GetInst(0x2000)
	if called == nil {
		t.Fatalf("CALL target 0x2000 should have been recursively decoded")
	}
	if called.Entry != 0x2000 {
		t.Fatalf("called procedure's terminator Entry = %#x, want 0x2000 (the call target, not the caller)", called.Entry)
	}
}

func TestDisassembleDoesNotFollowCallIntoHeap(t *testing.T) {
	mem := &fakeMem{
		sections: []fakeSection{{base: 0x1000, size: 0x100}, {base: 0x9000, size: 0x100}},
		heap:     map[uint32]bool{0x9000: true},
	}
	dec := &fakeDecoder{insts: map[uint32]Instruction{
		0x1000: {Opcode: 0xE8, Length: 5, AddrValue: 0x9000},
		0x1005: {Opcode: 0xC3, Length: 1},
	}}
	d := NewDisassembler(dec, nil, nil)

	if _, err := d.Disassemble(mem, 0x1000); err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	if d.InstMem().GetInst(0x9000) != nil {
		t.Fatalf("a call target inside heap memory must not be decoded")
	}
}

func TestDisassembleInvalidOpcodeStopsDescent(t *testing.T) {
	mem := &fakeMem{sections: []fakeSection{{base: 0x1000, size: 0x100}}}
	d := NewDisassembler(&fakeDecoder{insts: map[uint32]Instruction{}}, nil, nil)

	inst, err := d.Disassemble(mem, 0x1000)
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	if !inst.Invalid {
		t.Fatalf("an undecodable instruction should be recorded as Invalid")
	}
}

func TestDisassembleUnknownSectionErrors(t *testing.T) {
	mem := &fakeMem{}
	d := NewDisassembler(&fakeDecoder{insts: map[uint32]Instruction{}}, nil, nil)

	if _, err := d.Disassemble(mem, 0x1000); err == nil {
		t.Fatalf("expected an error when eip falls in no known host section")
	}
}

type fakeApiInfo struct {
	modules map[uint32]struct{ mod, fn string }
}

func (a *fakeApiInfo) Lookup(addr uint32) (string, string, bool) {
	v, ok := a.modules[addr]
	return v.mod, v.fn, ok
}

func TestDisassembleChasesIATJmpStubForCallTarget(t *testing.T) {
	mem := &fakeMem{sections: []fakeSection{
		{base: 0x1000, size: 0x100},
		{base: 0x2000, size: 0x100},
	}}
	dec := &fakeDecoder{insts: map[uint32]Instruction{
		0x1000: {Opcode: 0xE8, Length: 5, AddrValue: 0x2000}, // CALL rel32 -> IAT stub
		0x1005: {Opcode: 0xC3, Length: 1},
		// jmp [0x30000000]: opcode FF /4, memory operand with no base/index.
		0x2000: {
			Opcode: 0xFF, TwoByte: false, HasModRM: true, ModRM: 0x04 << 3, Length: 6,
			Args: [3]Arg{{Type: ArgMem, Mem: MemOperand{Disp: 0x30000000}}},
		},
	}}
	api := &fakeApiInfo{modules: map[uint32]struct{ mod, fn string }{
		0x30000000: {"kernel32.dll", "ExitProcess"},
	}}
	d := NewDisassembler(dec, api, nil)

	// decode the IAT stub on its own first, as an earlier pass over the
	// import section would have: attachApiInfo can only recognize it as a
	// jmp-stub once it is already present in the store.
	if _, err := d.Disassemble(mem, 0x2000); err != nil {
		t.Fatalf("Disassemble(stub): %v", err)
	}
	if _, err := d.Disassemble(mem, 0x1000); err != nil {
		t.Fatalf("Disassemble: %v", err)
	}

	caller := d.InstMem().GetInst(0x1000)
	if caller.TargetModuleName != "kernel32.dll" || caller.TargetFuncName != "ExitProcess" {
		t.Fatalf("expected the CALL to resolve through the IAT stub to kernel32.dll!ExitProcess, got %q!%q",
			caller.TargetModuleName, caller.TargetFuncName)
	}
}
