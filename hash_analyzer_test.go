package lochsemu

import (
	"crypto/md5"
	"testing"
)

type fakeEnqueuer struct {
	calls int
	last  *AlgTag
}

func (f *fakeEnqueuer) EnqueueNewMessage(region MemRegion, data []byte, tr TaintRegion, tag *AlgTag, ctx *ProcContext, scanForMore bool) {
	f.calls++
	f.last = tag
}

func buildMD5Context(input []byte, inputAddr, outputAddr uint32) *ProcContext {
	sum := md5.Sum(input)

	inputs := NewProcMemSnapshot()
	for i, b := range input {
		inputs.Set(inputAddr+uint32(i), b)
	}
	outputs := NewProcMemSnapshot()
	for i, b := range sum {
		outputs.Set(outputAddr+uint32(i), b)
	}

	taint := NewMemoryTaint()
	taint.Set(inputAddr, len(input), Taint(1).Set(0))

	return &ProcContext{
		Entry:         0x401000,
		InputRegions:  []MemRegion{{Addr: inputAddr, Len: uint32(len(input))}},
		OutputRegions: []MemRegion{{Addr: outputAddr, Len: MDSize}},
		Inputs:        inputs,
		Outputs:       outputs,
		InputTaint:    taint,
	}
}

func TestMD5AnalyzerRecognizesMatch(t *testing.T) {
	enq := &fakeEnqueuer{}
	a := NewMD5Analyzer(enq)
	ctx := buildMD5Context([]byte("hello world"), 0x1000, 0x2000)

	if !a.OnOriginalProcedure(ctx) {
		t.Fatalf("expected OnOriginalProcedure to recognize the MD5 digest")
	}
	if len(a.Tags) != 1 {
		t.Fatalf("expected one recorded AlgTag, got %d", len(a.Tags))
	}
	if a.Tags[0].Name != "MD5" {
		t.Fatalf("AlgTag.Name = %q, want MD5", a.Tags[0].Name)
	}
	if enq.calls != 1 {
		t.Fatalf("expected the enqueuer to be called once, got %d", enq.calls)
	}
}

func TestMD5AnalyzerRejectsMismatch(t *testing.T) {
	enq := &fakeEnqueuer{}
	a := NewMD5Analyzer(enq)
	ctx := buildMD5Context([]byte("hello world"), 0x1000, 0x2000)
	// corrupt the recorded digest so it no longer matches.
	ctx.Outputs.Set(0x2000, 0xFF)

	if a.OnOriginalProcedure(ctx) {
		t.Fatalf("a corrupted digest should not be recognized as a match")
	}
	if enq.calls != 0 {
		t.Fatalf("enqueuer should not be called on a non-match")
	}
}

func TestMD5AnalyzerRejectsDiscontiguousInputTaint(t *testing.T) {
	enq := &fakeEnqueuer{}
	a := NewMD5Analyzer(enq)
	ctx := buildMD5Context([]byte("hello world"), 0x1000, 0x2000)
	// taint a byte from an unrelated, non-adjacent source bit: the region's
	// combined taint no longer forms a single contiguous bit run.
	ctx.InputTaint.SetByte(0x1005, Taint(1).Set(5))

	if a.OnOriginalProcedure(ctx) {
		t.Fatalf("input taint split across two source regions should not be recognized")
	}
}

func TestProcContextUniqueID(t *testing.T) {
	a := NewProcContext(0x1000)
	b := NewProcContext(0x1000)
	if a.ID == b.ID {
		t.Fatalf("distinct ProcContexts should get distinct IDs even with the same entry")
	}
}
