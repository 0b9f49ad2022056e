package lochsemu

import "testing"

func TestInstSectionAllocIsIdempotent(t *testing.T) {
	mem := NewInstMem()
	sec := mem.CreateSection(0x1000, 0x100)

	a := sec.Alloc(0x1010)
	b := sec.Alloc(0x1010)
	if a != b {
		t.Fatalf("Alloc at the same address should return the same *Inst")
	}
	if sec.GetCount() != 1 {
		t.Fatalf("GetCount() = %d, want 1", sec.GetCount())
	}
}

func TestInstSectionBeginNext(t *testing.T) {
	mem := NewInstMem()
	sec := mem.CreateSection(0x2000, 0x100)
	sec.Alloc(0x2050)
	sec.Alloc(0x2010)
	sec.Alloc(0x2030)

	first := sec.Begin()
	if first == nil || first.Eip != 0x2010 {
		t.Fatalf("Begin() = %+v, want Eip 0x2010", first)
	}
	second := sec.Next(first)
	if second == nil || second.Eip != 0x2030 {
		t.Fatalf("Next(first) = %+v, want Eip 0x2030", second)
	}
	third := sec.Next(second)
	if third == nil || third.Eip != 0x2050 {
		t.Fatalf("Next(second) = %+v, want Eip 0x2050", third)
	}
	if sec.Next(third) != nil {
		t.Fatalf("Next(last) should be nil")
	}
}

func TestInstSectionUpdateIndices(t *testing.T) {
	mem := NewInstMem()
	sec := mem.CreateSection(0x3000, 0x10)
	a := sec.Alloc(0x3008)
	b := sec.Alloc(0x3002)

	sec.UpdateIndices()

	if b.Index != 0 || a.Index != 1 {
		t.Fatalf("indices not assigned in ascending EIP order: a=%d b=%d", a.Index, b.Index)
	}
	eip, ok := sec.GetEipFromIndex(0)
	if !ok || eip != 0x3002 {
		t.Fatalf("GetEipFromIndex(0) = (%x, %v), want (0x3002, true)", eip, ok)
	}
}

func TestInstMemCreateSectionSpansMultiplePages(t *testing.T) {
	mem := NewInstMem()
	base := uint32(PageSize - 16)
	sec := mem.CreateSection(base, 64)

	if mem.GetSection(base) != sec {
		t.Fatalf("section not registered at its base page")
	}
	if mem.GetSection(base+PageSize) != sec {
		t.Fatalf("section not registered at the page it spans into")
	}
}

func TestInstMemCreateSectionIdempotent(t *testing.T) {
	mem := NewInstMem()
	a := mem.CreateSection(0x5000, 0x100)
	b := mem.CreateSection(0x5000, 0x100)
	if a != b {
		t.Fatalf("CreateSection should return the existing section for a matching base")
	}
}

func TestInstMemGetInst(t *testing.T) {
	mem := NewInstMem()
	sec := mem.CreateSection(0x6000, 0x100)
	want := sec.Alloc(0x6010)

	if got := mem.GetInst(0x6010); got != want {
		t.Fatalf("InstMem.GetInst = %+v, want %+v", got, want)
	}
	if got := mem.GetInst(0x7000); got != nil {
		t.Fatalf("GetInst on an unmapped address should be nil, got %+v", got)
	}
}
