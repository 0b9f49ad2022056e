package lochsemu

import "testing"

func TestMemoryTaintLazyPages(t *testing.T) {
	m := NewMemoryTaint()
	if got := m.GetByte(0x1234); got != 0 {
		t.Fatalf("untouched byte should read zero taint, got %v", got)
	}
	m.SetByte(0x1234, Taint(1).Set(2))
	if got := m.GetByte(0x1234); !got.IsTainted(2) {
		t.Fatalf("expected bit 2 set after SetByte, got %016b", got)
	}
	if got := m.GetByte(0x1235); got != 0 {
		t.Fatalf("neighboring byte should be unaffected, got %v", got)
	}
}

func TestMemoryTaintCrossesPageBoundary(t *testing.T) {
	m := NewMemoryTaint()
	addr := uint32(PageSize - 1)
	m.Set4(addr, Taint4{1, 2, 3, 4})
	got := m.Get4(addr)
	want := Taint4{1, 2, 3, 4}
	if got != want {
		t.Fatalf("Get4 across page boundary = %v, want %v", got, want)
	}
}

func TestMemoryTaintGetOrsRange(t *testing.T) {
	m := NewMemoryTaint()
	m.SetByte(100, Taint(1).Set(0))
	m.SetByte(101, Taint(1).Set(5))
	got := m.Get(100, 2)
	if !got.IsTainted(0) || !got.IsTainted(5) {
		t.Fatalf("Get(100,2) = %016b, want bits 0 and 5 set", got)
	}
}

func TestMemoryTaintResetKeepsPages(t *testing.T) {
	m := NewMemoryTaint()
	m.SetByte(10, Taint(1).Set(0))
	m.Reset()
	if got := m.GetByte(10); got != 0 {
		t.Fatalf("Reset should clear taint values, got %v", got)
	}
	m.SetByte(10, Taint(1).Set(1))
	if got := m.GetByte(10); !got.IsTainted(1) {
		t.Fatalf("page should still be writable after Reset, got %v", got)
	}
}

func TestMemoryTaintCloneIsIndependent(t *testing.T) {
	m := NewMemoryTaint()
	m.SetByte(50, Taint(1).Set(0))
	clone := m.Clone()
	clone.SetByte(50, Taint(1).Set(1))
	if got := m.GetByte(50); got.IsTainted(1) {
		t.Fatalf("mutating clone affected original: %v", got)
	}
	if got := clone.GetByte(50); !got.IsTainted(1) {
		t.Fatalf("clone mutation did not apply")
	}
}

func TestMemoryTaintCopyFromReleasesExtraPages(t *testing.T) {
	dst := NewMemoryTaint()
	dst.SetByte(PageSize*3+1, Taint(1))
	src := NewMemoryTaint()
	src.SetByte(10, Taint(2))

	dst.CopyFrom(src)
	if got := dst.GetByte(10); got != Taint(2) {
		t.Fatalf("CopyFrom did not copy src's byte, got %v", got)
	}
	if got := dst.GetByte(PageSize*3 + 1); got != 0 {
		t.Fatalf("CopyFrom should drop pages not present in src, got %v", got)
	}
}

func TestMemoryTaintEachEnumeratesSetBytes(t *testing.T) {
	m := NewMemoryTaint()
	m.SetByte(5, Taint(1))
	m.SetByte(PageSize+5, Taint(2))
	m.SetByte(PageSize*2, 0) // explicitly zero, should not be enumerated

	seen := make(map[uint32]Taint)
	m.Each(func(addr uint32, t Taint) { seen[addr] = t })

	if len(seen) != 2 {
		t.Fatalf("Each enumerated %d bytes, want 2: %+v", len(seen), seen)
	}
	if seen[5] != Taint(1) || seen[PageSize+5] != Taint(2) {
		t.Fatalf("Each produced unexpected values: %+v", seen)
	}
}

func TestProcessorTaintSubRegisterAliasing(t *testing.T) {
	var p ProcessorTaint
	p.SetGPR32(RegEAX, Taint4{1, 2, 3, 4})
	if got := p.GetGPR16(RegEAX); got != (Taint2{1, 2}) {
		t.Fatalf("GetGPR16(EAX) = %v, want {1,2}", got)
	}
	if got := p.GetGPR8Low(RegEAX); got != Taint(1) {
		t.Fatalf("GetGPR8Low(EAX) = %v, want 1", got)
	}
	if got := p.GetGPR8High(RegEAX); got != Taint(2) {
		t.Fatalf("GetGPR8High(EAX) = %v, want 2", got)
	}

	p.SetGPR8Low(RegEAX, Taint(9))
	if got := p.GetGPR32(RegEAX); got != (Taint4{9, 2, 3, 4}) {
		t.Fatalf("SetGPR8Low leaked into other lanes: %v", got)
	}
}

func TestProcessorTaintCloneIndependent(t *testing.T) {
	p := &ProcessorTaint{}
	p.SetGPR32(RegEBX, Taint4{1, 1, 1, 1})
	clone := p.Clone()
	clone.SetGPR32(RegEBX, Taint4{})
	if got := p.GetGPR32(RegEBX); got != (Taint4{1, 1, 1, 1}) {
		t.Fatalf("mutating clone affected original: %v", got)
	}
}

func TestTaintEngineSnapshotRewind(t *testing.T) {
	e := NewTaintEngine(0, nil)
	addr := uint32(0x2000)
	bit := e.TaintByte(addr)
	if !bit.IsAnyTainted() {
		t.Fatalf("TaintByte should introduce a taint source")
	}

	snap := e.Snapshot()
	e.Mem.SetByte(addr, 0)
	e.ApplySnapshot(snap)

	if got := e.Mem.GetByte(addr); got != bit {
		t.Fatalf("ApplySnapshot did not restore prior taint, got %v want %v", got, bit)
	}
}
