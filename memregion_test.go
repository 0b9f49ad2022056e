package lochsemu

import "testing"

func TestMemRegionContainsAndEnd(t *testing.T) {
	r := MemRegion{Addr: 0x1000, Len: 0x10}
	if !r.Contains(0x1000) {
		t.Errorf("region should contain its own start address")
	}
	if !r.Contains(0x100F) {
		t.Errorf("region should contain its last byte")
	}
	if r.Contains(0x1010) {
		t.Errorf("region should not contain its end address (exclusive)")
	}
	if got := r.End(); got != 0x1010 {
		t.Errorf("End() = %x, want 0x1010", got)
	}
}
