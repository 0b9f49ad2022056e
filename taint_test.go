package lochsemu

import "testing"

func TestTaintSetReset(t *testing.T) {
	var tn Taint
	tn = tn.Set(0)
	tn = tn.Set(3)
	if !tn.IsTainted(0) || !tn.IsTainted(3) {
		t.Fatalf("expected bits 0 and 3 set, got %016b", tn)
	}
	if tn.IsTainted(1) {
		t.Fatalf("bit 1 should be clear, got %016b", tn)
	}
	tn = tn.Reset(0)
	if tn.IsTainted(0) {
		t.Fatalf("bit 0 should have been cleared")
	}
	if !tn.IsTainted(3) {
		t.Fatalf("bit 3 should remain set after resetting bit 0")
	}
}

func TestTaintSetAllResetAll(t *testing.T) {
	tn := Taint(0).SetAll()
	for i := 0; i < TaintWidth; i++ {
		if !tn.IsTainted(i) {
			t.Fatalf("SetAll left bit %d clear", i)
		}
	}
	tn = tn.ResetAll()
	if tn.IsAnyTainted() {
		t.Fatalf("ResetAll left some bit set: %016b", tn)
	}
}

func TestTaintStringRoundTrip(t *testing.T) {
	cases := []Taint{0, 1, 0xFFFF, 0x8001, Taint(1).Set(5).Set(9)}
	for _, want := range cases {
		s := want.ToString()
		if len(s) != TaintWidth {
			t.Fatalf("ToString length = %d, want %d", len(s), TaintWidth)
		}
		got := TaintFromBinString(s)
		if got != want {
			t.Errorf("round trip %016b -> %q -> %016b", want, s, got)
		}
	}
}

func TestTaintGenerateRegions(t *testing.T) {
	var tn Taint
	tn = tn.Set(0).Set(1).Set(2).Set(5).Set(7).Set(8)
	regions := tn.GenerateRegions()
	want := []Region{{Lo: 0, Hi: 2}, {Lo: 5, Hi: 5}, {Lo: 7, Hi: 8}}
	if len(regions) != len(want) {
		t.Fatalf("got %d regions, want %d: %+v", len(regions), len(want), regions)
	}
	for i, r := range want {
		if regions[i] != r {
			t.Errorf("region %d = %+v, want %+v", i, regions[i], r)
		}
	}
}

func TestTaintGenerateRegionsEmpty(t *testing.T) {
	if regions := Taint(0).GenerateRegions(); regions != nil {
		t.Fatalf("expected nil regions for untainted value, got %+v", regions)
	}
}
