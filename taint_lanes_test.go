package lochsemu

import "testing"

func TestShrinkExtendRoundTrip(t *testing.T) {
	var src Taint = Taint(1).Set(4)
	if got := Shrink4(Extend4(src)); got != src {
		t.Errorf("Shrink4(Extend4(%v)) = %v, want %v", src, got, src)
	}
	if got := Shrink2(Extend2(src)); got != src {
		t.Errorf("Shrink2(Extend2(%v)) = %v, want %v", src, got, src)
	}
	if got := Shrink8(Extend8(src)); got != src {
		t.Errorf("Shrink8(Extend8(%v)) = %v, want %v", src, got, src)
	}
}

func TestOr4(t *testing.T) {
	a := Taint4{1, 0, 0, 0}
	b := Taint4{0, 2, 0, 4}
	got := Or4(a, b)
	want := Taint4{1, 2, 0, 4}
	if got != want {
		t.Fatalf("Or4(%v, %v) = %v, want %v", a, b, got, want)
	}
}

func TestReverse4(t *testing.T) {
	t4 := Taint4{1, 2, 3, 4}
	got := Reverse4(t4)
	want := Taint4{4, 3, 2, 1}
	if got != want {
		t.Fatalf("Reverse4(%v) = %v, want %v", t4, got, want)
	}
	if got := Reverse4(Reverse4(t4)); got != t4 {
		t.Fatalf("Reverse4 is not its own inverse: got %v, want %v", got, t4)
	}
}

func TestFromToTaint4(t *testing.T) {
	t4 := Taint4{1, 2, 3, 4}
	low := FromTaint4(t4, 0)
	high := FromTaint4(t4, 2)
	if low != (Taint2{1, 2}) {
		t.Errorf("FromTaint4(off=0) = %v, want {1,2}", low)
	}
	if high != (Taint2{3, 4}) {
		t.Errorf("FromTaint4(off=2) = %v, want {3,4}", high)
	}

	updated := ToTaint4(t4, Taint2{9, 9}, 0)
	want := Taint4{9, 9, 3, 4}
	if updated != want {
		t.Fatalf("ToTaint4(off=0) = %v, want %v", updated, want)
	}
}
