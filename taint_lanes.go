package lochsemu

// Taint2, Taint4, Taint8 and Taint16 represent the byte lanes of a 16/32/
// 64/128-bit operand. Monomorphized per size rather than a single generic
// TaintN so operand size is known at compile time — mirrors the original's
// Taint<N> template instantiated at 1/2/4/8/16.
type (
	Taint2  [2]Taint
	Taint4  [4]Taint
	Taint8  [8]Taint
	Taint16 [16]Taint
)

// Shrink2 ORs all lanes into a single byte taint.
func Shrink2(t Taint2) Taint { return t[0] | t[1] }

// Shrink4 ORs all lanes into a single byte taint.
func Shrink4(t Taint4) Taint { return t[0] | t[1] | t[2] | t[3] }

// Shrink8 ORs all lanes into a single byte taint.
func Shrink8(t Taint8) Taint {
	var r Taint
	for _, l := range t {
		r |= l
	}
	return r
}

// Shrink16 ORs all lanes into a single byte taint.
func Shrink16(t Taint16) Taint {
	var r Taint
	for _, l := range t {
		r |= l
	}
	return r
}

// Extend2 replicates a byte taint across every lane.
func Extend2(t Taint) Taint2 { return Taint2{t, t} }

// Extend4 replicates a byte taint across every lane.
func Extend4(t Taint) Taint4 { return Taint4{t, t, t, t} }

// Extend8 replicates a byte taint across every lane.
func Extend8(t Taint) Taint8 {
	var r Taint8
	for i := range r {
		r[i] = t
	}
	return r
}

// Or4 lane-wise ORs two 4-lane operands, the shape used by every default
// binop propagation rule at dword size.
func Or4(a, b Taint4) Taint4 {
	return Taint4{a[0] | b[0], a[1] | b[1], a[2] | b[2], a[3] | b[3]}
}

// Or2 lane-wise ORs two 2-lane operands.
func Or2(a, b Taint2) Taint2 {
	return Taint2{a[0] | b[0], a[1] | b[1]}
}

// Or1 is scalar lane-wise or, for byte-sized operands.
func Or1(a, b Taint) Taint { return a | b }

// Reverse4 reverses the byte-lane order of a dword operand. Used by the
// (corrected) BSWAP handler — see DESIGN.md Open Question 1.
func Reverse4(t Taint4) Taint4 {
	return Taint4{t[3], t[2], t[1], t[0]}
}

// FromTaint4 slices a 2-lane sub-operand out of a 4-lane one, starting at
// byte offset off (0 or 2). Mirrors FromTaint<Src,Dst>.
func FromTaint4(t Taint4, off int) Taint2 {
	return Taint2{t[off], t[off+1]}
}

// ToTaint4 writes a 2-lane sub-operand into a 4-lane one at byte offset off,
// returning the updated value. Mirrors ToTaint<Src,Dst>.
func ToTaint4(dst Taint4, src Taint2, off int) Taint4 {
	dst[off] = src[0]
	dst[off+1] = src[1]
	return dst
}
