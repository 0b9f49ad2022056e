package lochsemu

import "strings"

// TaintWidth is the number of independent taint sources a single byte can
// carry. Mirrors Taint::Width from the original Arietis taint model.
const TaintWidth = 16

// Taint is a per-byte bitset of up to TaintWidth taint sources. Represented
// as a uint16 bitmask rather than the original's 16-byte array: both encode
// the same fixed-width bitmap, the mask form is just the idiomatic Go
// tightening of the same contract.
type Taint uint16

// IsTainted reports whether source bit i is set.
func (t Taint) IsTainted(i int) bool {
	return t&(1<<uint(i)) != 0
}

// Set marks source bit i.
func (t Taint) Set(i int) Taint {
	return t | (1 << uint(i))
}

// Reset clears source bit i.
func (t Taint) Reset(i int) Taint {
	return t &^ (1 << uint(i))
}

// SetAll marks every source bit.
func (t Taint) SetAll() Taint {
	return Taint((1 << TaintWidth) - 1)
}

// ResetAll clears every source bit.
func (t Taint) ResetAll() Taint {
	return 0
}

// IsAnyTainted reports whether any source bit is set.
func (t Taint) IsAnyTainted() bool {
	return t != 0
}

// Or is the bitwise combine used by every default propagation rule.
func (t Taint) Or(o Taint) Taint { return t | o }

// And is bitwise and.
func (t Taint) And(o Taint) Taint { return t & o }

// Xor is bitwise xor; xor of a taint with itself is always zero, which is
// what makes `xor eax, eax` clear a register's taint regardless of its
// prior value.
func (t Taint) Xor(o Taint) Taint { return t ^ o }

// ToString renders the taint as a TaintWidth-character '0'/'1' string, bit 0
// first, matching Taint::ToString's binary-text archive encoding.
func (t Taint) ToString() string {
	var b strings.Builder
	b.Grow(TaintWidth)
	for i := 0; i < TaintWidth; i++ {
		if t.IsTainted(i) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// TaintFromBinString parses the inverse of ToString. Characters beyond
// TaintWidth are ignored; a short string leaves the remaining bits clear.
func TaintFromBinString(s string) Taint {
	var t Taint
	for i := 0; i < len(s) && i < TaintWidth; i++ {
		if s[i] == '1' {
			t = t.Set(i)
		}
	}
	return t
}

// Region is a maximal contiguous run of set bits, as returned by
// GenerateRegions. Lo and Hi are inclusive bit indices.
type Region struct {
	Lo, Hi int
}

// GenerateRegions partitions the set bits into maximal contiguous runs, in
// ascending bit order.
func (t Taint) GenerateRegions() []Region {
	var regions []Region
	i := 0
	for i < TaintWidth {
		if !t.IsTainted(i) {
			i++
			continue
		}
		lo := i
		for i < TaintWidth && t.IsTainted(i) {
			i++
		}
		regions = append(regions, Region{Lo: lo, Hi: i - 1})
	}
	return regions
}

// TaintDesc records, for every taint source bit, the address it was
// introduced from. Only entries for bits actually in use are meaningful:
// if bit b is ever set on some Taint value, desc[b].SourceAddr is valid.
type TaintDesc struct {
	SourceAddr uint32
}

// TaintDescTable is the fixed TaintWidth-entry array of TaintDesc, owned by
// a TaintEngine alongside its live taint count.
type TaintDescTable [TaintWidth]TaintDesc
