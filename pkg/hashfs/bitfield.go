package hashfs

// BitFlagField is a fixed-width unsigned word treated as a sequence of
// single- and multi-bit fields, addressed by (offset, width). All
// multi-bit fields are little-endian within the word.
type BitFlagField uint32

// Get returns the width-bit field starting at bit offset. Widths outside
// [1,32] or offsets that would run past bit 31 are a programmer error and
// panic.
func (f BitFlagField) Get(offset, width uint) uint32 {
	checkFieldRange(offset, width)
	mask := uint32(1)<<width - 1
	return uint32(f>>offset) & mask
}

// Set returns a copy of f with the width-bit field at bit offset replaced
// by value's low width bits.
func (f BitFlagField) Set(offset, width uint, value uint32) BitFlagField {
	checkFieldRange(offset, width)
	mask := uint32(1)<<width - 1
	cleared := uint32(f) &^ (mask << offset)
	return BitFlagField(cleared | (value&mask)<<offset)
}

// GetBool is shorthand for Get(offset, 1) != 0.
func (f BitFlagField) GetBool(offset uint) bool {
	return f.Get(offset, 1) != 0
}

// SetBool is shorthand for Set(offset, 1, ...).
func (f BitFlagField) SetBool(offset uint, value bool) BitFlagField {
	v := uint32(0)
	if value {
		v = 1
	}
	return f.Set(offset, 1, v)
}

func checkFieldRange(offset, width uint) {
	if width == 0 || width > 32 {
		panic("hashfs: BitFlagField width out of range")
	}
	if offset+width > 32 {
		panic("hashfs: BitFlagField offset+width exceeds 32 bits")
	}
}
