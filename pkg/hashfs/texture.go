package hashfs

import (
	"fmt"
	"math/bits"
)

// DxgiFormat mirrors the low byte of a DXGI_FORMAT enum value (Microsoft's
// public D3D pixel format enumeration). Only the values HashFS textures are
// observed to use are named here; any other 8-bit value round-trips fine,
// it is simply opaque to callers that switch on the named constants.
type DxgiFormat uint8

const (
	DxgiFormatUnknown         DxgiFormat = 0
	DxgiFormatR8G8B8A8UNORM   DxgiFormat = 28
	DxgiFormatR8G8B8A8UNORMSRGB DxgiFormat = 29
	DxgiFormatR8G8UNORM       DxgiFormat = 49
	DxgiFormatBC1UNORM        DxgiFormat = 71
	DxgiFormatBC1UNORMSRGB    DxgiFormat = 72
	DxgiFormatBC2UNORM        DxgiFormat = 74
	DxgiFormatBC2UNORMSRGB    DxgiFormat = 75
	DxgiFormatBC3UNORM        DxgiFormat = 77
	DxgiFormatBC3UNORMSRGB    DxgiFormat = 78
	DxgiFormatBC4UNORM        DxgiFormat = 80
	DxgiFormatBC5UNORM        DxgiFormat = 83
	DxgiFormatBC7UNORM        DxgiFormat = 98
	DxgiFormatBC7UNORMSRGB    DxgiFormat = 99
)

// TextureFilter is a magnification/minification/mip filter selector.
type TextureFilter uint8

const (
	FilterPoint TextureFilter = iota
	FilterLinear
)

// MipFilter is the 2-bit mip filtering mode.
type MipFilter uint8

const (
	MipFilterNone MipFilter = iota
	MipFilterPoint
	MipFilterLinear
)

// AddressMode is the 3-bit texture address (wrap) mode, matching the
// numbering of D3D11_TEXTURE_ADDRESS_MODE.
type AddressMode uint8

const (
	AddressWrap AddressMode = iota + 1
	AddressMirror
	AddressClamp
	AddressBorder
	AddressMirrorOnce
)

// TextureMetadata is the descriptor information fused into a v2 texture
// entry's metadata record (spec §3, §4.6).
type TextureMetadata struct {
	Width          uint32
	Height         uint32
	MipmapCount    uint32
	Format         DxgiFormat
	IsCube         bool
	FaceCount      uint32
	PitchAlignment uint32
	ImageAlignment uint32

	MagFilter TextureFilter
	MinFilter TextureFilter
	MipFilter MipFilter
	AddrU     AddressMode
	AddrV     AddressMode
	AddrW     AddressMode
}

// packWords bit-packs the descriptor into the two 32-bit words stored in
// the archive's Image chunk (spec §3's bit layout table).
func (t *TextureMetadata) packWords() (a, b uint32, err error) {
	if t.MipmapCount == 0 || t.MipmapCount > 16 {
		return 0, 0, fmt.Errorf("mipmapCount %d out of range [1,16]", t.MipmapCount)
	}
	if t.FaceCount == 0 || t.FaceCount > 64 {
		return 0, 0, fmt.Errorf("faceCount %d out of range [1,64]", t.FaceCount)
	}
	pitchLog2, err := log2PowerOfTwo(t.PitchAlignment)
	if err != nil {
		return 0, 0, fmt.Errorf("pitchAlignment: %w", err)
	}
	imageLog2, err := log2PowerOfTwo(t.ImageAlignment)
	if err != nil {
		return 0, 0, fmt.Errorf("imageAlignment: %w", err)
	}

	cubeFlag := uint32(0)
	if t.IsCube {
		cubeFlag = 1
	}

	var wa BitFlagField
	wa = wa.Set(0, 4, t.MipmapCount-1)
	wa = wa.Set(4, 8, uint32(t.Format))
	wa = wa.Set(12, 2, cubeFlag)
	wa = wa.Set(14, 6, t.FaceCount-1)
	wa = wa.Set(20, 4, uint32(pitchLog2))
	wa = wa.Set(24, 4, uint32(imageLog2))

	var wb BitFlagField
	wb = wb.SetBool(0, t.MagFilter == FilterLinear)
	wb = wb.SetBool(1, t.MinFilter == FilterLinear)
	wb = wb.Set(2, 2, uint32(t.MipFilter))
	wb = wb.Set(4, 3, uint32(t.AddrU))
	wb = wb.Set(7, 3, uint32(t.AddrV))
	wb = wb.Set(10, 3, uint32(t.AddrW))

	return uint32(wa), uint32(wb), nil
}

// unpackWords reconstructs a TextureMetadata's bit-packed fields from the
// archive's two words. Width/Height are filled in separately by the
// caller, since they are stored alongside as plain (value-1) uint16s.
func unpackWords(a, b uint32) *TextureMetadata {
	wa, wb := BitFlagField(a), BitFlagField(b)

	t := &TextureMetadata{
		MipmapCount:    wa.Get(0, 4) + 1,
		Format:         DxgiFormat(wa.Get(4, 8)),
		IsCube:         wa.Get(12, 2) != 0,
		FaceCount:      wa.Get(14, 6) + 1,
		PitchAlignment: 1 << wa.Get(20, 4),
		ImageAlignment: 1 << wa.Get(24, 4),

		MipFilter: MipFilter(wb.Get(2, 2)),
		AddrU:     AddressMode(wb.Get(4, 3)),
		AddrV:     AddressMode(wb.Get(7, 3)),
		AddrW:     AddressMode(wb.Get(10, 3)),
	}
	if wb.GetBool(0) {
		t.MagFilter = FilterLinear
	}
	if wb.GetBool(1) {
		t.MinFilter = FilterLinear
	}
	return t
}

// encodeDim encodes a stored width/height value as value-1 in 16 bits.
func encodeDim(v uint32) (uint16, error) {
	if v == 0 || v > 1<<16 {
		return 0, fmt.Errorf("dimension %d out of range [1,65536]", v)
	}
	return uint16(v - 1), nil
}

func decodeDim(v uint16) uint32 { return uint32(v) + 1 }

func log2PowerOfTwo(v uint32) (uint, error) {
	if v == 0 || v&(v-1) != 0 {
		return 0, fmt.Errorf("%d is not a power of two", v)
	}
	return uint(bits.TrailingZeros32(v)), nil
}
