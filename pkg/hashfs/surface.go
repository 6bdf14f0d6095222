package hashfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Extra DxgiFormat values used only to exercise the packed/planar branches
// of SurfaceInfo (spec §4.8); the block-compressed and generic branches use
// the constants declared in texture.go.
const (
	DxgiFormatR8G8B8G8UNORM DxgiFormat = 68 // packed, 4 bytes per 2 texels
	DxgiFormatNV12          DxgiFormat = 103 // planar, luma + half-height chroma
)

const (
	ddsMagic       = 0x20534444 // "DDS "
	ddsHeaderSize  = 124
	ddspfSize      = 32
	fourCCDX10     = 0x30315844 // "DX10"
	ddsCapsTexture = 0x1000
	ddsCaps2Cubemap = 0x200
	// dimensionTexture2D is D3D10_RESOURCE_DIMENSION_TEXTURE2D.
	dimensionTexture2D = 3
	// miscFlagTextureCube is DDS_RESOURCE_MISC_TEXTURECUBE.
	miscFlagTextureCube = 0x4
)

// Surface is a parsed DDS surface file: the fields the repacker needs plus
// the raw, tightly-packed pixel bytes following the header.
type Surface struct {
	Width       uint32
	Height      uint32
	MipmapCount uint32
	Format      DxgiFormat
	IsCube      bool
	FaceCount   uint32
	Pixels      []byte
}

// ParseDDS parses a DDS file, requiring the DX10 extended header (spec
// §4.8: "legacy fourcc-only surfaces are rejected").
func ParseDDS(r io.Reader) (*Surface, error) {
	var magicVal uint32
	if err := binary.Read(r, binary.LittleEndian, &magicVal); err != nil {
		return nil, newErr(ErrTexturePacking, "ConvertToArchive", "", fmt.Errorf("reading DDS magic: %w", err))
	}
	if magicVal != ddsMagic {
		return nil, newErr(ErrTexturePacking, "ConvertToArchive", "", fmt.Errorf("not a DDS file"))
	}

	header := make([]byte, ddsHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, newErr(ErrTexturePacking, "ConvertToArchive", "", fmt.Errorf("reading DDS header: %w", err))
	}

	height := Endian.Uint32(header[8:12])
	width := Endian.Uint32(header[12:16])
	mipMapCount := Endian.Uint32(header[24:28])
	if mipMapCount == 0 {
		mipMapCount = 1
	}

	ddspf := header[72:104]
	fourCC := Endian.Uint32(ddspf[4:8])
	caps2 := Endian.Uint32(header[108:112])

	if fourCC != fourCCDX10 {
		return nil, newErr(ErrTexturePacking, "ConvertToArchive", "", fmt.Errorf("surface has no DX10 extended header (legacy fourcc surfaces are unsupported)"))
	}

	dx10 := make([]byte, 20)
	if _, err := io.ReadFull(r, dx10); err != nil {
		return nil, newErr(ErrTexturePacking, "ConvertToArchive", "", fmt.Errorf("reading DX10 header: %w", err))
	}
	dxgiFormat := Endian.Uint32(dx10[0:4])
	miscFlag := Endian.Uint32(dx10[8:12])
	arraySize := Endian.Uint32(dx10[12:16])

	isCube := miscFlag&miscFlagTextureCube != 0 || caps2&ddsCaps2Cubemap != 0
	faceCount := uint32(1)
	if isCube {
		faceCount = 6
		if arraySize > 1 {
			faceCount = 6 * arraySize
		}
	} else if arraySize > 1 {
		faceCount = arraySize
	}

	pixels, err := io.ReadAll(r)
	if err != nil {
		return nil, newErr(ErrTexturePacking, "ConvertToArchive", "", fmt.Errorf("reading DDS pixel data: %w", err))
	}

	return &Surface{
		Width:       width,
		Height:      height,
		MipmapCount: mipMapCount,
		Format:      DxgiFormat(dxgiFormat),
		IsCube:      isCube,
		FaceCount:   faceCount,
		Pixels:      pixels,
	}, nil
}

// WriteDDS serializes s as a DX10 DDS file.
func WriteDDS(w io.Writer, s *Surface) error {
	var buf bytes.Buffer

	binary.Write(&buf, binary.LittleEndian, uint32(ddsMagic))

	header := make([]byte, ddsHeaderSize)
	Endian.PutUint32(header[0:4], ddsHeaderSize)
	Endian.PutUint32(header[4:8], 0x1|0x2|0x4|0x1000|0x80000) // CAPS|HEIGHT|WIDTH|PIXELFORMAT|MIPMAPCOUNT
	Endian.PutUint32(header[8:12], s.Height)
	Endian.PutUint32(header[12:16], s.Width)
	Endian.PutUint32(header[24:28], s.MipmapCount)

	ddspf := header[72:104]
	Endian.PutUint32(ddspf[0:4], ddspfSize)
	Endian.PutUint32(ddspf[4:8], fourCCDX10)

	caps := header[104:108]
	Endian.PutUint32(caps, ddsCapsTexture)
	if s.IsCube {
		Endian.PutUint32(header[108:112], ddsCaps2Cubemap)
	}

	buf.Write(header)

	dx10 := make([]byte, 20)
	Endian.PutUint32(dx10[0:4], uint32(s.Format))
	Endian.PutUint32(dx10[4:8], dimensionTexture2D)
	if s.IsCube {
		Endian.PutUint32(dx10[8:12], miscFlagTextureCube)
		Endian.PutUint32(dx10[12:16], 1)
	} else {
		Endian.PutUint32(dx10[12:16], 1)
	}
	buf.Write(dx10)
	buf.Write(s.Pixels)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return newErr(ErrIO, "ConvertFromArchive", "", fmt.Errorf("writing DDS: %w", err))
	}
	return nil
}

type formatKind int

const (
	formatGeneric formatKind = iota
	formatBlockCompressed
	formatPacked
	formatPlanar
)

// formatDetails classifies a DxgiFormat for pitch calculation (spec §4.8).
func formatDetails(f DxgiFormat) (kind formatKind, blockOrElemSize uint32, bitsPerPixel uint32, err error) {
	switch f {
	case DxgiFormatBC1UNORM, DxgiFormatBC1UNORMSRGB, DxgiFormatBC4UNORM:
		return formatBlockCompressed, 8, 0, nil
	case DxgiFormatBC2UNORM, DxgiFormatBC2UNORMSRGB,
		DxgiFormatBC3UNORM, DxgiFormatBC3UNORMSRGB,
		DxgiFormatBC5UNORM, DxgiFormatBC7UNORM, DxgiFormatBC7UNORMSRGB:
		return formatBlockCompressed, 16, 0, nil
	case DxgiFormatR8G8B8A8UNORM, DxgiFormatR8G8B8A8UNORMSRGB:
		return formatGeneric, 0, 32, nil
	case DxgiFormatR8G8UNORM:
		return formatGeneric, 0, 16, nil
	case DxgiFormatR8G8B8G8UNORM:
		return formatPacked, 4, 0, nil
	case DxgiFormatNV12:
		return formatPlanar, 0, 8, nil
	default:
		return 0, 0, 0, fmt.Errorf("unsupported surface format %d", f)
	}
}

// rowGroup is one contiguous run of same-pitch rows within a mip level: a
// block-compressed/packed/generic surface has exactly one, a planar
// surface has two (luma, then half-height chroma).
type rowGroup struct {
	RowPitch uint32
	NumRows  uint32
}

// SurfaceInfo computes the row groups making up one mip level of the given
// dimensions (spec §4.8).
func SurfaceInfo(format DxgiFormat, width, height uint32) ([]rowGroup, error) {
	if width == 0 {
		width = 1
	}
	if height == 0 {
		height = 1
	}
	kind, blockOrElemSize, bpp, err := formatDetails(format)
	if err != nil {
		return nil, err
	}

	switch kind {
	case formatBlockCompressed:
		blocksWide := (width + 3) / 4
		if blocksWide == 0 {
			blocksWide = 1
		}
		blocksHigh := (height + 3) / 4
		if blocksHigh == 0 {
			blocksHigh = 1
		}
		return []rowGroup{{RowPitch: blocksWide * blockOrElemSize, NumRows: blocksHigh}}, nil

	case formatPacked:
		rowPitch := ((width + 1) >> 1) * blockOrElemSize
		return []rowGroup{{RowPitch: rowPitch, NumRows: height}}, nil

	case formatPlanar:
		rowPitch := (width*bpp + 7) / 8
		return []rowGroup{
			{RowPitch: rowPitch, NumRows: height},
			{RowPitch: rowPitch, NumRows: height / 2},
		}, nil

	default: // formatGeneric
		rowPitch := (width*bpp + 7) / 8
		return []rowGroup{{RowPitch: rowPitch, NumRows: height}}, nil
	}
}

func mipDim(v uint32, level uint32) uint32 {
	d := v >> level
	if d == 0 {
		d = 1
	}
	return d
}

func alignUp(v, align uint32) uint32 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// ConvertToArchive realigns tightly-packed surface bytes into the
// archive's pitch/image-alignment layout (spec §4.8). imageAlignment
// padding applies once per mip level; pitchAlignment applies to every row
// within every row group of that mip (a planar format like NV12 has two
// row groups per mip: luma, then half-height chroma).
func ConvertToArchive(faceCount, mipmapCount uint32, format DxgiFormat, width, height uint32, src []byte, pitchAlignment, imageAlignment uint32) ([]byte, error) {
	dst := make([]byte, 0, len(src))
	srcOff := 0

	err := walkMips(faceCount, mipmapCount, width, height, format, func(groups []rowGroup) error {
		mipStart := alignUp(uint32(len(dst)), imageAlignment)
		growTo(&dst, int(mipStart))
		off := mipStart

		for _, g := range groups {
			for row := uint32(0); row < g.NumRows; row++ {
				off = alignUp(off, pitchAlignment)
				growTo(&dst, int(off)+int(g.RowPitch))
				if srcOff+int(g.RowPitch) > len(src) {
					return newErr(ErrTexturePacking, "ConvertToArchive", "", fmt.Errorf("surface data truncated at %d bytes", len(src)))
				}
				copy(dst[off:int(off)+int(g.RowPitch)], src[srcOff:srcOff+int(g.RowPitch)])
				srcOff += int(g.RowPitch)
				off += g.RowPitch
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dst, nil
}

// ConvertFromArchive is the exact inverse of ConvertToArchive: it pads
// source (archive) offsets instead of destination offsets (spec §4.8).
func ConvertFromArchive(faceCount, mipmapCount uint32, format DxgiFormat, width, height uint32, packed []byte, pitchAlignment, imageAlignment uint32) ([]byte, error) {
	dst := make([]byte, 0, len(packed))
	srcOff := uint32(0)

	err := walkMips(faceCount, mipmapCount, width, height, format, func(groups []rowGroup) error {
		srcOff = alignUp(srcOff, imageAlignment)

		for _, g := range groups {
			for row := uint32(0); row < g.NumRows; row++ {
				srcOff = alignUp(srcOff, pitchAlignment)
				if int(srcOff)+int(g.RowPitch) > len(packed) {
					return newErr(ErrTexturePacking, "ConvertFromArchive", "", fmt.Errorf("repacked surface truncated at %d bytes", len(packed)))
				}
				dst = append(dst, packed[srcOff:srcOff+g.RowPitch]...)
				srcOff += g.RowPitch
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dst, nil
}

func walkMips(faceCount, mipmapCount, width, height uint32, format DxgiFormat, visitMip func(groups []rowGroup) error) error {
	for face := uint32(0); face < faceCount; face++ {
		for mip := uint32(0); mip < mipmapCount; mip++ {
			w := mipDim(width, mip)
			h := mipDim(height, mip)
			groups, err := SurfaceInfo(format, w, h)
			if err != nil {
				return err
			}
			var nonEmpty []rowGroup
			for _, g := range groups {
				if g.NumRows > 0 {
					nonEmpty = append(nonEmpty, g)
				}
			}
			if len(nonEmpty) == 0 {
				continue
			}
			if err := visitMip(nonEmpty); err != nil {
				return err
			}
		}
	}
	return nil
}

func growTo(b *[]byte, n int) {
	if len(*b) < n {
		*b = append(*b, make([]byte, n-len(*b))...)
	}
}
