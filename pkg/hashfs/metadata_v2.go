package hashfs

import (
	"fmt"
)

// ChunkType classifies a v2 metadata chunk-type descriptor (spec §4.6).
type ChunkType byte

const (
	ChunkImage           ChunkType = 1
	ChunkSample          ChunkType = 2
	ChunkMipProxy        ChunkType = 3
	ChunkInlineDirectory ChunkType = 4
	ChunkUnknown6        ChunkType = 6
	ChunkPlain           ChunkType = 128
	ChunkDirectory       ChunkType = 129
	ChunkMip0            ChunkType = 130
	ChunkMip1            ChunkType = 131
	ChunkMipTail         ChunkType = 132
)

// metaBlockSize is the 4-byte block stride metadata-table indices are
// expressed in (spec §4.6).
const metaBlockSize = 4

// blockAdvance is the per-component size, in 4-byte blocks, used when the
// writer lays out successive metadata components (spec §4.6). Sub-parts of
// a compound entry (e.g. an Image entry's word-pair, main-metadata record,
// and trailing reserved region) are each one of these components.
func blockAdvance(t ChunkType) int {
	switch t {
	case ChunkPlain, ChunkDirectory, ChunkMipTail:
		return 4
	case ChunkImage, ChunkUnknown6:
		return 2
	case ChunkSample:
		return 1
	default:
		return 0
	}
}

// mainMetadata is the 16-byte record described in spec §4.6.
type mainMetadata struct {
	CompressedSize uint32 // up to 28 bits
	Compressed     bool
	Flags1Reserved byte // remaining 3 bits of the high nibble, preserved verbatim
	Size           uint32 // up to 28 bits
	Flags2Reserved byte // full reserved high nibble, preserved verbatim
	Unknown        uint32
	OffsetBlock    uint32
}

func decodeMainMetadata(b []byte) (mainMetadata, error) {
	if len(b) < 16 {
		return mainMetadata{}, fmt.Errorf("main-metadata record truncated: %d bytes", len(b))
	}
	compressedLo := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	msbFlags1 := b[3]
	sizeLo := uint32(b[4]) | uint32(b[5])<<8 | uint32(b[6])<<16
	msbFlags2 := b[7]
	unknown := Endian.Uint32(b[8:12])
	offsetBlock := Endian.Uint32(b[12:16])

	nibble1 := msbFlags1 >> 4
	nibble2 := msbFlags2 >> 4

	m := mainMetadata{
		CompressedSize: compressedLo | uint32(msbFlags1&0x0F)<<24,
		Compressed:     nibble1&0x1 != 0,
		Flags1Reserved: nibble1 &^ 0x1,
		Size:           sizeLo | uint32(msbFlags2&0x0F)<<24,
		Flags2Reserved: nibble2,
		Unknown:        unknown,
		OffsetBlock:    offsetBlock,
	}
	return m, nil
}

func encodeMainMetadata(m mainMetadata) []byte {
	b := make([]byte, 16)
	b[0] = byte(m.CompressedSize)
	b[1] = byte(m.CompressedSize >> 8)
	b[2] = byte(m.CompressedSize >> 16)

	nibble1 := m.Flags1Reserved & 0x0F
	if m.Compressed {
		nibble1 |= 0x1
	}
	b[3] = nibble1<<4 | byte(m.CompressedSize>>24)&0x0F

	b[4] = byte(m.Size)
	b[5] = byte(m.Size >> 8)
	b[6] = byte(m.Size >> 16)
	b[7] = (m.Flags2Reserved&0x0F)<<4 | byte(m.Size>>24)&0x0F

	Endian.PutUint32(b[8:12], m.Unknown)
	Endian.PutUint32(b[12:16], m.OffsetBlock)
	return b
}

func (m mainMetadata) offset() uint64 { return uint64(m.OffsetBlock) * 16 }

// chunkHeader is a single 4-byte (u24 nextMetaIndex, u8 chunkType) chunk-type
// descriptor.
type chunkHeader struct {
	NextMetaIndex uint32
	Type          ChunkType
}

func decodeChunkHeader(b []byte) chunkHeader {
	return chunkHeader{
		NextMetaIndex: uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16,
		Type:          ChunkType(b[3]),
	}
}

func encodeChunkHeader(h chunkHeader) []byte {
	b := make([]byte, 4)
	b[0] = byte(h.NextMetaIndex)
	b[1] = byte(h.NextMetaIndex >> 8)
	b[2] = byte(h.NextMetaIndex >> 16)
	b[3] = byte(h.Type)
	return b
}

// parseEntryV2Metadata reads the metadata-table region for one v2 entry,
// classifying and decoding it by its leading chunk type (spec §4.6).
func parseEntryV2Metadata(meta []byte, row entryTableRowV2) (*EntryV2, error) {
	if row.MetadataCount == 0 {
		return nil, newErr(ErrCorruptTable, "Open", "", fmt.Errorf("entry %016X has zero metadataCount", row.Hash))
	}

	cursor := int(row.MetadataIndex) * metaBlockSize
	headers := make([]chunkHeader, row.MetadataCount)
	for i := range headers {
		if cursor+4 > len(meta) {
			return nil, newErr(ErrCorruptTable, "Open", "", fmt.Errorf("entry %016X: truncated chunk header", row.Hash))
		}
		headers[i] = decodeChunkHeader(meta[cursor : cursor+4])
		cursor += 4
	}

	e := &EntryV2{HashValue: row.Hash, IsDirValue: row.IsDirectory()}

	switch headers[0].Type {
	case ChunkPlain, ChunkDirectory:
		mm, err := readMainMetadataAt(meta, &cursor, row.Hash)
		if err != nil {
			return nil, err
		}
		fillPlain(e, mm)

		if row.MetadataCount >= 2 && headers[1].Type == ChunkUnknown6 {
			if cursor+8 > len(meta) {
				return nil, newErr(ErrCorruptTable, "Open", "", fmt.Errorf("entry %016X: truncated Unknown6 trailing region", row.Hash))
			}
			cursor += 8 // .pmg sibling's reserved trailing zeros, preserved-on-write but not surfaced
		}

	case ChunkImage:
		if cursor+12 > len(meta) {
			return nil, newErr(ErrCorruptTable, "Open", "", fmt.Errorf("entry %016X: truncated image header", row.Hash))
		}
		width := decodeDim(Endian.Uint16(meta[cursor : cursor+2]))
		height := decodeDim(Endian.Uint16(meta[cursor+2 : cursor+4]))
		wa := Endian.Uint32(meta[cursor+4 : cursor+8])
		wb := Endian.Uint32(meta[cursor+8 : cursor+12])
		cursor += 12

		mm, err := readMainMetadataAt(meta, &cursor, row.Hash)
		if err != nil {
			return nil, err
		}
		if cursor+8 > len(meta) {
			return nil, newErr(ErrCorruptTable, "Open", "", fmt.Errorf("entry %016X: truncated image reserved region", row.Hash))
		}
		cursor += 8 // reserved region, preserved-on-write but not surfaced

		tex := unpackWords(wa, wb)
		tex.Width = width
		tex.Height = height

		fillPlain(e, mm)
		// Texture entries store only compressedSize on disk (spec §3):
		// size equals compressedSize since the archive stores only the
		// repacked surface bytes.
		e.SizeValue = e.CompressedSizeValue
		e.Texture = tex

	default:
		return nil, newErr(ErrCorruptTable, "Open", "", fmt.Errorf("entry %016X: unsupported chunk type %d", row.Hash, headers[0].Type))
	}

	e.metadataIndex = row.MetadataIndex
	e.metadataCount = row.MetadataCount
	return e, nil
}

func readMainMetadataAt(meta []byte, cursor *int, hash uint64) (mainMetadata, error) {
	if *cursor+16 > len(meta) {
		return mainMetadata{}, newErr(ErrCorruptTable, "Open", "", fmt.Errorf("entry %016X: truncated main-metadata record", hash))
	}
	mm, err := decodeMainMetadata(meta[*cursor : *cursor+16])
	if err != nil {
		return mainMetadata{}, newErr(ErrCorruptTable, "Open", "", fmt.Errorf("entry %016X: %w", hash, err))
	}
	*cursor += 16
	return mm, nil
}

func fillPlain(e *EntryV2, mm mainMetadata) {
	e.OffsetValue = mm.offset()
	e.SizeValue = mm.Size
	e.CompressedSizeValue = mm.CompressedSize
	e.CompressedFlag = mm.Compressed
	e.Unknown = mm.Unknown
	e.ReservedFlags1 = mm.Flags1Reserved
	e.ReservedFlags2 = mm.Flags2Reserved
}

// metadataTableBuilder accumulates v2 metadata-table bytes in insertion
// order (spec §5: "metadata-table entries written in insertion order
// because chunk-index chains depend on it").
type metadataTableBuilder struct {
	buf []byte
}

func newMetadataTableBuilder() *metadataTableBuilder {
	return &metadataTableBuilder{}
}

func (b *metadataTableBuilder) blockIndex() uint32 { return uint32(len(b.buf) / metaBlockSize) }

func (b *metadataTableBuilder) appendHeader(nextIndex uint32, t ChunkType) {
	b.buf = append(b.buf, encodeChunkHeader(chunkHeader{NextMetaIndex: nextIndex, Type: t})...)
}

func (b *metadataTableBuilder) appendMainMetadata(mm mainMetadata) {
	b.buf = append(b.buf, encodeMainMetadata(mm)...)
}

// addPlain appends a Plain or Directory entry and returns its
// (metadataIndex, metadataCount) for the entry table row.
func (b *metadataTableBuilder) addPlain(t ChunkType, mm mainMetadata) (uint32, uint16) {
	start := b.blockIndex()
	b.appendHeader(start+uint32(blockAdvance(t)), t)
	b.appendMainMetadata(mm)
	return start, 1
}

// addPlainWithUnknown6 appends a Plain entry followed by the Unknown6 sibling
// header and its 8 trailing reserved zero bytes carried by .pmg archive
// members (spec §4.6), returning its (metadataIndex, metadataCount).
func (b *metadataTableBuilder) addPlainWithUnknown6(mm mainMetadata) (uint32, uint16) {
	start := b.blockIndex()
	afterPlain := start + uint32(blockAdvance(ChunkPlain))
	b.appendHeader(afterPlain, ChunkPlain)
	b.appendHeader(afterPlain+uint32(blockAdvance(ChunkUnknown6)), ChunkUnknown6)
	b.appendMainMetadata(mm)
	b.buf = append(b.buf, make([]byte, 8)...)
	return start, 2
}

// addImage appends an Image entry (word-pair + main-metadata + reserved
// region) and returns its (metadataIndex, metadataCount).
func (b *metadataTableBuilder) addImage(width, height uint32, wa, wb uint32, mm mainMetadata) (uint32, uint16, error) {
	w16, err := encodeDim(width)
	if err != nil {
		return 0, 0, err
	}
	h16, err := encodeDim(height)
	if err != nil {
		return 0, 0, err
	}

	start := b.blockIndex()
	b.appendHeader(start+uint32(blockAdvance(ChunkImage)), ChunkImage)

	dims := make([]byte, 4)
	Endian.PutUint16(dims[0:2], w16)
	Endian.PutUint16(dims[2:4], h16)
	b.buf = append(b.buf, dims...)

	words := make([]byte, 8)
	Endian.PutUint32(words[0:4], wa)
	Endian.PutUint32(words[4:8], wb)
	b.buf = append(b.buf, words...)

	b.appendMainMetadata(mm)

	reserved := make([]byte, 8)
	reserved[7] = 0x30 // observed constant, design note §9c
	b.buf = append(b.buf, reserved...)

	return start, 1, nil
}

func (b *metadataTableBuilder) bytes() []byte { return b.buf }
