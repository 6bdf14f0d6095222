package hashfs

import (
	"fmt"
	"sort"
)

// entryStrideV2 is the fixed record size of a v2 entry table record
// (spec §4.5): hash(8) + metadataIndex(4) + metadataCount(2) + flags(2).
const entryStrideV2 = 16

const entryTableV2FlagDirectory = 1 << 0

// entryTableRowV2 is one raw v2 entry table record, before it has been
// joined with its metadata table chunks.
type entryTableRowV2 struct {
	Hash          uint64
	MetadataIndex uint32
	MetadataCount uint16
	Flags         uint16
}

func (r entryTableRowV2) IsDirectory() bool { return r.Flags&entryTableV2FlagDirectory != 0 }

// ReadEntryTableV2 decompresses and parses the v2 entry table. The record
// count is derived from the decompressed length, since the header only
// carries the table's compressed byte length. The returned slice is
// sorted by ascending metadataIndex (spec §4.5: "the array is
// additionally sorted by metadataIndex before walking the metadata table,
// so chunk-order side effects are deterministic").
func ReadEntryTableV2(compressed []byte, comp Compressor) ([]entryTableRowV2, error) {
	if comp == nil {
		comp = DefaultCompressor
	}
	raw, err := comp.Decompress(compressed)
	if err != nil {
		return nil, newErr(ErrCorruptTable, "Open", "", fmt.Errorf("decompressing entry table: %w", err))
	}
	if len(raw)%entryStrideV2 != 0 {
		return nil, newErr(ErrCorruptTable, "Open", "", fmt.Errorf("entry table length %d is not a multiple of %d", len(raw), entryStrideV2))
	}
	numEntries := len(raw) / entryStrideV2

	rows := make([]entryTableRowV2, numEntries)
	for i := range rows {
		rec := raw[i*entryStrideV2 : (i+1)*entryStrideV2]
		rows[i] = entryTableRowV2{
			Hash:          Endian.Uint64(rec[0:8]),
			MetadataIndex: Endian.Uint32(rec[8:12]),
			MetadataCount: Endian.Uint16(rec[12:14]),
			Flags:         Endian.Uint16(rec[14:16]),
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].MetadataIndex < rows[j].MetadataIndex })
	return rows, nil
}

// WriteEntryTableV2 serializes rows (already sorted by ascending hash, per
// the on-disk invariant) and compresses the result.
func WriteEntryTableV2(rows []entryTableRowV2, comp Compressor, level CompressionLevel) ([]byte, error) {
	if comp == nil {
		comp = DefaultCompressor
	}
	raw := make([]byte, len(rows)*entryStrideV2)
	for i, r := range rows {
		rec := raw[i*entryStrideV2 : (i+1)*entryStrideV2]
		Endian.PutUint64(rec[0:8], r.Hash)
		Endian.PutUint32(rec[8:12], r.MetadataIndex)
		Endian.PutUint16(rec[12:14], r.MetadataCount)
		Endian.PutUint16(rec[14:16], r.Flags)
	}
	compressed, err := comp.Compress(raw, level)
	if err != nil {
		return nil, newErr(ErrIO, "Save", "", fmt.Errorf("compressing entry table: %w", err))
	}
	return compressed, nil
}
