package hashfs

import (
	"encoding/binary"
	"fmt"
	"io"
)

// entryStrideV1 is the fixed record size of a v1 entry table record
// (spec §4.4): hash(8) + offset(8) + flags(4) + crc(4) + size(4) +
// compressedSize(4).
const entryStrideV1 = 32

// ReadEntryTableV1 parses the v1 entry table. When forceEntryTableAtEnd is
// set, the table is located at fileLength - numEntries*32 instead of
// header.StartOffset, working around archives with a corrupted header
// offset (spec §4.4).
func ReadEntryTableV1(r io.ReaderAt, fileLength int64, header *HeaderV1, forceEntryTableAtEnd bool) ([]*EntryV1, error) {
	tableStart := int64(header.StartOffset)
	if forceEntryTableAtEnd {
		tableStart = fileLength - int64(header.NumEntries)*entryStrideV1
	}
	if tableStart < 0 || uint64(header.NumEntries)*entryStrideV1 > uint64(fileLength) {
		return nil, newErr(ErrCorruptTable, "Open", "", fmt.Errorf("entry table start %d out of range", tableStart))
	}

	buf := make([]byte, int64(header.NumEntries)*entryStrideV1)
	if _, err := r.ReadAt(buf, tableStart); err != nil {
		return nil, newErr(ErrCorruptTable, "Open", "", fmt.Errorf("reading entry table: %w", err))
	}

	entries := make([]*EntryV1, header.NumEntries)
	for i := range entries {
		rec := buf[i*entryStrideV1 : (i+1)*entryStrideV1]
		e := &EntryV1{
			HashValue:           Endian.Uint64(rec[0:8]),
			OffsetValue:         Endian.Uint64(rec[8:16]),
			Flags:               Endian.Uint32(rec[16:20]),
			CRC32:               Endian.Uint32(rec[20:24]),
			SizeValue:           Endian.Uint32(rec[24:28]),
			CompressedSizeValue: Endian.Uint32(rec[28:32]),
		}
		if e.IsEncrypted() {
			return nil, newErr(ErrUnsupportedFeature, "Open", "", fmt.Errorf("entry %016X is encrypted", e.HashValue))
		}
		entries[i] = e
	}
	return entries, nil
}

// WriteEntryTableV1 writes entries in the order given. Callers must sort by
// ascending hash beforehand (spec invariant, §3).
func WriteEntryTableV1(w io.Writer, entries []*EntryV1) error {
	buf := make([]byte, entryStrideV1)
	for _, e := range entries {
		binary.LittleEndian.PutUint64(buf[0:8], e.HashValue)
		binary.LittleEndian.PutUint64(buf[8:16], e.OffsetValue)
		binary.LittleEndian.PutUint32(buf[16:20], e.Flags)
		binary.LittleEndian.PutUint32(buf[20:24], e.CRC32)
		binary.LittleEndian.PutUint32(buf[24:28], e.SizeValue)
		binary.LittleEndian.PutUint32(buf[28:32], e.CompressedSizeValue)
		if _, err := w.Write(buf); err != nil {
			return newErr(ErrIO, "Save", "", fmt.Errorf("writing entry %016X: %w", e.HashValue, err))
		}
	}
	return nil
}
