package hashfs

import "testing"

func TestEntryTableV2RoundTrip(t *testing.T) {
	rows := []entryTableRowV2{
		{Hash: 10, MetadataIndex: 2, MetadataCount: 1, Flags: 0},
		{Hash: 20, MetadataIndex: 0, MetadataCount: 1, Flags: entryTableV2FlagDirectory},
		{Hash: 30, MetadataIndex: 1, MetadataCount: 1, Flags: 0},
	}

	compressed, err := WriteEntryTableV2(rows, DefaultCompressor, CompressionOptimal)
	if err != nil {
		t.Fatalf("WriteEntryTableV2: %v", err)
	}

	got, err := ReadEntryTableV2(compressed, DefaultCompressor)
	if err != nil {
		t.Fatalf("ReadEntryTableV2: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("got %d rows, want %d", len(got), len(rows))
	}

	// ReadEntryTableV2 must return rows sorted by ascending metadataIndex.
	for i := 1; i < len(got); i++ {
		if got[i-1].MetadataIndex > got[i].MetadataIndex {
			t.Fatalf("rows not sorted by metadataIndex: %+v", got)
		}
	}
	if got[0].Hash != 20 || got[1].Hash != 30 || got[2].Hash != 10 {
		t.Errorf("unexpected sort order: %+v", got)
	}
}

func TestEntryTableV2IsDirectory(t *testing.T) {
	r := entryTableRowV2{Flags: entryTableV2FlagDirectory}
	if !r.IsDirectory() {
		t.Error("expected IsDirectory true")
	}
	r2 := entryTableRowV2{Flags: 0}
	if r2.IsDirectory() {
		t.Error("expected IsDirectory false")
	}
}

func TestEntryTableV2RejectsBadLength(t *testing.T) {
	// Compress a byte stream whose decompressed length isn't a multiple
	// of the 16-byte stride.
	bogus, err := DefaultCompressor.Compress([]byte{1, 2, 3}, CompressionOptimal)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	_, err = ReadEntryTableV2(bogus, DefaultCompressor)
	if !IsKind(err, ErrCorruptTable) {
		t.Errorf("expected ErrCorruptTable, got %v", err)
	}
}

func TestEntryTableV2EmptyRoundTrip(t *testing.T) {
	compressed, err := WriteEntryTableV2(nil, DefaultCompressor, CompressionOptimal)
	if err != nil {
		t.Fatalf("WriteEntryTableV2: %v", err)
	}
	got, err := ReadEntryTableV2(compressed, DefaultCompressor)
	if err != nil {
		t.Fatalf("ReadEntryTableV2: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d rows, want 0", len(got))
	}
}
