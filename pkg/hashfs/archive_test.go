package hashfs

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
)

// TestWriterPreservesInsertionOrderForPayloadPlacement guards against
// physically laying out payloads (and, for v2, metadata-table records) in
// hash order instead of insertion order. Paths are chosen so their hashes
// sort in a different order than they were registered.
func TestWriterPreservesInsertionOrderForPayloadPlacement(t *testing.T) {
	paths := []string{"/zzz_first.txt", "/aaa_second.txt", "/mmm_third.txt"}

	hashes := make(map[uint64]string, len(paths))
	for _, p := range paths {
		hashes[HashPath(p, 0, nil)] = p
	}
	sortedByHash := append([]string(nil), paths...)
	sort.Slice(sortedByHash, func(i, j int) bool {
		return HashPath(sortedByHash[i], 0, nil) < HashPath(sortedByHash[j], 0, nil)
	})
	if reflect.DeepEqual(sortedByHash, paths) {
		t.Fatalf("test fixture is degenerate: hash order already matches insertion order for %v", paths)
	}

	for _, version := range []Version{VersionV1, VersionV2} {
		w := NewWriter(version)
		for i, p := range paths {
			if err := w.AddBytes(p, bytes.Repeat([]byte{'a'}, 8+i)); err != nil {
				t.Fatalf("AddBytes: %v", err)
			}
		}

		out := filepath.Join(t.TempDir(), "order.scs")
		if err := w.SaveToPath(out); err != nil {
			t.Fatalf("SaveToPath: %v", err)
		}

		r, err := Open(out)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}

		var entries []Entry
		for _, e := range r.Entries() {
			if !e.IsDirectory() {
				entries = append(entries, e)
			}
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Offset() < entries[j].Offset() })

		got := make([]string, len(entries))
		for i, e := range entries {
			p, ok := hashes[e.Hash()]
			if !ok {
				t.Fatalf("version %d: entry hash %d has no matching registered path", version, e.Hash())
			}
			got[i] = p
		}
		if !reflect.DeepEqual(got, paths) {
			t.Errorf("version %d: payloads physically ordered as %v, want insertion order %v", version, got, paths)
		}
		r.Close()
	}
}

func TestArchiveV1PinnedScenarioHashes(t *testing.T) {
	const rootHash = 0x0DAC6B40444905D0
	const modelHash = 0x3C6369BC6EFDD668

	modelBytes := bytes.Repeat([]byte("truck definitions, truck definitions, "), 4)

	w := NewWriter(VersionV1, WithSalt(42))
	if err := w.AddBytes("/def/world/model.tests.sii", modelBytes); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}
	if err := w.AddBytes("/def/world/other.sii", []byte("other")); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}

	out := filepath.Join(t.TempDir(), "pinned.scs")
	if err := w.SaveToPath(out); err != nil {
		t.Fatalf("SaveToPath: %v", err)
	}

	r, err := Open(out)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if got := r.HashPath("/"); got != rootHash {
		t.Errorf("root directory hash = %#x, want %#x", got, uint64(rootHash))
	}

	e, err := r.GetEntry("/def/world/model.tests.sii")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if e.Hash() != modelHash {
		t.Errorf("model.tests.sii hash = %#x, want %#x", e.Hash(), uint64(modelHash))
	}
	if !e.IsCompressed() {
		t.Error("expected model.tests.sii to be marked compressed")
	}

	got, err := r.ReadAllText("/def/world/model.tests.sii")
	if err != nil {
		t.Fatalf("ReadAllText: %v", err)
	}
	if got != string(modelBytes) {
		t.Error("extracted bytes do not match the original payload")
	}
}

func TestArchiveV1RoundTrip(t *testing.T) {
	w := NewWriter(VersionV1, WithChecksums(true))
	if err := w.AddBytes("/def/world/model.sii", []byte("truck definitions")); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}
	big := bytes.Repeat([]byte("x"), 4096)
	if err := w.AddBytes("/def/world/big.sii", big); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}

	out := filepath.Join(t.TempDir(), "archive.scs")
	if err := w.SaveToPath(out); err != nil {
		t.Fatalf("SaveToPath: %v", err)
	}

	r, err := Open(out)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.Version() != VersionV1 {
		t.Fatalf("Version() = %d, want VersionV1", r.Version())
	}

	if !r.FileExists("/def/world/model.sii") {
		t.Error("expected model.sii to exist")
	}
	if !r.DirectoryExists("/def/world") {
		t.Error("expected /def/world to exist as a directory")
	}
	if !r.DirectoryExists("/") {
		t.Error("expected root directory to exist")
	}

	text, err := r.ReadAllText("/def/world/model.sii")
	if err != nil {
		t.Fatalf("ReadAllText: %v", err)
	}
	if text != "truck definitions" {
		t.Errorf("ReadAllText = %q, want %q", text, "truck definitions")
	}

	// The 4096-byte file exceeds the compression threshold and is
	// all-'x', so it must have been stored compressed.
	e, err := r.GetEntry("/def/world/big.sii")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if !e.IsCompressed() {
		t.Error("expected big.sii to be stored compressed")
	}
	bigParts, err := r.Extract("/def/world/big.sii")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !bytes.Equal(bigParts[0], big) {
		t.Error("decompressed payload mismatch")
	}

	for hash, e := range r.Entries() {
		if e.Hash() != hash {
			t.Errorf("entry map key %d != entry.Hash() %d", hash, e.Hash())
		}
	}

	listing, err := r.GetDirectoryListing("/def/world", false, true)
	if err != nil {
		t.Fatalf("GetDirectoryListing: %v", err)
	}
	if len(listing) != 2 {
		t.Fatalf("expected 2 entries under /def/world, got %d: %+v", len(listing), listing)
	}
}

func TestArchiveHashConsistency(t *testing.T) {
	w := NewWriter(VersionV1, WithSalt(7))
	if err := w.AddBytes("/a/b/c.txt", []byte("hi")); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}
	out := filepath.Join(t.TempDir(), "a.scs")
	if err := w.SaveToPath(out); err != nil {
		t.Fatalf("SaveToPath: %v", err)
	}
	r, err := Open(out)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.Salt() != 7 {
		t.Fatalf("Salt() = %d, want 7", r.Salt())
	}
	e, err := r.GetEntry("/a/b/c.txt")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	want := HashPath("/a/b/c.txt", 7, nil)
	if e.Hash() != want {
		t.Errorf("hash = %d, want %d", e.Hash(), want)
	}
}

func buildDDS(t *testing.T, width, height, mips uint32) []byte {
	t.Helper()
	groups, err := SurfaceInfo(DxgiFormatBC1UNORMSRGB, width, height)
	if err != nil {
		t.Fatalf("SurfaceInfo: %v", err)
	}
	var pixels []byte
	for mip := uint32(0); mip < mips; mip++ {
		w, h := mipDim(width, mip), mipDim(height, mip)
		g, err := SurfaceInfo(DxgiFormatBC1UNORMSRGB, w, h)
		if err != nil {
			t.Fatalf("SurfaceInfo: %v", err)
		}
		n := int(g[0].RowPitch * g[0].NumRows)
		chunk := make([]byte, n)
		for i := range chunk {
			chunk[i] = byte(mip*13 + uint32(i))
		}
		pixels = append(pixels, chunk...)
	}
	_ = groups

	s := &Surface{
		Width: width, Height: height, MipmapCount: mips,
		Format: DxgiFormatBC1UNORMSRGB, FaceCount: 1,
		Pixels: pixels,
	}
	var buf bytes.Buffer
	if err := WriteDDS(&buf, s); err != nil {
		t.Fatalf("WriteDDS: %v", err)
	}
	return buf.Bytes()
}

func TestArchiveV2TextureRoundTrip(t *testing.T) {
	w := NewWriter(VersionV2)

	desc := &TobjDescriptor{
		Kind:      TextureMap2D,
		AddrU:     AddressWrap,
		AddrV:     AddressWrap,
		AddrW:     AddressClamp,
		MagFilter: FilterLinear,
		MinFilter: FilterLinear,
		MipFilter: MipFilterLinear,
	}
	descBytes, err := DefaultDescriptorCodec.Encode(desc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ddsBytes := buildDDS(t, 256, 256, 9)

	if err := w.AddBytes("/material/road/asphalt.tobj", descBytes); err != nil {
		t.Fatalf("AddBytes(.tobj): %v", err)
	}
	if err := w.AddBytes("/material/road/asphalt.dds", ddsBytes); err != nil {
		t.Fatalf("AddBytes(.dds): %v", err)
	}
	if err := w.AddBytes("/material/road/readme.txt", []byte("info")); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}

	out := filepath.Join(t.TempDir(), "textures.scs")
	if err := w.SaveToPath(out); err != nil {
		t.Fatalf("SaveToPath: %v", err)
	}

	r, err := Open(out)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.Version() != VersionV2 {
		t.Fatalf("Version() = %d, want VersionV2", r.Version())
	}

	// The sibling .dds must not appear as an independent archive entry.
	if r.FileExists("/material/road/asphalt.dds") {
		t.Error("sibling .dds surface should have been fused, not registered independently")
	}

	e, err := r.GetEntry("/material/road/asphalt.tobj")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	v2, ok := e.(*EntryV2)
	if !ok || !v2.IsTexture() {
		t.Fatalf("expected a texture EntryV2, got %+v", e)
	}
	if v2.Texture.Width != 256 || v2.Texture.Height != 256 || v2.Texture.MipmapCount != 9 {
		t.Errorf("texture metadata = %+v", v2.Texture)
	}
	if v2.Texture.IsCube {
		t.Error("expected non-cube texture")
	}
	if v2.Texture.PitchAlignment != 256 || v2.Texture.ImageAlignment != 512 {
		t.Errorf("PitchAlignment/ImageAlignment = %d/%d, want 256/512 (writer default)",
			v2.Texture.PitchAlignment, v2.Texture.ImageAlignment)
	}

	parts, err := r.Extract("/material/road/asphalt.tobj")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts for a texture entry, got %d", len(parts))
	}

	gotDesc, err := DefaultDescriptorCodec.Decode(parts[0])
	if err != nil {
		t.Fatalf("Decode extracted descriptor: %v", err)
	}
	if *gotDesc != *desc {
		t.Errorf("extracted descriptor = %+v, want %+v", *gotDesc, *desc)
	}

	gotSurface, err := ParseDDS(bytes.NewReader(parts[1]))
	if err != nil {
		t.Fatalf("ParseDDS on extracted surface: %v", err)
	}
	if gotSurface.Width != 256 || gotSurface.Height != 256 || gotSurface.MipmapCount != 9 {
		t.Errorf("extracted surface = %+v", gotSurface)
	}

	// readme.txt must still be present as a normal entry.
	if !r.FileExists("/material/road/readme.txt") {
		t.Error("expected readme.txt to exist")
	}
}

func TestArchiveV2PmgSiblingRoundTrip(t *testing.T) {
	w := NewWriter(VersionV2)

	payload := bytes.Repeat([]byte{0x7A}, 200)
	if err := w.AddBytes("/model/car/wheel.pmg", payload); err != nil {
		t.Fatalf("AddBytes(.pmg): %v", err)
	}
	if err := w.AddBytes("/model/car/readme.txt", []byte("info")); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}

	out := filepath.Join(t.TempDir(), "pmg.scs")
	if err := w.SaveToPath(out); err != nil {
		t.Fatalf("SaveToPath: %v", err)
	}

	r, err := Open(out)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	parts, err := r.Extract("/model/car/wheel.pmg")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(parts) != 1 || !bytes.Equal(parts[0], payload) {
		t.Errorf("extracted .pmg payload mismatch")
	}

	if !r.FileExists("/model/car/readme.txt") {
		t.Error("expected readme.txt to exist alongside the .pmg entry")
	}
}

func TestArchiveV2CubemapRoundTrip(t *testing.T) {
	w := NewWriter(VersionV2)
	desc := &TobjDescriptor{Kind: TextureCubeMap}
	descBytes, err := DefaultDescriptorCodec.Encode(desc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	groups, err := SurfaceInfo(DxgiFormatBC1UNORMSRGB, 4, 4)
	if err != nil {
		t.Fatalf("SurfaceInfo: %v", err)
	}
	var pixels []byte
	for face := 0; face < 6; face++ {
		n := int(groups[0].RowPitch * groups[0].NumRows)
		pixels = append(pixels, bytes.Repeat([]byte{byte(face)}, n)...)
	}
	s := &Surface{Width: 4, Height: 4, MipmapCount: 1, Format: DxgiFormatBC1UNORMSRGB, IsCube: true, FaceCount: 6, Pixels: pixels}
	var ddsBuf bytes.Buffer
	if err := WriteDDS(&ddsBuf, s); err != nil {
		t.Fatalf("WriteDDS: %v", err)
	}

	if err := w.AddBytes("/mat/sky.tobj", descBytes); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}
	if err := w.AddBytes("/mat/sky.dds", ddsBuf.Bytes()); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}

	out := filepath.Join(t.TempDir(), "cube.scs")
	if err := w.SaveToPath(out); err != nil {
		t.Fatalf("SaveToPath: %v", err)
	}
	r, err := Open(out)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	e, err := r.GetEntry("/mat/sky.tobj")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	v2 := e.(*EntryV2)
	if !v2.Texture.IsCube || v2.Texture.FaceCount != 6 {
		t.Errorf("expected cubemap with 6 faces, got %+v", v2.Texture)
	}
}

func TestWriterRejectsEmptyAndRootPaths(t *testing.T) {
	w := NewWriter(VersionV1)
	if err := w.AddBytes("", []byte("x")); !IsKind(err, ErrInvalidArchivePath) {
		t.Errorf("expected ErrInvalidArchivePath for empty path, got %v", err)
	}
	if err := w.AddBytes("/", []byte("x")); !IsKind(err, ErrInvalidArchivePath) {
		t.Errorf("expected ErrInvalidArchivePath for root path, got %v", err)
	}
}

func TestWriterRejectsOversizedComponent(t *testing.T) {
	w := NewWriter(VersionV1)
	longName := string(bytes.Repeat([]byte("a"), 256))
	if err := w.AddBytes("/"+longName, []byte("x")); !IsKind(err, ErrInvalidArchivePath) {
		t.Errorf("expected ErrInvalidArchivePath for 256-byte component, got %v", err)
	}
	okName := string(bytes.Repeat([]byte("a"), 255))
	if err := w.AddBytes("/"+okName, []byte("x")); err != nil {
		t.Errorf("expected 255-byte component to be accepted, got %v", err)
	}
}

func TestWriterRejectsDuplicatePath(t *testing.T) {
	w := NewWriter(VersionV1)
	if err := w.AddBytes("/dup.txt", []byte("a")); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}
	if err := w.AddBytes("/dup.txt", []byte("b")); !IsKind(err, ErrInvalidArchivePath) {
		t.Errorf("expected ErrInvalidArchivePath for duplicate path, got %v", err)
	}
}

func TestOpenRejectsNonHashFSStream(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "not-an-archive.bin")
	if err := os.WriteFile(p, []byte("just some random bytes here"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Open(p)
	if !IsKind(err, ErrNotHashFS) {
		t.Errorf("expected ErrNotHashFS, got %v", err)
	}
}

func TestArchiveV1ForceEntryTableAtEnd(t *testing.T) {
	w := NewWriter(VersionV1)
	if err := w.AddBytes("/x.txt", []byte("payload")); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}
	out := filepath.Join(t.TempDir(), "forced.scs")
	if err := w.SaveToPath(out); err != nil {
		t.Fatalf("SaveToPath: %v", err)
	}

	// Corrupt the header's startOffset field (bytes 16:20) so a normal Open
	// would fail to locate the entry table, then confirm
	// WithForceEntryTableAtEnd recovers it.
	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	Endian.PutUint32(raw[16:20], 0xffffffff)
	if err := os.WriteFile(out, raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Open(out); err == nil {
		t.Error("expected Open without the option to fail on corrupted startOffset")
	}

	r, err := Open(out, WithForceEntryTableAtEnd())
	if err != nil {
		t.Fatalf("Open with WithForceEntryTableAtEnd: %v", err)
	}
	defer r.Close()
	if !r.FileExists("/x.txt") {
		t.Error("expected x.txt to be found after forcing table location")
	}
}

func TestCompressionThresholdBoundary(t *testing.T) {
	w := NewWriter(VersionV1, WithCompressionThreshold(16))
	below := bytes.Repeat([]byte("a"), 15)
	above := bytes.Repeat([]byte("a"), 17)
	if err := w.AddBytes("/below.txt", below); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}
	if err := w.AddBytes("/above.txt", above); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}

	out := filepath.Join(t.TempDir(), "thresh.scs")
	if err := w.SaveToPath(out); err != nil {
		t.Fatalf("SaveToPath: %v", err)
	}
	r, err := Open(out)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	belowEntry, err := r.GetEntry("/below.txt")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if belowEntry.IsCompressed() {
		t.Error("expected below-threshold file to be stored uncompressed")
	}

	aboveEntry, err := r.GetEntry("/above.txt")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	// Highly repetitive data compresses well past the threshold.
	if !aboveEntry.IsCompressed() {
		t.Error("expected above-threshold repetitive file to be stored compressed")
	}
}

func TestEmptyFileRoundTrip(t *testing.T) {
	w := NewWriter(VersionV1)
	if err := w.AddBytes("/empty.txt", nil); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}
	out := filepath.Join(t.TempDir(), "empty.scs")
	if err := w.SaveToPath(out); err != nil {
		t.Fatalf("SaveToPath: %v", err)
	}
	r, err := Open(out)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	text, err := r.ReadAllText("/empty.txt")
	if err != nil {
		t.Fatalf("ReadAllText: %v", err)
	}
	if text != "" {
		t.Errorf("expected empty payload, got %q", text)
	}
}

func TestGetEntryNotFound(t *testing.T) {
	w := NewWriter(VersionV1)
	if err := w.AddBytes("/present.txt", []byte("x")); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}
	out := filepath.Join(t.TempDir(), "nf.scs")
	if err := w.SaveToPath(out); err != nil {
		t.Fatalf("SaveToPath: %v", err)
	}
	r, err := Open(out)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if _, err := r.GetEntry("/missing.txt"); !IsKind(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, ok := r.TryGetEntry("/missing.txt"); ok {
		t.Error("expected TryGetEntry to report false for a missing path")
	}
}

func TestExtractDirectoryFails(t *testing.T) {
	w := NewWriter(VersionV1)
	if err := w.AddBytes("/a/b.txt", []byte("x")); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}
	out := filepath.Join(t.TempDir(), "dir.scs")
	if err := w.SaveToPath(out); err != nil {
		t.Fatalf("SaveToPath: %v", err)
	}
	r, err := Open(out)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if _, err := r.Extract("/a"); !IsKind(err, ErrIsDirectory) {
		t.Errorf("expected ErrIsDirectory, got %v", err)
	}
}

func TestAddDirPreservesTreeStructure(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "top.txt"), []byte("top"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "nested.txt"), []byte("nested"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w := NewWriter(VersionV1)
	if err := w.AddDir(src, "/"); err != nil {
		t.Fatalf("AddDir: %v", err)
	}

	out := filepath.Join(t.TempDir(), "tree.scs")
	if err := w.SaveToPath(out); err != nil {
		t.Fatalf("SaveToPath: %v", err)
	}
	r, err := Open(out)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if !r.FileExists("/top.txt") || !r.FileExists("/sub/nested.txt") {
		t.Error("expected AddDir to preserve host directory structure")
	}
	if !r.DirectoryExists("/sub") {
		t.Error("expected /sub to be a synthesized directory")
	}
}
