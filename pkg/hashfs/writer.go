package hashfs

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const defaultCompressionThreshold = 64

// pendingEntry is one registered (archivePath, source) pair, not yet
// written to a stream.
type pendingEntry struct {
	archivePath string
	data        []byte
	isTexture   bool
	surfacePath string // sibling .dds path, texture entries only
	isPmg       bool   // carries a trailing Unknown6 chunk (spec §4.6)
}

// WriterFacade accumulates registered files and directories and writes a
// complete archive on Save (spec §4.10).
type WriterFacade struct {
	version Version
	salt    uint16

	compressionThreshold int
	compressionLevel     CompressionLevel
	computeChecksums     bool // v1 only

	hasher PathHasher
	comp   Compressor
	codec  DescriptorCodec

	pending []pendingEntry
	seen    map[string]bool
}

// WriterOption configures NewWriter.
type WriterOption func(*WriterFacade)

// WithSalt sets the salt embedded in the archive header and used to hash
// every registered path.
func WithSalt(salt uint16) WriterOption {
	return func(w *WriterFacade) { w.salt = salt }
}

// WithCompressionThreshold sets the minimum payload size, in bytes, above
// which a file is compressed (spec §4.10 default 64).
func WithCompressionThreshold(n int) WriterOption {
	return func(w *WriterFacade) { w.compressionThreshold = n }
}

// WithCompressionLevel sets the zlib effort used for compressed payloads
// and tables.
func WithCompressionLevel(level CompressionLevel) WriterOption {
	return func(w *WriterFacade) { w.compressionLevel = level }
}

// WithChecksums enables per-entry CRC32 computation. v1 archives only;
// ignored for v2 (spec §4.4, §4.10).
func WithChecksums(enabled bool) WriterOption {
	return func(w *WriterFacade) { w.computeChecksums = enabled }
}

// WithWriterHasher overrides the PathHasher used to compute entry hashes.
func WithWriterHasher(h PathHasher) WriterOption {
	return func(w *WriterFacade) { w.hasher = h }
}

// WithWriterCompressor overrides the Compressor used for payloads and
// tables.
func WithWriterCompressor(c Compressor) WriterOption {
	return func(w *WriterFacade) { w.comp = c }
}

// WithWriterDescriptorCodec overrides the DescriptorCodec used to parse
// texture descriptor files during add.
func WithWriterDescriptorCodec(codec DescriptorCodec) WriterOption {
	return func(w *WriterFacade) { w.codec = codec }
}

// NewWriter creates a WriterFacade targeting the given on-disk version.
func NewWriter(version Version, opts ...WriterOption) *WriterFacade {
	w := &WriterFacade{
		version:              version,
		compressionThreshold: defaultCompressionThreshold,
		compressionLevel:     CompressionOptimal,
		hasher:               DefaultHasher,
		comp:                 DefaultCompressor,
		codec:                DefaultDescriptorCodec,
		seen:                 map[string]bool{},
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func validateArchivePath(p string) error {
	clean := normalizeArchivePath(p)
	if clean == "" || clean == "/" {
		return fmt.Errorf("archive path %q resolves to the root", p)
	}
	for _, part := range strings.Split(strings.Trim(clean, "/"), "/") {
		if len(part) > 255 {
			return fmt.Errorf("archive path component %q exceeds 255 bytes", part)
		}
	}
	return nil
}

// AddBytes registers data under archivePath.
func (w *WriterFacade) AddBytes(archivePath string, data []byte) error {
	if err := validateArchivePath(archivePath); err != nil {
		return newErr(ErrInvalidArchivePath, "add", archivePath, err)
	}
	clean := normalizeArchivePath(archivePath)
	if w.seen[clean] {
		return newErr(ErrInvalidArchivePath, "add", archivePath, fmt.Errorf("path already registered"))
	}
	isTexture := w.version == VersionV2 && strings.HasSuffix(strings.ToLower(clean), ".tobj")
	isPmg := w.version == VersionV2 && strings.HasSuffix(strings.ToLower(clean), ".pmg")

	pe := pendingEntry{archivePath: clean, data: data, isTexture: isTexture, isPmg: isPmg}
	if isTexture {
		pe.surfacePath = strings.TrimSuffix(archivePath, filepath.Ext(archivePath)) + ".dds"
	}

	w.pending = append(w.pending, pe)
	w.seen[clean] = true
	return nil
}

// AddStream registers the full contents of r under archivePath.
func (w *WriterFacade) AddStream(archivePath string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return newErr(ErrIO, "add", archivePath, fmt.Errorf("reading stream: %w", err))
	}
	return w.AddBytes(archivePath, data)
}

// Add registers the contents of the host file at hostPath under
// archivePath.
func (w *WriterFacade) Add(hostPath, archivePath string) error {
	data, err := os.ReadFile(hostPath)
	if err != nil {
		return newErr(ErrIO, "add", hostPath, fmt.Errorf("reading host file: %w", err))
	}
	return w.AddBytes(archivePath, data)
}

// AddDir walks a host directory tree and registers every regular file it
// contains under archiveDir, preserving relative paths (spec §4.9 item 6).
func (w *WriterFacade) AddDir(hostDir, archiveDir string) error {
	return filepath.Walk(hostDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(hostDir, p)
		if err != nil {
			return newErr(ErrIO, "AddDir", p, err)
		}
		archivePath := strings.TrimSuffix(archiveDir, "/") + "/" + filepath.ToSlash(rel)
		return w.Add(p, archivePath)
	})
}

// Save writes the complete archive to w.
func (w *WriterFacade) Save(out io.WriteSeeker) error {
	built, err := w.buildEntries()
	if err != nil {
		return err
	}

	if w.version == VersionV1 {
		return w.saveV1(out, built)
	}
	return w.saveV2(out, built)
}

// SaveToPath is a convenience wrapper over Save that creates or truncates
// the file at path.
func (w *WriterFacade) SaveToPath(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return newErr(ErrIO, "Save", path, err)
	}
	defer f.Close()
	return w.Save(f)
}

// builtEntry pairs a synthesized payload with its computed hash and
// directory flag, before file-format-specific serialization. logicalSize
// is the uncompressed size; payload is what actually gets written to the
// archive (compressed or not, per compressed).
type builtEntry struct {
	hash         uint64
	isDirectory  bool
	logicalSize  uint32
	payload      []byte
	compressed   bool
	texture      *TextureMetadata
	hasUnknown6  bool // .pmg member: Plain metadata carries a trailing Unknown6 chunk
}

// buildEntries returns built entries in insertion order: the order files
// and directories were registered via Add/AddBytes/AddDir, followed by
// synthesized directory listings in tree-walk order. This order is what
// gets physically written to the payload region and, for v2, to the
// metadata table (spec §9(a)/(b)) — callers that need the on-disk entry
// table's required hash ordering must sort a copy, not this slice.
func (w *WriterFacade) buildEntries() ([]builtEntry, error) {
	var built []builtEntry

	consumedSurfaces := map[string]bool{}
	for _, pe := range w.pending {
		if pe.isTexture {
			consumedSurfaces[normalizeArchivePath(pe.surfacePath)] = true
		}
	}

	tree := newDirectoryTree()
	for _, pe := range w.pending {
		if consumedSurfaces[pe.archivePath] {
			continue
		}
		tree.add(pe.archivePath)
	}

	for _, pe := range w.pending {
		if pe.isTexture {
			entry, err := w.buildTextureEntry(pe)
			if err != nil {
				return nil, err
			}
			built = append(built, entry)
			continue
		}
		if consumedSurfaces[pe.archivePath] {
			continue
		}
		payload, compressed := w.maybeCompress(pe.data)
		built = append(built, builtEntry{
			hash:        HashPath(pe.archivePath, w.salt, w.hasher),
			isDirectory: false,
			logicalSize: uint32(len(pe.data)),
			payload:     payload,
			compressed:  compressed,
			hasUnknown6: pe.isPmg,
		})
	}

	for _, l := range tree.walk() {
		var blob []byte
		if w.version == VersionV1 {
			blob = encodeListingV1(l)
		} else {
			blob = encodeListingV2(l)
		}
		built = append(built, builtEntry{
			hash:        HashPath(l.path, w.salt, w.hasher),
			isDirectory: true,
			logicalSize: uint32(len(blob)),
			payload:     blob,
			compressed:  false,
		})
	}

	return built, nil
}

func (w *WriterFacade) maybeCompress(data []byte) ([]byte, bool) {
	if len(data) <= w.compressionThreshold || w.compressionLevel == CompressionNone {
		return data, false
	}
	compressed, err := w.comp.Compress(data, w.compressionLevel)
	if err != nil {
		return data, false
	}
	return compressed, true
}

// buildTextureEntry fuses a .tobj descriptor with its sibling .dds surface
// into a single v2 texture entry (spec §4.8).
func (w *WriterFacade) buildTextureEntry(pe pendingEntry) (builtEntry, error) {
	desc, err := w.codec.Decode(pe.data)
	if err != nil {
		return builtEntry{}, newErr(ErrTexturePacking, "add", pe.archivePath, fmt.Errorf("decoding descriptor: %w", err))
	}

	var surfaceData []byte
	for _, other := range w.pending {
		if strings.EqualFold(other.archivePath, normalizeArchivePath(pe.surfacePath)) {
			surfaceData = other.data
			break
		}
	}
	if surfaceData == nil {
		return builtEntry{}, newErr(ErrTexturePacking, "add", pe.archivePath, fmt.Errorf("no sibling surface %q registered", pe.surfacePath))
	}

	surface, err := ParseDDS(bytes.NewReader(surfaceData))
	if err != nil {
		return builtEntry{}, err
	}

	packed, err := ConvertToArchive(surface.FaceCount, surface.MipmapCount, surface.Format, surface.Width, surface.Height, surface.Pixels, defaultPitchAlignment, defaultImageAlignment)
	if err != nil {
		return builtEntry{}, err
	}

	tex := &TextureMetadata{
		Width:          surface.Width,
		Height:         surface.Height,
		MipmapCount:    surface.MipmapCount,
		Format:         surface.Format,
		IsCube:         desc.Kind == TextureCubeMap,
		FaceCount:      surface.FaceCount,
		PitchAlignment: defaultPitchAlignment,
		ImageAlignment: defaultImageAlignment,
		MagFilter:      desc.MagFilter,
		MinFilter:      desc.MinFilter,
		MipFilter:      desc.MipFilter,
		AddrU:          desc.AddrU,
		AddrV:          desc.AddrV,
		AddrW:          desc.AddrW,
	}

	return builtEntry{
		hash:        HashPath(pe.archivePath, w.salt, w.hasher),
		isDirectory: false,
		logicalSize: uint32(len(packed)),
		payload:     packed,
		compressed:  false, // spec §7: texture payloads are always uncompressed
		texture:     tex,
	}, nil
}

const (
	defaultPitchAlignment = 256
	defaultImageAlignment = 512
)

func (w *WriterFacade) saveV1(out io.WriteSeeker, built []builtEntry) error {
	if _, err := out.Seek(payloadRegionStart, io.SeekStart); err != nil {
		return newErr(ErrIO, "Save", "", err)
	}

	// Payloads are written in insertion order (spec §9(a)); only the
	// on-disk entry table itself is required to be hash-sorted.
	entries := make([]*EntryV1, len(built))
	offset := uint64(payloadRegionStart)
	for i, b := range built {
		e := &EntryV1{HashValue: b.hash, OffsetValue: offset, SizeValue: b.logicalSize, CompressedSizeValue: uint32(len(b.payload))}
		if b.isDirectory {
			e.Flags |= entryFlagDirectory
		}
		if b.compressed {
			e.Flags |= entryFlagCompressed
		}
		if w.computeChecksums {
			e.CRC32 = crc32.ChecksumIEEE(b.payload)
		}
		if _, err := out.Write(b.payload); err != nil {
			return newErr(ErrIO, "Save", "", fmt.Errorf("writing payload: %w", err))
		}
		offset += uint64(len(b.payload))
		entries[i] = e
	}

	sortedEntries := make([]*EntryV1, len(entries))
	copy(sortedEntries, entries)
	sort.Slice(sortedEntries, func(i, j int) bool { return sortedEntries[i].HashValue < sortedEntries[j].HashValue })

	tableStart := offset
	if err := WriteEntryTableV1(out, sortedEntries); err != nil {
		return err
	}

	if _, err := out.Seek(0, io.SeekStart); err != nil {
		return newErr(ErrIO, "Save", "", err)
	}
	return WriteHeaderV1(out, &HeaderV1{Salt: w.salt, NumEntries: uint32(len(entries)), StartOffset: uint32(tableStart)})
}

func (w *WriterFacade) saveV2(out io.WriteSeeker, built []builtEntry) error {
	if _, err := out.Seek(payloadRegionStart, io.SeekStart); err != nil {
		return newErr(ErrIO, "Save", "", err)
	}

	// Payloads and metadata-table records are both written in insertion
	// order (spec §9(a)/(b)): metadataIndex chains are only meaningful if
	// they're assigned in the order the metadata builder appended them.
	// Only the on-disk entry table itself is hash-sorted, below.
	rows := make([]entryTableRowV2, len(built))
	metaBuilder := newMetadataTableBuilder()
	offset := uint64(payloadRegionStart)

	for i, b := range built {
		aligned := alignUp64(offset, 16)
		if pad := aligned - offset; pad > 0 {
			if _, err := out.Write(make([]byte, pad)); err != nil {
				return newErr(ErrIO, "Save", "", err)
			}
			offset = aligned
		}

		mm := mainMetadata{
			CompressedSize: uint32(len(b.payload)),
			Compressed:     b.compressed,
			Size:           b.logicalSize,
			OffsetBlock:    uint32(offset / 16),
		}

		var idx uint32
		var count uint16
		switch {
		case b.texture != nil:
			wa, wb, err := b.texture.packWords()
			if err != nil {
				return newErr(ErrTexturePacking, "Save", "", err)
			}
			idx, count, err = metaBuilder.addImage(b.texture.Width, b.texture.Height, wa, wb, mm)
			if err != nil {
				return newErr(ErrTexturePacking, "Save", "", err)
			}
		case b.isDirectory:
			idx, count = metaBuilder.addPlain(ChunkDirectory, mm)
		case b.hasUnknown6:
			idx, count = metaBuilder.addPlainWithUnknown6(mm)
		default:
			idx, count = metaBuilder.addPlain(ChunkPlain, mm)
		}

		row := entryTableRowV2{Hash: b.hash, MetadataIndex: idx, MetadataCount: count}
		if b.isDirectory {
			row.Flags |= entryTableV2FlagDirectory
		}
		rows[i] = row

		if _, err := out.Write(b.payload); err != nil {
			return newErr(ErrIO, "Save", "", fmt.Errorf("writing payload: %w", err))
		}
		offset += uint64(len(b.payload))
	}

	metaBytes, err := w.comp.Compress(metaBuilder.bytes(), w.compressionLevel)
	if err != nil {
		return newErr(ErrIO, "Save", "", fmt.Errorf("compressing metadata table: %w", err))
	}
	metaStart := offset
	if _, err := out.Write(metaBytes); err != nil {
		return newErr(ErrIO, "Save", "", err)
	}
	offset += uint64(len(metaBytes))

	sortedRows := make([]entryTableRowV2, len(rows))
	copy(sortedRows, rows)
	sort.Slice(sortedRows, func(i, j int) bool { return sortedRows[i].Hash < sortedRows[j].Hash })

	entryTableBytes, err := WriteEntryTableV2(sortedRows, w.comp, w.compressionLevel)
	if err != nil {
		return err
	}
	entryStart := offset
	if _, err := out.Write(entryTableBytes); err != nil {
		return newErr(ErrIO, "Save", "", err)
	}

	if _, err := out.Seek(0, io.SeekStart); err != nil {
		return newErr(ErrIO, "Save", "", err)
	}
	return WriteHeaderV2(out, &HeaderV2{
		Salt:                w.salt,
		EntryTableLength:    uint32(len(entryTableBytes)),
		NumMetadataEntries:  uint32(len(rows)),
		MetadataTableLength: uint32(len(metaBytes)),
		EntryTableStart:     entryStart,
		MetadataTableStart:  metaStart,
		Platform:            PlatformPC,
	})
}

func alignUp64(v uint64, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}
