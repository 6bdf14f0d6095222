package hashfs

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

// EntryStatus is the result of a name lookup against a ReaderFacade
// (spec §4.9).
type EntryStatus int

const (
	StatusNone EntryStatus = iota
	StatusFile
	StatusDirectory
)

// ReaderFacade is an opened HashFS archive (spec §4.9).
type ReaderFacade struct {
	file   *os.File
	closer io.Closer

	ra io.ReaderAt

	version Version
	salt    uint16

	entriesV1 map[uint64]*EntryV1
	entriesV2 map[uint64]*EntryV2

	hasher PathHasher
	comp   Compressor
	codec  DescriptorCodec
}

// ReaderOption configures Open.
type ReaderOption func(*readerConfig)

type readerConfig struct {
	forceEntryTableAtEnd bool
	hasher               PathHasher
	comp                 Compressor
	codec                DescriptorCodec
}

// WithForceEntryTableAtEnd makes a v1 Open ignore the header's startOffset
// and parse the entry table from fileLength - numEntries*32 instead (spec
// §4.4).
func WithForceEntryTableAtEnd() ReaderOption {
	return func(c *readerConfig) { c.forceEntryTableAtEnd = true }
}

// WithHasher overrides the PathHasher used for path-to-hash lookups.
func WithHasher(h PathHasher) ReaderOption {
	return func(c *readerConfig) { c.hasher = h }
}

// WithCompressor overrides the Compressor used for table and payload
// decompression.
func WithCompressor(c Compressor) ReaderOption {
	return func(rc *readerConfig) { rc.comp = c }
}

// WithDescriptorCodec overrides the DescriptorCodec used to decode texture
// descriptors on extraction.
func WithDescriptorCodec(codec DescriptorCodec) ReaderOption {
	return func(c *readerConfig) { c.codec = codec }
}

// Open opens the archive at path and parses its tables (spec §4.9).
func Open(path string, opts ...ReaderOption) (*ReaderFacade, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newErr(ErrIO, "Open", path, fmt.Errorf("opening archive: %w", err))
	}
	r, err := OpenReaderAt(f, f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// OpenReaderAt opens an archive already available as an io.ReaderAt. For v1
// archives the total length is determined from ra itself (via Stat for an
// *os.File, otherwise by probing reads) for the entry table bounds check and
// forceEntryTableAtEnd. The returned ReaderFacade closes closer, if
// non-nil, on Close.
func OpenReaderAt(ra io.ReaderAt, closer io.Closer, opts ...ReaderOption) (*ReaderFacade, error) {
	cfg := &readerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.hasher == nil {
		cfg.hasher = DefaultHasher
	}
	if cfg.comp == nil {
		cfg.comp = DefaultCompressor
	}
	if cfg.codec == nil {
		cfg.codec = DefaultDescriptorCodec
	}

	sr := io.NewSectionReader(ra, 0, 1<<62)
	version, v1, v2, err := ReadHeader(sr)
	if err != nil {
		return nil, err
	}

	r := &ReaderFacade{
		ra:      ra,
		closer:  closer,
		version: version,
		hasher:  cfg.hasher,
		comp:    cfg.comp,
		codec:   cfg.codec,
	}

	switch version {
	case VersionV1:
		r.salt = v1.Salt
		fileLength, err := sizeOf(ra)
		if err != nil {
			return nil, newErr(ErrIO, "Open", "", err)
		}
		entries, err := ReadEntryTableV1(ra, fileLength, v1, cfg.forceEntryTableAtEnd)
		if err != nil {
			return nil, err
		}
		r.entriesV1 = make(map[uint64]*EntryV1, len(entries))
		for _, e := range entries {
			r.entriesV1[e.HashValue] = e
		}

	case VersionV2:
		r.salt = v2.Salt

		entryTableBuf := make([]byte, v2.EntryTableLength)
		if _, err := ra.ReadAt(entryTableBuf, int64(v2.EntryTableStart)); err != nil {
			return nil, newErr(ErrCorruptTable, "Open", "", fmt.Errorf("reading entry table: %w", err))
		}
		rows, err := ReadEntryTableV2(entryTableBuf, r.comp)
		if err != nil {
			return nil, err
		}
		numEntries := len(rows)

		metaTableBuf := make([]byte, v2.MetadataTableLength)
		if _, err := ra.ReadAt(metaTableBuf, int64(v2.MetadataTableStart)); err != nil {
			return nil, newErr(ErrCorruptTable, "Open", "", fmt.Errorf("reading metadata table: %w", err))
		}
		meta, err := r.comp.Decompress(metaTableBuf)
		if err != nil {
			return nil, newErr(ErrCorruptTable, "Open", "", fmt.Errorf("decompressing metadata table: %w", err))
		}

		r.entriesV2 = make(map[uint64]*EntryV2, numEntries)
		for _, row := range rows {
			e, err := parseEntryV2Metadata(meta, row)
			if err != nil {
				return nil, err
			}
			r.entriesV2[e.HashValue] = e
		}
	}

	return r, nil
}

func sizeOf(ra io.ReaderAt) (int64, error) {
	if f, ok := ra.(*os.File); ok {
		info, err := f.Stat()
		if err != nil {
			return 0, fmt.Errorf("statting archive: %w", err)
		}
		return info.Size(), nil
	}
	// Fall back to a growing probe read for arbitrary ReaderAt values.
	var lo, hi int64 = 0, 1
	buf := make([]byte, 1)
	for {
		if _, err := ra.ReadAt(buf, hi); err == io.EOF {
			break
		}
		lo = hi
		hi *= 2
	}
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if _, err := ra.ReadAt(buf, mid); err == io.EOF {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}

// Close releases the underlying file handle, if any.
func (r *ReaderFacade) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Version reports the archive's on-disk revision.
func (r *ReaderFacade) Version() Version { return r.version }

// Salt reports the salt used for hashPath lookups. Changing it does not
// rehash any cached entry; it only affects subsequent lookups by path.
func (r *ReaderFacade) Salt() uint16 { return r.salt }

// SetSalt overrides the salt used for hashPath lookups (spec §4.9).
func (r *ReaderFacade) SetSalt(salt uint16) { r.salt = salt }

// HashPath computes the archive key for path using the reader's current
// salt.
func (r *ReaderFacade) HashPath(path string) uint64 {
	return HashPath(path, r.salt, r.hasher)
}

func (r *ReaderFacade) lookup(hash uint64) (Entry, bool) {
	if r.entriesV1 != nil {
		e, ok := r.entriesV1[hash]
		if !ok {
			return nil, false
		}
		return e, true
	}
	e, ok := r.entriesV2[hash]
	if !ok {
		return nil, false
	}
	return e, true
}

// Entries returns every entry in the archive, indexed by hash.
func (r *ReaderFacade) Entries() map[uint64]Entry {
	out := make(map[uint64]Entry)
	if r.entriesV1 != nil {
		for h, e := range r.entriesV1 {
			out[h] = e
		}
		return out
	}
	for h, e := range r.entriesV2 {
		out[h] = e
	}
	return out
}

// EntryExists reports whether path resolves to a file, a directory, or
// nothing (spec §4.9).
func (r *ReaderFacade) EntryExists(path string) EntryStatus {
	e, ok := r.lookup(r.HashPath(path))
	if !ok {
		return StatusNone
	}
	if e.IsDirectory() {
		return StatusDirectory
	}
	return StatusFile
}

// GetEntry returns the entry at path, or a NotFound error.
func (r *ReaderFacade) GetEntry(path string) (Entry, error) {
	e, ok := r.lookup(r.HashPath(path))
	if !ok {
		return nil, newErr(ErrNotFound, "GetEntry", path, fmt.Errorf("no entry for path"))
	}
	return e, nil
}

// TryGetEntry returns the entry at path and true, or nil and false.
func (r *ReaderFacade) TryGetEntry(path string) (Entry, bool) {
	return r.lookup(r.HashPath(path))
}

// FileExists is a thin wrapper over EntryExists (spec §4.9 item 5).
func (r *ReaderFacade) FileExists(path string) bool {
	return r.EntryExists(path) == StatusFile
}

// DirectoryExists is a thin wrapper over EntryExists (spec §4.9 item 5).
func (r *ReaderFacade) DirectoryExists(path string) bool {
	return r.EntryExists(path) == StatusDirectory
}

// DirectoryListing is one resolved name inside a directory.
type DirectoryListing struct {
	Path  string
	IsDir bool
}

// GetDirectoryListing returns the immediate children of the directory at
// path. When filesOnly is true, subdirectory names are omitted. When
// returnAbsolute is true, Path is the full archive path; otherwise it is
// just the leaf name (spec §4.9).
func (r *ReaderFacade) GetDirectoryListing(path string, filesOnly, returnAbsolute bool) ([]DirectoryListing, error) {
	e, ok := r.lookup(r.HashPath(path))
	if !ok {
		return nil, newErr(ErrNotFound, "GetDirectoryListing", path, fmt.Errorf("no entry for path"))
	}
	if !e.IsDirectory() {
		return nil, newErr(ErrNotDirectory, "GetDirectoryListing", path, fmt.Errorf("path is a file"))
	}

	payload, err := r.readPayload(e)
	if err != nil {
		return nil, err
	}

	var names []string
	var dirs []bool
	if r.version == VersionV1 {
		names, dirs, err = decodeListingV1(payload)
	} else {
		names, dirs, err = decodeListingV2(payload)
	}
	if err != nil {
		return nil, newErr(ErrCorruptTable, "GetDirectoryListing", path, err)
	}

	base := normalizeArchivePath(path)
	if base == "/" {
		base = ""
	}

	out := make([]DirectoryListing, 0, len(names))
	for i, name := range names {
		if filesOnly && dirs[i] {
			continue
		}
		entryPath := name
		if returnAbsolute {
			entryPath = base + "/" + name
		}
		out = append(out, DirectoryListing{Path: entryPath, IsDir: dirs[i]})
	}
	return out, nil
}

// readPayload reads and, if flagged, decompresses an entry's raw bytes.
func (r *ReaderFacade) readPayload(e Entry) ([]byte, error) {
	buf := make([]byte, e.CompressedSize())
	if len(buf) > 0 {
		if _, err := r.ra.ReadAt(buf, int64(e.Offset())); err != nil {
			return nil, newErr(ErrIO, "extract", "", fmt.Errorf("reading payload at offset %d: %w", e.Offset(), err))
		}
	}
	if !e.IsCompressed() {
		return buf, nil
	}
	out, err := r.comp.Decompress(buf)
	if err != nil {
		return nil, newErr(ErrIO, "extract", "", fmt.Errorf("decompressing payload: %w", err))
	}
	return out, nil
}

// Extract returns an entry's payload bytes. Non-texture entries yield a
// single element; v2 texture entries yield two: the descriptor bytes
// followed by the reconstructed DDS surface bytes.
func (r *ReaderFacade) Extract(path string) ([][]byte, error) {
	e, err := r.GetEntry(path)
	if err != nil {
		return nil, err
	}
	if e.IsDirectory() {
		return nil, newErr(ErrIsDirectory, "extract", path, fmt.Errorf("path is a directory"))
	}
	return r.extractEntry(path, e)
}

func (r *ReaderFacade) extractEntry(path string, e Entry) ([][]byte, error) {
	v2, ok := e.(*EntryV2)
	if !ok || v2.Texture == nil {
		payload, err := r.readPayload(e)
		if err != nil {
			return nil, err
		}
		return [][]byte{payload}, nil
	}

	packed, err := r.readPayload(e)
	if err != nil {
		return nil, err
	}

	tex := v2.Texture
	raw, err := ConvertFromArchive(tex.FaceCount, tex.MipmapCount, tex.Format, tex.Width, tex.Height, packed, tex.PitchAlignment, tex.ImageAlignment)
	if err != nil {
		return nil, newErr(ErrTexturePacking, "extract", path, err)
	}

	ddsSurface := &Surface{
		Width:       tex.Width,
		Height:      tex.Height,
		MipmapCount: tex.MipmapCount,
		Format:      tex.Format,
		IsCube:      tex.IsCube,
		FaceCount:   tex.FaceCount,
		Pixels:      raw,
	}

	var ddsBuf bytes.Buffer
	if err := WriteDDS(&ddsBuf, ddsSurface); err != nil {
		return nil, err
	}

	desc := &TobjDescriptor{
		Kind:      TextureMap2D,
		AddrU:     tex.AddrU,
		AddrV:     tex.AddrV,
		AddrW:     tex.AddrW,
		MagFilter: tex.MagFilter,
		MinFilter: tex.MinFilter,
		MipFilter: tex.MipFilter,
	}
	if tex.IsCube {
		desc.Kind = TextureCubeMap
	}
	descBytes, err := r.codec.Encode(desc)
	if err != nil {
		return nil, newErr(ErrTexturePacking, "extract", path, fmt.Errorf("encoding descriptor: %w", err))
	}

	return [][]byte{descBytes, ddsBuf.Bytes()}, nil
}

// ExtractToFile writes an entry's payload to outputPath. Texture entries
// write the descriptor to outputPath and the DDS surface to outputPath
// with its extension replaced by ".dds".
func (r *ReaderFacade) ExtractToFile(path, outputPath string) error {
	parts, err := r.Extract(path)
	if err != nil {
		return err
	}
	if len(parts) == 1 {
		return os.WriteFile(outputPath, parts[0], 0o644)
	}
	if err := os.WriteFile(outputPath, parts[0], 0o644); err != nil {
		return newErr(ErrIO, "ExtractToFile", outputPath, err)
	}
	ddsPath := replaceExt(outputPath, ".dds")
	if err := os.WriteFile(ddsPath, parts[1], 0o644); err != nil {
		return newErr(ErrIO, "ExtractToFile", ddsPath, err)
	}
	return nil
}

func replaceExt(p, ext string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 {
		return p[:i] + ext
	}
	return p + ext
}

// ReadAllText reads the entry at path and returns it as a UTF-8 string.
func (r *ReaderFacade) ReadAllText(path string) (string, error) {
	parts, err := r.Extract(path)
	if err != nil {
		return "", err
	}
	return string(parts[0]), nil
}
