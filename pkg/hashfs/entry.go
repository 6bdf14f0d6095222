package hashfs

// Entry is the capability set shared by every entry variant, regardless of
// archive version or (in v2) plain-vs-texture kind (design note §9).
type Entry interface {
	Hash() uint64
	Offset() uint64
	Size() uint32
	CompressedSize() uint32
	IsDirectory() bool
	IsCompressed() bool
}

// EntryV1 is a v1 entry table record (spec §4.4).
type EntryV1 struct {
	HashValue          uint64
	OffsetValue        uint64
	Flags              uint32
	CRC32              uint32
	SizeValue          uint32
	CompressedSizeValue uint32
}

const (
	entryFlagDirectory = 1 << 0
	entryFlagCompressed = 1 << 1
	entryFlagVerify    = 1 << 2
	entryFlagEncrypted = 1 << 3
)

func (e *EntryV1) Hash() uint64           { return e.HashValue }
func (e *EntryV1) Offset() uint64         { return e.OffsetValue }
func (e *EntryV1) Size() uint32           { return e.SizeValue }
func (e *EntryV1) CompressedSize() uint32 { return e.CompressedSizeValue }
func (e *EntryV1) IsDirectory() bool      { return e.Flags&entryFlagDirectory != 0 }
func (e *EntryV1) IsCompressed() bool     { return e.Flags&entryFlagCompressed != 0 }
func (e *EntryV1) IsVerify() bool         { return e.Flags&entryFlagVerify != 0 }
func (e *EntryV1) IsEncrypted() bool      { return e.Flags&entryFlagEncrypted != 0 }

// EntryV2 is a v2 entry table record joined with its metadata table record
// (spec §4.5, §4.6). Texture is non-nil only for image entries.
type EntryV2 struct {
	HashValue     uint64
	IsDirValue    bool
	OffsetValue   uint64
	SizeValue     uint32
	CompressedSizeValue uint32
	CompressedFlag bool

	// Unknown is the main-metadata's verbatim-preserved 32-bit field
	// (design note §9a).
	Unknown uint32
	// ReservedFlags1 carries the low-nibble-masked high nibble of
	// msbAndFlags1 verbatim (bits unrelated to the compressed flag).
	ReservedFlags1 byte
	// ReservedFlags2 carries msbAndFlags2's high nibble verbatim
	// (observed constant 0x30 after a texture entry, design note §9c).
	ReservedFlags2 byte

	// Texture is present only for Image-chunk entries.
	Texture *TextureMetadata

	// metadataIndex/metadataCount mirror the entry table record so the
	// writer can round-trip chunk-index chains deterministically.
	metadataIndex uint32
	metadataCount uint16
}

func (e *EntryV2) Hash() uint64           { return e.HashValue }
func (e *EntryV2) Offset() uint64         { return e.OffsetValue }
func (e *EntryV2) Size() uint32           { return e.SizeValue }
func (e *EntryV2) CompressedSize() uint32 { return e.CompressedSizeValue }
func (e *EntryV2) IsDirectory() bool      { return e.IsDirValue }
func (e *EntryV2) IsCompressed() bool     { return e.CompressedFlag }
func (e *EntryV2) IsTexture() bool        { return e.Texture != nil }

var (
	_ Entry = (*EntryV1)(nil)
	_ Entry = (*EntryV2)(nil)
)
