package hashfs

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Version identifies the on-disk table layout (spec §3, §4.3).
type Version uint16

const (
	VersionV1 Version = 1
	VersionV2 Version = 2
)

// Platform is the v2 header's target-platform discriminator. Only PC is
// supported by this codec; any other value is UnsupportedFeature.
type Platform uint16

const PlatformPC Platform = 0

// Endian is the byte order used throughout the on-disk format.
var Endian = binary.LittleEndian

// magic is the shared 4-byte HashFS file signature, "SCS#" read as a
// little-endian uint32.
const magic uint32 = 0x23534353

// hashMethodCity is the only supported value of the header's 4-byte
// hashMethod field.
var hashMethodCity = [4]byte{'C', 'I', 'T', 'Y'}

// payloadRegionStart is the fixed byte offset at which the payload region
// begins in both versions (spec §3).
const payloadRegionStart = 4096

// HeaderV1 is the parsed v1 header (spec §4.3).
type HeaderV1 struct {
	Salt        uint16
	NumEntries  uint32
	StartOffset uint32
}

// HeaderV2 is the parsed v2 header (spec §4.3).
type HeaderV2 struct {
	Salt                     uint16
	EntryTableLength         uint32
	NumMetadataEntries       uint32
	MetadataTableLength      uint32
	EntryTableStart          uint64
	MetadataTableStart       uint64
	SecurityDescriptorOffset uint64
	Platform                 Platform
}

// readPrelude reads and validates the shared magic/version/salt/hashMethod
// prelude common to both versions.
func readPrelude(r io.Reader) (version Version, salt uint16, err error) {
	var m uint32
	if err = binary.Read(r, Endian, &m); err != nil {
		return 0, 0, newErr(ErrIO, "Open", "", fmt.Errorf("reading magic: %w", err))
	}
	if m != magic {
		return 0, 0, newErr(ErrNotHashFS, "Open", "", fmt.Errorf("magic %08X does not match HashFS", m))
	}

	var v uint16
	if err = binary.Read(r, Endian, &v); err != nil {
		return 0, 0, newErr(ErrIO, "Open", "", fmt.Errorf("reading version: %w", err))
	}
	version = Version(v)

	if err = binary.Read(r, Endian, &salt); err != nil {
		return 0, 0, newErr(ErrIO, "Open", "", fmt.Errorf("reading salt: %w", err))
	}

	var hashMethod [4]byte
	if _, err = io.ReadFull(r, hashMethod[:]); err != nil {
		return 0, 0, newErr(ErrIO, "Open", "", fmt.Errorf("reading hashMethod: %w", err))
	}
	if hashMethod != hashMethodCity {
		return 0, 0, newErr(ErrUnsupportedHashMethod, "Open", "", fmt.Errorf("hashMethod %q", hashMethod))
	}

	return version, salt, nil
}

func writePrelude(w io.Writer, version Version, salt uint16) error {
	if err := binary.Write(w, Endian, magic); err != nil {
		return fmt.Errorf("writing magic: %w", err)
	}
	if err := binary.Write(w, Endian, uint16(version)); err != nil {
		return fmt.Errorf("writing version: %w", err)
	}
	if err := binary.Write(w, Endian, salt); err != nil {
		return fmt.Errorf("writing salt: %w", err)
	}
	if _, err := w.Write(hashMethodCity[:]); err != nil {
		return fmt.Errorf("writing hashMethod: %w", err)
	}
	return nil
}

// readHeaderV1Tail reads the v1-specific header tail. The prelude must
// already have been consumed via readPrelude.
func readHeaderV1Tail(r io.Reader, salt uint16) (*HeaderV1, error) {
	h := &HeaderV1{Salt: salt}
	if err := binary.Read(r, Endian, &h.NumEntries); err != nil {
		return nil, newErr(ErrIO, "Open", "", fmt.Errorf("reading numEntries: %w", err))
	}
	if err := binary.Read(r, Endian, &h.StartOffset); err != nil {
		return nil, newErr(ErrIO, "Open", "", fmt.Errorf("reading startOffset: %w", err))
	}
	return h, nil
}

// WriteHeaderV1 writes the full v1 header (prelude + tail).
func WriteHeaderV1(w io.Writer, h *HeaderV1) error {
	if err := writePrelude(w, VersionV1, h.Salt); err != nil {
		return newErr(ErrIO, "Save", "", err)
	}
	if err := binary.Write(w, Endian, h.NumEntries); err != nil {
		return newErr(ErrIO, "Save", "", fmt.Errorf("writing numEntries: %w", err))
	}
	if err := binary.Write(w, Endian, h.StartOffset); err != nil {
		return newErr(ErrIO, "Save", "", fmt.Errorf("writing startOffset: %w", err))
	}
	return nil
}

func readHeaderV2Tail(r io.Reader, salt uint16) (*HeaderV2, error) {
	h := &HeaderV2{Salt: salt}
	fields := []struct {
		name string
		v    interface{}
	}{
		{"entryTableLength", &h.EntryTableLength},
		{"numMetadataEntries", &h.NumMetadataEntries},
		{"metadataTableLength", &h.MetadataTableLength},
		{"entryTableStart", &h.EntryTableStart},
		{"metadataTableStart", &h.MetadataTableStart},
		{"securityDescriptorOffset", &h.SecurityDescriptorOffset},
		{"platform", &h.Platform},
	}
	for _, f := range fields {
		if err := binary.Read(r, Endian, f.v); err != nil {
			return nil, newErr(ErrIO, "Open", "", fmt.Errorf("reading %s: %w", f.name, err))
		}
	}
	if h.Platform != PlatformPC {
		return nil, newErr(ErrUnsupportedFeature, "Open", "", fmt.Errorf("unsupported platform %d", h.Platform))
	}
	return h, nil
}

// WriteHeaderV2 writes the full v2 header (prelude + tail).
func WriteHeaderV2(w io.Writer, h *HeaderV2) error {
	if err := writePrelude(w, VersionV2, h.Salt); err != nil {
		return newErr(ErrIO, "Save", "", err)
	}
	values := []interface{}{
		h.EntryTableLength,
		h.NumMetadataEntries,
		h.MetadataTableLength,
		h.EntryTableStart,
		h.MetadataTableStart,
		h.SecurityDescriptorOffset,
		h.Platform,
	}
	for _, v := range values {
		if err := binary.Write(w, Endian, v); err != nil {
			return newErr(ErrIO, "Save", "", fmt.Errorf("writing header field: %w", err))
		}
	}
	return nil
}

// ReadHeader reads the shared prelude and dispatches to the version-specific
// tail. It returns exactly one of headerV1/headerV2 populated.
func ReadHeader(r io.Reader) (version Version, v1 *HeaderV1, v2 *HeaderV2, err error) {
	version, salt, err := readPrelude(r)
	if err != nil {
		return 0, nil, nil, err
	}
	switch version {
	case VersionV1:
		v1, err = readHeaderV1Tail(r, salt)
		return version, v1, nil, err
	case VersionV2:
		v2, err = readHeaderV2Tail(r, salt)
		return version, nil, v2, err
	default:
		return version, nil, nil, newErr(ErrUnsupportedVersion, "Open", "", fmt.Errorf("version %d", version))
	}
}
