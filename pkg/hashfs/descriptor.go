package hashfs

import (
	"fmt"
)

// TextureKind distinguishes a 2D texture from a cube map (spec §3).
type TextureKind uint8

const (
	TextureMap2D TextureKind = iota
	TextureCubeMap
)

// TobjDescriptor is the decoded form of a texture descriptor file. The
// internal layout of the real descriptor format is out of scope; only the
// fields the texture repacking path needs are modeled here.
type TobjDescriptor struct {
	Kind          TextureKind
	TexturePath   string
	MagFilter     TextureFilter
	MinFilter     TextureFilter
	MipFilter     MipFilter
	AddrU         AddressMode
	AddrV         AddressMode
	AddrW         AddressMode
}

// DescriptorCodec decodes and encodes texture descriptor bytes. The
// bundled implementation is a reference codec: it round-trips a
// TobjDescriptor faithfully but is not byte-compatible with the real
// descriptor format, whose internal layout this project does not model.
type DescriptorCodec interface {
	Decode(data []byte) (*TobjDescriptor, error)
	Encode(d *TobjDescriptor) ([]byte, error)
}

type referenceDescriptorCodec struct{}

// DefaultDescriptorCodec is the built-in reference DescriptorCodec.
var DefaultDescriptorCodec DescriptorCodec = referenceDescriptorCodec{}

const descriptorMagic = 0x544f424a // "TOBJ" as a little-endian 32-bit tag

func (referenceDescriptorCodec) Decode(data []byte) (*TobjDescriptor, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("descriptor truncated: %d bytes", len(data))
	}
	if Endian.Uint32(data[0:4]) != descriptorMagic {
		return nil, fmt.Errorf("not a recognized texture descriptor")
	}
	cursor := 4
	kind := TextureKind(data[cursor])
	cursor++
	addrU := AddressMode(data[cursor])
	cursor++
	addrV := AddressMode(data[cursor])
	cursor++
	addrW := AddressMode(data[cursor])
	cursor++
	if cursor+3 > len(data) {
		return nil, fmt.Errorf("descriptor truncated: %d bytes", len(data))
	}
	magFilter := TextureFilter(data[cursor])
	cursor++
	minFilter := TextureFilter(data[cursor])
	cursor++
	mipFilter := MipFilter(data[cursor])
	cursor++

	if cursor+2 > len(data) {
		return nil, fmt.Errorf("descriptor truncated: missing path length")
	}
	pathLen := int(Endian.Uint16(data[cursor : cursor+2]))
	cursor += 2
	if cursor+pathLen > len(data) {
		return nil, fmt.Errorf("descriptor truncated: path length %d exceeds remaining %d bytes", pathLen, len(data)-cursor)
	}
	path := string(data[cursor : cursor+pathLen])

	return &TobjDescriptor{
		Kind:        kind,
		TexturePath: path,
		MagFilter:   magFilter,
		MinFilter:   minFilter,
		MipFilter:   mipFilter,
		AddrU:       addrU,
		AddrV:       addrV,
		AddrW:       addrW,
	}, nil
}

func (referenceDescriptorCodec) Encode(d *TobjDescriptor) ([]byte, error) {
	if len(d.TexturePath) > 1<<16-1 {
		return nil, fmt.Errorf("texture path too long: %d bytes", len(d.TexturePath))
	}
	buf := make([]byte, 11+len(d.TexturePath))
	Endian.PutUint32(buf[0:4], descriptorMagic)
	buf[4] = byte(d.Kind)
	buf[5] = byte(d.AddrU)
	buf[6] = byte(d.AddrV)
	buf[7] = byte(d.AddrW)
	buf[8] = byte(d.MagFilter)
	buf[9] = byte(d.MinFilter)
	// MipFilter, path length and path follow; laid out this way to keep
	// fixed fields contiguous.
	out := make([]byte, 0, 11+len(d.TexturePath))
	out = append(out, buf[:10]...)
	out = append(out, byte(d.MipFilter))
	pathLen := make([]byte, 2)
	Endian.PutUint16(pathLen, uint16(len(d.TexturePath)))
	out = append(out, pathLen...)
	out = append(out, d.TexturePath...)
	return out, nil
}
