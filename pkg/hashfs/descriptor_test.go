package hashfs

import "testing"

func TestReferenceDescriptorCodecRoundTrip(t *testing.T) {
	want := &TobjDescriptor{
		Kind:        TextureCubeMap,
		TexturePath: "/material/env/sky.dds",
		MagFilter:   FilterLinear,
		MinFilter:   FilterPoint,
		MipFilter:   MipFilterLinear,
		AddrU:       AddressWrap,
		AddrV:       AddressClamp,
		AddrW:       AddressBorder,
	}

	encoded, err := DefaultDescriptorCodec.Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DefaultDescriptorCodec.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if *got != *want {
		t.Errorf("round trip = %+v, want %+v", *got, *want)
	}
}

func TestReferenceDescriptorCodecEmptyPath(t *testing.T) {
	want := &TobjDescriptor{Kind: TextureMap2D, TexturePath: ""}
	encoded, err := DefaultDescriptorCodec.Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DefaultDescriptorCodec.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.TexturePath != "" {
		t.Errorf("TexturePath = %q, want empty", got.TexturePath)
	}
}

func TestReferenceDescriptorCodecRejectsBadMagic(t *testing.T) {
	_, err := DefaultDescriptorCodec.Decode([]byte{0, 0, 0, 0, 0, 0, 0, 0})
	if err == nil {
		t.Error("expected error for bad magic")
	}
}

func TestReferenceDescriptorCodecRejectsTruncated(t *testing.T) {
	full, err := DefaultDescriptorCodec.Encode(&TobjDescriptor{TexturePath: "abc"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, err = DefaultDescriptorCodec.Decode(full[:len(full)-2])
	if err == nil {
		t.Error("expected error for truncated descriptor")
	}
}
