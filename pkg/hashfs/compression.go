package hashfs

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// CompressionLevel selects the effort spent compressing payloads and
// tables (spec §4.10).
type CompressionLevel int

const (
	CompressionNone CompressionLevel = iota
	CompressionFastest
	CompressionOptimal
	CompressionSmallestSize
)

func (l CompressionLevel) zlibLevel() int {
	switch l {
	case CompressionNone:
		return zlib.NoCompression
	case CompressionFastest:
		return zlib.BestSpeed
	case CompressionSmallestSize:
		return zlib.BestCompression
	case CompressionOptimal:
		fallthrough
	default:
		return zlib.DefaultCompression
	}
}

// Compressor is the collaborator the codec uses for the zlib/deflate
// streams behind the v2 entry table, the v2 metadata table, and
// above-threshold file payloads. The actual codec is out of scope for this
// package (spec §1) and is always reached through this interface.
type Compressor interface {
	Compress(data []byte, level CompressionLevel) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// zlibCompressor is the default Compressor, backed by klauspost/compress's
// zlib implementation.
type zlibCompressor struct{}

// DefaultCompressor is the zlib-backed Compressor used unless a caller
// supplies their own.
var DefaultCompressor Compressor = zlibCompressor{}

func (zlibCompressor) Compress(data []byte, level CompressionLevel) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level.zlibLevel())
	if err != nil {
		return nil, fmt.Errorf("creating zlib writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("writing zlib stream: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing zlib stream: %w", err)
	}
	return buf.Bytes(), nil
}

func (zlibCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening zlib stream: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading zlib stream: %w", err)
	}
	return out, nil
}
