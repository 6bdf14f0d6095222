package hashfs

import (
	"strconv"
	"strings"

	"github.com/scstools/hashfs/internal/cityhash"
)

// PathHasher is the collaborator that turns normalized path bytes into the
// 64-bit key used to index archive entries. CityHash-64 is the only
// supported method on disk (header field hashMethod == "CITY"), but the
// hash implementation itself is treated as an external collaborator
// (spec §1) and is always reached through this interface.
type PathHasher interface {
	Hash64(data []byte) uint64
}

// defaultHasher is the CityHash-64 implementation used when a
// ReaderFacade/WriterFacade is not given an explicit PathHasher.
type defaultHasher struct{}

func (defaultHasher) Hash64(data []byte) uint64 { return cityhash.Hash64(data) }

// DefaultHasher is the CityHash-64 PathHasher used unless a caller supplies
// their own.
var DefaultHasher PathHasher = defaultHasher{}

// HashPath computes the archive key for path under the given salt, using
// hasher as the underlying digest (pass nil to use DefaultHasher).
//
// Normalization: a single leading '/' is dropped. If salt is nonzero, the
// decimal text of salt is prepended (no separator) before the path bytes.
// The result is fed to hasher as UTF-8 bytes. Salt independence therefore
// holds for "/x" and "x": both normalize to the same byte sequence.
func HashPath(path string, salt uint16, hasher PathHasher) uint64 {
	if hasher == nil {
		hasher = DefaultHasher
	}
	normalized := strings.TrimPrefix(path, "/")

	var b strings.Builder
	b.Grow(len(normalized) + 5)
	if salt != 0 {
		b.WriteString(strconv.FormatUint(uint64(salt), 10))
	}
	b.WriteString(normalized)

	return hasher.Hash64([]byte(b.String()))
}
