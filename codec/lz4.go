package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// lz4PrologueSize is the little-endian uncompressed-size prefix carried
// before the LZ4 block.
const lz4PrologueSize = 4

// LZ4 is a block-mode LZ4 codec. It reuses one scratch buffer across
// Compress calls and is not safe for concurrent use.
type LZ4 struct {
	c       lz4.Compressor
	scratch []byte
}

// NewLZ4 returns a ready LZ4 codec.
func NewLZ4() *LZ4 {
	return &LZ4{}
}

// Compress implements Codec. The output is only valid until the next
// Compress call on this codec.
func (z *LZ4) Compress(raw []byte) ([]byte, error) {
	bound := lz4PrologueSize + lz4.CompressBlockBound(len(raw))
	if cap(z.scratch) < bound {
		z.scratch = make([]byte, bound)
	}
	out := z.scratch[:bound]

	binary.LittleEndian.PutUint32(out[0:4], uint32(len(raw)))
	n, err := z.c.CompressBlock(raw, out[lz4PrologueSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	if n == 0 || lz4PrologueSize+n >= len(raw) {
		return nil, ErrIncompressible
	}
	return out[:lz4PrologueSize+n], nil
}

// Decompress implements Codec.
func (z *LZ4) Decompress(compressed []byte, expectedSize int) ([]byte, error) {
	size, err := z.decodedSize(compressed, expectedSize)
	if err != nil {
		return nil, err
	}
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(compressed[lz4PrologueSize:], dst)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	if n != size {
		return nil, fmt.Errorf("%w: decoded %d bytes, prologue claimed %d", ErrCodec, n, size)
	}
	return dst, nil
}

// DecompressInto implements DecompressorInto.
func (z *LZ4) DecompressInto(compressed []byte, dst []byte) (int, error) {
	size, err := z.decodedSize(compressed, len(dst))
	if err != nil {
		return 0, err
	}
	n, err := lz4.UncompressBlock(compressed[lz4PrologueSize:], dst[:size])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	if n != size {
		return 0, fmt.Errorf("%w: decoded %d bytes, prologue claimed %d", ErrCodec, n, size)
	}
	return n, nil
}

// decodedSize validates the size prologue against the caller's bound.
func (z *LZ4) decodedSize(compressed []byte, limit int) (int, error) {
	if len(compressed) < lz4PrologueSize {
		return 0, fmt.Errorf("%w: %d bytes, size prologue needs %d", ErrCodec, len(compressed), lz4PrologueSize)
	}
	size := int(binary.LittleEndian.Uint32(compressed[0:4]))
	if size > limit {
		return 0, fmt.Errorf("%w: decoded size %d exceeds limit %d", ErrCodec, size, limit)
	}
	return size, nil
}
