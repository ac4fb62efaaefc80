// Package codec defines the pluggable compression capability consumed
// by the transport and ships an LZ4 block implementation matching the
// reference wire framing: a 4-byte little-endian uncompressed-size
// prologue followed by one LZ4 block.
package codec

import "errors"

// ErrCodec marks malformed compressed input. Fatal for the one frame
// that carried it, never for the connection.
var ErrCodec = errors.New("codec: malformed data")

// ErrIncompressible is returned by Compress when the input does not
// shrink. Not a frame failure: the sender ships the raw bytes without
// the Compressed flag instead.
var ErrIncompressible = errors.New("codec: incompressible input")

// Codec is the compress/decompress capability. Implementations may keep
// internal scratch state and are not required to be safe for concurrent
// use; the sender pipeline owns one instance.
type Codec interface {
	// Compress returns the framed compressed representation of raw, or
	// ErrIncompressible when compression would not help.
	Compress(raw []byte) ([]byte, error)
	// Decompress reverses Compress. expectedSize is the decoded size
	// the caller is prepared to accept; output larger than that is an
	// ErrCodec failure.
	Decompress(compressed []byte, expectedSize int) ([]byte, error)
}

// DecompressorInto is implemented by codecs that can decode into
// caller-supplied space, letting the receive path target pooled buffers
// directly.
type DecompressorInto interface {
	// DecompressInto decodes into dst, returning the decoded length.
	DecompressInto(compressed []byte, dst []byte) (int, error)
}

// Passthrough is the no-op codec: Compress always reports
// ErrIncompressible, so every frame ships raw.
type Passthrough struct{}

// Compress implements Codec.
func (Passthrough) Compress(raw []byte) ([]byte, error) {
	return nil, ErrIncompressible
}

// Decompress implements Codec. A passthrough session never sets the
// Compressed flag, so receiving compressed data through it is malformed.
func (Passthrough) Decompress(compressed []byte, expectedSize int) ([]byte, error) {
	return nil, ErrCodec
}
