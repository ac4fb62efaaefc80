// Package media defines the frame types that flow through the aqueduct
// pipeline — raw video pictures, audio sample blocks, and metadata
// documents — together with their wire payload layouts.
package media

import "github.com/zsiec/aqueduct/pool"

// Channel buffer sizes used by the receiver to decouple frame delivery
// from the consumer. Sized to absorb jitter without excessive memory:
// ~2 seconds of video at 30 fps, ~2.5s of audio blocks.
const (
	VideoBufferSize    = 60
	AudioBufferSize    = 120
	MetadataBufferSize = 30
)

// PixelFormat identifies the pixel layout of a raw video frame.
type PixelFormat uint8

// Supported pixel formats. Values are wire-stable.
const (
	FormatUYVY PixelFormat = 0 // 4:2:2 8-bit
	FormatUYVA PixelFormat = 1 // 4:2:2:4 8-bit
	FormatBGRA PixelFormat = 2 // 4:4:4:4 8-bit
	FormatNV12 PixelFormat = 3 // 4:2:0 planar
	FormatYV12 PixelFormat = 4 // 4:2:0 planar
	FormatP216 PixelFormat = 5 // 4:2:2 planar 16-bit
	FormatPA16 PixelFormat = 6 // 4:2:2:4 planar 16-bit
)

// Valid reports whether f is a known pixel format.
func (f PixelFormat) Valid() bool {
	return f <= FormatPA16
}

func (f PixelFormat) String() string {
	switch f {
	case FormatUYVY:
		return "UYVY"
	case FormatUYVA:
		return "UYVA"
	case FormatBGRA:
		return "BGRA"
	case FormatNV12:
		return "NV12"
	case FormatYV12:
		return "YV12"
	case FormatP216:
		return "P216"
	case FormatPA16:
		return "PA16"
	}
	return "invalid"
}

// FrameFlags carries per-frame pixel semantics.
type FrameFlags uint8

const (
	// FlagAlpha marks a frame whose format carries an alpha plane.
	FlagAlpha FrameFlags = 1 << 0
	// FlagPremultiplied marks alpha-premultiplied color values.
	FlagPremultiplied FrameFlags = 1 << 1
	// FlagHighBitDepth marks 16-bit sample formats.
	FlagHighBitDepth FrameFlags = 1 << 2
)

// VideoFrame is one raw video picture. Data holds tightly packed pixel
// bytes in Format's layout. Timestamp is microseconds on the sender
// session clock (populated on the receive side; ignored on send, where
// the stream synchronizer stamps frames).
type VideoFrame struct {
	Width     uint32
	Height    uint32
	Format    PixelFormat
	Flags     FrameFlags
	Timestamp uint64
	Data      []byte

	// KeyFrame marks a frame later frames depend on; the sender's
	// drop-oldest overload policy never evicts it. Raw self-contained
	// pictures leave it false: the next frame fully replaces them, so
	// they are safe to shed under load.
	KeyFrame bool

	// ClockAnomaly is set by the receiver when this frame's timestamp
	// ran backwards relative to the previous video frame. Advisory.
	ClockAnomaly bool

	buf *pool.Buffer
}

// AudioFrame is one block of interleaved 32-bit little-endian float
// samples.
type AudioFrame struct {
	SampleRate   uint32
	Channels     uint32
	Timestamp    uint64
	Data         []byte
	ClockAnomaly bool

	buf *pool.Buffer
}

// SampleCount returns the number of sample frames (all channels) in the
// block.
func (f *AudioFrame) SampleCount() int {
	if f.Channels == 0 {
		return 0
	}
	return len(f.Data) / 4 / int(f.Channels)
}

// MetadataFrame is one UTF-8 XML document (tally state, source name,
// custom events). The transport ships it opaque; interpretation is the
// consumer's concern.
type MetadataFrame struct {
	Timestamp    uint64
	Content      string
	ClockAnomaly bool
}

// Release returns the frame's backing pool buffer, if any. Frames built
// by the receiver alias pooled memory and must be released once the
// consumer is done with Data; frames from capture sources have no buffer
// and Release is a no-op.
func (f *VideoFrame) Release() {
	if f.buf != nil {
		f.buf.Release()
		f.buf = nil
		f.Data = nil
	}
}

// Release returns the frame's backing pool buffer, if any.
func (f *AudioFrame) Release() {
	if f.buf != nil {
		f.buf.Release()
		f.buf = nil
		f.Data = nil
	}
}
