package media

import (
	"encoding/binary"
	"fmt"

	"github.com/zsiec/aqueduct/pool"
)

// ErrInvalidPayload means a media payload prologue did not parse. The
// frame is dropped; the connection survives.
var ErrInvalidPayload = fmt.Errorf("media: invalid payload")

// Per-type payload prologue sizes. A video payload is
// width:u32 | height:u32 | format:u8 | flags:u8 | body; an audio payload
// is rate:u32 | channels:u32 | body; a metadata payload is the raw UTF-8
// document. Integers are big-endian, matching the packet header. The
// body may be codec-compressed (signaled by the packet's Compressed
// flag); the prologue never is.
const (
	VideoPrologueSize = 10
	AudioPrologueSize = 8
)

// PutVideoPrologue writes the 10-byte video prologue into dst.
func PutVideoPrologue(dst []byte, f *VideoFrame) error {
	if len(dst) < VideoPrologueSize {
		return fmt.Errorf("%w: prologue needs %d bytes, have %d", ErrInvalidPayload, VideoPrologueSize, len(dst))
	}
	binary.BigEndian.PutUint32(dst[0:4], f.Width)
	binary.BigEndian.PutUint32(dst[4:8], f.Height)
	dst[8] = byte(f.Format)
	dst[9] = byte(f.Flags)
	return nil
}

// ParseVideoPayload parses a video payload, returning a frame whose
// dimensional fields are populated and the body bytes that follow the
// prologue. The body aliases payload; no copy is made.
func ParseVideoPayload(payload []byte) (*VideoFrame, []byte, error) {
	if len(payload) < VideoPrologueSize {
		return nil, nil, fmt.Errorf("%w: video payload %d bytes, prologue needs %d", ErrInvalidPayload, len(payload), VideoPrologueSize)
	}
	f := &VideoFrame{
		Width:  binary.BigEndian.Uint32(payload[0:4]),
		Height: binary.BigEndian.Uint32(payload[4:8]),
		Format: PixelFormat(payload[8]),
		Flags:  FrameFlags(payload[9]),
	}
	if !f.Format.Valid() {
		return nil, nil, fmt.Errorf("%w: pixel format %d", ErrInvalidPayload, payload[8])
	}
	return f, payload[VideoPrologueSize:], nil
}

// PutAudioPrologue writes the 8-byte audio prologue into dst.
func PutAudioPrologue(dst []byte, f *AudioFrame) error {
	if len(dst) < AudioPrologueSize {
		return fmt.Errorf("%w: prologue needs %d bytes, have %d", ErrInvalidPayload, AudioPrologueSize, len(dst))
	}
	binary.BigEndian.PutUint32(dst[0:4], f.SampleRate)
	binary.BigEndian.PutUint32(dst[4:8], f.Channels)
	return nil
}

// ParseAudioPayload parses an audio payload, returning a frame with the
// format fields populated and the sample body that follows the prologue.
func ParseAudioPayload(payload []byte) (*AudioFrame, []byte, error) {
	if len(payload) < AudioPrologueSize {
		return nil, nil, fmt.Errorf("%w: audio payload %d bytes, prologue needs %d", ErrInvalidPayload, len(payload), AudioPrologueSize)
	}
	f := &AudioFrame{
		SampleRate: binary.BigEndian.Uint32(payload[0:4]),
		Channels:   binary.BigEndian.Uint32(payload[4:8]),
	}
	return f, payload[AudioPrologueSize:], nil
}

// SetBuffer records the pool buffer backing Data so Release can return
// it. Called by the receive path when a frame takes ownership of pooled
// payload bytes.
func (f *VideoFrame) SetBuffer(b *pool.Buffer) {
	f.buf = b
}

// SetBuffer records the pool buffer backing Data so Release can return it.
func (f *AudioFrame) SetBuffer(b *pool.Buffer) {
	f.buf = b
}
