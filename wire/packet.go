// Package wire implements the binary packet framing for the aqueduct
// transport: a fixed 20-byte big-endian header followed by an opaque
// payload. It provides the stateless header codec and the reassembly
// state machine that recovers packet boundaries from a TCP byte stream.
package wire

import "github.com/zsiec/aqueduct/pool"

// HeaderSize is the fixed wire size of a packet header:
// length:u32 | type:u32 | timestamp:u64 | flags:u32, all big-endian.
const HeaderSize = 20

// DefaultMaxFrameBytes bounds payload length when no maximum is
// configured. Large enough for an uncompressed 4K BGRA frame.
const DefaultMaxFrameBytes = 32 << 20

// PacketType identifies the channel a packet belongs to.
type PacketType uint32

// Wire packet type enumerants. Anything else is a malformed header.
const (
	TypeVideo    PacketType = 1
	TypeAudio    PacketType = 2
	TypeMetadata PacketType = 3
	TypeControl  PacketType = 4
)

// Valid reports whether t is a known packet type.
func (t PacketType) Valid() bool {
	return t >= TypeVideo && t <= TypeControl
}

func (t PacketType) String() string {
	switch t {
	case TypeVideo:
		return "video"
	case TypeAudio:
		return "audio"
	case TypeMetadata:
		return "metadata"
	case TypeControl:
		return "control"
	}
	return "unknown"
}

// Flags is the per-packet flag bitset.
type Flags uint32

const (
	// FlagKeyFrame marks a self-contained frame that must never be
	// dropped by an overloaded send queue.
	FlagKeyFrame Flags = 1 << 0
	// FlagEndOfStream announces orderly stream shutdown; carried on a
	// final Control packet.
	FlagEndOfStream Flags = 1 << 1
	// FlagCompressed marks a payload whose media body has been run
	// through the session codec.
	FlagCompressed Flags = 1 << 2
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// Header is the fixed packet header. Length counts payload bytes only,
// excluding the header itself. Timestamp is microseconds on the sender
// session's monotonic clock, shared across channels.
type Header struct {
	Length    uint32
	Type      PacketType
	Timestamp uint64
	Flags     Flags
}

// Packet is a header plus its payload. Payload is nil for zero-length
// packets (keep-alives). The packet exclusively owns its payload buffer;
// ownership transfers on hand-off between stages, and whoever holds the
// packet last must call Release.
type Packet struct {
	Header  Header
	Payload *pool.Buffer
}

// Release returns the payload buffer to the pool. Safe on nil payloads.
func (p *Packet) Release() {
	if p.Payload != nil {
		p.Payload.Release()
		p.Payload = nil
	}
}
