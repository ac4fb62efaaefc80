package wire

import "encoding/binary"

// PutHeader writes the 20-byte header into dst without allocating.
// Returns ErrBufferTooSmall if dst is shorter than HeaderSize.
func PutHeader(dst []byte, h Header) error {
	if len(dst) < HeaderSize {
		return ErrBufferTooSmall
	}
	binary.BigEndian.PutUint32(dst[0:4], h.Length)
	binary.BigEndian.PutUint32(dst[4:8], uint32(h.Type))
	binary.BigEndian.PutUint64(dst[8:16], h.Timestamp)
	binary.BigEndian.PutUint32(dst[16:20], uint32(h.Flags))
	return nil
}

// EncodeInto frames header and payload into dst, returning the number of
// bytes written. It does not allocate; dst must have room for
// HeaderSize + len(payload) or ErrBufferTooSmall is returned. The
// header's Length field is taken from len(payload), not from h.
func EncodeInto(h Header, payload []byte, dst []byte) (int, error) {
	total := HeaderSize + len(payload)
	if len(dst) < total {
		return 0, ErrBufferTooSmall
	}
	h.Length = uint32(len(payload))
	if err := PutHeader(dst, h); err != nil {
		return 0, err
	}
	copy(dst[HeaderSize:], payload)
	return total, nil
}

// DecodeHeader parses exactly HeaderSize bytes. maxLength bounds the
// advertised payload length (0 selects DefaultMaxFrameBytes); a header
// claiming more is rejected before any allocation can happen. Parsing is
// deterministic: the same bytes always produce the same header.
func DecodeHeader(b []byte, maxLength uint32) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrBufferTooSmall
	}
	if maxLength == 0 {
		maxLength = DefaultMaxFrameBytes
	}

	h := Header{
		Length:    binary.BigEndian.Uint32(b[0:4]),
		Type:      PacketType(binary.BigEndian.Uint32(b[4:8])),
		Timestamp: binary.BigEndian.Uint64(b[8:16]),
		Flags:     Flags(binary.BigEndian.Uint32(b[16:20])),
	}

	if !h.Type.Valid() {
		return Header{}, &MalformedHeaderError{Field: "type", Value: uint64(h.Type)}
	}
	if h.Length > maxLength {
		return Header{}, &MalformedHeaderError{Field: "length", Value: uint64(h.Length)}
	}
	return h, nil
}
