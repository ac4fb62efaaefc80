package wire

import (
	"errors"
	"fmt"

	"github.com/zsiec/aqueduct/pool"
)

// ReassemblerState is the parse phase of a Reassembler.
type ReassemblerState int

const (
	// StateAwaitingHeader means fewer than HeaderSize bytes of the next
	// packet have arrived.
	StateAwaitingHeader ReassemblerState = iota
	// StateAwaitingPayload means a header has been parsed and the
	// reassembler is collecting its payload bytes.
	StateAwaitingPayload
	// StateClosed is terminal: stream end or an unrecoverable framing
	// error. A closed reassembler cannot be restarted.
	StateClosed
)

// Reassembler converts an append-only incoming byte stream into complete
// packets, tolerant of arbitrary read-chunk boundaries. One instance
// serves one connection; it is not safe for concurrent use.
//
// Only partial header bytes are ever buffered between Feed calls (at
// most HeaderSize-1 of them); payload bytes are copied exactly once,
// straight from the caller's chunk into the pool-acquired payload
// buffer of the packet under construction.
type Reassembler struct {
	pool      *pool.Pool
	maxLength uint32
	state     ReassemblerState

	acc     *pool.Buffer // partial header leftover across chunks
	header  Header
	payload *pool.Buffer // in-flight payload, nil unless AwaitingPayload
}

// NewReassembler creates a Reassembler drawing payload buffers from p.
// maxLength bounds advertised payload lengths (0 selects
// DefaultMaxFrameBytes).
func NewReassembler(p *pool.Pool, maxLength uint32) (*Reassembler, error) {
	if maxLength == 0 {
		maxLength = DefaultMaxFrameBytes
	}
	if maxLength > pool.MaxBufferCapacity {
		return nil, fmt.Errorf("wire: max frame %d exceeds pool buffer capacity %d", maxLength, pool.MaxBufferCapacity)
	}
	acc, err := p.Acquire(HeaderSize)
	if err != nil {
		return nil, err
	}
	return &Reassembler{pool: p, maxLength: maxLength, acc: acc}, nil
}

// State returns the current parse phase.
func (r *Reassembler) State() ReassemblerState {
	return r.state
}

// Feed appends a chunk of stream bytes and drains every complete packet
// now available, in arrival order. Emitted packets own pool-acquired
// payload buffers; the caller must Release each one.
//
// A framing error closes the reassembler and releases everything it
// held; packets completed earlier in the same chunk are still returned
// alongside the error.
func (r *Reassembler) Feed(chunk []byte) ([]*Packet, error) {
	if r.state == StateClosed {
		return nil, ErrClosed
	}

	var packets []*Packet

	for len(chunk) > 0 {
		switch r.state {
		case StateAwaitingHeader:
			var headerBytes []byte
			if r.acc.Len() == 0 && len(chunk) >= HeaderSize {
				// Fast path: parse straight from the chunk.
				headerBytes = chunk[:HeaderSize]
				chunk = chunk[HeaderSize:]
			} else {
				take := HeaderSize - r.acc.Len()
				if take > len(chunk) {
					take = len(chunk)
				}
				r.acc.Append(chunk[:take])
				chunk = chunk[take:]
				if r.acc.Len() < HeaderSize {
					return packets, nil
				}
				headerBytes = r.acc.Bytes()
			}

			h, err := DecodeHeader(headerBytes, r.maxLength)
			if err != nil {
				r.Close()
				return packets, r.classify(err)
			}
			r.acc.Reset()
			r.header = h

			if h.Length == 0 {
				packets = append(packets, &Packet{Header: h})
				continue
			}

			payload, err := r.pool.Acquire(int(h.Length))
			if err != nil {
				r.Close()
				return packets, fmt.Errorf("wire: acquire payload: %w", err)
			}
			r.payload = payload
			r.state = StateAwaitingPayload

		case StateAwaitingPayload:
			take := int(r.header.Length) - r.payload.Len()
			if take > len(chunk) {
				take = len(chunk)
			}
			r.payload.Append(chunk[:take])
			chunk = chunk[take:]

			if uint32(r.payload.Len()) < r.header.Length {
				return packets, nil
			}
			packets = append(packets, &Packet{Header: r.header, Payload: r.payload})
			r.payload = nil
			r.state = StateAwaitingHeader
		}
	}
	return packets, nil
}

// classify maps a header decode failure onto the connection-fatal
// taxonomy: oversize lengths are protocol violations, everything else
// stays a malformed header.
func (r *Reassembler) classify(err error) error {
	var mh *MalformedHeaderError
	if errors.As(err, &mh) && mh.Field == "length" {
		return fmt.Errorf("%w: payload length %d exceeds limit %d", ErrProtocolViolation, mh.Value, r.maxLength)
	}
	return err
}

// Close transitions to the terminal state, releasing the accumulation
// buffer and any in-flight payload back to the pool. Idempotent; called
// on stream end, framing errors, or connection cancellation mid-frame.
func (r *Reassembler) Close() {
	if r.state == StateClosed {
		return
	}
	r.state = StateClosed
	if r.acc != nil {
		r.acc.Release()
		r.acc = nil
	}
	if r.payload != nil {
		r.payload.Release()
		r.payload = nil
	}
}
