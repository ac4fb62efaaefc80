package wire

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/zsiec/aqueduct/pool"
)

func encodePackets(t *testing.T, headers []Header, payloads [][]byte) []byte {
	t.Helper()
	var stream []byte
	for i, h := range headers {
		dst := make([]byte, HeaderSize+len(payloads[i]))
		n, err := EncodeInto(h, payloads[i], dst)
		if err != nil {
			t.Fatal(err)
		}
		stream = append(stream, dst[:n]...)
	}
	return stream
}

func feedAll(t *testing.T, r *Reassembler, chunks [][]byte) []*Packet {
	t.Helper()
	var out []*Packet
	for _, c := range chunks {
		packets, err := r.Feed(c)
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		out = append(out, packets...)
	}
	return out
}

func TestReassembler_SingleChunk(t *testing.T) {
	p := pool.New(0)
	r, err := NewReassembler(p, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	payload := bytes.Repeat([]byte{0x5A}, 300)
	stream := encodePackets(t,
		[]Header{{Type: TypeVideo, Timestamp: 7, Flags: FlagKeyFrame}},
		[][]byte{payload})

	packets := feedAll(t, r, [][]byte{stream})
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
	defer packets[0].Release()

	h := packets[0].Header
	if h.Type != TypeVideo || h.Timestamp != 7 || h.Length != 300 {
		t.Errorf("header = %+v", h)
	}
	if !bytes.Equal(packets[0].Payload.Bytes(), payload) {
		t.Error("payload mismatch")
	}
	if r.State() != StateAwaitingHeader {
		t.Errorf("state = %v, want AwaitingHeader", r.State())
	}
}

// TestReassembler_SplitMidHeaderAndMidPayload feeds one 1024-byte video
// packet split at byte offsets 7 and 30 and expects exactly one packet
// out.
func TestReassembler_SplitMidHeaderAndMidPayload(t *testing.T) {
	p := pool.New(0)
	r, err := NewReassembler(p, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	payload := make([]byte, 1024)
	for i := range payload {
		payload[i] = byte(i)
	}
	stream := encodePackets(t,
		[]Header{{Type: TypeVideo, Timestamp: 5000, Flags: FlagKeyFrame}},
		[][]byte{payload})

	chunks := [][]byte{stream[:7], stream[7:30], stream[30:]}
	packets := feedAll(t, r, chunks)
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
	defer packets[0].Release()

	h := packets[0].Header
	if h.Length != 1024 || h.Type != TypeVideo || h.Timestamp != 5000 || !h.Flags.Has(FlagKeyFrame) {
		t.Errorf("header = %+v", h)
	}
	if !bytes.Equal(packets[0].Payload.Bytes(), payload) {
		t.Error("payload mismatch")
	}
	if r.State() != StateAwaitingHeader {
		t.Errorf("state = %v, want AwaitingHeader", r.State())
	}
}

// TestReassembler_ChunkBoundaryInvariant verifies that any split of a
// packet sequence produces the same packets as feeding it whole.
func TestReassembler_ChunkBoundaryInvariant(t *testing.T) {
	headers := []Header{
		{Type: TypeVideo, Timestamp: 100, Flags: FlagKeyFrame},
		{Type: TypeAudio, Timestamp: 110},
		{Type: TypeControl, Timestamp: 120},
		{Type: TypeMetadata, Timestamp: 130},
		{Type: TypeVideo, Timestamp: 140, Flags: FlagKeyFrame | FlagCompressed},
	}
	payloads := [][]byte{
		bytes.Repeat([]byte{1}, 513),
		bytes.Repeat([]byte{2}, 64),
		nil, // zero-length control
		[]byte("<tally/>"),
		bytes.Repeat([]byte{3}, 2048),
	}
	stream := encodePackets(t, headers, payloads)

	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 50; trial++ {
		var chunks [][]byte
		rest := stream
		for len(rest) > 0 {
			n := 1 + rng.Intn(len(rest))
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}

		p := pool.New(0)
		r, err := NewReassembler(p, 0)
		if err != nil {
			t.Fatal(err)
		}
		packets := feedAll(t, r, chunks)
		if len(packets) != len(headers) {
			t.Fatalf("trial %d: got %d packets, want %d", trial, len(packets), len(headers))
		}
		for i, pkt := range packets {
			want := headers[i]
			want.Length = uint32(len(payloads[i]))
			if pkt.Header != want {
				t.Errorf("trial %d packet %d: header = %+v, want %+v", trial, i, pkt.Header, want)
			}
			var got []byte
			if pkt.Payload != nil {
				got = pkt.Payload.Bytes()
			}
			if !bytes.Equal(got, payloads[i]) {
				t.Errorf("trial %d packet %d: payload mismatch", trial, i)
			}
			pkt.Release()
		}
		r.Close()
	}
}

func TestReassembler_ZeroLengthPayload(t *testing.T) {
	p := pool.New(0)
	r, _ := NewReassembler(p, 0)
	defer r.Close()

	stream := encodePackets(t, []Header{{Type: TypeControl, Timestamp: 9}}, [][]byte{nil})
	packets := feedAll(t, r, [][]byte{stream})
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
	if packets[0].Payload != nil {
		t.Error("zero-length packet should carry nil payload")
	}
	if packets[0].Header.Length != 0 {
		t.Errorf("length = %d", packets[0].Header.Length)
	}
}

func TestReassembler_UnknownTypeCloses(t *testing.T) {
	p := pool.New(0)
	r, _ := NewReassembler(p, 0)

	raw := make([]byte, HeaderSize)
	raw[7] = 99 // type = 99

	packets, err := r.Feed(raw)
	if !errors.Is(err, ErrMalformedHeader) {
		t.Errorf("err = %v, want ErrMalformedHeader", err)
	}
	if len(packets) != 0 {
		t.Errorf("emitted %d packets, want 0", len(packets))
	}
	if r.State() != StateClosed {
		t.Errorf("state = %v, want Closed", r.State())
	}

	if _, err := r.Feed([]byte{0}); !errors.Is(err, ErrClosed) {
		t.Errorf("feed after close: err = %v, want ErrClosed", err)
	}
}

func TestReassembler_OversizeLengthIsProtocolViolation(t *testing.T) {
	p := pool.New(0)
	r, err := NewReassembler(p, 1024)
	if err != nil {
		t.Fatal(err)
	}

	raw := make([]byte, HeaderSize)
	raw[0], raw[1], raw[2], raw[3] = 0xFF, 0xFF, 0xFF, 0xFF // absurd length
	raw[7] = byte(TypeVideo)

	before := p.Stats().Allocs
	_, ferr := r.Feed(raw)
	if !errors.Is(ferr, ErrProtocolViolation) {
		t.Errorf("err = %v, want ErrProtocolViolation", ferr)
	}
	if r.State() != StateClosed {
		t.Errorf("state = %v, want Closed", r.State())
	}
	if after := p.Stats().Allocs; after != before {
		t.Errorf("allocated %d buffers for a rejected length", after-before)
	}
}

func TestReassembler_PacketsBeforeErrorStillEmitted(t *testing.T) {
	p := pool.New(0)
	r, _ := NewReassembler(p, 0)

	good := encodePackets(t, []Header{{Type: TypeAudio, Timestamp: 3}}, [][]byte{{0xAA}})
	bad := make([]byte, HeaderSize)
	bad[7] = 99

	packets, err := r.Feed(append(append([]byte{}, good...), bad...))
	if !errors.Is(err, ErrMalformedHeader) {
		t.Errorf("err = %v, want ErrMalformedHeader", err)
	}
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want the one completed before the error", len(packets))
	}
	packets[0].Release()
}

// TestReassembler_CloseMidFrameReleasesBuffers checks the cancellation
// path: buffers held for a half-received frame go back to the pool.
func TestReassembler_CloseMidFrameReleasesBuffers(t *testing.T) {
	p := pool.New(0)
	r, _ := NewReassembler(p, 0)

	stream := encodePackets(t, []Header{{Type: TypeVideo, Timestamp: 1}}, [][]byte{bytes.Repeat([]byte{7}, 500)})
	if _, err := r.Feed(stream[:100]); err != nil {
		t.Fatal(err)
	}
	if r.State() != StateAwaitingPayload {
		t.Fatalf("state = %v, want AwaitingPayload", r.State())
	}

	r.Close()

	s := p.Stats()
	if s.Acquires != s.Releases {
		t.Errorf("acquires %d != releases %d after mid-frame close", s.Acquires, s.Releases)
	}
}
