// Package receive implements the consumer side of the aqueduct
// transport: it dials a sender, reassembles packets from the TCP byte
// stream, decompresses media bodies, validates channel timestamps, and
// delivers ready-to-decode frames on typed channels.
package receive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/zsiec/aqueduct/clock"
	"github.com/zsiec/aqueduct/codec"
	"github.com/zsiec/aqueduct/media"
	"github.com/zsiec/aqueduct/pool"
	"github.com/zsiec/aqueduct/wire"
)

// readChunkSize is the socket read buffer. Reads of any size are fine —
// the reassembler is chunk-boundary-invariant — but larger reads mean
// fewer syscalls on video-heavy streams.
const readChunkSize = 64 << 10

// Config configures a Receiver. Addr is required.
type Config struct {
	// Addr is the sender's host:port, from a discovery record or
	// supplied directly.
	Addr string
	// MaxFrameBytes bounds advertised payload lengths. 0 selects
	// wire.DefaultMaxFrameBytes. A header claiming more closes the
	// connection as a protocol violation.
	MaxFrameBytes uint32
	// Codec decompresses media bodies. Nil means codec.Passthrough
	// (compressed packets become per-frame codec errors).
	Codec codec.Codec
	// Pool supplies payload buffers. Nil creates a private pool.
	Pool *pool.Pool
	// Log defaults to slog.Default().
	Log *slog.Logger
}

// Stats is a point-in-time snapshot of receiver activity.
type Stats struct {
	PacketsReceived int64 `json:"packetsReceived"`
	BytesReceived   int64 `json:"bytesReceived"`
	FramesDelivered int64 `json:"framesDelivered"`
	CodecErrors     int64 `json:"codecErrors"`
	ClockAnomalies  int64 `json:"clockAnomalies"`
	KeepAlives      int64 `json:"keepAlives"`
}

// Receiver consumes one sender connection. Create with Dial, consume
// the Video/Audio/Metadata channels, and run the read loop with Run.
// Frames delivered on the channels alias pooled buffers; call Release
// on each once decoded.
type Receiver struct {
	log   *slog.Logger
	conn  net.Conn
	pool  *pool.Pool
	comp  codec.Codec
	reasm *wire.Reassembler
	valid *clock.Validator

	videoCh    chan *media.VideoFrame
	audioCh    chan *media.AudioFrame
	metadataCh chan *media.MetadataFrame

	packetsReceived atomic.Int64
	bytesReceived   atomic.Int64
	framesDelivered atomic.Int64
	codecErrors     atomic.Int64
	clockAnomalies  atomic.Int64
	keepAlives      atomic.Int64
}

// Dial connects to a sender and prepares a Receiver. The first bytes on
// the wire are already a framed packet; there is no handshake beyond
// TCP's own.
func Dial(ctx context.Context, cfg Config) (*Receiver, error) {
	if cfg.Addr == "" {
		return nil, errors.New("receive: sender address required")
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.Passthrough{}
	}
	if cfg.Pool == nil {
		cfg.Pool = pool.New(0)
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("receive: dial %s: %w", cfg.Addr, err)
	}

	reasm, err := wire.NewReassembler(cfg.Pool, cfg.MaxFrameBytes)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Receiver{
		log:        cfg.Log.With("component", "receiver", "remote", conn.RemoteAddr().String()),
		conn:       conn,
		pool:       cfg.Pool,
		comp:       cfg.Codec,
		reasm:      reasm,
		valid:      clock.NewValidator(),
		videoCh:    make(chan *media.VideoFrame, media.VideoBufferSize),
		audioCh:    make(chan *media.AudioFrame, media.AudioBufferSize),
		metadataCh: make(chan *media.MetadataFrame, media.MetadataBufferSize),
	}, nil
}

// Video returns the decoded video frame channel. Closed when Run exits.
func (r *Receiver) Video() <-chan *media.VideoFrame { return r.videoCh }

// Audio returns the decoded audio frame channel. Closed when Run exits.
func (r *Receiver) Audio() <-chan *media.AudioFrame { return r.audioCh }

// Metadata returns the metadata frame channel. Closed when Run exits.
func (r *Receiver) Metadata() <-chan *media.MetadataFrame { return r.metadataCh }

// Stats returns a snapshot of receiver counters.
func (r *Receiver) Stats() Stats {
	return Stats{
		PacketsReceived: r.packetsReceived.Load(),
		BytesReceived:   r.bytesReceived.Load(),
		FramesDelivered: r.framesDelivered.Load(),
		CodecErrors:     r.codecErrors.Load(),
		ClockAnomalies:  r.clockAnomalies.Load(),
		KeepAlives:      r.keepAlives.Load(),
	}
}

// Run reads the byte stream until the peer disconnects, the sender
// announces end-of-stream, ctx is cancelled, or a framing violation
// closes the session. Orderly endings return nil; a protocol violation
// surfaces as an error after the frame channels close, so the consumer
// sees the packet sequence simply end.
func (r *Receiver) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer func() {
		close(done)
		r.reasm.Close()
		r.conn.Close()
		close(r.videoCh)
		close(r.audioCh)
		close(r.metadataCh)
	}()

	go func() {
		select {
		case <-ctx.Done():
			r.conn.Close() // unblock the pending Read
		case <-done:
		}
	}()

	chunk := make([]byte, readChunkSize)
	for {
		n, err := r.conn.Read(chunk)
		if n > 0 {
			r.bytesReceived.Add(int64(n))
			packets, ferr := r.reasm.Feed(chunk[:n])
			eos, derr := r.deliver(ctx, packets)
			if derr != nil {
				return derr
			}
			if eos {
				r.log.Info("end of stream announced")
				return nil
			}
			if ferr != nil {
				r.log.Warn("framing error, closing", "error", ferr)
				return ferr
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				r.log.Info("sender disconnected")
				return nil
			}
			return fmt.Errorf("receive: read: %w", err)
		}
	}
}

// deliver decodes each packet into a frame and hands it to the
// consumer, preserving per-connection arrival order. Returns eos=true
// on an end-of-stream control packet. Codec and payload errors drop
// only the one frame that carried them.
func (r *Receiver) deliver(ctx context.Context, packets []*wire.Packet) (eos bool, err error) {
	for i, p := range packets {
		r.packetsReceived.Add(1)

		anomalous := r.valid.Observe(p.Header.Type, p.Header.Timestamp)
		if anomalous {
			r.clockAnomalies.Add(1)
			r.log.Warn("clock anomaly",
				"channel", p.Header.Type.String(),
				"timestamp", p.Header.Timestamp)
		}

		switch p.Header.Type {
		case wire.TypeVideo:
			err = r.deliverVideo(ctx, p, anomalous)
		case wire.TypeAudio:
			err = r.deliverAudio(ctx, p, anomalous)
		case wire.TypeMetadata:
			err = r.deliverMetadata(ctx, p, anomalous)
		case wire.TypeControl:
			if p.Header.Flags.Has(wire.FlagEndOfStream) {
				eos = true
			} else {
				r.keepAlives.Add(1)
			}
			p.Release()
		}

		if err != nil || eos {
			releaseAll(packets[i+1:])
			return eos, err
		}
	}
	return false, nil
}

func releaseAll(packets []*wire.Packet) {
	for _, p := range packets {
		p.Release()
	}
}

func (r *Receiver) deliverVideo(ctx context.Context, p *wire.Packet, anomalous bool) error {
	frame, err := r.decodeVideo(p)
	if err != nil {
		r.codecErrors.Add(1)
		r.log.Warn("dropping video frame", "error", err)
		return nil
	}
	frame.Timestamp = p.Header.Timestamp
	frame.KeyFrame = p.Header.Flags.Has(wire.FlagKeyFrame)
	frame.ClockAnomaly = anomalous

	select {
	case r.videoCh <- frame:
		r.framesDelivered.Add(1)
		return nil
	case <-ctx.Done():
		frame.Release()
		return nil
	}
}

// decodeVideo turns a video packet into a consumer-owned frame. The
// uncompressed path transfers ownership of the packet's pooled payload
// to the frame; the compressed path decompresses into a fresh pooled
// buffer and releases the wire payload.
func (r *Receiver) decodeVideo(p *wire.Packet) (*media.VideoFrame, error) {
	var payload []byte
	if p.Payload != nil {
		payload = p.Payload.Bytes()
	}
	frame, body, err := media.ParseVideoPayload(payload)
	if err != nil {
		p.Release()
		return nil, err
	}

	if !p.Header.Flags.Has(wire.FlagCompressed) {
		frame.Data = body
		frame.SetBuffer(p.Payload)
		return frame, nil
	}

	expected := int(frame.Width) * int(frame.Height) * 8 // planar 16-bit worst case
	raw, buf, err := r.decompress(body, expected)
	p.Release()
	if err != nil {
		return nil, err
	}
	frame.Data = raw
	frame.SetBuffer(buf)
	return frame, nil
}

func (r *Receiver) deliverAudio(ctx context.Context, p *wire.Packet, anomalous bool) error {
	var payload []byte
	if p.Payload != nil {
		payload = p.Payload.Bytes()
	}
	frame, body, err := media.ParseAudioPayload(payload)
	if err != nil {
		p.Release()
		r.codecErrors.Add(1)
		r.log.Warn("dropping audio frame", "error", err)
		return nil
	}
	frame.Data = body
	frame.SetBuffer(p.Payload)
	frame.Timestamp = p.Header.Timestamp
	frame.ClockAnomaly = anomalous

	select {
	case r.audioCh <- frame:
		r.framesDelivered.Add(1)
		return nil
	case <-ctx.Done():
		frame.Release()
		return nil
	}
}

func (r *Receiver) deliverMetadata(ctx context.Context, p *wire.Packet, anomalous bool) error {
	var content string
	if p.Payload != nil {
		content = string(p.Payload.Bytes())
	}
	p.Release()

	frame := &media.MetadataFrame{
		Timestamp:    p.Header.Timestamp,
		Content:      content,
		ClockAnomaly: anomalous,
	}

	select {
	case r.metadataCh <- frame:
		r.framesDelivered.Add(1)
	case <-ctx.Done():
	}
	return nil
}

// decompress decodes a compressed body, preferring the codec's
// into-pooled-buffer path when it offers one.
func (r *Receiver) decompress(body []byte, expected int) ([]byte, *pool.Buffer, error) {
	if expected > pool.MaxBufferCapacity {
		return nil, nil, fmt.Errorf("%w: expected size %d", codec.ErrCodec, expected)
	}

	if di, ok := r.comp.(codec.DecompressorInto); ok {
		buf, err := r.pool.Acquire(expected)
		if err != nil {
			return nil, nil, err
		}
		buf.SetLen(expected)
		n, err := di.DecompressInto(body, buf.Bytes())
		if err != nil {
			buf.Release()
			return nil, nil, err
		}
		buf.SetLen(n)
		return buf.Bytes(), buf, nil
	}

	raw, err := r.comp.Decompress(body, expected)
	if err != nil {
		return nil, nil, err
	}
	return raw, nil, nil
}
