// Package send implements the sender side of the aqueduct transport:
// a TCP listener fanning encoded packets out to any number of attached
// receivers, each behind its own bounded write queue. Frames are
// compressed and encoded exactly once; the encoded buffer is
// reference-counted across connections and reclaimed by the pool when
// the last writer finishes with it.
package send

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zsiec/aqueduct/clock"
	"github.com/zsiec/aqueduct/codec"
	"github.com/zsiec/aqueduct/media"
	"github.com/zsiec/aqueduct/pool"
	"github.com/zsiec/aqueduct/wire"
)

// DefaultQueueDepth bounds each connection's pending-packet queue.
const DefaultQueueDepth = 16

// Config configures a Sender. Addr is required; everything else has a
// working default.
type Config struct {
	// Addr is the TCP listen address, e.g. ":9030".
	Addr string
	// MaxFrameBytes bounds encoded packet payloads. 0 selects
	// wire.DefaultMaxFrameBytes.
	MaxFrameBytes uint32
	// QueueDepth is the per-connection pending-packet bound. 0 selects
	// DefaultQueueDepth.
	QueueDepth int
	// Overload selects what a full queue does to the producer.
	Overload Policy
	// Codec compresses video bodies. Nil means codec.Passthrough:
	// frames ship raw.
	Codec codec.Codec
	// Pool supplies packet buffers. Nil creates a private pool with
	// default bounds.
	Pool *pool.Pool
	// Log defaults to slog.Default().
	Log *slog.Logger
}

// Stats is a point-in-time snapshot of sender activity.
type Stats struct {
	FramesIn    int64       `json:"framesIn"`
	CodecErrors int64       `json:"codecErrors"`
	Conns       []ConnStats `json:"conns"`
}

// Sender owns the listen socket, the active connection set, and the
// session stream synchronizer. Create with New, then Start; Send* may
// be called from the moment New returns (packets fan out to however
// many receivers are attached at that instant, possibly none).
type Sender struct {
	log     *slog.Logger
	pool    *pool.Pool
	comp    codec.Codec
	stamper *clock.Stamper

	addr     string
	maxFrame uint32
	depth    int
	policy   Policy

	mu    sync.RWMutex
	conns map[string]*conn
	ctx   context.Context // set by Start; connections are children of it

	listenerReady chan struct{}
	port          atomic.Int32

	framesIn    atomic.Int64
	codecErrors atomic.Int64

	// sendMu serializes the compress/encode stage: the codec keeps
	// scratch state and per-channel ordering must match stamping order.
	sendMu sync.Mutex
}

// New validates cfg and creates a Sender. Configuration errors are
// fatal here, at startup, never later on the hot path.
func New(cfg Config) (*Sender, error) {
	if cfg.Addr == "" {
		return nil, errors.New("send: listen address required")
	}
	if cfg.MaxFrameBytes == 0 {
		cfg.MaxFrameBytes = wire.DefaultMaxFrameBytes
	}
	if cfg.MaxFrameBytes > pool.MaxBufferCapacity {
		return nil, fmt.Errorf("send: max frame %d exceeds pool buffer capacity %d", cfg.MaxFrameBytes, pool.MaxBufferCapacity)
	}
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if cfg.QueueDepth < 1 {
		return nil, fmt.Errorf("send: queue depth %d", cfg.QueueDepth)
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

	return &Sender{
		log:           cfg.Log.With("component", "sender"),
		pool:          cfg.Pool,
		comp:          cfg.Codec,
		stamper:       clock.NewStamper(),
		addr:          cfg.Addr,
		maxFrame:      cfg.MaxFrameBytes,
		depth:         cfg.QueueDepth,
		policy:        cfg.Overload,
		conns:         make(map[string]*conn),
		listenerReady: make(chan struct{}),
	}, nil
}

// Start listens and accepts receiver connections until ctx is
// cancelled. It blocks; run it under an errgroup alongside the capture
// pipeline.
func (s *Sender) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("send: listen on %s: %w", s.addr, err)
	}
	s.port.Store(int32(ln.Addr().(*net.TCPAddr).Port))
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	close(s.listenerReady)
	s.log.Info("listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.closeAll()
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}
		s.addConn(ctx, c)
	}
}

// Port returns the bound listen port, blocking until Start has bound it
// or ctx ends. Useful with ":0" addresses.
func (s *Sender) Port(ctx context.Context) (int, error) {
	select {
	case <-s.listenerReady:
		return int(s.port.Load()), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *Sender) addConn(ctx context.Context, nc net.Conn) {
	id := uuid.NewString()[:8]
	cn := &conn{
		id:        id,
		log:       s.log.With("conn", id, "remote", nc.RemoteAddr().String()),
		c:         nc,
		q:         newSendQueue(ctx, s.depth, s.policy),
		startedAt: time.Now(),
	}

	s.mu.Lock()
	s.conns[id] = cn
	n := len(s.conns)
	s.mu.Unlock()

	cn.log.Info("receiver connected", "conns", n)
	go cn.writeLoop(ctx, s.removeConn)
}

func (s *Sender) removeConn(id string) {
	s.mu.Lock()
	_, ok := s.conns[id]
	if ok {
		delete(s.conns, id)
	}
	n := len(s.conns)
	s.mu.Unlock()

	if ok {
		s.log.Info("receiver removed", "conn", id, "conns", n)
	}
}

func (s *Sender) closeAll() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.q.close()
		c.c.Close()
	}
}

// ConnCount returns the number of attached receivers.
func (s *Sender) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Stats returns a snapshot of sender counters and per-connection
// delivery metrics.
func (s *Sender) Stats() Stats {
	s.mu.RLock()
	conns := make([]ConnStats, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c.stats())
	}
	s.mu.RUnlock()

	return Stats{
		FramesIn:    s.framesIn.Load(),
		CodecErrors: s.codecErrors.Load(),
		Conns:       conns,
	}
}

// SendVideo compresses, stamps, encodes, and fans out one video frame.
// The frame's KeyFrame field carries through to the packet flags and the
// overload policy: keyed frames are never evicted under drop-oldest,
// everything else may be shed when a receiver falls behind.
//
// A codec failure drops this one frame (ErrCodec surfaces, counters
// tick) and leaves the session healthy.
func (s *Sender) SendVideo(f *media.VideoFrame) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.framesIn.Add(1)

	body := f.Data
	var flags wire.Flags
	if f.KeyFrame {
		flags = wire.FlagKeyFrame
	}
	if len(body) > 0 {
		compressed, err := s.comp.Compress(body)
		switch {
		case err == nil:
			body = compressed
			flags |= wire.FlagCompressed
		case errors.Is(err, codec.ErrIncompressible):
			// Ship raw.
		default:
			s.codecErrors.Add(1)
			return fmt.Errorf("send: compress video frame: %w", err)
		}
	}

	var prologue [media.VideoPrologueSize]byte
	if err := media.PutVideoPrologue(prologue[:], f); err != nil {
		return err
	}

	h := wire.Header{
		Type:      wire.TypeVideo,
		Timestamp: s.stamper.Stamp(wire.TypeVideo),
		Flags:     flags,
	}
	return s.broadcast(h, prologue[:], body, f.KeyFrame)
}

// SendAudio stamps, encodes, and fans out one audio block. Audio is
// never compressed: the blocks are small and the codec is tuned for
// pixel data.
func (s *Sender) SendAudio(f *media.AudioFrame) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.framesIn.Add(1)

	var prologue [media.AudioPrologueSize]byte
	if err := media.PutAudioPrologue(prologue[:], f); err != nil {
		return err
	}

	h := wire.Header{
		Type:      wire.TypeAudio,
		Timestamp: s.stamper.Stamp(wire.TypeAudio),
	}
	return s.broadcast(h, prologue[:], f.Data, false)
}

// SendMetadata stamps, encodes, and fans out one metadata document.
// Metadata is never dropped by the overload policy.
func (s *Sender) SendMetadata(f *media.MetadataFrame) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.framesIn.Add(1)

	h := wire.Header{
		Type:      wire.TypeMetadata,
		Timestamp: s.stamper.Stamp(wire.TypeMetadata),
		Flags:     wire.FlagKeyFrame,
	}
	return s.broadcast(h, nil, []byte(f.Content), true)
}

// SendControl fans out a zero-payload control packet carrying flags —
// a keep-alive when flags is zero, or the end-of-stream announcement.
func (s *Sender) SendControl(flags wire.Flags) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	h := wire.Header{
		Type:      wire.TypeControl,
		Timestamp: s.stamper.Stamp(wire.TypeControl),
		Flags:     flags | wire.FlagKeyFrame,
	}
	return s.broadcast(h, nil, nil, true)
}

// broadcast encodes the packet once into a pooled buffer and hands one
// retained reference to every connection's queue. The pool marks the
// buffer idle only after the last writer (or queue teardown) releases
// its reference.
func (s *Sender) broadcast(h wire.Header, prologue, body []byte, keyframe bool) error {
	payloadLen := len(prologue) + len(body)
	if uint32(payloadLen) > s.maxFrame {
		return fmt.Errorf("%w: payload %d exceeds max frame %d", wire.ErrBufferTooSmall, payloadLen, s.maxFrame)
	}
	h.Length = uint32(payloadLen)

	buf, err := s.pool.Acquire(wire.HeaderSize + payloadLen)
	if err != nil {
		return fmt.Errorf("send: acquire packet buffer: %w", err)
	}
	defer buf.Release()

	var hdr [wire.HeaderSize]byte
	if err := wire.PutHeader(hdr[:], h); err != nil {
		return err
	}
	buf.Append(hdr[:])
	buf.Append(prologue)
	buf.Append(body)

	s.mu.RLock()
	ctx := s.ctx
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	if ctx == nil {
		ctx = context.Background()
	}

	for _, c := range conns {
		buf.Retain()
		dropped, err := c.q.push(ctx, buf, keyframe)
		if dropped > 0 {
			c.log.Debug("queue overflow, dropped oldest", "count", dropped)
		}
		if err != nil && !errors.Is(err, ErrQueueClosed) && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}
