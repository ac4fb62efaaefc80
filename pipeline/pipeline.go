// Package pipeline drives the capture-to-wire data flow for a sender
// session: it pulls raw frames from the attached sources at a fixed
// cadence and pushes them through the Sender, which compresses, frames,
// and fans them out. Backpressure from slow receivers propagates here
// as a blocked Send call, pausing capture instead of growing memory.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zsiec/aqueduct/capture"
	"github.com/zsiec/aqueduct/media"
	"github.com/zsiec/aqueduct/send"
	"github.com/zsiec/aqueduct/wire"
)

// Broadcaster is the subset of send.Sender the pipeline uses. Accepting
// an interface keeps the pipeline testable with stubs.
type Broadcaster interface {
	SendVideo(f *media.VideoFrame) error
	SendAudio(f *media.AudioFrame) error
	SendMetadata(f *media.MetadataFrame) error
	SendControl(flags wire.Flags) error
}

// Compile-time interface check.
var _ Broadcaster = (*send.Sender)(nil)

// Config configures a Pipeline.
type Config struct {
	// FrameInterval is the capture cadence. 0 selects ~30 fps.
	FrameInterval time.Duration
	// MetadataEvery emits one metadata document every N video frames.
	// 0 selects 30; negative disables metadata.
	MetadataEvery int
	// Log defaults to slog.Default().
	Log *slog.Logger
}

// Pipeline pulls from up to three sources (any may be nil) and feeds a
// Broadcaster. One Pipeline serves one sender session.
type Pipeline struct {
	log      *slog.Logger
	out      Broadcaster
	video    capture.VideoSource
	audio    capture.AudioSource
	metadata capture.MetadataSource

	interval  time.Duration
	metaEvery int

	videoSent atomic.Int64
	audioSent atomic.Int64
	metaSent  atomic.Int64
}

// New creates a Pipeline feeding out from the given sources.
func New(out Broadcaster, video capture.VideoSource, audio capture.AudioSource, metadata capture.MetadataSource, cfg Config) *Pipeline {
	if cfg.FrameInterval == 0 {
		cfg.FrameInterval = 33 * time.Millisecond
	}
	if cfg.MetadataEvery == 0 {
		cfg.MetadataEvery = 30
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Pipeline{
		log:       cfg.Log.With("component", "pipeline"),
		out:       out,
		video:     video,
		audio:     audio,
		metadata:  metadata,
		interval:  cfg.FrameInterval,
		metaEvery: cfg.MetadataEvery,
	}
}

// Counts returns the number of frames pushed per channel.
func (p *Pipeline) Counts() (video, audio, metadata int64) {
	return p.videoSent.Load(), p.audioSent.Load(), p.metaSent.Load()
}

// Run captures and sends until ctx is cancelled or a source ends
// (io.EOF). On orderly exit it announces end-of-stream to all attached
// receivers. Per-frame codec failures are logged and skipped; anything
// else aborts the session.
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Audio sample count per tick, rounded to whole sample frames.
	var samplesPerTick int
	frameCount := 0

	for {
		select {
		case <-ctx.Done():
			if err := p.out.SendControl(wire.FlagEndOfStream); err != nil {
				p.log.Debug("end-of-stream send failed", "error", err)
			}
			return nil
		case <-ticker.C:
		}

		if p.video != nil {
			frame, err := p.video.NextFrame()
			if errors.Is(err, io.EOF) {
				return p.finish()
			}
			if err != nil {
				return fmt.Errorf("pipeline: video source: %w", err)
			}
			if err := p.out.SendVideo(frame); err != nil {
				p.log.Warn("video frame skipped", "error", err)
			} else {
				p.videoSent.Add(1)
			}
		}

		if p.audio != nil {
			if samplesPerTick == 0 {
				samplesPerTick = p.samplesPerTick()
			}
			block, err := p.audio.NextBlock(samplesPerTick)
			if errors.Is(err, io.EOF) {
				return p.finish()
			}
			if err != nil {
				return fmt.Errorf("pipeline: audio source: %w", err)
			}
			if err := p.out.SendAudio(block); err != nil {
				p.log.Warn("audio block skipped", "error", err)
			} else {
				p.audioSent.Add(1)
			}
		}

		if p.metadata != nil && p.metaEvery > 0 && frameCount%p.metaEvery == 0 {
			doc, err := p.metadata.Next()
			if errors.Is(err, io.EOF) {
				return p.finish()
			}
			if err != nil {
				return fmt.Errorf("pipeline: metadata source: %w", err)
			}
			if err := p.out.SendMetadata(doc); err != nil {
				p.log.Warn("metadata skipped", "error", err)
			} else {
				p.metaSent.Add(1)
			}
		}

		frameCount++
	}
}

// samplesPerTick sizes audio blocks to cover one frame interval at the
// source's sample rate. Probes the source with a zero-sample block if
// the rate isn't known yet; falls back to 48 kHz.
func (p *Pipeline) samplesPerTick() int {
	rate := 48000
	if probe, err := p.audio.NextBlock(0); err == nil && probe.SampleRate > 0 {
		rate = int(probe.SampleRate)
	}
	n := int(float64(rate) * p.interval.Seconds())
	if n < 1 {
		n = 1
	}
	return n
}

// finish announces orderly end-of-stream after a source ran out.
func (p *Pipeline) finish() error {
	p.log.Info("capture source ended",
		"video", p.videoSent.Load(),
		"audio", p.audioSent.Load(),
		"metadata", p.metaSent.Load())
	return p.out.SendControl(wire.FlagEndOfStream)
}
