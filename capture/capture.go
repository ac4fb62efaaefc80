// Package capture defines the frame source seam the sender pipeline
// pulls from, plus synthetic implementations: a moving color-bar video
// pattern, a sine-wave audio generator, and a periodic tally metadata
// source. Real capture (screen, camera) plugs in behind the same
// interfaces.
package capture

import "github.com/zsiec/aqueduct/media"

// VideoSource produces a lazy, potentially infinite, non-restartable
// sequence of raw video frames. NextFrame returns io.EOF when the
// source is exhausted.
type VideoSource interface {
	NextFrame() (*media.VideoFrame, error)
}

// AudioSource produces blocks of raw audio samples. NextBlock returns
// a frame holding the requested number of interleaved sample frames,
// or io.EOF when exhausted.
type AudioSource interface {
	NextBlock(samples int) (*media.AudioFrame, error)
}

// MetadataSource produces metadata documents. Next returns io.EOF when
// exhausted.
type MetadataSource interface {
	Next() (*media.MetadataFrame, error)
}
