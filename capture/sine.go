package capture

import (
	"encoding/binary"
	"math"

	"github.com/zsiec/aqueduct/media"
)

// SineWave generates a continuous tone as 32-bit little-endian float
// samples, duplicated across channels. Phase carries over between
// blocks so the tone is seamless.
type SineWave struct {
	frequency  float32
	sampleRate uint32
	channels   uint32
	phase      float32
}

// NewSineWave creates a tone generator, e.g. NewSineWave(440, 48000, 2)
// for a stereo A4 reference tone.
func NewSineWave(frequency float32, sampleRate, channels uint32) *SineWave {
	return &SineWave{
		frequency:  frequency,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// NextBlock implements AudioSource. It never ends.
func (s *SineWave) NextBlock(samples int) (*media.AudioFrame, error) {
	data := make([]byte, samples*int(s.channels)*4)
	inc := s.frequency * 2 * math.Pi / float32(s.sampleRate)

	off := 0
	for i := 0; i < samples; i++ {
		sample := float32(math.Sin(float64(s.phase)))
		s.phase = float32(math.Mod(float64(s.phase+inc), 2*math.Pi))

		bits := math.Float32bits(sample)
		for c := uint32(0); c < s.channels; c++ {
			binary.LittleEndian.PutUint32(data[off:off+4], bits)
			off += 4
		}
	}

	return &media.AudioFrame{
		SampleRate: s.sampleRate,
		Channels:   s.channels,
		Data:       data,
	}, nil
}
