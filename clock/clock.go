// Package clock implements cross-channel timestamp synchronization: a
// sender-side stamper that issues per-channel timestamps off one shared
// monotonic epoch, and a receive-side validator that flags non-monotonic
// arrivals as advisory anomalies.
package clock

import (
	"sync"
	"time"

	"github.com/zsiec/aqueduct/wire"
)

// Stamper assigns outgoing timestamps. All channels share the session
// epoch, so a receiver can align video, audio, and metadata by timestamp
// proximity without a handshake. Stamps are strictly monotonic per
// channel: two frames landing in the same microsecond are separated by
// one tick so a receiver never sees a false anomaly.
type Stamper struct {
	epoch time.Time

	mu   sync.Mutex
	last map[wire.PacketType]uint64
}

// NewStamper starts a session clock with epoch now.
func NewStamper() *Stamper {
	return &Stamper{
		epoch: time.Now(),
		last:  make(map[wire.PacketType]uint64),
	}
}

// Stamp returns the next timestamp for ch, in microseconds since the
// session epoch.
func (s *Stamper) Stamp(ch wire.PacketType) uint64 {
	now := uint64(time.Since(s.epoch).Microseconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.last[ch]; ok && now <= last {
		now = last + 1
	}
	s.last[ch] = now
	return now
}

// Validator tracks the last-seen timestamp per channel on the receive
// side. It never rejects or withholds a packet: brief reordering is
// recoverable by the consumer's own buffering, so anomalies are
// surfaced, not enforced.
type Validator struct {
	last map[wire.PacketType]uint64
}

// NewValidator creates a Validator with no observations.
func NewValidator() *Validator {
	return &Validator{last: make(map[wire.PacketType]uint64)}
}

// Observe records ts for ch and reports whether it ran backwards
// relative to the previous observation on the same channel.
func (v *Validator) Observe(ch wire.PacketType, ts uint64) bool {
	last, seen := v.last[ch]
	v.last[ch] = ts
	return seen && ts < last
}

// Last returns the most recent timestamp observed on ch.
func (v *Validator) Last(ch wire.PacketType) (uint64, bool) {
	ts, ok := v.last[ch]
	return ts, ok
}
