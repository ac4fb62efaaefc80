// Package pool provides a reusable byte-buffer pool for the packet hot
// path. Buffers are bucketed by power-of-two capacity class to bound
// fragmentation, reference-counted so one encoded packet can fan out to
// many connections, and bounded by a total idle-byte budget so transient
// spikes don't pin memory forever.
package pool

import (
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"
)

// Capacity classes span 2^6 (64 B) through 2^26 (64 MiB), enough for a
// full uncompressed 4K BGRA frame.
const (
	minClassShift = 6
	maxClassShift = 26
	numClasses    = maxClassShift - minClassShift + 1

	// MaxBufferCapacity is the largest capacity the pool will hand out.
	MaxBufferCapacity = 1 << maxClassShift

	// DefaultMaxPoolBytes bounds the idle set at 256 MiB unless configured.
	DefaultMaxPoolBytes = 256 << 20
)

// Stats is a point-in-time snapshot of pool activity, used by the debug
// stats surfaces and the conservation tests.
type Stats struct {
	Acquires  int64 `json:"acquires"`
	Releases  int64 `json:"releases"`
	Allocs    int64 `json:"allocs"`
	Recycled  int64 `json:"recycled"`
	Freed     int64 `json:"freed"`
	IdleBytes int64 `json:"idleBytes"`
}

// Pool hands out Buffers for encode/write and decode/read paths. The
// zero value is not usable; use New.
type Pool struct {
	mu        sync.Mutex
	classes   [numClasses][]*Buffer
	idleBytes int64
	maxBytes  int64

	acquires atomic.Int64
	releases atomic.Int64
	allocs   atomic.Int64
	recycled atomic.Int64
	freed    atomic.Int64
}

// New creates a Pool whose idle set retains at most maxPoolBytes.
// maxPoolBytes <= 0 selects DefaultMaxPoolBytes.
func New(maxPoolBytes int64) *Pool {
	if maxPoolBytes <= 0 {
		maxPoolBytes = DefaultMaxPoolBytes
	}
	return &Pool{maxBytes: maxPoolBytes}
}

// classFor returns the bucket index whose capacity is the smallest
// power of two >= minCapacity.
func classFor(minCapacity int) int {
	if minCapacity <= 1<<minClassShift {
		return 0
	}
	return bits.Len(uint(minCapacity-1)) - minClassShift
}

func classCapacity(class int) int {
	return 1 << (class + minClassShift)
}

// Acquire returns a buffer with capacity >= minCapacity and zero length,
// reusing an idle buffer of the right class when one exists. The returned
// buffer has a reference count of one; the caller owns it until Release.
func (p *Pool) Acquire(minCapacity int) (*Buffer, error) {
	if minCapacity < 0 || minCapacity > MaxBufferCapacity {
		return nil, fmt.Errorf("pool: capacity %d exceeds maximum %d", minCapacity, MaxBufferCapacity)
	}
	p.acquires.Add(1)

	class := classFor(minCapacity)

	p.mu.Lock()
	if idle := p.classes[class]; len(idle) > 0 {
		buf := idle[len(idle)-1]
		p.classes[class] = idle[:len(idle)-1]
		p.idleBytes -= int64(cap(buf.data))
		p.mu.Unlock()

		buf.data = buf.data[:0]
		buf.refs.Store(1)
		p.recycled.Add(1)
		return buf, nil
	}
	p.mu.Unlock()

	p.allocs.Add(1)
	buf := &Buffer{
		pool: p,
		data: make([]byte, 0, classCapacity(class)),
	}
	buf.refs.Store(1)
	return buf, nil
}

// put returns a fully released buffer to its capacity class, or frees it
// when the idle set is at budget. Append may have grown the buffer past
// its original class, so it is filed under the largest class whose
// capacity it still satisfies; filing by classFor would round up and let
// Acquire hand out a buffer smaller than the class promises.
func (p *Pool) put(buf *Buffer) {
	p.releases.Add(1)

	c := cap(buf.data)
	if c > MaxBufferCapacity {
		p.freed.Add(1)
		return
	}
	class := bits.Len(uint(c)) - 1 - minClassShift
	if class < 0 {
		p.freed.Add(1)
		return
	}

	p.mu.Lock()
	if p.idleBytes+int64(c) > p.maxBytes {
		p.mu.Unlock()
		p.freed.Add(1)
		return
	}
	p.classes[class] = append(p.classes[class], buf)
	p.idleBytes += int64(c)
	p.mu.Unlock()
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	idle := p.idleBytes
	p.mu.Unlock()
	return Stats{
		Acquires:  p.acquires.Load(),
		Releases:  p.releases.Load(),
		Allocs:    p.allocs.Load(),
		Recycled:  p.recycled.Load(),
		Freed:     p.freed.Load(),
		IdleBytes: idle,
	}
}
