package pool

import "sync/atomic"

// Buffer is a pooled byte buffer. While checked out it is exclusively
// owned by whichever stage holds a reference; Retain extends ownership
// across a fan-out, and the pool reclaims the buffer only when the last
// reference is released. Double-release panics: it means two stages
// believed they owned the same buffer, which the pipeline must never do.
type Buffer struct {
	pool *Pool
	data []byte
	refs atomic.Int32
}

// Bytes returns the used region of the buffer. The slice is only valid
// until the final Release.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the used length.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return cap(b.data)
}

// Append copies p onto the end of the used region, growing the backing
// array only if the write exceeds capacity. A grown buffer is refiled on
// release under the class its new capacity still satisfies; callers
// should still Acquire big enough to avoid the regrow.
func (b *Buffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// SetLen resizes the used region to n, which must be within capacity.
// Used by encode paths that write through Bytes()[:cap] directly.
func (b *Buffer) SetLen(n int) {
	b.data = b.data[:n]
}

// Reset truncates the used region to zero, keeping capacity.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
}

// Retain adds a reference for fan-out. Each Retain must be paired with
// exactly one Release.
func (b *Buffer) Retain() {
	if b.refs.Add(1) <= 1 {
		panic("pool: Retain on released buffer")
	}
}

// Release drops one reference, returning the buffer to the pool when the
// count reaches zero. Must be called on every exit path, including error
// and cancellation paths.
func (b *Buffer) Release() {
	n := b.refs.Add(-1)
	if n < 0 {
		panic("pool: Release of already-released buffer")
	}
	if n == 0 {
		b.pool.put(b)
	}
}
