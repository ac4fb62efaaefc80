package send

import (
	"context"
	"errors"
	"sync"

	"github.com/zsiec/aqueduct/pool"
)

// ErrQueueClosed is returned by push once the owning connection is done.
var ErrQueueClosed = errors.New("send: queue closed")

// Policy selects the behavior of a full write queue.
type Policy int

const (
	// PolicyBlock suspends the producer until the writer drains an
	// entry. This is the default: it converts a slow network into
	// backpressure on the capture source.
	PolicyBlock Policy = iota
	// PolicyDropOldest evicts the oldest non-keyframe entry to make
	// room. Keyframes are never evicted; if the queue is all
	// keyframes, the push blocks as under PolicyBlock.
	PolicyDropOldest
)

// queued is one encoded packet awaiting a socket write. buf holds one
// reference owned by the queue entry.
type queued struct {
	buf      *pool.Buffer
	keyframe bool
}

// sendQueue is the bounded per-connection queue of encoded packets.
// Memory held by queued-but-unsent packets is bounded by depth times the
// maximum frame size.
type sendQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []queued
	depth  int
	policy Policy
	closed bool

	dropped int64
}

func newSendQueue(ctx context.Context, depth int, policy Policy) *sendQueue {
	q := &sendQueue{depth: depth, policy: policy}
	q.cond = sync.NewCond(&q.mu)
	// Wake blocked producers/consumers when the connection's context
	// ends; they re-check ctx and bail out.
	context.AfterFunc(ctx, q.cond.Broadcast)
	return q
}

// push enqueues buf, taking ownership of one reference. On any failure
// path the reference is released here so the caller never has to undo a
// Retain. Returns the number of entries dropped to make room.
func (q *sendQueue) push(ctx context.Context, buf *pool.Buffer, keyframe bool) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := 0
	for len(q.items) >= q.depth {
		if q.closed || ctx.Err() != nil {
			buf.Release()
			if q.closed {
				return dropped, ErrQueueClosed
			}
			return dropped, ctx.Err()
		}
		if q.policy == PolicyDropOldest {
			if i := q.oldestDroppable(); i >= 0 {
				q.items[i].buf.Release()
				q.items = append(q.items[:i], q.items[i+1:]...)
				q.dropped++
				dropped++
				continue
			}
		}
		q.cond.Wait()
	}
	if q.closed {
		buf.Release()
		return dropped, ErrQueueClosed
	}

	q.items = append(q.items, queued{buf: buf, keyframe: keyframe})
	q.cond.Broadcast()
	return dropped, nil
}

// oldestDroppable returns the index of the first non-keyframe entry, or
// -1 when every queued packet is a keyframe.
func (q *sendQueue) oldestDroppable() int {
	for i, it := range q.items {
		if !it.keyframe {
			return i
		}
	}
	return -1
}

// pop dequeues the oldest entry, blocking until one is available, the
// context ends, or the queue closes. The caller assumes the entry's
// buffer reference.
func (q *sendQueue) pop(ctx context.Context) (queued, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if q.closed {
			return queued{}, ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return queued{}, err
		}
		q.cond.Wait()
	}
	it := q.items[0]
	q.items = q.items[1:]
	q.cond.Broadcast()
	return it, nil
}

// close drains the queue, releasing every held buffer back to the pool,
// and wakes all waiters. Idempotent. Runs even when close happens
// mid-stream so cancellation cannot leak buffers.
func (q *sendQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for _, it := range q.items {
		it.buf.Release()
	}
	q.items = nil
	q.cond.Broadcast()
}

// droppedCount returns the number of entries evicted by PolicyDropOldest.
func (q *sendQueue) droppedCount() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// depthNow returns the current queue occupancy.
func (q *sendQueue) depthNow() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
