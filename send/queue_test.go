package send

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zsiec/aqueduct/pool"
)

func acquire(t *testing.T, p *pool.Pool, tag byte) *pool.Buffer {
	t.Helper()
	b, err := p.Acquire(64)
	if err != nil {
		t.Fatal(err)
	}
	b.Append([]byte{tag})
	return b
}

func TestQueue_FIFO(t *testing.T) {
	p := pool.New(0)
	q := newSendQueue(context.Background(), 4, PolicyBlock)
	defer q.close()

	for tag := byte(1); tag <= 3; tag++ {
		if _, err := q.push(context.Background(), acquire(t, p, tag), false); err != nil {
			t.Fatal(err)
		}
	}
	for want := byte(1); want <= 3; want++ {
		it, err := q.pop(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if got := it.buf.Bytes()[0]; got != want {
			t.Errorf("popped tag %d, want %d", got, want)
		}
		it.buf.Release()
	}
}

func TestQueue_BlockPolicyBackpressure(t *testing.T) {
	p := pool.New(0)
	q := newSendQueue(context.Background(), 2, PolicyBlock)
	defer q.close()

	q.push(context.Background(), acquire(t, p, 1), false)
	q.push(context.Background(), acquire(t, p, 2), false)

	unblocked := make(chan struct{})
	go func() {
		q.push(context.Background(), acquire(t, p, 3), false)
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("push on a full queue returned without a pop")
	case <-time.After(50 * time.Millisecond):
	}

	it, err := q.pop(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	it.buf.Release()

	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("push did not resume after a pop made room")
	}
	if q.depthNow() != 2 {
		t.Errorf("depth = %d, want 2", q.depthNow())
	}
}

func TestQueue_PushCancelledContext(t *testing.T) {
	p := pool.New(0)
	ctx, cancel := context.WithCancel(context.Background())
	q := newSendQueue(ctx, 1, PolicyBlock)
	defer q.close()

	q.push(ctx, acquire(t, p, 1), false)

	done := make(chan error, 1)
	go func() {
		_, err := q.push(ctx, acquire(t, p, 2), false)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked push did not observe cancellation")
	}
}

func TestQueue_DropOldestSkipsKeyframes(t *testing.T) {
	p := pool.New(0)
	q := newSendQueue(context.Background(), 3, PolicyDropOldest)
	defer q.close()

	q.push(context.Background(), acquire(t, p, 1), true)  // keyframe
	q.push(context.Background(), acquire(t, p, 2), false) // droppable
	q.push(context.Background(), acquire(t, p, 3), true)  // keyframe

	dropped, err := q.push(context.Background(), acquire(t, p, 4), false)
	if err != nil {
		t.Fatal(err)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if q.droppedCount() != 1 {
		t.Errorf("droppedCount = %d, want 1", q.droppedCount())
	}

	var tags []byte
	for i := 0; i < 3; i++ {
		it, err := q.pop(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		tags = append(tags, it.buf.Bytes()[0])
		it.buf.Release()
	}
	want := []byte{1, 3, 4}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("drained order %v, want %v", tags, want)
		}
	}
}

func TestQueue_DropOldestAllKeyframesBlocks(t *testing.T) {
	p := pool.New(0)
	q := newSendQueue(context.Background(), 2, PolicyDropOldest)
	defer q.close()

	q.push(context.Background(), acquire(t, p, 1), true)
	q.push(context.Background(), acquire(t, p, 2), true)

	unblocked := make(chan struct{})
	go func() {
		q.push(context.Background(), acquire(t, p, 3), true)
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("push dropped a keyframe to make room")
	case <-time.After(50 * time.Millisecond):
	}

	it, _ := q.pop(context.Background())
	it.buf.Release()
	<-unblocked
}

func TestQueue_CloseReleasesBuffers(t *testing.T) {
	p := pool.New(0)
	q := newSendQueue(context.Background(), 4, PolicyBlock)

	q.push(context.Background(), acquire(t, p, 1), false)
	q.push(context.Background(), acquire(t, p, 2), true)
	q.close()

	s := p.Stats()
	if s.Acquires != s.Releases {
		t.Errorf("acquires %d != releases %d after close", s.Acquires, s.Releases)
	}

	if _, err := q.push(context.Background(), acquire(t, p, 3), false); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("push after close: err = %v, want ErrQueueClosed", err)
	}
	if _, err := q.pop(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("pop after close: err = %v, want ErrQueueClosed", err)
	}
}
