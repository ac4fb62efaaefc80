package send

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"time"
)

// ConnStats captures delivery metrics for one attached receiver,
// mirrored into the sender's debug surfaces.
type ConnStats struct {
	ID             string `json:"id"`
	RemoteAddr     string `json:"remoteAddr"`
	PacketsSent    int64  `json:"packetsSent"`
	BytesSent      int64  `json:"bytesSent"`
	PacketsDropped int64  `json:"packetsDropped"`
	QueueDepth     int    `json:"queueDepth"`
	ConnectedAt    int64  `json:"connectedAt"`
}

// conn is one attached receiver: a TCP socket plus its bounded queue of
// encoded packets and a drain goroutine that performs the writes.
type conn struct {
	id        string
	log       *slog.Logger
	c         net.Conn
	q         *sendQueue
	startedAt time.Time

	packetsSent atomic.Int64
	bytesSent   atomic.Int64
}

// writeLoop drains the queue to the socket in order. A write failure
// terminates only this connection; the sender removes it from the
// active set and every other connection keeps going.
func (c *conn) writeLoop(ctx context.Context, remove func(id string)) {
	defer func() {
		c.q.close()
		c.c.Close()
		remove(c.id)
	}()

	for {
		it, err := c.q.pop(ctx)
		if err != nil {
			return
		}

		n, err := c.c.Write(it.buf.Bytes())
		it.buf.Release()
		if err != nil {
			c.log.Warn("write failed, dropping receiver", "error", err)
			return
		}
		c.packetsSent.Add(1)
		c.bytesSent.Add(int64(n))
	}
}

// stats returns a snapshot of this connection's delivery counters.
func (c *conn) stats() ConnStats {
	return ConnStats{
		ID:             c.id,
		RemoteAddr:     c.c.RemoteAddr().String(),
		PacketsSent:    c.packetsSent.Load(),
		BytesSent:      c.bytesSent.Load(),
		PacketsDropped: c.q.droppedCount(),
		QueueDepth:     c.q.depthNow(),
		ConnectedAt:    c.startedAt.UnixMilli(),
	}
}
