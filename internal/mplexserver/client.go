// Package mplexserver is the server core: the listening socket, the
// client set, the PTY map, RPC dispatch, and the shutdown sequence,
// built from goroutines + channels + mutexes rather than a
// single-threaded completion-based event loop: one reader and one writer
// goroutine per connection, a buffered channel as the bounded send queue
// (the Go rendition of "at most one in-flight send, queue behind it"),
// and sync.RWMutex guarding the shared PTY map and client set.
package mplexserver

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ehrlich-b/mplexd/internal/logger"
	"github.com/ehrlich-b/mplexd/internal/wire"
)

// SendQueueMax is the bound on a client's outbound queue.
const SendQueueMax = 1024

// sendQueueFullError (errSendQueueFull) is the protocol-level error surfaced to a caller whose
// send would exceed SendQueueMax.
type sendQueueFullError struct{}

func (sendQueueFullError) Error() string { return "SendQueueFull" }

var errSendQueueFull = sendQueueFullError{}

var nextClientID uint64

// client is one attached connection: an accumulator for inbound frames, a
// bounded outbound queue drained by a single writer goroutine, the set of
// PTY IDs it is attached to, and its per-client keyboard preference.
type client struct {
	id     uint64
	connID string // random uuid, for correlating log lines across one connection's lifetime
	conn   net.Conn

	acc wire.Accumulator

	sendCh  chan []byte
	closing atomic.Bool
	closeOnce sync.Once
	closedCh  chan struct{}

	mu              sync.Mutex
	attached        map[uint32]bool
	macOptionAsAlt  bool
	selectionAnchor map[uint32]pendingPress
}

// pendingPress tracks the local-selection gesture in progress for one
// PTY: the press pin and the granularity it started at, cleared on
// release.
type pendingPress struct {
	row, col    int
	granularity int
}

func newClient(conn net.Conn) *client {
	return &client{
		id:              atomic.AddUint64(&nextClientID, 1),
		connID:          uuid.NewString(),
		conn:            conn,
		sendCh:          make(chan []byte, SendQueueMax),
		closedCh:        make(chan struct{}),
		attached:        make(map[uint32]bool),
		selectionAnchor: make(map[uint32]pendingPress),
	}
}

// ID identifies the client for ptysup.Client.
func (c *client) ID() uint64 { return c.id }

// Notify encodes and enqueues a server->client notification. Errors are
// logged, not returned: notifications are fire-and-forget from the
// broadcaster's point of view, and an encode failure here means a bug in
// the caller's params shape, not a transient condition to retry.
func (c *client) Notify(method string, params any) {
	b, err := wire.EncodeNotification(method, params)
	if err != nil {
		logger.Error("mplexserver: encode notification failed", "method", method, "err", err)
		return
	}
	if err := c.enqueue(b); err != nil {
		logger.Warn("mplexserver: notification dropped", "method", method, "client", c.id, "err", err)
	}
}

// reply encodes and enqueues a request's response.
func (c *client) reply(msgID uint64, errVal, result any) {
	b, err := wire.EncodeResponse(msgID, errVal, result)
	if err != nil {
		logger.Error("mplexserver: encode response failed", "err", err)
		return
	}
	_ = c.enqueue(b)
}

// enqueue appends one encoded frame to the outbound queue. A full queue
// is a protocol-level error the caller sees as SendQueueFull; enqueue
// never blocks. Once the client is closing, the frame is dropped and nil
// is returned.
func (c *client) enqueue(b []byte) error {
	if c.closing.Load() {
		return nil
	}
	select {
	case c.sendCh <- b:
		return nil
	default:
		return errSendQueueFull
	}
}

// writeLoop is the single writer for this connection: it owns the socket
// for writes, so FIFO order falls out of the channel and "at most one
// in-flight send" is automatic.
func (c *client) writeLoop() {
	for b := range c.sendCh {
		if _, err := c.conn.Write(b); err != nil {
			c.beginClose()
			// Drain so a blocked Notify's select-default never wedges,
			// then stop: any further writes would also fail.
			for range c.sendCh {
			}
			return
		}
	}
}

// beginClose marks the client closing, so new sends are dropped, closes
// the outbound channel and closes the connection at once. Frames still
// queued are not written: writeLoop's next write fails and it discards
// the rest of the queue.
func (c *client) beginClose() {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.sendCh)
		c.conn.Close()
		close(c.closedCh)
	})
}

func (c *client) attach(ptyID uint32) {
	c.mu.Lock()
	c.attached[ptyID] = true
	c.mu.Unlock()
}

func (c *client) detach(ptyID uint32) {
	c.mu.Lock()
	delete(c.attached, ptyID)
	delete(c.selectionAnchor, ptyID)
	c.mu.Unlock()
}

func (c *client) isAttached(ptyID uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached[ptyID]
}

func (c *client) attachedIDs() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]uint32, 0, len(c.attached))
	for id := range c.attached {
		ids = append(ids, id)
	}
	return ids
}
