package mplexserver

import (
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ehrlich-b/mplexd/internal/config"
	"github.com/ehrlich-b/mplexd/internal/logger"
	"github.com/ehrlich-b/mplexd/internal/ptysup"
	"github.com/ehrlich-b/mplexd/internal/wire"
)

const serverVersion = "0.1.0"

// Server is the daemon's core: the listening socket, the PTY map, and the
// client set. It owns dispatch of every RPC method and notification
// described by the wire protocol and fans server-originated notifications
// (redraw, pty_exited, cwd_changed, color_query) out to attached clients
// through each client's own bounded queue.
type Server struct {
	cfg         *config.Config
	startTimeMS int64

	listener   net.Listener
	socketPath string

	mu        sync.RWMutex
	ptys      map[uint32]*ptysup.PTY
	nextPTYID uint32
	clients   map[uint64]*client

	closing atomic.Bool
	connWG  sync.WaitGroup
}

// New builds a server around the given configuration. startTimeMS is the
// pty_validity value reported to clients so they can detect a daemon
// restart across reconnects.
func New(cfg *config.Config, startTimeMS int64) *Server {
	return &Server{
		cfg:         cfg,
		startTimeMS: startTimeMS,
		ptys:        make(map[uint32]*ptysup.PTY),
		clients:     make(map[uint64]*client),
	}
}

// Listen binds the Unix socket at path, removing a stale socket left by a
// prior, no-longer-running daemon first. A live listener at path fails
// startup with "address in use" rather than silently stealing it.
func (s *Server) Listen(path string) error {
	if err := removeStaleSocket(path); err != nil {
		return err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("mplexserver: listen %s: %w", path, err)
	}
	s.listener = ln
	s.socketPath = path
	return nil
}

func removeStaleSocket(path string) error {
	conn, err := net.Dial("unix", path)
	if err == nil {
		conn.Close()
		return fmt.Errorf("mplexserver: address in use: %s", path)
	}
	if _, statErr := os.Stat(path); statErr == nil {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("mplexserver: remove stale socket: %w", err)
		}
	}
	return nil
}

// Serve accepts connections until the listener closes (which Shutdown
// triggers). It always returns a non-nil error; a clean shutdown reports
// net.ErrClosed, which the caller treats as success.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		if s.closing.Load() {
			conn.Close()
			continue
		}
		s.connWG.Add(1)
		go s.handleConn(conn)
	}
}

// Shutdown runs the sequence from the daemon's signal handling: stop
// accepting, close every client (its connection closes at once; frames
// still queued for it are discarded), then mark every PTY not running and
// close its master so each reader goroutine observes exit and the kill
// escalation proceeds independently of the server loop.
func (s *Server) Shutdown() {
	if !s.closing.CompareAndSwap(false, true) {
		return
	}
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	ptys := make([]*ptysup.PTY, 0, len(s.ptys))
	for _, p := range s.ptys {
		ptys = append(ptys, p)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		c.beginClose()
	}
	for _, p := range ptys {
		p.Close()
	}
	if s.socketPath != "" {
		os.Remove(s.socketPath)
	}
	s.connWG.Wait()
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.connWG.Done()
	c := newClient(conn)

	s.mu.Lock()
	if len(s.clients) >= s.cfg.ClientsMax {
		s.mu.Unlock()
		b, _ := wire.EncodeResponse(0, "client limit reached", nil)
		conn.Write(b)
		conn.Close()
		return
	}
	s.clients[c.id] = c
	s.mu.Unlock()
	logger.Info("mplexserver: client connected", "client", c.id, "conn_id", c.connID)

	go c.writeLoop()

	buf := make([]byte, 32*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			c.acc.Feed(buf[:n])
			for {
				msg, ok, decErr := c.acc.Next()
				if decErr != nil {
					logger.Warn("mplexserver: malformed frame, closing connection", "client", c.id, "conn_id", c.connID, "err", decErr)
					c.beginClose()
					break
				}
				if !ok {
					break
				}
				s.dispatch(c, msg)
			}
		}
		if err != nil {
			break
		}
		if c.closing.Load() {
			break
		}
	}

	s.detachClientFromAll(c)
	c.beginClose()
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
}

func (s *Server) dispatch(c *client, msg *wire.Message) {
	switch {
	case msg.Request != nil:
		result, errVal := s.handleRequest(c, msg.Request)
		c.reply(msg.Request.MsgID, errVal, result)
	case msg.Notification != nil:
		s.handleNotification(c, msg.Notification)
	case msg.Response != nil:
		// The server never sends requests to a client, so an inbound
		// response has no matching caller; log and ignore per the
		// protocol-error policy of never aborting the session over it.
		logger.Warn("mplexserver: unexpected response frame from client", "client", c.id, "conn_id", c.connID)
	}
}

func (s *Server) detachClientFromAll(c *client) {
	for _, id := range c.attachedIDs() {
		s.mu.RLock()
		p := s.ptys[id]
		s.mu.RUnlock()
		if p != nil {
			p.DetachClient(c.id)
		}
	}
}

// lookupPTY returns the PTY for id, or nil if it does not exist or has
// already fully exited and been reaped from the map.
func (s *Server) lookupPTY(id uint32) *ptysup.PTY {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ptys[id]
}

// runPTYLifecycle starts the frame scheduler for a newly spawned PTY and,
// once it returns (on PTY exit), broadcasts exactly one pty_exited
// notification and removes the PTY from the map. This is the sequencing
// ptysup.Spawn's doc comment defers to its caller.
func (s *Server) runPTYLifecycle(p *ptysup.PTY) {
	frameTime := s.cfg.FrameDuration()
	p.RunScheduler(frameTime)

	_, code := p.ExitInfo()
	p.Broadcast("pty_exited", []any{int(p.ID), code})

	s.mu.Lock()
	delete(s.ptys, p.ID)
	s.mu.Unlock()
}
