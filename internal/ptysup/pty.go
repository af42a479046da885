// Package ptysup is the per-PTY supervisor: it owns a child process, its
// PTY master, the reader goroutine that drains it into a VT emulator, the
// render-state cache, the pending-color-query queue, and the deferred-DA1
// coordination. Its lifecycle (creack/pty spawn, a reader goroutine, gzip
// audit trail, startup watchdog) supports many PTYs and many clients
// under one daemon rather than one PTY per process.
package ptysup

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/ehrlich-b/mplexd/internal/logger"
	"github.com/ehrlich-b/mplexd/internal/redraw"
	"github.com/ehrlich-b/mplexd/internal/vterm"
)

const (
	TitleLenMax      = 4096
	CWDLenMax        = 4096
	ColorQueryMax    = 32
	ColorQueryTTL    = 5000 * time.Millisecond
	DA1DeferTimeout  = 5000 * time.Millisecond
	readBufSize      = 4096
	killStageDelay   = 100 * time.Millisecond
	startupWatchdog1 = 15 * time.Second
	startupWatchdog2 = 15 * time.Second
)

// Client is the supervisor's view of an attached client session: just
// enough to broadcast a server->client notification. mplexserver's client
// session type implements this.
type Client interface {
	ID() uint64
	Notify(method string, params any)
}

// ColorQuery is one outstanding OSC color query awaiting a client reply.
type ColorQuery struct {
	Target string // "foreground", "background", "cursor", or "palette"
	Index  int    // palette index, meaningful only when Target == "palette"
	At     time.Time
}

// PTY is one supervised child process plus its terminal state. Exported
// fields not otherwise guarded by mu are written once at construction.
type PTY struct {
	ID uint32

	master *os.File
	cmd    *exec.Cmd

	Term  *vterm.Terminal
	State *redraw.State

	mu      sync.Mutex
	running bool
	exited  bool
	exitCode int

	title string
	cwd   string

	colorQueue []ColorQuery
	sentColor  int
	recvColor  int
	da1Pending bool
	da1At      time.Time

	clickCount int
	clickAt    time.Time
	selection  *redraw.Box

	clientsMu sync.Mutex
	clients   map[uint64]Client

	dirty chan struct{}
	exitC chan struct{}

	renderTimerMu sync.Mutex
	renderTimer   *time.Timer
	lastRender    time.Time

	auditMu     sync.Mutex
	auditWriter *gzip.Writer
	auditFile   *os.File
	auditStart  time.Time
	auditLastMS uint64

	cols, rows int
	pixelW, pixelH int

	CWDChanged func(cwd string)
}

// SpawnOptions configures a new PTY.
type SpawnOptions struct {
	Rows, Cols int
	Shell      string
	CWD        string
	Env        map[string]string
	Audit      bool
	AuditPath  string
}

// Spawn creates a PTY pair, forks the shell in a new session so the PTY
// becomes its controlling terminal, and starts the reader goroutine. The
// child's environment always carries TERM/COLORTERM even if the caller's
// env map omits or overrides them.
func Spawn(id uint32, opts SpawnOptions) (*PTY, error) {
	shell := opts.Shell
	if shell == "" {
		shell = defaultShell()
	}
	cmd := exec.Command(shell)
	cmd.Dir = opts.CWD
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Env = buildEnv(opts.Env)

	size := &pty.Winsize{Rows: uint16(opts.Rows), Cols: uint16(opts.Cols)}
	master, err := pty.StartWithSize(cmd, size)
	if err != nil {
		return nil, fmt.Errorf("ptysup: start pty: %w", err)
	}

	p := &PTY{
		ID:      id,
		master:  master,
		cmd:     cmd,
		running: true,
		clients: make(map[uint64]Client),
		dirty:   make(chan struct{}, 1),
		exitC:   make(chan struct{}),
		cols:    opts.Cols,
		rows:    opts.Rows,
	}
	p.State = redraw.NewState(opts.Rows)
	p.Term = vterm.New(opts.Cols, opts.Rows, vterm.Callbacks{
		Title:        p.onTitle,
		CWD:          p.onCWD,
		ColorQuery:   p.onColorQuery,
		DA1Requested: p.onDA1,
	})

	if opts.Audit {
		if err := p.startAudit(opts.AuditPath); err != nil {
			logger.Warn("ptysup: audit start failed", "pty", id, "err", err)
		}
	}

	go p.readLoop()
	go p.startupWatchdogLoop()
	// The caller starts RunScheduler (and, after it returns, delivers the
	// pty_exited notification) so frame broadcast and exit-notification
	// ordering is sequenced by the server, which owns the wire format for
	// both: exactly one pty_exited, after the last redraw.

	return p, nil
}

func defaultShell() string {
	if s := os.Getenv("SHELL"); s != "" {
		return s
	}
	return "/bin/sh"
}

func buildEnv(caller map[string]string) []string {
	env := make(map[string]string, len(caller)+2)
	for k, v := range caller {
		env[k] = v
	}
	env["TERM"] = "xterm-256color"
	env["COLORTERM"] = "truecolor"
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// AttachClient adds a client to this PTY's attached set. The caller is
// responsible for sending the new client a full redraw snapshot; other
// attached clients receive only incremental frames going forward.
func (p *PTY) AttachClient(c Client) {
	p.clientsMu.Lock()
	p.clients[c.ID()] = c
	p.clientsMu.Unlock()
}

// DetachClient removes a client from the attached set. The PTY continues
// running regardless of how many clients remain attached.
func (p *PTY) DetachClient(id uint64) {
	p.clientsMu.Lock()
	delete(p.clients, id)
	p.clientsMu.Unlock()
}

// Broadcast sends a notification to every attached client.
func (p *PTY) Broadcast(method string, params any) {
	p.clientsMu.Lock()
	targets := make([]Client, 0, len(p.clients))
	for _, c := range p.clients {
		targets = append(targets, c)
	}
	p.clientsMu.Unlock()
	for _, c := range targets {
		c.Notify(method, params)
	}
}

// AttachedCount reports how many clients are currently attached.
func (p *PTY) AttachedCount() int {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	return len(p.clients)
}

// Running reports whether the PTY's process is still alive.
func (p *PTY) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// ExitInfo reports whether the PTY has exited and its status.
func (p *PTY) ExitInfo() (exited bool, code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited, p.exitCode
}

// Title and CWD return the current truncated title/cwd buffers.
func (p *PTY) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title
}

func (p *PTY) CWD() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cwd
}

// Dims returns the PTY's current window size in cells.
func (p *PTY) Dims() (cols, rows int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cols, p.rows
}

// PixelDims returns the last pixel metrics supplied by resize_pty, used
// for SGR-pixels mouse encoding.
func (p *PTY) PixelDims() (w, h int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pixelW, p.pixelH
}

// Write sends bytes directly to the PTY master (write_pty / encoded
// input). Writes are short and best-effort; a retrying writer absorbs
// EAGAIN.
func (p *PTY) Write(b []byte) error {
	for len(b) > 0 {
		n, err := p.master.Write(b)
		if err != nil {
			if err == syscall.EAGAIN {
				time.Sleep(time.Millisecond)
				continue
			}
			return err
		}
		b = b[n:]
	}
	return nil
}

// Resize changes the PTY's window size and the emulator's dimensions,
// forcing a full redraw. It is a no-op on the emulator if the dimensions
// did not actually change.
func (p *PTY) Resize(cols, rows, pixelW, pixelH int) (changed bool) {
	p.mu.Lock()
	changed = cols != p.cols || rows != p.rows
	p.cols, p.rows = cols, rows
	p.pixelW, p.pixelH = pixelW, pixelH
	p.mu.Unlock()

	pty.Setsize(p.master, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if changed {
		p.Term.Resize(cols, rows)
		p.State.Resize(rows)
	} else {
		p.State.MarkFull()
	}
	return changed
}

// SignalDirty performs a non-blocking push onto the dirty-signal channel:
// a full channel means the PTY is already known dirty, which is exactly
// the semantics wanted.
func (p *PTY) SignalDirty() {
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}

// DirtyChan exposes the dirty-signal channel for the frame scheduler.
func (p *PTY) DirtyChan() <-chan struct{} { return p.dirty }

// ExitChan is closed once, when the PTY's reader loop observes process
// exit and finishes the kill-and-reap protocol.
func (p *PTY) ExitChan() <-chan struct{} { return p.exitC }

// Close signals the PTY to shut down, the close_pty / daemon-shutdown
// path. It is safe to call multiple times.
func (p *PTY) Close() {
	p.mu.Lock()
	wasRunning := p.running
	p.running = false
	p.mu.Unlock()
	if !wasRunning {
		return
	}
	if p.cmd.Process != nil {
		p.cmd.Process.Signal(syscall.SIGHUP)
	}
	p.master.Close()
}

func (p *PTY) readLoop() {
	buf := make([]byte, readBufSize)
	for {
		n, err := p.master.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			p.Term.Write(data)
			p.writeAuditFrame(0, data)
			if !p.Term.ModeState().SyncOutput {
				p.SignalDirty()
			}
		}
		if err != nil {
			p.finish()
			return
		}
	}
}

// finish runs the kill-and-reap escalation protocol: close the master
// (SIGHUP reaches the process group), wait, then escalate
// SIGHUP -> SIGTERM -> SIGKILL with killStageDelay between stages and a
// final indefinite Wait after SIGKILL.
func (p *PTY) finish() {
	p.master.Close()

	done := make(chan struct{})
	go func() {
		p.cmd.Wait()
		close(done)
	}()

	stages := []syscall.Signal{syscall.SIGHUP, syscall.SIGTERM, syscall.SIGKILL}
	for i, sig := range stages {
		select {
		case <-done:
			goto reaped
		case <-time.After(killStageDelay):
		}
		if p.cmd.Process != nil {
			p.cmd.Process.Signal(sig)
		}
		if i == len(stages)-1 {
			<-done // indefinite poll after SIGKILL
		}
	}
reaped:

	code := 0
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}

	p.mu.Lock()
	p.running = false
	p.exited = true
	p.exitCode = code
	p.mu.Unlock()

	p.closeAudit()
	close(p.exitC)
	p.SignalDirty()
}

func (p *PTY) onTitle(title string) {
	if len(title) > TitleLenMax {
		title = title[:TitleLenMax]
	}
	p.mu.Lock()
	p.title = title
	p.mu.Unlock()
	p.State.MarkTitleDirty()
}

func (p *PTY) onCWD(cwd string) {
	if len(cwd) > CWDLenMax {
		cwd = cwd[:CWDLenMax]
	}
	p.mu.Lock()
	p.cwd = cwd
	p.mu.Unlock()
	if p.CWDChanged != nil {
		p.CWDChanged(cwd)
	}
}

// colorKindWire normalizes the VT emulator's short callback kind names
// ("fg", "bg", "cursor", "palette") to the names the wire protocol's
// color_query/color_response payloads use.
func colorKindWire(kind string) string {
	switch kind {
	case "fg":
		return "foreground"
	case "bg":
		return "background"
	default:
		return kind
	}
}

func (p *PTY) onColorQuery(index int, kind string) {
	kind = colorKindWire(kind)
	p.mu.Lock()
	p.expireColorQueriesLocked()
	if len(p.colorQueue) >= ColorQueryMax {
		p.mu.Unlock()
		return // drop on overflow
	}
	p.colorQueue = append(p.colorQueue, ColorQuery{Target: kind, Index: index, At: time.Now()})
	slot := p.sentColor
	p.sentColor++
	p.mu.Unlock()

	params := map[string]any{"pty_id": int(p.ID), "slot": slot}
	if kind == "palette" {
		params["index"] = index
	} else {
		params["kind"] = kind
	}
	p.Broadcast("color_query", params)
}

func (p *PTY) expireColorQueriesLocked() {
	cutoff := time.Now().Add(-ColorQueryTTL)
	kept := p.colorQueue[:0]
	for _, q := range p.colorQueue {
		if q.At.After(cutoff) {
			kept = append(kept, q)
		}
	}
	p.colorQueue = kept
}

// PendingColorQueries returns a snapshot of the outstanding queries,
// expiring stale ones first.
func (p *PTY) PendingColorQueries() []ColorQuery {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expireColorQueriesLocked()
	return append([]ColorQuery(nil), p.colorQueue...)
}

// ResolveColorQuery marks one outstanding query of the given kind (and
// index, for palette queries) as answered, removing it from the queue.
func (p *PTY) ResolveColorQuery(kind string, index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expireColorQueriesLocked()
	for i, q := range p.colorQueue {
		if q.Target == kind && (kind != "palette" || q.Index == index) {
			p.colorQueue = append(p.colorQueue[:i], p.colorQueue[i+1:]...)
			p.recvColor++
			return
		}
	}
}

func (p *PTY) onDA1() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.da1Pending {
		p.da1Pending = true
		p.da1At = time.Now()
	}
}

// DA1Ready reports whether the deferred DA1 reply may now be written:
// either the color-query queue is empty (including queries issued after
// DA1 was requested), or the defer timeout has elapsed.
func (p *PTY) DA1Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.da1Pending {
		return false
	}
	p.expireColorQueriesLocked()
	if len(p.colorQueue) == 0 {
		return true
	}
	return time.Since(p.da1At) >= DA1DeferTimeout
}

// ConsumeDA1 clears the pending flag after the reply has been written.
func (p *PTY) ConsumeDA1() {
	p.mu.Lock()
	p.da1Pending = false
	p.mu.Unlock()
}

// ClickState reads and updates the triple-click state machine used by the
// local mouse-selection handler: count resets to 1 if more than 500ms
// elapsed since the previous press, otherwise increments and wraps at 3.
func (p *PTY) ClickState(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clickAt.IsZero() || now.Sub(p.clickAt) > 500*time.Millisecond {
		p.clickCount = 1
	} else {
		p.clickCount++
		if p.clickCount > 3 {
			p.clickCount = 1
		}
	}
	p.clickAt = now
	return p.clickCount
}

func (p *PTY) startupWatchdogLoop() {
	timer := time.NewTimer(startupWatchdog1)
	defer timer.Stop()
	select {
	case <-p.exitC:
		return
	case <-timer.C:
	}
	if p.hasProducedOutput() {
		return
	}
	logger.Warn("ptysup: watchdog: no output yet", "pty", p.ID, "pid", p.cmd.Process.Pid)

	timer2 := time.NewTimer(startupWatchdog2)
	defer timer2.Stop()
	select {
	case <-p.exitC:
		return
	case <-timer2.C:
	}
	if p.hasProducedOutput() {
		return
	}
	logger.Warn("ptysup: watchdog: still no output", "pty", p.ID, "pid", p.cmd.Process.Pid)
}

func (p *PTY) hasProducedOutput() bool {
	return p.State.HasRendered()
}

// --- audit trail (supplemented feature, grounded in egg/server.go +
// egg/audit.go's gzip varint-framed output recorder) ---

func (p *PTY) startAudit(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(f)
	if _, err := gw.Write([]byte("MPX1")); err != nil {
		return err
	}
	cols, rows := p.Dims()
	writeVarint(gw, uint64(cols))
	writeVarint(gw, uint64(rows))
	p.auditMu.Lock()
	p.auditWriter = gw
	p.auditFile = f
	p.auditStart = time.Now()
	p.auditMu.Unlock()
	return nil
}

func (p *PTY) writeAuditFrame(frameType uint64, data []byte) {
	p.auditMu.Lock()
	defer p.auditMu.Unlock()
	if p.auditWriter == nil {
		return
	}
	ms := uint64(time.Since(p.auditStart).Milliseconds())
	delta := ms - p.auditLastMS
	p.auditLastMS = ms
	writeVarint(p.auditWriter, delta)
	writeVarint(p.auditWriter, frameType)
	writeVarint(p.auditWriter, uint64(len(data)))
	p.auditWriter.Write(data)
}

func (p *PTY) closeAudit() {
	p.auditMu.Lock()
	defer p.auditMu.Unlock()
	if p.auditWriter == nil {
		return
	}
	p.auditWriter.Flush()
	p.auditWriter.Close()
	if p.auditFile != nil {
		p.auditFile.Close()
	}
	p.auditWriter = nil
	p.auditFile = nil
}

func writeVarint(w io.Writer, v uint64) {
	var buf [10]byte
	n := binary.PutUvarint(buf[:], v)
	w.Write(buf[:n])
}
