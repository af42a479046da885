// Package redraw turns a PTY's current terminal state into the wire-level
// redraw notification: a sequence of [name, args] events ending in flush,
// diffed against a per-PTY render-state cache so rows whose dirty bit is
// clear are skipped. cursor_pos and cursor_shape are sent in every frame;
// no selection or mouse_shape events are produced.
package redraw

import (
	"sync"

	"github.com/ehrlich-b/mplexd/internal/vterm"
)

// State is the render-state cache for one PTY: which rows need
// re-emission, whether the next frame must be a full redraw, whether the
// title changed, and the last-broadcast title. It is read and written from the PTY's scheduler goroutine, the
// PTY's reader goroutine, and whichever connection goroutine is handling
// attach_pty or resize_pty for this PTY at a given moment, so every access
// goes through mu.
type State struct {
	mu sync.Mutex

	rowDirty   []bool
	full       bool
	titleDirty bool

	lastTitle       string
	lastCursorShape vterm.CursorShape
	lastMouseShape  string
	lastSelection   *Box
	haveRendered    bool
}

// Box is a nullable selection bounding box in grid coordinates.
type Box struct {
	StartRow, StartCol int
	EndRow, EndCol      int
}

func (b *Box) equal(o *Box) bool {
	if b == nil || o == nil {
		return b == o
	}
	return *b == *o
}

// NewState creates a render-state cache for a PTY with the given row
// count, starting dirty (so the first render is a full redraw).
func NewState(rows int) *State {
	s := &State{rowDirty: make([]bool, rows)}
	s.MarkFull()
	return s
}

// MarkRowDirty flags a single row for re-emission on the next render.
func (s *State) MarkRowDirty(row int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row >= 0 && row < len(s.rowDirty) {
		s.rowDirty[row] = true
	}
}

// MarkTitleDirty flags the title for re-emission on the next render
// without forcing a full redraw of every row.
func (s *State) MarkTitleDirty() {
	s.mu.Lock()
	s.titleDirty = true
	s.mu.Unlock()
}

// HasRendered reports whether at least one frame has been built from this
// cache, used by the startup watchdog to tell "no output yet" apart from
// "output arrived but hasn't been rendered yet".
func (s *State) HasRendered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.haveRendered
}

// MarkFull forces the next render to be a full redraw: every row is
// re-emitted and a resize event is included.
func (s *State) MarkFull() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markFullLocked()
}

func (s *State) markFullLocked() {
	s.full = true
	for i := range s.rowDirty {
		s.rowDirty[i] = true
	}
}

// Resize adjusts the row count the cache tracks and forces a full redraw,
// matching the "dirty=full after resize" rule in the frame scheduler.
func (s *State) Resize(rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resizeLocked(rows)
}

func (s *State) resizeLocked(rows int) {
	s.rowDirty = make([]bool, rows)
	s.markFullLocked()
}

// Dirty reports whether any row is pending or a full redraw is due.
func (s *State) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirtyLocked()
}

func (s *State) dirtyLocked() bool {
	if s.full || !s.haveRendered || s.titleDirty {
		return true
	}
	for _, d := range s.rowDirty {
		if d {
			return true
		}
	}
	return false
}

// clearLocked resets dirty bits after a render has been built from this
// state. Callers must hold mu.
func (s *State) clearLocked() {
	s.full = false
	s.titleDirty = false
	s.haveRendered = true
	for i := range s.rowDirty {
		s.rowDirty[i] = false
	}
}
