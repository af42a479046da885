// Package vterm wraps the charmbracelet/x/vt terminal emulator with the
// structured per-cell grid, scrollback capture, and escape-sequence mode
// tracking the redraw builder and PTY supervisor need: a mutex-guarded
// struct around *vt.Emulator with a ScrollOut/ScrollbackClear/AltScreen/
// CursorVisibility callback set feeding local state, plus a grid snapshot
// (via an in-house ANSI/SGR parser over Render output, since the emulator
// exposes only a rendered string) and a DEC private-mode / OSC scanner
// (since the emulator doesn't surface those as queried state either).
package vterm

import (
	"fmt"
	"strings"
	"sync"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/vt"
)

const maxScrollbackLines = 50000

// Callbacks mirrors the client-visible side effects a PTY session needs to
// react to: title/cwd changes, color queries awaiting a reply, DA1
// requests (gated by the supervisor's deferred-response logic), and the
// terminal mouse-shape hint.
type Callbacks struct {
	Title        func(string)
	CWD          func(string)
	ColorQuery   func(index int, kind string)
	DA1Requested func()
	MouseShape   func(name string)
}

// Terminal is a thread-safe wrapper around the VT emulator that also
// maintains scrollback, DEC/OSC mode state, and a structured cell grid.
// Callbacks registered with the emulator and the mode scanner fire inside
// Write, under mu.
type Terminal struct {
	emu        *vt.Emulator
	modes      *ModeScanner
	scrollback []string
	sbHead     int
	sbLen      int

	mu             sync.Mutex
	altScreen      bool
	cursorHidden   bool
	cols, rows     int
	viewportOffset int
}

// New creates a Terminal with the given dimensions and callback set.
func New(cols, rows int, cb Callbacks) *Terminal {
	t := &Terminal{
		emu:        vt.NewEmulator(cols, rows),
		scrollback: make([]string, maxScrollbackLines),
		cols:       cols,
		rows:       rows,
	}
	t.modes = NewModeScanner(ModeCallbacks{
		Title:        cb.Title,
		CWD:          cb.CWD,
		ColorQuery:   cb.ColorQuery,
		DA1Requested: cb.DA1Requested,
		MouseShape:   cb.MouseShape,
	})
	t.emu.SetCallbacks(vt.Callbacks{
		ScrollOut: func(lines []uv.Line) {
			if t.altScreen {
				return
			}
			for _, line := range lines {
				rendered := line.Render()
				if t.sbLen == len(t.scrollback) {
					t.scrollback[t.sbHead] = ""
				}
				t.scrollback[t.sbHead] = rendered
				t.sbHead = (t.sbHead + 1) % len(t.scrollback)
				if t.sbLen < len(t.scrollback) {
					t.sbLen++
				}
			}
		},
		ScrollbackClear: func() {
			for i := range t.scrollback {
				t.scrollback[i] = ""
			}
			t.sbLen = 0
			t.sbHead = 0
		},
		AltScreen: func(on bool) {
			t.altScreen = on
		},
		CursorVisibility: func(visible bool) {
			t.cursorHidden = !visible
		},
	})
	return t
}

// Write feeds PTY output to the emulator and the mode scanner.
func (t *Terminal) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.modes.Scan(p)
	return t.emu.Write(p)
}

// Resize changes the terminal dimensions.
func (t *Terminal) Resize(cols, rows int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emu.Resize(cols, rows)
	t.cols = cols
	t.rows = rows
}

// Dims reports the current column/row count.
func (t *Terminal) Dims() (cols, rows int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cols, t.rows
}

// ModeState returns a snapshot of the current DEC/OSC mode state.
func (t *Terminal) ModeState() ModeState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.modes.State()
}

// AltScreen reports whether the alternate screen buffer is active.
func (t *Terminal) AltScreen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.altScreen
}

// CursorHidden reports whether the cursor is currently hidden.
func (t *Terminal) CursorHidden() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursorHidden
}

// CursorPos returns the 0-based cursor column/row.
func (t *Terminal) CursorPos() (col, row int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos := t.emu.CursorPosition()
	return pos.X, pos.Y
}

// Grid renders the current visible screen into a structured cell matrix,
// row-major, by parsing the emulator's ANSI render output. Each row gets
// its own *rowParser so styles don't leak across unrelated rows whose
// rendered text happens to omit a leading reset. When a non-zero
// viewport offset is set (mouse-wheel scroll with no mouse-reporting
// client), the top rows are backfilled from scrollback and the bottom
// `offset` live rows are pushed out of view.
func (t *Terminal) Grid() [][]Cell {
	t.mu.Lock()
	rendered := t.emu.Render()
	cols, rows := t.cols, t.rows
	offset := t.viewportOffset
	var sbLines []string
	if offset > 0 {
		sbLines = t.scrollbackLines()
	}
	t.mu.Unlock()

	liveGrid := parseRenderedRows(rendered, cols)
	if offset <= 0 {
		return liveGrid
	}

	overlay := min(offset, len(sbLines), rows)
	out := make([][]Cell, 0, rows)
	for i := len(sbLines) - overlay; i < len(sbLines); i++ {
		out = append(out, parseRenderedRows(sbLines[i], cols)...)
	}
	for i := 0; i < rows-overlay && i < len(liveGrid); i++ {
		out = append(out, liveGrid[i])
	}
	return out
}

func parseRenderedRows(rendered string, cols int) [][]Cell {
	rawRows := strings.Split(rendered, "\r\n")
	if len(rawRows) == 1 {
		rawRows = strings.Split(rendered, "\n")
	}
	grid := make([][]Cell, len(rawRows))
	for i, raw := range rawRows {
		p := newRowParser()
		grid[i] = padRow(p.Parse(raw), cols)
	}
	return grid
}

// ScrollViewport moves the scrollback viewport by delta lines (positive
// scrolls back into history), clamped to available scrollback. It is the
// mouse-wheel path used when no client mouse-reporting mode is active.
func (t *Terminal) ScrollViewport(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.viewportOffset += delta
	if t.viewportOffset < 0 {
		t.viewportOffset = 0
	}
	if t.viewportOffset > t.sbLen {
		t.viewportOffset = t.sbLen
	}
}

// ViewportOffset reports the current scrollback viewport offset.
func (t *Terminal) ViewportOffset() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewportOffset
}

// ResetViewport snaps the viewport back to live output. Key and paste
// input handling does not call it.
func (t *Terminal) ResetViewport() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.viewportOffset = 0
}

func padRow(cells []Cell, width int) []Cell {
	n := 0
	for _, c := range cells {
		n += max(c.Width, 0)
	}
	if n >= width {
		return cells[:min(len(cells), width)]
	}
	out := make([]Cell, len(cells), len(cells)+(width-n))
	copy(out, cells)
	for n < width {
		out = append(out, Cell{Grapheme: " ", Width: 1})
		n++
	}
	return out
}

// Snapshot generates a reconnect payload for a newly attaching client:
// scrollback, a screen-clearing push, a full style reset and grid
// repaint, then cursor position and visibility restore. The repaint is
// the emulator's own Render output, not a re-encoding of Grid.
func (t *Terminal) Snapshot() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	var buf strings.Builder
	lines := t.scrollbackLines()
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteString("\r\n")
	}
	if len(lines) > 0 {
		for range max(t.rows-1, 0) {
			buf.WriteByte('\n')
		}
	}
	buf.WriteString("\x1b[m\x1b[H")
	buf.WriteString(t.emu.Render())
	pos := t.emu.CursorPosition()
	fmt.Fprintf(&buf, "\x1b[%d;%dH", pos.Y+1, pos.X+1)
	if t.cursorHidden {
		buf.WriteString("\x1b[?25l")
	} else {
		buf.WriteString("\x1b[?25h")
	}
	return []byte(buf.String())
}

// ScrollbackLen returns the number of scrollback lines currently stored.
func (t *Terminal) ScrollbackLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sbLen
}

// ScrollbackRange returns up to n rendered scrollback lines ending at
// offset lines back from the bottom of scrollback (offset 0 == most
// recent), oldest-first. The viewport scroll in Grid reads scrollback
// through scrollbackLines directly, not through this method.
func (t *Terminal) ScrollbackRange(offset, n int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	all := t.scrollbackLines()
	end := len(all) - offset
	if end < 0 {
		return nil
	}
	if end > len(all) {
		end = len(all)
	}
	start := end - n
	if start < 0 {
		start = 0
	}
	return append([]string(nil), all[start:end]...)
}

// Close releases the emulator resources.
func (t *Terminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.emu.Close()
}

func (t *Terminal) scrollbackLines() []string {
	if t.sbLen == 0 {
		return nil
	}
	lines := make([]string, t.sbLen)
	start := (t.sbHead - t.sbLen + len(t.scrollback)) % len(t.scrollback)
	for i := range t.sbLen {
		lines[i] = t.scrollback[(start+i)%len(t.scrollback)]
	}
	return lines
}
