package mplexserver

import (
	"github.com/ehrlich-b/mplexd/internal/ptysup"
	"github.com/ehrlich-b/mplexd/internal/vterm"
)

// encodeMouseReport builds the CSI mouse-report sequence for the
// terminal's currently active reporting level and format. ok is false
// when the level doesn't care about this event type (e.g. plain motion
// under button-event tracking with no button held).
func encodeMouseReport(p *ptysup.PTY, mode vterm.ModeState, ev mouseEvent) ([]byte, bool) {
	if mode.MouseReportMode == vterm.MouseReportNone {
		return nil, false
	}
	if ev.EventType == "move" && mode.MouseReportMode != vterm.MouseReportAny {
		return nil, false
	}

	code, ok := mouseButtonCode(ev)
	if !ok {
		return nil, false
	}
	if ev.Shift {
		code |= 4
	}
	if ev.Alt {
		code |= 8
	}
	if ev.Ctrl {
		code |= 16
	}

	col, row := int(ev.X)+1, int(ev.Y)+1

	switch mode.MouseFormat {
	case vterm.MouseFormatSGR, vterm.MouseFormatSGRPixels:
		px, py := col, row
		if mode.MouseFormat == vterm.MouseFormatSGRPixels {
			cw, ch := cellPixelSize(p)
			px, py = int(ev.X*float64(cw))+1, int(ev.Y*float64(ch))+1
		}
		final := byte('M')
		if ev.EventType == "up" {
			final = 'm'
		}
		seq := []byte{0x1b, '['}
		seq = append(seq, '<')
		seq = appendInt(seq, code)
		seq = append(seq, ';')
		seq = appendInt(seq, px)
		seq = append(seq, ';')
		seq = appendInt(seq, py)
		seq = append(seq, final)
		return seq, true
	default: // x10 / UTF-8 encodings both use the legacy byte-offset form
		seq := []byte{0x1b, '[', 'M', byte(32 + code), byte(32 + col), byte(32 + row)}
		return seq, true
	}
}

// cellPixelSize derives the pixel size of one cell from the PTY's last
// reported pixel dimensions, used for SGR-pixels mouse reporting.
func cellPixelSize(p *ptysup.PTY) (w, h int) {
	cols, rows := p.Dims()
	pxW, pxH := p.PixelDims()
	if cols == 0 || rows == 0 || pxW == 0 || pxH == 0 {
		return 1, 1
	}
	return pxW / cols, pxH / rows
}

// mouseButtonCode maps a button + event type to the base xterm button
// code (before modifier bits are OR'd in): 0/1/2 for left/middle/right
// press, 3 for any release, 32+n for motion-with-button-held, 64/65 for
// wheel up/down.
func mouseButtonCode(ev mouseEvent) (int, bool) {
	switch ev.EventType {
	case "wheel_up":
		return 64, true
	case "wheel_down":
		return 65, true
	case "up":
		return 3, true
	case "down":
		base, ok := buttonBase(ev.Button)
		return base, ok
	case "drag", "move":
		base, ok := buttonBase(ev.Button)
		if !ok {
			if ev.EventType == "move" {
				return 35, true // motion, no button held
			}
			return 0, false
		}
		return base + 32, true
	}
	return 0, false
}

func buttonBase(button string) (int, bool) {
	switch button {
	case "left":
		return 0, true
	case "middle":
		return 1, true
	case "right":
		return 2, true
	}
	return 0, false
}
