package mplexserver

import (
	"time"

	"github.com/ehrlich-b/mplexd/internal/ptysup"
	"github.com/ehrlich-b/mplexd/internal/vterm"
)

type mouseEvent struct {
	X, Y                   float64
	Button, EventType      string
	Shift, Ctrl, Alt, Meta bool
}

func mouseEventFromParams(m map[string]any) mouseEvent {
	x, _ := m["x"].(float64)
	y, _ := m["y"].(float64)
	button, _ := m["button"].(string)
	eventType, _ := m["event_type"].(string)
	ev := mouseEvent{X: x, Y: y, Button: button, EventType: eventType}
	if mods, ok := m["modifiers"].(map[string]any); ok {
		ev.Shift = boolField(mods, "shift")
		ev.Ctrl = boolField(mods, "ctrl")
		ev.Alt = boolField(mods, "alt")
		ev.Meta = boolField(mods, "meta")
	}
	return ev
}

// notifyMouseInput implements the three-way mouse dispatch: wheel scroll
// with no reporting client, local text selection with no reporting
// client, and protocol-encoded reporting whenever a mouse mode is active.
func (s *Server) notifyMouseInput(c *client, params any) {
	m, ok := params.(map[string]any)
	if !ok {
		return
	}
	id, ok := toUint32(m["pty_id"])
	if !ok {
		return
	}
	p := s.lookupPTY(id)
	if p == nil {
		return
	}
	ev := mouseEventFromParams(m)
	mode := p.Term.ModeState()

	if ev.EventType == "wheel_up" || ev.EventType == "wheel_down" {
		if mode.MouseReportMode == vterm.MouseReportNone {
			handleLocalWheel(p, mode, ev)
			return
		}
	} else if ev.Button == "left" && mode.MouseReportMode == vterm.MouseReportNone {
		s.handleLocalSelection(c, p, ev)
		return
	}

	if seq, ok := encodeMouseReport(p, mode, ev); ok {
		p.Write(seq)
	}
}

func handleLocalWheel(p *ptysup.PTY, mode vterm.ModeState, ev mouseEvent) {
	up := ev.EventType == "wheel_up"
	if p.Term.AltScreen() && mode.AltScroll {
		var seq []byte
		if mode.CursorKeysApp {
			if up {
				seq = []byte("\x1bOA")
			} else {
				seq = []byte("\x1bOB")
			}
		} else {
			if up {
				seq = []byte("\x1b[A")
			} else {
				seq = []byte("\x1b[B")
			}
		}
		p.Write(seq)
		return
	}
	if up {
		p.Term.ScrollViewport(1)
	} else {
		p.Term.ScrollViewport(-1)
	}
	p.SignalDirty()
}

// handleLocalSelection runs the click-count/drag/release state machine
// for text selection when the terminal has no mouse-reporting mode of
// its own active.
func (s *Server) handleLocalSelection(c *client, p *ptysup.PTY, ev mouseEvent) {
	row, col := int(ev.Y), int(ev.X)
	switch ev.EventType {
	case "down":
		gran := p.ClickState(time.Now())
		c.mu.Lock()
		c.selectionAnchor[p.ID] = pendingPress{row: row, col: col, granularity: gran}
		c.mu.Unlock()
		if gran == 1 {
			p.ClearSelection()
			return
		}
		p.SetSelectionFromPins(ptysup.Pin{Row: row, Col: col}, ptysup.Pin{Row: row, Col: col}, gran)
	case "drag":
		c.mu.Lock()
		press, ok := c.selectionAnchor[p.ID]
		c.mu.Unlock()
		if !ok {
			return
		}
		p.SetSelectionFromPins(
			ptysup.Pin{Row: press.row, Col: press.col},
			ptysup.Pin{Row: row, Col: col},
			press.granularity,
		)
	case "up":
		c.mu.Lock()
		delete(c.selectionAnchor, p.ID)
		c.mu.Unlock()
	}
}
