package mplexserver

import (
	"fmt"

	"github.com/ehrlich-b/mplexd/internal/vterm"
	"github.com/ehrlich-b/mplexd/internal/wire"
)

// handleNotification dispatches one fire-and-forget client->server
// notification. Malformed params are dropped without logging, never torn
// down as a connection error: notifications never get a response to carry
// an error back on. Unknown methods are ignored.
func (s *Server) handleNotification(c *client, n *wire.Notification) {
	switch n.Method {
	case "write_pty":
		s.notifyWritePTY(n.Params)
	case "paste_input":
		s.notifyPasteInput(n.Params)
	case "key_input":
		s.notifyKeyInput(c, n.Params, false)
	case "key_release":
		s.notifyKeyInput(c, n.Params, true)
	case "mouse_input":
		s.notifyMouseInput(c, n.Params)
	case "resize_pty":
		s.resizePTY(n.Params)
	case "detach_pty":
		s.detachPTYOne(c, n.Params)
	case "focus_event":
		s.notifyFocusEvent(n.Params)
	case "color_response":
		s.notifyColorResponse(n.Params)
	}
}

func (s *Server) notifyWritePTY(params any) {
	id, data, ok := ptyIDAndBytesArg(params)
	if !ok {
		return
	}
	if p := s.lookupPTY(id); p != nil {
		p.Write(data)
	}
}

// notifyPasteInput wraps the payload in bracketed-paste markers when the
// emulator has that mode enabled, otherwise translates bare LF to CR
// before writing it straight through.
func (s *Server) notifyPasteInput(params any) {
	id, data, ok := ptyIDAndBytesArg(params)
	if !ok {
		return
	}
	p := s.lookupPTY(id)
	if p == nil {
		return
	}
	if p.Term.ModeState().BracketedPaste {
		out := make([]byte, 0, len(data)+12)
		out = append(out, "\x1b[200~"...)
		out = append(out, data...)
		out = append(out, "\x1b[201~"...)
		p.Write(out)
		return
	}
	out := make([]byte, 0, len(data))
	for _, b := range data {
		if b == '\n' {
			out = append(out, '\r')
			continue
		}
		out = append(out, b)
	}
	p.Write(out)
}

func (s *Server) notifyFocusEvent(params any) {
	m, ok := params.(map[string]any)
	if !ok {
		return
	}
	id, ok := toUint32(m["pty_id"])
	if !ok {
		return
	}
	p := s.lookupPTY(id)
	if p == nil || !p.Term.ModeState().FocusEvents {
		return
	}
	focused, _ := m["focused"].(bool)
	if focused {
		p.Write([]byte("\x1b[I"))
	} else {
		p.Write([]byte("\x1b[O"))
	}
}

func (s *Server) notifyColorResponse(params any) {
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
	r := intField(m, "r", 0)
	g := intField(m, "g", 0)
	b := intField(m, "b", 0)

	kind, hasKind := m["kind"].(string)
	_, hasIndex := m["index"]
	if hasKind && !hasIndex {
		p.ResolveColorQuery(kind, 0)
		p.Write([]byte(formatNamedColorReply(kind, r, g, b)))
		p.SignalDirty()
		return
	}
	idx := intField(m, "index", -1)
	p.ResolveColorQuery("palette", idx)
	p.Write([]byte(formatPaletteColorReply(idx, r, g, b)))
	// A deferred DA1 reply waits on the scheduler's dirty signal, but the
	// child program that requested DA1 is typically blocked awaiting this
	// very color reply and won't produce any PTY output to trigger one on
	// its own — nudge the scheduler so maybeResolveDA1 still gets a turn.
	p.SignalDirty()
}

func inBandResizeReport(rows, cols, pxH, pxW int) []byte {
	return []byte(fmt.Sprintf("\x1b[48;%d;%d;%d;%dt", rows, cols, pxH, pxW))
}

// encodeKeyInput turns a key_input/key_release notification into the byte
// sequence to write to the PTY master, honoring the emulator's current
// cursor-key/keypad application modes, xterm modifyOtherKeys level, kitty
// keyboard flags, and the per-client macOS-Option-as-Alt preference.
func encodeKeyInput(mode vterm.ModeState, macOptionAsAlt bool, ev keyEvent, release bool) []byte {
	if mode.KittyFlags != 0 {
		return encodeKittyKey(ev, release)
	}
	if release {
		return nil // only kitty mode reports key release
	}
	if mode.ModifyOtherKeys > 0 {
		if seq, ok := modifyOtherKeysSeq(ev, mode.ModifyOtherKeys); ok {
			return seq
		}
	}
	if seq, ok := specialKeySeq(ev, mode); ok {
		return seq
	}
	return plainKeySeq(ev, macOptionAsAlt)
}

type keyEvent struct {
	Key, Code                          string
	Shift, Ctrl, Alt, Meta bool
}

func keyEventFromParams(m map[string]any) keyEvent {
	s, _ := m["key"].(string)
	code, _ := m["code"].(string)
	return keyEvent{
		Key:   s,
		Code:  code,
		Shift: boolField(m, "shiftKey"),
		Ctrl:  boolField(m, "ctrlKey"),
		Alt:   boolField(m, "altKey"),
		Meta:  boolField(m, "metaKey"),
	}
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func (s *Server) notifyKeyInput(c *client, params any, release bool) {
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
	ev := keyEventFromParams(m)
	seq := encodeKeyInput(p.Term.ModeState(), c.macOptionAsAlt, ev, release)
	if len(seq) > 0 {
		p.Write(seq)
	}
}
