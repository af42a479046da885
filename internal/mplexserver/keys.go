package mplexserver

import "github.com/ehrlich-b/mplexd/internal/vterm"

// specialKeySeq covers the named keys with cursor-key-application-mode
// and keypad-application-mode variants: arrows, Home/End, function keys,
// and keypad Enter. Keypad digits and operators are not handled here.
func specialKeySeq(ev keyEvent, mode vterm.ModeState) ([]byte, bool) {
	csi := func(final byte) []byte {
		if mode.CursorKeysApp {
			return []byte{0x1b, 'O', final}
		}
		return []byte{0x1b, '[', final}
	}
	switch ev.Key {
	case "ArrowUp":
		return csi('A'), true
	case "ArrowDown":
		return csi('B'), true
	case "ArrowRight":
		return csi('C'), true
	case "ArrowLeft":
		return csi('D'), true
	case "Home":
		return csi('H'), true
	case "End":
		return csi('F'), true
	case "Enter":
		if mode.KeypadApp && ev.Code == "NumpadEnter" {
			return []byte{0x1b, 'O', 'M'}, true
		}
		return []byte{'\r'}, true
	case "Tab":
		if ev.Shift {
			return []byte{0x1b, '[', 'Z'}, true
		}
		return []byte{'\t'}, true
	case "Backspace":
		return []byte{0x7f}, true
	case "Escape":
		return []byte{0x1b}, true
	case "Delete":
		return []byte("\x1b[3~"), true
	case "PageUp":
		return []byte("\x1b[5~"), true
	case "PageDown":
		return []byte("\x1b[6~"), true
	case "Insert":
		return []byte("\x1b[2~"), true
	case "F1":
		return []byte{0x1b, 'O', 'P'}, true
	case "F2":
		return []byte{0x1b, 'O', 'Q'}, true
	case "F3":
		return []byte{0x1b, 'O', 'R'}, true
	case "F4":
		return []byte{0x1b, 'O', 'S'}, true
	case "F5":
		return []byte("\x1b[15~"), true
	case "F6":
		return []byte("\x1b[17~"), true
	case "F7":
		return []byte("\x1b[18~"), true
	case "F8":
		return []byte("\x1b[19~"), true
	case "F9":
		return []byte("\x1b[20~"), true
	case "F10":
		return []byte("\x1b[21~"), true
	case "F11":
		return []byte("\x1b[23~"), true
	case "F12":
		return []byte("\x1b[24~"), true
	}
	return nil, false
}

// plainKeySeq handles a printable key, applying ctrl-to-control-code
// folding and, when macOptionAsAlt is set, prefixing ESC for an
// Option/Alt-held printable the way macOS terminal apps traditionally do.
func plainKeySeq(ev keyEvent, macOptionAsAlt bool) []byte {
	if ev.Key == "" {
		return nil
	}
	r := []rune(ev.Key)
	if len(r) != 1 {
		return nil
	}
	c := r[0]
	if ev.Ctrl && c >= '@' && c <= '_' {
		return []byte{byte(c) &^ 0x40}
	}
	if ev.Ctrl && c >= 'a' && c <= 'z' {
		return []byte{byte(c-'a') + 1}
	}
	b := []byte(string(r))
	if ev.Alt && macOptionAsAlt {
		out := make([]byte, 0, len(b)+1)
		out = append(out, 0x1b)
		out = append(out, b...)
		return out
	}
	return b
}

// modifyOtherKeysSeq implements xterm's modifyOtherKeys protocol, which
// reports a modified key as CSI 27 ; Pm ; Pc ~ (level 1) once any
// modifier other than plain Shift is held on an otherwise-unmapped key.
func modifyOtherKeysSeq(ev keyEvent, level int) ([]byte, bool) {
	if level < 1 {
		return nil, false
	}
	r := []rune(ev.Key)
	if len(r) != 1 {
		return nil, false
	}
	mod := modifierCode(ev)
	if mod <= 2 {
		return nil, false // no modifier beyond plain Shift; let normal path handle it
	}
	seq := []byte{0x1b, '['}
	seq = appendInt(seq, 27)
	seq = append(seq, ';')
	seq = appendInt(seq, mod)
	seq = append(seq, ';')
	seq = appendInt(seq, int(r[0]))
	seq = append(seq, '~')
	return seq, true
}

// modifierCode is the xterm CSI modifier parameter: 1 + (shift=1, alt=2,
// ctrl=4, meta=8).
func modifierCode(ev keyEvent) int {
	n := 1
	if ev.Shift {
		n += 1
	}
	if ev.Alt {
		n += 2
	}
	if ev.Ctrl {
		n += 4
	}
	if ev.Meta {
		n += 8
	}
	return n
}

func appendInt(b []byte, n int) []byte {
	if n == 0 {
		return append(b, '0')
	}
	if n < 0 {
		b = append(b, '-')
		n = -n
	}
	var tmp [20]byte
	i := len(tmp)
	for n > 0 {
		i--
		tmp[i] = byte('0' + n%10)
		n /= 10
	}
	return append(b, tmp[i:]...)
}

// kittyKeyCode maps the handful of named keys the kitty keyboard protocol
// assigns a distinct CSI-u functional keycode; anything else falls back
// to its Unicode codepoint.
func kittyKeyCode(ev keyEvent) (int, bool) {
	switch ev.Key {
	case "Escape":
		return 27, true
	case "Enter":
		return 13, true
	case "Tab":
		return 9, true
	case "Backspace":
		return 127, true
	case "ArrowUp":
		return 57352, true
	case "ArrowDown":
		return 57353, true
	case "ArrowRight":
		return 57351, true
	case "ArrowLeft":
		return 57350, true
	}
	r := []rune(ev.Key)
	if len(r) == 1 {
		return int(r[0]), true
	}
	return 0, false
}

// encodeKittyKey emits CSI codepoint ; modifier u for press, with a
// trailing ":3" event-type suffix on the modifier field for release
// (flag bit 1 in the protocol enables release reporting; the daemon
// reports it unconditionally once any kitty flag is set, relying on the
// client to ignore it if it didn't ask).
func encodeKittyKey(ev keyEvent, release bool) []byte {
	code, ok := kittyKeyCode(ev)
	if !ok {
		return nil
	}
	mod := modifierCode(ev)
	seq := []byte{0x1b, '['}
	seq = appendInt(seq, code)
	seq = append(seq, ';')
	seq = appendInt(seq, mod)
	if release {
		seq = append(seq, ':', '3')
	}
	seq = append(seq, 'u')
	return seq
}
