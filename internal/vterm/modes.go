package vterm

import "strconv"

// ModeState tracks the private-mode and OSC-driven settings a client needs
// to encode input correctly and to know when to defer a DA1 reply. It is
// updated by feeding the same bytes written to the emulator through
// Scan, a hand-rolled escape scanner running alongside the external VT
// emulator rather than assuming it exposes every mode as a queryable
// field.
type ModeState struct {
	CursorKeysApp   bool // DECCKM (mode 1)
	KeypadApp       bool // DECKPAM / DECKPNM
	MouseReportMode MouseReportMode
	MouseFormat     MouseFormat
	AltScroll       bool // mode 1007
	BracketedPaste  bool // mode 2004
	FocusEvents     bool // mode 1004
	SyncOutput      bool // mode 2026
	InBandResize    bool // mode 2048
	ModifyOtherKeys int  // xterm modifyOtherKeys level, 0 = off
	KittyFlags      int  // kitty keyboard protocol flags, 0 = disabled
	CursorShape     CursorShape

	Title string
	CWD   string
}

// CursorShape mirrors the redraw wire enum: 0 block, 1 beam, 2 underline.
type CursorShape int

const (
	CursorShapeBlock CursorShape = iota
	CursorShapeBeam
	CursorShapeUnderline
)

type MouseReportMode int

const (
	MouseReportNone MouseReportMode = iota
	MouseReportX10
	MouseReportNormal // button-event tracking, mode 1000/1002 family
	MouseReportAny    // any-event tracking, mode 1003
)

type MouseFormat int

const (
	MouseFormatX10 MouseFormat = iota
	MouseFormatUTF8
	MouseFormatSGR
	MouseFormatSGRPixels
)

// ModeCallbacks carries notifications for side channels the mode scanner
// detects that the redraw builder and server core care about but that the
// VT emulator's own Callbacks (ScrollOut/ScrollbackClear/AltScreen/
// CursorVisibility) do not cover.
type ModeCallbacks struct {
	Title        func(string)
	CWD          func(string)
	ColorQuery   func(index int, kind string) // kind: "fg", "bg", "cursor", or "palette"
	DA1Requested func()
	MouseShape   func(name string)
}

// ModeScanner scans raw bytes about to be (or just) written to the
// emulator for OSC sequences and DEC private mode set/reset sequences,
// updating a ModeState and firing ModeCallbacks as they're recognized.
// It never buffers more than one in-flight escape sequence, matching the
// incremental nature of PTY reads.
type ModeScanner struct {
	state     ModeState
	callbacks ModeCallbacks
	pending   []byte
	inEscape  bool
}

func NewModeScanner(cb ModeCallbacks) *ModeScanner {
	return &ModeScanner{callbacks: cb}
}

func (m *ModeScanner) State() ModeState { return m.state }

// Scan processes a chunk of bytes. It is safe to call with arbitrary
// chunk boundaries, including ones that split an escape sequence, because
// incomplete sequences are buffered in m.pending until a terminator byte
// or length cap is seen.
func (m *ModeScanner) Scan(data []byte) {
	for _, b := range data {
		if !m.inEscape {
			if b == 0x1b {
				m.inEscape = true
				m.pending = m.pending[:0]
				m.pending = append(m.pending, b)
			}
			continue
		}
		m.pending = append(m.pending, b)
		if m.sequenceComplete() {
			m.dispatch(m.pending)
			m.inEscape = false
			m.pending = m.pending[:0]
		}
		if len(m.pending) > 4096 {
			// Runaway or unrecognized sequence; give up on this one.
			m.inEscape = false
			m.pending = m.pending[:0]
		}
	}
}

func (m *ModeScanner) sequenceComplete() bool {
	if len(m.pending) < 2 {
		return false
	}
	switch m.pending[1] {
	case '[': // CSI ... final byte in 0x40-0x7e
		if len(m.pending) < 3 {
			return false
		}
		last := m.pending[len(m.pending)-1]
		return last >= 0x40 && last <= 0x7e
	case ']': // OSC ... terminated by BEL or ST (ESC \)
		if m.pending[len(m.pending)-1] == 0x07 {
			return true
		}
		n := len(m.pending)
		return n >= 2 && m.pending[n-2] == 0x1b && m.pending[n-1] == '\\'
	default:
		// Simple two-byte escapes like ESC = / ESC >.
		return len(m.pending) >= 2
	}
}

func (m *ModeScanner) dispatch(seq []byte) {
	switch seq[1] {
	case '[':
		m.dispatchCSI(seq[2 : len(seq)-1], seq[len(seq)-1])
	case ']':
		body := stripOSCTerminator(seq[2:])
		m.dispatchOSC(body)
	case '=':
		m.state.KeypadApp = true
	case '>':
		m.state.KeypadApp = false
	}
}

func stripOSCTerminator(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == 0x07 {
		return b[:len(b)-1]
	}
	if len(b) >= 2 && b[len(b)-2] == 0x1b && b[len(b)-1] == '\\' {
		return b[:len(b)-2]
	}
	return b
}

func (m *ModeScanner) dispatchCSI(params []byte, final byte) {
	switch final {
	case 'c':
		if len(params) > 0 && params[0] == '?' && m.callbacks.DA1Requested != nil {
			m.callbacks.DA1Requested()
		}
	case 'h', 'l':
		set := final == 'h'
		if len(params) == 0 || params[0] != '?' {
			return
		}
		for _, code := range splitSemicolonInts(params[1:]) {
			m.applyPrivateMode(code, set)
		}
	case 'm':
		// xterm modifyOtherKeys: CSI > 4 ; Pv m
		if len(params) > 0 && params[0] == '>' {
			fields := splitSemicolonInts(params[1:])
			if len(fields) == 2 && fields[0] == 4 {
				m.state.ModifyOtherKeys = fields[1]
			}
		}
	case 'u':
		// Kitty keyboard protocol: CSI = Pflags u sets the flag set;
		// CSI > Pflags u pushes (treated here as a direct set, since
		// this scanner doesn't model the push/pop stack).
		if len(params) > 0 && (params[0] == '=' || params[0] == '>') {
			fields := splitSemicolonInts(params[1:])
			if len(fields) >= 1 {
				m.state.KittyFlags = fields[0]
			}
		} else if len(params) > 0 && params[0] == '<' {
			m.state.KittyFlags = 0
		}
	case 'q':
		// DECSCUSR: CSI Ps SP q, Ps in 0..6 (0/1 blink block, 2 steady
		// block, 3/4 blink/steady underline, 5/6 blink/steady beam).
		p := params
		if len(p) > 0 && p[len(p)-1] == ' ' {
			p = p[:len(p)-1]
		}
		n := 0
		if len(p) > 0 {
			n, _ = strconv.Atoi(string(p))
		}
		switch n {
		case 0, 1, 2:
			m.state.CursorShape = CursorShapeBlock
		case 3, 4:
			m.state.CursorShape = CursorShapeUnderline
		case 5, 6:
			m.state.CursorShape = CursorShapeBeam
		}
	}
}

func (m *ModeScanner) applyPrivateMode(code int, set bool) {
	switch code {
	case 1:
		m.state.CursorKeysApp = set
	case 1000:
		if set {
			m.state.MouseReportMode = MouseReportNormal
		} else if m.state.MouseReportMode == MouseReportNormal {
			m.state.MouseReportMode = MouseReportNone
		}
	case 1002:
		if set {
			m.state.MouseReportMode = MouseReportNormal
		} else if m.state.MouseReportMode == MouseReportNormal {
			m.state.MouseReportMode = MouseReportNone
		}
	case 1003:
		if set {
			m.state.MouseReportMode = MouseReportAny
		} else if m.state.MouseReportMode == MouseReportAny {
			m.state.MouseReportMode = MouseReportNone
		}
	case 9:
		if set {
			m.state.MouseReportMode = MouseReportX10
		} else if m.state.MouseReportMode == MouseReportX10 {
			m.state.MouseReportMode = MouseReportNone
		}
	case 1005:
		if set {
			m.state.MouseFormat = MouseFormatUTF8
		}
	case 1006:
		if set {
			m.state.MouseFormat = MouseFormatSGR
		} else if m.state.MouseFormat == MouseFormatSGR {
			m.state.MouseFormat = MouseFormatX10
		}
	case 1016:
		if set {
			m.state.MouseFormat = MouseFormatSGRPixels
		} else if m.state.MouseFormat == MouseFormatSGRPixels {
			m.state.MouseFormat = MouseFormatX10
		}
	case 1007:
		m.state.AltScroll = set
	case 1004:
		m.state.FocusEvents = set
	case 2004:
		m.state.BracketedPaste = set
	case 2026:
		m.state.SyncOutput = set
	case 2048:
		m.state.InBandResize = set
	}
}

func (m *ModeScanner) dispatchOSC(body []byte) {
	s := string(body)
	switch {
	case hasOSCPrefix(s, "0;"):
		title := s[2:]
		m.state.Title = title
		if m.callbacks.Title != nil {
			m.callbacks.Title(title)
		}
	case hasOSCPrefix(s, "1;"):
		// icon name only; ignored for the title bar.
	case hasOSCPrefix(s, "2;"):
		title := s[2:]
		m.state.Title = title
		if m.callbacks.Title != nil {
			m.callbacks.Title(title)
		}
	case hasOSCPrefix(s, "7;"):
		cwd := stripFileURI(s[2:])
		m.state.CWD = cwd
		if m.callbacks.CWD != nil {
			m.callbacks.CWD(cwd)
		}
	case hasOSCPrefix(s, "4;"):
		idx, ok := parseColorQueryIndex(s[2:])
		if ok && m.callbacks.ColorQuery != nil {
			m.callbacks.ColorQuery(idx, "palette")
		}
	case hasOSCPrefix(s, "10;"):
		if m.callbacks.ColorQuery != nil {
			m.callbacks.ColorQuery(-1, "fg")
		}
	case hasOSCPrefix(s, "11;"):
		if m.callbacks.ColorQuery != nil {
			m.callbacks.ColorQuery(-1, "bg")
		}
	case hasOSCPrefix(s, "12;"):
		if m.callbacks.ColorQuery != nil {
			m.callbacks.ColorQuery(-1, "cursor")
		}
	case hasOSCPrefix(s, "22;"):
		if m.callbacks.MouseShape != nil {
			m.callbacks.MouseShape(s[3:])
		}
	}
}

func hasOSCPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func stripFileURI(s string) string {
	const prefix = "file://"
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return s
	}
	rest := s[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[i:]
		}
	}
	return rest
}

// parseColorQueryIndex extracts the palette index from an "N;spec" OSC 4
// body, ignoring the color spec itself (only queries, which carry "?" as
// the spec, reach the daemon; set requests are a client→terminal concern
// outside this scanner's scope).
func parseColorQueryIndex(s string) (int, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ';' {
			n, err := strconv.Atoi(s[:i])
			if err != nil {
				return 0, false
			}
			return n, true
		}
	}
	return 0, false
}

func splitSemicolonInts(b []byte) []int {
	var out []int
	start := 0
	for i := 0; i <= len(b); i++ {
		if i == len(b) || b[i] == ';' {
			if i > start {
				if n, err := strconv.Atoi(string(b[start:i])); err == nil {
					out = append(out, n)
				}
			}
			start = i + 1
		}
	}
	return out
}
