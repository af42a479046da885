package vterm

import (
	"strconv"
	"strings"
)

// rowParser turns one rendered grid row — plain text interleaved with SGR
// (CSI ... m) and OSC 8 hyperlink sequences, as produced by the VT
// emulator's Render — into a sequence of styled cells. Style state
// (colors, attributes, underline variant) and the active hyperlink persist
// across calls via the *rowParser so they carry correctly from one row to
// the next, matching how a real terminal's current graphic rendition
// persists between lines.
type rowParser struct {
	style Style
	link  string
}

func newRowParser() *rowParser { return &rowParser{} }

// Parse consumes one row's ANSI text and returns its cells; each wide rune
// is followed by its width-0 spacer-tail cell.
func (p *rowParser) Parse(row string) []Cell {
	var cells []Cell
	i := 0
	for i < len(row) {
		switch row[i] {
		case 0x1b:
			if i+1 < len(row) && row[i+1] == '[' {
				end := i + 2
				for end < len(row) && !isCSIFinal(row[end]) {
					end++
				}
				if end < len(row) {
					p.applyCSI(row[i+2:end], row[end])
					i = end + 1
					continue
				}
				i = len(row)
			} else if i+1 < len(row) && row[i+1] == ']' {
				end := strings.IndexAny(row[i:], "\x07")
				stEnd := strings.Index(row[i:], "\x1b\\")
				if stEnd >= 0 && (end < 0 || stEnd < end) {
					p.applyOSC(row[i+2 : i+stEnd])
					i += stEnd + 2
					continue
				}
				if end >= 0 {
					p.applyOSC(row[i+2 : i+end])
					i += end + 1
					continue
				}
				i = len(row)
			} else {
				i++
			}
		default:
			r, size := decodeRune(row[i:])
			width := runeWidth(r)
			cells = append(cells, Cell{
				Grapheme:  string(r),
				Style:     p.style,
				Width:     width,
				Hyperlink: p.link,
			})
			if width == 2 {
				cells = append(cells, Cell{Grapheme: "", Style: p.style, Width: 0, Hyperlink: p.link})
			}
			i += size
		}
	}
	return cells
}

func isCSIFinal(b byte) bool { return b >= 0x40 && b <= 0x7e }

func (p *rowParser) applyOSC(body string) {
	// Hyperlink: OSC 8 ; params ; uri
	if strings.HasPrefix(body, "8;") {
		parts := strings.SplitN(body[2:], ";", 2)
		if len(parts) == 2 {
			p.link = parts[1]
		} else {
			p.link = ""
		}
	}
}

func (p *rowParser) applyCSI(params string, final byte) {
	if final != 'm' {
		return
	}
	if params == "" {
		p.style = Style{}
		return
	}
	fields := strings.Split(params, ";")
	for i := 0; i < len(fields); i++ {
		code := atoiField(fields[i])
		switch {
		case code == 0:
			p.style = Style{}
		case code == 1:
			p.style.Bold = true
		case code == 2:
			p.style.Dim = true
		case code == 3:
			p.style.Italic = true
		case code == 4:
			sub := subField(fields[i])
			if sub >= 0 {
				p.style.UnderlineStyle = UnderlineStyle(sub)
			} else {
				p.style.UnderlineStyle = UnderlineSingle
			}
		case code == 5 || code == 6:
			p.style.Blink = true
		case code == 7:
			p.style.Reverse = true
		case code == 9:
			p.style.Strikethrough = true
		case code == 22:
			p.style.Bold, p.style.Dim = false, false
		case code == 23:
			p.style.Italic = false
		case code == 24:
			p.style.UnderlineStyle = UnderlineNone
		case code == 25:
			p.style.Blink = false
		case code == 27:
			p.style.Reverse = false
		case code == 29:
			p.style.Strikethrough = false
		case code >= 30 && code <= 37:
			p.style.Fg = Color{Kind: ColorPalette, Idx: uint8(code - 30)}
		case code == 38:
			c, n := parseExtendedColor(fields[i:])
			p.style.Fg = c
			i += n
		case code == 39:
			p.style.Fg = Color{}
		case code >= 40 && code <= 47:
			p.style.Bg = Color{Kind: ColorPalette, Idx: uint8(code - 40)}
		case code == 48:
			c, n := parseExtendedColor(fields[i:])
			p.style.Bg = c
			i += n
		case code == 49:
			p.style.Bg = Color{}
		case code == 58:
			c, n := parseExtendedColor(fields[i:])
			p.style.Underline = c
			i += n
		case code == 59:
			p.style.Underline = Color{}
		case code >= 90 && code <= 97:
			p.style.Fg = Color{Kind: ColorPalette, Idx: uint8(code - 90 + 8)}
		case code >= 100 && code <= 107:
			p.style.Bg = Color{Kind: ColorPalette, Idx: uint8(code - 100 + 8)}
		}
	}
}

// parseExtendedColor handles "38;5;N" and "38;2;R;G;B" forms (and their
// 48/58 siblings), returning the color and the number of extra fields
// consumed after the leading 38/48/58.
func parseExtendedColor(fields []string) (Color, int) {
	if len(fields) < 2 {
		return Color{}, 0
	}
	switch atoiField(fields[1]) {
	case 5:
		if len(fields) < 3 {
			return Color{}, 1
		}
		return Color{Kind: ColorPalette, Idx: uint8(atoiField(fields[2]))}, 2
	case 2:
		if len(fields) < 5 {
			return Color{}, len(fields) - 1
		}
		return Color{
			Kind: ColorRGB,
			R:    uint8(atoiField(fields[2])),
			G:    uint8(atoiField(fields[3])),
			B:    uint8(atoiField(fields[4])),
		}, 4
	}
	return Color{}, 1
}

func atoiField(s string) int {
	s, _, _ = strings.Cut(s, ":")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func subField(s string) int {
	_, sub, ok := strings.Cut(s, ":")
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(sub)
	if err != nil {
		return -1
	}
	return n
}

func decodeRune(s string) (rune, int) {
	for size := min(4, len(s)); size > 0; size-- {
		if r := []rune(s[:size]); len(r) == 1 && size == len(string(r[0])) {
			return r[0], size
		}
	}
	r := []rune(s)
	if len(r) == 0 {
		return ' ', 1
	}
	return r[0], len(string(r[0]))
}

// runeWidth returns 2 for common East-Asian wide ranges and 1 otherwise.
// A full Unicode width table is out of scope; this covers CJK, which is
// what exercises the wide-cell/spacer-tail path in practice.
func runeWidth(r rune) int {
	switch {
	case r >= 0x1100 && r <= 0x115F,
		r >= 0x2E80 && r <= 0xA4CF,
		r >= 0xAC00 && r <= 0xD7A3,
		r >= 0xF900 && r <= 0xFAFF,
		r >= 0xFF00 && r <= 0xFF60,
		r >= 0x20000 && r <= 0x3FFFD:
		return 2
	default:
		return 1
	}
}
