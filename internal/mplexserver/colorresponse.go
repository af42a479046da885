package mplexserver

import "fmt"

// scale16 widens an 8-bit color component to the 16-bit-per-channel form
// xterm's OSC color replies use (c * 0x101 repeats the byte into both
// halves of the 16-bit value).
func scale16(c int) int { return (c & 0xff) * 0x101 }

// formatNamedColorReply builds the OSC 10/11/12 reply for a foreground,
// background, or cursor color query.
func formatNamedColorReply(kind string, r, g, b int) string {
	var code int
	switch kind {
	case "foreground":
		code = 10
	case "background":
		code = 11
	case "cursor":
		code = 12
	default:
		return ""
	}
	return fmt.Sprintf("\x1b]%d;rgb:%04x/%04x/%04x\x1b\\", code, scale16(r), scale16(g), scale16(b))
}

// formatPaletteColorReply builds the OSC 4 reply for a palette index
// query.
func formatPaletteColorReply(index, r, g, b int) string {
	return fmt.Sprintf("\x1b]4;%d;rgb:%04x/%04x/%04x\x1b\\", index, scale16(r), scale16(g), scale16(b))
}
