package vterm

import "fmt"

// UnderlineStyle enumerates the curly/dashed/dotted underline variants
// xterm-compatible emulators support via SGR 4:n.
type UnderlineStyle int

const (
	UnderlineNone UnderlineStyle = iota
	UnderlineSingle
	UnderlineDouble
	UnderlineCurly
	UnderlineDotted
	UnderlineDashed
)

// ColorKind discriminates how a Color is expressed.
type ColorKind int

const (
	ColorNone ColorKind = iota
	ColorPalette
	ColorRGB
)

// Color is a foreground/background/underline color as carried by SGR
// sequences: absent, a 256-color palette index, or a 24-bit RGB triple.
type Color struct {
	Kind ColorKind
	Idx  uint8
	R, G, B uint8
}

// Style is a structural value: two Style values with identical fields are
// the same style for redraw-diffing purposes.
type Style struct {
	Fg, Bg    Color
	Underline Color

	Bold          bool
	Dim           bool
	Italic        bool
	Reverse       bool
	Blink         bool
	Strikethrough bool
	UnderlineStyle UnderlineStyle
}

// DefaultStyle is the style assigned reserved ID 0.
var DefaultStyle = Style{}

// Hash returns a value suitable for deduplicating styles within a frame;
// it is not guaranteed to be stable across process versions.
func (s Style) Hash() string {
	return fmt.Sprintf("%d:%d:%d,%d,%d|%d:%d:%d,%d,%d|%d:%d:%d,%d,%d|%t%t%t%t%t%t|%d",
		s.Fg.Kind, s.Fg.Idx, s.Fg.R, s.Fg.G, s.Fg.B,
		s.Bg.Kind, s.Bg.Idx, s.Bg.R, s.Bg.G, s.Bg.B,
		s.Underline.Kind, s.Underline.Idx, s.Underline.R, s.Underline.G, s.Underline.B,
		s.Bold, s.Dim, s.Italic, s.Reverse, s.Blink, s.Strikethrough,
		s.UnderlineStyle)
}

// Cell is one grid position: a grapheme (possibly empty for the spacer
// tail of a wide cell), its style, display width, and optional hyperlink.
type Cell struct {
	Grapheme  string
	Style     Style
	Width     int
	Hyperlink string // empty means no hyperlink
}
