package vterm

import "testing"

func TestRowParserPlainText(t *testing.T) {
	p := newRowParser()
	cells := p.Parse("hi")
	if len(cells) != 2 || cells[0].Grapheme != "h" || cells[1].Grapheme != "i" {
		t.Fatalf("got %+v", cells)
	}
}

func TestRowParserSGRColor(t *testing.T) {
	p := newRowParser()
	cells := p.Parse("\x1b[31mred\x1b[0m")
	if len(cells) != 3 {
		t.Fatalf("got %d cells, want 3", len(cells))
	}
	for _, c := range cells {
		if c.Style.Fg.Kind != ColorPalette || c.Style.Fg.Idx != 1 {
			t.Errorf("cell %+v: want palette color 1", c)
		}
	}
}

func TestRowParserResetClearsStyle(t *testing.T) {
	p := newRowParser()
	p.Parse("\x1b[1;31m")
	cells := p.Parse("\x1b[0mplain")
	for _, c := range cells {
		if c.Style.Bold || c.Style.Fg.Kind != ColorNone {
			t.Errorf("expected reset style, got %+v", c.Style)
		}
	}
}

func TestRowParserTrueColor(t *testing.T) {
	p := newRowParser()
	cells := p.Parse("\x1b[38;2;10;20;30mx")
	if len(cells) != 1 {
		t.Fatalf("got %d cells", len(cells))
	}
	fg := cells[0].Style.Fg
	if fg.Kind != ColorRGB || fg.R != 10 || fg.G != 20 || fg.B != 30 {
		t.Errorf("fg = %+v", fg)
	}
}

func TestRowParserHyperlink(t *testing.T) {
	p := newRowParser()
	cells := p.Parse("\x1b]8;;https://example.com\x07link\x1b]8;;\x07")
	if len(cells) != 4 {
		t.Fatalf("got %d cells, want 4", len(cells))
	}
	for _, c := range cells {
		if c.Hyperlink != "https://example.com" {
			t.Errorf("cell %+v: want hyperlink set", c)
		}
	}
}

func TestRowParserUnderlineCurly(t *testing.T) {
	p := newRowParser()
	cells := p.Parse("\x1b[4:3mx")
	if len(cells) != 1 || cells[0].Style.UnderlineStyle != UnderlineCurly {
		t.Fatalf("got %+v", cells)
	}
}

func TestRowParserWideRune(t *testing.T) {
	p := newRowParser()
	cells := p.Parse("中文")
	if len(cells) != 4 {
		t.Fatalf("got %d cells, want 4 (2 wide runes + 2 spacer tails)", len(cells))
	}
	if cells[0].Width != 2 || cells[1].Width != 0 {
		t.Errorf("cells = %+v", cells)
	}
}
