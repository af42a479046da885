package ptysup

import (
	"strings"

	"github.com/ehrlich-b/mplexd/internal/redraw"
	"github.com/ehrlich-b/mplexd/internal/vterm"
)

// Pin is a grid coordinate: a selection endpoint.
type Pin struct {
	Row, Col int
}

// GetSelection returns the current selection box, or nil if none.
func (p *PTY) GetSelection() *redraw.Box {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selection == nil {
		return nil
	}
	cp := *p.selection
	return &cp
}

// ClearSelection drops the current selection and signals dirty so the
// next frame reflects it.
func (p *PTY) ClearSelection() {
	p.mu.Lock()
	p.selection = nil
	p.mu.Unlock()
	p.SignalDirty()
}

// SetSelectionFromPins computes the selection box for a press/drag gesture
// between anchor and lead at the given click-count granularity: 1 selects
// the lead cell alone, 2 the word containing it, 3 the line containing it;
// for a drag, the union of both ends' expansions in reading order.
func (p *PTY) SetSelectionFromPins(anchor, lead Pin, granularity int) {
	a := p.expandPin(anchor, granularity)
	l := p.expandPin(lead, granularity)
	box := unionReadingOrder(a, l)
	p.mu.Lock()
	p.selection = &box
	p.mu.Unlock()
	p.SignalDirty()
}

func unionReadingOrder(a, b redraw.Box) redraw.Box {
	start := a
	end := b
	if after(readingStart(b), readingStart(a)) {
		// b starts after a: a is the earlier chunk.
	} else {
		start, end = b, a
	}
	return redraw.Box{
		StartRow: start.StartRow, StartCol: start.StartCol,
		EndRow: end.EndRow, EndCol: end.EndCol,
	}
}

func readingStart(b redraw.Box) Pin { return Pin{b.StartRow, b.StartCol} }

func after(a, b Pin) bool {
	if a.Row != b.Row {
		return a.Row > b.Row
	}
	return a.Col > b.Col
}

// expandPin grows a single pin into a selection box per click-count
// granularity: 1 = the cell itself, 2 = the word containing it, 3 = the
// full line.
func (p *PTY) expandPin(pin Pin, granularity int) redraw.Box {
	grid := p.Term.Grid()
	if pin.Row < 0 || pin.Row >= len(grid) {
		return redraw.Box{StartRow: pin.Row, StartCol: pin.Col, EndRow: pin.Row, EndCol: pin.Col}
	}
	row := grid[pin.Row]
	switch granularity {
	case 3:
		end := len(row) - 1
		if end < 0 {
			end = 0
		}
		return redraw.Box{StartRow: pin.Row, StartCol: 0, EndRow: pin.Row, EndCol: end}
	case 2:
		start, end := wordBounds(row, pin.Col)
		return redraw.Box{StartRow: pin.Row, StartCol: start, EndRow: pin.Row, EndCol: end}
	default:
		return redraw.Box{StartRow: pin.Row, StartCol: pin.Col, EndRow: pin.Row, EndCol: pin.Col}
	}
}

func wordBounds(row []vterm.Cell, col int) (int, int) {
	if col < 0 || col >= len(row) {
		return col, col
	}
	isSpace := func(i int) bool {
		return i < 0 || i >= len(row) || row[i].Grapheme == "" || row[i].Grapheme == " "
	}
	if isSpace(col) {
		return col, col
	}
	start, end := col, col
	for !isSpace(start - 1) {
		start--
	}
	for !isSpace(end + 1) {
		end++
	}
	return start, end
}

// GetSelectionText extracts the plain-text contents of the current
// selection, joining wrapped rows with newlines.
func (p *PTY) GetSelectionText() string {
	box := p.GetSelection()
	if box == nil {
		return ""
	}
	grid := p.Term.Grid()
	var out strings.Builder
	for r := box.StartRow; r <= box.EndRow && r < len(grid); r++ {
		if r < 0 {
			continue
		}
		row := grid[r]
		startCol, endCol := 0, len(row)-1
		if r == box.StartRow {
			startCol = box.StartCol
		}
		if r == box.EndRow {
			endCol = box.EndCol
		}
		for c := startCol; c <= endCol && c < len(row); c++ {
			if c < 0 {
				continue
			}
			out.WriteString(row[c].Grapheme)
		}
		if r != box.EndRow {
			out.WriteByte('\n')
		}
	}
	return strings.TrimRight(out.String(), " ")
}
