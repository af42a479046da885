package redraw

import "github.com/ehrlich-b/mplexd/internal/vterm"

// Event is one [name, [args...]] entry in a redraw notification, ready to
// hand to wire.Encode as part of the outer `[events…]` array.
type Event struct {
	Name string
	Args []any
}

// AsWire renders the event into the two-element shape the wire protocol
// puts on the wire.
func (e Event) AsWire() []any { return []any{e.Name, e.Args} }

// styleTable assigns ascending small-integer style IDs within one frame,
// deduplicated by structural hash; ID 0 is reserved for the default style
// and is always pre-declared.
type styleTable struct {
	ids    map[string]int
	order  []vterm.Style
}

func newStyleTable() *styleTable {
	t := &styleTable{ids: map[string]int{}}
	t.ids[vterm.DefaultStyle.Hash()] = 0
	t.order = append(t.order, vterm.DefaultStyle)
	return t
}

func (t *styleTable) idFor(s vterm.Style) (id int, isNew bool) {
	h := s.Hash()
	if id, ok := t.ids[h]; ok {
		return id, false
	}
	id = len(t.order)
	t.ids[h] = id
	t.order = append(t.order, s)
	return id, true
}

// hyperlinkTable assigns ascending integer IDs to distinct hyperlink URIs
// within one frame; ID 0 means "no hyperlink" and is never declared on the
// wire.
type hyperlinkTable struct {
	ids   map[string]int
	order []string
}

func newHyperlinkTable() *hyperlinkTable {
	return &hyperlinkTable{ids: map[string]int{}}
}

func (t *hyperlinkTable) idFor(uri string) (id int, isNew bool) {
	if uri == "" {
		return 0, false
	}
	if id, ok := t.ids[uri]; ok {
		return id, false
	}
	id = len(t.order) + 1
	t.ids[uri] = id
	t.order = append(t.order, uri)
	return id, true
}

// Build produces the events for one redraw frame for a single PTY,
// diffing against cache and clearing its dirty bits. ok is false when
// there is nothing to send (cache reports not dirty) — the caller should
// skip the broadcast entirely rather than send an empty frame.
func Build(ptyID uint32, term *vterm.Terminal, cache *State) (events []Event, ok bool) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if !cache.dirtyLocked() {
		return nil, false
	}

	full := cache.full || !cache.haveRendered
	cols, rows := term.Dims()
	if len(cache.rowDirty) != rows {
		cache.resizeLocked(rows)
		full = true
	}

	grid := term.Grid()
	styles := newStyleTable()
	links := newHyperlinkTable()

	var writeEvents []Event
	for r := 0; r < rows && r < len(grid); r++ {
		if !full && !cache.rowDirty[r] {
			continue
		}
		row := grid[r]
		writeEvents = append(writeEvents, buildRowEvent(ptyID, r, row, styles, links))
	}

	if full {
		events = append(events, Event{Name: "resize", Args: []any{int(ptyID), rows, cols}})
	}

	for id := 1; id < len(styles.order); id++ {
		events = append(events, styleEvent(id, styles.order[id]))
	}
	// The reserved default style (ID 0) is never re-declared on the wire;
	// clients assume it from connection start.

	for i, uri := range links.order {
		events = append(events, Event{Name: "hyperlink", Args: []any{i + 1, uri}})
	}

	title := term.ModeState().Title
	if cache.titleDirty || full {
		if title != "" {
			events = append(events, Event{Name: "title", Args: []any{int(ptyID), title}})
		}
	}

	events = append(events, writeEvents...)

	col, row := term.CursorPos()
	events = append(events, Event{Name: "cursor_pos", Args: []any{int(ptyID), row, col, !term.CursorHidden()}})
	events = append(events, Event{Name: "cursor_shape", Args: []any{int(ptyID), int(term.ModeState().CursorShape)}})

	events = append(events, Event{Name: "flush", Args: []any{}})

	cache.clearLocked()
	cache.lastTitle = title
	return events, true
}

// buildRowEvent turns one grid row into a single `write` event: cells are
// grouped into runs by adjacent identical (style_id, content, width,
// hyperlink_id), each run carrying a repeat count. Style IDs are only
// emitted on change within the row. A cell's hyperlink_id references a
// hyperlink event built earlier in the same frame; 0 means no hyperlink.
func buildRowEvent(ptyID uint32, row int, cells []vterm.Cell, styles *styleTable, links *hyperlinkTable) Event {
	type run struct {
		grapheme    string
		styleID     int
		width       int
		hyperlinkID int
		repeat      int
	}
	var runs []run
	lastStyleID := -1

	for _, c := range cells {
		if c.Width == 0 {
			continue // spacer tail of a wide cell; not emitted
		}
		id, _ := styles.idFor(c.Style)
		linkID, _ := links.idFor(c.Hyperlink)
		if len(runs) > 0 {
			last := &runs[len(runs)-1]
			if last.grapheme == c.Grapheme && last.styleID == id && last.width == c.Width && last.hyperlinkID == linkID {
				last.repeat++
				continue
			}
		}
		runs = append(runs, run{grapheme: c.Grapheme, styleID: id, width: c.Width, hyperlinkID: linkID, repeat: 1})
	}

	cellsOut := make([]any, 0, len(runs))
	for _, r := range runs {
		var styleArg any
		if r.styleID == lastStyleID {
			styleArg = nil // carry previous style, omitted when unchanged
		} else {
			styleArg = r.styleID
			lastStyleID = r.styleID
		}
		var repeatArg any
		if r.repeat > 1 {
			repeatArg = r.repeat
		}
		var hyperlinkArg any
		if r.hyperlinkID != 0 {
			hyperlinkArg = r.hyperlinkID
		}
		cellsOut = append(cellsOut, []any{r.grapheme, styleArg, repeatArg, r.width, hyperlinkArg})
	}

	return Event{Name: "write", Args: []any{int(ptyID), row, 0, cellsOut}}
}

func styleEvent(id int, s vterm.Style) Event {
	attrs := map[string]any{}
	switch s.Fg.Kind {
	case vterm.ColorPalette:
		attrs["fg_idx"] = int(s.Fg.Idx)
	case vterm.ColorRGB:
		attrs["fg"] = []int{int(s.Fg.R), int(s.Fg.G), int(s.Fg.B)}
	}
	switch s.Bg.Kind {
	case vterm.ColorPalette:
		attrs["bg_idx"] = int(s.Bg.Idx)
	case vterm.ColorRGB:
		attrs["bg"] = []int{int(s.Bg.R), int(s.Bg.G), int(s.Bg.B)}
	}
	if s.Underline.Kind != vterm.ColorNone {
		attrs["ul_color"] = []int{int(s.Underline.R), int(s.Underline.G), int(s.Underline.B)}
	}
	if s.Bold {
		attrs["bold"] = true
	}
	if s.Dim {
		attrs["dim"] = true
	}
	if s.Italic {
		attrs["italic"] = true
	}
	if s.Reverse {
		attrs["reverse"] = true
	}
	if s.Blink {
		attrs["blink"] = true
	}
	if s.Strikethrough {
		attrs["strikethrough"] = true
	}
	if s.UnderlineStyle != vterm.UnderlineNone {
		attrs["underline"] = true
		attrs["ul_style"] = int(s.UnderlineStyle)
	}
	return Event{Name: "style", Args: []any{id, attrs}}
}
