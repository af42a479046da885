package redraw

import (
	"testing"

	"github.com/ehrlich-b/mplexd/internal/vterm"
)

func TestBuildFirstFrameIsFull(t *testing.T) {
	term := vterm.New(10, 3, vterm.Callbacks{})
	defer term.Close()
	term.Write([]byte("hi"))

	cache := NewState(3)
	events, ok := Build(0, term, cache)
	if !ok {
		t.Fatal("Build returned ok=false for first frame")
	}

	var sawResize, sawFlush bool
	writeRows := 0
	for _, e := range events {
		switch e.Name {
		case "resize":
			sawResize = true
		case "flush":
			sawFlush = true
		case "write":
			writeRows++
		}
	}
	if !sawResize {
		t.Error("first frame missing resize event")
	}
	if !sawFlush {
		t.Error("frame missing trailing flush event")
	}
	if writeRows != 3 {
		t.Errorf("write rows = %d, want 3 (one per row)", writeRows)
	}
}

func TestBuildSkipsWhenNotDirty(t *testing.T) {
	term := vterm.New(10, 3, vterm.Callbacks{})
	defer term.Close()
	cache := NewState(3)

	if _, ok := Build(0, term, cache); !ok {
		t.Fatal("first build should be ok")
	}
	if _, ok := Build(0, term, cache); ok {
		t.Error("second build with no changes should report ok=false")
	}
}

func TestStyleEventsCoverAllWriteStyleIDs(t *testing.T) {
	term := vterm.New(10, 1, vterm.Callbacks{})
	defer term.Close()
	term.Write([]byte("\x1b[31mred\x1b[0mplain"))

	cache := NewState(1)
	events, ok := Build(0, term, cache)
	if !ok {
		t.Fatal("expected a frame")
	}

	declared := map[int]bool{0: true}
	referenced := map[int]bool{}
	for _, e := range events {
		if e.Name == "style" {
			declared[e.Args[0].(int)] = true
		}
		if e.Name == "write" {
			cells := e.Args[3].([]any)
			last := 0
			for _, c := range cells {
				cell := c.([]any)
				if cell[1] != nil {
					last = cell[1].(int)
				}
				referenced[last] = true
			}
		}
	}
	for id := range referenced {
		if !declared[id] {
			t.Errorf("style id %d referenced by a write but never declared", id)
		}
	}
}

func TestHyperlinkCellsReferenceDeclaredHyperlinkEvents(t *testing.T) {
	term := vterm.New(20, 1, vterm.Callbacks{})
	defer term.Close()
	term.Write([]byte("\x1b]8;;https://example.com\x1b\\link\x1b]8;;\x1b\\plain"))

	cache := NewState(1)
	events, ok := Build(0, term, cache)
	if !ok {
		t.Fatal("expected a frame")
	}

	declared := map[int]string{}
	var sawZeroID bool
	for _, e := range events {
		if e.Name == "hyperlink" {
			declared[e.Args[0].(int)] = e.Args[1].(string)
		}
	}
	if len(declared) != 1 || declared[1] != "https://example.com" {
		t.Fatalf("expected exactly one hyperlink event with id 1, got %v", declared)
	}

	for _, e := range events {
		if e.Name != "write" {
			continue
		}
		for _, c := range e.Args[3].([]any) {
			cell := c.([]any)
			id, _ := cell[4].(int)
			if id != 0 {
				if id != 1 {
					t.Errorf("write cell referenced undeclared hyperlink id %d", id)
				}
			} else {
				sawZeroID = true
			}
		}
	}
	if !sawZeroID {
		t.Error("expected at least one cell with no hyperlink (id 0, omitted)")
	}
}
