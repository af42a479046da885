package mplexserver

import (
	"testing"
	"time"

	"github.com/ehrlich-b/mplexd/internal/ptysup"
)

func TestScale16RepeatsByteIntoBothHalves(t *testing.T) {
	if got := scale16(0xff); got != 0xffff {
		t.Errorf("scale16(0xff) = %#x, want 0xffff", got)
	}
	if got := scale16(0x00); got != 0 {
		t.Errorf("scale16(0x00) = %#x, want 0", got)
	}
}

func TestFormatNamedColorReply(t *testing.T) {
	cases := map[string]int{"foreground": 10, "background": 11, "cursor": 12}
	for kind, code := range cases {
		got := formatNamedColorReply(kind, 0xff, 0x00, 0x80)
		want := "\x1b]" + itoa(code) + ";rgb:ffff/0000/8080\x1b\\"
		if got != want {
			t.Errorf("formatNamedColorReply(%q) = %q, want %q", kind, got, want)
		}
	}
}

func TestFormatNamedColorReplyUnknownKind(t *testing.T) {
	if got := formatNamedColorReply("bogus", 1, 2, 3); got != "" {
		t.Errorf("unknown kind = %q, want empty string", got)
	}
}

func TestFormatPaletteColorReply(t *testing.T) {
	got := formatPaletteColorReply(7, 0x10, 0x20, 0x30)
	want := "\x1b]4;7;rgb:1010/2020/3030\x1b\\"
	if got != want {
		t.Errorf("formatPaletteColorReply = %q, want %q", got, want)
	}
}

func itoa(n int) string {
	b := appendInt(nil, n)
	return string(b)
}

// A deferred DA1 reply only gets resolved from the scheduler's render
// path, which only runs on a dirty signal or PTY exit. The child program
// that requested DA1 is normally blocked waiting on this very color
// reply, so nothing else will ever produce that signal.
func TestNotifyColorResponseSignalsDirty(t *testing.T) {
	s := newTestServer(t)
	p, err := ptysup.Spawn(1, ptysup.SpawnOptions{Rows: 10, Cols: 40})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer p.Close()

	s.mu.Lock()
	s.ptys[p.ID] = p
	s.mu.Unlock()

	// Drain whatever startup signal spawn may already have queued so the
	// assertion below observes a signal caused by notifyColorResponse.
	select {
	case <-p.DirtyChan():
	default:
	}

	s.notifyColorResponse(map[string]any{
		"pty_id": int(p.ID),
		"index":  0,
		"r":      255, "g": 255, "b": 255,
	})

	select {
	case <-p.DirtyChan():
	case <-time.After(time.Second):
		t.Fatal("notifyColorResponse did not signal the PTY dirty; a deferred DA1 reply would hang")
	}
}
