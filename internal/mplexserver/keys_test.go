package mplexserver

import (
	"bytes"
	"testing"

	"github.com/ehrlich-b/mplexd/internal/vterm"
)

func TestPlainPrintableKey(t *testing.T) {
	seq := encodeKeyInput(vterm.ModeState{}, false, keyEvent{Key: "a"}, false)
	if !bytes.Equal(seq, []byte("a")) {
		t.Errorf("got %q, want %q", seq, "a")
	}
}

func TestCtrlLetterFoldsToControlCode(t *testing.T) {
	seq := encodeKeyInput(vterm.ModeState{}, false, keyEvent{Key: "c", Ctrl: true}, false)
	if !bytes.Equal(seq, []byte{0x03}) {
		t.Errorf("ctrl+c = %v, want [0x03]", seq)
	}
}

func TestArrowKeyCursorAppMode(t *testing.T) {
	normal := encodeKeyInput(vterm.ModeState{}, false, keyEvent{Key: "ArrowUp"}, false)
	if !bytes.Equal(normal, []byte("\x1b[A")) {
		t.Errorf("normal mode up = %q, want ESC[A", normal)
	}
	app := encodeKeyInput(vterm.ModeState{CursorKeysApp: true}, false, keyEvent{Key: "ArrowUp"}, false)
	if !bytes.Equal(app, []byte("\x1bOA")) {
		t.Errorf("app mode up = %q, want ESC OA", app)
	}
}

func TestOptionAsAltPrefixesEscape(t *testing.T) {
	seq := encodeKeyInput(vterm.ModeState{}, true, keyEvent{Key: "a", Alt: true}, false)
	if !bytes.Equal(seq, []byte("\x1ba")) {
		t.Errorf("option-as-alt a = %v, want ESC a", seq)
	}
	plain := encodeKeyInput(vterm.ModeState{}, false, keyEvent{Key: "a", Alt: true}, false)
	if !bytes.Equal(plain, []byte("a")) {
		t.Errorf("alt without macOptionAsAlt = %v, want plain a", plain)
	}
}

func TestKittyModeEncodesReleaseEvents(t *testing.T) {
	mode := vterm.ModeState{KittyFlags: 1}
	press := encodeKeyInput(mode, false, keyEvent{Key: "a"}, false)
	release := encodeKeyInput(mode, false, keyEvent{Key: "a"}, true)
	if bytes.Equal(press, release) {
		t.Error("press and release sequences should differ under kitty keyboard mode")
	}
	if bytes.Contains(release, []byte(":3")) == false {
		t.Errorf("release sequence %q missing :3 event-type suffix", release)
	}
}

func TestNonKittyModeIgnoresKeyRelease(t *testing.T) {
	seq := encodeKeyInput(vterm.ModeState{}, false, keyEvent{Key: "a"}, true)
	if seq != nil {
		t.Errorf("expected nil for key release outside kitty mode, got %q", seq)
	}
}
