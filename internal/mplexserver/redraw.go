package mplexserver

import (
	"github.com/ehrlich-b/mplexd/internal/ptysup"
	"github.com/ehrlich-b/mplexd/internal/redraw"
)

// redrawEventsFor builds one redraw frame's wire-ready event list for p,
// or ok=false if the cache reports nothing changed.
func redrawEventsFor(p *ptysup.PTY) (wireEvents []any, ok bool) {
	events, ok := redraw.Build(p.ID, p.Term, p.State)
	if !ok {
		return nil, false
	}
	out := make([]any, len(events))
	for i, e := range events {
		out[i] = e.AsWire()
	}
	return out, true
}

// maybeSendInBandSizeReport writes the xterm in-band resize report (CSI
// 48;rows;cols;ypixel;xpixel t) when mode 2048 is enabled, so programs
// that subscribe to it see resize_pty the same way they'd see a real
// window-manager resize.
func maybeSendInBandSizeReport(p *ptysup.PTY, rows, cols, pxW, pxH int) {
	if !p.Term.ModeState().InBandResize {
		return
	}
	report := inBandResizeReport(rows, cols, pxH, pxW)
	p.Write(report)
}
