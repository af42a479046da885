package mplexserver

import (
	"fmt"

	"github.com/ehrlich-b/mplexd/internal/ptysup"
	"github.com/ehrlich-b/mplexd/internal/wire"
)

// handleRequest dispatches one request frame and returns the (result,
// errVal) pair to encode into the response. errVal is nil on success; on
// failure it is a string, never a structured object, matching the
// protocol's string-only error convention.
func (s *Server) handleRequest(c *client, req *wire.Request) (result any, errVal any) {
	switch req.Method {
	case "ping":
		return "pong", nil
	case "get_server_info":
		return s.getServerInfo(), nil
	case "list_ptys":
		return s.listPTYs(), nil
	case "spawn_pty":
		return s.spawnPTY(c, req.Params)
	case "close_pty":
		return s.closePTY(req.Params)
	case "attach_pty":
		return s.attachPTY(c, req.Params)
	case "write_pty":
		return s.writePTY(req.Params)
	case "resize_pty":
		return s.resizePTY(req.Params)
	case "detach_pty":
		return s.detachPTYOne(c, req.Params)
	case "detach_ptys":
		return s.detachPTYMany(c, req.Params)
	case "get_selection":
		return s.getSelection(req.Params)
	case "clear_selection":
		return s.clearSelectionReq(req.Params)
	default:
		return nil, "unknown method"
	}
}

func (s *Server) getServerInfo() any {
	return map[string]any{
		"version":      serverVersion,
		"pty_validity": s.startTimeMS,
	}
}

func (s *Server) listPTYs() any {
	s.mu.RLock()
	ids := make([]uint32, 0, len(s.ptys))
	ptys := make(map[uint32]*ptysup.PTY, len(s.ptys))
	for id, p := range s.ptys {
		ids = append(ids, id)
		ptys[id] = p
	}
	s.mu.RUnlock()

	out := make([]any, 0, len(ids))
	for _, id := range ids {
		p := ptys[id]
		out = append(out, map[string]any{
			"id":                    int(id),
			"cwd":                   p.CWD(),
			"title":                 p.Title(),
			"attached_client_count": p.AttachedCount(),
		})
	}
	return map[string]any{
		"pty_validity": s.startTimeMS,
		"ptys":         out,
	}
}

func (s *Server) spawnPTY(c *client, params any) (any, any) {
	m, ok := params.(map[string]any)
	if !ok {
		return nil, "invalid params"
	}
	rows := intField(m, "rows", 24)
	cols := intField(m, "cols", 80)
	attach, _ := m["attach"].(bool)
	cwd, _ := m["cwd"].(string)
	macOpt, _ := m["macos_option_as_alt"].(bool)

	env := map[string]string{}
	if rawEnv, ok := m["env"].(map[string]any); ok {
		for k, v := range rawEnv {
			if sv, ok := v.(string); ok {
				env[k] = sv
			}
		}
	}

	s.mu.Lock()
	if len(s.ptys) >= s.cfg.PtysMax {
		s.mu.Unlock()
		return nil, "PTY limit reached"
	}
	id := s.nextPTYID
	s.nextPTYID++
	s.mu.Unlock()

	p, err := ptysup.Spawn(id, ptysup.SpawnOptions{
		Rows: rows, Cols: cols, CWD: cwd, Env: env,
	})
	if err != nil {
		return nil, fmt.Sprintf("spawn failed: %v", err)
	}
	p.CWDChanged = func(cwd string) {
		p.Broadcast("cwd_changed", map[string]any{"pty_id": int(id), "cwd": cwd})
	}

	s.mu.Lock()
	s.ptys[id] = p
	s.mu.Unlock()
	go s.runPTYLifecycle(p)

	if attach {
		c.macOptionAsAlt = macOpt
		c.attach(id)
		p.AttachClient(c)
		sendFullRedraw(p, c)
	}

	return int(id), nil
}

func (s *Server) closePTY(params any) (any, any) {
	id, ok := ptyIDArg(params, 0)
	if !ok {
		return nil, "invalid params"
	}
	p := s.lookupPTY(id)
	if p == nil {
		return nil, "PTY not found"
	}
	p.Close()
	return nil, nil
}

func (s *Server) attachPTY(c *client, params any) (any, any) {
	arr, ok := params.([]any)
	if !ok || len(arr) < 1 {
		return nil, "invalid params"
	}
	id, ok := toUint32(arr[0])
	if !ok {
		return nil, "invalid params"
	}
	p := s.lookupPTY(id)
	if p == nil {
		return nil, "PTY not found"
	}
	if len(arr) >= 2 {
		if b, ok := arr[1].(bool); ok {
			c.macOptionAsAlt = b
		}
	}
	c.attach(id)
	p.AttachClient(c)
	sendFullRedraw(p, c)
	return int(id), nil
}

func (s *Server) writePTY(params any) (any, any) {
	id, data, ok := ptyIDAndBytesArg(params)
	if !ok {
		return nil, "invalid params"
	}
	p := s.lookupPTY(id)
	if p == nil {
		return nil, "PTY not found"
	}
	p.Write(data)
	return nil, nil
}

func (s *Server) resizePTY(params any) (any, any) {
	arr, ok := params.([]any)
	if !ok || len(arr) < 3 {
		return nil, "invalid params"
	}
	id, ok := toUint32(arr[0])
	if !ok {
		return nil, "invalid params"
	}
	p := s.lookupPTY(id)
	if p == nil {
		return nil, "PTY not found"
	}
	rows, _ := toInt(arr[1])
	cols, _ := toInt(arr[2])
	pxW, pxH := 0, 0
	if len(arr) >= 5 {
		pxW, _ = toInt(arr[3])
		pxH, _ = toInt(arr[4])
	}
	p.Resize(cols, rows, pxW, pxH)
	maybeSendInBandSizeReport(p, rows, cols, pxW, pxH)
	p.SignalDirty()
	return nil, nil
}

func (s *Server) detachPTYOne(c *client, params any) (any, any) {
	id, ok := ptyIDArg(params, 0)
	if !ok {
		return nil, "invalid params"
	}
	s.doDetach(c, id)
	return nil, nil
}

func (s *Server) detachPTYMany(c *client, params any) (any, any) {
	arr, ok := params.([]any)
	if !ok || len(arr) < 1 {
		return nil, "invalid params"
	}
	ids, ok := arr[0].([]any)
	if !ok {
		return nil, "invalid params"
	}
	for _, raw := range ids {
		if id, ok := toUint32(raw); ok {
			s.doDetach(c, id)
		}
	}
	return nil, nil
}

func (s *Server) doDetach(c *client, id uint32) {
	if p := s.lookupPTY(id); p != nil {
		p.DetachClient(c.id)
	}
	c.detach(id)
}

func (s *Server) getSelection(params any) (any, any) {
	id, ok := ptyIDArg(params, 0)
	if !ok {
		return nil, "invalid params"
	}
	p := s.lookupPTY(id)
	if p == nil {
		return nil, "PTY not found"
	}
	if p.GetSelection() == nil {
		return nil, nil
	}
	return p.GetSelectionText(), nil
}

func (s *Server) clearSelectionReq(params any) (any, any) {
	id, ok := ptyIDArg(params, 0)
	if !ok {
		return nil, "invalid params"
	}
	p := s.lookupPTY(id)
	if p == nil {
		return nil, "PTY not found"
	}
	p.ClearSelection()
	return nil, nil
}

// sendFullRedraw forces the cache dirty and renders one frame directly to
// the newly (re)attached client only, per the attach_pty contract: a full
// redraw is owed to the attaching client regardless of whether anyone
// else's view is already up to date.
func sendFullRedraw(p *ptysup.PTY, c *client) {
	p.State.MarkFull()
	events, ok := redrawEventsFor(p)
	if !ok {
		return
	}
	c.Notify("redraw", events)
}

func intField(m map[string]any, key string, def int) int {
	if v, ok := m[key]; ok {
		if n, ok := toInt(v); ok {
			return n
		}
	}
	return def
}

func ptyIDArg(params any, idx int) (uint32, bool) {
	arr, ok := params.([]any)
	if !ok || idx >= len(arr) {
		return 0, false
	}
	return toUint32(arr[idx])
}

func ptyIDAndBytesArg(params any) (uint32, []byte, bool) {
	arr, ok := params.([]any)
	if !ok || len(arr) < 2 {
		return 0, nil, false
	}
	id, ok := toUint32(arr[0])
	if !ok {
		return 0, nil, false
	}
	switch b := arr[1].(type) {
	case []byte:
		return id, b, true
	case string:
		return id, []byte(b), true
	}
	return 0, nil, false
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int64:
		return int(x), true
	case uint64:
		return int(x), true
	case int:
		return x, true
	case float64:
		return int(x), true
	}
	return 0, false
}

func toUint32(v any) (uint32, bool) {
	n, ok := toInt(v)
	if !ok || n < 0 {
		return 0, false
	}
	return uint32(n), true
}
