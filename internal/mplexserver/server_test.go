package mplexserver

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/mplexd/internal/config"
	"github.com/ehrlich-b/mplexd/internal/wire"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.ClientsMax = 4
	cfg.PtysMax = 4
	cfg.FrameTimeMS = 8
	return New(&cfg, 1000)
}

func newTestClient(t *testing.T) (*client, net.Conn) {
	t.Helper()
	server, remote := net.Pipe()
	t.Cleanup(func() { server.Close(); remote.Close() })
	return newClient(server), remote
}

func TestPingRequestRepliesPong(t *testing.T) {
	s := newTestServer(t)
	c, _ := newTestClient(t)

	result, errVal := s.handleRequest(c, &wire.Request{MsgID: 1, Method: "ping"})
	require.Nil(t, errVal)
	assert.Equal(t, "pong", result)
}

func TestUnknownMethodReturnsError(t *testing.T) {
	s := newTestServer(t)
	c, _ := newTestClient(t)

	_, errVal := s.handleRequest(c, &wire.Request{MsgID: 1, Method: "frobnicate"})
	assert.Equal(t, "unknown method", errVal)
}

func TestListPTYsEmptyInitially(t *testing.T) {
	s := newTestServer(t)
	c, _ := newTestClient(t)

	result, errVal := s.handleRequest(c, &wire.Request{MsgID: 1, Method: "list_ptys"})
	require.Nil(t, errVal)
	m := result.(map[string]any)
	assert.Empty(t, m["ptys"].([]any))
}

func TestSpawnAttachCloseLifecycle(t *testing.T) {
	s := newTestServer(t)
	c, _ := newTestClient(t)

	result, errVal := s.handleRequest(c, &wire.Request{MsgID: 1, Method: "spawn_pty", Params: map[string]any{
		"rows": 10, "cols": 40, "attach": true,
	}})
	require.Nil(t, errVal)
	id := result.(int)

	assert.True(t, c.isAttached(uint32(id)), "expected client to be attached after spawn with attach:true")

	select {
	case frame := <-c.sendCh:
		assert.NotEmpty(t, frame, "expected a non-empty full-redraw frame queued for the attaching client")
	case <-time.After(time.Second):
		t.Fatal("expected a redraw notification to be queued after attach")
	}

	_, errVal = s.handleRequest(c, &wire.Request{MsgID: 2, Method: "close_pty", Params: []any{int64(id)}})
	require.Nil(t, errVal)

	require.Eventually(t, func() bool {
		return s.lookupPTY(uint32(id)) == nil
	}, 2*time.Second, 10*time.Millisecond, "PTY was not reaped from the map after close")
}

func TestSpawnPTYEnforcesLimit(t *testing.T) {
	s := newTestServer(t)
	s.cfg.PtysMax = 0
	c, _ := newTestClient(t)

	_, errVal := s.handleRequest(c, &wire.Request{MsgID: 1, Method: "spawn_pty", Params: map[string]any{
		"rows": 10, "cols": 40,
	}})
	assert.Equal(t, "PTY limit reached", errVal)
}

func TestCloseNonexistentPTYReturnsError(t *testing.T) {
	s := newTestServer(t)
	c, _ := newTestClient(t)

	_, errVal := s.handleRequest(c, &wire.Request{MsgID: 1, Method: "close_pty", Params: []any{int64(99)}})
	assert.Equal(t, "PTY not found", errVal)
}

func TestEnqueueReturnsSendQueueFullWhenSaturated(t *testing.T) {
	c, _ := newTestClient(t)
	for i := 0; i < SendQueueMax; i++ {
		require.NoError(t, c.enqueue([]byte("x")))
	}
	assert.ErrorIs(t, c.enqueue([]byte("x")), errSendQueueFull)
}

func TestEnqueueAfterCloseIsNoop(t *testing.T) {
	c, _ := newTestClient(t)
	c.beginClose()
	assert.NoError(t, c.enqueue([]byte("x")), "enqueue after close should be silently dropped")
}
