package ptysup

import (
	"sync"
	"testing"
	"time"
)

type fakeClient struct {
	id uint64

	mu    sync.Mutex
	calls []string
}

func (f *fakeClient) ID() uint64 { return f.id }

func (f *fakeClient) Notify(method string, params any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
}

func (f *fakeClient) notifyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestRenderAndBroadcastSkipsWhenNotDirty(t *testing.T) {
	p := newTestPTY(t, 10, 3)
	fc := &fakeClient{id: 1}
	p.AttachClient(fc)

	p.renderAndBroadcast()
	if fc.notifyCount() != 1 {
		t.Fatalf("first render: got %d notifications, want 1", fc.notifyCount())
	}
	p.renderAndBroadcast()
	if fc.notifyCount() != 1 {
		t.Errorf("second render with no changes: got %d notifications, want 1 (skip)", fc.notifyCount())
	}
}

func TestRunSchedulerSendsFinalFrameOnExit(t *testing.T) {
	p := newTestPTY(t, 10, 3)
	fc := &fakeClient{id: 1}
	p.AttachClient(fc)

	done := make(chan struct{})
	go func() {
		p.RunScheduler(50 * time.Millisecond)
		close(done)
	}()

	p.Term.Write([]byte("x"))
	p.SignalDirty()
	time.Sleep(10 * time.Millisecond)
	close(p.exitC)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunScheduler did not return after exit channel closed")
	}
	if fc.notifyCount() == 0 {
		t.Error("expected at least one redraw notification before exit")
	}
}

func TestOnDirtySignalCoalescesWithinFrameWindow(t *testing.T) {
	p := newTestPTY(t, 10, 3)
	fc := &fakeClient{id: 1}
	p.AttachClient(fc)

	p.onDirtySignal(50 * time.Millisecond)
	if fc.notifyCount() != 1 {
		t.Fatalf("immediate render: got %d, want 1", fc.notifyCount())
	}

	p.Term.Write([]byte("y"))
	p.onDirtySignal(50 * time.Millisecond)
	if fc.notifyCount() != 1 {
		t.Fatalf("signal within cooldown should arm a timer, not render immediately: got %d", fc.notifyCount())
	}

	time.Sleep(80 * time.Millisecond)
	if fc.notifyCount() != 2 {
		t.Errorf("after cooldown timer fires: got %d notifications, want 2", fc.notifyCount())
	}
}
