package ptysup

import (
	"testing"
	"time"

	"github.com/ehrlich-b/mplexd/internal/redraw"
	"github.com/ehrlich-b/mplexd/internal/vterm"
)

func newTestPTY(t *testing.T, cols, rows int) *PTY {
	t.Helper()
	p := &PTY{
		ID:      0,
		clients: make(map[uint64]Client),
		dirty:   make(chan struct{}, 1),
		exitC:   make(chan struct{}),
		cols:    cols,
		rows:    rows,
	}
	p.State = redraw.NewState(rows)
	p.Term = vterm.New(cols, rows, vterm.Callbacks{
		Title:        p.onTitle,
		CWD:          p.onCWD,
		ColorQuery:   p.onColorQuery,
		DA1Requested: p.onDA1,
	})
	t.Cleanup(func() { p.Term.Close() })
	return p
}

func TestColorQueryQueueOverflowDrops(t *testing.T) {
	p := newTestPTY(t, 80, 24)
	for i := 0; i < ColorQueryMax+5; i++ {
		p.onColorQuery(i, "palette")
	}
	if got := len(p.PendingColorQueries()); got != ColorQueryMax {
		t.Errorf("pending queries = %d, want %d (overflow dropped)", got, ColorQueryMax)
	}
}

func TestColorQueryExpiry(t *testing.T) {
	p := newTestPTY(t, 80, 24)
	p.onColorQuery(-1, "foreground")
	p.mu.Lock()
	p.colorQueue[0].At = time.Now().Add(-ColorQueryTTL - time.Second)
	p.mu.Unlock()

	if got := len(p.PendingColorQueries()); got != 0 {
		t.Errorf("pending queries = %d, want 0 after TTL elapsed", got)
	}
}

func TestResolveColorQueryRemovesMatch(t *testing.T) {
	p := newTestPTY(t, 80, 24)
	p.onColorQuery(-1, "background")
	p.onColorQuery(3, "palette")

	p.ResolveColorQuery("background", 0)
	pending := p.PendingColorQueries()
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if pending[0].Target != "palette" || pending[0].Index != 3 {
		t.Errorf("unexpected remaining query: %+v", pending[0])
	}
}

func TestDA1ReadyAfterAllQueriesAnswered(t *testing.T) {
	p := newTestPTY(t, 80, 24)
	p.onColorQuery(-1, "background")
	p.onDA1()

	if p.DA1Ready() {
		t.Fatal("DA1 should not be ready while a query is outstanding")
	}
	p.ResolveColorQuery("background", 0)
	if !p.DA1Ready() {
		t.Fatal("DA1 should be ready once its only outstanding query is answered")
	}
	p.ConsumeDA1()
	if p.DA1Ready() {
		t.Fatal("DA1 should not be ready again after being consumed")
	}
}

func TestDA1ReadyAfterTimeout(t *testing.T) {
	p := newTestPTY(t, 80, 24)
	p.onColorQuery(-1, "cursor")
	p.onDA1()
	p.mu.Lock()
	p.da1At = time.Now().Add(-DA1DeferTimeout - time.Second)
	p.mu.Unlock()

	if !p.DA1Ready() {
		t.Fatal("DA1 should become ready once its defer timeout elapses regardless of outstanding queries")
	}
}

func TestClickStateTripleClickWraps(t *testing.T) {
	p := newTestPTY(t, 80, 24)
	base := time.Now()
	if got := p.ClickState(base); got != 1 {
		t.Errorf("first click = %d, want 1", got)
	}
	if got := p.ClickState(base.Add(100 * time.Millisecond)); got != 2 {
		t.Errorf("second click = %d, want 2", got)
	}
	if got := p.ClickState(base.Add(200 * time.Millisecond)); got != 3 {
		t.Errorf("third click = %d, want 3", got)
	}
	if got := p.ClickState(base.Add(300 * time.Millisecond)); got != 1 {
		t.Errorf("fourth click = %d, want 1 (wraps)", got)
	}
}

func TestClickStateResetsAfterTimeout(t *testing.T) {
	p := newTestPTY(t, 80, 24)
	base := time.Now()
	p.ClickState(base)
	p.ClickState(base.Add(100 * time.Millisecond))
	if got := p.ClickState(base.Add(time.Second)); got != 1 {
		t.Errorf("click after >500ms gap = %d, want 1", got)
	}
}

func TestTitleTruncation(t *testing.T) {
	p := newTestPTY(t, 80, 24)
	long := make([]byte, TitleLenMax+100)
	for i := range long {
		long[i] = 'x'
	}
	p.onTitle(string(long))
	if got := len(p.Title()); got != TitleLenMax {
		t.Errorf("title length = %d, want %d", got, TitleLenMax)
	}
}
