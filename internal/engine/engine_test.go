package engine

import (
	"testing"
	"time"

	"github.com/vellum-wm/vellum/internal/geo"
	"github.com/vellum-wm/vellum/internal/host"
	"github.com/vellum-wm/vellum/internal/host/hosttest"
)

// =========================================================================
// Test rig
// =========================================================================

// fakeTimer is a scheduled callback under test control.
type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// timerQueue collects timers so tests decide when time passes.
type timerQueue struct {
	entries []*fakeTimer
}

func (q *timerQueue) factory(d time.Duration, fn func()) timer {
	t := &fakeTimer{d: d, fn: fn}
	q.entries = append(q.entries, t)
	return t
}

// fire runs every pending timer scheduled for exactly d.
func (q *timerQueue) fire(d time.Duration) int {
	n := 0
	for _, t := range q.entries {
		if t.fired || t.stopped || t.d != d {
			continue
		}
		t.fired = true
		t.fn()
		n++
	}
	return n
}

// runQueued drains and executes everything posted to the engine.
func (e *Engine) runQueued() {
	for {
		select {
		case fn := <-e.posts:
			fn()
		default:
			return
		}
	}
}

type testRig struct {
	t      *testing.T
	h      *hosttest.Host
	tr     *hosttest.Transport
	timers *timerQueue
	e      *Engine
}

func newTestRig(t *testing.T, opts Options) *testRig {
	t.Helper()
	if opts.Rules.Workspaces == nil {
		opts.Rules.Workspaces = []string{"main", "work"}
	}
	if opts.Policy.Gaps == (geo.Insets{}) {
		opts.Policy.Gaps = geo.Insets{Top: 8, Bottom: 8, Left: 8, Right: 8}
		opts.Policy.StickyPairs = true
	}
	h := hosttest.New()
	tr := hosttest.NewTransport(h)
	e := New(h, tr, opts)
	q := &timerQueue{}
	e.newTimer = q.factory
	return &testRig{t: t, h: h, tr: tr, timers: q, e: e}
}

func (r *testRig) start() {
	r.t.Helper()
	if err := r.e.Start(); err != nil {
		r.t.Fatalf("Start: %v", err)
	}
}

// settle fires the startup partition timer.
func (r *testRig) settle() {
	r.timers.fire(r.e.opts.SettleDelay)
}

// animate fires the watcher-restart timers that follow a move batch.
func (r *testRig) animate() {
	r.timers.fire(r.e.opts.AnimationDuration + watcherPad)
}

// show fires a visible event for w and drains the queue.
func (r *testRig) show(w *hosttest.Window) {
	r.h.Fire(w, host.EventVisible)
	r.e.runQueued()
}

// focus moves host focus to w, fires the event, and drains.
func (r *testRig) focus(w *hosttest.Window) {
	r.h.SetFocused(w)
	r.h.Fire(w, host.EventFocused)
	r.e.runQueued()
}

// destroy fires the destroyed event while the handle still answers, the
// way the OS usually delivers it, then kills the handle.
func (r *testRig) destroy(w *hosttest.Window) {
	r.h.Fire(w, host.EventDestroyed)
	r.e.runQueued()
	w.Destroy()
}

// gridIDs flattens the current space's grid into window ids.
func (r *testRig) gridIDs() [][]uint32 {
	r.t.Helper()
	space, _, ok := r.e.activeSpace()
	if !ok {
		r.t.Fatal("no active space")
	}
	var out [][]uint32
	for _, col := range r.e.store.Columns(space) {
		var ids []uint32
		for _, w := range col {
			wid, err := w.ID()
			if err != nil {
				r.t.Fatalf("stale window in grid: %v", err)
			}
			ids = append(ids, wid)
		}
		out = append(out, ids)
	}
	return out
}

func sameGrid(a, b [][]uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}

func wantRect(t *testing.T, w *hosttest.Window, want geo.Rect) {
	t.Helper()
	if !w.Rect.Eq(want) {
		t.Errorf("%s frame = %+v, want %+v", w.AppName, w.Rect, want)
	}
}

// =========================================================================
// Construction and lifecycle basics
// =========================================================================

func TestStartRequiresWorkspaces(t *testing.T) {
	h := hosttest.New()
	e := New(h, hosttest.NewTransport(h), Options{})
	if err := e.Start(); err == nil {
		t.Fatal("Start with no workspaces should fail")
	}
}

func TestStartRequiresScreen(t *testing.T) {
	h := hosttest.New()
	h.MainScr = nil
	e := New(h, hosttest.NewTransport(h), Options{
		Rules: Rules{Workspaces: []string{"main"}},
	})
	if err := e.Start(); err == nil {
		t.Fatal("Start without a screen should fail")
	}
}

func TestOptionsDefaults(t *testing.T) {
	var o Options
	o.fillDefaults()
	if o.AnimationDuration != defaultAnimationDuration {
		t.Errorf("AnimationDuration = %v", o.AnimationDuration)
	}
	if o.FocusDebounce != defaultFocusDebounce {
		t.Errorf("FocusDebounce = %v", o.FocusDebounce)
	}
	if o.CreateParkDelay != defaultCreateParkDelay {
		t.Errorf("CreateParkDelay = %v", o.CreateParkDelay)
	}
	if o.SettleDelay != defaultSettleDelay {
		t.Errorf("SettleDelay = %v", o.SettleDelay)
	}
	if o.Policy.ScreenMargin != 1 {
		t.Errorf("ScreenMargin = %v, want 1", o.Policy.ScreenMargin)
	}
}

func TestStopDetaches(t *testing.T) {
	r := newTestRig(t, Options{})
	r.start()
	w := r.h.AddWindow("Term", "t", 10, geo.Rect{X: 100, Y: 100, W: 400, H: 300})
	r.show(w)
	r.settle()

	r.e.Stop()
	if got := r.gridIDs(); got != nil {
		t.Errorf("grid after Stop = %v, want empty", got)
	}
	if r.h.ScreenWatcher.Started {
		t.Error("screen watcher still running after Stop")
	}

	// Events after Stop must not reach the engine.
	r.show(r.h.AddWindow("Term", "t2", 10, geo.Rect{W: 100, H: 100}))
	if got := r.gridIDs(); got != nil {
		t.Errorf("grid gained %v after Stop", got)
	}
}

func TestParseDirection(t *testing.T) {
	for _, name := range []string{"left", "right", "up", "down", "next", "previous"} {
		d, err := ParseDirection(name)
		if err != nil {
			t.Fatalf("ParseDirection(%q): %v", name, err)
		}
		if d.String() != name {
			t.Errorf("round trip %q -> %v", name, d)
		}
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Error("ParseDirection accepted nonsense")
	}
}

func TestLogRingCaps(t *testing.T) {
	r := newTestRig(t, Options{})
	for i := 0; i < maxLogEntries+50; i++ {
		r.e.logDebug("entry %d", i)
	}
	logs := r.e.Logs()
	if len(logs) != maxLogEntries {
		t.Fatalf("log ring holds %d entries, want %d", len(logs), maxLogEntries)
	}
	if logs[len(logs)-1].Message != "entry 249" {
		t.Errorf("last entry = %q", logs[len(logs)-1].Message)
	}
}

// =========================================================================
// Tiling after 1440x900 defaults: canvas is {8 8 1424 884}
// =========================================================================

func TestFirstWindowFillsCanvasHeight(t *testing.T) {
	r := newTestRig(t, Options{})
	r.start()
	r.settle()

	w := r.h.AddWindow("Term", "t", 10, geo.Rect{X: 100, Y: 100, W: 400, H: 300})
	r.show(w)
	wantRect(t, w, geo.Rect{X: 8, Y: 8, W: 400, H: 884})
}

func TestSecondWindowOpensRightOfFocus(t *testing.T) {
	r := newTestRig(t, Options{})
	r.start()
	r.settle()

	w1 := r.h.AddWindow("Term", "t1", 10, geo.Rect{X: 100, Y: 100, W: 400, H: 300})
	r.show(w1)
	r.focus(w1)
	w2 := r.h.AddWindow("Edit", "e1", 20, geo.Rect{X: 500, Y: 100, W: 400, H: 300})
	r.show(w2)

	if got := r.gridIDs(); !sameGrid(got, [][]uint32{{w1.WID}, {w2.WID}}) {
		t.Fatalf("grid = %v", got)
	}
	wantRect(t, w1, geo.Rect{X: 8, Y: 8, W: 400, H: 884})
	wantRect(t, w2, geo.Rect{X: 416, Y: 8, W: 400, H: 884})
}

func TestScrollRightKeepsLeftNeighborVisible(t *testing.T) {
	r := newTestRig(t, Options{})
	r.start()
	r.settle()

	w1 := r.h.AddWindow("A", "1", 10, geo.Rect{X: 0, Y: 0, W: 480, H: 300})
	r.show(w1)
	r.focus(w1)
	w2 := r.h.AddWindow("B", "2", 20, geo.Rect{X: 500, Y: 0, W: 480, H: 300})
	r.show(w2)
	r.focus(w2)
	w3 := r.h.AddWindow("C", "3", 30, geo.Rect{X: 990, Y: 0, W: 480, H: 300})
	r.show(w3)
	r.focus(w3)

	// Focus went 1 -> 2 -> 3: the anchor pairs with its left neighbor and
	// the first column scrolls off the left edge.
	wantRect(t, w3, geo.Rect{X: 496, Y: 8, W: 480, H: 884})
	wantRect(t, w2, geo.Rect{X: 8, Y: 8, W: 480, H: 884})
	wantRect(t, w1, geo.Rect{X: -479, Y: 8, W: 480, H: 884})
}

func TestScrollLeftAnchorsFlush(t *testing.T) {
	r := newTestRig(t, Options{})
	r.start()
	r.settle()

	w1 := r.h.AddWindow("A", "1", 10, geo.Rect{X: 0, Y: 0, W: 480, H: 300})
	r.show(w1)
	r.focus(w1)
	w2 := r.h.AddWindow("B", "2", 20, geo.Rect{X: 500, Y: 0, W: 480, H: 300})
	r.show(w2)
	r.focus(w2)
	w3 := r.h.AddWindow("C", "3", 30, geo.Rect{X: 990, Y: 0, W: 480, H: 300})
	r.show(w3)
	r.focus(w3)

	// Coming back from the right, the anchor goes flush left so its right
	// neighbor stays on screen.
	r.focus(w2)
	wantRect(t, w2, geo.Rect{X: 8, Y: 8, W: 480, H: 884})
	wantRect(t, w3, geo.Rect{X: 496, Y: 8, W: 480, H: 884})
	wantRect(t, w1, geo.Rect{X: -479, Y: 8, W: 480, H: 884})
}
