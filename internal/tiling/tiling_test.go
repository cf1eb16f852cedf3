package tiling_test

import (
	"testing"

	"github.com/vellum-wm/vellum/internal/ax"
	"github.com/vellum-wm/vellum/internal/geo"
	"github.com/vellum-wm/vellum/internal/host"
	"github.com/vellum-wm/vellum/internal/host/hosttest"
	"github.com/vellum-wm/vellum/internal/tiling"
)

// ============================================================================
// Test Helpers
// ============================================================================

var testScreen = geo.Rect{X: 0, Y: 0, W: 1000, H: 768}

func uniformPolicy() tiling.Policy {
	return tiling.Policy{
		Gaps:         geo.Insets{Top: 8, Bottom: 8, Left: 8, Right: 8},
		ScreenMargin: 1,
	}
}

func wid(t *testing.T, w host.Window) uint32 {
	t.Helper()
	id, err := w.ID()
	if err != nil {
		t.Fatalf("window id: %v", err)
	}
	return id
}

// threeColumns builds W1,W2,W3 as 480-wide single-window columns at
// not-yet-tiled positions so every placement shows up as an op.
func threeColumns(h *hosttest.Host) (w1, w2, w3 *hosttest.Window, cols [][]host.Window) {
	w1 = h.AddWindow("Editor", "one", 10, geo.Rect{X: 0, Y: 100, W: 480, H: 500})
	w2 = h.AddWindow("Editor", "two", 10, geo.Rect{X: 20, Y: 120, W: 480, H: 500})
	w3 = h.AddWindow("Term", "three", 20, geo.Rect{X: 40, Y: 140, W: 480, H: 500})
	cols = [][]host.Window{{w1}, {w2}, {w3}}
	return
}

func opFor(t *testing.T, plan *tiling.Plan, id uint32) ax.Op {
	t.Helper()
	for _, op := range plan.Ops {
		if op.WID == id {
			return op
		}
	}
	t.Fatalf("no op for window %d in %+v", id, plan.Ops)
	return ax.Op{}
}

// ============================================================================
// Canvas Tests
// ============================================================================

func TestCanvasSubtractsGapsAndBars(t *testing.T) {
	p := uniformPolicy()
	p.ExternalBar = geo.Insets{Top: 40, Bottom: 68}

	got := tiling.Canvas(testScreen, p)
	want := geo.Rect{X: 8, Y: 48, W: 984, H: 644}
	if !got.Eq(want) {
		t.Fatalf("canvas = %+v, want %+v", got, want)
	}
}

// ============================================================================
// Anchor Placement Tests
// ============================================================================

func TestSingleWindowFillsCanvasHeight(t *testing.T) {
	h := hosttest.New()
	w := h.AddWindow("Notes", "scratchpad", 30, geo.Rect{X: 300, Y: 200, W: 100, H: 300})

	p := uniformPolicy()
	p.ExternalBar = geo.Insets{Top: 40, Bottom: 68}

	plan, err := tiling.Compute(tiling.Input{
		Columns:     [][]host.Window{{w}},
		Anchor:      w,
		AnchorWID:   wid(t, w),
		AnchorCol:   0,
		PrevPrevCol: -1,
		Screen:      testScreen,
		Policy:      p,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(plan.Ops) != 1 {
		t.Fatalf("expected one op, got %d", len(plan.Ops))
	}
	want := geo.Rect{X: 8, Y: 48, W: 100, H: 644}
	if got := plan.Ops[0].Rect(); !got.Eq(want) {
		t.Errorf("frame = %+v, want %+v", got, want)
	}
	if x := plan.X[wid(t, w)]; x != 8 {
		t.Errorf("memo x = %v, want 8", x)
	}
}

func TestStickyPairKeepsLeftNeighborVisible(t *testing.T) {
	h := hosttest.New()
	w1, w2, w3, cols := threeColumns(h)

	p := uniformPolicy()
	p.StickyPairs = true

	// Focus travelled W1 -> W2, so W1 is the focus-before-last.
	plan, err := tiling.Compute(tiling.Input{
		Columns:     cols,
		Anchor:      w2,
		AnchorWID:   wid(t, w2),
		AnchorCol:   1,
		PrevPrevCol: 0,
		Screen:      testScreen,
		Policy:      p,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if got := opFor(t, plan, wid(t, w2)).X; got != 496 {
		t.Errorf("anchor x = %v, want 496", got)
	}
	if got := opFor(t, plan, wid(t, w1)).X; got != 8 {
		t.Errorf("left neighbor x = %v, want 8", got)
	}
	if got := opFor(t, plan, wid(t, w3)).X; got != 984 {
		t.Errorf("right column x = %v, want 984", got)
	}
}

func TestScrollingLeftAnchorsFlush(t *testing.T) {
	h := hosttest.New()
	w1, w2, w3, cols := threeColumns(h)

	p := uniformPolicy()
	p.StickyPairs = true

	// Focus travelled W3 -> W2: the user is scrolling left, keep W2 and W3
	// on screen instead of pairing W2 with W1.
	plan, err := tiling.Compute(tiling.Input{
		Columns:     cols,
		Anchor:      w2,
		AnchorWID:   wid(t, w2),
		AnchorCol:   1,
		PrevPrevCol: 2,
		Screen:      testScreen,
		Policy:      p,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if got := opFor(t, plan, wid(t, w2)).X; got != 8 {
		t.Errorf("anchor x = %v, want 8", got)
	}
	if got := opFor(t, plan, wid(t, w3)).X; got != 496 {
		t.Errorf("right column x = %v, want 496", got)
	}
	// The left column clips at the screen margin, one point visible.
	if got := opFor(t, plan, wid(t, w1)).X; got != -479 {
		t.Errorf("clipped left column x = %v, want -479", got)
	}
}

func TestSavedFlushPositionStaysFlush(t *testing.T) {
	h := hosttest.New()
	_, w2, _, cols := threeColumns(h)

	p := uniformPolicy()
	p.StickyPairs = true

	// Focus history says rightward travel, but the anchor's remembered left
	// edge is the canvas edge, so it stays flush.
	plan, err := tiling.Compute(tiling.Input{
		Columns:     cols,
		Anchor:      w2,
		AnchorWID:   wid(t, w2),
		AnchorCol:   1,
		PrevPrevCol: 0,
		Screen:      testScreen,
		SavedX:      map[uint32]float64{wid(t, w2): 8},
		Policy:      p,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got := opFor(t, plan, wid(t, w2)).X; got != 8 {
		t.Errorf("anchor x = %v, want 8", got)
	}
}

func TestStickyPairFallsBackWhenPairTooWide(t *testing.T) {
	h := hosttest.New()
	w1 := h.AddWindow("A", "1", 1, geo.Rect{X: 0, Y: 0, W: 600, H: 500})
	w2 := h.AddWindow("B", "2", 2, geo.Rect{X: 0, Y: 0, W: 600, H: 500})

	p := uniformPolicy()
	p.StickyPairs = true

	// 600 + 8 + 600 > 984: the pair does not fit, anchor goes flush left.
	plan, err := tiling.Compute(tiling.Input{
		Columns:     [][]host.Window{{w1}, {w2}},
		Anchor:      w2,
		AnchorWID:   wid(t, w2),
		AnchorCol:   1,
		PrevPrevCol: 0,
		Screen:      testScreen,
		Policy:      p,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got := opFor(t, plan, wid(t, w2)).X; got != 8 {
		t.Errorf("anchor x = %v, want 8", got)
	}
}

func TestRightAnchorLastFlushesRight(t *testing.T) {
	h := hosttest.New()
	_, _, w3, cols := threeColumns(h)

	p := uniformPolicy()
	p.RightAnchorLast = true

	plan, err := tiling.Compute(tiling.Input{
		Columns:     cols,
		Anchor:      w3,
		AnchorWID:   wid(t, w3),
		AnchorCol:   2,
		PrevPrevCol: -1,
		Screen:      testScreen,
		Policy:      p,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got := opFor(t, plan, wid(t, w3)).X; got != 512 {
		t.Errorf("anchor x = %v, want 512", got)
	}
}

func TestRightAnchorIgnoredForSingleColumn(t *testing.T) {
	h := hosttest.New()
	w := h.AddWindow("A", "1", 1, geo.Rect{X: 400, Y: 0, W: 480, H: 500})

	p := uniformPolicy()
	p.RightAnchorLast = true

	plan, err := tiling.Compute(tiling.Input{
		Columns:     [][]host.Window{{w}},
		Anchor:      w,
		AnchorWID:   wid(t, w),
		AnchorCol:   0,
		PrevPrevCol: -1,
		Screen:      testScreen,
		Policy:      p,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got := opFor(t, plan, wid(t, w)).X; got != 8 {
		t.Errorf("lone column x = %v, want 8", got)
	}
}

// ============================================================================
// Column Layout Tests
// ============================================================================

func TestAnchorColumnSharesHeightEvenly(t *testing.T) {
	h := hosttest.New()
	a := h.AddWindow("A", "anchor", 1, geo.Rect{X: 0, Y: 0, W: 480, H: 300})
	b := h.AddWindow("A", "below", 1, geo.Rect{X: 0, Y: 0, W: 480, H: 200})

	plan, err := tiling.Compute(tiling.Input{
		Columns:     [][]host.Window{{a, b}},
		Anchor:      a,
		AnchorWID:   wid(t, a),
		AnchorCol:   0,
		PrevPrevCol: -1,
		Screen:      testScreen,
		Policy:      uniformPolicy(),
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	// Canvas is y 8..760. The anchor keeps its 300, the other window gets
	// the remainder minus one gap.
	wantA := geo.Rect{X: 8, Y: 8, W: 480, H: 300}
	wantB := geo.Rect{X: 8, Y: 316, W: 480, H: 444}
	if got := opFor(t, plan, wid(t, a)).Rect(); !got.Eq(wantA) {
		t.Errorf("anchor frame = %+v, want %+v", got, wantA)
	}
	if got := opFor(t, plan, wid(t, b)).Rect(); !got.Eq(wantB) {
		t.Errorf("second frame = %+v, want %+v", got, wantB)
	}
}

func TestTileColumnExpandsLastToFill(t *testing.T) {
	h := hosttest.New()
	a := h.AddWindow("A", "1", 1, geo.Rect{X: 0, Y: 0, W: 300, H: 200})
	b := h.AddWindow("A", "2", 1, geo.Rect{X: 0, Y: 0, W: 320, H: 200})

	ops, width := tiling.TileColumn(
		[]host.Window{a, b},
		tiling.Bounds{X: 10, Y: 0, Y2: 700},
		8,
		tiling.ColumnSpec{},
	)
	if width != 300 {
		t.Fatalf("width = %v, want first window's 300", width)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 ops, got %d", len(ops))
	}

	wantA := geo.Rect{X: 10, Y: 0, W: 300, H: 200}
	wantB := geo.Rect{X: 10, Y: 208, W: 300, H: 492}
	if got := ops[0].Rect(); !got.Eq(wantA) {
		t.Errorf("first = %+v, want %+v", got, wantA)
	}
	if got := ops[1].Rect(); !got.Eq(wantB) {
		t.Errorf("last = %+v, want %+v", got, wantB)
	}
}

func TestTileColumnRightAnchored(t *testing.T) {
	h := hosttest.New()
	a := h.AddWindow("A", "1", 1, geo.Rect{X: 900, Y: 0, W: 300, H: 350})
	b := h.AddWindow("A", "2", 1, geo.Rect{X: 900, Y: 0, W: 260, H: 300})

	ops, width := tiling.TileColumn(
		[]host.Window{a, b},
		tiling.Bounds{X2: 500, FromRight: true, Y: 0, Y2: 700},
		8,
		tiling.ColumnSpec{},
	)
	if width != 300 {
		t.Fatalf("width = %v, want 300", width)
	}
	for _, op := range ops {
		if op.X != 200 {
			t.Errorf("window %d x = %v, want 200", op.WID, op.X)
		}
		if op.W != 300 {
			t.Errorf("window %d w = %v, want uniform 300", op.WID, op.W)
		}
	}
}

func TestTileColumnHeightOverride(t *testing.T) {
	h := hosttest.New()
	a := h.AddWindow("A", "special", 1, geo.Rect{X: 0, Y: 0, W: 400, H: 999})
	b := h.AddWindow("A", "plain", 1, geo.Rect{X: 0, Y: 0, W: 400, H: 999})
	c := h.AddWindow("A", "plain2", 1, geo.Rect{X: 0, Y: 0, W: 400, H: 999})

	ops, _ := tiling.TileColumn(
		[]host.Window{a, b, c},
		tiling.Bounds{X: 0, Y: 0, Y2: 604},
		2,
		tiling.ColumnSpec{Height: 200, Override: wid(t, a), OverrideHeight: 100},
	)

	byWID := map[uint32]geo.Rect{}
	for _, op := range ops {
		byWID[op.WID] = op.Rect()
	}
	if got := byWID[wid(t, a)].H; got != 100 {
		t.Errorf("override height = %v, want 100", got)
	}
	if got := byWID[wid(t, b)].H; got != 200 {
		t.Errorf("plain height = %v, want 200", got)
	}
	// 100 + 2 + 200 + 2 = 304; the last window stretches 304..604.
	if got := byWID[wid(t, c)]; got.Y != 304 || got.H != 300 {
		t.Errorf("last = %+v, want y=304 h=300", got)
	}
}

func TestTileColumnClampsAtBottom(t *testing.T) {
	h := hosttest.New()
	a := h.AddWindow("A", "tall", 1, geo.Rect{X: 0, Y: 0, W: 400, H: 900})

	ops, _ := tiling.TileColumn(
		[]host.Window{a},
		tiling.Bounds{X: 0, Y: 100, Y2: 600},
		8,
		tiling.ColumnSpec{},
	)
	if len(ops) != 1 {
		t.Fatalf("expected 1 op, got %d", len(ops))
	}
	got := ops[0].Rect()
	if got.Y2() > 600 {
		t.Errorf("frame %+v overflows the bottom bound", got)
	}
}

// ============================================================================
// Resilience Tests
// ============================================================================

func TestUnchangedWindowsEmitNoOps(t *testing.T) {
	h := hosttest.New()
	// Pre-place the window exactly where the layout will put it.
	w := h.AddWindow("A", "settled", 1, geo.Rect{X: 8, Y: 8, W: 480, H: 752})

	plan, err := tiling.Compute(tiling.Input{
		Columns:     [][]host.Window{{w}},
		Anchor:      w,
		AnchorWID:   wid(t, w),
		AnchorCol:   0,
		PrevPrevCol: -1,
		Screen:      testScreen,
		Policy:      uniformPolicy(),
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(plan.Ops) != 0 {
		t.Errorf("expected no ops for a settled layout, got %+v", plan.Ops)
	}
	if x := plan.X[wid(t, w)]; x != 8 {
		t.Errorf("memo should still record x=8, got %v", x)
	}
}

func TestStaleWindowSkippedInColumn(t *testing.T) {
	h := hosttest.New()
	a := h.AddWindow("A", "1", 1, geo.Rect{X: 0, Y: 0, W: 480, H: 300})
	ghost := h.AddWindow("A", "2", 1, geo.Rect{X: 0, Y: 0, W: 480, H: 300})
	c := h.AddWindow("A", "3", 1, geo.Rect{X: 0, Y: 0, W: 480, H: 300})
	ghostID := ghost.WID
	ghost.Destroy()

	plan, err := tiling.Compute(tiling.Input{
		Columns:     [][]host.Window{{a, ghost, c}},
		Anchor:      a,
		AnchorWID:   wid(t, a),
		AnchorCol:   0,
		PrevPrevCol: -1,
		Screen:      testScreen,
		Policy:      uniformPolicy(),
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for _, op := range plan.Ops {
		if op.WID == ghostID {
			t.Fatal("stale window received an op")
		}
	}
	if _, ok := plan.X[ghostID]; ok {
		t.Error("stale window recorded in the memo")
	}
	if len(plan.Ops) != 2 {
		t.Errorf("expected ops for the 2 live windows, got %d", len(plan.Ops))
	}
}

func TestAnchorGoneFailsLayout(t *testing.T) {
	h := hosttest.New()
	w := h.AddWindow("A", "1", 1, geo.Rect{X: 0, Y: 0, W: 480, H: 300})
	id := w.WID
	w.Destroy()

	_, err := tiling.Compute(tiling.Input{
		Columns:     [][]host.Window{{w}},
		Anchor:      w,
		AnchorWID:   id,
		AnchorCol:   0,
		PrevPrevCol: -1,
		Screen:      testScreen,
		Policy:      uniformPolicy(),
	})
	if err != tiling.ErrAnchorGone {
		t.Fatalf("expected ErrAnchorGone, got %v", err)
	}
}

func TestEmptyStripIsNoOp(t *testing.T) {
	plan, err := tiling.Compute(tiling.Input{Screen: testScreen, Policy: uniformPolicy()})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(plan.Ops) != 0 || len(plan.X) != 0 {
		t.Errorf("expected an empty plan, got %+v", plan)
	}
}

// ============================================================================
// Anchor Fallback Tests
// ============================================================================

func TestFirstVisiblePrefersLeftmostOnScreen(t *testing.T) {
	h := hosttest.New()
	off := h.AddWindow("A", "off", 1, geo.Rect{X: -500, Y: 0, W: 480, H: 300})
	near := h.AddWindow("A", "near", 1, geo.Rect{X: 50, Y: 0, W: 480, H: 300})
	far := h.AddWindow("A", "far", 1, geo.Rect{X: 600, Y: 0, W: 480, H: 300})

	got := tiling.FirstVisible([][]host.Window{{off}, {near}, {far}}, 0)
	if got != host.Window(near) {
		t.Fatalf("expected the leftmost on-screen column, got %v", got)
	}
}

func TestFirstVisibleFallsBackToClosest(t *testing.T) {
	h := hosttest.New()
	farLeft := h.AddWindow("A", "far", 1, geo.Rect{X: -900, Y: 0, W: 480, H: 300})
	nearLeft := h.AddWindow("A", "near", 1, geo.Rect{X: -100, Y: 0, W: 480, H: 300})

	got := tiling.FirstVisible([][]host.Window{{farLeft}, {nearLeft}}, 0)
	if got != host.Window(nearLeft) {
		t.Fatalf("expected the closest off-screen column, got %v", got)
	}
}

func TestFirstVisibleSkipsStaleColumns(t *testing.T) {
	h := hosttest.New()
	ghost := h.AddWindow("A", "ghost", 1, geo.Rect{X: 10, Y: 0, W: 480, H: 300})
	live := h.AddWindow("A", "live", 1, geo.Rect{X: 200, Y: 0, W: 480, H: 300})
	ghost.Destroy()

	got := tiling.FirstVisible([][]host.Window{{ghost}, {live}}, 0)
	if got != host.Window(live) {
		t.Fatalf("expected the live column, got %v", got)
	}
	if tiling.FirstVisible(nil, 0) != nil {
		t.Error("no columns should yield no anchor")
	}
}

// ============================================================================
// Benchmarks
// ============================================================================

func BenchmarkCompute(b *testing.B) {
	h := hosttest.New()
	var cols [][]host.Window
	var anchor *hosttest.Window
	for c := 0; c < 10; c++ {
		var col []host.Window
		for r := 0; r < 3; r++ {
			w := h.AddWindow("App", "w", int32(c), geo.Rect{X: float64(c * 490), Y: float64(r * 250), W: 480, H: 240})
			if c == 4 && r == 0 {
				anchor = w
			}
			col = append(col, w)
		}
		cols = append(cols, col)
	}
	anchorID, _ := anchor.ID()
	in := tiling.Input{
		Columns:     cols,
		Anchor:      anchor,
		AnchorWID:   anchorID,
		AnchorCol:   4,
		PrevPrevCol: 3,
		Screen:      geo.Rect{W: 1440, H: 900},
		Policy:      uniformPolicy(),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tiling.Compute(in); err != nil {
			b.Fatal(err)
		}
	}
}
