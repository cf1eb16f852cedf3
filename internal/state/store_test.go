package state_test

import (
	"testing"

	"github.com/vellum-wm/vellum/internal/geo"
	"github.com/vellum-wm/vellum/internal/host"
	"github.com/vellum-wm/vellum/internal/host/hosttest"
	"github.com/vellum-wm/vellum/internal/state"
)

// ============================================================================
// Test Helpers
// ============================================================================

func newStore(t *testing.T) (*hosttest.Host, *state.Store) {
	t.Helper()
	h := hosttest.New()
	return h, state.New(h, nil)
}

func addWin(t *testing.T, h *hosttest.Host, app string) (*hosttest.Window, uint32) {
	t.Helper()
	w := h.AddWindow(app, app+" window", 500, geo.Rect{X: 0, Y: 0, W: 600, H: 400})
	wid, err := w.ID()
	if err != nil {
		t.Fatalf("fake window has no id: %v", err)
	}
	return w, wid
}

func mustCoherent(t *testing.T, s *state.Store) {
	t.Helper()
	if err := s.Coherent(); err != nil {
		t.Fatalf("store incoherent: %v", err)
	}
}

// ============================================================================
// Grid Tests
// ============================================================================

func TestInsertAndIndex(t *testing.T) {
	h, s := newStore(t)
	const space = host.Space(7)

	a, _ := addWin(t, h, "Safari")
	b, _ := addWin(t, h, "Mail")
	c, wc := addWin(t, h, "Notes")

	s.InsertWindow(space, 0, 0, a)
	s.InsertWindow(space, 1, 0, b)
	s.InsertWindow(space, 1, 1, c)
	mustCoherent(t, s)

	if got := s.NumColumns(space); got != 2 {
		t.Fatalf("expected 2 columns, got %d", got)
	}
	idx, ok := s.Index(wc)
	if !ok {
		t.Fatal("expected index entry for third window")
	}
	if idx.Col != 1 || idx.Row != 1 {
		t.Errorf("expected (1,1), got (%d,%d)", idx.Col, idx.Row)
	}
	if s.Window(idx) != host.Window(c) {
		t.Error("index does not resolve back to the inserted window")
	}
}

func TestInsertClampsPositions(t *testing.T) {
	h, s := newStore(t)
	const space = host.Space(1)

	a, _ := addWin(t, h, "A")
	b, _ := addWin(t, h, "B")

	// Out-of-range coordinates clamp to append.
	s.InsertWindow(space, 99, 99, a)
	s.InsertWindow(space, 0, 99, b)
	mustCoherent(t, s)

	col := s.Column(space, 0)
	if len(col) != 2 {
		t.Fatalf("expected both windows in column 0, got %d", len(col))
	}
	if col[0] != host.Window(a) || col[1] != host.Window(b) {
		t.Error("rows out of order after clamped insert")
	}
}

func TestRemoveWindowPurgesEmptyContainers(t *testing.T) {
	h, s := newStore(t)
	const space = host.Space(3)

	a, wa := addWin(t, h, "A")
	b, wb := addWin(t, h, "B")
	s.InsertWindow(space, 0, 0, a)
	s.InsertWindow(space, 1, 0, b)

	idx, ok := s.RemoveWindow(wa)
	if !ok {
		t.Fatal("expected removal to find the window")
	}
	if idx.Col != 0 {
		t.Errorf("expected former column 0, got %d", idx.Col)
	}
	mustCoherent(t, s)

	// The empty column is gone and the survivor shifted left.
	if got := s.NumColumns(space); got != 1 {
		t.Fatalf("expected 1 column after purge, got %d", got)
	}
	bIdx, _ := s.Index(wb)
	if bIdx.Col != 0 {
		t.Errorf("expected surviving window reindexed to column 0, got %d", bIdx.Col)
	}

	s.RemoveWindow(wb)
	if s.Columns(space) != nil {
		t.Error("expected space entry purged once its last window left")
	}
	if _, ok := s.RemoveWindow(wb); ok {
		t.Error("removing an absent window should report false")
	}
}

func TestSetColumnEmptyPurges(t *testing.T) {
	h, s := newStore(t)
	const space = host.Space(2)

	a, wa := addWin(t, h, "A")
	b, _ := addWin(t, h, "B")
	s.InsertWindow(space, 0, 0, a)
	s.InsertWindow(space, 1, 0, b)

	s.SetColumn(space, 0, nil)
	mustCoherent(t, s)
	if got := s.NumColumns(space); got != 1 {
		t.Fatalf("expected 1 column, got %d", got)
	}
	if _, ok := s.Index(wa); ok {
		t.Error("purged window still indexed")
	}
}

func TestSwapColumnsAndRows(t *testing.T) {
	h, s := newStore(t)
	const space = host.Space(5)

	a, wa := addWin(t, h, "A")
	b, _ := addWin(t, h, "B")
	c, wc := addWin(t, h, "C")
	s.InsertWindow(space, 0, 0, a)
	s.InsertWindow(space, 1, 0, b)
	s.InsertWindow(space, 1, 1, c)

	s.SwapColumns(space, 0, 1)
	mustCoherent(t, s)
	if idx, _ := s.Index(wa); idx.Col != 1 {
		t.Errorf("expected A in column 1 after swap, got %d", idx.Col)
	}

	s.SwapRows(space, 0, 0, 1)
	mustCoherent(t, s)
	if idx, _ := s.Index(wc); idx.Row != 0 {
		t.Errorf("expected C in row 0 after swap, got %d", idx.Row)
	}

	// Out-of-range swaps are ignored.
	s.SwapColumns(space, 0, 9)
	s.SwapRows(space, 0, 0, 9)
	mustCoherent(t, s)
}

func TestWindowIDs(t *testing.T) {
	h, s := newStore(t)

	a, wa := addWin(t, h, "A")
	b, wb := addWin(t, h, "B")
	s.InsertWindow(1, 0, 0, a)
	s.InsertWindow(2, 0, 0, b)

	ids := s.WindowIDs(1)
	if !ids[wa] || ids[wb] {
		t.Errorf("expected only window %d on space 1, got %v", wa, ids)
	}
}

// ============================================================================
// X-Position Memo Tests
// ============================================================================

func TestXPositionLifecycle(t *testing.T) {
	_, s := newStore(t)
	const space = host.Space(4)

	s.SetXPosition(space, 10, 8)
	s.SetXPosition(space, 11, 492)

	if x, ok := s.XPosition(space, 11); !ok || x != 492 {
		t.Fatalf("expected saved x 492, got %v (ok=%v)", x, ok)
	}

	s.RemoveXPosition(space, 10)
	s.RemoveXPosition(space, 11)
	if s.XPositions(space) != nil {
		t.Error("expected memo entry purged once empty")
	}

	s.SetXPositions(space, map[uint32]float64{20: 100})
	s.SetXPositions(space, nil)
	if s.XPositions(space) != nil {
		t.Error("expected nil replacement to clear the memo")
	}
}

// ============================================================================
// Hidden / Floating Tests
// ============================================================================

func TestHiddenAndFloatingSets(t *testing.T) {
	_, s := newStore(t)

	s.SetHidden(42, true)
	s.SetFloating(43, true)

	if !s.Hidden(42) || s.Hidden(43) {
		t.Error("hidden set wrong")
	}
	if !s.Floating(43) || s.Floating(42) {
		t.Error("floating set wrong")
	}

	ids := s.HiddenIDs()
	if len(ids) != 1 || ids[0] != 42 {
		t.Errorf("expected hidden ids [42], got %v", ids)
	}

	s.SetHidden(42, false)
	s.SetFloating(43, false)
	if s.Hidden(42) || s.Floating(43) {
		t.Error("clearing flags failed")
	}
}

// ============================================================================
// Snapshot Tests
// ============================================================================

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	h, s := newStore(t)
	const space = host.Space(9)

	a, wa := addWin(t, h, "A")
	b, wb := addWin(t, h, "B")
	c, wc := addWin(t, h, "C")
	s.InsertWindow(space, 0, 0, a)
	s.InsertWindow(space, 1, 0, b)
	s.InsertWindow(space, 1, 1, c)
	s.SetXPosition(space, wa, 8)
	s.SetXPosition(space, wb, 492)

	snap := s.Snapshot(space)
	if snap == nil || snap.Empty() {
		t.Fatal("expected a populated snapshot")
	}

	s.Restore(space, nil)
	if s.Columns(space) != nil || s.XPositions(space) != nil {
		t.Fatal("nil restore should clear the space")
	}
	if _, ok := s.Index(wa); ok {
		t.Fatal("nil restore left stale index entries")
	}

	s.Restore(space, snap)
	mustCoherent(t, s)

	if got := s.NumColumns(space); got != 2 {
		t.Fatalf("expected 2 columns restored, got %d", got)
	}
	idx, ok := s.Index(wc)
	if !ok || idx.Col != 1 || idx.Row != 1 {
		t.Errorf("expected C back at (1,1), got %+v (ok=%v)", idx, ok)
	}
	if x, ok := s.XPosition(space, wb); !ok || x != 492 {
		t.Errorf("expected memo restored, got %v (ok=%v)", x, ok)
	}
}

func TestSnapshotIsIsolatedFromLiveGrid(t *testing.T) {
	h, s := newStore(t)
	const space = host.Space(1)

	a, wa := addWin(t, h, "A")
	b, wb := addWin(t, h, "B")
	s.InsertWindow(space, 0, 0, a)
	s.InsertWindow(space, 1, 0, b)

	snap := s.Snapshot(space)
	s.RemoveWindow(wa)
	s.RemoveWindow(wb)

	if len(snap.Windows()) != 2 {
		t.Error("snapshot mutated by later grid changes")
	}
}

func TestSnapshotOfEmptySpaceIsNil(t *testing.T) {
	_, s := newStore(t)
	if s.Snapshot(99) != nil {
		t.Error("expected nil snapshot for an empty space")
	}
	var snap *state.Snapshot
	if !snap.Empty() {
		t.Error("nil snapshot should report empty")
	}
	if snap.First() != nil || snap.WindowByID(1) != nil {
		t.Error("nil snapshot lookups should return nil")
	}
}

func TestSnapshotPruneAndRemove(t *testing.T) {
	h, s := newStore(t)
	const space = host.Space(6)

	a, wa := addWin(t, h, "A")
	b, wb := addWin(t, h, "B")
	c, wc := addWin(t, h, "C")
	s.InsertWindow(space, 0, 0, a)
	s.InsertWindow(space, 0, 1, b)
	s.InsertWindow(space, 1, 0, c)
	s.SetXPosition(space, wa, 8)
	s.SetXPosition(space, wc, 700)

	snap := s.Snapshot(space)

	snap.Remove(wc)
	if snap.WindowByID(wc) != nil {
		t.Fatal("removed window still present in snapshot")
	}
	ids := snap.WindowIDs()
	if !ids[wa] || !ids[wb] || ids[wc] {
		t.Errorf("unexpected id set after remove: %v", ids)
	}

	// A destroyed handle is pruned even when keep says yes.
	b.Destroy()
	snap.Prune(func(uint32) bool { return true })
	if len(snap.Windows()) != 1 {
		t.Fatalf("expected only the live window to survive, got %d", len(snap.Windows()))
	}
	if snap.First() != host.Window(a) {
		t.Error("expected A to be the surviving first window")
	}

	s.Restore(space, snap)
	mustCoherent(t, s)
	if got := s.NumColumns(space); got != 1 {
		t.Errorf("expected 1 column after pruned restore, got %d", got)
	}
	if _, ok := s.XPosition(space, wc); ok {
		t.Error("memo entry for pruned window survived")
	}
}

// ============================================================================
// Watcher Tests
// ============================================================================

func TestEnsureWatchersCoversSpace(t *testing.T) {
	h, s := newStore(t)
	const space = host.Space(2)

	a, wa := addWin(t, h, "A")
	b, wb := addWin(t, h, "B")
	s.InsertWindow(space, 0, 0, a)
	s.InsertWindow(space, 1, 0, b)

	s.CreateWatcher(a)
	s.EnsureWatchers(space)

	if !s.HasWatcher(wa) || !s.HasWatcher(wb) {
		t.Fatal("expected watchers for every window in the space")
	}
	if len(h.Watchers) != 2 {
		t.Fatalf("expected exactly 2 host watchers, got %d", len(h.Watchers))
	}
	if !h.WatcherFor(wa).Started || !h.WatcherFor(wb).Started {
		t.Error("watchers should start when created")
	}
}

func TestWatcherStartStopDelete(t *testing.T) {
	h, s := newStore(t)

	a, wa := addWin(t, h, "A")
	s.CreateWatcher(a)

	s.StopWatcher(wa)
	if h.WatcherFor(wa).Started {
		t.Error("watcher should stop")
	}
	s.StartWatcher(wa)
	if !h.WatcherFor(wa).Started {
		t.Error("watcher should restart")
	}
	s.DeleteWatcher(wa)
	if s.HasWatcher(wa) {
		t.Error("watcher should be removed")
	}
	if h.WatcherFor(wa).Started {
		t.Error("deleted watcher should be stopped")
	}

	// Idempotent on missing ids.
	s.StartWatcher(999)
	s.StopWatcher(999)
	s.DeleteWatcher(999)
}

func TestWatcherCallbackCarriesWindowID(t *testing.T) {
	h := hosttest.New()
	var moved []uint32
	s := state.New(h, func(wid uint32) { moved = append(moved, wid) })

	a, wa := addWin(t, h, "A")
	s.CreateWatcher(a)

	h.WatcherFor(wa).Fire()
	if len(moved) != 1 || moved[0] != wa {
		t.Fatalf("expected move callback for %d, got %v", wa, moved)
	}
}

func TestClearStopsWatchers(t *testing.T) {
	h, s := newStore(t)
	const space = host.Space(1)

	a, wa := addWin(t, h, "A")
	s.InsertWindow(space, 0, 0, a)
	s.SetXPosition(space, wa, 8)
	s.SetHidden(wa, true)
	s.CreateWatcher(a)

	s.Clear()

	if s.Columns(space) != nil || s.XPositions(space) != nil {
		t.Error("clear left grid state behind")
	}
	if s.Hidden(wa) || s.HasWatcher(wa) {
		t.Error("clear left flags or watchers behind")
	}
	if h.WatcherFor(wa).Started {
		t.Error("clear should stop host watchers")
	}
}
