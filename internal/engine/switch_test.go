package engine

import (
	"testing"

	"github.com/vellum-wm/vellum/internal/geo"
	"github.com/vellum-wm/vellum/internal/host"
	"github.com/vellum-wm/vellum/internal/host/hosttest"
)

// partitionedRig boots main+work with a Term window tiled on main and a
// Chat window routed to work. After the settle timer, Term is visible at
// {8 8 600 884}, Chat is parked at the bottom-right corner and its tiled
// frame {616 8 600 884} is saved for restore.
func partitionedRig(t *testing.T, opts Options) (*testRig, *hosttest.Window, *hosttest.Window) {
	t.Helper()
	if opts.Rules.Workspaces == nil {
		opts.Rules.Workspaces = []string{"main", "work"}
	}
	if opts.Rules.AppRules == nil {
		opts.Rules.AppRules = map[string]string{"Chat": "work"}
	}
	r := newTestRig(t, opts)
	term := r.h.AddWindow("Term", "t1", 10, geo.Rect{X: 100, Y: 100, W: 600, H: 400})
	chat := r.h.AddWindow("Chat", "c1", 20, geo.Rect{X: 700, Y: 100, W: 600, H: 400})
	r.start()
	r.show(term)
	r.show(chat)
	r.settle()
	return r, term, chat
}

// =========================================================================
// Startup partition
// =========================================================================

func TestPartitionParksOtherWorkspaces(t *testing.T) {
	r, term, chat := partitionedRig(t, Options{})

	if got := r.e.Current(); got != "main" {
		t.Fatalf("current = %q", got)
	}
	if got := r.gridIDs(); !sameGrid(got, [][]uint32{{term.WID}}) {
		t.Fatalf("grid = %v", got)
	}
	if !r.e.store.Hidden(chat.WID) {
		t.Error("chat not hidden")
	}
	wantRect(t, term, geo.Rect{X: 8, Y: 8, W: 600, H: 884})
	wantRect(t, chat, geo.Rect{X: 1439, Y: 899, W: 600, H: 884})
	if f := r.e.wsFrames[chat.WID]; !f.Eq(geo.Rect{X: 616, Y: 8, W: 600, H: 884}) {
		t.Errorf("saved frame = %+v", f)
	}
	if r.e.wsSnapshots["work"] == nil {
		t.Error("no snapshot for work")
	}
}

// =========================================================================
// Switching
// =========================================================================

func TestSwitchRestoresExactFrames(t *testing.T) {
	r, term, chat := partitionedRig(t, Options{})

	r.e.SwitchTo("work")

	if got := r.e.Current(); got != "work" {
		t.Fatalf("current = %q", got)
	}
	if got := r.gridIDs(); !sameGrid(got, [][]uint32{{chat.WID}}) {
		t.Fatalf("grid = %v", got)
	}
	// Restored to the saved frame, not re-tiled: a fresh tile would put a
	// single column flush at x=8, the saved frame is at x=616.
	wantRect(t, chat, geo.Rect{X: 616, Y: 8, W: 600, H: 884})
	wantRect(t, term, geo.Rect{X: 1439, Y: 899, W: 600, H: 884})
	if !r.e.store.Hidden(term.WID) {
		t.Error("term not hidden after switching away")
	}
	if r.e.store.Hidden(chat.WID) {
		t.Error("chat still hidden after switching in")
	}
	if got := r.h.FocusCalls[len(r.h.FocusCalls)-1]; got != chat.WID {
		t.Errorf("focused %d, want %d", got, chat.WID)
	}
}

func TestSwitchRoundTrip(t *testing.T) {
	r, term, chat := partitionedRig(t, Options{})

	r.e.SwitchTo("work")
	r.e.SwitchTo("main")

	if got := r.e.Current(); got != "main" {
		t.Fatalf("current = %q", got)
	}
	if got := r.gridIDs(); !sameGrid(got, [][]uint32{{term.WID}}) {
		t.Fatalf("grid = %v", got)
	}
	wantRect(t, term, geo.Rect{X: 8, Y: 8, W: 600, H: 884})
	wantRect(t, chat, geo.Rect{X: 1439, Y: 899, W: 600, H: 884})

	space, _, _ := r.e.activeSpace()
	if x, ok := r.e.store.XPosition(space, term.WID); !ok || x != 8 {
		t.Errorf("term saved x = %v %v, want 8", x, ok)
	}
	if err := r.e.store.Coherent(); err != nil {
		t.Errorf("store incoherent after round trip: %v", err)
	}
}

func TestSwitchToUnknownWorkspace(t *testing.T) {
	r, _, _ := partitionedRig(t, Options{})
	moves := len(r.tr.Moves)

	r.e.SwitchTo("bogus")

	if got := r.e.Current(); got != "main" {
		t.Errorf("current = %q", got)
	}
	if len(r.tr.Moves) != moves {
		t.Error("unknown workspace switch still moved windows")
	}
}

func TestSwitchToCurrentWithoutToggleIsNoOp(t *testing.T) {
	r, _, _ := partitionedRig(t, Options{})
	moves := len(r.tr.Moves)

	r.e.SwitchTo("main")

	if got := r.e.Current(); got != "main" {
		t.Errorf("current = %q", got)
	}
	if len(r.tr.Moves) != moves {
		t.Error("no-op switch moved windows")
	}
}

func TestToggleBackPingPong(t *testing.T) {
	r, _, _ := partitionedRig(t, Options{Rules: Rules{
		Workspaces: []string{"main", "work"},
		AppRules:   map[string]string{"Chat": "work"},
		ToggleBack: true,
	}})

	r.e.SwitchTo("work")
	if got := r.e.Current(); got != "work" {
		t.Fatalf("current = %q", got)
	}

	// Switching to the workspace already up goes back.
	r.e.SwitchTo("work")
	if got := r.e.Current(); got != "main" {
		t.Fatalf("toggle did not go back, current = %q", got)
	}
	r.e.SwitchTo("main")
	if got := r.e.Current(); got != "work" {
		t.Fatalf("second toggle, current = %q", got)
	}
}

func TestOnSwitchCallback(t *testing.T) {
	var seen []string
	r, _, _ := partitionedRig(t, Options{OnSwitch: func(ws string) { seen = append(seen, ws) }})

	r.e.SwitchTo("work")
	r.e.SwitchTo("main")

	if len(seen) != 2 || seen[0] != "work" || seen[1] != "main" {
		t.Errorf("OnSwitch calls = %v", seen)
	}
}

// =========================================================================
// Windows born on inactive workspaces
// =========================================================================

func TestCreateOnInactiveWorkspaceParksAndDrains(t *testing.T) {
	r, term, chat := partitionedRig(t, Options{})

	chat2 := r.h.AddWindow("Chat", "c2", 20, geo.Rect{X: 700, Y: 100, W: 500, H: 400})
	r.show(chat2)

	// Visible for a grace period first.
	if _, ok := r.e.store.Index(chat2.WID); !ok {
		t.Fatal("new window not tiled during the grace period")
	}
	r.timers.fire(r.e.opts.CreateParkDelay)
	r.e.runQueued()

	if got := r.gridIDs(); !sameGrid(got, [][]uint32{{term.WID}}) {
		t.Fatalf("grid after park = %v", got)
	}
	if !r.e.store.Hidden(chat2.WID) {
		t.Fatal("chat2 not parked")
	}
	if got := r.h.FocusCalls[len(r.h.FocusCalls)-1]; got != term.WID {
		t.Errorf("focus went to %d, want neighbor %d", got, term.WID)
	}

	r.e.SwitchTo("work")
	if _, ok := r.e.store.Index(chat2.WID); !ok {
		t.Fatal("pending window not materialized on switch")
	}
	if _, ok := r.e.store.Index(chat.WID); !ok {
		t.Fatal("snapshot window missing after switch")
	}
	if r.e.store.Hidden(chat2.WID) {
		t.Error("chat2 still hidden on its own workspace")
	}
}

func TestFocusOnForeignWindowPullsItsWorkspace(t *testing.T) {
	r, _, chat := partitionedRig(t, Options{})

	r.h.SetFocused(chat)
	r.h.Fire(chat, host.EventFocused)
	r.e.runQueued()
	if got := r.e.Current(); got != "main" {
		t.Fatalf("switched before the debounce, current = %q", got)
	}

	r.timers.fire(r.e.opts.FocusDebounce)
	r.e.runQueued()

	if got := r.e.Current(); got != "work" {
		t.Fatalf("current = %q, want work", got)
	}
	if r.e.store.Hidden(chat.WID) {
		t.Error("chat still hidden")
	}
}

func TestFocusDebounceCancelledByRefocus(t *testing.T) {
	r, term, chat := partitionedRig(t, Options{})

	r.h.SetFocused(chat)
	r.h.Fire(chat, host.EventFocused)
	r.e.runQueued()

	// Focus comes back to the current workspace before the debounce ends.
	r.h.SetFocused(term)
	r.h.Fire(term, host.EventFocused)
	r.e.runQueued()
	r.timers.fire(r.e.opts.FocusDebounce)
	r.e.runQueued()

	if got := r.e.Current(); got != "main" {
		t.Errorf("current = %q, want main", got)
	}
}

// =========================================================================
// Moving windows between workspaces
// =========================================================================

func TestMoveWindowToParksAndFocusesNeighbor(t *testing.T) {
	r, term, _ := partitionedRig(t, Options{})
	term2 := r.h.AddWindow("Term", "t2", 10, geo.Rect{X: 800, Y: 100, W: 500, H: 400})
	r.show(term2)
	r.focus(term2)

	r.e.MoveWindowTo("work")

	if got := r.gridIDs(); !sameGrid(got, [][]uint32{{term.WID}}) {
		t.Fatalf("grid = %v", got)
	}
	if ws := r.e.winWS[term2.WID]; ws != "work" {
		t.Errorf("term2 workspace = %q", ws)
	}
	if !r.e.store.Hidden(term2.WID) {
		t.Error("term2 not parked")
	}
	if got := r.h.FocusCalls[len(r.h.FocusCalls)-1]; got != term.WID {
		t.Errorf("focused %d, want heir %d", got, term.WID)
	}

	r.e.SwitchTo("work")
	if _, ok := r.e.store.Index(term2.WID); !ok {
		t.Fatal("moved window not materialized on its new workspace")
	}
	if got := r.h.FocusCalls[len(r.h.FocusCalls)-1]; got != term2.WID {
		t.Errorf("switch focused %d, want moved window %d", got, term2.WID)
	}
}

func TestMoveWindowToSameWorkspaceIsNoOp(t *testing.T) {
	r, term, _ := partitionedRig(t, Options{})
	r.focus(term)
	moves := len(r.tr.Moves)

	r.e.MoveWindowTo("main")

	if len(r.tr.Moves) != moves {
		t.Error("same-workspace move produced batches")
	}
	if ws := r.e.winWS[term.WID]; ws != "main" {
		t.Errorf("term workspace = %q", ws)
	}
}

func TestDestroyPendingWindowThenSwitch(t *testing.T) {
	r, term, chat := partitionedRig(t, Options{})
	term2 := r.h.AddWindow("Term", "t2", 10, geo.Rect{X: 800, Y: 100, W: 500, H: 400})
	r.show(term2)
	r.focus(term2)

	// Parked on work as a pending arrival, then gone before anyone looks.
	r.e.MoveWindowTo("work")
	r.destroy(term2)

	if _, tracked := r.e.winWS[term2.WID]; tracked {
		t.Error("destroyed window still has a workspace")
	}
	for _, p := range r.e.wsPending["work"] {
		if p.wid == term2.WID {
			t.Error("destroyed window still pending on work")
		}
	}

	// The switch must not resurrect it.
	r.e.SwitchTo("work")
	if got := r.e.Current(); got != "work" {
		t.Fatalf("current = %q", got)
	}
	if got := r.gridIDs(); !sameGrid(got, [][]uint32{{chat.WID}}) {
		t.Fatalf("grid = %v", got)
	}
	if _, ok := r.e.store.Index(term2.WID); ok {
		t.Error("destroyed window tiled after switch")
	}
	if err := r.e.store.Coherent(); err != nil {
		t.Errorf("store incoherent after switch: %v", err)
	}

	// And the way back is intact.
	r.e.SwitchTo("main")
	if got := r.gridIDs(); !sameGrid(got, [][]uint32{{term.WID}}) {
		t.Fatalf("grid after return = %v", got)
	}
}

// =========================================================================
// Scratch
// =========================================================================

func scratchRig(t *testing.T) (*testRig, *hosttest.Window, *hosttest.Window) {
	t.Helper()
	r := newTestRig(t, Options{Rules: Rules{
		Workspaces: []string{"main", "work"},
		Scratch:    "scratch",
		AppRules:   map[string]string{"Notes": "scratch"},
	}})
	term := r.h.AddWindow("Term", "t1", 10, geo.Rect{X: 100, Y: 100, W: 600, H: 400})
	r.start()
	r.show(term)
	r.settle()

	notes := r.h.AddWindow("Notes", "n1", 30, geo.Rect{X: 200, Y: 200, W: 400, H: 500})
	r.show(notes)
	r.timers.fire(r.e.opts.CreateParkDelay)
	r.e.runQueued()
	return r, term, notes
}

func TestScratchWindowFloatsAndParks(t *testing.T) {
	r, term, notes := scratchRig(t)

	if !r.e.store.Floating(notes.WID) {
		t.Error("scratch window not floating")
	}
	if !r.e.store.Hidden(notes.WID) {
		t.Error("scratch window not parked")
	}
	if got := r.gridIDs(); !sameGrid(got, [][]uint32{{term.WID}}) {
		t.Fatalf("grid = %v", got)
	}
}

func TestSwitchToScratchOverlays(t *testing.T) {
	r, term, notes := scratchRig(t)

	r.e.SwitchTo("scratch")

	if got := r.e.Current(); got != "scratch" {
		t.Fatalf("current = %q", got)
	}
	if got := r.gridIDs(); got != nil {
		t.Errorf("scratch has a tiled grid: %v", got)
	}
	if !r.e.paused {
		t.Error("router not paused on scratch")
	}
	if r.e.store.Hidden(notes.WID) {
		t.Error("scratch window still hidden")
	}
	if !r.e.store.Hidden(term.WID) {
		t.Error("term not parked under scratch")
	}
	if got := r.h.FocusCalls[len(r.h.FocusCalls)-1]; got != notes.WID {
		t.Errorf("focused %d, want %d", got, notes.WID)
	}
}

func TestLeaveScratchRestoresTiling(t *testing.T) {
	r, term, notes := scratchRig(t)

	r.e.SwitchTo("scratch")
	r.e.SwitchTo("main")

	if r.e.paused {
		t.Error("router still paused after leaving scratch")
	}
	if got := r.gridIDs(); !sameGrid(got, [][]uint32{{term.WID}}) {
		t.Fatalf("grid = %v", got)
	}
	wantRect(t, term, geo.Rect{X: 8, Y: 8, W: 600, H: 884})
	if !r.e.store.Hidden(notes.WID) {
		t.Error("scratch window not parked after leaving")
	}
	if !r.e.store.Floating(notes.WID) {
		t.Error("scratch window lost its floating flag")
	}
}

// =========================================================================
// Screen changes
// =========================================================================

func TestScreenChangeReparksAndRetiles(t *testing.T) {
	r, term, chat := partitionedRig(t, Options{})

	r.h.MainScr.Rect = geo.Rect{X: 0, Y: 0, W: 1920, H: 1080}
	r.h.ScreenWatcher.Fire()
	r.e.runQueued()

	// Parked windows chase the new bottom-right corner.
	wantRect(t, chat, geo.Rect{X: 1919, Y: 1079, W: 600, H: 884})
	// The visible workspace re-tiles to the new canvas.
	wantRect(t, term, geo.Rect{X: 8, Y: 8, W: 600, H: 1064})

	// The stale saved frame is ignored on the next switch-in.
	r.e.SwitchTo("work")
	wantRect(t, chat, geo.Rect{X: 8, Y: 8, W: 600, H: 1064})
	if r.e.screenChanged {
		t.Error("screenChanged flag not consumed")
	}
}

// =========================================================================
// State report
// =========================================================================

func TestReport(t *testing.T) {
	r, term, chat := partitionedRig(t, Options{})
	r.focus(term)

	rep := r.e.Report()
	if rep.Current != "main" {
		t.Errorf("Current = %q", rep.Current)
	}
	if len(rep.Columns) != 1 || rep.Columns[0][0] != term.WID {
		t.Errorf("Columns = %v", rep.Columns)
	}
	if len(rep.Workspaces) != 2 {
		t.Fatalf("Workspaces = %+v", rep.Workspaces)
	}
	for _, ws := range rep.Workspaces {
		switch ws.Name {
		case "main":
			if !ws.Current || len(ws.Windows) != 1 || !ws.Windows[0].Focused {
				t.Errorf("main report = %+v", ws)
			}
		case "work":
			if ws.Current || len(ws.Windows) != 1 || !ws.Windows[0].Hidden {
				t.Errorf("work report = %+v", ws)
			}
			if ws.Windows[0].ID != chat.WID {
				t.Errorf("work member = %d", ws.Windows[0].ID)
			}
		}
	}
}
