package engine

import (
	"math"

	"github.com/vellum-wm/vellum/internal/ax"
	"github.com/vellum-wm/vellum/internal/geo"
	"github.com/vellum-wm/vellum/internal/host"
	"github.com/vellum-wm/vellum/internal/state"
	"github.com/vellum-wm/vellum/internal/tiling"
)

// TileSpace recomputes the layout of every column on space and applies the
// resulting moves. The anchor is the focused window when it belongs to the
// space, otherwise the first visible window of the strip.
func (e *Engine) TileSpace(space host.Space) {
	if space == 0 {
		e.logError("tile: no space to tile")
		return
	}
	columns := e.store.Columns(space)
	if len(columns) == 0 {
		return
	}
	screen := e.host.MainScreen()
	if screen == nil {
		return
	}

	anchor := e.anchorFor(space, columns, screen)
	if anchor == nil {
		return
	}
	wid, err := anchor.ID()
	if err != nil {
		e.logWarn("tile: anchor window vanished, refreshing")
		e.RefreshWindows()
		return
	}
	idx, ok := e.store.Index(wid)
	if !ok || idx.Space != space {
		e.logWarn("tile: anchor %d not in the grid, refreshing", wid)
		e.RefreshWindows()
		return
	}

	plan, err := tiling.Compute(tiling.Input{
		Columns:     columns,
		Anchor:      anchor,
		AnchorWID:   wid,
		AnchorCol:   idx.Col,
		PrevPrevCol: e.prevPrevColumn(space),
		Screen:      screen.Frame(),
		SavedX:      e.store.XPositions(space),
		Policy:      e.opts.Policy,
	})
	if err != nil {
		e.logWarn("tile: %v, refreshing", err)
		e.RefreshWindows()
		return
	}
	e.applyMoves(plan.Ops)
	e.store.SetXPositions(space, plan.X)
}

// anchorFor picks the window the layout is built around.
func (e *Engine) anchorFor(space host.Space, columns [][]host.Window, screen host.Screen) host.Window {
	if f := e.host.FocusedWindow(); f != nil {
		if wid, err := f.ID(); err == nil && !e.store.Floating(wid) {
			if idx, ok := e.store.Index(wid); ok && idx.Space == space {
				return f
			}
		}
	}
	return tiling.FirstVisible(columns, screen.Frame().X)
}

// applyMoves pauses the move watchers of the affected windows, issues the
// batch, and restarts the watchers once the move animation has settled.
// Without the pause every frame write would bounce back as a user-move
// event and trigger another layout.
func (e *Engine) applyMoves(ops []ax.Op) {
	if len(ops) == 0 {
		return
	}
	wids := make([]uint32, 0, len(ops))
	for _, op := range ops {
		e.store.StopWatcher(op.WID)
		wids = append(wids, op.WID)
	}
	if _, err := e.trans.MoveWindows(e.ctx, ops); err != nil {
		e.logWarn("move batch: %v", err)
	}
	e.after(e.opts.AnimationDuration+watcherPad, func() {
		for _, wid := range wids {
			if !e.store.Hidden(wid) {
				e.store.StartWatcher(wid)
			}
		}
	})
}

// MoveWindow writes a single window frame under the same watcher discipline
// as a full layout pass.
func (e *Engine) MoveWindow(w host.Window, frame geo.Rect) {
	wid, err := w.ID()
	if err != nil {
		return
	}
	if e.store.Hidden(wid) {
		return
	}
	cur, err := w.Frame()
	if err != nil {
		return
	}
	if cur.Eq(frame) {
		return
	}
	e.applyMoves([]ax.Op{ax.Move(wid, e.pidOf(w, wid), frame)})
}

// addWindow inserts w into the grid as a fresh single-window column and
// attaches a move watcher. Returns true when the grid changed.
func (e *Engine) addWindow(w host.Window) bool {
	wid, err := w.ID()
	if err != nil {
		return false
	}
	if e.store.Hidden(wid) || e.store.Floating(wid) {
		return false
	}
	if _, ok := e.store.Index(wid); ok {
		return false
	}
	if !w.Maximizable() {
		e.logDebug("not tiling %s window %d: not maximizable", w.App(), wid)
		return false
	}
	if w.Tabbed() {
		e.logWarn("not tiling %s window %d: tabbed windows report the frame of their tab group", w.App(), wid)
		return false
	}
	space, _, ok := e.activeSpace()
	if !ok {
		return false
	}

	col := e.insertionColumn(space, wid, w)
	e.store.InsertColumn(space, col, []host.Window{w})
	e.store.CreateWatcher(w)
	return true
}

// insertionColumn places a new column directly right of the previously
// focused window when that window shares the space. Otherwise the column
// slots in by the new window's horizontal center.
func (e *Engine) insertionColumn(space host.Space, wid uint32, w host.Window) int {
	prev := e.prevFocus
	if prev != nil {
		// A freshly created window usually grabs focus before its
		// visible event lands, so the interesting window is one back.
		if pwid, err := prev.ID(); err == nil && pwid == wid {
			prev = e.prevPrevFocus
		}
	}
	if prev != nil {
		if pwid, err := prev.ID(); err == nil {
			if idx, ok := e.store.Index(pwid); ok && idx.Space == space {
				return idx.Col + 1
			}
		}
	}

	f, err := w.Frame()
	if err != nil {
		return e.store.NumColumns(space)
	}
	mid := f.MidX()
	col := 0
	for _, column := range e.store.Columns(space) {
		cf, ok := columnFrame(column)
		if ok && cf.MidX() > mid {
			break
		}
		col++
	}
	return col
}

// removeWindow drops wid from the grid along with its watcher and saved
// position. Unless skipFocus is set, the nearest surviving neighbor
// (below, above, left, right in that order) is focused so the user is not
// dumped onto another app. Returns the space the window occupied.
func (e *Engine) removeWindow(wid uint32, skipFocus bool) (host.Space, bool) {
	idx, ok := e.store.Index(wid)
	if !ok {
		e.store.DeleteWatcher(wid)
		e.clearFocusRefs(wid)
		return 0, false
	}

	var neighbor host.Window
	if !skipFocus {
		for _, d := range []Direction{Down, Up, Left, Right} {
			if w := e.windowInDirection(idx, d); w != nil {
				neighbor = w
				break
			}
		}
	}

	e.store.RemoveWindow(wid)
	e.store.DeleteWatcher(wid)
	e.store.RemoveXPosition(idx.Space, wid)
	e.clearFocusRefs(wid)

	if neighbor != nil {
		if err := neighbor.Focus(); err != nil {
			e.logDebug("focus after remove: %v", err)
		}
	}
	return idx.Space, true
}

// windowInDirection resolves the grid neighbor of idx. Left and Right pick
// the nearest row in the adjacent column. Next and Previous walk the strip
// window by window and wrap around the ends.
func (e *Engine) windowInDirection(idx state.Index, d Direction) host.Window {
	switch d {
	case Down:
		return e.store.Window(state.Index{Space: idx.Space, Col: idx.Col, Row: idx.Row + 1})
	case Up:
		return e.store.Window(state.Index{Space: idx.Space, Col: idx.Col, Row: idx.Row - 1})
	case Left:
		col := e.store.Column(idx.Space, idx.Col-1)
		if len(col) == 0 {
			return nil
		}
		return col[min(idx.Row, len(col)-1)]
	case Right:
		col := e.store.Column(idx.Space, idx.Col+1)
		if len(col) == 0 {
			return nil
		}
		return col[min(idx.Row, len(col)-1)]
	case Next:
		if w := e.store.Window(state.Index{Space: idx.Space, Col: idx.Col, Row: idx.Row + 1}); w != nil {
			return w
		}
		if col := e.store.Column(idx.Space, idx.Col+1); len(col) > 0 {
			return col[0]
		}
		return e.store.Window(state.Index{Space: idx.Space})
	case Previous:
		if w := e.store.Window(state.Index{Space: idx.Space, Col: idx.Col, Row: idx.Row - 1}); w != nil {
			return w
		}
		if col := e.store.Column(idx.Space, idx.Col-1); len(col) > 0 {
			return col[len(col)-1]
		}
		columns := e.store.Columns(idx.Space)
		if len(columns) == 0 {
			return nil
		}
		last := columns[len(columns)-1]
		return last[len(last)-1]
	}
	return nil
}

// FocusDirection moves focus to the grid neighbor of the focused window.
// Focus is asserted a second time once the animation settles because the
// OS occasionally hands it back to the window under the pointer.
func (e *Engine) FocusDirection(d Direction) {
	idx, ok := e.focusedIndex()
	if !ok {
		return
	}
	target := e.windowInDirection(idx, d)
	if target == nil {
		return
	}
	if err := target.Focus(); err != nil {
		e.logDebug("focus %s: %v", d, err)
		return
	}
	e.after(e.opts.AnimationDuration, func() {
		_ = target.Focus()
	})
}

// focusedIndex returns the grid position of the focused window.
func (e *Engine) focusedIndex() (state.Index, bool) {
	f := e.host.FocusedWindow()
	if f == nil {
		return state.Index{}, false
	}
	wid, err := f.ID()
	if err != nil {
		return state.Index{}, false
	}
	return e.store.Index(wid)
}

// SwapWindows exchanges the focused window's column with the adjacent
// column (Left/Right) or the focused window with the adjacent row
// (Up/Down), then retiles. A horizontal swap also hands the window the
// destination column's saved left edge so the layout anchors it there.
func (e *Engine) SwapWindows(d Direction) {
	f := e.host.FocusedWindow()
	if f == nil {
		return
	}
	wid, err := f.ID()
	if err != nil {
		return
	}
	idx, ok := e.store.Index(wid)
	if !ok {
		return
	}

	switch d {
	case Left:
		if idx.Col == 0 {
			return
		}
		if x, ok := e.columnLeftEdge(idx.Space, idx.Col-1); ok {
			e.store.SetXPosition(idx.Space, wid, x)
		}
		e.store.SwapColumns(idx.Space, idx.Col-1, idx.Col)
	case Right:
		if idx.Col >= e.store.NumColumns(idx.Space)-1 {
			return
		}
		if x, ok := e.columnLeftEdge(idx.Space, idx.Col+1); ok {
			e.store.SetXPosition(idx.Space, wid, x)
		}
		e.store.SwapColumns(idx.Space, idx.Col, idx.Col+1)
	case Up:
		if idx.Row == 0 {
			return
		}
		e.store.SwapRows(idx.Space, idx.Col, idx.Row-1, idx.Row)
	case Down:
		e.store.SwapRows(idx.Space, idx.Col, idx.Row, idx.Row+1)
	default:
		return
	}
	e.TileSpace(idx.Space)
}

// Slurp moves the focused window to the bottom of the column on its left
// and equalizes the heights of the merged column.
func (e *Engine) Slurp() {
	idx, ok := e.focusedIndex()
	if !ok || idx.Col == 0 {
		return
	}
	w := e.store.Window(idx)
	if w == nil {
		return
	}
	wid, err := w.ID()
	if err != nil {
		return
	}

	e.store.RemoveWindow(wid)
	target := idx.Col - 1
	merged := append(append([]host.Window{}, e.store.Column(idx.Space, target)...), w)
	e.store.SetColumn(idx.Space, target, merged)
	e.equalizeColumn(idx.Space, target)
	e.TileSpace(idx.Space)
}

// Barf pops the focused window out of its column into a new column on the
// right, then equalizes what remains of the source column.
func (e *Engine) Barf() {
	idx, ok := e.focusedIndex()
	if !ok {
		return
	}
	col := e.store.Column(idx.Space, idx.Col)
	if len(col) < 2 {
		return
	}
	w := col[idx.Row]

	rest := append([]host.Window{}, col[:idx.Row]...)
	rest = append(rest, col[idx.Row+1:]...)
	e.store.SetColumn(idx.Space, idx.Col, rest)
	e.store.InsertColumn(idx.Space, idx.Col+1, []host.Window{w})
	e.equalizeColumn(idx.Space, idx.Col)
	e.TileSpace(idx.Space)
}

// equalizeColumn gives every window in the column the same height inside
// the canvas, with the remainder pixels going to the last row.
func (e *Engine) equalizeColumn(space host.Space, colIdx int) {
	col := e.store.Column(space, colIdx)
	if len(col) == 0 {
		return
	}
	screen := e.host.MainScreen()
	if screen == nil {
		return
	}
	canvas := tiling.Canvas(screen.Frame(), e.opts.Policy)
	n := float64(len(col))
	h := math.Max(0, math.Floor((canvas.H-(n-1)*e.opts.Policy.Gaps.Bottom)/n))
	x := canvas.X
	if f, ok := columnFrame(col); ok {
		x = f.X
	}
	ops, _ := tiling.TileColumn(col, tiling.Bounds{X: x, Y: canvas.Y, Y2: canvas.Y2()},
		e.opts.Policy.Gaps.Bottom, tiling.ColumnSpec{Height: h})
	e.applyMoves(ops)
}

// RefreshWindows reconciles the grid with the real window list: windows
// missing from the grid are added, windows indexed on a stale space move
// over, and every touched space is retiled. Windows the workspace layer
// has never seen are routed through the usual assignment rules first.
func (e *Engine) RefreshWindows() {
	if e.refreshing || e.tilingFilter == nil {
		return
	}
	e.refreshing = true
	defer func() { e.refreshing = false }()

	space, _, ok := e.activeSpace()
	if !ok {
		return
	}
	touched := make(map[host.Space]bool)
	for _, w := range e.tilingFilter.Windows() {
		wid, err := w.ID()
		if err != nil {
			continue
		}
		if _, tracked := e.winWS[wid]; !tracked && e.current != "" {
			e.adoptWindow(w, wid)
		}
		idx, indexed := e.store.Index(wid)
		switch {
		case !indexed:
			if e.addWindow(w) {
				touched[space] = true
			}
		case idx.Space != space:
			e.removeWindow(wid, true)
			touched[idx.Space] = true
			if e.addWindow(w) {
				touched[space] = true
			}
		}
	}
	for s := range touched {
		e.TileSpace(s)
	}
}

// Retile recomputes the current space's layout.
func (e *Engine) Retile() {
	space, _, ok := e.activeSpace()
	if !ok {
		return
	}
	e.TileSpace(space)
}

// windowMoved handles a user-driven move or resize reported by a window's
// watcher.
func (e *Engine) windowMoved(wid uint32) {
	if e.paused || e.switching {
		return
	}
	if e.store.Hidden(wid) || e.store.Floating(wid) {
		return
	}
	idx, ok := e.store.Index(wid)
	if !ok {
		return
	}
	e.TileSpace(idx.Space)
}

// columnFrame returns the frame of the column's first readable window.
func columnFrame(col []host.Window) (geo.Rect, bool) {
	for _, w := range col {
		if f, err := w.Frame(); err == nil {
			return f, true
		}
	}
	return geo.Rect{}, false
}

// columnLeftEdge reports the saved left edge of a column, falling back to
// the first readable frame.
func (e *Engine) columnLeftEdge(space host.Space, colIdx int) (float64, bool) {
	col := e.store.Column(space, colIdx)
	for _, w := range col {
		wid, err := w.ID()
		if err != nil {
			continue
		}
		if x, ok := e.store.XPosition(space, wid); ok {
			return x, true
		}
	}
	if f, ok := columnFrame(col); ok {
		return f.X, true
	}
	return 0, false
}
