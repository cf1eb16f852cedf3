package engine

import (
	"github.com/vellum-wm/vellum/internal/ax"
	"github.com/vellum-wm/vellum/internal/host"
	"github.com/vellum-wm/vellum/internal/state"
)

// SwitchTo makes workspace n current. Outgoing windows have their frames
// read and saved before they park; incoming ones come back to the exact
// frames they left with. The restore batch runs synchronously and the park
// batch fire-and-forget, so the incoming workspace appears first.
func (e *Engine) SwitchTo(n string) {
	e.switchTo(n, true)
}

func (e *Engine) switchTo(n string, saveJump bool) {
	if !e.knownWorkspace(n) {
		e.logWarn("switch: unknown workspace %q", n)
		return
	}
	if e.switching {
		e.logDebug("switch to %q dropped, another switch is running", n)
		return
	}
	if n == e.current {
		if !e.opts.Rules.ToggleBack || e.prevJump == nil {
			return
		}
		// Switching to the workspace already up means "take me back".
		back := e.prevJump
		if back.workspace == e.current {
			return
		}
		n = back.workspace
		if e.wsWindows[n][back.wid] {
			e.wsFocused[n] = back.wid
		}
	}
	space, _, ok := e.activeSpace()
	if !ok {
		e.logError("switch: no active space")
		return
	}
	if saveJump {
		e.saveJumpPoint()
	}

	e.switching = true
	e.pauseEvents()
	old := e.current
	e.current = n

	// Remember the focus so coming back lands on the same window.
	if f := e.host.FocusedWindow(); f != nil {
		if wid, err := f.ID(); err == nil && e.wsWindows[old][wid] {
			e.wsFocused[old] = wid
		}
	}

	outgoing := e.visibleMembers(old)
	for _, wid := range outgoing {
		e.store.StopWatcher(wid)
	}
	e.readFramesInto(outgoing)

	if snap := e.store.Snapshot(space); snap != nil {
		e.wsSnapshots[old] = snap
	} else {
		delete(e.wsSnapshots, old)
	}

	restore, missingFrame := e.restoreOps(n)
	park := e.parkOps(outgoing)
	if len(restore) > 0 {
		if _, err := e.trans.MoveWindows(e.ctx, restore); err != nil {
			e.logWarn("restore batch: %v", err)
		}
	}
	if len(park) > 0 {
		e.trans.MoveWindowsAsync(park)
	}

	if e.isScratch(n) {
		e.store.Restore(space, nil)
		e.finishScratchSwitch(old, n)
		return
	}

	snap := e.wsSnapshots[n]
	if snap != nil {
		snap.Prune(func(wid uint32) bool { return e.wsWindows[n][wid] })
	}
	snapEmpty := snap == nil || snap.Empty()
	e.store.Restore(space, snap)
	delete(e.wsSnapshots, n)
	e.store.EnsureWatchers(space)

	drained := e.drainPending(n)
	shouldTile := snapEmpty || drained > 0 || missingFrame || e.screenChanged
	if e.screenChanged {
		e.screenChanged = false
		e.RefreshWindows()
	}
	if shouldTile {
		e.TileSpace(space)
	}

	e.focusOnSwitch(n, space)
	e.resumeEvents()
	e.switching = false
	e.logInfo("switched %q -> %q", old, n)
	if e.opts.OnSwitch != nil {
		e.opts.OnSwitch(n)
	}
}

// finishScratchSwitch completes a switch onto the floating scratch layer.
// The router stays paused while scratch is up; its windows never tile and
// must not perturb the grid underneath.
func (e *Engine) finishScratchSwitch(old, n string) {
	delete(e.wsPending, n)
	for wid := range e.wsWindows[n] {
		e.store.SetFloating(wid, true)
	}

	var target host.Window
	if wid, ok := e.wsFocused[n]; ok && e.wsWindows[n][wid] {
		target = e.host.WindowByID(wid)
	}
	if target == nil {
		for wid := range e.wsWindows[n] {
			if w := e.host.WindowByID(wid); w != nil {
				target = w
				break
			}
		}
	}
	if target != nil {
		if err := target.Focus(); err == nil {
			e.trackFocus(target)
		}
	}

	e.switching = false
	e.logInfo("switched %q -> scratch %q", old, n)
	if e.opts.OnSwitch != nil {
		e.opts.OnSwitch(n)
	}
}

// visibleMembers lists the members of ws currently on screen.
func (e *Engine) visibleMembers(ws string) []uint32 {
	var out []uint32
	for wid := range e.wsWindows[ws] {
		if !e.store.Hidden(wid) {
			out = append(out, wid)
		}
	}
	return out
}

// readFramesInto saves the current frames of the given windows.
func (e *Engine) readFramesInto(wids []uint32) {
	if len(wids) == 0 {
		return
	}
	entries := make([]ax.Entry, 0, len(wids))
	for _, wid := range wids {
		entries = append(entries, ax.Entry{WID: wid, PID: e.winPID[wid]})
	}
	frames, err := e.trans.ReadFrames(e.ctx, entries)
	if err != nil {
		e.logWarn("frame read: %v", err)
		return
	}
	for wid, f := range frames {
		e.wsFrames[wid] = f
	}
}

// restoreOps unhides n's members and builds the moves that bring them back
// to their saved positions. A member with no saved frame is unhidden
// anyway and left for the retile to place.
func (e *Engine) restoreOps(n string) (ops []ax.Op, missingFrame bool) {
	for wid := range e.wsWindows[n] {
		if !e.store.Hidden(wid) {
			continue
		}
		e.store.SetHidden(wid, false)
		f, ok := e.wsFrames[wid]
		if !ok {
			missingFrame = true
			continue
		}
		delete(e.wsFrames, wid)
		ops = append(ops, ax.Reposition(wid, e.winPID[wid], f.X, f.Y))
	}
	return ops, missingFrame
}

// parkOps hides the outgoing windows and builds their park moves.
func (e *Engine) parkOps(wids []uint32) []ax.Op {
	if len(wids) == 0 {
		return nil
	}
	px, py := e.parkPoint()
	ops := make([]ax.Op, 0, len(wids))
	for _, wid := range wids {
		e.store.SetHidden(wid, true)
		ops = append(ops, ax.Reposition(wid, e.winPID[wid], px, py))
	}
	return ops
}

// drainPending materializes windows that were created for n while it was
// away. Returns how many joined the grid.
func (e *Engine) drainPending(n string) int {
	pend := e.wsPending[n]
	if len(pend) == 0 {
		return 0
	}
	delete(e.wsPending, n)
	added := 0
	for _, p := range pend {
		wid, err := p.win.ID()
		if err != nil || wid != p.wid {
			continue
		}
		if !e.wsWindows[n][wid] || e.store.Floating(wid) {
			continue
		}
		if _, ok := e.store.Index(wid); ok {
			continue
		}
		if e.addWindow(p.win) {
			added++
		}
	}
	return added
}

// focusOnSwitch lands focus on the workspace's remembered window, falling
// back to the first window of the grid.
func (e *Engine) focusOnSwitch(n string, space host.Space) {
	var target host.Window
	if wid, ok := e.wsFocused[n]; ok {
		if idx, ok := e.store.Index(wid); ok && idx.Space == space {
			target = e.store.Window(idx)
		}
	}
	if target == nil {
		target = e.store.Window(state.Index{Space: space})
	}
	if target == nil {
		return
	}
	if err := target.Focus(); err != nil {
		e.logDebug("focus on switch: %v", err)
	} else {
		e.trackFocus(target)
	}
}

// MoveWindowTo sends the focused window to workspace n. When n is off
// screen the window parks immediately and a grid neighbor takes focus, so
// the hand-off feels like the window closing.
func (e *Engine) MoveWindowTo(n string) {
	if !e.knownWorkspace(n) {
		e.logWarn("move: unknown workspace %q", n)
		return
	}
	f := e.host.FocusedWindow()
	if f == nil {
		return
	}
	wid, err := f.ID()
	if err != nil {
		return
	}
	src, tracked := e.winWS[wid]
	if !tracked || src == n {
		return
	}

	delete(e.wsWindows[src], wid)
	if e.wsFocused[src] == wid {
		delete(e.wsFocused, src)
	}
	e.dropPending(src, wid)
	e.assignWindow(f, wid, n)
	e.wsFocused[n] = wid
	if e.isScratch(src) && !e.isScratch(n) {
		e.store.SetFloating(wid, false)
	}

	if e.isScratch(n) {
		// Scratch members never tile.
		if _, ok := e.store.Index(wid); ok {
			e.removeWindow(wid, n == e.current)
			if space, _, ok := e.activeSpace(); ok {
				e.TileSpace(space)
			}
		}
		if n != e.current {
			e.parkWindow(f, wid)
			e.appendPending(n, f, wid)
		}
		e.logInfo("window %d -> scratch %q", wid, n)
		return
	}

	if n == e.current {
		if e.addWindow(f) {
			if space, _, ok := e.activeSpace(); ok {
				e.TileSpace(space)
			}
		}
		e.logInfo("window %d -> %q", wid, n)
		return
	}

	// Pick the focus heir before the grid forgets where the window was.
	var heir host.Window
	if idx, ok := e.store.Index(wid); ok {
		for _, d := range []Direction{Down, Up, Left, Right} {
			if w := e.windowInDirection(idx, d); w != nil {
				heir = w
				break
			}
		}
	}
	e.removeWindow(wid, true)
	e.parkWindow(f, wid)
	e.appendPending(n, f, wid)
	if heir != nil {
		if err := heir.Focus(); err != nil {
			e.logDebug("focus heir: %v", err)
		}
	}
	if space, _, ok := e.activeSpace(); ok {
		if snap := e.store.Snapshot(space); snap != nil {
			e.wsSnapshots[e.current] = snap
		} else {
			delete(e.wsSnapshots, e.current)
		}
		if e.store.NumColumns(space) > 0 {
			e.TileSpace(space)
		}
	}
	e.logInfo("window %d -> %q", wid, n)
}
