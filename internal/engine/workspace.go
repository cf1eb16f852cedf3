package engine

import (
	"regexp"
	"slices"

	"github.com/vellum-wm/vellum/internal/ax"
	"github.com/vellum-wm/vellum/internal/host"
)

// setupWorkspaces boots the virtual-workspace layer: compiles the routing
// rules, assigns every visible window to a workspace, hooks the lifecycle
// events, and schedules the first partition for after the settle delay so
// apps restoring their windows at login do not get shuffled mid-restore.
func (e *Engine) setupWorkspaces() error {
	if e.host.MainScreen() == nil {
		return errNoScreen
	}
	e.current = e.opts.Rules.Workspaces[0]
	e.switching = true
	e.compileRules()

	e.lifecycleFilter = e.host.NewWindowFilter()
	for _, w := range e.lifecycleFilter.Windows() {
		wid, err := w.ID()
		if err != nil {
			continue
		}
		e.assignWindow(w, wid, e.resolveWorkspace(w))
	}
	e.lifecycleFilter.Subscribe([]host.EventKind{
		host.EventVisible,
		host.EventDestroyed,
		host.EventFocused,
	}, func(w host.Window, app string, kind host.EventKind) {
		e.Post(func() {
			switch kind {
			case host.EventVisible:
				e.onWindowCreated(w)
			case host.EventDestroyed:
				e.onWindowDestroyed(w)
			case host.EventFocused:
				e.onWindowFocused(w)
			}
		})
	})

	e.screenWatcher = e.host.NewScreenWatcher(func() {
		e.Post(func() { e.screenGeometryChanged() })
	})
	e.screenWatcher.Start()

	e.after(e.opts.SettleDelay, func() { e.partitionExisting() })
	e.logInfo("workspaces %v, starting on %q", e.workspaceNames(), e.current)
	return nil
}

// compileRules compiles the title and jump-target patterns, dropping the
// ones that do not parse.
func (e *Engine) compileRules() {
	compiled := make([]TitleRule, 0, len(e.opts.Rules.TitleRules))
	for _, tr := range e.opts.Rules.TitleRules {
		re, err := regexp.Compile(tr.Pattern)
		if err != nil {
			e.logError("title rule %q: %v", tr.Pattern, err)
			continue
		}
		tr.re = re
		compiled = append(compiled, tr)
	}
	e.opts.Rules.TitleRules = compiled

	for cat, byWS := range e.opts.Rules.JumpTargets {
		for ws, jt := range byWS {
			if jt.Title == "" {
				continue
			}
			re, err := regexp.Compile(jt.Title)
			if err != nil {
				e.logError("jump %s on %s: bad title pattern %q: %v", cat, ws, jt.Title, err)
				delete(byWS, ws)
				continue
			}
			jt.re = re
			byWS[ws] = jt
		}
	}
}

// workspaceNames lists every switchable workspace, scratch included.
func (e *Engine) workspaceNames() []string {
	names := e.opts.Rules.Workspaces
	if s := e.opts.Rules.Scratch; s != "" && !slices.Contains(names, s) {
		names = append(append([]string{}, names...), s)
	}
	return names
}

// knownWorkspace reports whether n names a configured workspace.
func (e *Engine) knownWorkspace(n string) bool {
	if n == "" {
		return false
	}
	return e.isScratch(n) || slices.Contains(e.opts.Rules.Workspaces, n)
}

// isScratch reports whether n is the floating scratch workspace.
func (e *Engine) isScratch(n string) bool {
	return n != "" && n == e.opts.Rules.Scratch
}

// resolveWorkspace routes w: title rules first, then the app rule, then
// the current workspace.
func (e *Engine) resolveWorkspace(w host.Window) string {
	title := w.Title()
	for _, tr := range e.opts.Rules.TitleRules {
		if tr.re != nil && tr.re.MatchString(title) && e.knownWorkspace(tr.Workspace) {
			return tr.Workspace
		}
	}
	if ws, ok := e.opts.Rules.AppRules[w.App()]; ok && e.knownWorkspace(ws) {
		return ws
	}
	return e.current
}

// assignWindow books wid into workspace ws. Scratch members float.
func (e *Engine) assignWindow(w host.Window, wid uint32, ws string) {
	if e.wsWindows[ws] == nil {
		e.wsWindows[ws] = make(map[uint32]bool)
	}
	e.wsWindows[ws][wid] = true
	e.winWS[wid] = ws
	e.winPID[wid] = w.PID()
	if e.isScratch(ws) {
		e.store.SetFloating(wid, true)
	}
	e.cacheJumpWindow(w, ws)
}

// cacheJumpWindow remembers w for every jump category whose target on ws
// matches it, saving a full window scan on the next jump.
func (e *Engine) cacheJumpWindow(w host.Window, ws string) {
	for cat, byWS := range e.opts.Rules.JumpTargets {
		jt, ok := byWS[ws]
		if !ok || jt.App != w.App() {
			continue
		}
		if jt.re != nil && !jt.re.MatchString(w.Title()) {
			continue
		}
		e.jumpWindow[jumpKey(cat, ws)] = w
	}
}

// onWindowCreated handles a window's first appearance.
func (e *Engine) onWindowCreated(w host.Window) {
	wid, err := w.ID()
	if err != nil {
		return
	}
	if _, tracked := e.winWS[wid]; tracked {
		return
	}
	e.adoptWindow(w, wid)
}

// adoptWindow routes a newly seen window into its rule-resolved workspace.
// When that workspace is off screen the window stays visible for a short
// grace period before parking, so the owning app can finish its own
// initial positioning first.
func (e *Engine) adoptWindow(w host.Window, wid uint32) {
	ws := e.resolveWorkspace(w)
	e.assignWindow(w, wid, ws)
	if e.store.Floating(wid) {
		if _, ok := e.store.Index(wid); ok {
			e.removeWindow(wid, false)
			if space, _, ok := e.activeSpace(); ok {
				e.TileSpace(space)
			}
		}
	}
	if ws == e.current {
		return
	}
	e.logInfo("window %d (%s) belongs to %q, parking shortly", wid, w.App(), ws)
	e.after(e.opts.CreateParkDelay, func() { e.deferredPark(w, wid) })
}

// deferredPark hides a window routed to an off-screen workspace, unless
// something moved it onto the current one meanwhile.
func (e *Engine) deferredPark(w host.Window, wid uint32) {
	ws, ok := e.winWS[wid]
	if !ok || ws == e.current {
		return
	}
	if _, err := w.ID(); err != nil {
		return
	}
	e.removeWindow(wid, false)
	e.parkWindow(w, wid)
	e.appendPending(ws, w, wid)
	if space, _, ok := e.activeSpace(); ok {
		e.TileSpace(space)
	}
}

// appendPending books w for materialization when ws next switches in.
func (e *Engine) appendPending(ws string, w host.Window, wid uint32) {
	for _, p := range e.wsPending[ws] {
		if p.wid == wid {
			return
		}
	}
	e.wsPending[ws] = append(e.wsPending[ws], pendingWindow{wid: wid, win: w})
}

func (e *Engine) dropPending(ws string, wid uint32) {
	pend := e.wsPending[ws]
	for i, p := range pend {
		if p.wid == wid {
			e.wsPending[ws] = append(pend[:i], pend[i+1:]...)
			return
		}
	}
}

// parkWindow hides w at the bottom-right screen corner. Position only, so
// bringing it back is a single move.
func (e *Engine) parkWindow(w host.Window, wid uint32) {
	e.store.SetHidden(wid, true)
	e.store.StopWatcher(wid)
	if f, err := w.Frame(); err == nil {
		e.wsFrames[wid] = f
	}
	px, py := e.parkPoint()
	if _, err := e.trans.MoveWindows(e.ctx, []ax.Op{ax.Reposition(wid, e.pidOf(w, wid), px, py)}); err != nil {
		e.logWarn("park %d: %v", wid, err)
	}
}

// onWindowDestroyed forgets a closed window everywhere. A handle that can
// no longer report its id forces a sweep against the live window list.
func (e *Engine) onWindowDestroyed(w host.Window) {
	wid, err := w.ID()
	if err != nil {
		e.reconcileTracked()
		return
	}
	e.scrub(wid)
}

// scrub removes every trace of wid from the workspace tables, the hidden
// and floating sets, the snapshots, and the jump state.
func (e *Engine) scrub(wid uint32) {
	if ws, ok := e.winWS[wid]; ok {
		delete(e.wsWindows[ws], wid)
		if e.wsFocused[ws] == wid {
			delete(e.wsFocused, ws)
		}
		e.dropPending(ws, wid)
	}
	delete(e.winWS, wid)
	delete(e.winPID, wid)
	delete(e.wsFrames, wid)
	e.store.SetHidden(wid, false)
	e.store.SetFloating(wid, false)
	if e.prevJump != nil && e.prevJump.wid == wid {
		e.prevJump = nil
	}
	for key, w := range e.jumpWindow {
		if id, err := w.ID(); err != nil || id == wid {
			delete(e.jumpWindow, key)
		}
	}
	for _, snap := range e.wsSnapshots {
		snap.Remove(wid)
	}
}

// reconcileTracked sweeps the bookkeeping against the live window list,
// dropping every tracked id the OS no longer resolves.
func (e *Engine) reconcileTracked() {
	var dead []uint32
	for wid := range e.winWS {
		if e.host.WindowByID(wid) == nil {
			dead = append(dead, wid)
		}
	}
	if len(dead) == 0 {
		return
	}
	touched := make(map[host.Space]bool)
	for _, wid := range dead {
		if space, ok := e.removeWindow(wid, true); ok {
			touched[space] = true
		}
		e.scrub(wid)
	}
	e.logInfo("dropped %d dead windows", len(dead))
	for s := range touched {
		e.TileSpace(s)
	}
}

// onWindowFocused debounces focus on another workspace's window into a
// switch. Cmd-tab onto a parked window and, one debounce later, its
// workspace comes over.
func (e *Engine) onWindowFocused(w host.Window) {
	if w == nil || e.switching {
		return
	}
	wid, err := w.ID()
	if err != nil {
		return
	}
	ws, tracked := e.winWS[wid]
	if !tracked {
		return
	}
	if ws == e.current {
		e.wsFocused[e.current] = wid
		return
	}
	if e.focusTimer != nil {
		e.focusTimer.Stop()
	}
	e.focusWID = wid
	e.focusTimer = e.after(e.opts.FocusDebounce, func() { e.focusSwitch(wid) })
}

// focusSwitch fires after the debounce: if the window is still focused and
// still foreign, its workspace becomes current.
func (e *Engine) focusSwitch(wid uint32) {
	if e.focusWID != wid {
		return
	}
	f := e.host.FocusedWindow()
	if f == nil {
		return
	}
	fid, err := f.ID()
	if err != nil || fid != wid {
		return
	}
	ws, ok := e.winWS[wid]
	if !ok || ws == e.current {
		return
	}
	e.logInfo("focus on window %d pulls %q over", wid, ws)
	e.wsFocused[ws] = wid
	e.switchTo(ws, false)
}

// partitionExisting runs once after startup settles: every window whose
// workspace is not the current one leaves the screen. Each workspace's
// rows are snapshotted first so switching in restores the arrangement the
// user had, not an arbitrary re-tile.
func (e *Engine) partitionExisting() {
	space, _, ok := e.activeSpace()
	if !ok {
		e.switching = false
		return
	}
	e.pauseEvents()

	for _, ws := range e.workspaceNames() {
		if ws == e.current {
			continue
		}
		members := e.wsWindows[ws]
		if len(members) == 0 {
			continue
		}
		if snap := e.store.Snapshot(space); snap != nil {
			snap.Prune(func(wid uint32) bool { return members[wid] })
			if !snap.Empty() {
				e.wsSnapshots[ws] = snap
			}
		}
		e.parkMembers(space, members)
	}
	e.wsSnapshots[e.current] = e.store.Snapshot(space)

	e.resumeEvents()
	e.TileSpace(space)
	e.switching = false
	e.logInfo("partitioned %d windows across %d workspaces", len(e.winWS), len(e.wsWindows))
}

// parkMembers pulls every member window out of the grid and parks the
// whole set in one batch. Watchers stay allocated but stopped; switching
// back in restarts them.
func (e *Engine) parkMembers(space host.Space, members map[uint32]bool) {
	entries := make([]ax.Entry, 0, len(members))
	for wid := range members {
		entries = append(entries, ax.Entry{WID: wid, PID: e.winPID[wid]})
	}
	if frames, err := e.trans.ReadFrames(e.ctx, entries); err == nil {
		for wid, f := range frames {
			e.wsFrames[wid] = f
		}
	} else {
		e.logWarn("frame read before park: %v", err)
	}

	px, py := e.parkPoint()
	ops := make([]ax.Op, 0, len(members))
	for wid := range members {
		e.store.RemoveWindow(wid)
		e.store.RemoveXPosition(space, wid)
		e.store.SetHidden(wid, true)
		e.store.StopWatcher(wid)
		ops = append(ops, ax.Reposition(wid, e.winPID[wid], px, py))
	}
	if _, err := e.trans.MoveWindows(e.ctx, ops); err != nil {
		e.logWarn("park batch: %v", err)
	}
}

// screenGeometryChanged re-parks all hidden windows against the new screen
// bounds, retiles, and flags the next switch-in for a full refresh.
func (e *Engine) screenGeometryChanged() {
	e.screenChanged = true
	if ids := e.store.HiddenIDs(); len(ids) > 0 {
		px, py := e.parkPoint()
		ops := make([]ax.Op, 0, len(ids))
		for _, wid := range ids {
			ops = append(ops, ax.Reposition(wid, e.winPID[wid], px, py))
		}
		e.trans.MoveWindowsAsync(ops)
	}
	e.logInfo("screen layout changed")
	if space, _, ok := e.activeSpace(); ok {
		e.TileSpace(space)
	}
}
