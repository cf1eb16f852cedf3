package engine

import "github.com/vellum-wm/vellum/internal/host"

func jumpKey(category, workspace string) string {
	return category + ":" + workspace
}

// JumpToApp focuses the category's target window on the current workspace,
// launching the application when no such window exists. With ToggleBack
// set, jumping while already on the target bounces back to wherever the
// previous jump came from.
func (e *Engine) JumpToApp(category string) {
	byWS := e.opts.Rules.JumpTargets[category]
	if byWS == nil {
		e.logWarn("jump: unknown category %q", category)
		return
	}
	target, ok := byWS[e.current]
	if !ok {
		e.logDebug("jump %q: no target on %q", category, e.current)
		return
	}

	if e.opts.Rules.ToggleBack && e.focusedMatches(target) {
		e.ToggleJump()
		return
	}
	e.saveJumpPoint()

	if w := e.cachedJumpWindow(category, target); w != nil {
		if err := w.Focus(); err == nil {
			return
		}
	}
	if w := e.findJumpWindow(target); w != nil {
		e.jumpWindow[jumpKey(category, e.current)] = w
		if err := w.Focus(); err != nil {
			e.logWarn("jump focus: %v", err)
		}
		return
	}

	// Nothing to focus. Bring the app up instead.
	if len(target.Launch) > 0 {
		if err := e.host.Spawn(target.Launch); err != nil {
			e.logWarn("jump launch %v: %v", target.Launch, err)
		}
		return
	}
	e.host.LaunchOrFocus(target.App)
}

// focusedMatches reports whether the focused window is the jump target.
func (e *Engine) focusedMatches(jt JumpTarget) bool {
	f := e.host.FocusedWindow()
	if f == nil || f.App() != jt.App {
		return false
	}
	return jt.re == nil || jt.re.MatchString(f.Title())
}

// cachedJumpWindow validates the remembered hit for the category. The
// title is re-checked on every use: editors and browsers retitle
// constantly and a cached handle drifts off target.
func (e *Engine) cachedJumpWindow(category string, jt JumpTarget) host.Window {
	key := jumpKey(category, e.current)
	w, ok := e.jumpWindow[key]
	if !ok {
		return nil
	}
	wid, err := w.ID()
	if err != nil || !e.wsWindows[e.current][wid] {
		delete(e.jumpWindow, key)
		return nil
	}
	if w.App() != jt.App || (jt.re != nil && !jt.re.MatchString(w.Title())) {
		delete(e.jumpWindow, key)
		return nil
	}
	return w
}

// findJumpWindow scans the live window list for a current-workspace window
// matching the target.
func (e *Engine) findJumpWindow(jt JumpTarget) host.Window {
	if e.lifecycleFilter == nil {
		return nil
	}
	for _, w := range e.lifecycleFilter.Windows() {
		if w.App() != jt.App {
			continue
		}
		wid, err := w.ID()
		if err != nil || !e.wsWindows[e.current][wid] {
			continue
		}
		if jt.re != nil && !jt.re.MatchString(w.Title()) {
			continue
		}
		return w
	}
	return nil
}

// ToggleJump returns to the window and workspace recorded before the last
// jump or switch, saving the present position so toggling again comes
// back.
func (e *Engine) ToggleJump() {
	jp := e.prevJump
	if jp == nil {
		return
	}
	if jp.workspace != e.current {
		if e.wsWindows[jp.workspace][jp.wid] {
			e.wsFocused[jp.workspace] = jp.wid
		}
		e.switchTo(jp.workspace, true)
		return
	}

	// Same workspace: swap the saved point with the focus by hand.
	e.saveJumpPoint()
	if e.prevJump != nil && e.prevJump.wid == jp.wid {
		return
	}
	if w := e.host.WindowByID(jp.wid); w != nil {
		if err := w.Focus(); err != nil {
			e.logWarn("jump back: %v", err)
		}
	}
}

// saveJumpPoint records where the user is so ToggleJump can come back.
func (e *Engine) saveJumpPoint() {
	jp := &jumpPoint{workspace: e.current}
	if f := e.host.FocusedWindow(); f != nil {
		if wid, err := f.ID(); err == nil {
			jp.wid = wid
		}
	}
	e.prevJump = jp
}
