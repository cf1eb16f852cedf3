package engine

import "github.com/vellum-wm/vellum/internal/host"

// tilingEvents are the lifecycle events the layout reacts to.
var tilingEvents = []host.EventKind{
	host.EventVisible,
	host.EventNotVisible,
	host.EventDestroyed,
	host.EventFocused,
	host.EventFullscreened,
	host.EventUnfullscreened,
}

// startRouter subscribes the layout to the window lifecycle stream. The
// filter calls back from OS threads, so events hop onto the engine
// goroutine before touching any state.
func (e *Engine) startRouter() {
	e.tilingFilter = e.host.NewWindowFilter()
	e.tilingFilter.Subscribe(tilingEvents, func(w host.Window, app string, kind host.EventKind) {
		e.Post(func() { e.routeWindowEvent(w, kind) })
	})
}

// routeWindowEvent applies one lifecycle event to the grid. The router is
// paused during workspace switches, which shuffle windows in ways that
// would otherwise read as a storm of appearances and disappearances.
func (e *Engine) routeWindowEvent(w host.Window, kind host.EventKind) {
	if e.paused {
		return
	}
	switch kind {
	case host.EventVisible, host.EventUnfullscreened:
		if e.addWindow(w) {
			if wid, err := w.ID(); err == nil {
				if idx, ok := e.store.Index(wid); ok {
					e.TileSpace(idx.Space)
				}
			}
		}
	case host.EventNotVisible, host.EventDestroyed, host.EventFullscreened:
		wid, err := w.ID()
		if err != nil {
			// A destroyed window may no longer answer. The workspace
			// sweep catches whatever it left behind.
			return
		}
		if space, ok := e.removeWindow(wid, false); ok {
			e.TileSpace(space)
		}
	case host.EventFocused:
		e.onFocusEvent(w)
	}
}

// onFocusEvent records the focus change and re-anchors the layout on the
// newly focused window.
func (e *Engine) onFocusEvent(w host.Window) {
	wid, err := w.ID()
	if err != nil {
		return
	}
	e.trackFocus(w)
	if e.switching {
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

// pauseEvents stops the router from reacting to window events.
func (e *Engine) pauseEvents() { e.paused = true }

// resumeEvents lets the router react again.
func (e *Engine) resumeEvents() { e.paused = false }
