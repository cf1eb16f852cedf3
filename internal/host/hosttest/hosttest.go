// Package hosttest provides a deterministic, scriptable host implementation
// for core tests. Windows, screens, focus, and lifecycle events are all under
// test control; nothing here talks to the operating system.
package hosttest

import (
	"errors"
	"fmt"

	"github.com/vellum-wm/vellum/internal/geo"
	"github.com/vellum-wm/vellum/internal/host"
)

// ErrGone is returned by handle reads on a destroyed window.
var ErrGone = errors.New("hosttest: window gone")

// Window is a scriptable window handle.
type Window struct {
	WID         uint32
	Pid         int32
	AppName     string
	WinTitle    string
	Rect        geo.Rect
	Dead        bool
	CanMaximize bool
	IsTabbed    bool
	FocusErr    error

	h *Host
}

// ID implements host.Window.
func (w *Window) ID() (uint32, error) {
	if w.Dead {
		return 0, ErrGone
	}
	return w.WID, nil
}

// PID implements host.Window.
func (w *Window) PID() int32 { return w.Pid }

// App implements host.Window.
func (w *Window) App() string { return w.AppName }

// Title implements host.Window.
func (w *Window) Title() string { return w.WinTitle }

// Frame implements host.Window.
func (w *Window) Frame() (geo.Rect, error) {
	if w.Dead {
		return geo.Rect{}, ErrGone
	}
	return w.Rect, nil
}

// Focus records the call and moves host focus here. It does not fire a
// focus event; tests decide when events are delivered.
func (w *Window) Focus() error {
	if w.FocusErr != nil {
		return w.FocusErr
	}
	if w.Dead {
		return ErrGone
	}
	w.h.focused = w
	w.h.FocusCalls = append(w.h.FocusCalls, w.WID)
	return nil
}

// Maximizable implements host.Window.
func (w *Window) Maximizable() bool { return w.CanMaximize }

// Tabbed implements host.Window.
func (w *Window) Tabbed() bool { return w.IsTabbed }

// Destroy marks the window dead so handle reads fail from now on.
func (w *Window) Destroy() { w.Dead = true }

// Screen is a scriptable display.
type Screen struct {
	SID  uint64
	Rect geo.Rect
}

// ID implements host.Screen.
func (s *Screen) ID() uint64 { return s.SID }

// Frame implements host.Screen.
func (s *Screen) Frame() geo.Rect { return s.Rect }

// Watcher records start/stop and forwards manual fires while started.
type Watcher struct {
	Win     *Window
	Started bool
	Starts  int
	Stops   int
	fn      func()
}

// Start implements host.WindowWatcher.
func (w *Watcher) Start() { w.Started = true; w.Starts++ }

// Stop implements host.WindowWatcher.
func (w *Watcher) Stop() { w.Started = false; w.Stops++ }

// Fire invokes the callback if the watcher is currently started.
func (w *Watcher) Fire() {
	if w.Started && w.fn != nil {
		w.fn()
	}
}

// ScreenWatcher records start/stop and forwards manual fires while started.
type ScreenWatcher struct {
	Started bool
	fn      func()
}

// Start implements host.ScreenWatcher.
func (s *ScreenWatcher) Start() { s.Started = true }

// Stop implements host.ScreenWatcher.
func (s *ScreenWatcher) Stop() { s.Started = false }

// Fire invokes the callback if the watcher is started.
func (s *ScreenWatcher) Fire() {
	if s.Started && s.fn != nil {
		s.fn()
	}
}

// Filter is a scriptable window filter. Events are delivered only through
// Host.Fire.
type Filter struct {
	h          *Host
	kinds      map[host.EventKind]bool
	fn         host.EventFunc
	subscribed bool
}

// Windows implements host.WindowFilter.
func (f *Filter) Windows() []host.Window {
	var out []host.Window
	for _, w := range f.h.windows {
		if !w.Dead {
			out = append(out, w)
		}
	}
	return out
}

// Subscribe implements host.WindowFilter.
func (f *Filter) Subscribe(kinds []host.EventKind, fn host.EventFunc) {
	f.kinds = make(map[host.EventKind]bool, len(kinds))
	for _, k := range kinds {
		f.kinds[k] = true
	}
	f.fn = fn
	f.subscribed = true
}

// Unsubscribe implements host.WindowFilter.
func (f *Filter) Unsubscribe() {
	f.subscribed = false
	f.fn = nil
}

// Host is the scripted host. Zero value is not usable; call New.
type Host struct {
	MainScr       *Screen
	Space         host.Space
	SpaceErr      error
	FocusCalls    []uint32
	Launched      []string
	Spawned       [][]string
	Watchers      []*Watcher
	ScreenWatcher *ScreenWatcher

	windows []*Window
	focused *Window
	filters []*Filter
	nextID  uint32
}

// New returns a host with one 1440x900 screen on space 1.
func New() *Host {
	return &Host{
		MainScr: &Screen{SID: 1, Rect: geo.Rect{X: 0, Y: 0, W: 1440, H: 900}},
		Space:   1,
		nextID:  100,
	}
}

// AddWindow creates and registers a live, maximizable window.
func (h *Host) AddWindow(app, title string, pid int32, r geo.Rect) *Window {
	h.nextID++
	w := &Window{
		WID:         h.nextID,
		Pid:         pid,
		AppName:     app,
		WinTitle:    title,
		Rect:        r,
		CanMaximize: true,
		h:           h,
	}
	h.windows = append(h.windows, w)
	return w
}

// SetFocused moves focus without firing an event.
func (h *Host) SetFocused(w *Window) { h.focused = w }

// Fire delivers a lifecycle event to every subscribed filter that asked for
// the kind, in subscription order.
func (h *Host) Fire(w *Window, kind host.EventKind) {
	for _, f := range h.filters {
		if f.subscribed && f.kinds[kind] && f.fn != nil {
			f.fn(w, w.AppName, kind)
		}
	}
}

// WatcherFor returns the most recent watcher created for the window, or nil.
func (h *Host) WatcherFor(wid uint32) *Watcher {
	for i := len(h.Watchers) - 1; i >= 0; i-- {
		if h.Watchers[i].Win != nil && h.Watchers[i].Win.WID == wid {
			return h.Watchers[i]
		}
	}
	return nil
}

// FocusedWindow implements host.Host.
func (h *Host) FocusedWindow() host.Window {
	if h.focused == nil {
		return nil
	}
	return h.focused
}

// WindowByID implements host.Host.
func (h *Host) WindowByID(wid uint32) host.Window {
	for _, w := range h.windows {
		if w.WID == wid && !w.Dead {
			return w
		}
	}
	return nil
}

// MainScreen implements host.Host. A nil MainScr comes back as a nil
// interface, not a typed nil, so callers can compare against nil.
func (h *Host) MainScreen() host.Screen {
	if h.MainScr == nil {
		return nil
	}
	return h.MainScr
}

// ActiveSpace implements host.Host.
func (h *Host) ActiveSpace(host.Screen) (host.Space, error) {
	if h.SpaceErr != nil {
		return 0, h.SpaceErr
	}
	return h.Space, nil
}

// NewWindowFilter implements host.Host.
func (h *Host) NewWindowFilter() host.WindowFilter {
	f := &Filter{h: h}
	h.filters = append(h.filters, f)
	return f
}

// NewWindowWatcher implements host.Host.
func (h *Host) NewWindowWatcher(w host.Window, fn func()) host.WindowWatcher {
	watcher := &Watcher{fn: fn}
	if fw, ok := w.(*Window); ok {
		watcher.Win = fw
	}
	h.Watchers = append(h.Watchers, watcher)
	return watcher
}

// NewScreenWatcher implements host.Host.
func (h *Host) NewScreenWatcher(fn func()) host.ScreenWatcher {
	h.ScreenWatcher = &ScreenWatcher{fn: fn}
	return h.ScreenWatcher
}

// LaunchOrFocus implements host.Host.
func (h *Host) LaunchOrFocus(app string) {
	h.Launched = append(h.Launched, app)
}

// Spawn implements host.Host.
func (h *Host) Spawn(argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("hosttest: empty argv")
	}
	h.Spawned = append(h.Spawned, argv)
	return nil
}
