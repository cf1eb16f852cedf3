// Package host defines the collaborators the window-manager core consumes:
// window handles, screens, window filters, watchers, and process helpers.
// The engine depends only on these interfaces; hosttest provides a scripted
// fake and axhost the darwin implementation.
package host

import "github.com/vellum-wm/vellum/internal/geo"

// Space is a Mission-Control space id. All managed windows share one active
// space; virtual workspaces are layered on top of it.
type Space uint64

// Window is an OS window handle. Handles can go stale at any moment; ID and
// Frame return errors instead of panicking on dead windows, and callers are
// expected to drop handles that fail.
type Window interface {
	// ID returns the stable window id. Fails when the window is gone.
	ID() (uint32, error)
	// PID returns the owning process id.
	PID() int32
	// App returns the owning application's name.
	App() string
	// Title returns the current window title.
	Title() string
	// Frame reads the current frame. Fails when the window is gone.
	Frame() (geo.Rect, error)
	// Focus raises the window and gives it keyboard focus.
	Focus() error
	// Maximizable reports whether the window can be resized to fill the
	// screen. Panels and sheets are not.
	Maximizable() bool
	// Tabbed reports whether the window is a native macOS tab group member.
	Tabbed() bool
}

// Screen is a physical display.
type Screen interface {
	ID() uint64
	Frame() geo.Rect
}

// WindowFilter enumerates manageable windows and delivers lifecycle events.
// Each filter instance has its own subscription; the core uses two instances
// so tiling events and workspace hooks do not double-fire.
type WindowFilter interface {
	// Windows returns the currently visible manageable windows.
	Windows() []Window
	// Subscribe registers fn for the given event kinds.
	Subscribe(kinds []EventKind, fn EventFunc)
	// Unsubscribe removes this filter's subscription.
	Unsubscribe()
}

// EventFunc receives a window lifecycle event. appName may be empty when the
// owning application is already gone.
type EventFunc func(w Window, appName string, kind EventKind)

// WindowWatcher observes OS-initiated move/resize of a single window. It is
// stopped around every programmatic write to avoid feedback loops.
type WindowWatcher interface {
	Start()
	Stop()
}

// ScreenWatcher observes display-geometry changes.
type ScreenWatcher interface {
	Start()
	Stop()
}

// Host bundles everything the core needs from the operating system.
type Host interface {
	// FocusedWindow returns the focused window, or nil.
	FocusedWindow() Window
	// WindowByID resolves a window id, or nil when it no longer exists.
	WindowByID(wid uint32) Window
	// MainScreen returns the screen with the current menu bar.
	MainScreen() Screen
	// ActiveSpace returns the active Mission-Control space of s.
	ActiveSpace(s Screen) (Space, error)
	// NewWindowFilter creates an independent filter instance.
	NewWindowFilter() WindowFilter
	// NewWindowWatcher creates a move/resize watcher for w. The watcher is
	// created stopped.
	NewWindowWatcher(w Window, fn func()) WindowWatcher
	// NewScreenWatcher creates a display-geometry watcher. Created stopped.
	NewScreenWatcher(fn func()) ScreenWatcher
	// LaunchOrFocus activates the named application, launching it if needed.
	LaunchOrFocus(app string)
	// Spawn starts argv detached from the core.
	Spawn(argv []string) error
}
