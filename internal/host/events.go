package host

// EventKind identifies a window lifecycle event delivered by a WindowFilter.
type EventKind int

const (
	// EventVisible fires when a window appears on the active space.
	EventVisible EventKind = iota
	// EventNotVisible fires when a window is hidden or minimized.
	EventNotVisible
	// EventDestroyed fires when a window is closed.
	EventDestroyed
	// EventFocused fires when a window takes keyboard focus.
	EventFocused
	// EventFullscreened fires when a window enters native fullscreen.
	EventFullscreened
	// EventUnfullscreened fires when a window leaves native fullscreen.
	EventUnfullscreened
)

var eventNames = map[EventKind]string{
	EventVisible:        "windowVisible",
	EventNotVisible:     "windowNotVisible",
	EventDestroyed:      "windowDestroyed",
	EventFocused:        "windowFocused",
	EventFullscreened:   "windowFullscreened",
	EventUnfullscreened: "windowUnfullscreened",
}

func (k EventKind) String() string {
	if s, ok := eventNames[k]; ok {
		return s
	}
	return "windowUnknown"
}
