// Package engine is the core of the window manager: the cooperative loop
// that owns all tiling and workspace state, the window lifecycle operations,
// the workspace switch protocol, and the event router. Everything here runs
// on a single goroutine; the OS, timers, and the control daemon enter
// through Post.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vellum-wm/vellum/internal/ax"
	"github.com/vellum-wm/vellum/internal/geo"
	"github.com/vellum-wm/vellum/internal/host"
	"github.com/vellum-wm/vellum/internal/state"
	"github.com/vellum-wm/vellum/internal/tiling"
)

// errNoScreen reports that the host has no usable display.
var errNoScreen = errors.New("engine: no screen available")

var logger *log.Logger

func init() {
	logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "engine",
	})
}

// SetLogLevel adjusts the package logger.
func SetLogLevel(level log.Level) {
	logger.SetLevel(level)
}

// Direction is a movement or focus direction on the column grid.
type Direction int

const (
	// Left moves toward lower column indices.
	Left Direction = iota
	// Right moves toward higher column indices.
	Right
	// Up moves toward lower rows within a column.
	Up
	// Down moves toward higher rows within a column.
	Down
	// Next walks the grid in reading order, wrapping at the end.
	Next
	// Previous walks the grid in reverse reading order, wrapping at the start.
	Previous
)

var directionNames = map[Direction]string{
	Left:     "left",
	Right:    "right",
	Up:       "up",
	Down:     "down",
	Next:     "next",
	Previous: "previous",
}

func (d Direction) String() string {
	if n, ok := directionNames[d]; ok {
		return n
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// ParseDirection resolves a direction name from the CLI or config.
func ParseDirection(s string) (Direction, error) {
	for d, n := range directionNames {
		if n == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// TitleRule routes windows whose title matches Pattern to Workspace.
type TitleRule struct {
	Pattern   string
	Workspace string

	re *regexp.Regexp
}

// JumpTarget names an application (and optionally a title pattern and launch
// command) that a jump category should land on.
type JumpTarget struct {
	App    string
	Title  string
	Launch []string

	re *regexp.Regexp
}

// Rules is the workspace routing configuration.
type Rules struct {
	// Workspaces lists the workspace names; the first is initially current.
	Workspaces []string
	// Scratch names the workspace whose windows float instead of tiling.
	Scratch string
	// AppRules maps application names to workspace names.
	AppRules map[string]string
	// TitleRules are checked before AppRules, in order.
	TitleRules []TitleRule
	// JumpTargets maps category -> workspace -> target.
	JumpTargets map[string]map[string]JumpTarget
	// ToggleBack makes repeated switches and jumps ping-pong.
	ToggleBack bool
}

// Options configures an Engine.
type Options struct {
	Policy tiling.Policy
	Rules  Rules

	// AnimationDuration is how long macOS animates a frame change; ui
	// watchers restart this long (plus a small pad) after every write.
	AnimationDuration time.Duration
	// FocusDebounce delays focus-driven workspace switches.
	FocusDebounce time.Duration
	// CreateParkDelay is how long a window born on an inactive workspace
	// stays visible before it is parked.
	CreateParkDelay time.Duration
	// SettleDelay is the startup grace period before windows are first
	// partitioned into workspaces.
	SettleDelay time.Duration

	// OnSwitch, when set, runs after every completed workspace switch.
	OnSwitch func(workspace string)
}

const (
	defaultAnimationDuration = 200 * time.Millisecond
	defaultFocusDebounce     = 300 * time.Millisecond
	defaultCreateParkDelay   = 100 * time.Millisecond
	defaultSettleDelay       = time.Second

	// watcherPad keeps ui watchers quiet a little past the animation.
	watcherPad = 20 * time.Millisecond

	// maxLogEntries bounds the in-memory log ring.
	maxLogEntries = 200
)

func (o *Options) fillDefaults() {
	if o.AnimationDuration <= 0 {
		o.AnimationDuration = defaultAnimationDuration
	}
	if o.FocusDebounce <= 0 {
		o.FocusDebounce = defaultFocusDebounce
	}
	if o.CreateParkDelay <= 0 {
		o.CreateParkDelay = defaultCreateParkDelay
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = defaultSettleDelay
	}
	if o.Policy.ScreenMargin <= 0 {
		o.Policy.ScreenMargin = 1
	}
}

// LogEntry is one line of the in-memory log ring.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// timer is a cancellable delayed task.
type timer interface {
	Stop() bool
}

// timerFactory schedules fn after d. The production factory routes fn back
// through Post; tests substitute a manual clock.
type timerFactory func(d time.Duration, fn func()) timer

type pendingWindow struct {
	wid uint32
	win host.Window
}

type jumpPoint struct {
	workspace string
	wid       uint32
}

// Engine owns the whole window-management state machine.
type Engine struct {
	host  host.Host
	trans ax.Transport
	store *state.Store
	opts  Options

	ctx   context.Context
	posts chan func()

	// Focus history. prevFocus is the currently focused window; prevPrev
	// is the one focused before it. Tiling uses prevPrev to tell whether
	// the user is scrolling left or right.
	prevFocus     host.Window
	prevPrevFocus host.Window

	// Event router.
	paused          bool
	refreshing      bool
	tilingFilter    host.WindowFilter
	lifecycleFilter host.WindowFilter
	screenWatcher   host.ScreenWatcher

	// Workspace tables.
	current       string
	switching     bool
	wsWindows     map[string]map[uint32]bool
	wsSnapshots   map[string]*state.Snapshot
	wsFrames      map[uint32]geo.Rect
	wsFocused     map[string]uint32
	wsPending     map[string][]pendingWindow
	winWS         map[uint32]string
	winPID        map[uint32]int32
	prevJump      *jumpPoint
	jumpWindow    map[string]host.Window
	screenChanged bool

	// Timers.
	newTimer   timerFactory
	focusTimer timer
	focusWID   uint32

	logs []LogEntry
}

// New builds an engine over the given host and transport. Call Start to
// subscribe to events and Run to process them.
func New(h host.Host, t ax.Transport, opts Options) *Engine {
	opts.fillDefaults()
	e := &Engine{
		host:  h,
		trans: t,
		opts:  opts,
		ctx:   context.Background(),
		posts: make(chan func(), 256),
	}
	e.store = state.New(h, func(wid uint32) {
		e.Post(func() { e.windowMoved(wid) })
	})
	e.newTimer = func(d time.Duration, fn func()) timer {
		return time.AfterFunc(d, func() { e.Post(fn) })
	}
	e.resetWorkspaces()
	return e
}

func (e *Engine) resetWorkspaces() {
	e.wsWindows = make(map[string]map[uint32]bool)
	e.wsSnapshots = make(map[string]*state.Snapshot)
	e.wsFrames = make(map[uint32]geo.Rect)
	e.wsFocused = make(map[string]uint32)
	e.wsPending = make(map[string][]pendingWindow)
	e.winWS = make(map[uint32]string)
	e.winPID = make(map[uint32]int32)
	e.jumpWindow = make(map[string]host.Window)
	e.prevJump = nil
}

// Post queues fn onto the engine goroutine.
func (e *Engine) Post(fn func()) {
	e.posts <- fn
}

// Run processes posted work until ctx is cancelled. It must be the only
// goroutine executing engine state.
func (e *Engine) Run(ctx context.Context) error {
	e.ctx = ctx
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-e.posts:
			fn()
		}
	}
}

// Start wires the engine to the host: clears state, subscribes the tiling
// event router, and begins workspace setup. Must run on the engine
// goroutine (or before Run starts).
func (e *Engine) Start() error {
	if len(e.opts.Rules.Workspaces) == 0 {
		return fmt.Errorf("engine: no workspaces configured")
	}
	e.store.Clear()
	e.resetWorkspaces()
	e.startRouter()
	return e.setupWorkspaces()
}

// Stop detaches from the host and drops all state. Parked windows are left
// where they are; restart re-derives everything from the live window set.
func (e *Engine) Stop() {
	if e.tilingFilter != nil {
		e.tilingFilter.Unsubscribe()
		e.tilingFilter = nil
	}
	if e.lifecycleFilter != nil {
		e.lifecycleFilter.Unsubscribe()
		e.lifecycleFilter = nil
	}
	if e.screenWatcher != nil {
		e.screenWatcher.Stop()
		e.screenWatcher = nil
	}
	if e.focusTimer != nil {
		e.focusTimer.Stop()
		e.focusTimer = nil
	}
	e.store.Clear()
	e.resetWorkspaces()
}

// after schedules fn on the engine goroutine once d elapses.
func (e *Engine) after(d time.Duration, fn func()) timer {
	return e.newTimer(d, fn)
}

// trackFocus records a focus change, shifting the old current focus into
// the previous slot. Repeated events for the same window are ignored.
func (e *Engine) trackFocus(w host.Window) {
	if w == nil {
		return
	}
	if e.prevFocus != nil {
		if prev, err := e.prevFocus.ID(); err == nil {
			if cur, err := w.ID(); err == nil && cur == prev {
				return
			}
		}
	}
	e.prevPrevFocus = e.prevFocus
	e.prevFocus = w
}

// clearFocusRefs drops focus-history references to a departed window.
func (e *Engine) clearFocusRefs(wid uint32) {
	if e.prevFocus != nil {
		if id, err := e.prevFocus.ID(); err != nil || id == wid {
			e.prevFocus = nil
		}
	}
	if e.prevPrevFocus != nil {
		if id, err := e.prevPrevFocus.ID(); err != nil || id == wid {
			e.prevPrevFocus = nil
		}
	}
}

// prevPrevColumn resolves the focus-before-last window's column on space,
// or -1 when it has none.
func (e *Engine) prevPrevColumn(space host.Space) int {
	if e.prevPrevFocus == nil {
		return -1
	}
	wid, err := e.prevPrevFocus.ID()
	if err != nil {
		return -1
	}
	idx, ok := e.store.Index(wid)
	if !ok || idx.Space != space {
		return -1
	}
	return idx.Col
}

// activeSpace resolves the space currently shown on the main screen.
func (e *Engine) activeSpace() (host.Space, host.Screen, bool) {
	screen := e.host.MainScreen()
	if screen == nil {
		return 0, nil, false
	}
	space, err := e.host.ActiveSpace(screen)
	if err != nil || space == 0 {
		return 0, screen, false
	}
	return space, screen, true
}

// parkPoint is the bottom-right on-screen pixel: windows moved there stay
// technically on screen so macOS does not clamp them back, yet invisible.
func (e *Engine) parkPoint() (float64, float64) {
	f := e.host.MainScreen().Frame()
	return f.X2() - 1, f.Y2() - 1
}

func (e *Engine) pidOf(w host.Window, wid uint32) int32 {
	if pid, ok := e.winPID[wid]; ok {
		return pid
	}
	return w.PID()
}

// Current returns the active workspace name.
func (e *Engine) Current() string { return e.current }

// ApplyLayout swaps in a reloaded tiling policy and routing rules, then
// retiles. The workspace set is fixed for the life of the engine; callers
// pass the same names or restart. Must run on the engine goroutine.
func (e *Engine) ApplyLayout(policy tiling.Policy, rules Rules) {
	if policy.ScreenMargin <= 0 {
		policy.ScreenMargin = 1
	}
	e.opts.Policy = policy
	e.opts.Rules.AppRules = rules.AppRules
	e.opts.Rules.TitleRules = rules.TitleRules
	e.opts.Rules.JumpTargets = rules.JumpTargets
	e.opts.Rules.ToggleBack = rules.ToggleBack
	e.compileRules()
	e.Retile()
	e.logInfo("configuration reloaded")
}

// Logs returns a copy of the in-memory log ring.
func (e *Engine) Logs() []LogEntry {
	out := make([]LogEntry, len(e.logs))
	copy(out, e.logs)
	return out
}

func (e *Engine) logf(level, format string, args ...any) {
	entry := LogEntry{
		Time:    time.Now(),
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	}
	e.logs = append(e.logs, entry)
	if len(e.logs) > maxLogEntries {
		e.logs = e.logs[len(e.logs)-maxLogEntries:]
	}
	switch level {
	case "ERROR":
		logger.Error(entry.Message)
	case "WARN":
		logger.Warn(entry.Message)
	case "DEBUG":
		logger.Debug(entry.Message)
	default:
		logger.Info(entry.Message)
	}
}

func (e *Engine) logInfo(format string, args ...any)  { e.logf("INFO", format, args...) }
func (e *Engine) logWarn(format string, args ...any)  { e.logf("WARN", format, args...) }
func (e *Engine) logError(format string, args ...any) { e.logf("ERROR", format, args...) }
func (e *Engine) logDebug(format string, args ...any) { e.logf("DEBUG", format, args...) }
