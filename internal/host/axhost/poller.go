// Package axhost adapts macOS to the host interfaces: window enumeration
// via the CoreGraphics window list, focus and raise via Accessibility, and
// lifecycle events synthesized by a polling differ. The core never imports
// this package directly; cmd/vellum wires it in.
package axhost

import (
	"errors"
	"sync"
	"time"

	"github.com/vellum-wm/vellum/internal/geo"
	"github.com/vellum-wm/vellum/internal/host"
)

// ErrNotTrusted reports missing Accessibility permission.
var ErrNotTrusted = errors.New("axhost: process is not trusted for Accessibility")

// pollInterval is how often the live window set is re-read. macOS has no
// public subscription for other apps' window lifecycles, so the differ is
// the event source.
const pollInterval = 200 * time.Millisecond

// winInfo is one window as seen by a snapshot pass.
type winInfo struct {
	WID   uint32
	PID   int32
	App   string
	Title string
	Frame geo.Rect
}

// snapshotFunc reads the current window set and the focused window id
// (zero when none).
type snapshotFunc func() ([]winInfo, uint32)

// poller diffs consecutive snapshots into lifecycle events and watcher
// fires. resolve turns a winInfo into the handle delivered to subscribers.
type poller struct {
	snap     snapshotFunc
	resolve  func(winInfo) host.Window
	interval time.Duration

	mu       sync.Mutex
	last     map[uint32]winInfo
	order    []uint32
	focused  uint32
	primed   bool
	filters  []*pollFilter
	watchers []*pollWatcher

	stop chan struct{}
	once sync.Once
}

func newPoller(snap snapshotFunc, resolve func(winInfo) host.Window) *poller {
	return &poller{
		snap:     snap,
		resolve:  resolve,
		interval: pollInterval,
		last:     make(map[uint32]winInfo),
		stop:     make(chan struct{}),
	}
}

func (p *poller) start() {
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.tick()
			}
		}
	}()
}

func (p *poller) shutdown() {
	p.once.Do(func() { close(p.stop) })
}

// known reports whether wid was present in the latest snapshot.
func (p *poller) known(wid uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.last[wid]
	return ok
}

// info returns wid's latest snapshot entry.
func (p *poller) info(wid uint32) (winInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.last[wid]
	return w, ok
}

// current lists the latest snapshot in on-screen order.
func (p *poller) current() []winInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]winInfo, 0, len(p.order))
	for _, wid := range p.order {
		if w, ok := p.last[wid]; ok {
			out = append(out, w)
		}
	}
	return out
}

// tick reads one snapshot and dispatches the differences. The first pass
// only primes the baseline; startup windows are picked up by the engine's
// own initial scan, not as a burst of visible events.
func (p *poller) tick() {
	wins, focused := p.snap()

	next := make(map[uint32]winInfo, len(wins))
	order := make([]uint32, 0, len(wins))
	for _, w := range wins {
		next[w.WID] = w
		order = append(order, w.WID)
	}

	p.mu.Lock()
	prev := p.last
	prevFocus := p.focused
	primed := p.primed
	p.last = next
	p.order = order
	p.focused = focused
	p.primed = true
	filters := make([]*pollFilter, len(p.filters))
	copy(filters, p.filters)
	watchers := make([]*pollWatcher, len(p.watchers))
	copy(watchers, p.watchers)
	p.mu.Unlock()

	if !primed {
		return
	}

	for _, w := range wins {
		if _, ok := prev[w.WID]; !ok {
			p.deliver(filters, p.resolve(w), w.App, host.EventVisible)
		}
	}
	for wid, w := range prev {
		if _, ok := next[wid]; !ok {
			p.deliver(filters, p.resolve(w), w.App, host.EventDestroyed)
		}
	}
	if focused != 0 && focused != prevFocus {
		if w, ok := next[focused]; ok {
			p.deliver(filters, p.resolve(w), w.App, host.EventFocused)
		}
	}

	for _, watcher := range watchers {
		watcher.observe(prev, next)
	}
}

func (p *poller) deliver(filters []*pollFilter, w host.Window, app string, kind host.EventKind) {
	for _, f := range filters {
		f.deliver(w, app, kind)
	}
}

func (p *poller) newFilter() *pollFilter {
	f := &pollFilter{p: p}
	p.mu.Lock()
	p.filters = append(p.filters, f)
	p.mu.Unlock()
	return f
}

func (p *poller) newWatcher(wid uint32, fn func()) *pollWatcher {
	w := &pollWatcher{wid: wid, fn: fn}
	p.mu.Lock()
	p.watchers = append(p.watchers, w)
	p.mu.Unlock()
	return w
}

// pollFilter implements host.WindowFilter over the poller.
type pollFilter struct {
	p *poller

	mu         sync.Mutex
	kinds      map[host.EventKind]bool
	fn         host.EventFunc
	subscribed bool
}

// Windows implements host.WindowFilter.
func (f *pollFilter) Windows() []host.Window {
	infos := f.p.current()
	out := make([]host.Window, 0, len(infos))
	for _, w := range infos {
		out = append(out, f.p.resolve(w))
	}
	return out
}

// Subscribe implements host.WindowFilter.
func (f *pollFilter) Subscribe(kinds []host.EventKind, fn host.EventFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = make(map[host.EventKind]bool, len(kinds))
	for _, k := range kinds {
		f.kinds[k] = true
	}
	f.fn = fn
	f.subscribed = true
}

// Unsubscribe implements host.WindowFilter.
func (f *pollFilter) Unsubscribe() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = false
	f.fn = nil
}

func (f *pollFilter) deliver(w host.Window, app string, kind host.EventKind) {
	f.mu.Lock()
	fn := f.fn
	ok := f.subscribed && f.kinds[kind]
	f.mu.Unlock()
	if ok && fn != nil {
		fn(w, app, kind)
	}
}

// pollWatcher implements host.WindowWatcher: it fires when its window's
// frame differs between consecutive snapshots while started.
type pollWatcher struct {
	wid uint32
	fn  func()

	mu      sync.Mutex
	started bool
}

// Start implements host.WindowWatcher.
func (w *pollWatcher) Start() {
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
}

// Stop implements host.WindowWatcher.
func (w *pollWatcher) Stop() {
	w.mu.Lock()
	w.started = false
	w.mu.Unlock()
}

func (w *pollWatcher) observe(prev, next map[uint32]winInfo) {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started || w.fn == nil {
		return
	}
	before, wasThere := prev[w.wid]
	after, isThere := next[w.wid]
	if wasThere && isThere && before.Frame != after.Frame {
		w.fn()
	}
}

// screenPoller implements host.ScreenWatcher by polling display geometry.
type screenPoller struct {
	read func() geo.Rect
	fn   func()

	mu      sync.Mutex
	started bool
	lastSet bool
	last    geo.Rect
	stop    chan struct{}
	once    sync.Once
}

func newScreenPoller(read func() geo.Rect, fn func()) *screenPoller {
	s := &screenPoller{read: read, fn: fn, stop: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
	return s
}

func (s *screenPoller) tick() {
	frame := s.read()
	s.mu.Lock()
	started := s.started
	changed := s.lastSet && frame != s.last
	s.last = frame
	s.lastSet = true
	s.mu.Unlock()
	if started && changed && s.fn != nil {
		s.fn()
	}
}

// Start implements host.ScreenWatcher.
func (s *screenPoller) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
}

// Stop implements host.ScreenWatcher.
func (s *screenPoller) Stop() {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
}

func (s *screenPoller) shutdown() {
	s.once.Do(func() { close(s.stop) })
}
