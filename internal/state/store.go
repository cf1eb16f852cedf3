// Package state holds the authoritative in-memory model of the tiling core:
// the per-space column grid, its reverse index, the x-position memo, the
// hidden and floating sets, and the ui-watcher registry. All access is
// through explicit methods; empty inner containers are purged on every write
// and the reverse index is rebuilt transactionally with structural changes.
//
// The store is single-owner: everything runs on the engine goroutine, so
// there is no locking here.
package state

import (
	"fmt"

	"github.com/vellum-wm/vellum/internal/host"
)

// Index locates a window in the column grid.
type Index struct {
	Space host.Space
	Col   int
	Row   int
}

// Store owns the tiling data model. Create with New.
type Store struct {
	h       host.Host
	onMoved func(wid uint32)

	grid     map[host.Space][][]host.Window
	index    map[uint32]Index
	xpos     map[host.Space]map[uint32]float64
	hidden   map[uint32]bool
	floating map[uint32]bool
	watchers map[uint32]host.WindowWatcher
}

// New returns an empty store. onMoved is invoked when a started ui-watcher
// observes an OS-initiated move or resize; it may be nil.
func New(h host.Host, onMoved func(wid uint32)) *Store {
	s := &Store{h: h, onMoved: onMoved}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.grid = make(map[host.Space][][]host.Window)
	s.index = make(map[uint32]Index)
	s.xpos = make(map[host.Space]map[uint32]float64)
	s.hidden = make(map[uint32]bool)
	s.floating = make(map[uint32]bool)
	s.watchers = make(map[uint32]host.WindowWatcher)
}

// Clear stops every watcher and resets the store. Used on start and stop.
func (s *Store) Clear() {
	for _, w := range s.watchers {
		w.Stop()
	}
	s.reset()
}

// =========================================================================
// Column grid
// =========================================================================

// Columns returns the space's columns. The returned slices are the store's
// own; callers must treat them as read-only and mutate through methods.
func (s *Store) Columns(space host.Space) [][]host.Window {
	return s.grid[space]
}

// NumColumns returns the column count of space.
func (s *Store) NumColumns(space host.Space) int {
	return len(s.grid[space])
}

// Column returns one column, or nil when out of range.
func (s *Store) Column(space host.Space, col int) []host.Window {
	cols := s.grid[space]
	if col < 0 || col >= len(cols) {
		return nil
	}
	return cols[col]
}

// Window returns the window at idx, or nil.
func (s *Store) Window(idx Index) host.Window {
	col := s.Column(idx.Space, idx.Col)
	if idx.Row < 0 || idx.Row >= len(col) {
		return nil
	}
	return col[idx.Row]
}

// InsertWindow places w at (col, row) in space, creating the space entry as
// needed. col may equal the current column count to append a new column;
// row may equal the target column's length to append at its bottom.
func (s *Store) InsertWindow(space host.Space, col, row int, w host.Window) {
	cols := s.grid[space]
	if col < 0 {
		col = 0
	}
	if col > len(cols) {
		col = len(cols)
	}

	if col == len(cols) {
		cols = append(cols, []host.Window{w})
	} else {
		c := cols[col]
		if row < 0 {
			row = 0
		}
		if row > len(c) {
			row = len(c)
		}
		c = append(c, nil)
		copy(c[row+1:], c[row:])
		c[row] = w
		cols[col] = c
	}
	s.grid[space] = cols
	s.reindexSpace(space)
}

// InsertColumn inserts a whole column at position col.
func (s *Store) InsertColumn(space host.Space, col int, windows []host.Window) {
	if len(windows) == 0 {
		return
	}
	cols := s.grid[space]
	if col < 0 {
		col = 0
	}
	if col > len(cols) {
		col = len(cols)
	}
	cols = append(cols, nil)
	copy(cols[col+1:], cols[col:])
	cols[col] = windows
	s.grid[space] = cols
	s.reindexSpace(space)
}

// SetColumn replaces the column at col. An empty replacement purges the
// column; purging the last column drops the space entry.
func (s *Store) SetColumn(space host.Space, col int, windows []host.Window) {
	cols := s.grid[space]
	if col < 0 || col >= len(cols) {
		return
	}
	if len(windows) == 0 {
		cols = append(cols[:col], cols[col+1:]...)
	} else {
		cols[col] = windows
	}
	if len(cols) == 0 {
		delete(s.grid, space)
	} else {
		s.grid[space] = cols
	}
	s.reindexSpace(space)
}

// RemoveWindow deletes wid from the grid. Empty columns and spaces are
// purged. Returns the former index when the window was present.
func (s *Store) RemoveWindow(wid uint32) (Index, bool) {
	idx, ok := s.index[wid]
	if !ok {
		return Index{}, false
	}
	col := s.grid[idx.Space][idx.Col]
	col = append(col[:idx.Row], col[idx.Row+1:]...)
	s.SetColumn(idx.Space, idx.Col, col)
	return idx, true
}

// SwapColumns exchanges two whole columns.
func (s *Store) SwapColumns(space host.Space, a, b int) {
	cols := s.grid[space]
	if a < 0 || b < 0 || a >= len(cols) || b >= len(cols) || a == b {
		return
	}
	cols[a], cols[b] = cols[b], cols[a]
	s.reindexSpace(space)
}

// SwapRows exchanges two rows within a column.
func (s *Store) SwapRows(space host.Space, col, a, b int) {
	c := s.Column(space, col)
	if a < 0 || b < 0 || a >= len(c) || b >= len(c) || a == b {
		return
	}
	c[a], c[b] = c[b], c[a]
	s.reindexSpace(space)
}

// Index resolves wid to its grid position.
func (s *Store) Index(wid uint32) (Index, bool) {
	idx, ok := s.index[wid]
	return idx, ok
}

// WindowIDs returns the set of wids currently in the space's grid.
func (s *Store) WindowIDs(space host.Space) map[uint32]bool {
	out := make(map[uint32]bool)
	for wid, idx := range s.index {
		if idx.Space == space {
			out[wid] = true
		}
	}
	return out
}

// Spaces returns every space with at least one column.
func (s *Store) Spaces() []host.Space {
	out := make([]host.Space, 0, len(s.grid))
	for space := range s.grid {
		out = append(out, space)
	}
	return out
}

// reindexSpace rebuilds the reverse index for one space. Windows whose
// handle no longer resolves stay in the grid but drop out of the index;
// they are cleaned up by the destroy path.
func (s *Store) reindexSpace(space host.Space) {
	for wid, idx := range s.index {
		if idx.Space == space {
			delete(s.index, wid)
		}
	}
	for c, col := range s.grid[space] {
		for r, w := range col {
			wid, err := w.ID()
			if err != nil {
				continue
			}
			s.index[wid] = Index{Space: space, Col: c, Row: r}
		}
	}
}

// =========================================================================
// x-position memo
// =========================================================================

// XPositions returns the space's memo map, or nil. Callers must not mutate.
func (s *Store) XPositions(space host.Space) map[uint32]float64 {
	return s.xpos[space]
}

// XPosition returns wid's saved left edge in space.
func (s *Store) XPosition(space host.Space, wid uint32) (float64, bool) {
	x, ok := s.xpos[space][wid]
	return x, ok
}

// SetXPositions replaces the space's memo. Empty or nil clears the entry.
func (s *Store) SetXPositions(space host.Space, m map[uint32]float64) {
	if len(m) == 0 {
		delete(s.xpos, space)
		return
	}
	s.xpos[space] = m
}

// SetXPosition records one window's left edge, creating the space entry.
func (s *Store) SetXPosition(space host.Space, wid uint32, x float64) {
	m := s.xpos[space]
	if m == nil {
		m = make(map[uint32]float64)
		s.xpos[space] = m
	}
	m[wid] = x
}

// RemoveXPosition drops wid's memo entry, purging the space entry when it
// empties.
func (s *Store) RemoveXPosition(space host.Space, wid uint32) {
	m := s.xpos[space]
	if m == nil {
		return
	}
	delete(m, wid)
	if len(m) == 0 {
		delete(s.xpos, space)
	}
}

// =========================================================================
// Hidden and floating sets
// =========================================================================

// SetHidden marks or unmarks wid as parked.
func (s *Store) SetHidden(wid uint32, hidden bool) {
	if hidden {
		s.hidden[wid] = true
	} else {
		delete(s.hidden, wid)
	}
}

// Hidden reports whether wid is parked.
func (s *Store) Hidden(wid uint32) bool { return s.hidden[wid] }

// HiddenIDs returns all parked wids.
func (s *Store) HiddenIDs() []uint32 {
	out := make([]uint32, 0, len(s.hidden))
	for wid := range s.hidden {
		out = append(out, wid)
	}
	return out
}

// SetFloating marks or unmarks wid as excluded from tiling.
func (s *Store) SetFloating(wid uint32, floating bool) {
	if floating {
		s.floating[wid] = true
	} else {
		delete(s.floating, wid)
	}
}

// Floating reports whether wid is excluded from tiling.
func (s *Store) Floating(wid uint32) bool { return s.floating[wid] }

// =========================================================================
// UI watchers
// =========================================================================

// CreateWatcher creates and starts a move/resize watcher for w. Existing
// watchers are kept. Stale handles are ignored.
func (s *Store) CreateWatcher(w host.Window) {
	wid, err := w.ID()
	if err != nil {
		return
	}
	if _, ok := s.watchers[wid]; ok {
		return
	}
	watcher := s.h.NewWindowWatcher(w, func() {
		if s.onMoved != nil {
			s.onMoved(wid)
		}
	})
	s.watchers[wid] = watcher
	watcher.Start()
}

// HasWatcher reports whether wid has a registered watcher.
func (s *Store) HasWatcher(wid uint32) bool {
	_, ok := s.watchers[wid]
	return ok
}

// StartWatcher resumes wid's watcher.
func (s *Store) StartWatcher(wid uint32) {
	if w, ok := s.watchers[wid]; ok {
		w.Start()
	}
}

// StopWatcher pauses wid's watcher.
func (s *Store) StopWatcher(wid uint32) {
	if w, ok := s.watchers[wid]; ok {
		w.Stop()
	}
}

// DeleteWatcher stops and removes wid's watcher.
func (s *Store) DeleteWatcher(wid uint32) {
	if w, ok := s.watchers[wid]; ok {
		w.Stop()
		delete(s.watchers, wid)
	}
}

// StopAllWatchers pauses every watcher without removing it.
func (s *Store) StopAllWatchers() {
	for _, w := range s.watchers {
		w.Stop()
	}
}

// EnsureWatchers guarantees every window in the space has a running
// watcher, creating missing ones and restarting stopped ones.
func (s *Store) EnsureWatchers(space host.Space) {
	for _, col := range s.grid[space] {
		for _, w := range col {
			s.CreateWatcher(w)
			if wid, err := w.ID(); err == nil {
				s.StartWatcher(wid)
			}
		}
	}
}

// =========================================================================
// Integrity
// =========================================================================

// Coherent verifies the store's internal invariants. It exists for tests
// and for debug logging; a healthy store always returns nil.
func (s *Store) Coherent() error {
	for space, cols := range s.grid {
		if len(cols) == 0 {
			return fmt.Errorf("space %d has an empty column list", space)
		}
		for c, col := range cols {
			if len(col) == 0 {
				return fmt.Errorf("space %d column %d is empty", space, c)
			}
			for r, w := range col {
				wid, err := w.ID()
				if err != nil {
					continue
				}
				idx, ok := s.index[wid]
				if !ok {
					return fmt.Errorf("window %d at space %d (%d,%d) missing from index", wid, space, c, r)
				}
				if idx.Space != space || idx.Col != c || idx.Row != r {
					return fmt.Errorf("window %d index %+v disagrees with grid (%d,%d,%d)", wid, idx, space, c, r)
				}
			}
		}
	}
	for wid, idx := range s.index {
		if s.Window(idx) == nil {
			return fmt.Errorf("index entry %d -> %+v points at nothing", wid, idx)
		}
		if s.hidden[wid] {
			return fmt.Errorf("hidden window %d is still in the grid", wid)
		}
	}
	return nil
}
