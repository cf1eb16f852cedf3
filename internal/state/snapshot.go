package state

import "github.com/vellum-wm/vellum/internal/host"

// Snapshot is a frozen copy of one space's layout: the column grid plus the
// x-position memo. Window handles are shared with the live grid; the
// container structure is the snapshot's own.
type Snapshot struct {
	columns [][]host.Window
	xpos    map[uint32]float64
}

// Snapshot captures the space's current layout, or nil when the space holds
// no windows.
func (s *Store) Snapshot(space host.Space) *Snapshot {
	cols := s.grid[space]
	if len(cols) == 0 {
		return nil
	}
	snap := &Snapshot{
		columns: cloneColumns(cols),
		xpos:    make(map[uint32]float64, len(s.xpos[space])),
	}
	for wid, x := range s.xpos[space] {
		snap.xpos[wid] = x
	}
	return snap
}

// Restore replaces the space's layout with snap. A nil snapshot clears the
// space. Empty columns in snap are dropped; the reverse index is rebuilt in
// the same step so it never disagrees with the grid.
func (s *Store) Restore(space host.Space, snap *Snapshot) {
	for wid, idx := range s.index {
		if idx.Space == space {
			delete(s.index, wid)
		}
	}
	delete(s.grid, space)
	delete(s.xpos, space)
	if snap == nil {
		return
	}

	cols := make([][]host.Window, 0, len(snap.columns))
	for _, col := range snap.columns {
		if len(col) == 0 {
			continue
		}
		cols = append(cols, append([]host.Window(nil), col...))
	}
	if len(cols) == 0 {
		return
	}
	s.grid[space] = cols
	s.reindexSpace(space)

	if len(snap.xpos) > 0 {
		m := make(map[uint32]float64, len(snap.xpos))
		for wid, x := range snap.xpos {
			m[wid] = x
		}
		s.xpos[space] = m
	}
}

// Empty reports whether the snapshot holds no windows.
func (sn *Snapshot) Empty() bool {
	if sn == nil {
		return true
	}
	for _, col := range sn.columns {
		if len(col) > 0 {
			return false
		}
	}
	return true
}

// Windows returns the snapshot's windows in column order.
func (sn *Snapshot) Windows() []host.Window {
	if sn == nil {
		return nil
	}
	var out []host.Window
	for _, col := range sn.columns {
		out = append(out, col...)
	}
	return out
}

// WindowIDs returns the set of wids the snapshot references.
func (sn *Snapshot) WindowIDs() map[uint32]bool {
	out := make(map[uint32]bool)
	if sn == nil {
		return out
	}
	for _, col := range sn.columns {
		for _, w := range col {
			if wid, err := w.ID(); err == nil {
				out[wid] = true
			}
		}
	}
	return out
}

// WindowByID returns the snapshot window with the given wid, or nil.
func (sn *Snapshot) WindowByID(wid uint32) host.Window {
	if sn == nil {
		return nil
	}
	for _, col := range sn.columns {
		for _, w := range col {
			if id, err := w.ID(); err == nil && id == wid {
				return w
			}
		}
	}
	return nil
}

// First returns the snapshot's first window, or nil.
func (sn *Snapshot) First() host.Window {
	if sn == nil {
		return nil
	}
	for _, col := range sn.columns {
		if len(col) > 0 {
			return col[0]
		}
	}
	return nil
}

// Remove strips wid from the snapshot, dropping emptied columns.
func (sn *Snapshot) Remove(wid uint32) {
	if sn == nil {
		return
	}
	sn.Prune(func(id uint32) bool { return id != wid })
}

// Prune keeps only windows whose wid passes keep and whose handle still
// resolves. The x-position memo is trimmed to the surviving set.
func (sn *Snapshot) Prune(keep func(wid uint32) bool) {
	if sn == nil {
		return
	}
	cols := sn.columns[:0]
	kept := make(map[uint32]bool)
	for _, col := range sn.columns {
		c := col[:0]
		for _, w := range col {
			wid, err := w.ID()
			if err != nil || !keep(wid) {
				continue
			}
			c = append(c, w)
			kept[wid] = true
		}
		if len(c) > 0 {
			cols = append(cols, c)
		}
	}
	sn.columns = cols
	for wid := range sn.xpos {
		if !kept[wid] {
			delete(sn.xpos, wid)
		}
	}
}

func cloneColumns(cols [][]host.Window) [][]host.Window {
	out := make([][]host.Window, len(cols))
	for i, col := range cols {
		out[i] = append([]host.Window(nil), col...)
	}
	return out
}
