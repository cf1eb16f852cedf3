package engine

import (
	"cmp"
	"slices"

	"github.com/vellum-wm/vellum/internal/geo"
)

// WindowReport describes one managed window.
type WindowReport struct {
	ID       uint32   `json:"id"`
	App      string   `json:"app,omitempty"`
	Title    string   `json:"title,omitempty"`
	Frame    geo.Rect `json:"frame"`
	Hidden   bool     `json:"hidden,omitempty"`
	Floating bool     `json:"floating,omitempty"`
	Focused  bool     `json:"focused,omitempty"`
}

// WorkspaceReport describes one workspace and its member windows.
type WorkspaceReport struct {
	Name    string         `json:"name"`
	Current bool           `json:"current,omitempty"`
	Scratch bool           `json:"scratch,omitempty"`
	Windows []WindowReport `json:"windows,omitempty"`
}

// StateReport is the full engine state served over the control socket.
type StateReport struct {
	Current    string              `json:"current"`
	Screen     geo.Rect            `json:"screen"`
	Columns    [][]uint32          `json:"columns"`
	Workspaces []WorkspaceReport   `json:"workspaces"`
	Pending    map[string][]uint32 `json:"pending,omitempty"`
}

// Report assembles a StateReport from live state. Must run on the engine
// goroutine; callers outside it go through Post.
func (e *Engine) Report() StateReport {
	r := StateReport{Current: e.current}
	if s := e.host.MainScreen(); s != nil {
		r.Screen = s.Frame()
	}

	var focusedID uint32
	if f := e.host.FocusedWindow(); f != nil {
		if wid, err := f.ID(); err == nil {
			focusedID = wid
		}
	}

	if space, _, ok := e.activeSpace(); ok {
		for _, col := range e.store.Columns(space) {
			ids := make([]uint32, 0, len(col))
			for _, w := range col {
				if wid, err := w.ID(); err == nil {
					ids = append(ids, wid)
				}
			}
			r.Columns = append(r.Columns, ids)
		}
	}

	for _, ws := range e.workspaceNames() {
		wr := WorkspaceReport{
			Name:    ws,
			Current: ws == e.current,
			Scratch: e.isScratch(ws),
		}
		for wid := range e.wsWindows[ws] {
			wr.Windows = append(wr.Windows, e.windowReport(wid, focusedID))
		}
		slices.SortFunc(wr.Windows, func(a, b WindowReport) int {
			return cmp.Compare(a.ID, b.ID)
		})
		r.Workspaces = append(r.Workspaces, wr)
	}

	for ws, pend := range e.wsPending {
		if len(pend) == 0 {
			continue
		}
		if r.Pending == nil {
			r.Pending = make(map[string][]uint32)
		}
		for _, p := range pend {
			r.Pending[ws] = append(r.Pending[ws], p.wid)
		}
	}
	return r
}

func (e *Engine) windowReport(wid, focusedID uint32) WindowReport {
	wr := WindowReport{
		ID:       wid,
		Hidden:   e.store.Hidden(wid),
		Floating: e.store.Floating(wid),
		Focused:  wid == focusedID,
	}
	w := e.host.WindowByID(wid)
	if w == nil {
		return wr
	}
	wr.App = w.App()
	wr.Title = w.Title()
	if f, err := w.Frame(); err == nil {
		wr.Frame = f
	}
	return wr
}
