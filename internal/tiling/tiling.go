// Package tiling computes the scrolling-strip layout for one space. Columns
// form a horizontal strip anchored on one window; the strip propagates right
// and left from the anchor and columns past the screen edge clip at a thin
// margin so a sliver stays clickable. The planner is pure: it reads window
// frames through host handles and returns the batch of moves plus the new
// left-edge memo, touching nothing itself.
package tiling

import (
	"errors"
	"math"

	"github.com/vellum-wm/vellum/internal/ax"
	"github.com/vellum-wm/vellum/internal/geo"
	"github.com/vellum-wm/vellum/internal/host"
)

// ErrAnchorGone is returned when the anchor window's frame cannot be read.
// Callers should rescan the window list and retry the layout.
var ErrAnchorGone = errors.New("tiling: anchor window is gone")

// Policy holds the layout knobs.
type Policy struct {
	// Gaps are applied at the screen edges and between windows: Left and
	// Right separate columns, Bottom separates rows within a column.
	Gaps geo.Insets
	// ExternalBar reserves room for bars the OS does not account for.
	// Only Top and Bottom are honored.
	ExternalBar geo.Insets
	// ScreenMargin is how many points of a clipped column stay on screen.
	ScreenMargin float64
	// StickyPairs keeps the anchor's left neighbor visible when both fit.
	StickyPairs bool
	// RightAnchorLast flushes the last column to the right screen edge.
	RightAnchorLast bool
}

// Canvas is the tiling area of screen under p: the frame inset by the
// per-side gaps plus the external bar.
func Canvas(screen geo.Rect, p Policy) geo.Rect {
	return screen.Inset(geo.Insets{
		Top:    p.Gaps.Top + p.ExternalBar.Top,
		Bottom: p.Gaps.Bottom + p.ExternalBar.Bottom,
		Left:   p.Gaps.Left,
		Right:  p.Gaps.Right,
	})
}

// Input is one layout request.
type Input struct {
	Columns   [][]host.Window
	Anchor    host.Window
	AnchorWID uint32
	AnchorCol int
	// PrevPrevCol is the column of the window focused before the anchor,
	// or -1 when unknown. It disambiguates scroll direction.
	PrevPrevCol int
	Screen      geo.Rect
	// SavedX is the space's current left-edge memo.
	SavedX map[uint32]float64
	Policy Policy
}

// Plan is a computed layout: the moves to issue, in strip order with
// unchanged windows omitted, and the replacement left-edge memo.
type Plan struct {
	Ops []ax.Op
	X   map[uint32]float64
}

// Compute lays out every column of the strip around the anchor.
func Compute(in Input) (*Plan, error) {
	p := &planner{
		gapBottom: in.Policy.Gaps.Bottom,
		byWID:     make(map[uint32]*placement),
	}
	if len(in.Columns) == 0 {
		return p.finish(), nil
	}

	canvas := Canvas(in.Screen, in.Policy)
	leftMargin := in.Screen.X + in.Policy.ScreenMargin
	rightMargin := in.Screen.X2() - in.Policy.ScreenMargin

	anchor, err := in.Anchor.Frame()
	if err != nil {
		return nil, ErrAnchorGone
	}
	anchorOrig := anchor
	anchor = anchor.ClampSize(canvas)

	numCols := len(in.Columns)
	switch {
	case in.Policy.RightAnchorLast && in.AnchorCol == numCols-1 && numCols > 1:
		anchor.X = canvas.X2() - anchor.W
	case in.AnchorCol > 0 && in.Policy.StickyPairs:
		if scrolledLeft(in, canvas) {
			anchor.X = canvas.X
		} else if leftW := columnWidth(in.Columns[in.AnchorCol-1]); leftW > 0 &&
			leftW+in.Policy.Gaps.Left+anchor.W <= canvas.W {
			anchor.X = canvas.X + leftW + in.Policy.Gaps.Left
		} else {
			anchor.X = canvas.X
		}
	default:
		anchor.X = canvas.X
	}

	column := in.Columns[in.AnchorCol]
	if len(column) == 1 {
		anchor.Y, anchor.H = canvas.Y, canvas.H
		p.place(in.Anchor, anchorOrig, anchor)
	} else {
		others := float64(len(column) - 1)
		h := math.Max(0, math.Floor((canvas.H-anchor.H-others*in.Policy.Gaps.Bottom)/others))
		bounds := Bounds{X: anchor.X, Y: canvas.Y, Y2: canvas.Y2()}
		p.column(column, bounds, ColumnSpec{
			Height:         h,
			Width:          anchor.W,
			Override:       in.AnchorWID,
			OverrideHeight: anchor.H,
		})
	}

	x := anchor.X2() + in.Policy.Gaps.Right
	for c := in.AnchorCol + 1; c < numCols; c++ {
		bounds := Bounds{X: math.Min(x, rightMargin), Y: canvas.Y, Y2: canvas.Y2()}
		width := p.column(in.Columns[c], bounds, ColumnSpec{})
		x += width + in.Policy.Gaps.Right
	}

	x2 := math.Max(anchor.X-in.Policy.Gaps.Left, leftMargin)
	for c := in.AnchorCol - 1; c >= 0; c-- {
		bounds := Bounds{X2: x2, FromRight: true, Y: canvas.Y, Y2: canvas.Y2()}
		width := p.column(in.Columns[c], bounds, ColumnSpec{})
		x2 = math.Max(x2-width-in.Policy.Gaps.Left, leftMargin)
	}

	return p.finish(), nil
}

// scrolledLeft reports whether the layout should keep the anchor at the
// canvas left edge rather than sticky-pairing it with its left neighbor:
// either focus just travelled leftward, or the anchor was already flush left.
func scrolledLeft(in Input, canvas geo.Rect) bool {
	if in.PrevPrevCol > in.AnchorCol {
		return true
	}
	x, ok := in.SavedX[in.AnchorWID]
	return ok && x == canvas.X
}

// columnWidth is the width of the column's first readable window.
func columnWidth(col []host.Window) float64 {
	for _, w := range col {
		if f, err := w.Frame(); err == nil {
			return f.W
		}
	}
	return 0
}

// FirstVisible picks the layout anchor when the focused window cannot serve:
// the first window of the leftmost column whose left edge is on the screen,
// or the column closest to the screen from the left when none are.
func FirstVisible(columns [][]host.Window, screenX float64) host.Window {
	var onscreen, closest host.Window
	onscreenX := math.Inf(1)
	closestX := math.Inf(-1)
	for _, col := range columns {
		if len(col) == 0 {
			continue
		}
		w := col[0]
		f, err := w.Frame()
		if err != nil {
			continue
		}
		if f.X >= screenX && f.X < onscreenX {
			onscreen, onscreenX = w, f.X
		}
		if f.X > closestX {
			closest, closestX = w, f.X
		}
	}
	if onscreen != nil {
		return onscreen
	}
	return closest
}

// Bounds constrains one column. X pins the left edge unless FromRight is
// set, in which case X2 pins the right edge.
type Bounds struct {
	X         float64
	X2        float64
	FromRight bool
	Y, Y2     float64
}

// ColumnSpec carries optional per-column sizing. Zero values mean "keep the
// window's own height" and "adopt the first window's width". Override names
// one window that keeps OverrideHeight instead of Height.
type ColumnSpec struct {
	Height         float64
	Width          float64
	Override       uint32
	OverrideHeight float64
}

// TileColumn stacks one column of windows inside bounds and returns the
// resulting moves plus the column width. The y cursor advances by the
// bottom gap and never passes bounds.Y2; the last window stretches to fill.
func TileColumn(windows []host.Window, bounds Bounds, gapBottom float64, spec ColumnSpec) ([]ax.Op, float64) {
	p := &planner{gapBottom: gapBottom, byWID: make(map[uint32]*placement)}
	width := p.column(windows, bounds, spec)
	return p.finish().Ops, width
}

// placement tracks one window's original and computed frame. Re-placing the
// same window replaces the target, so the last-window height expansion never
// emits a duplicate op.
type placement struct {
	pid          int32
	orig, target geo.Rect
}

type planner struct {
	gapBottom float64
	order     []uint32
	byWID     map[uint32]*placement
}

func (p *planner) place(w host.Window, orig, target geo.Rect) {
	wid, err := w.ID()
	if err != nil {
		return
	}
	pl, ok := p.byWID[wid]
	if !ok {
		pl = &placement{pid: w.PID(), orig: orig}
		p.byWID[wid] = pl
		p.order = append(p.order, wid)
	}
	pl.target = target
}

func (p *planner) column(windows []host.Window, b Bounds, spec ColumnSpec) float64 {
	width := spec.Width
	y := b.Y
	var last host.Window
	var lastOrig, lastTarget geo.Rect
	for _, w := range windows {
		orig, err := w.Frame()
		if err != nil {
			continue
		}
		f := orig
		if width == 0 {
			width = f.W
		}
		if b.FromRight {
			f.X = b.X2 - width
		} else {
			f.X = b.X
		}
		if spec.Height > 0 {
			f.H = spec.Height
			if spec.Override != 0 {
				if wid, err := w.ID(); err == nil && wid == spec.Override {
					f.H = spec.OverrideHeight
				}
			}
		}
		f.W = width
		f.Y = math.Min(y, b.Y2-f.H)
		f.H = math.Min(f.H, b.Y2-f.Y)
		p.place(w, orig, f)
		y = math.Min(f.Y2()+p.gapBottom, b.Y2)
		last, lastOrig, lastTarget = w, orig, f
	}
	if last != nil && lastTarget.Y2() != b.Y2 {
		lastTarget.H = b.Y2 - lastTarget.Y
		p.place(last, lastOrig, lastTarget)
	}
	return width
}

func (p *planner) finish() *Plan {
	plan := &Plan{X: make(map[uint32]float64, len(p.order))}
	for _, wid := range p.order {
		pl := p.byWID[wid]
		plan.X[wid] = pl.target.X
		if pl.target.Eq(pl.orig) {
			continue
		}
		plan.Ops = append(plan.Ops, ax.Move(wid, pl.pid, pl.target))
	}
	return plan
}
