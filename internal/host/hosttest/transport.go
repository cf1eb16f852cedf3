package hosttest

import (
	"context"

	"github.com/vellum-wm/vellum/internal/ax"
	"github.com/vellum-wm/vellum/internal/geo"
)

// Transport applies batches directly to the fake host's windows and records
// every call. Async moves apply synchronously so tests stay deterministic.
type Transport struct {
	Host *Host

	Moves      [][]ax.Op
	AsyncMoves [][]ax.Op
	Reads      [][]ax.Entry
}

// NewTransport returns a recording transport over h.
func NewTransport(h *Host) *Transport {
	return &Transport{Host: h}
}

func (t *Transport) find(wid uint32) *Window {
	for _, w := range t.Host.windows {
		if w.WID == wid && !w.Dead {
			return w
		}
	}
	return nil
}

func (t *Transport) apply(ops []ax.Op) []ax.Result {
	var results []ax.Result
	for _, op := range ops {
		w := t.find(op.WID)
		if w == nil {
			continue
		}
		if op.ReadOnly {
			results = append(results, ax.Result{WID: op.WID, X: w.Rect.X, Y: w.Rect.Y, W: w.Rect.W, H: w.Rect.H})
			continue
		}
		if op.Save {
			results = append(results, ax.Result{WID: op.WID, X: w.Rect.X, Y: w.Rect.Y, W: w.Rect.W, H: w.Rect.H})
		}
		if op.PositionOnly() {
			w.Rect.X, w.Rect.Y = op.X, op.Y
		} else {
			w.Rect = op.Rect()
		}
	}
	return results
}

// MoveWindows implements ax.Transport.
func (t *Transport) MoveWindows(_ context.Context, ops []ax.Op) ([]ax.Result, error) {
	t.Moves = append(t.Moves, ops)
	return t.apply(ops), nil
}

// MoveWindowsAsync implements ax.Transport.
func (t *Transport) MoveWindowsAsync(ops []ax.Op) {
	t.AsyncMoves = append(t.AsyncMoves, ops)
	t.apply(ops)
}

// ReadFrames implements ax.Transport.
func (t *Transport) ReadFrames(_ context.Context, entries []ax.Entry) (map[uint32]geo.Rect, error) {
	t.Reads = append(t.Reads, entries)
	frames := make(map[uint32]geo.Rect)
	for _, e := range entries {
		if w := t.find(e.WID); w != nil {
			frames[e.WID] = w.Rect
		}
	}
	return frames, nil
}

// LastMove returns the ops of the most recent synchronous batch, or nil.
func (t *Transport) LastMove() []ax.Op {
	if len(t.Moves) == 0 {
		return nil
	}
	return t.Moves[len(t.Moves)-1]
}

// LastAsync returns the ops of the most recent async batch, or nil.
func (t *Transport) LastAsync() []ax.Op {
	if len(t.AsyncMoves) == 0 {
		return nil
	}
	return t.AsyncMoves[len(t.AsyncMoves)-1]
}
