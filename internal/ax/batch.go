package ax

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vellum-wm/vellum/internal/geo"
)

// Backend opens per-application Accessibility handles.
type Backend interface {
	// OpenApp prepares an app for a batch: it sets the AX messaging timeout
	// and suppresses animations for the duration of the handle.
	OpenApp(pid int32) (App, error)
}

// App is an open Accessibility handle for one application. Methods operate
// on windows by id. All methods may fail per-window; failures never abort
// the batch.
type App interface {
	// Frame reads the window's current frame.
	Frame(wid uint32) (geo.Rect, error)
	// SetFrame applies size, then position, then size again. macOS clamps
	// positions against the current size and may clamp the size against the
	// screen edge; the second size pass recovers.
	SetFrame(wid uint32, r geo.Rect) error
	// SetPosition moves without resizing.
	SetPosition(wid uint32, x, y float64) error
	// Close restores any app state touched by OpenApp and releases the
	// handle.
	Close()
}

// AppStat summarizes one application's share of a batch.
type AppStat struct {
	PID      int32
	Ops      int
	Skipped  int
	Duration time.Duration
	Warnings []string
}

// Line renders the stat in the wire stderr format:
// "pid <n> <k> ops <ms>ms" with " skipped=<m>" appended when m > 0.
func (s AppStat) Line() string {
	line := fmt.Sprintf("pid %d %d ops %dms", s.PID, s.Ops, s.Duration.Milliseconds())
	if s.Skipped > 0 {
		line += fmt.Sprintf(" skipped=%d", s.Skipped)
	}
	return line
}

// Batch executes op batches against a Backend, one worker per application so
// per-app AX round-trips happen in parallel. Workers join before Run
// returns. A hung application costs at most the backend's messaging timeout
// per op and yields partial results.
type Batch struct {
	backend Backend
}

// NewBatch returns a batch executor over backend.
func NewBatch(backend Backend) *Batch {
	return &Batch{backend: backend}
}

// Run executes ops grouped by pid. Results carry pre-move frames for Save
// ops and current frames for ReadOnly ops. Every failure is per-window:
// recorded as a warning in that app's stat, the op skipped.
func (b *Batch) Run(ctx context.Context, ops []Op) ([]Result, []AppStat) {
	if len(ops) == 0 {
		return nil, nil
	}

	groups := make(map[int32][]Op)
	var order []int32
	for _, op := range ops {
		if _, ok := groups[op.PID]; !ok {
			order = append(order, op.PID)
		}
		groups[op.PID] = append(groups[op.PID], op)
	}

	var (
		mu      sync.Mutex
		results []Result
		stats   = make(map[int32]AppStat, len(order))
		wg      sync.WaitGroup
	)

	for _, pid := range order {
		wg.Add(1)
		go func(pid int32, appOps []Op) {
			defer wg.Done()
			res, stat := b.runApp(ctx, pid, appOps)
			mu.Lock()
			results = append(results, res...)
			stats[pid] = stat
			mu.Unlock()
		}(pid, groups[pid])
	}
	wg.Wait()

	ordered := make([]AppStat, 0, len(order))
	for _, pid := range order {
		ordered = append(ordered, stats[pid])
	}
	return results, ordered
}

func (b *Batch) runApp(ctx context.Context, pid int32, ops []Op) ([]Result, AppStat) {
	start := time.Now()
	stat := AppStat{PID: pid, Ops: len(ops)}

	app, err := b.backend.OpenApp(pid)
	if err != nil {
		stat.Skipped = len(ops)
		stat.Warnings = append(stat.Warnings, fmt.Sprintf("pid %d: %v", pid, err))
		stat.Duration = time.Since(start)
		return nil, stat
	}
	defer app.Close()

	var results []Result
	for i, op := range ops {
		if ctx.Err() != nil {
			stat.Skipped += len(ops) - i
			break
		}

		if op.ReadOnly {
			frame, err := app.Frame(op.WID)
			if err != nil {
				stat.Skipped++
				stat.Warnings = append(stat.Warnings, fmt.Sprintf("window %d: %v", op.WID, err))
				continue
			}
			results = append(results, resultFrom(op.WID, frame))
			continue
		}

		if op.Save {
			if frame, err := app.Frame(op.WID); err == nil {
				results = append(results, resultFrom(op.WID, frame))
			}
		}

		if op.PositionOnly() {
			err = app.SetPosition(op.WID, op.X, op.Y)
		} else {
			err = app.SetFrame(op.WID, op.Rect())
		}
		if err != nil {
			stat.Skipped++
			stat.Warnings = append(stat.Warnings, fmt.Sprintf("window %d: %v", op.WID, err))
		}
	}

	stat.Duration = time.Since(start)
	return results, stat
}
