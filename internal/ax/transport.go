package ax

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vellum-wm/vellum/internal/geo"
)

// Transport is what the core uses to move and read windows.
type Transport interface {
	// MoveWindows applies ops synchronously and returns frames for ops
	// marked Save or ReadOnly.
	MoveWindows(ctx context.Context, ops []Op) ([]Result, error)
	// MoveWindowsAsync applies ops fire-and-forget. Used to park the
	// previous workspace during a switch; nobody sees those frames.
	MoveWindowsAsync(ops []Op)
	// ReadFrames reads current frames. Missing windows are omitted.
	ReadFrames(ctx context.Context, entries []Entry) (map[uint32]geo.Rect, error)
}

// taskRegistry keeps in-flight async work reachable until completion.
type taskRegistry struct {
	mu    sync.Mutex
	tasks map[string]struct{}
	wg    sync.WaitGroup
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{tasks: make(map[string]struct{})}
}

func (r *taskRegistry) add() string {
	id := uuid.NewString()
	r.mu.Lock()
	r.tasks[id] = struct{}{}
	r.mu.Unlock()
	r.wg.Add(1)
	return id
}

func (r *taskRegistry) done(id string) {
	r.mu.Lock()
	delete(r.tasks, id)
	r.mu.Unlock()
	r.wg.Done()
}

func (r *taskRegistry) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// BatchTransport runs batches in-process over a Backend.
type BatchTransport struct {
	batch    *Batch
	registry *taskRegistry
}

// NewBatchTransport returns an in-process transport over backend.
func NewBatchTransport(backend Backend) *BatchTransport {
	return &BatchTransport{
		batch:    NewBatch(backend),
		registry: newTaskRegistry(),
	}
}

// MoveWindows implements Transport.
func (t *BatchTransport) MoveWindows(ctx context.Context, ops []Op) ([]Result, error) {
	results, stats := t.batch.Run(ctx, ops)
	logStats(stats)
	return results, nil
}

// MoveWindowsAsync implements Transport.
func (t *BatchTransport) MoveWindowsAsync(ops []Op) {
	id := t.registry.add()
	go func() {
		defer t.registry.done(id)
		_, stats := t.batch.Run(context.Background(), ops)
		logStats(stats)
	}()
}

// ReadFrames implements Transport.
func (t *BatchTransport) ReadFrames(ctx context.Context, entries []Entry) (map[uint32]geo.Rect, error) {
	ops := make([]Op, 0, len(entries))
	for _, e := range entries {
		ops = append(ops, Op{WID: e.WID, PID: e.PID, ReadOnly: true})
	}
	results, stats := t.batch.Run(ctx, ops)
	logStats(stats)
	frames := make(map[uint32]geo.Rect, len(results))
	for _, r := range results {
		frames[r.WID] = r.Rect()
	}
	return frames, nil
}

// PendingAsync reports in-flight async batches.
func (t *BatchTransport) PendingAsync() int { return t.registry.pending() }

// Wait blocks until all async batches complete. Shutdown path.
func (t *BatchTransport) Wait() { t.registry.wg.Wait() }

func logStats(stats []AppStat) {
	for _, s := range stats {
		logger.Debug("batch",
			"pid", s.PID,
			"ops", s.Ops,
			"ms", s.Duration.Milliseconds(),
			"skipped", s.Skipped,
		)
		for _, w := range s.Warnings {
			logger.Warn(w)
		}
	}
}

// ToolTransport shells out to the vellum-ax helper so AX calls run in a
// separate process. The helper speaks the wire format on stdin/stdout.
type ToolTransport struct {
	// Path is the helper binary. Defaults to "vellum-ax" on PATH.
	Path     string
	registry *taskRegistry
}

// NewToolTransport returns a subprocess transport using the helper at path.
func NewToolTransport(path string) *ToolTransport {
	if path == "" {
		path = "vellum-ax"
	}
	return &ToolTransport{Path: path, registry: newTaskRegistry()}
}

func (t *ToolTransport) run(ctx context.Context, ops []Op) ([]Result, error) {
	var in bytes.Buffer
	enc := encodeOps(&in, ops)
	if enc != nil {
		return nil, enc
	}

	cmd := exec.CommandContext(ctx, t.Path)
	cmd.Stdin = &in
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	runErr := cmd.Run()
	for _, line := range strings.Split(strings.TrimSpace(errb.String()), "\n") {
		if line != "" {
			logger.Debug("helper", "line", line)
		}
	}
	if runErr != nil {
		return nil, runErr
	}
	if out.Len() == 0 {
		return nil, nil
	}

	var results []Result
	if err := decodeResults(&out, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// MoveWindows implements Transport.
func (t *ToolTransport) MoveWindows(ctx context.Context, ops []Op) ([]Result, error) {
	return t.run(ctx, ops)
}

// MoveWindowsAsync implements Transport.
func (t *ToolTransport) MoveWindowsAsync(ops []Op) {
	id := t.registry.add()
	go func() {
		defer t.registry.done(id)
		if _, err := t.run(context.Background(), ops); err != nil {
			logger.Warn("async batch failed", "err", err)
		}
	}()
}

// ReadFrames implements Transport.
func (t *ToolTransport) ReadFrames(ctx context.Context, entries []Entry) (map[uint32]geo.Rect, error) {
	ops := make([]Op, 0, len(entries))
	for _, e := range entries {
		ops = append(ops, Op{WID: e.WID, PID: e.PID, ReadOnly: true})
	}
	results, err := t.run(ctx, ops)
	if err != nil {
		return nil, err
	}
	frames := make(map[uint32]geo.Rect, len(results))
	for _, r := range results {
		frames[r.WID] = r.Rect()
	}
	return frames, nil
}

// PendingAsync reports in-flight async helper invocations.
func (t *ToolTransport) PendingAsync() int { return t.registry.pending() }

// timeoutTransport bounds every synchronous batch with a deadline.
type timeoutTransport struct {
	Transport
	d time.Duration
}

// WithTimeout wraps t so each MoveWindows/ReadFrames call carries a
// deadline. Async batches stay unbounded; the per-app messaging timeout
// already caps how long one hung app can stall them.
func WithTimeout(t Transport, d time.Duration) Transport {
	if d <= 0 {
		return t
	}
	return &timeoutTransport{Transport: t, d: d}
}

func (t *timeoutTransport) MoveWindows(ctx context.Context, ops []Op) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Transport.MoveWindows(ctx, ops)
}

func (t *timeoutTransport) ReadFrames(ctx context.Context, entries []Entry) (map[uint32]geo.Rect, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Transport.ReadFrames(ctx, entries)
}
