// Package ax is the Accessibility transport: batched move/resize/read of
// windows, parallelized per application, with per-app messaging timeouts and
// animation suppression. It also implements the JSON wire format spoken by
// the vellum-ax helper binary.
package ax

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/vellum-wm/vellum/internal/geo"
)

// Package-level logger
var logger *log.Logger

func init() {
	logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "ax",
	})
}

// SetLogLevel sets the logging level for the ax package.
func SetLogLevel(level log.Level) {
	logger.SetLevel(level)
}

// ErrUnsupported is returned by backends on platforms without Accessibility.
var ErrUnsupported = errors.New("ax: unsupported platform")

// Op is one window operation. W==0 && H==0 means position-only. Save asks
// for the pre-move frame on the result stream; ReadOnly skips the move and
// always reports the current frame.
type Op struct {
	WID      uint32  `json:"wid"`
	PID      int32   `json:"pid"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	W        float64 `json:"w"`
	H        float64 `json:"h"`
	Save     bool    `json:"save,omitempty"`
	ReadOnly bool    `json:"read_only,omitempty"`
}

// PositionOnly reports whether the op moves without resizing.
func (o Op) PositionOnly() bool { return o.W == 0 && o.H == 0 }

// Rect returns the op's target frame.
func (o Op) Rect() geo.Rect { return geo.Rect{X: o.X, Y: o.Y, W: o.W, H: o.H} }

// Move builds a full move/resize op targeting r.
func Move(wid uint32, pid int32, r geo.Rect) Op {
	return Op{WID: wid, PID: pid, X: r.X, Y: r.Y, W: r.W, H: r.H}
}

// Reposition builds a position-only op. Width and height stay untouched.
func Reposition(wid uint32, pid int32, x, y float64) Op {
	return Op{WID: wid, PID: pid, X: x, Y: y}
}

// Entry identifies a window for a frame read.
type Entry struct {
	WID uint32 `json:"wid"`
	PID int32  `json:"pid"`
}

// Result is a reported window frame.
type Result struct {
	WID uint32  `json:"wid"`
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	W   float64 `json:"w"`
	H   float64 `json:"h"`
}

// Rect returns the result frame.
func (r Result) Rect() geo.Rect { return geo.Rect{X: r.X, Y: r.Y, W: r.W, H: r.H} }

func resultFrom(wid uint32, r geo.Rect) Result {
	return Result{WID: wid, X: r.X, Y: r.Y, W: r.W, H: r.H}
}

// DecodeOps reads a wire-format op array.
func DecodeOps(r io.Reader) ([]Op, error) {
	var ops []Op
	if err := json.NewDecoder(r).Decode(&ops); err != nil {
		return nil, fmt.Errorf("decode ops: %w", err)
	}
	return ops, nil
}

// EncodeResults writes a wire-format result array. Callers skip the call
// entirely when there is nothing to report; the wire contract is empty
// output, not an empty array.
func EncodeResults(w io.Writer, results []Result) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}

func encodeOps(w io.Writer, ops []Op) error {
	if err := json.NewEncoder(w).Encode(ops); err != nil {
		return fmt.Errorf("encode ops: %w", err)
	}
	return nil
}

func decodeResults(r io.Reader, results *[]Result) error {
	if err := json.NewDecoder(r).Decode(results); err != nil {
		return fmt.Errorf("decode results: %w", err)
	}
	return nil
}
