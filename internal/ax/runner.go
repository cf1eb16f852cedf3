package ax

import (
	"context"
	"fmt"
	"io"
)

// Runner drives one wire-format invocation: decode ops, run the batch,
// report frames on stdout and per-app timing on stderr. Per-window skips are
// not failures; the only error a Runner returns is a malformed op stream.
type Runner struct {
	Batch  *Batch
	Stdout io.Writer
	Stderr io.Writer
}

// Run processes one op stream. The stderr stream carries one timing line per
// application plus one line per skipped window.
func (r *Runner) Run(ctx context.Context, input io.Reader) error {
	ops, err := DecodeOps(input)
	if err != nil {
		fmt.Fprintf(r.Stderr, "%v\n", err)
		return err
	}

	results, stats := r.Batch.Run(ctx, ops)

	for _, s := range stats {
		for _, w := range s.Warnings {
			fmt.Fprintln(r.Stderr, w)
		}
		fmt.Fprintln(r.Stderr, s.Line())
	}

	if len(results) == 0 {
		return nil
	}
	if err := EncodeResults(r.Stdout, results); err != nil {
		fmt.Fprintf(r.Stderr, "%v\n", err)
	}
	return nil
}
