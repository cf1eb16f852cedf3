// Package main implements vellum-ax, the standalone Accessibility batch
// helper. It reads a JSON op array from stdin (or a file argument), applies
// the moves with one worker per application, reports saved/read frames on
// stdout and per-app timing on stderr, and exits 0 unless the input failed
// to parse. The daemon shells out to it when run with --ax-helper; it is
// also handy for scripting window moves directly.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/vellum-wm/vellum/internal/ax"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var timeoutMS int

	rootCmd := &cobra.Command{
		Use:   "vellum-ax [ops.json]",
		Short: "Apply a batch of window moves via Accessibility",
		Long: `vellum-ax - Accessibility batch helper

Reads a JSON array of window operations from stdin or a file argument:

  [{"wid":123,"pid":456,"x":8,"y":48,"w":700,"h":644}]

w and h both zero means position only. Ops with "save" report the window's
pre-move frame on stdout; "read_only" skips the move and always reports the
current frame. Missing windows and per-app timeouts are warned about on
stderr and skipped; only unparseable input is fatal.`,
		Example: `  # Move a window
  echo '[{"wid":123,"pid":456,"x":8,"y":48,"w":700,"h":644}]' | vellum-ax

  # Read frames without moving
  echo '[{"wid":123,"pid":456,"read_only":true}]' | vellum-ax

  # From a file
  vellum-ax ops.json`,
		Version:      version,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var input io.Reader = os.Stdin
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				input = f
			}

			runner := &ax.Runner{
				Batch:  ax.NewBatch(ax.NewBackend(time.Duration(timeoutMS) * time.Millisecond)),
				Stdout: os.Stdout,
				Stderr: os.Stderr,
			}
			return runner.Run(context.Background(), input)
		},
	}
	rootCmd.Flags().IntVar(&timeoutMS, "timeout", 100,
		"per-application Accessibility messaging timeout in milliseconds")

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(fmt.Sprintf("%s\nCommit: %s\nBuilt: %s", version, commit, date)),
	); err != nil {
		os.Exit(1)
	}
}
