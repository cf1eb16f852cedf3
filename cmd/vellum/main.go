// Package main implements vellum, a scrolling tiling window manager for
// macOS with virtual workspaces. The `run` command hosts the engine and the
// control socket; every other command is a thin client over that socket,
// which is also the surface hotkey daemons bind against.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var logLevelFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:   "vellum",
		Short: "Scrolling tiling window manager for macOS",
		Long: `vellum - scrolling tiling window manager

Windows on the active workspace form a horizontally scrolling strip of
columns. Inactive workspaces are parked one pixel inside the bottom-right
screen corner, so switching never touches Mission Control.

The daemon (vellum run) owns all state; the other commands talk to it over
a unix socket and are intended to be bound to hotkeys.`,
		Example: `  # Run the daemon in the foreground
  vellum run

  # Switch workspace / move the focused window (bind these to hotkeys)
  vellum switch work
  vellum move-to work

  # Navigate the strip
  vellum focus left
  vellum swap right
  vellum slurp

  # Live status view
  vellum watch`,
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"log level: debug, info, warn, or error (overrides VELLUM_LOG_LEVEL)")

	var helperPath string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the window manager daemon",
		Long: `Run the window manager daemon in the foreground

Loads the configuration, scans the live window set, partitions it into
workspaces, and serves the control socket until interrupted. Requires
Accessibility permission (System Settings > Privacy & Security).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(helperPath)
		},
	}
	runCmd.Flags().StringVar(&helperPath, "ax-helper", "",
		"run Accessibility batches through this vellum-ax binary instead of in-process")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *clientConn) error { return c.client.Stop() })
		},
	}

	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Show workspaces and the column grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showState()
		},
	}

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon's recent log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showLogs()
		},
	}

	switchCmd := &cobra.Command{
		Use:   "switch <workspace>",
		Short: "Switch to a workspace",
		Long: `Switch to a workspace

Parks the current workspace's windows off screen and restores the target's.
With toggle_back enabled, switching to the current workspace bounces back
to the previous jump point.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *clientConn) error { return c.client.Switch(args[0]) })
		},
	}

	moveToCmd := &cobra.Command{
		Use:   "move-to <workspace>",
		Short: "Move the focused window to a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *clientConn) error { return c.client.MoveTo(args[0]) })
		},
	}

	focusCmd := &cobra.Command{
		Use:       "focus <direction>",
		Short:     "Move focus through the column grid",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"left", "right", "up", "down", "next", "previous"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *clientConn) error { return c.client.Focus(args[0]) })
		},
	}

	swapCmd := &cobra.Command{
		Use:       "swap <direction>",
		Short:     "Swap the focused window with its neighbor",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"left", "right", "up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *clientConn) error { return c.client.Swap(args[0]) })
		},
	}

	slurpCmd := &cobra.Command{
		Use:   "slurp",
		Short: "Pull the focused window into the column to its left",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *clientConn) error { return c.client.Slurp() })
		},
	}

	barfCmd := &cobra.Command{
		Use:   "barf",
		Short: "Push the focused window out into its own column",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *clientConn) error { return c.client.Barf() })
		},
	}

	retileCmd := &cobra.Command{
		Use:   "retile",
		Short: "Recompute the active space's layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *clientConn) error { return c.client.Retile() })
		},
	}

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Rescan the live window set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *clientConn) error { return c.client.Refresh() })
		},
	}

	jumpCmd := &cobra.Command{
		Use:   "jump <category>",
		Short: "Focus the configured jump target for a category",
		Long: `Focus the configured jump target for a category

Jump targets are per-workspace app (and optionally title) entries under
[jump.<category>] in the configuration. Jumping to the already focused
target with toggle_back enabled bounces to the previous jump point.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *clientConn) error { return c.client.Jump(args[0]) })
		},
	}

	backCmd := &cobra.Command{
		Use:   "back",
		Short: "Return to the previous jump point",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *clientConn) error { return c.client.ToggleJump() })
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Live status view of workspaces and windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch()
		},
	}

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check permissions, the daemon, and the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor()
		},
	}

	rootCmd.AddCommand(
		runCmd, stopCmd, stateCmd, logsCmd,
		switchCmd, moveToCmd, focusCmd, swapCmd, slurpCmd, barfCmd,
		retileCmd, refreshCmd, jumpCmd, backCmd,
		watchCmd, doctorCmd, configCommand(),
	)

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(fmt.Sprintf("%s\nCommit: %s\nBuilt: %s", version, commit, date)),
	); err != nil {
		os.Exit(1)
	}
}
