package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/charmbracelet/colorprofile"
	"github.com/vellum-wm/vellum/internal/config"
	"github.com/vellum-wm/vellum/internal/engine"
	"github.com/vellum-wm/vellum/internal/session"
	"github.com/vellum-wm/vellum/internal/statusui"
	"golang.org/x/term"
)

// clientConn bundles a daemon connection with output styling state.
type clientConn struct {
	client *session.Client
	styled bool
}

// withClient dials the daemon, runs fn, and translates connection failures
// into something actionable.
func withClient(fn func(*clientConn) error) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	socketPath, err := env.SocketPath()
	if err != nil {
		return err
	}
	c, err := session.Dial(socketPath, version)
	if err != nil {
		if errors.Is(err, session.ErrNotRunning) {
			return fmt.Errorf("vellum daemon is not running; start it with 'vellum run'")
		}
		return err
	}
	defer c.Close()
	return fn(&clientConn{client: c, styled: styledOutput()})
}

// styledOutput reports whether stdout should get colors and borders.
func styledOutput() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	switch colorprofile.Detect(os.Stdout, os.Environ()) {
	case colorprofile.Ascii, colorprofile.NoTTY:
		return false
	}
	return true
}

var (
	stateHeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	stateCellStyle    = lipgloss.NewStyle().Padding(0, 1)
	stateCurrentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")).Padding(0, 1)
	stateBorderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	stateTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
)

func renderTable(headers []string, rows [][]string, styled bool, highlight func(row int) bool) string {
	if !styled {
		var sb strings.Builder
		sb.WriteString(strings.Join(headers, "\t"))
		sb.WriteString("\n")
		for _, r := range rows {
			sb.WriteString(strings.Join(r, "\t"))
			sb.WriteString("\n")
		}
		return sb.String()
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(stateBorderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == -1 {
				return stateHeaderStyle
			}
			if highlight != nil && highlight(row) {
				return stateCurrentStyle
			}
			return stateCellStyle
		})
	return t.Render()
}

func showState() error {
	return withClient(func(c *clientConn) error {
		report, err := c.client.State()
		if err != nil {
			return err
		}
		printState(report, c.styled)
		return nil
	})
}

func printState(report engine.StateReport, styled bool) {
	title := fmt.Sprintf("current workspace: %s", report.Current)
	if styled {
		title = stateTitleStyle.Render(title)
	}
	fmt.Println(title)
	fmt.Println()

	wsRows := make([][]string, 0, len(report.Workspaces))
	for _, ws := range report.Workspaces {
		marker := ""
		switch {
		case ws.Current:
			marker = "*"
		case ws.Scratch:
			marker = "~"
		}
		wsRows = append(wsRows, []string{marker, ws.Name, fmt.Sprintf("%d", len(ws.Windows))})
	}
	fmt.Println(renderTable([]string{"", "Workspace", "Windows"}, wsRows, styled, func(row int) bool {
		return row >= 0 && row < len(report.Workspaces) && report.Workspaces[row].Current
	}))

	windows := make(map[uint32]engine.WindowReport)
	for _, ws := range report.Workspaces {
		for _, w := range ws.Windows {
			windows[w.ID] = w
		}
	}
	var colRows [][]string
	for col, ids := range report.Columns {
		for row, id := range ids {
			w := windows[id]
			focus := ""
			if w.Focused {
				focus = "*"
			}
			colRows = append(colRows, []string{
				fmt.Sprintf("%d.%d", col+1, row+1),
				focus,
				fmt.Sprintf("%d", id),
				w.App,
				w.Title,
				fmt.Sprintf("%.0f,%.0f %.0fx%.0f", w.Frame.X, w.Frame.Y, w.Frame.W, w.Frame.H),
			})
		}
	}
	if len(colRows) == 0 {
		fmt.Println("no tiled windows")
		return
	}
	fmt.Println(renderTable([]string{"Col", "", "ID", "App", "Title", "Frame"}, colRows, styled, nil))
}

func showLogs() error {
	return withClient(func(c *clientConn) error {
		entries, err := c.client.Logs()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s %-5s %s\n", e.Time.Format("15:04:05.000"), e.Level, e.Message)
		}
		return nil
	})
}

func runWatch() error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	socketPath, err := env.SocketPath()
	if err != nil {
		return err
	}
	c, err := session.Dial(socketPath, version)
	if err != nil {
		if errors.Is(err, session.ErrNotRunning) {
			return fmt.Errorf("vellum daemon is not running; start it with 'vellum run'")
		}
		return err
	}
	defer c.Close()
	return statusui.Run(c)
}
