// Package statusui renders a live view of the window manager over the
// control socket: workspaces, the column grid, and the recent log tail.
// It backs the `vellum watch` command.
package statusui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/vellum-wm/vellum/internal/engine"
	"github.com/vellum-wm/vellum/internal/session"
)

// refreshEvery is the poll interval against the daemon.
const refreshEvery = 500 * time.Millisecond

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	currentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")).Padding(0, 1)
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type tickMsg time.Time

type reportMsg struct {
	report engine.StateReport
	err    error
}

// Model is the bubbletea model behind `vellum watch`.
type Model struct {
	client *session.Client
	// mu serializes socket round-trips; commands run on program goroutines.
	mu sync.Mutex

	report  engine.StateReport
	fetched bool
	err     error
	asOf    time.Time
	width   int
	height  int
}

// New builds a model over an established client connection.
func New(client *session.Client) *Model {
	return &Model{client: client}
}

// Run drives the watch view until the user quits.
func Run(client *session.Client) error {
	p := tea.NewProgram(New(client))
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.fetch()
}

func (m *Model) fetch() tea.Cmd {
	return func() tea.Msg {
		m.mu.Lock()
		defer m.mu.Unlock()
		report, err := m.client.State()
		return reportMsg{report: report, err: err}
	}
}

func (m *Model) command(fn func() error) tea.Cmd {
	return func() tea.Msg {
		m.mu.Lock()
		defer m.mu.Unlock()
		if err := fn(); err != nil {
			return reportMsg{err: err}
		}
		report, err := m.client.State()
		return reportMsg{report: report, err: err}
	}
}

func scheduleTick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, m.fetch()

	case reportMsg:
		m.err = msg.err
		if msg.err == nil {
			m.report = msg.report
			m.fetched = true
			m.asOf = time.Now()
		}
		return m, scheduleTick()

	case tea.KeyPressMsg:
		switch key := msg.String(); key {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			names := m.workspaceNames()
			i := int(key[0] - '1')
			if i < len(names) {
				target := names[i]
				return m, m.command(func() error { return m.client.Switch(target) })
			}
			return m, nil
		case "tab":
			return m, m.command(m.client.ToggleJump)
		}
	}
	return m, nil
}

func (m *Model) workspaceNames() []string {
	names := make([]string, 0, len(m.report.Workspaces))
	for _, ws := range m.report.Workspaces {
		names = append(names, ws.Name)
	}
	return names
}

// View implements tea.Model.
func (m *Model) View() tea.View {
	var view tea.View
	view.SetContent(m.render())
	view.AltScreen = true
	return view
}

func (m *Model) render() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("vellum"))
	if m.fetched {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("  as of %s", m.asOf.Format("15:04:05"))))
	}
	sb.WriteString("\n\n")

	if m.err != nil {
		sb.WriteString(errStyle.Render(fmt.Sprintf("daemon: %v", m.err)))
		sb.WriteString("\n\n")
	}
	if !m.fetched {
		sb.WriteString(dimStyle.Render("waiting for daemon..."))
		sb.WriteString("\n")
		return sb.String()
	}

	sb.WriteString(m.renderWorkspaces())
	sb.WriteString("\n")
	sb.WriteString(m.renderColumns())
	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render("1-9 switch · tab back · r refresh · q quit"))
	sb.WriteString("\n")
	return sb.String()
}

func (m *Model) renderWorkspaces() string {
	rows := make([][]string, 0, len(m.report.Workspaces))
	for _, ws := range m.report.Workspaces {
		marker := ""
		switch {
		case ws.Current:
			marker = "●"
		case ws.Scratch:
			marker = "◌"
		}
		visible := 0
		for _, w := range ws.Windows {
			if !w.Hidden {
				visible++
			}
		}
		rows = append(rows, []string{
			marker,
			ws.Name,
			fmt.Sprintf("%d", len(ws.Windows)),
			fmt.Sprintf("%d", visible),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("", "Workspace", "Windows", "Visible").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if row < len(m.report.Workspaces) && m.report.Workspaces[row].Current {
				return currentStyle
			}
			return cellStyle
		})
	return t.Render()
}

func (m *Model) renderColumns() string {
	windows := make(map[uint32]engine.WindowReport)
	for _, ws := range m.report.Workspaces {
		for _, w := range ws.Windows {
			windows[w.ID] = w
		}
	}

	var rows [][]string
	for col, ids := range m.report.Columns {
		for row, id := range ids {
			w := windows[id]
			label := w.App
			if w.Title != "" {
				label = fmt.Sprintf("%s — %s", w.App, w.Title)
			}
			focus := ""
			if w.Focused {
				focus = "●"
			}
			rows = append(rows, []string{
				fmt.Sprintf("%d.%d", col+1, row+1),
				focus,
				fmt.Sprintf("%d", id),
				truncate(label, 40),
				fmt.Sprintf("%.0f,%.0f %.0fx%.0f", w.Frame.X, w.Frame.Y, w.Frame.W, w.Frame.H),
			})
		}
	}
	if len(rows) == 0 {
		return dimStyle.Render("no tiled windows on " + m.report.Current)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("Col", "", "ID", "Window", "Frame").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return "…"
	}
	return s[:n-1] + "…"
}
